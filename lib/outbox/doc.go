// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package outbox drains the to-send mailbox.
//
// The mailbox has one directory per recipient, each holding payload
// files named <id>.<kind>:
//
//	to-send/+15552223333/1700000000.message     text, sent verbatim
//	to-send/+15552223333/1700000001.attachment  a file path to send
//	to-send/+15552223333/1700000002.reply       "<quoted timestamp>\n<text>"
//
// [Scanner.Flush] claims each payload by creating <id>.lock with
// create-exclusive semantics (see the claim package), so any number of
// relay processes can scan the same tree and each entry is dispatched
// by at most one of them. After dispatch:
//
//   - success: payload removed, then lock removed
//   - attachment that failed every attempt: the recipient was sent a
//     failure notice; payload and lock removed
//   - message or reply that failed, or any malformed payload: payload
//     moved to failed/<recipient>/<file>, lock removed
//   - binary unresolvable (release host down, broken bundle): lock
//     removed, payload left for the next cycle, flush stopped
//
// Files with other extensions are logged and left alone.
package outbox
