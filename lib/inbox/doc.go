// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package inbox persists incoming messages to the received mailbox.
//
// [Writer.Poll] runs the client's receive operation and writes each
// text message to
//
//	received/<sender>/<timestamp>.signalmessage
//
// under the same claim discipline as the outbox: <timestamp>.lock is
// created exclusively, the payload is written create-exclusive and
// fsynced, then the lock is removed. A reader that ignores files with a
// lock sibling never sees a partial payload. A second delivery of the
// same timestamp finds the lock or the payload already present and is
// skipped.
//
// A failed receive is logged and the poll ends without effect; the
// client keeps undelivered messages on the server. Envelopes missing a
// sender, timestamp or body are logged and counted as malformed.
package inbox
