// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch wakes the relay when something lands in the outbox.
//
// [Watch] puts inotify watches on the to-send directory and on each
// recipient directory inside it, adding watches for recipient
// directories created later. The returned channel receives a value
// when a payload file is closed after writing or moved into a
// recipient directory, and when a new recipient directory appears.
// Lock files are ignored, so the relay's own claims do not wake it.
// Bursts coalesce into a single pending wake.
//
// Files are reported on close, not on create, so a producer writing
// in place is not picked up before its write finishes. Producers that
// write elsewhere and rename into place are reported on the rename.
package watch
