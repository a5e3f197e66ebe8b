// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay runs the send-then-receive cycle.
//
// Each cycle reclaims stale outbox locks when the sweep interval has
// passed, flushes the outbox, then polls the inbox. Between cycles the
// loop waits for the poll interval, a wake from the outbox watcher, or
// cancellation, whichever comes first.
//
// Per-entry failures are handled by the outbox and inbox themselves.
// What reaches the loop is classified with failure.Escalate: transport
// and archive failures, and unclassified filesystem errors, are logged
// at error level and counted. A clean cycle resets the count; after
// MaxConsecutiveEscalations failing cycles in a row [Relay.Run] returns
// the last error and leaves the restart decision to the supervisor.
//
// On startup Run first lets the installer recover from an interrupted
// update, then sweeps stale locks.
package relay
