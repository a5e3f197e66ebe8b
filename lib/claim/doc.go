// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package claim implements the lock-file protocol shared by the outbox
// and inbox trees.
//
// A payload `<stem>.<kind>` is claimed by creating its sibling
// `<stem>.lock` with O_CREATE|O_EXCL. The kernel guarantees that at
// most one creator succeeds, so two relay processes (or a relay and a
// restarted copy of itself) never both process the same entry. The
// lock is removed after the payload has been dealt with; "no lock file"
// means "safe to read" for any consumer of the tree.
//
// The lock file holds a CBOR [Record] naming the claimant and the claim
// time. A process that dies between claiming and releasing leaves its
// lock behind forever; [Sweep] removes locks older than a threshold so
// such entries are retried. A holder that was merely slow may find its
// lock swept and re-created by someone else, so [Claim.Release] only
// removes a lock that still carries its own record. Locks without a readable record (written by
// an older producer, or truncated by a crash mid-write) are aged by
// their modification time.
package claim
