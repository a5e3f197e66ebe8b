// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package failure defines the relay's error taxonomy.
//
// Every component reports failures as a [*Error] carrying a [Kind]:
//
//   - [ClaimConflict]: a lock file already exists; the entry belongs to
//     someone else and is skipped.
//   - [DispatchFailure]: the external client could not be started or
//     exited unsuccessfully.
//   - [MalformedInput]: a queue file or the client's output does not
//     have the expected shape.
//   - [TransportFailure]: fetching release metadata or a bundle failed.
//   - [ArchiveCorruption]: reading or writing a zip or tar archive
//     failed.
//
// The relay loop decides per kind what to do with a failure; see
// [Escalate]. Callers test kinds with errors.Is against the exported
// sentinels or with [KindOf]:
//
//	if errors.Is(err, failure.ErrClaimConflict) { skip }
package failure
