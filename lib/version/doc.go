// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports what build of the relay is running.
//
// [GitCommit], [GitDirty] and [BuildTime] are injected with -ldflags -X
// by release builds. When they are empty the VCS stamp embedded by the
// go tool is used instead, and "unknown" when there is none. [Version]
// is bumped by hand for releases.
//
// [Info] and [Full] format --version output. [UserAgent] identifies the
// relay to release hosts.
package version
