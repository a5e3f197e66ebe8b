// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package release detects new releases of a tracked artifact.
//
// A [Checker] pairs a release-metadata endpoint (JSON with a tag_name
// field, the GitHub "latest release" shape) with a version record file
// whose last non-empty line is the last installed version. Tags are
// normalized by a [TagParser] and compared with the record as opaque
// strings: any difference is a new version, including a downgrade.
//
// [Checker.Check] only reads. [Checker.Commit] writes the record and is
// called by the installer once the new version is on disk, so a failed
// download is retried on the next cycle. [Checker.CheckLatest] does
// both in one call for callers that have nothing to install.
package release
