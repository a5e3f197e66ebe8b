// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jarpatch replaces one member of a zip container (a Java jar)
// without disturbing the rest of it.
//
// [Patch] streams every entry of the original container into a scratch
// container at <jar>.tmp beside it. Entries other than the target are
// copied raw, so their compressed bytes, CRCs, methods, modification
// times and attributes are exactly those of the original. The target
// member keeps its header (name, method, times, attributes) and takes
// its bytes from the replacement file. The scratch container is
// fsynced and renamed over the original, so readers see either the old
// jar or the new one, never a mix.
//
// Every failure removes the scratch file and is reported as a
// failure.ArchiveCorruption error. A container without the member is
// left untouched.
//
// [MemberDigest] hashes a single member so callers can skip a patch
// whose replacement is already in place.
package jarpatch
