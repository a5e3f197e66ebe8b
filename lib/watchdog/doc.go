// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog records in-flight archive patches so an interrupted
// update is noticed on the next start.
//
// The installer rewrites the client's libsignal-client jar through a
// scratch file and a rename. A crash between the two leaves a
// half-written scratch file next to the jar and version records that
// claim the update finished. The sequence is:
//
//  1. Before patching: [Write] a [State] naming the jar and its scratch
//     path.
//  2. Patch and rename.
//  3. After success: [Clear].
//
// On startup the installer calls [Pending]. A state left behind means
// step 2 never completed: the scratch file is removed and the version
// records are forgotten so the next cycle reinstalls from scratch.
//
// [WriteFile] is the atomic write primitive (temporary file, fsync,
// rename, directory fsync) and is also used for version records.
package watchdog
