// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package install keeps the external messaging client and its native
// library current.
//
// The [Installer] owns the installation root. A client release lands in
// <root>/<product>-<version>/ with bin/ and lib/; the native library
// bundle extracts its single shared object to <root>/<member>. The
// client's lib/ directory carries a jar (name prefix libsignal-client)
// embedding a native library built for another architecture, so after
// every install the jar's member is replaced with the extracted one via
// jarpatch.
//
// Release detection is delegated to two release.Checker values, one per
// artifact. Version records are committed only after the bundle is
// downloaded and extracted, so an interrupted install is retried.
//
// The jar patch is bracketed by a watchdog file in the state directory.
// [Installer.Recover] runs at startup: a leftover watchdog means the
// previous process died mid-patch, so the scratch container is removed
// and both version records are forgotten, forcing a clean reinstall.
//
// [Installer.BinaryPath] is the per-dispatch entry point. It caches the
// resolved path for the recheck interval and keeps serving an already
// installed binary when release metadata is unreachable.
package install
