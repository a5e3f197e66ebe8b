// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides BLAKE3 content digests for native library
// binaries.
//
// The installer compares the digest of the libsignal_jni.so member
// inside the client's libsignal-client jar against the digest of the
// separately downloaded replacement. Equal digests mean the jar already
// carries the right native library and the archive rewrite is skipped.
//
//   - [HashFile] -- streams a file through BLAKE3
//   - [HashReader] -- streams any reader, used for zip members
//   - [FormatDigest] / [ParseDigest] -- canonical hex form for logs
package binhash
