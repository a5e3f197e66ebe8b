// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the relay's binary encoding: CBOR (RFC 8949) via
// fxamacker/cbor, configured for Core Deterministic Encoding so equal
// values always produce equal bytes.
//
// Lock files carry a CBOR claim record. Consumers that only test for a
// lock file's existence never read it; the sweep and the status view
// decode it to learn who holds a claim and since when.
package codec
