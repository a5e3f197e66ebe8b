// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the exit path of the signal-relay binary: the
// error from run() is printed to stderr as "error: ..." and the process
// exits with status 1. It writes directly to stderr because the error
// may come from config loading, before any logger exists.
package process
