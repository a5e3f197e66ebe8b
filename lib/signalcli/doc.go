// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signalcli drives the external messaging client (signal-cli)
// as a subprocess.
//
// Every invocation has the shape
//
//	<binary> --config <configDir> -a <account> [-o json] <operation...>
//
// with the binary resolved per call through a [BinaryResolver], so an
// upgrade installed between two dispatches takes effect immediately.
// Subprocesses run through a [Runner]; production uses [ExecRunner],
// tests script results.
//
// Failures are classified with the failure package: a client that
// cannot start or exits non-zero is a DispatchFailure carrying stderr;
// receive output that is not a stream of JSON values is MalformedInput.
// Resolver errors (release host unreachable, broken bundle) pass
// through unchanged so the relay loop can escalate them.
//
// Attachments are retried a bounded number of times with a fixed delay
// on the injected clock. When every attempt fails the recipient gets a
// plain-text notice instead, and the returned failure is marked
// Notified.
package signalcli
