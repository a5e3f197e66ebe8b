// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Signal-relay bridges a directory tree of queued files and the
// signal-cli messaging client. Programs that want to send a message
// drop a file into the outbox; messages that arrive are written into
// the inbox for other programs to pick up.
//
// Layout, relative to paths.messages:
//
//	to-send/<recipient>/<id>.message     text body
//	to-send/<recipient>/<id>.attachment  path of the file to attach
//	to-send/<recipient>/<id>.reply       quoted timestamp, newline, body
//	received/<sender>/<timestamp>.signalmessage
//	failed/<recipient>/<id>.<kind>       entries that could not be sent
//
// Each cycle flushes the outbox first and then receives. Cycles run
// every relay.poll_interval, and sooner when an outbox file is written
// (relay.watch). The client and its native library are installed under
// paths.install_root and updated when a new release is published.
//
// Usage:
//
//	signal-relay [--config FILE] [--log-level LEVEL] [--once] [--status] [--version]
//
// Without --config the file named by SIGNAL_RELAY_CONFIG is loaded.
// --once runs a single cycle and exits. --status prints the queue and
// exits without touching it.
package main
