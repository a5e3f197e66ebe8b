// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for relay packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests never block forever on a channel. They are the only
// place in the test suite where wall-clock timeouts appear.
//
// [WriteFile], [ReadFile], [RequireExists] and [RequireMissing] cover
// the queue-directory assertions that almost every outbox, inbox and
// claim test makes.
//
// All helpers call t.Fatalf on failure.
package testutil
