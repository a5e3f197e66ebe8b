// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signalcli

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/signal-relay/lib/clock"
)

type invocation struct {
	binary string
	args   []string
}

type result struct {
	stdout []byte
	err    error
}

// scriptedRunner returns queued results in order, then the fallback.
type scriptedRunner struct {
	mu       sync.Mutex
	calls    []invocation
	results  []result
	fallback result
}

func (r *scriptedRunner) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invocation{binary: binary, args: slices.Clone(args)})
	if len(r.results) > 0 {
		next := r.results[0]
		r.results = r.results[1:]
		return next.stdout, next.err
	}
	return r.fallback.stdout, r.fallback.err
}

func (r *scriptedRunner) recorded() []invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

const testBinary = "/opt/signal-cli-0.13.4/bin/signal-cli"

func newTestClient(t *testing.T, runner Runner) (*Client, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	client := New(Config{
		ConfigDir:            "/var/lib/signal-cli",
		Account:              "+15550001111",
		AttachmentAttempts:   5,
		AttachmentRetryDelay: 5 * time.Second,
	}, StaticBinary(testBinary), runner, fakeClock, nopLogger())
	return client, fakeClock
}

func prefixed(operation ...string) []string {
	return append([]string{"--config", "/var/lib/signal-cli", "-a", "+15550001111"}, operation...)
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
