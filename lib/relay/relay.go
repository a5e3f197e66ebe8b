// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/signal-relay/lib/claim"
	"github.com/bureau-foundation/signal-relay/lib/clock"
	"github.com/bureau-foundation/signal-relay/lib/failure"
	"github.com/bureau-foundation/signal-relay/lib/inbox"
	"github.com/bureau-foundation/signal-relay/lib/outbox"
)

// Flusher drains the outbox. *outbox.Scanner implements it.
type Flusher interface {
	Flush(ctx context.Context) (outbox.FlushStats, error)
}

// Poller drains incoming messages. *inbox.Writer implements it.
type Poller interface {
	PollStats(ctx context.Context) (inbox.PollStats, error)
}

// Recoverer repairs an interrupted update. *install.Installer
// implements it.
type Recoverer interface {
	Recover() (bool, error)
}

// Config holds the loop policy.
type Config struct {
	// OutboxRoot is swept for stale locks.
	OutboxRoot string

	PollInterval time.Duration

	// StaleLockAge is the claim age after which a lock is removed.
	// Zero disables sweeping.
	StaleLockAge time.Duration

	SweepInterval time.Duration

	MaxConsecutiveEscalations int

	// Wake, when set, ends the wait between cycles early. A closed
	// channel is dropped and the loop falls back to the interval.
	Wake <-chan struct{}
}

// Cycle is the outcome of one RunOnce.
type Cycle struct {
	Flush     outbox.FlushStats
	Poll      inbox.PollStats
	Reclaimed []string
}

// Relay is the control loop.
type Relay struct {
	config    Config
	outbox    Flusher
	inbox     Poller
	recoverer Recoverer
	clock     clock.Clock
	logger    *slog.Logger

	lastSweep time.Time
}

// New returns a Relay. recoverer may be nil.
func New(config Config, flusher Flusher, poller Poller, recoverer Recoverer, clk clock.Clock, logger *slog.Logger) *Relay {
	if config.MaxConsecutiveEscalations < 1 {
		config.MaxConsecutiveEscalations = 1
	}
	return &Relay{
		config:    config,
		outbox:    flusher,
		inbox:     poller,
		recoverer: recoverer,
		clock:     clk,
		logger:    logger,
	}
}

// Run cycles until ctx is done, returning nil, or until too many
// consecutive cycles escalate, returning the last escalated error.
func (r *Relay) Run(ctx context.Context) error {
	if r.recoverer != nil {
		if _, err := r.recoverer.Recover(); err != nil {
			return fmt.Errorf("recovering interrupted update: %w", err)
		}
	}
	r.sweep()

	wake := r.config.Wake
	escalations := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		_, err := r.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if failure.Escalate(err) {
			escalations++
			r.logger.Error("relay cycle failed",
				"error", err,
				"kind", failure.KindOf(err).String(),
				"consecutive", escalations,
				"limit", r.config.MaxConsecutiveEscalations,
			)
			if escalations >= r.config.MaxConsecutiveEscalations {
				return fmt.Errorf("%d consecutive relay cycles failed: %w", escalations, err)
			}
		} else {
			if err != nil {
				r.logger.Warn("relay cycle completed with errors", "error", err)
			}
			escalations = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(r.config.PollInterval):
		case _, ok := <-wake:
			if !ok {
				r.logger.Warn("outbox watcher stopped, polling on interval only")
				wake = nil
			}
		}
	}
}

// RunOnce runs a single cycle: sweep when due, flush, poll. The error
// joins the flush and poll errors.
func (r *Relay) RunOnce(ctx context.Context) (Cycle, error) {
	var cycle Cycle
	if r.sweepDue() {
		cycle.Reclaimed = r.sweep()
	}

	flushStats, flushErr := r.outbox.Flush(ctx)
	cycle.Flush = flushStats
	if ctx.Err() != nil {
		return cycle, flushErr
	}

	pollStats, pollErr := r.inbox.PollStats(ctx)
	cycle.Poll = pollStats

	if flushStats != (outbox.FlushStats{}) || pollStats != (inbox.PollStats{}) {
		r.logger.Info("relay cycle",
			"dispatched", flushStats.Dispatched,
			"skipped", flushStats.Skipped,
			"dead_lettered", flushStats.DeadLettered,
			"abandoned", flushStats.Abandoned,
			"received", pollStats.Written,
			"duplicates", pollStats.Duplicates,
			"malformed", pollStats.Malformed,
		)
	}
	return cycle, errors.Join(flushErr, pollErr)
}

func (r *Relay) sweepDue() bool {
	if r.config.StaleLockAge <= 0 {
		return false
	}
	return r.lastSweep.IsZero() || r.clock.Now().Sub(r.lastSweep) >= r.config.SweepInterval
}

// sweep reclaims stale outbox locks. Only the outbox is swept: an
// inbox lock guards a payload that may be half written.
func (r *Relay) sweep() []string {
	if r.config.StaleLockAge <= 0 {
		return nil
	}
	now := r.clock.Now()
	r.lastSweep = now

	reclaimed, err := claim.Sweep(r.config.OutboxRoot, r.config.StaleLockAge, now)
	for _, path := range reclaimed {
		r.logger.Warn("reclaimed stale lock", "path", path, "max_age", r.config.StaleLockAge)
	}
	if err != nil {
		r.logger.Error("stale lock sweep failed", "error", err)
	}
	return reclaimed
}
