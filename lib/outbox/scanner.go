// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package outbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/signal-relay/lib/claim"
	"github.com/bureau-foundation/signal-relay/lib/clock"
	"github.com/bureau-foundation/signal-relay/lib/failure"
)

// Dispatcher sends outbox payloads. signalcli.Client implements it.
type Dispatcher interface {
	Send(ctx context.Context, recipient, text string) error
	SendAttachment(ctx context.Context, recipient, path string) error
	SendReply(ctx context.Context, recipient, text, quotedTimestamp string) error
}

// FlushStats counts what one Flush did with each payload it saw.
type FlushStats struct {
	// Dispatched entries were sent and removed.
	Dispatched int

	// Skipped entries were claimed by someone else, vanished, had an
	// unknown kind, or were left for the next cycle.
	Skipped int

	// DeadLettered entries were moved to the failed tree.
	DeadLettered int

	// Abandoned attachments failed every attempt and were removed
	// after the recipient was notified.
	Abandoned int
}

// Scanner flushes a to-send tree.
type Scanner struct {
	root        string
	deadLetters string
	dispatcher  Dispatcher
	clock       clock.Clock
	logger      *slog.Logger
}

// New returns a Scanner for the to-send tree at root that moves failed
// entries under deadLetters.
func New(root, deadLetters string, dispatcher Dispatcher, clk clock.Clock, logger *slog.Logger) *Scanner {
	return &Scanner{
		root:        root,
		deadLetters: deadLetters,
		dispatcher:  dispatcher,
		clock:       clk,
		logger:      logger,
	}
}

// Root returns the to-send directory.
func (s *Scanner) Root() string { return s.root }

// Flush dispatches every unclaimed payload once. The returned error
// joins failures the relay loop should escalate; per-entry problems are
// handled here and only counted. Cancellation stops the flush between
// entries.
func (s *Scanner) Flush(ctx context.Context) (FlushStats, error) {
	var stats FlushStats

	entries, err := List(s.root)
	if err != nil {
		return stats, fmt.Errorf("listing outbox %s: %w", s.root, err)
	}

	var errs []error
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.Claimed {
			stats.Skipped++
			continue
		}
		if entry.Kind == "" {
			s.logger.Warn("ignoring outbox file with unknown kind", "path", entry.Path)
			stats.Skipped++
			continue
		}

		stop, err := s.process(ctx, entry, &stats)
		if err != nil {
			errs = append(errs, err)
		}
		if stop {
			break
		}
	}
	return stats, errors.Join(errs...)
}

// process claims and dispatches one entry. It returns stop when the
// rest of the flush should not run.
func (s *Scanner) process(ctx context.Context, entry Entry, stats *FlushStats) (stop bool, err error) {
	held, err := claim.Acquire(claim.LockPath(entry.Path), s.clock)
	if err != nil {
		if errors.Is(err, failure.ErrClaimConflict) {
			s.logger.Debug("outbox entry claimed elsewhere", "path", entry.Path)
			stats.Skipped++
			return false, nil
		}
		return false, err
	}
	defer func() {
		if releaseErr := held.Release(); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
	}()

	content, err := os.ReadFile(entry.Path)
	if errors.Is(err, fs.ErrNotExist) {
		// Finished by another process between listing and claiming.
		stats.Skipped++
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", entry.Path, err)
	}

	dispatchErr := s.dispatch(ctx, entry, string(content))
	switch {
	case dispatchErr == nil:
		stats.Dispatched++
		return false, s.remove(entry)

	case ctx.Err() != nil:
		s.logger.Info("dispatch interrupted, leaving entry queued", "path", entry.Path)
		stats.Skipped++
		return true, nil

	case failure.Escalate(dispatchErr):
		stats.Skipped++
		return true, dispatchErr

	case entry.Kind == KindAttachment && failure.KindOf(dispatchErr) == failure.DispatchFailure:
		var classified *failure.Error
		errors.As(dispatchErr, &classified)
		s.logger.Error("attachment abandoned",
			"path", entry.Path,
			"recipient", entry.Client,
			"notified", classified.Notified,
			"error", dispatchErr,
		)
		stats.Abandoned++
		return false, s.remove(entry)

	default:
		s.logger.Error("outbox entry failed, moving to dead letters",
			"path", entry.Path,
			"recipient", entry.Client,
			"kind", failure.KindOf(dispatchErr).String(),
			"error", dispatchErr,
		)
		stats.DeadLettered++
		return false, s.deadLetter(entry)
	}
}

func (s *Scanner) dispatch(ctx context.Context, entry Entry, content string) error {
	switch entry.Kind {
	case KindMessage:
		return s.dispatcher.Send(ctx, entry.Client, content)

	case KindAttachment:
		path := strings.TrimSpace(content)
		if path == "" {
			return failure.Malformed("parse attachment", entry.Path, "empty attachment path")
		}
		return s.dispatcher.SendAttachment(ctx, entry.Client, path)

	case KindReply:
		quoted, body, err := ParseReply(content)
		if err != nil {
			return failure.Malformed("parse reply", entry.Path, "%v", err)
		}
		return s.dispatcher.SendReply(ctx, entry.Client, body, quoted)
	}
	return failure.Malformed("dispatch", entry.Path, "unknown kind %q", entry.Kind)
}

// ParseReply splits reply content at the first newline into the quoted
// message timestamp and the reply text.
func ParseReply(content string) (quotedTimestamp, body string, err error) {
	quotedTimestamp, body, found := strings.Cut(content, "\n")
	if !found {
		return "", "", errors.New("reply has no newline after the quoted timestamp")
	}
	quotedTimestamp = strings.TrimSpace(quotedTimestamp)
	if quotedTimestamp == "" {
		return "", "", errors.New("reply has an empty quoted timestamp")
	}
	return quotedTimestamp, body, nil
}

// remove deletes a dispatched payload. The lock is released by the
// caller afterwards.
func (s *Scanner) remove(entry Entry) error {
	if err := os.Remove(entry.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing dispatched entry %s: %w", entry.Path, err)
	}
	return nil
}

// deadLetter moves a payload to failed/<client>/<name>. An existing
// dead letter is never replaced: the newcomer is stored as
// <stem>.<unix-nanos>.<kind> instead.
func (s *Scanner) deadLetter(entry Entry) error {
	directory := filepath.Join(s.deadLetters, entry.Client)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating dead letter directory: %w", err)
	}

	extension := filepath.Ext(entry.Name)
	stem := strings.TrimSuffix(entry.Name, extension)
	destination := filepath.Join(directory, entry.Name)
	stamp := s.clock.Now().UnixNano()
	for attempt := 0; ; attempt++ {
		// Link fails rather than replacing an existing name.
		err := os.Link(entry.Path, destination)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) || attempt == maxDeadLetterAttempts {
			return fmt.Errorf("moving %s to dead letters: %w", entry.Path, err)
		}
		destination = filepath.Join(directory, fmt.Sprintf("%s.%d%s", stem, stamp+int64(attempt), extension))
	}

	if err := os.Remove(entry.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing dead-lettered entry %s: %w", entry.Path, err)
	}
	if destination != filepath.Join(directory, entry.Name) {
		s.logger.Warn("dead letter name taken, stored under a new name",
			"path", entry.Path,
			"dead_letter", destination,
		)
	}
	return nil
}

// maxDeadLetterAttempts bounds the search for a free dead letter name.
const maxDeadLetterAttempts = 100
