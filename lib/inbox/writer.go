// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package inbox

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
	"github.com/bureau-foundation/signal-relay/lib/signalcli"
)

// Extension is the file extension of persisted messages.
const Extension = "signalmessage"

// Receiver fetches pending envelopes. signalcli.Client implements it.
type Receiver interface {
	Receive(ctx context.Context) ([]signalcli.Envelope, error)
}

// PollStats counts the outcome of one Poll.
type PollStats struct {
	// Written messages were persisted.
	Written int

	// Duplicates were already claimed or persisted.
	Duplicates int

	// Malformed envelopes lacked a required field.
	Malformed int
}

// Writer persists received messages under a received/ tree.
type Writer struct {
	root     string
	receiver Receiver
	clock    clock.Clock
	logger   *slog.Logger
}

// New returns a Writer for the received tree at root.
func New(root string, receiver Receiver, clk clock.Clock, logger *slog.Logger) *Writer {
	return &Writer{root: root, receiver: receiver, clock: clk, logger: logger}
}

// Root returns the received directory.
func (w *Writer) Root() string { return w.root }

// Poll receives pending envelopes and persists each text message. It
// returns the number of messages written. Receive and per-envelope
// failures are logged, not returned; the error reports filesystem
// failures on the received tree, which the relay escalates.
func (w *Writer) Poll(ctx context.Context) (int, error) {
	stats, err := w.PollStats(ctx)
	return stats.Written, err
}

// PollOnce is Poll.
func (w *Writer) PollOnce(ctx context.Context) (int, error) {
	return w.Poll(ctx)
}

// PollStats is Poll with the full outcome counts.
func (w *Writer) PollStats(ctx context.Context) (PollStats, error) {
	var stats PollStats

	envelopes, err := w.receiver.Receive(ctx)
	if err != nil {
		if failure.Escalate(err) {
			return stats, err
		}
		// Partial output still carries envelopes the client has
		// already consumed from the server.
		w.logger.Warn("receive failed", "error", err, "decoded", len(envelopes))
		if len(envelopes) == 0 {
			return stats, nil
		}
	}

	var errs []error
	for i := range envelopes {
		envelope := &envelopes[i]
		err := w.persist(envelope)
		switch {
		case err == nil:
			stats.Written++
		case errors.Is(err, failure.ErrClaimConflict):
			w.logger.Debug("duplicate delivery skipped",
				"sender", envelope.Sender(),
				"timestamp", envelope.MessageTimestamp(),
			)
			stats.Duplicates++
		case errors.Is(err, failure.ErrMalformedInput):
			w.logger.Warn("envelope not persisted", "error", err)
			stats.Malformed++
		default:
			errs = append(errs, err)
		}
	}

	if stats.Written > 0 {
		w.logger.Info("messages received", "written", stats.Written)
	}
	return stats, errors.Join(errs...)
}

// persist writes one envelope. Claim conflicts and existing payloads
// are reported as ClaimConflict failures.
func (w *Writer) persist(envelope *signalcli.Envelope) error {
	sender := envelope.Sender()
	timestamp := envelope.MessageTimestamp()
	text, hasText := envelope.Text()

	switch {
	case sender == "":
		return failure.Malformed("persist message", "", "envelope has no sourceNumber")
	case timestamp == "":
		return failure.Malformed("persist message", "", "envelope from %s has no dataMessage.timestamp", sender)
	case !hasText:
		return failure.Malformed("persist message", "", "envelope from %s at %s has no dataMessage.message", sender, timestamp)
	}
	if !safeName(sender) || !safeName(timestamp) {
		return failure.Malformed("persist message", "", "unsafe sender %q or timestamp %q", sender, timestamp)
	}

	directory := filepath.Join(w.root, sender)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating inbox directory %s: %w", directory, err)
	}

	payloadPath := filepath.Join(directory, timestamp+"."+Extension)
	held, err := claim.Acquire(claim.LockPath(payloadPath), w.clock)
	if err != nil {
		return err
	}

	writeErr := writeExclusive(payloadPath, text)
	releaseErr := held.Release()
	if errors.Is(writeErr, fs.ErrExist) {
		return failure.Claim(payloadPath, writeErr)
	}
	if writeErr != nil {
		return writeErr
	}
	return releaseErr
}

// writeExclusive creates path, which must not exist, with content. A
// failed write removes the partial file.
func writeExclusive(path, content string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	_, err = file.WriteString(content)
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// safeName reports whether s can be used as a single path component.
func safeName(s string) bool {
	return s != "." && s != ".." && !strings.ContainsAny(s, "/\x00")
}
