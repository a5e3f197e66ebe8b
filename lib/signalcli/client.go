// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signalcli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/signal-relay/lib/clock"
	"github.com/bureau-foundation/signal-relay/lib/failure"
)

// DefaultFailureNotice is sent when an attachment cannot be delivered.
const DefaultFailureNotice = "Sending attachment keeps failing"

// BinaryResolver returns the client binary to invoke.
type BinaryResolver interface {
	BinaryPath(ctx context.Context) (string, error)
}

// StaticBinary resolves to a fixed path.
type StaticBinary string

// BinaryPath returns the path.
func (s StaticBinary) BinaryPath(context.Context) (string, error) { return string(s), nil }

// Config holds the invocation settings.
type Config struct {
	// ConfigDir is passed as --config.
	ConfigDir string

	// Account is passed as -a.
	Account string

	// JSONOutput adds "-o json" before the receive operation.
	JSONOutput bool

	// AttachmentAttempts bounds attachment sends. Values below one are
	// treated as one.
	AttachmentAttempts int

	// AttachmentRetryDelay separates attachment attempts.
	AttachmentRetryDelay time.Duration

	// FailureNotice is the text sent after the last failed attachment
	// attempt. Empty means DefaultFailureNotice.
	FailureNotice string
}

// Client invokes the external messaging client.
type Client struct {
	config   Config
	resolver BinaryResolver
	runner   Runner
	clock    clock.Clock
	logger   *slog.Logger
}

// New returns a Client.
func New(config Config, resolver BinaryResolver, runner Runner, clk clock.Clock, logger *slog.Logger) *Client {
	if config.AttachmentAttempts < 1 {
		config.AttachmentAttempts = 1
	}
	if config.FailureNotice == "" {
		config.FailureNotice = DefaultFailureNotice
	}
	return &Client{
		config:   config,
		resolver: resolver,
		runner:   runner,
		clock:    clk,
		logger:   logger,
	}
}

// Args returns the full argument list for an operation. Sends carry
// only --config and -a before the operation; "-o json" is added to
// receive alone, whose output is parsed.
func (c *Client) Args(operation ...string) []string {
	args := []string{"--config", c.config.ConfigDir, "-a", c.config.Account}
	if c.config.JSONOutput && len(operation) > 0 && operation[0] == "receive" {
		args = append(args, "-o", "json")
	}
	return append(args, operation...)
}

// invoke resolves the binary and runs one operation. Resolver errors
// are returned unchanged; run errors become DispatchFailures named op.
func (c *Client) invoke(ctx context.Context, op string, operation ...string) ([]byte, error) {
	binary, err := c.resolver.BinaryPath(ctx)
	if err != nil {
		return nil, err
	}
	output, err := c.runner.Run(ctx, binary, c.Args(operation...))
	if err != nil {
		return output, failure.Dispatch(op, err)
	}
	return output, nil
}

// Send sends text to recipient. Single attempt.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	if _, err := c.invoke(ctx, "send message", "send", recipient, "-m", text); err != nil {
		return err
	}
	c.logger.Info("message sent", "recipient", recipient)
	return nil
}

// SendReply sends text to recipient quoting the message sent at
// quotedTimestamp. Single attempt.
func (c *Client) SendReply(ctx context.Context, recipient, text, quotedTimestamp string) error {
	_, err := c.invoke(ctx, "send reply", "send", recipient, "-m", text, "--quote-timestamp", quotedTimestamp)
	if err != nil {
		return err
	}
	c.logger.Info("reply sent", "recipient", recipient, "quote_timestamp", quotedTimestamp)
	return nil
}

// SendAttachment sends the file at path to recipient, retrying with a
// fixed delay. After the last failed attempt the failure notice is
// sent as a plain message and a DispatchFailure is returned with
// Notified set when that notice went through.
func (c *Client) SendAttachment(ctx context.Context, recipient, path string) error {
	var lastErr error
	for attempt := 1; attempt <= c.config.AttachmentAttempts; attempt++ {
		_, err := c.invoke(ctx, "send attachment", "send", recipient, "-a", path)
		if err == nil {
			c.logger.Info("attachment sent", "recipient", recipient, "path", path, "attempt", attempt)
			return nil
		}
		if failure.KindOf(err) != failure.DispatchFailure {
			// The binary could not be resolved; retrying the send
			// will not help.
			return err
		}
		lastErr = err
		c.logger.Warn("attachment send failed",
			"recipient", recipient,
			"path", path,
			"attempt", attempt,
			"max_attempts", c.config.AttachmentAttempts,
			"error", err,
		)
		if attempt == c.config.AttachmentAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return failure.Dispatch("send attachment", fmt.Errorf("%w (after %d attempts: %v)", ctx.Err(), attempt, lastErr))
		case <-c.clock.After(c.config.AttachmentRetryDelay):
		}
	}

	terminal := failure.Dispatch("send attachment",
		fmt.Errorf("%d attempts failed, last: %w", c.config.AttachmentAttempts, errors.Unwrap(lastErr)))
	if err := c.Send(ctx, recipient, c.config.FailureNotice); err != nil {
		c.logger.Error("attachment failure notice not delivered",
			"recipient", recipient,
			"error", err,
		)
		return terminal
	}
	terminal.Notified = true
	return terminal
}

// Receive fetches pending incoming messages. An unparseable stream
// returns the envelopes decoded so far with a MalformedInput error.
func (c *Client) Receive(ctx context.Context) ([]Envelope, error) {
	output, err := c.invoke(ctx, "receive", "receive")
	if err != nil {
		return nil, err
	}
	envelopes, err := DecodeEnvelopes(output)
	if err != nil {
		return envelopes, failure.Malformed("receive", "", "%v", err)
	}
	c.logger.Debug("received envelopes", "count", len(envelopes))
	return envelopes, nil
}
