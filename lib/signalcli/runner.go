// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signalcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a binary and returns its standard output.
type Runner interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// ExitError reports a client that ran and exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
}

// waitDelay bounds how long Run waits for output pipes after the
// client is killed on cancellation. A grandchild holding stdout open
// would otherwise block Run indefinitely.
const waitDelay = 5 * time.Second

// ExecRunner runs binaries with os/exec. Stderr is captured separately
// and carried in *ExitError.
type ExecRunner struct{}

// Run executes binary with args, bounded by ctx.
func (ExecRunner) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, binary, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = waitDelay

	if err := command.Run(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) && ctx.Err() == nil {
			return stdout.Bytes(), &ExitError{
				Code:   exitError.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		if ctx.Err() != nil {
			return stdout.Bytes(), fmt.Errorf("running %s: %w", binary, ctx.Err())
		}
		return stdout.Bytes(), fmt.Errorf("starting %s: %w", binary, err)
	}
	return stdout.Bytes(), nil
}
