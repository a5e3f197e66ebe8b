// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signalcli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable shell script standing in for the
// client binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signal-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecRunner(t *testing.T) {
	t.Run("captures stdout", func(t *testing.T) {
		script := writeScript(t, `printf '%s|' "$@"`+"\n")
		stdout, err := ExecRunner{}.Run(context.Background(), script, []string{"send", "+1", "-m", "two words"})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := string(stdout); got != "send|+1|-m|two words|" {
			t.Errorf("stdout = %q", got)
		}
	})

	t.Run("non-zero exit carries stderr", func(t *testing.T) {
		script := writeScript(t, "echo 'User is not registered.' >&2\nexit 3\n")
		_, err := ExecRunner{}.Run(context.Background(), script, nil)
		var exitError *ExitError
		if !errors.As(err, &exitError) {
			t.Fatalf("expected *ExitError, got %v", err)
		}
		if exitError.Code != 3 {
			t.Errorf("Code = %d, want 3", exitError.Code)
		}
		if exitError.Stderr != "User is not registered." {
			t.Errorf("Stderr = %q", exitError.Stderr)
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := ExecRunner{}.Run(context.Background(), filepath.Join(t.TempDir(), "absent"), nil)
		if err == nil {
			t.Fatal("expected an error for a missing binary")
		}
		if !strings.Contains(err.Error(), "starting") {
			t.Errorf("error %q should report a start failure", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		script := writeScript(t, "exec sleep 30\n")
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := ExecRunner{}.Run(ctx, script, nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})
}
