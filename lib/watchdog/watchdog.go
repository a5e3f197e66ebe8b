// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// State describes a patch in progress.
type State struct {
	// Component names the member being replaced ("libsignal_jni.so").
	Component string `json:"component"`

	// Target is the archive being rewritten.
	Target string `json:"target"`

	// Scratch is the temporary output that replaces Target on success.
	Scratch string `json:"scratch"`

	// Version is the client version whose archive is being patched.
	Version string `json:"version"`

	// Timestamp is when the patch started.
	Timestamp time.Time `json:"timestamp"`
}

// Write records state at path atomically with mode 0600.
func Write(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling watchdog state: %w", err)
	}
	data = append(data, '\n')
	return WriteFile(path, data, 0o600)
}

// Read parses the state at path. A missing file returns an error
// wrapping fs.ErrNotExist.
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parsing watchdog file %s: %w", path, err)
	}
	return state, nil
}

// Pending reports whether a state was left behind at path. A missing
// file is (State{}, false, nil). A corrupt file is an error so the
// caller can tell "nothing in flight" from "unreadable record".
func Pending(path string) (State, bool, error) {
	state, err := Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	return state, true, nil
}

// Clear removes the state at path. Idempotent.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing watchdog file: %w", err)
	}
	return nil
}
