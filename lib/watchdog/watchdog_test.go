// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWritePending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.watchdog")
	state := State{
		Component: "libsignal",
		Target:    "/opt/signal-cli-0.13.4/lib/libsignal-client-0.47.0.jar",
		Scratch:   "/opt/signal-cli-0.13.4/lib/libsignal-client-0.47.0.jar.tmp",
		Version:   "0.13.4",
		Timestamp: time.Date(2026, 2, 10, 15, 30, 0, 0, time.UTC),
	}

	if err := Write(path, state); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, found, err := Pending(path)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if !found {
		t.Fatal("Pending should find the written state")
	}
	if got.Target != state.Target || got.Scratch != state.Scratch || got.Version != state.Version {
		t.Errorf("Pending = %+v, want %+v", got, state)
	}
	if !got.Timestamp.Equal(state.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, state.Timestamp)
	}
}

func TestWritePermissionsAndNoTemporaryLeft(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.watchdog")
	if err := Write(path, State{Component: "libsignal", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("permissions = %04o, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind after Write")
	}
}

func TestPendingMissing(t *testing.T) {
	_, found, err := Pending(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Pending on missing file: %v", err)
	}
	if found {
		t.Error("Pending should report nothing for a missing file")
	}
}

func TestPendingCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.watchdog")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, _, err := Pending(path)
	if err == nil {
		t.Fatal("Pending should fail on a corrupt file")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q should mention %q", err, path)
	}
}

func TestReadMissingWrapsNotExist(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Read error = %v, want fs.ErrNotExist", err)
	}
}

func TestClearIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.watchdog")
	if err := Write(path, State{Component: "libsignal"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Errorf("second Clear: %v", err)
	}
	if _, found, _ := Pending(path); found {
		t.Error("state still pending after Clear")
	}
}

func TestWriteFileReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.txt")
	if err := WriteFile(path, []byte("0.13.3"), 0o644); err != nil {
		t.Fatalf("first WriteFile: %v", err)
	}
	if err := WriteFile(path, []byte("0.13.4"), 0o644); err != nil {
		t.Fatalf("second WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "0.13.4" {
		t.Errorf("content = %q, want %q", data, "0.13.4")
	}
}

func TestWriteFileMissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "record.txt")
	if err := WriteFile(path, []byte("x"), 0o644); err == nil {
		t.Fatal("WriteFile into a missing directory should fail")
	}
}
