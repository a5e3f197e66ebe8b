// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package claim

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/signal-relay/lib/clock"
	"github.com/bureau-foundation/signal-relay/lib/codec"
	"github.com/bureau-foundation/signal-relay/lib/failure"
)

// Extension is the file extension of lock files, without the dot.
const Extension = "lock"

// ErrClaimed is the cause inside the ClaimConflict failure returned
// when the lock already exists.
var ErrClaimed = errors.New("entry already claimed")

// processOwner identifies this process in every record it writes.
var processOwner = uuid.NewString()

// Owner returns the identity written into this process's claim records.
func Owner() string { return processOwner }

// Record is the content of a lock file.
type Record struct {
	Owner     string    `cbor:"owner"`
	PID       int       `cbor:"pid"`
	ClaimedAt time.Time `cbor:"claimed_at"`

	// Token is unique per Acquire, so a holder can tell its own lock
	// from a later claim of the same entry.
	Token string `cbor:"token,omitempty"`
}

// sameClaim reports whether a and b were written by the same Acquire.
func sameClaim(a, b Record) bool {
	return a.Owner == b.Owner && a.Token == b.Token && a.ClaimedAt.Equal(b.ClaimedAt)
}

// LockPath returns the lock file path for a payload path: the payload's
// extension is replaced by ".lock".
func LockPath(payloadPath string) string {
	return strings.TrimSuffix(payloadPath, filepath.Ext(payloadPath)) + "." + Extension
}

// IsLock reports whether name is a lock file name.
func IsLock(name string) bool {
	return filepath.Ext(name) == "."+Extension
}

// Claim is a held lock. Release it exactly once when the entry has been
// dealt with; extra calls are no-ops.
type Claim struct {
	path   string
	record Record
	once   sync.Once
	err    error
}

// Acquire creates lockPath exclusively and writes a claim record into
// it. If the lock already exists, Acquire returns a ClaimConflict
// failure wrapping ErrClaimed.
func Acquire(lockPath string, clk clock.Clock) (*Claim, error) {
	file, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, failure.Claim(lockPath, ErrClaimed)
		}
		return nil, fmt.Errorf("creating lock %s: %w", lockPath, err)
	}

	record := Record{
		Owner:     processOwner,
		PID:       os.Getpid(),
		ClaimedAt: clk.Now().UTC(),
		Token:     uuid.NewString(),
	}
	data, err := codec.Marshal(record)
	if err == nil {
		_, err = file.Write(data)
	}
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// The lock exists and belongs to us; leaving it would strand the
		// entry until the sweep, so take it back out.
		os.Remove(lockPath)
		return nil, fmt.Errorf("writing claim record to %s: %w", lockPath, err)
	}

	return &Claim{path: lockPath, record: record}, nil
}

// Path returns the lock file path.
func (c *Claim) Path() string { return c.path }

// Record returns the record written when the claim was acquired.
func (c *Claim) Record() Record { return c.record }

// Release removes the lock file if it still holds this claim's record.
// A lock that has disappeared, or that a sweep reclaimed and another
// claimant recreated, is left alone and is not an error.
func (c *Claim) Release() error {
	c.once.Do(func() {
		current, err := Read(c.path)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			c.err = fmt.Errorf("reading lock %s: %w", c.path, err)
			return
		}
		if !sameClaim(current, c.record) {
			return
		}
		if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.err = fmt.Errorf("removing lock %s: %w", c.path, err)
		}
	})
	return c.err
}

// Read decodes the record in lockPath. An empty or undecodable lock
// returns a Record whose ClaimedAt is the file's modification time and
// whose Owner is empty.
func Read(lockPath string) (Record, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return Record{}, err
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Record{}, err
	}

	var record Record
	if len(data) == 0 || codec.Unmarshal(data, &record) != nil || record.ClaimedAt.IsZero() {
		return Record{ClaimedAt: info.ModTime()}, nil
	}
	return record, nil
}
