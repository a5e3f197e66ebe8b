// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package claim

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Sweep walks root and removes every lock file claimed more than maxAge
// before now, returning the removed paths. A missing root is not an
// error. maxAge <= 0 disables the sweep.
//
// Only the lock is removed; its payload stays in place and is picked up
// again by the next scan.
func Sweep(root string, maxAge time.Duration, now time.Time) ([]string, error) {
	if maxAge <= 0 {
		return nil, nil
	}

	var reclaimed []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !IsLock(entry.Name()) {
			return nil
		}

		record, err := Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Released between listing and reading.
				return nil
			}
			return err
		}
		if now.Sub(record.ClaimedAt) <= maxAge {
			return nil
		}

		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("reclaiming %s: %w", path, err)
		}
		reclaimed = append(reclaimed, path)
		return nil
	})
	if err != nil {
		return reclaimed, fmt.Errorf("sweeping %s: %w", root, err)
	}
	return reclaimed, nil
}
