// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bureau-foundation/signal-relay/lib/watchdog"
)

// Recover cleans up after a jar patch that never finished. It reports
// whether anything was recovered. After a recovery the next BinaryPath
// call reinstalls both artifacts.
func (i *Installer) Recover() (bool, error) {
	state, pending, err := watchdog.Pending(i.WatchdogPath())
	switch {
	case err != nil:
		// Unreadable: the scratch path is unknown, but the records can
		// still be dropped.
		i.config.Logger.Warn("patch watchdog unreadable, forcing reinstall", "error", err)
	case !pending:
		return false, nil
	default:
		i.config.Logger.Warn("previous jar patch was interrupted, forcing reinstall",
			"jar", state.Target,
			"client_version", state.Version,
			"started", state.Timestamp,
		)
	}

	if state.Scratch != "" {
		if err := os.Remove(state.Scratch); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return true, fmt.Errorf("removing scratch jar: %w", err)
		}
	}
	if err := i.config.Client.Forget(); err != nil {
		return true, err
	}
	if err := i.config.Library.Forget(); err != nil {
		return true, err
	}

	i.mu.Lock()
	i.cachedPath = ""
	i.mu.Unlock()

	if err := watchdog.Clear(i.WatchdogPath()); err != nil {
		return true, err
	}
	return true, nil
}
