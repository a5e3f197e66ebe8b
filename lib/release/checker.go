// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/signal-relay/lib/failure"
	"github.com/bureau-foundation/signal-relay/lib/netutil"
	"github.com/bureau-foundation/signal-relay/lib/watchdog"
)

// DefaultTimeout bounds a metadata request when Checker.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// metadata is the subset of the release document the checker reads.
type metadata struct {
	TagName string `json:"tag_name"`
}

// Checker compares the latest published release of one artifact with
// its version record.
type Checker struct {
	// Name identifies the artifact in logs and errors ("client",
	// "library").
	Name string

	MetadataURL string
	RecordPath  string
	Parse       TagParser
	Fetcher     *netutil.Fetcher

	// Timeout bounds each metadata request. Zero means DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Latest fetches the release metadata and returns the parsed version.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var document metadata
	if err := c.Fetcher.GetJSON(ctx, c.MetadataURL, timeout, &document); err != nil {
		return "", failure.Transport("fetch "+c.Name+" release", c.MetadataURL, err)
	}
	if strings.TrimSpace(document.TagName) == "" {
		return "", failure.Malformed("fetch "+c.Name+" release", c.MetadataURL, "release metadata has no tag_name")
	}

	version, err := c.Parse(document.TagName)
	if err != nil {
		return "", failure.Malformed("parse "+c.Name+" tag", c.MetadataURL, "%v", err)
	}
	return version, nil
}

// Installed returns the version in the record file. A missing or empty
// record returns "" and no error.
func (c *Checker) Installed() (string, error) {
	data, err := os.ReadFile(c.RecordPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s version record: %w", c.Name, err)
	}
	return lastLine(string(data)), nil
}

// Check reports whether the latest release differs from the record.
// It never writes the record.
func (c *Checker) Check(ctx context.Context) (bool, string, error) {
	latest, err := c.Latest(ctx)
	if err != nil {
		return false, "", err
	}
	installed, err := c.Installed()
	if err != nil {
		return false, "", err
	}

	newer := latest != installed
	if newer {
		c.Logger.Info("new release available",
			"artifact", c.Name,
			"installed", installed,
			"latest", latest,
		)
	} else {
		c.Logger.Debug("release up to date", "artifact", c.Name, "version", latest)
	}
	return newer, latest, nil
}

// Commit records version as installed. The record holds the bare tag
// with no trailing newline.
func (c *Checker) Commit(version string) error {
	if err := os.MkdirAll(filepath.Dir(c.RecordPath), 0o755); err != nil {
		return fmt.Errorf("creating %s record directory: %w", c.Name, err)
	}
	if err := watchdog.WriteFile(c.RecordPath, []byte(version), 0o644); err != nil {
		return fmt.Errorf("writing %s version record: %w", c.Name, err)
	}
	return nil
}

// CheckLatest is Check followed by Commit when the release is new.
func (c *Checker) CheckLatest(ctx context.Context) (bool, string, error) {
	newer, version, err := c.Check(ctx)
	if err != nil || !newer {
		return newer, version, err
	}
	if err := c.Commit(version); err != nil {
		return false, version, err
	}
	return true, version, nil
}

// Forget removes the record so the next Check reports any release as
// new.
func (c *Checker) Forget() error {
	if err := os.Remove(c.RecordPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s version record: %w", c.Name, err)
	}
	return nil
}

func lastLine(content string) string {
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
