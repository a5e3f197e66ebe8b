// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/signal-relay/lib/binhash"
	"github.com/bureau-foundation/signal-relay/lib/clock"
	"github.com/bureau-foundation/signal-relay/lib/failure"
	"github.com/bureau-foundation/signal-relay/lib/jarpatch"
	"github.com/bureau-foundation/signal-relay/lib/netutil"
	"github.com/bureau-foundation/signal-relay/lib/release"
	"github.com/bureau-foundation/signal-relay/lib/watchdog"
)

// Config holds everything an Installer needs.
type Config struct {
	// InstallRoot receives extracted bundles.
	InstallRoot string

	// StateDir holds the patch watchdog and in-flight downloads.
	StateDir string

	// Product names the client: releases extract to
	// <InstallRoot>/<Product>-<version>/bin/<Product>.
	Product string

	// JarPrefix selects the jar to patch in the client's lib/ by the
	// first len(JarPrefix) characters of its name.
	JarPrefix string

	// Member is the native library's name, both inside the jar and
	// under InstallRoot.
	Member string

	Client          *release.Checker
	Library         *release.Checker
	ClientBundle    func(version string) string
	LibraryBundle   func(version string) string
	Fetcher         *netutil.Fetcher
	RecheckInterval time.Duration
	Clock           clock.Clock
	Logger          *slog.Logger
}

// Installer installs client and library releases and resolves the
// client binary path.
type Installer struct {
	config Config

	mu         sync.Mutex
	cachedPath string
	cachedAt   time.Time
}

// New returns an Installer for config.
func New(config Config) *Installer {
	return &Installer{config: config}
}

// WatchdogPath returns the path of the patch watchdog file.
func (i *Installer) WatchdogPath() string {
	return filepath.Join(i.config.StateDir, "patch.watchdog")
}

// BinaryPathFor returns the client binary path for version.
func (i *Installer) BinaryPathFor(version string) string {
	return filepath.Join(i.config.InstallRoot, i.config.Product+"-"+version, "bin", i.config.Product)
}

// LibraryPath returns where the extracted native library lives.
func (i *Installer) LibraryPath() string {
	return filepath.Join(i.config.InstallRoot, i.config.Member)
}

// BinaryPath returns the client binary to invoke, installing a new
// release first when one is available. Resolutions are reused for
// RecheckInterval.
func (i *Installer) BinaryPath(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.config.Clock.Now()
	if i.cachedPath != "" && now.Sub(i.cachedAt) < i.config.RecheckInterval {
		return i.cachedPath, nil
	}

	path, err := i.ensureInstalled(ctx)
	if err != nil {
		return "", err
	}
	i.cachedPath = path
	i.cachedAt = now
	return path, nil
}

// EnsureInstalled installs the latest client release if it differs
// from the recorded one or if the recorded one is missing from disk,
// and returns the client binary path. It bypasses the BinaryPath cache.
func (i *Installer) EnsureInstalled(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	path, err := i.ensureInstalled(ctx)
	if err == nil {
		i.cachedPath = path
		i.cachedAt = i.config.Clock.Now()
	}
	return path, err
}

func (i *Installer) ensureInstalled(ctx context.Context) (string, error) {
	logger := i.config.Logger

	newer, version, err := i.config.Client.Check(ctx)
	if err != nil {
		installed, path, ok := i.installedClient()
		if ok && failure.KindOf(err) == failure.TransportFailure {
			logger.Warn("release check failed, using installed client",
				"version", installed,
				"error", err,
			)
			return path, nil
		}
		return "", err
	}

	path := i.BinaryPathFor(version)
	if !newer && fileExists(path) {
		// The library is versioned independently of the client.
		if err := i.ReplaceLibrary(ctx, version); err != nil {
			return "", err
		}
		return path, nil
	}

	logger.Info("installing client", "version", version, "reinstall", !newer)
	if err := i.installBundle(ctx, i.config.ClientBundle(version), i.config.Product+"-"+version); err != nil {
		return "", err
	}
	if !fileExists(path) {
		return "", failure.Archive("install client", path, errors.New("bundle did not contain the client binary"))
	}
	if err := i.ReplaceLibrary(ctx, version); err != nil {
		return "", err
	}
	if err := i.config.Client.Commit(version); err != nil {
		return "", err
	}
	logger.Info("client installed", "version", version, "path", path)
	return path, nil
}

// installedClient returns the recorded client version and its binary
// path when that binary is on disk.
func (i *Installer) installedClient() (string, string, bool) {
	version, err := i.config.Client.Installed()
	if err != nil || version == "" {
		return "", "", false
	}
	path := i.BinaryPathFor(version)
	return version, path, fileExists(path)
}

// ReplaceLibrary refreshes the native library bundle if a new one is
// published, then patches it into the client jar of clientVersion
// unless the jar already carries identical bytes.
func (i *Installer) ReplaceLibrary(ctx context.Context, clientVersion string) error {
	logger := i.config.Logger
	replacement := i.LibraryPath()

	newer, libraryVersion, err := i.config.Library.Check(ctx)
	switch {
	case err != nil && failure.KindOf(err) == failure.TransportFailure && fileExists(replacement):
		logger.Warn("library release check failed, using extracted library", "error", err)
		libraryVersion, _ = i.config.Library.Installed()
	case err != nil:
		return err
	case newer || !fileExists(replacement):
		logger.Info("installing native library", "version", libraryVersion)
		if err := i.installBundle(ctx, i.config.LibraryBundle(libraryVersion), i.config.Member); err != nil {
			return err
		}
		if !fileExists(replacement) {
			return failure.Archive("install library", replacement, errors.New("bundle did not contain the native library"))
		}
		if err := i.config.Library.Commit(libraryVersion); err != nil {
			return err
		}
	}

	libDir := filepath.Join(i.config.InstallRoot, i.config.Product+"-"+clientVersion, "lib")
	jarPath, err := findJar(libDir, i.config.JarPrefix)
	if err != nil {
		return failure.Archive("find jar", libDir, err)
	}

	current, err := jarpatch.MemberDigest(jarPath, i.config.Member)
	if errors.Is(err, jarpatch.ErrMemberNotFound) {
		logger.Warn("jar has no native library member, leaving it unpatched",
			"jar", jarPath,
			"member", i.config.Member,
		)
		return nil
	}
	if err != nil {
		return err
	}
	wanted, err := binhash.HashFile(replacement)
	if err != nil {
		return failure.Archive("hash library", replacement, err)
	}
	if current == wanted {
		logger.Debug("jar already carries the native library", "jar", jarPath)
		return nil
	}

	return i.patch(jarPath, replacement, clientVersion, libraryVersion)
}

// patch swaps the jar member under the watchdog.
func (i *Installer) patch(jarPath, replacement, clientVersion, libraryVersion string) error {
	state := watchdog.State{
		Component: i.config.Member,
		Target:    jarPath,
		Scratch:   jarpatch.ScratchPath(jarPath),
		Version:   clientVersion,
		Timestamp: i.config.Clock.Now().UTC(),
	}
	if err := os.MkdirAll(i.config.StateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := watchdog.Write(i.WatchdogPath(), state); err != nil {
		return fmt.Errorf("writing patch watchdog: %w", err)
	}

	result, err := jarpatch.Patch(jarPath, i.config.Member, replacement)
	if err != nil {
		return err
	}
	if err := watchdog.Clear(i.WatchdogPath()); err != nil {
		return fmt.Errorf("clearing patch watchdog: %w", err)
	}

	i.config.Logger.Info("patched native library into jar",
		"jar", jarPath,
		"library_version", libraryVersion,
		"entries", result.Entries,
		"replaced", result.Replaced,
	)
	return nil
}

// installBundle downloads url to a scratch file in the state directory
// and extracts it under the installation root.
func (i *Installer) installBundle(ctx context.Context, url, name string) error {
	downloads := filepath.Join(i.config.StateDir, "downloads")
	if err := os.MkdirAll(downloads, 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	scratch, err := os.CreateTemp(downloads, name+"-*.tar.gz")
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}
	defer os.Remove(scratch.Name())
	defer scratch.Close()

	written, err := i.config.Fetcher.Download(ctx, url, scratch)
	if err != nil {
		return failure.Transport("download "+name, url, err)
	}
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding download: %w", err)
	}
	i.config.Logger.Debug("bundle downloaded", "url", url, "bytes", written)

	if err := os.MkdirAll(i.config.InstallRoot, 0o755); err != nil {
		return fmt.Errorf("creating installation root: %w", err)
	}
	if err := ExtractTarGz(scratch, i.config.InstallRoot); err != nil {
		return failure.Archive("extract "+name, url, err)
	}
	return nil
}

// findJar returns the first file in directory whose name starts with
// prefix and is longer than it, in directory order.
func findJar(directory, prefix string) (string, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() && len(name) > len(prefix) && strings.HasPrefix(name, prefix) {
			return filepath.Join(directory, name), nil
		}
	}
	return "", fmt.Errorf("no file starting with %q: %w", prefix, fs.ErrNotExist)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
