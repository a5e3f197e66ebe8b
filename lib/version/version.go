// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags at build time, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/signal-relay/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Empty values fall back to the VCS stamp the go tool embeds.
var (
	GitCommit = ""
	GitDirty  = ""
	BuildTime = ""

	// Version is set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns "<version> (<commit>[-dirty], <build time>)" for
// --version output.
func Info() string {
	commit, dirty, built := stamp()
	if dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, built)
}

// Full returns Info plus the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// UserAgent returns the HTTP User-Agent sent to release hosts.
func UserAgent() string {
	return "signal-relay/" + Version
}

// stamp merges the ldflags values with the embedded VCS settings.
func stamp() (commit string, dirty bool, built string) {
	commit, dirty, built = GitCommit, GitDirty == "true", BuildTime
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "" {
					commit = setting.Value[:min(len(setting.Value), 7)]
				}
			case "vcs.modified":
				if GitDirty == "" {
					dirty = setting.Value == "true"
				}
			case "vcs.time":
				if built == "" {
					built = setting.Value
				}
			}
		}
	}
	if commit == "" {
		commit = "unknown"
	}
	if built == "" {
		built = "unknown"
	}
	return commit, dirty, built
}
