// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"strings"
)

// TagParser turns a raw release tag into the version string used in
// records and download URLs.
type TagParser func(tag string) (string, error)

// ClientTag strips quoting and a leading "v": "v0.13.4" becomes
// "0.13.4".
func ClientTag(tag string) (string, error) {
	version := strings.TrimPrefix(unquote(tag), "v")
	if version == "" {
		return "", fmt.Errorf("empty version in tag %q", tag)
	}
	return version, nil
}

// LibraryTag takes the part after the first underscore and strips
// quoting: "libsignal_v0.47.0" becomes "v0.47.0".
func LibraryTag(tag string) (string, error) {
	_, version, found := strings.Cut(unquote(tag), "_")
	if !found {
		return "", fmt.Errorf("tag %q has no underscore-delimited prefix", tag)
	}
	version = unquote(version)
	if version == "" {
		return "", fmt.Errorf("empty version in tag %q", tag)
	}
	return version, nil
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
