// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ExtractTarGz unpacks a tar+gzip stream under destination. Entries
// whose names or link targets would land outside destination are
// rejected. Regular files keep their permission bits; device nodes,
// FIFOs and similar entries are skipped.
func ExtractTarGz(source io.Reader, destination string) error {
	destination, err := filepath.Abs(destination)
	if err != nil {
		return err
	}

	decompressor, err := gzip.NewReader(source)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer decompressor.Close()

	reader := tar.NewReader(decompressor)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		target, err := containedPath(destination, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, header, reader); err != nil {
				return err
			}
		case tar.TypeSymlink:
			linkTarget := header.Linkname
			if !filepath.IsAbs(linkTarget) {
				linkTarget = filepath.Join(filepath.Dir(target), linkTarget)
			}
			if _, err := containedPath(destination, mustRel(destination, linkTarget)); err != nil {
				return fmt.Errorf("symlink %s: %w", header.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		}
	}
}

// containedPath joins name under destination and rejects results that
// escape it.
func containedPath(destination, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid archive path %q: absolute", name)
	}
	target := filepath.Join(destination, name)
	if target != destination && !strings.HasPrefix(target, destination+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid archive path %q: escapes %s", name, destination)
	}
	return target, nil
}

// mustRel returns target relative to base, or target itself (which
// containedPath then rejects as absolute) when no relative path exists.
func mustRel(base, target string) string {
	relative, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return relative
}

func writeEntry(target string, header *tar.Header, reader io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	mode := os.FileMode(header.Mode).Perm()
	if mode == 0 {
		mode = 0o644
	}

	// Replace rather than truncate: a running client may have the old
	// file mapped.
	os.Remove(target)
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return file.Close()
}
