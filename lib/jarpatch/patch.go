// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jarpatch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/bureau-foundation/signal-relay/lib/binhash"
	"github.com/bureau-foundation/signal-relay/lib/failure"
	"github.com/bureau-foundation/signal-relay/lib/watchdog"
)

// ScratchSuffix is appended to the jar path to name the scratch
// container.
const ScratchSuffix = ".tmp"

// ErrMemberNotFound is returned by MemberDigest when the container has
// no entry with the requested name.
var ErrMemberNotFound = errors.New("member not found")

// Result describes a completed Patch.
type Result struct {
	// Replaced is true when the member was found and the container was
	// swapped.
	Replaced bool

	// Entries is the number of entries in the container.
	Entries int
}

// ScratchPath returns the scratch container path for jarPath.
func ScratchPath(jarPath string) string {
	return jarPath + ScratchSuffix
}

// Patch rewrites jarPath with the entry named exactly member replaced by
// the contents of replacementPath.
func Patch(jarPath, member, replacementPath string) (Result, error) {
	reader, err := zip.OpenReader(jarPath)
	if err != nil {
		return Result{}, failure.Archive("open", jarPath, err)
	}
	defer reader.Close()

	result := Result{Entries: len(reader.File)}
	found := false
	for _, file := range reader.File {
		if file.Name == member {
			found = true
			break
		}
	}
	if !found {
		return result, nil
	}

	replacement, err := os.Open(replacementPath)
	if err != nil {
		return result, failure.Archive("open replacement", replacementPath, err)
	}
	defer replacement.Close()

	info, err := os.Stat(jarPath)
	if err != nil {
		return result, failure.Archive("stat", jarPath, err)
	}

	scratchPath := ScratchPath(jarPath)
	if err := writeScratch(scratchPath, info.Mode().Perm(), reader, member, replacement); err != nil {
		os.Remove(scratchPath)
		return result, failure.Archive("rewrite", jarPath, err)
	}

	if err := os.Rename(scratchPath, jarPath); err != nil {
		os.Remove(scratchPath)
		return result, failure.Archive("swap", jarPath, err)
	}
	watchdog.SyncDir(filepath.Dir(jarPath))

	result.Replaced = true
	return result, nil
}

// writeScratch builds the patched container at scratchPath.
func writeScratch(scratchPath string, mode os.FileMode, reader *zip.ReadCloser, member string, replacement io.Reader) error {
	scratch, err := os.OpenFile(scratchPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer scratch.Close()

	writer := zip.NewWriter(scratch)
	if err := writer.SetComment(reader.Comment); err != nil {
		return err
	}

	for _, file := range reader.File {
		if file.Name != member {
			if err := writer.Copy(file); err != nil {
				return fmt.Errorf("copying %s: %w", file.Name, err)
			}
			continue
		}

		header := replacementHeader(file.FileHeader)
		destination, err := writer.CreateHeader(&header)
		if err != nil {
			return fmt.Errorf("creating %s: %w", file.Name, err)
		}
		if _, err := io.Copy(destination, replacement); err != nil {
			return fmt.Errorf("writing %s: %w", file.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finishing container: %w", err)
	}
	if err := scratch.Sync(); err != nil {
		return fmt.Errorf("syncing container: %w", err)
	}
	return scratch.Close()
}

// replacementHeader derives the header for the substituted member from
// the original one. Sizes and CRC are recomputed by the writer. The
// zero Modified keeps the original MS-DOS date and time fields; the
// extended timestamp, if any, travels in Extra.
func replacementHeader(original zip.FileHeader) zip.FileHeader {
	header := original
	header.CRC32 = 0
	header.CompressedSize = 0
	header.UncompressedSize = 0
	header.CompressedSize64 = 0
	header.UncompressedSize64 = 0
	header.Modified = time.Time{}
	header.Extra = stripZip64(original.Extra)
	return header
}

// zip64ExtraID is the zip64 extended information extra field. The
// writer emits its own when the new member needs one.
const zip64ExtraID = 0x0001

func stripZip64(extra []byte) []byte {
	var kept []byte
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		if 4+size > len(extra) {
			// Malformed tail: keep it as it was.
			return append(kept, extra...)
		}
		if tag != zip64ExtraID {
			kept = append(kept, extra[:4+size]...)
		}
		extra = extra[4+size:]
	}
	return append(kept, extra...)
}

// MemberDigest returns the BLAKE3 digest of the uncompressed contents
// of member inside jarPath.
func MemberDigest(jarPath, member string) (binhash.Digest, error) {
	reader, err := zip.OpenReader(jarPath)
	if err != nil {
		return binhash.Digest{}, failure.Archive("open", jarPath, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != member {
			continue
		}
		contents, err := file.Open()
		if err != nil {
			return binhash.Digest{}, failure.Archive("open member", jarPath, err)
		}
		defer contents.Close()
		digest, err := binhash.HashReader(contents)
		if err != nil {
			return binhash.Digest{}, failure.Archive("read member", jarPath, err)
		}
		return digest, nil
	}
	return binhash.Digest{}, fmt.Errorf("%s in %s: %w", member, jarPath, ErrMemberNotFound)
}
