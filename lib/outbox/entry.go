// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package outbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/signal-relay/lib/claim"
)

// Kind is the payload kind, taken from the file extension.
type Kind string

const (
	KindMessage    Kind = "message"
	KindAttachment Kind = "attachment"
	KindReply      Kind = "reply"
)

// ParseKind maps a file name to its payload kind.
func ParseKind(name string) (Kind, bool) {
	switch Kind(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case KindMessage:
		return KindMessage, true
	case KindAttachment:
		return KindAttachment, true
	case KindReply:
		return KindReply, true
	}
	return "", false
}

// Entry is one payload file in a mailbox tree.
type Entry struct {
	// Client is the recipient, the name of the parent directory.
	Client string

	// Name is the payload file name.
	Name string

	// Path is the payload's full path.
	Path string

	// Kind is empty for unrecognized extensions.
	Kind Kind

	// Claimed is true when a lock sibling exists.
	Claimed bool

	// ClaimedAt is the claim time from the lock record, when claimed.
	ClaimedAt time.Time

	// ModTime is the payload's modification time.
	ModTime time.Time
}

// List returns the payload files under root, which has the
// <client>/<file> layout of to-send/ and failed/. A missing root is
// empty. Lock files are reported through their payload's Claimed
// field rather than as entries.
func List(root string) ([]Entry, error) {
	clients, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, client := range clients {
		if !client.IsDir() {
			continue
		}
		clientDir := filepath.Join(root, client.Name())
		files, err := os.ReadDir(clientDir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return entries, err
		}
		for _, file := range files {
			if file.IsDir() || claim.IsLock(file.Name()) {
				continue
			}
			entry := Entry{
				Client: client.Name(),
				Name:   file.Name(),
				Path:   filepath.Join(clientDir, file.Name()),
			}
			entry.Kind, _ = ParseKind(file.Name())
			if info, err := file.Info(); err == nil {
				entry.ModTime = info.ModTime()
			}
			if record, err := claim.Read(claim.LockPath(entry.Path)); err == nil {
				entry.Claimed = true
				entry.ClaimedAt = record.ClaimedAt
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
