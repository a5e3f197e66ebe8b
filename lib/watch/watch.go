// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/signal-relay/lib/claim"
)

const (
	rootMask   = unix.IN_CREATE | unix.IN_MOVED_TO | unix.IN_ONLYDIR
	clientMask = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_ONLYDIR
)

// pollTimeoutMilliseconds bounds each poll(2) so the read loop notices
// cancellation.
const pollTimeoutMilliseconds = 100

// Watch watches the outbox tree at root until ctx is done. The returned
// channel is closed when the watcher stops.
func Watch(ctx context.Context, root string, logger *slog.Logger) (<-chan struct{}, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}

	w := &watcher{
		fd:     fd,
		root:   root,
		paths:  make(map[int32]string),
		wake:   make(chan struct{}, 1),
		logger: logger,
	}

	rootDescriptor, err := unix.InotifyAddWatch(fd, root, rootMask)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch on %s: %w", root, err)
	}
	w.rootDescriptor = int32(rootDescriptor)

	// Watch existing recipients after the root watch is in place, so a
	// directory created in between is seen by one or the other.
	entries, err := os.ReadDir(root)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.addClient(entry.Name())
		}
	}

	go w.loop(ctx)
	return w.wake, nil
}

type watcher struct {
	fd             int
	root           string
	rootDescriptor int32
	paths          map[int32]string
	wake           chan struct{}
	logger         *slog.Logger
}

func (w *watcher) addClient(name string) {
	path := filepath.Join(w.root, name)
	descriptor, err := unix.InotifyAddWatch(w.fd, path, clientMask)
	if err != nil {
		// The directory may have been removed already.
		w.logger.Debug("cannot watch recipient directory", "path", path, "error", err)
		return
	}
	w.paths[int32(descriptor)] = path
}

func (w *watcher) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) loop(ctx context.Context) {
	defer close(w.wake)
	defer unix.Close(w.fd)

	buffer := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	for {
		if ctx.Err() != nil {
			return
		}

		pollDescriptors := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, pollTimeoutMilliseconds)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			w.logger.Error("outbox watcher poll failed", "error", err)
			return
		}
		if count == 0 {
			continue
		}

		bytesRead, err := unix.Read(w.fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			w.logger.Error("outbox watcher read failed", "error", err)
			return
		}

		for _, event := range parseEvents(buffer[:bytesRead]) {
			w.handle(event)
		}
	}
}

func (w *watcher) handle(event event) {
	switch {
	case event.mask&unix.IN_Q_OVERFLOW != 0:
		// Events were dropped; a scan will find whatever they were.
		w.signal()

	case event.descriptor == w.rootDescriptor:
		if event.mask&unix.IN_ISDIR != 0 && event.name != "" {
			w.addClient(event.name)
			w.signal()
		}

	case event.mask&unix.IN_IGNORED != 0:
		delete(w.paths, event.descriptor)

	case event.mask&unix.IN_ISDIR == 0 && event.name != "" && !claim.IsLock(event.name):
		w.signal()
	}
}

type event struct {
	descriptor int32
	mask       uint32
	name       string
}

// parseEvents decodes a buffer of raw inotify events.
//
// Inotify event layout (from inotify(7)):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, padded to alignment
//	};
func parseEvents(buffer []byte) []event {
	var events []event
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}
		events = append(events, event{
			descriptor: int32(binary.NativeEndian.Uint32(buffer[offset : offset+4])),
			mask:       binary.NativeEndian.Uint32(buffer[offset+4 : offset+8]),
			name:       nullTerminatedString(buffer[offset+unix.SizeofInotifyEvent : offset+eventSize]),
		})
		offset += eventSize
	}
	return events
}

// nullTerminatedString extracts a string from a null-padded byte slice,
// stopping at the first null byte.
func nullTerminatedString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
