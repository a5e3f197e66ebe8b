// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"archive/tar"
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/bureau-foundation/signal-relay/lib/clock"
	"github.com/bureau-foundation/signal-relay/lib/netutil"
	"github.com/bureau-foundation/signal-relay/lib/release"
)

const (
	testProduct       = "signal-cli"
	testMember        = "libsignal_jni.so"
	testClientVersion = "0.13.4"
	testLibVersion    = "v0.47.0"
)

var (
	bundledLibrary  = bytes.Repeat([]byte("x86_64 build "), 500)
	releasedLibrary = bytes.Repeat([]byte("aarch64 build "), 500)
)

type tarEntry struct {
	name     string
	typeflag byte
	mode     int64
	contents []byte
	linkname string
}

func tarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buffer bytes.Buffer
	compressor := gzip.NewWriter(&buffer)
	writer := tar.NewWriter(compressor)
	for _, entry := range entries {
		typeflag := entry.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}
		header := &tar.Header{
			Name:     entry.name,
			Typeflag: typeflag,
			Mode:     entry.mode,
			Size:     int64(len(entry.contents)),
			Linkname: entry.linkname,
			ModTime:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		}
		if typeflag != tar.TypeReg {
			header.Size = 0
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatal(err)
		}
		if typeflag == tar.TypeReg {
			if _, err := writer.Write(entry.contents); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := compressor.Close(); err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func clientJar(t *testing.T) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for _, entry := range []struct {
		name     string
		contents []byte
	}{
		{"META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\n")},
		{testMember, bundledLibrary},
		{"org/signal/libsignal/internal/Native.class", []byte{0xca, 0xfe, 0xba, 0xbe}},
	} {
		destination, err := writer.Create(entry.name)
		if err != nil {
			t.Fatal(err)
		}
		destination.Write(entry.contents)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func clientBundle(t *testing.T, version string) []byte {
	t.Helper()
	root := testProduct + "-" + version
	return tarGz(t, []tarEntry{
		{name: root + "/", typeflag: tar.TypeDir, mode: 0o755},
		{name: root + "/bin/" + testProduct, mode: 0o755, contents: []byte("#!/bin/sh\nexit 0\n")},
		{name: root + "/lib/libsignal-client-0.47.0.jar", mode: 0o644, contents: clientJar(t)},
		{name: root + "/lib/signal-cli-" + version + ".jar", mode: 0o644, contents: []byte("not the library jar")},
	})
}

// releaseHost serves metadata and bundles for both artifacts.
type releaseHost struct {
	server *httptest.Server

	mu          sync.Mutex
	clientTag   string
	libraryTag  string
	failStatus  int
	requests    map[string]int
	clientBytes []byte
	libBytes    []byte
}

func newReleaseHost(t *testing.T) *releaseHost {
	host := &releaseHost{
		clientTag:   "v" + testClientVersion,
		libraryTag:  "libsignal_" + testLibVersion,
		requests:    make(map[string]int),
		clientBytes: clientBundle(t, testClientVersion),
		libBytes:    tarGz(t, []tarEntry{{name: testMember, mode: 0o644, contents: releasedLibrary}}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /client/latest", func(w http.ResponseWriter, r *http.Request) {
		host.serve(w, "client/latest", []byte(`{"tag_name":"`+host.tag(&host.clientTag)+`"}`))
	})
	mux.HandleFunc("GET /library/latest", func(w http.ResponseWriter, r *http.Request) {
		host.serve(w, "library/latest", []byte(`{"tag_name":"`+host.tag(&host.libraryTag)+`"}`))
	})
	mux.HandleFunc("GET /client/download/{version}", func(w http.ResponseWriter, r *http.Request) {
		host.serve(w, "client/download", host.clientBytes)
	})
	mux.HandleFunc("GET /library/download/{version}", func(w http.ResponseWriter, r *http.Request) {
		host.serve(w, "library/download", host.libBytes)
	})
	host.server = httptest.NewServer(mux)
	t.Cleanup(host.server.Close)
	return host
}

func (h *releaseHost) tag(field *string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *field
}

func (h *releaseHost) serve(w http.ResponseWriter, key string, body []byte) {
	h.mu.Lock()
	h.requests[key]++
	status := h.failStatus
	h.mu.Unlock()

	if status != 0 {
		http.Error(w, "unavailable", status)
		return
	}
	w.Write(body)
}

func (h *releaseHost) count(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[key]
}

func (h *releaseHost) setFailure(status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failStatus = status
}

type testEnv struct {
	installer *Installer
	host      *releaseHost
	clock     *clock.FakeClock
	root      string
	state     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	host := newReleaseHost(t)
	directory := t.TempDir()
	root := filepath.Join(directory, "opt")
	state := filepath.Join(directory, "state")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher := &netutil.Fetcher{UserAgent: "signal-relay/test"}
	fakeClock := clock.Fake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))

	installer := New(Config{
		InstallRoot: root,
		StateDir:    state,
		Product:     testProduct,
		JarPrefix:   "libsignal-client",
		Member:      testMember,
		Client: &release.Checker{
			Name:        "client",
			MetadataURL: host.server.URL + "/client/latest",
			RecordPath:  filepath.Join(state, "client.version"),
			Parse:       release.ClientTag,
			Fetcher:     fetcher,
			Logger:      logger,
		},
		Library: &release.Checker{
			Name:        "library",
			MetadataURL: host.server.URL + "/library/latest",
			RecordPath:  filepath.Join(state, "library.version"),
			Parse:       release.LibraryTag,
			Fetcher:     fetcher,
			Logger:      logger,
		},
		ClientBundle: func(version string) string {
			return host.server.URL + "/client/download/" + version + ".tar.gz"
		},
		LibraryBundle: func(version string) string {
			return host.server.URL + "/library/download/" + version + ".tar.gz"
		},
		Fetcher:         fetcher,
		RecheckInterval: time.Hour,
		Clock:           fakeClock,
		Logger:          logger,
	})

	return &testEnv{installer: installer, host: host, clock: fakeClock, root: root, state: state}
}
