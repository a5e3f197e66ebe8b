// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/signal-relay/lib/claim"
	"github.com/bureau-foundation/signal-relay/lib/clock"
	"github.com/bureau-foundation/signal-relay/lib/failure"
	"github.com/bureau-foundation/signal-relay/lib/testutil"
)

type dispatched struct {
	operation string
	recipient string
	text      string
	quoted    string
}

// fakeDispatcher records calls and fails the operations named in
// failures.
type fakeDispatcher struct {
	mu       sync.Mutex
	calls    []dispatched
	failures map[string]error
	onCall   func()
}

func (d *fakeDispatcher) record(call dispatched) error {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	err := d.failures[call.operation]
	onCall := d.onCall
	d.mu.Unlock()
	if onCall != nil {
		onCall()
	}
	return err
}

func (d *fakeDispatcher) Send(_ context.Context, recipient, text string) error {
	return d.record(dispatched{operation: "send", recipient: recipient, text: text})
}

func (d *fakeDispatcher) SendAttachment(_ context.Context, recipient, path string) error {
	return d.record(dispatched{operation: "attachment", recipient: recipient, text: path})
}

func (d *fakeDispatcher) SendReply(_ context.Context, recipient, text, quoted string) error {
	return d.record(dispatched{operation: "reply", recipient: recipient, text: text, quoted: quoted})
}

func (d *fakeDispatcher) recorded() []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatched(nil), d.calls...)
}

type testMailbox struct {
	root        string
	outbox      string
	deadLetters string
}

func newMailbox(t *testing.T) testMailbox {
	root := t.TempDir()
	return testMailbox{
		root:        root,
		outbox:      filepath.Join(root, "to-send"),
		deadLetters: filepath.Join(root, "failed"),
	}
}

func (m testMailbox) put(t *testing.T, client, name, content string) string {
	t.Helper()
	path := filepath.Join(m.outbox, client, name)
	testutil.WriteFile(t, path, content)
	return path
}

func newScanner(m testMailbox, dispatcher Dispatcher) *Scanner {
	return New(m.outbox, m.deadLetters, dispatcher,
		clock.Fake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFlushDispatchesEachKind(t *testing.T) {
	mailbox := newMailbox(t)
	message := mailbox.put(t, "+15552223333", "1.message", "Hello\nsecond line")
	attachment := mailbox.put(t, "+15552223333", "2.attachment", "  /srv/photos/cat.jpg\n")
	reply := mailbox.put(t, "+15554445555", "3.reply", "1700000000000\nHello there")

	dispatcher := &fakeDispatcher{}
	stats, err := newScanner(mailbox, dispatcher).Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if stats.Dispatched != 3 || stats.Skipped != 0 || stats.DeadLettered != 0 {
		t.Errorf("stats = %+v, want 3 dispatched", stats)
	}

	byOperation := make(map[string]dispatched)
	for _, call := range dispatcher.recorded() {
		byOperation[call.operation] = call
	}
	if got := byOperation["send"]; got.recipient != "+15552223333" || got.text != "Hello\nsecond line" {
		t.Errorf("send = %+v", got)
	}
	if got := byOperation["attachment"]; got.recipient != "+15552223333" || got.text != "/srv/photos/cat.jpg" {
		t.Errorf("attachment = %+v", got)
	}
	if got := byOperation["reply"]; got.recipient != "+15554445555" || got.quoted != "1700000000000" || got.text != "Hello there" {
		t.Errorf("reply = %+v", got)
	}

	for _, path := range []string{message, attachment, reply} {
		testutil.RequireMissing(t, path)
		testutil.RequireMissing(t, claim.LockPath(path))
	}
}

func TestFlushSkipsClaimedEntries(t *testing.T) {
	mailbox := newMailbox(t)
	payload := mailbox.put(t, "+15552223333", "1.message", "held elsewhere")
	testutil.WriteFile(t, claim.LockPath(payload), "")

	dispatcher := &fakeDispatcher{}
	stats, err := newScanner(mailbox, dispatcher).Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if stats.Skipped != 1 || stats.Dispatched != 0 {
		t.Errorf("stats = %+v, want 1 skipped", stats)
	}
	if len(dispatcher.recorded()) != 0 {
		t.Error("claimed entry was dispatched")
	}
	testutil.RequireExists(t, payload)
	testutil.RequireExists(t, claim.LockPath(payload))
}

func TestFlushConcurrentScannersDispatchOnce(t *testing.T) {
	mailbox := newMailbox(t)
	for i := range 20 {
		mailbox.put(t, "+15552223333", time.Unix(int64(1700000000+i), 0).Format("20060102150405")+".message", "m")
	}

	dispatcher := &fakeDispatcher{}
	var wait sync.WaitGroup
	totals := make([]FlushStats, 4)
	for i := range totals {
		wait.Add(1)
		go func() {
			defer wait.Done()
			stats, err := newScanner(mailbox, dispatcher).Flush(context.Background())
			if err != nil {
				t.Errorf("Flush: %v", err)
			}
			totals[i] = stats
		}()
	}
	wait.Wait()

	dispatchedTotal := 0
	for _, stats := range totals {
		dispatchedTotal += stats.Dispatched
	}
	if dispatchedTotal != 20 {
		t.Errorf("dispatched %d in total across scanners, want 20", dispatchedTotal)
	}
	if calls := len(dispatcher.recorded()); calls != 20 {
		t.Errorf("dispatcher saw %d sends, want exactly 20", calls)
	}
}

func TestFlushDeadLetters(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		failures map[string]error
	}{
		{"reply without newline", "1.reply", "1700000000000 no newline", nil},
		{"reply with empty timestamp", "2.reply", "\nbody", nil},
		{"empty attachment path", "3.attachment", "  \n", nil},
		{"message dispatch failure", "4.message", "hi", map[string]error{"send": failure.Dispatch("send message", errors.New("exit status 1"))}},
		{"reply dispatch failure", "5.reply", "1\nhi", map[string]error{"reply": failure.Dispatch("send reply", errors.New("exit status 1"))}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			mailbox := newMailbox(t)
			payload := mailbox.put(t, "+15552223333", test.file, test.content)

			stats, err := newScanner(mailbox, &fakeDispatcher{failures: test.failures}).Flush(context.Background())
			if err != nil {
				t.Fatalf("Flush should not escalate a single bad entry: %v", err)
			}
			if stats.DeadLettered != 1 {
				t.Errorf("stats = %+v, want 1 dead-lettered", stats)
			}
			testutil.RequireMissing(t, payload)
			testutil.RequireMissing(t, claim.LockPath(payload))
			deadLetter := filepath.Join(mailbox.deadLetters, "+15552223333", test.file)
			if got := testutil.ReadFile(t, deadLetter); got != test.content {
				t.Errorf("dead letter content = %q, want %q", got, test.content)
			}
		})
	}
}

func TestFlushDeadLetterKeepsEarlierFailure(t *testing.T) {
	mailbox := newMailbox(t)
	dispatcher := &fakeDispatcher{failures: map[string]error{
		"send": failure.Dispatch("send message", errors.New("exit status 1")),
	}}
	scanner := newScanner(mailbox, dispatcher)

	for _, content := range []string{"first message", "second message", "third message"} {
		mailbox.put(t, "+15552223333", "1.message", content)
		stats, err := scanner.Flush(context.Background())
		if err != nil {
			t.Fatalf("Flush: %v", err)
		}
		if stats.DeadLettered != 1 {
			t.Fatalf("stats = %+v, want 1 dead-lettered", stats)
		}
	}

	deadLetters, err := List(mailbox.deadLetters)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	contents := make(map[string]bool)
	for _, entry := range deadLetters {
		if entry.Kind != KindMessage {
			t.Errorf("dead letter %s has kind %q, want message", entry.Name, entry.Kind)
		}
		contents[testutil.ReadFile(t, entry.Path)] = true
	}
	if len(deadLetters) != 3 || !contents["first message"] || !contents["second message"] || !contents["third message"] {
		t.Errorf("dead letters = %+v, want all three payloads kept", deadLetters)
	}
	original := filepath.Join(mailbox.deadLetters, "+15552223333", "1.message")
	if got := testutil.ReadFile(t, original); got != "first message" {
		t.Errorf("first dead letter = %q, want it untouched", got)
	}
}

func TestFlushAbandonsFailedAttachment(t *testing.T) {
	mailbox := newMailbox(t)
	payload := mailbox.put(t, "+15552223333", "1.attachment", "/srv/photos/cat.jpg")

	terminal := failure.Dispatch("send attachment", errors.New("5 attempts failed"))
	terminal.Notified = true
	dispatcher := &fakeDispatcher{failures: map[string]error{"attachment": terminal}}

	stats, err := newScanner(mailbox, dispatcher).Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if stats.Abandoned != 1 || stats.DeadLettered != 0 {
		t.Errorf("stats = %+v, want 1 abandoned", stats)
	}
	testutil.RequireMissing(t, payload)
	testutil.RequireMissing(t, claim.LockPath(payload))
	testutil.RequireMissing(t, filepath.Join(mailbox.deadLetters, "+15552223333", "1.attachment"))
}

func TestFlushStopsOnEscalation(t *testing.T) {
	mailbox := newMailbox(t)
	first := mailbox.put(t, "+15552223333", "1.message", "a")
	second := mailbox.put(t, "+15552223333", "2.message", "b")

	unreachable := failure.Transport("fetch client release", "https://example.invalid", errors.New("no route"))
	dispatcher := &fakeDispatcher{failures: map[string]error{"send": unreachable}}

	stats, err := newScanner(mailbox, dispatcher).Flush(context.Background())
	if !errors.Is(err, failure.ErrTransportFailure) {
		t.Fatalf("expected escalated transport failure, got %v", err)
	}
	if !failure.Escalate(err) {
		t.Error("flush error should escalate")
	}
	if len(dispatcher.recorded()) != 1 {
		t.Errorf("dispatched %d entries after escalation, want 1", len(dispatcher.recorded()))
	}
	if stats.Dispatched != 0 || stats.DeadLettered != 0 {
		t.Errorf("stats = %+v", stats)
	}
	for _, path := range []string{first, second} {
		testutil.RequireExists(t, path)
		testutil.RequireMissing(t, claim.LockPath(path))
	}
}

func TestFlushIgnoresUnknownKinds(t *testing.T) {
	mailbox := newMailbox(t)
	unknown := mailbox.put(t, "+15552223333", "notes.txt", "not for sending")
	mailbox.put(t, "+15552223333", "1.message", "real")
	testutil.WriteFile(t, filepath.Join(mailbox.outbox, "stray-file"), "top-level file")

	dispatcher := &fakeDispatcher{}
	stats, err := newScanner(mailbox, dispatcher).Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if stats.Dispatched != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 1 dispatched and 1 skipped", stats)
	}
	testutil.RequireExists(t, unknown)
	testutil.RequireMissing(t, claim.LockPath(unknown))
}

func TestFlushMissingRoot(t *testing.T) {
	mailbox := newMailbox(t)
	stats, err := newScanner(mailbox, &fakeDispatcher{}).Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush on missing outbox: %v", err)
	}
	if stats != (FlushStats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestFlushCancellation(t *testing.T) {
	mailbox := newMailbox(t)
	mailbox.put(t, "+15552223333", "1.message", "a")
	mailbox.put(t, "+15552223333", "2.message", "b")

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &fakeDispatcher{onCall: cancel}

	stats, err := newScanner(mailbox, dispatcher).Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(dispatcher.recorded()) != 1 {
		t.Errorf("dispatched %d entries after cancellation, want 1", len(dispatcher.recorded()))
	}
	// The first send returned nil before the flush noticed the
	// cancellation, so it completed normally.
	if stats.Dispatched != 1 {
		t.Errorf("stats = %+v, want 1 dispatched", stats)
	}
	remaining, err := List(mailbox.outbox)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].Claimed {
		t.Errorf("remaining = %+v, want one unclaimed entry", remaining)
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		content    string
		wantQuoted string
		wantBody   string
		wantErr    bool
	}{
		{"1700000000000\nHello there", "1700000000000", "Hello there", false},
		{"1700000000000\r\nHello", "1700000000000", "Hello", false},
		{"1700000000000\nline one\nline two", "1700000000000", "line one\nline two", false},
		{"1700000000000\n", "1700000000000", "", false},
		{"no newline", "", "", true},
		{"   \nbody", "", "", true},
	}

	for _, test := range tests {
		quoted, body, err := ParseReply(test.content)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseReply(%q) err = %v, wantErr %v", test.content, err, test.wantErr)
			continue
		}
		if quoted != test.wantQuoted || body != test.wantBody {
			t.Errorf("ParseReply(%q) = (%q, %q), want (%q, %q)", test.content, quoted, body, test.wantQuoted, test.wantBody)
		}
	}
}

func TestList(t *testing.T) {
	mailbox := newMailbox(t)
	claimed := mailbox.put(t, "+1", "1.message", "a")
	mailbox.put(t, "+1", "2.reply", "1\nb")
	mailbox.put(t, "+2", "3.bin", "c")
	if err := os.MkdirAll(filepath.Join(mailbox.outbox, "+2", "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	held, err := claim.Acquire(claim.LockPath(claimed), clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	entries, err := List(mailbox.outbox)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}
	for _, entry := range entries {
		switch entry.Name {
		case "1.message":
			if !entry.Claimed || !entry.ClaimedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("claimed entry = %+v", entry)
			}
		case "2.reply":
			if entry.Claimed || entry.Kind != KindReply {
				t.Errorf("reply entry = %+v", entry)
			}
		case "3.bin":
			if entry.Kind != "" {
				t.Errorf("unknown kind parsed as %q", entry.Kind)
			}
		}
	}
}
