package bridge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/relay/internal/core/cursor"
	"github.com/colonyops/relay/internal/core/ratelimit"
)

type watcherHarness struct {
	projects  string
	cursorDir string
	client    *fakeTracker
	watcher   *Watcher
	cancel    context.CancelFunc
	done      chan struct{}
}

func newWatcherHarness(t *testing.T, projects, cursorDir string) *watcherHarness {
	t.Helper()

	client := &fakeTracker{}
	e := NewEmitter(sessionA, client, ratelimit.New(1_000_000, 1_000_000), nil, zerolog.Nop())
	tailer := NewTailer(e, zerolog.Nop())
	store := cursor.NewStore(cursorDir, zerolog.Nop())

	w := NewWatcher(WatcherConfig{
		SessionID:    sessionA,
		ProjectsDir:  projects,
		PollInterval: 10 * time.Millisecond,
	}, tailer, store, zerolog.Nop())

	return &watcherHarness{
		projects:  projects,
		cursorDir: cursorDir,
		client:    client,
		watcher:   w,
	}
}

func (h *watcherHarness) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})

	go func() {
		defer close(h.done)
		_ = h.watcher.Run(ctx)
	}()

	t.Cleanup(h.stop)
}

func (h *watcherHarness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %s", msg)
}

func TestWatcher_ResumeSkipsProcessedLines(t *testing.T) {
	projects := t.TempDir()
	cursorDir := t.TempDir()
	journalPath := filepath.Join(projects, "-home-u-repo", sessionA+".jsonl")

	writeFile(t, journalPath,
		`{"type":"summary","summary":"A"}`+"\n"+`{"type":"summary","summary":"B"}`+"\n")

	h := newWatcherHarness(t, projects, cursorDir)
	h.start(t)
	waitFor(t, 2*time.Second, func() bool { return len(h.client.Activities()) == 2 }, "A and B projected")
	h.stop()

	appendFile(t, journalPath, `{"type":"summary","summary":"C"}`+"\n")

	// Restart with a fresh client against the same cursor directory.
	h2 := newWatcherHarness(t, projects, cursorDir)
	h2.start(t)
	waitFor(t, 2*time.Second, func() bool { return len(h2.client.Activities()) == 1 }, "only C projected")
	h2.stop()

	acts := h2.client.Activities()
	require.Len(t, acts, 1)
	assert.Equal(t, "Context: C", acts[0].Content.Body)
}

func TestWatcher_WaitsForSessionFile(t *testing.T) {
	projects := t.TempDir()
	h := newWatcherHarness(t, projects, t.TempDir())
	h.start(t)

	// File appears only after the watcher started polling.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(projects, "-proj", sessionA+".jsonl"),
		`{"type":"summary","summary":"late"}`+"\n")

	waitFor(t, 2*time.Second, func() bool { return len(h.client.Activities()) == 1 }, "late file projected")
}

func TestWatcher_DrainsOnShutdown(t *testing.T) {
	projects := t.TempDir()
	journalPath := filepath.Join(projects, "-p", sessionA+".jsonl")
	writeFile(t, journalPath, `{"type":"summary","summary":"first"}`+"\n")

	h := newWatcherHarness(t, projects, t.TempDir())
	h.start(t)
	waitFor(t, 2*time.Second, func() bool { return len(h.client.Activities()) == 1 }, "first projected")

	// Appended just before shutdown; the final drain must still project it.
	appendFile(t, journalPath, `{"type":"summary","summary":"last"}`+"\n")
	h.stop()

	acts := h.client.Activities()
	require.Len(t, acts, 2)
	assert.Equal(t, "Context: last", acts[1].Content.Body)
}

func TestWatcher_AdoptsSuccessorFile(t *testing.T) {
	if testing.Short() {
		t.Skip("successor scan cadence is 3s")
	}

	projects := t.TempDir()
	dir := filepath.Join(projects, "-p")
	writeFile(t, filepath.Join(dir, sessionA+".jsonl"),
		`{"type":"summary","summary":"origin"}`+"\n")

	h := newWatcherHarness(t, projects, t.TempDir())
	h.start(t)
	waitFor(t, 2*time.Second, func() bool { return len(h.client.Activities()) == 1 }, "origin projected")

	// A successor whose first record links the watched session id.
	writeFile(t, filepath.Join(dir, sessionB+".jsonl"),
		`{"type":"summary","summary":"continued","sessionId":"`+sessionA+`"}`+"\n")

	waitFor(t, 6*time.Second, func() bool { return len(h.client.Activities()) == 2 }, "successor projected")

	acts := h.client.Activities()
	assert.Equal(t, "Context: continued", acts[1].Content.Body)
}
