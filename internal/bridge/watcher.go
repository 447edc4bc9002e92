package bridge

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/relay/internal/core/cursor"
)

// WatcherConfig tunes the polling loop. Zero values select the defaults the
// agent's write cadence was measured against.
type WatcherConfig struct {
	SessionID   string
	ProjectsDir string

	PollInterval  time.Duration // idle sleep between sweeps (default 500ms)
	SaveInterval  time.Duration // wall-time cursor persist cadence (default 5s)
	SaveThreshold int           // per-file unsaved lines forcing a persist (default 10)
}

func (c *WatcherConfig) applyDefaults() {
	if c.ProjectsDir == "" {
		c.ProjectsDir = DefaultProjectsDir()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.SaveInterval <= 0 {
		c.SaveInterval = 5 * time.Second
	}
	if c.SaveThreshold <= 0 {
		c.SaveThreshold = 10
	}
}

// Watcher binds locator, tailer, emitter, and cursor store into the polling
// loop. Run blocks until the context is canceled, then drains every tailed
// file once and persists all cursors.
type Watcher struct {
	cfg     WatcherConfig
	tailer  *Tailer
	cursors *cursor.Store
	files   []*TailedFile
	scanner *SuccessorScanner
	log     zerolog.Logger
}

// NewWatcher creates a watcher. The emitter is reached through the tailer.
func NewWatcher(cfg WatcherConfig, tailer *Tailer, cursors *cursor.Store, log zerolog.Logger) *Watcher {
	cfg.applyDefaults()
	return &Watcher{
		cfg:     cfg,
		tailer:  tailer,
		cursors: cursors,
		log:     log.With().Str("component", "watcher").Str("session", cfg.SessionID).Logger(),
	}
}

// Run executes the main loop: wait for the session file, then sweep all
// tailed files, discover successors, and persist cursors on cadence.
func (w *Watcher) Run(ctx context.Context) error {
	w.tailer.AddSession(w.cfg.SessionID)

	initial, ok := w.awaitSessionFile(ctx)
	if !ok {
		return nil
	}

	w.adopt(initial)
	w.scanner = NewSuccessorScanner(filepath.Dir(initial), filepath.Base(initial), w.log)

	lastSave := time.Now()
	for ctx.Err() == nil {
		var total int64
		for _, f := range w.files {
			total += w.tailer.ReadNewLines(ctx, f)
		}

		for _, path := range w.scanner.Scan(time.Now(), w.tailer.Sessions()) {
			w.adopt(path)
		}

		if time.Since(lastSave) >= w.cfg.SaveInterval || w.anyPastThreshold() {
			w.persistCursors()
			lastSave = time.Now()
		}

		if total == 0 {
			if !sleep(ctx, w.cfg.PollInterval) {
				break
			}
		}
	}

	// Drain once so records written between the last sweep and the stop
	// signal still get projected, then persist everything.
	drainCtx := context.WithoutCancel(ctx)
	var lines int
	for _, f := range w.files {
		w.tailer.ReadNewLines(drainCtx, f)
		lines += f.lineCount
	}
	w.persistCursors()

	w.log.Info().Int("files", len(w.files)).Int("lines", lines).Msg("watcher stopped")
	return nil
}

// awaitSessionFile polls until the session's journal file exists or the
// context is canceled.
func (w *Watcher) awaitSessionFile(ctx context.Context) (string, bool) {
	for {
		if path, ok := FindSessionFile(w.cfg.ProjectsDir, w.cfg.SessionID); ok {
			return path, true
		}

		w.log.Debug().Str("dir", w.cfg.ProjectsDir).Msg("session file not found yet")
		if !sleep(ctx, w.cfg.PollInterval) {
			return "", false
		}
	}
}

// adopt starts tailing a journal file, resuming from its cursor when one is
// persisted.
func (w *Watcher) adopt(path string) {
	f := NewTailedFile(path)
	if st, ok := w.cursors.Load(path); ok {
		f.SeedCursor(st)
		w.log.Info().Str("path", path).Int64("offset", st.ByteOffset).Msg("resuming journal file from cursor")
	} else {
		w.log.Info().Str("path", path).Msg("tailing journal file")
	}

	w.files = append(w.files, f)
}

func (w *Watcher) anyPastThreshold() bool {
	for _, f := range w.files {
		if f.UnsavedLines() >= w.cfg.SaveThreshold {
			return true
		}
	}
	return false
}

func (w *Watcher) persistCursors() {
	for _, f := range w.files {
		if f.UnsavedLines() == 0 {
			continue
		}
		w.cursors.Save(f.Path, f.CursorState())
		f.MarkSaved()
	}
}

// sleep waits for d, returning false when the context is canceled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
