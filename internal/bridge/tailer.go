package bridge

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/colonyops/relay/internal/core/cursor"
	"github.com/colonyops/relay/internal/core/journal"
)

// TailedFile is the read state of one journal file being followed: the byte
// offset, any residual partial line, and the counters persisted through
// the cursor store. The partial-line buffer is in-memory only; the persisted
// offset always points at the first byte not yet consumed into a complete
// record.
type TailedFile struct {
	Path string

	offset    int64
	partial   []byte
	lineCount int
	lastUUID  string
	unsaved   int
}

// NewTailedFile creates a tail state starting at offset zero.
func NewTailedFile(path string) *TailedFile {
	return &TailedFile{Path: path}
}

// SeedCursor resumes the file from a persisted cursor.
func (f *TailedFile) SeedCursor(st cursor.State) {
	f.offset = st.ByteOffset
	f.lineCount = st.LineCount
	f.lastUUID = st.LastUUID
}

// CursorState returns the state to persist for this file.
func (f *TailedFile) CursorState() cursor.State {
	return cursor.State{
		ByteOffset: f.offset,
		LineCount:  f.lineCount,
		LastUUID:   f.lastUUID,
	}
}

// UnsavedLines returns how many lines were processed since the last cursor
// save.
func (f *TailedFile) UnsavedLines() int {
	return f.unsaved
}

// MarkSaved resets the unsaved-line counter after a cursor save.
func (f *TailedFile) MarkSaved() {
	f.unsaved = 0
}

// Tailer reads appended journal bytes and feeds complete records to the
// emitter. It also maintains the known-sessions set the successor scanner
// matches against.
type Tailer struct {
	emitter  *Emitter
	sessions map[string]struct{}
	log      zerolog.Logger
}

// NewTailer creates a tailer feeding the given emitter.
func NewTailer(emitter *Emitter, log zerolog.Logger) *Tailer {
	return &Tailer{
		emitter:  emitter,
		sessions: make(map[string]struct{}),
		log:      log.With().Str("component", "tailer").Logger(),
	}
}

// AddSession seeds the known-sessions set, normally with the session id the
// watcher was started for.
func (t *Tailer) AddSession(id string) {
	t.sessions[id] = struct{}{}
}

// Sessions exposes the known-sessions set for successor scanning.
func (t *Tailer) Sessions() map[string]struct{} {
	return t.sessions
}

// ReadNewLines consumes bytes appended to the file since the last call and
// submits every complete record to the emitter. It returns the number of
// new bytes read; a file that did not grow reads zero. A trailing line not
// yet terminated by a newline is carried in the partial buffer and the offset
// is rolled back over it, so a resume from the persisted cursor re-covers
// those bytes while the next in-process read continues after them.
func (t *Tailer) ReadNewLines(ctx context.Context, f *TailedFile) int64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}

	// The partial buffer already holds the bytes between the offset and
	// start; only what lies beyond them is new.
	start := f.offset + int64(len(f.partial))
	size := info.Size()
	if size <= start {
		return 0
	}

	chunk, err := readRange(f.Path, start, size)
	if err != nil {
		t.log.Warn().Err(err).Str("path", f.Path).Msg("read journal chunk")
		return 0
	}
	read := int64(len(chunk))

	data := append(f.partial, chunk...)
	f.partial = nil
	f.offset = start + read

	lines := bytes.Split(data, []byte("\n"))
	if len(data) > 0 && data[len(data)-1] != '\n' {
		// The final element is an unterminated partial line: hold it back
		// and re-cover its bytes on the next read.
		last := lines[len(lines)-1]
		f.partial = append([]byte(nil), last...)
		f.offset -= int64(len(last))
		lines = lines[:len(lines)-1]
	} else {
		// Newline-terminated data splits into a final empty element, which
		// is not a partial line.
		lines = lines[:len(lines)-1]
	}

	for _, raw := range lines {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		rec, err := journal.Decode(line)
		if err != nil {
			t.log.Debug().Err(err).Str("path", f.Path).Msg("dropping malformed journal line")
			continue
		}

		f.lineCount++
		f.unsaved++
		if rec.UUID != "" {
			f.lastUUID = rec.UUID
		}
		if rec.SessionID != "" {
			t.sessions[rec.SessionID] = struct{}{}
		}

		t.emitter.Process(ctx, rec)
	}

	return read
}

// readRange reads bytes [from, to) of a file.
func readRange(path string, from, to int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(from, io.SeekStart); err != nil {
		return nil, err
	}

	return io.ReadAll(io.LimitReader(file, to-from))
}
