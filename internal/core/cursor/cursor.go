// Package cursor persists per-file resume state for tailed journal files.
// Each tailed file gets one small JSON document in a process-wide temp
// directory, keyed by a hash of its absolute path. Persistence is
// best-effort: a corrupt or missing document means "start from offset 0",
// and write failures are logged and swallowed.
package cursor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// State is the resume point for one journal file. ByteOffset is the first
// byte not yet consumed into a complete record.
type State struct {
	ByteOffset int64  `json:"byteOffset"`
	LineCount  int    `json:"lineCount"`
	LastUUID   string `json:"lastUuid"`
}

// Store reads and writes cursor documents.
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore creates a cursor store writing into dir. An empty dir selects the
// system temp directory.
func NewStore(dir string, log zerolog.Logger) *Store {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Store{
		dir: dir,
		log: log.With().Str("component", "cursor").Logger(),
	}
}

// Key derives the cursor key for a journal file path: the first 16 hex
// characters of the SHA-256 of the absolute path.
func Key(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

func (s *Store) file(path string) string {
	return filepath.Join(s.dir, fmt.Sprintf("claude-linear-cursor-%s.json", Key(path)))
}

// Load returns the persisted state for a journal file. The second return is
// false when no usable cursor exists; callers then start from offset zero.
func (s *Store) Load(path string) (State, bool) {
	data, err := os.ReadFile(s.file(path))
	if err != nil {
		return State{}, false
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Debug().Str("path", path).Err(err).Msg("discarding invalid cursor file")
		return State{}, false
	}

	return st, true
}

// Save persists the state for a journal file. Failures are logged and
// swallowed; losing a save costs at most a re-delivery after restart.
func (s *Store) Save(path string, st State) {
	data, err := json.Marshal(st)
	if err != nil {
		s.log.Warn().Str("path", path).Err(err).Msg("marshal cursor")
		return
	}

	if err := os.WriteFile(s.file(path), data, 0o644); err != nil {
		s.log.Warn().Str("path", path).Err(err).Msg("write cursor file")
	}
}
