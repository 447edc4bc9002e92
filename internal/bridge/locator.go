package bridge

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// sessionFileRe matches the UUID-shaped basenames of main session journal
// files. Subagent journals (agent-*.jsonl) and everything else fall outside.
var sessionFileRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.jsonl$`)

const (
	scanInterval  = 3 * time.Second
	scanHeadBytes = 32 * 1024
	scanHeadLines = 5
)

// DefaultProjectsDir returns the agent's project journal root.
func DefaultProjectsDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "projects")
}

// FindSessionFile searches the projects directory for the journal file of a
// session id. The agent keys its project subdirectories by encoded workspace
// path, so the session file can sit under any of them.
func FindSessionFile(projectsDir, sessionID string) (string, bool) {
	matches, err := doublestar.FilepathGlob(filepath.Join(projectsDir, "*", sessionID+".jsonl"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// SuccessorScanner discovers journal files linked to an already-watched
// session: sibling UUID-named files whose first records carry a known session
// id. Every candidate is examined at most once; a file that gains a linking
// record only after its first scan stays unadopted.
type SuccessorScanner struct {
	dir      string
	checked  map[string]struct{}
	lastScan time.Time
	log      zerolog.Logger
}

// NewSuccessorScanner creates a scanner over the directory of the initial
// session file. The initial file's basename is pre-marked as checked.
func NewSuccessorScanner(dir, initialBase string, log zerolog.Logger) *SuccessorScanner {
	return &SuccessorScanner{
		dir:     dir,
		checked: map[string]struct{}{initialBase: {}},
		log:     log.With().Str("component", "successor-scan").Logger(),
	}
}

// Scan enumerates unchecked sibling journal files and returns the paths of
// newly adopted successors. Scans are throttled to one per three seconds;
// calls inside the window return nil without touching the filesystem.
func (s *SuccessorScanner) Scan(now time.Time, known map[string]struct{}) []string {
	if now.Sub(s.lastScan) < scanInterval {
		return nil
	}
	s.lastScan = now

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.dir).Msg("read journal directory")
		return nil
	}

	var adopted []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !sessionFileRe.MatchString(name) {
			continue
		}
		if _, done := s.checked[name]; done {
			continue
		}
		s.checked[name] = struct{}{}

		path := filepath.Join(s.dir, name)
		if s.linksKnownSession(path, known) {
			adopted = append(adopted, path)
		}
	}

	return adopted
}

// linksKnownSession reads the head of a candidate file and reports whether
// any of its first records references a known session id. Unreadable
// candidates are skipped; the caller already marked them checked.
func (s *SuccessorScanner) linksKnownSession(path string, known map[string]struct{}) bool {
	file, err := os.Open(path)
	if err != nil {
		s.log.Debug().Err(err).Str("path", path).Msg("skipping unreadable successor candidate")
		return false
	}
	defer func() { _ = file.Close() }()

	head, err := io.ReadAll(io.LimitReader(file, scanHeadBytes))
	if err != nil {
		s.log.Debug().Err(err).Str("path", path).Msg("skipping unreadable successor candidate")
		return false
	}

	seen := 0
	for _, line := range bytes.Split(head, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		seen++
		if seen > scanHeadLines {
			break
		}

		var probe struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		if probe.SessionID == "" {
			continue
		}
		if _, ok := known[probe.SessionID]; ok {
			return true
		}
	}

	return false
}
