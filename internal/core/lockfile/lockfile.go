// Package lockfile enforces one watcher per logical session per host.
// The lock is a JSON file created with O_EXCL; a lock whose recorded pid is
// no longer alive is stale and may be removed and retaken.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLocked is returned when another live process holds the session lock.
var ErrLocked = errors.New("session is already being watched by another process")

const lockDirName = "linear-agent-locks"

// Info is the JSON document written into a lock file.
type Info struct {
	PID       int    `json:"pid"`
	SessionID string `json:"sessionId"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
}

// Lock is a held session lock. Release removes it.
type Lock struct {
	path string
}

// Dir returns the directory holding session lock files.
func Dir() string {
	return filepath.Join(os.TempDir(), lockDirName)
}

func lockPath(sessionID string) string {
	return filepath.Join(Dir(), sessionID+".lock")
}

// Acquire takes the lock for a session id. If an existing lock belongs to a
// live process it returns ErrLocked; a stale lock (dead pid, or unreadable
// contents) is removed and retaken.
func Acquire(sessionID string) (*Lock, error) {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := lockPath(sessionID)

	lock, err := tryCreate(path, sessionID)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	if holderAlive(path) {
		return nil, ErrLocked
	}

	// Stale: remove and retake. A racing remove is fine; the second create
	// reports contention.
	_ = os.Remove(path)
	lock, err = tryCreate(path, sessionID)
	if errors.Is(err, os.ErrExist) {
		return nil, ErrLocked
	}
	return lock, err
}

func tryCreate(path, sessionID string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info := Info{
		PID:       os.Getpid(),
		SessionID: sessionID,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := json.NewEncoder(f).Encode(info); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	return &Lock{path: path}, nil
}

// holderAlive reports whether the pid recorded in the lock file still exists.
// Unreadable or malformed lock files count as stale.
func holderAlive(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil || info.PID <= 0 {
		return false
	}

	return pidAlive(info.PID)
}

// pidAlive probes a pid with signal 0. EPERM means the process exists but
// belongs to another user, which still counts as alive.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// Release removes the lock file.
func (l *Lock) Release() {
	_ = os.Remove(l.path)
}

// Path returns the lock file location, for logging.
func (l *Lock) Path() string {
	return l.path
}
