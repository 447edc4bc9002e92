package commands

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/colonyops/relay/internal/core/config"
	"github.com/colonyops/relay/internal/data/stores"
	"github.com/colonyops/relay/internal/tracker"
)

// TrackerAPI is the tracker surface the CLI commands consume: the core write
// operations plus the thin issue and session wrappers.
type TrackerAPI interface {
	tracker.Client

	Issue(ctx context.Context, id string) (tracker.Issue, error)
	Issues(ctx context.Context, filter tracker.IssueFilter) ([]tracker.Issue, error)
	MoveIssue(ctx context.Context, id, state string) error
	CommentIssue(ctx context.Context, id, body string) error
	AttachSessionURL(ctx context.Context, sessionID, url string) error
	RespondElicitation(ctx context.Context, sessionID, activityID, answer string) error
}

// Flags holds global flag values plus the dependencies wired in the Before
// hook and shared by all commands.
type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Client talks to the tracker API
	Client TrackerAPI

	// Deliveries is the local log of tracker write attempts
	Deliveries *stores.DeliveryStore
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "relay", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "relay")
}

// DefaultLogFile returns the default log file path using the system's state
// directory. On macOS: ~/Library/Logs/relay/relay.log. On Linux:
// $XDG_STATE_HOME/relay/relay.log (defaults to ~/.local/state/relay/relay.log).
func DefaultLogFile() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome != "" {
		return filepath.Join(stateHome, "relay", "relay.log")
	}

	home, _ := os.UserHomeDir()

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "relay", "relay.log")
	}

	return filepath.Join(home, ".local", "state", "relay", "relay.log")
}
