package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/relay/internal/bridge"
	"github.com/colonyops/relay/internal/core/cursor"
	"github.com/colonyops/relay/internal/core/lockfile"
	"github.com/colonyops/relay/internal/core/ratelimit"
)

// WatchCmd implements the relay watch command.
type WatchCmd struct {
	flags *Flags

	projectsDir  string
	perSecond    float64
	burst        int
	pollInterval time.Duration
}

// NewWatchCmd creates a new watch command.
func NewWatchCmd(flags *Flags) *WatchCmd {
	return &WatchCmd{flags: flags}
}

// Register adds the watch command to the application.
func (cmd *WatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Stream a Claude Code session to the tracker",
		UsageText: "relay watch <session-id>",
		Description: `Tails the session's journal file and posts each new record to the
tracker as an activity in near real time. Task tool results additionally
maintain a mirrored plan on the tracker session.

The watcher resumes from its persisted cursor after a restart, discovers
continuation journal files written by the same logical session, and exits
cleanly when another watcher already holds the session lock.

Examples:
  relay watch 4f2f0f6a-8f5e-4a5e-9f9f-0c8a8c0e2d11
  relay watch --poll-interval 1s <session-id>`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "projects-dir",
				Usage:       "journal root to search (defaults to ~/.claude/projects)",
				Destination: &cmd.projectsDir,
			},
			&cli.FloatFlag{
				Name:        "per-second",
				Usage:       "tracker writes per second",
				Destination: &cmd.perSecond,
			},
			&cli.IntFlag{
				Name:        "burst",
				Usage:       "tracker write burst capacity",
				Destination: &cmd.burst,
			},
			&cli.DurationFlag{
				Name:        "poll-interval",
				Usage:       "idle sleep between journal sweeps",
				Destination: &cmd.pollInterval,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *WatchCmd) run(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: relay watch <session-id>")
	}
	sessionID := c.Args().Get(0)

	cfg := cmd.flags.Config

	// Exactly one watcher per session per host. A held lock is a normal
	// condition, not an error.
	lock, err := lockfile.Acquire(sessionID)
	if errors.Is(err, lockfile.ErrLocked) {
		fmt.Fprintf(c.Root().Writer, "session %s is already being watched; exiting\n", sessionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	defer lock.Release()

	perSecond := cfg.Watch.PerSecond
	if cmd.perSecond > 0 {
		perSecond = cmd.perSecond
	}
	burst := cfg.Watch.Burst
	if cmd.burst > 0 {
		burst = cmd.burst
	}
	pollInterval := cfg.Watch.PollInterval
	if cmd.pollInterval > 0 {
		pollInterval = cmd.pollInterval
	}
	projectsDir := cfg.ProjectsDir
	if cmd.projectsDir != "" {
		projectsDir = cmd.projectsDir
	}

	limiter := ratelimit.New(perSecond, burst)
	emitter := bridge.NewEmitter(sessionID, cmd.flags.Client, limiter, cmd.flags.Deliveries, log.Logger)
	tailer := bridge.NewTailer(emitter, log.Logger)
	cursors := cursor.NewStore(cfg.Watch.CursorDir, log.Logger)

	watcher := bridge.NewWatcher(bridge.WatcherConfig{
		SessionID:    sessionID,
		ProjectsDir:  projectsDir,
		PollInterval: pollInterval,
	}, tailer, cursors, log.Logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("session", sessionID).Float64("per_second", perSecond).Int("burst", burst).Msg("starting watcher")
	return watcher.Run(ctx)
}
