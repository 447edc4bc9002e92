package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/relay/internal/core/styles"
	"github.com/colonyops/relay/pkg/iojson"
)

// SessionCmd implements the relay session command group.
type SessionCmd struct {
	flags *Flags

	// respond flags
	respondAnswer string

	// log flags
	logLimit int
	logJSON  bool
}

// NewSessionCmd creates a new session command.
func NewSessionCmd(flags *Flags) *SessionCmd {
	return &SessionCmd{flags: flags}
}

// Register adds the session command to the application.
func (cmd *SessionCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "session",
		Usage: "Operate on tracker agent sessions",
		Description: `Session commands attach links, answer pending questions, and inspect
the local delivery log of a watched session.

Examples:
  relay session add-url <session-id> https://ci.example.com/run/42
  relay session respond <session-id> <activity-id>
  relay session log <session-id> --limit 20`,
		Commands: []*cli.Command{
			cmd.addURLCmd(),
			cmd.respondCmd(),
			cmd.logCmd(),
		},
	})

	return app
}

func (cmd *SessionCmd) addURLCmd() *cli.Command {
	return &cli.Command{
		Name:      "add-url",
		Usage:     "Attach an external link to a session",
		UsageText: "relay session add-url <session-id> <url>",
		Action:    cmd.runAddURL,
	}
}

func (cmd *SessionCmd) respondCmd() *cli.Command {
	return &cli.Command{
		Name:      "respond",
		Usage:     "Answer a pending question on a session",
		UsageText: "relay session respond <session-id> <activity-id> [--answer <text>]",
		Description: `Answers an elicitation activity. Without --answer, an interactive
form prompts for the response.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "answer",
				Aliases:     []string{"a"},
				Usage:       "answer text (skips the interactive form)",
				Destination: &cmd.respondAnswer,
			},
		},
		Action: cmd.runRespond,
	}
}

func (cmd *SessionCmd) logCmd() *cli.Command {
	return &cli.Command{
		Name:      "log",
		Usage:     "Show recorded tracker writes for a session",
		UsageText: "relay session log <session-id> [--limit n] [--json]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "maximum entries to show",
				Destination: &cmd.logLimit,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.logJSON,
			},
		},
		Action: cmd.runLog,
	}
}

func (cmd *SessionCmd) runAddURL(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: relay session add-url <session-id> <url>")
	}

	sessionID, url := c.Args().Get(0), c.Args().Get(1)
	if err := cmd.flags.Client.AttachSessionURL(ctx, sessionID, url); err != nil {
		return fmt.Errorf("attach session url: %w", err)
	}

	fmt.Fprintln(c.Root().Writer, "link attached")
	return nil
}

func (cmd *SessionCmd) runRespond(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: relay session respond <session-id> <activity-id>")
	}

	sessionID, activityID := c.Args().Get(0), c.Args().Get(1)

	answer := cmd.respondAnswer
	if answer == "" {
		form := huh.NewForm(huh.NewGroup(
			huh.NewText().
				Title("Answer").
				Description("Response sent to the waiting agent session").
				Value(&answer),
		))
		if err := form.Run(); err != nil {
			return fmt.Errorf("read answer: %w", err)
		}
	}

	if strings.TrimSpace(answer) == "" {
		return fmt.Errorf("answer cannot be empty")
	}

	if err := cmd.flags.Client.RespondElicitation(ctx, sessionID, activityID, answer); err != nil {
		return fmt.Errorf("respond to elicitation: %w", err)
	}

	fmt.Fprintln(c.Root().Writer, "response sent")
	return nil
}

func (cmd *SessionCmd) runLog(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: relay session log <session-id>")
	}

	deliveries, err := cmd.flags.Deliveries.List(ctx, c.Args().Get(0), cmd.logLimit)
	if err != nil {
		return fmt.Errorf("list deliveries: %w", err)
	}

	out := c.Root().Writer

	if cmd.logJSON {
		for _, d := range deliveries {
			if err := iojson.WriteLine(out, d); err != nil {
				return err
			}
		}
		return nil
	}

	if len(deliveries) == 0 {
		fmt.Fprintln(out, "No deliveries recorded")
		return nil
	}

	for _, d := range deliveries {
		status := styles.Success.Render("ok")
		if !d.OK {
			status = styles.Error.Render("failed")
		}

		line := d.Body
		if d.Action != "" {
			line = d.Action
			if d.Parameter != "" {
				line += " " + d.Parameter
			}
		}

		fmt.Fprintf(out, "%s  %-8s  %s  %s\n",
			styles.Muted.Render(d.CreatedAt.Local().Format("15:04:05")),
			d.Type,
			status,
			line,
		)
	}

	return nil
}
