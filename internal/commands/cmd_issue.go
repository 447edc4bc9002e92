package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/colonyops/relay/internal/core/styles"
	"github.com/colonyops/relay/internal/tracker"
	"github.com/colonyops/relay/pkg/iojson"
)

// IssueCmd implements the relay issue command group: thin wrappers over the
// tracker client.
type IssueCmd struct {
	flags *Flags

	// list flags
	listState string
	listJSON  bool

	// comment flags
	commentBody string
}

// NewIssueCmd creates a new issue command.
func NewIssueCmd(flags *Flags) *IssueCmd {
	return &IssueCmd{flags: flags}
}

// Register adds the issue command to the application.
func (cmd *IssueCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "issue",
		Usage: "View and update tracker issues",
		Description: `Issue commands wrap the tracker API for quick terminal access.

Examples:
  relay issue view ENG-42
  relay issue list --state "In Progress"
  relay issue move ENG-42 Done
  relay issue comment ENG-42 -m "deployed to staging"`,
		Commands: []*cli.Command{
			cmd.viewCmd(),
			cmd.listCmd(),
			cmd.moveCmd(),
			cmd.commentCmd(),
		},
	})

	return app
}

func (cmd *IssueCmd) viewCmd() *cli.Command {
	return &cli.Command{
		Name:      "view",
		Usage:     "Show one issue with its rendered description",
		UsageText: "relay issue view <id>",
		Action:    cmd.runView,
	}
}

func (cmd *IssueCmd) listCmd() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List issues",
		UsageText: "relay issue list [--state <state>] [--json]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "state",
				Aliases:     []string{"s"},
				Usage:       "filter by workflow state",
				Destination: &cmd.listState,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.listJSON,
			},
		},
		Action: cmd.runList,
	}
}

func (cmd *IssueCmd) moveCmd() *cli.Command {
	return &cli.Command{
		Name:      "move",
		Usage:     "Move an issue to a workflow state",
		UsageText: "relay issue move <id> <state>",
		Action:    cmd.runMove,
	}
}

func (cmd *IssueCmd) commentCmd() *cli.Command {
	return &cli.Command{
		Name:      "comment",
		Usage:     "Comment on an issue",
		UsageText: "relay issue comment <id> -m <body>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "message",
				Aliases:     []string{"m"},
				Usage:       "comment body (markdown)",
				Required:    true,
				Destination: &cmd.commentBody,
			},
		},
		Action: cmd.runComment,
	}
}

func (cmd *IssueCmd) runView(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: relay issue view <id>")
	}

	issue, err := cmd.flags.Client.Issue(ctx, c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("fetch issue: %w", err)
	}

	out := c.Root().Writer
	fmt.Fprintf(out, "%s %s\n", styles.Identifier.Render(issue.Identifier), styles.Title.Render(issue.Title))
	fmt.Fprintf(out, "%s", styles.State(issue.State).Render(issue.State))
	if issue.Assignee != "" {
		fmt.Fprintf(out, "  %s", styles.Muted.Render(issue.Assignee))
	}
	fmt.Fprintln(out)

	if issue.Description != "" {
		desc := issue.Description
		// Render markdown only on a terminal; piped output stays raw.
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if rendered, err := renderMarkdown(desc); err == nil {
				desc = rendered
			}
		}
		fmt.Fprintln(out, desc)
	}

	if issue.URL != "" {
		fmt.Fprintln(out, styles.Muted.Render(issue.URL))
	}

	return nil
}

func (cmd *IssueCmd) runList(ctx context.Context, c *cli.Command) error {
	issues, err := cmd.flags.Client.Issues(ctx, tracker.IssueFilter{State: cmd.listState})
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}

	out := c.Root().Writer

	if cmd.listJSON {
		for _, issue := range issues {
			if err := iojson.WriteLine(out, issue); err != nil {
				return err
			}
		}
		return nil
	}

	if len(issues) == 0 {
		fmt.Fprintln(out, "No issues found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, issue := range issues {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			styles.Identifier.Render(issue.Identifier),
			issue.Title,
			styles.State(issue.State).Render(issue.State),
			styles.Muted.Render(issue.Assignee),
		)
	}
	return w.Flush()
}

func (cmd *IssueCmd) runMove(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: relay issue move <id> <state>")
	}

	id, state := c.Args().Get(0), c.Args().Get(1)
	if err := cmd.flags.Client.MoveIssue(ctx, id, state); err != nil {
		return fmt.Errorf("move issue: %w", err)
	}

	fmt.Fprintf(c.Root().Writer, "%s moved to %s\n", id, state)
	return nil
}

func (cmd *IssueCmd) runComment(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: relay issue comment <id> -m <body>")
	}

	id := c.Args().Get(0)
	if strings.TrimSpace(cmd.commentBody) == "" {
		return fmt.Errorf("comment body cannot be empty")
	}

	if err := cmd.flags.Client.CommentIssue(ctx, id, cmd.commentBody); err != nil {
		return fmt.Errorf("comment on issue: %w", err)
	}

	fmt.Fprintln(c.Root().Writer, "comment added")
	return nil
}

// markdownWrapWidth keeps rendered issue bodies readable without probing the
// terminal size.
const markdownWrapWidth = 100

func renderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(markdownWrapWidth),
	)
	if err != nil {
		return "", err
	}
	return r.Render(content)
}
