package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/relay/internal/core/styles"
)

// ConfigCmd implements the relay config command group.
type ConfigCmd struct {
	flags *Flags
}

// NewConfigCmd creates a new config command.
func NewConfigCmd(flags *Flags) *ConfigCmd {
	return &ConfigCmd{flags: flags}
}

// Register adds the config command to the application.
func (cmd *ConfigCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Inspect relay configuration",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate the config file and report warnings",
				UsageText: "relay config validate",
				Action:    cmd.runValidate,
			},
		},
	})

	return app
}

func (cmd *ConfigCmd) runValidate(ctx context.Context, c *cli.Command) error {
	out := c.Root().Writer
	cfg := cmd.flags.Config

	if err := cfg.ValidateDeep(cmd.flags.ConfigPath); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	for _, w := range cfg.Warnings() {
		fmt.Fprintf(out, "%s %s: %s\n", styles.Warning.Render("warning"), w.Category, w.Message)
	}

	fmt.Fprintln(out, styles.Success.Render("config ok"))
	return nil
}
