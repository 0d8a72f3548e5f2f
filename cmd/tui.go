package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/syncronus/internal/shared"
	"github.com/desertthunder/syncronus/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for playlist sync.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	sourceSvc, err := r.resolveService(cmd.String("source-service"))
	if err != nil {
		return err
	}
	destSvc, err := r.resolveService(cmd.String("dest-service"))
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/syncronus-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	engine := r.newEngine(sourceSvc, destSvc)

	model := ui.NewModel(ctx, sourceSvc, destSvc, engine)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// tuiCommand returns the top-level TUI command for interactive playlist management.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for playlist sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "source-service",
				Usage: "Source service (spotify or tidal)",
				Value: "spotify",
			},
			&cli.StringFlag{
				Name:  "dest-service",
				Usage: "Destination service (spotify or tidal)",
				Value: "tidal",
			},
		},
		Action: r.TUI,
	}
}
