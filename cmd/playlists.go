package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/syncronus/internal/shared"
	"github.com/desertthunder/syncronus/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PlaylistsList lists playlists for a service with optional limit.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	serviceName := cmd.StringArg("service")
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	svc, err := r.resolveService(serviceName)
	if err != nil {
		return err
	}

	r.logger.Infof("listing %s playlists with limit %v", svc.Name(), limit)

	playlists, err := svc.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		r.writePlain("   Visibility: %s\n", shared.VisibilityString(p.Public))
		r.writePlain("\n")
	}

	return nil
}

// PlaylistsExport exports a playlist with all tracks to JSON.
func (r *Runner) PlaylistsExport(ctx context.Context, cmd *cli.Command) error {
	serviceName := cmd.StringArg("service")
	playlistID := cmd.String("id")
	outputFile := cmd.String("output")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if playlistID == "" {
		return fmt.Errorf("%w: --id flag is required", shared.ErrMissingArgument)
	}

	svc, err := r.resolveService(serviceName)
	if err != nil {
		return err
	}

	r.logger.Infof("exporting %s playlist %v", svc.Name(), playlistID)

	export, err := svc.ExportPlaylist(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if outputFile == "" && !useJSON {
		outputFile = fmt.Sprintf("%s_%s.json", strings.ToLower(svc.Name()), export.Playlist.Name)
	}

	if outputFile != "" {
		data, err := shared.MarshalJSON(export, true)
		if err != nil {
			return fmt.Errorf("failed to marshal export: %w", err)
		}
		if err := os.WriteFile(outputFile, data, 0644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}

		r.logger.Infof("playlist exported to %v with %v tracks", outputFile, len(export.Tracks))

		r.writePlain("✓ Playlist exported to %s\n", outputFile)
		r.writePlain("  Playlist: %s\n", export.Playlist.Name)
		r.writePlain("  Tracks: %d\n", len(export.Tracks))
		return nil
	}

	return r.writeJSON(export, pretty)
}

// PlaylistsBulkExport exports multiple playlists concurrently to local files.
//
// With no --id flags, every playlist in the user's library is exported.
func (r *Runner) PlaylistsBulkExport(ctx context.Context, cmd *cli.Command) error {
	serviceName := cmd.StringArg("service")
	ids := cmd.StringSlice("id")
	format := cmd.String("format")
	outputDir := cmd.String("output")
	workers := cmd.Int("workers")

	svc, err := r.resolveService(serviceName)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		playlists, err := svc.GetPlaylists(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
	}

	if len(ids) == 0 {
		return fmt.Errorf("%w: no playlists to export", shared.ErrEmptyCollection)
	}

	r.writePlain("Exporting %d playlists from %s...\n\n", len(ids), svc.Name())

	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			r.writePlain("  %s\n", update.Message)
		}
	}()

	engine := r.newEngine(svc, nil)
	result, err := engine.BulkExport(ctx, progressCh, svc, ids, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  outputDir,
		NumWorkers: workers,
	})
	close(progressCh)

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Bulk Export Complete")
	r.writePlain("Exported: %d/%d playlists\n", result.SuccessfulExports, result.TotalPlaylists)
	r.writePlain("Output directory: %s\n", result.OutputDirectory)
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}

	if result.FailedExports > 0 {
		r.writePlain("\nFailed exports:\n")
		for _, res := range result.Results {
			if !res.Success {
				r.writePlain("  - %s: %s\n", res.PlaylistName, res.ErrorMessage)
			}
		}
	}

	return nil
}

// playlistsCommand handles playlist listing and export operations
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Playlist operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List playlists for a service",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to return",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.PlaylistsList,
			},
			{
				Name:  "export",
				Usage: "Export a playlist with all tracks",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Playlist ID to export",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.PlaylistsExport,
			},
			{
				Name:  "bulk-export",
				Usage: "Export multiple playlists concurrently to local files",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "id",
						Usage: "Playlist ID to export (repeatable; defaults to the full library)",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Export format: json, csv, markdown, txt",
						Value: "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent export workers (max 10)",
						Value: 5,
					},
				},
				Action: r.PlaylistsBulkExport,
			},
		},
	}
}
