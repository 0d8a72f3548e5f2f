package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/syncronus/internal/repositories"
	"github.com/desertthunder/syncronus/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncRun runs a full source → destination playlist sync.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	sourceIDOrName := cmd.String("source")
	sourceService := cmd.String("source-service")
	destService := cmd.String("dest-service")

	sourceSvc, err := r.resolveService(sourceService)
	if err != nil {
		return err
	}
	destSvc, err := r.resolveService(destService)
	if err != nil {
		return err
	}

	r.logger.Info("starting sync", "source", sourceIDOrName, "from", sourceSvc.Name(), "to", destSvc.Name())
	r.writePlain("Starting playlist sync...\n")
	r.writePlain("Source: %s (%s)\n", sourceIDOrName, sourceSvc.Name())
	r.writePlain("Destination: %s\n\n", destSvc.Name())

	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchSource:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.MatchTracks:
				if update.Step == 0 {
					r.writePlain("\n🔍 %s\n", update.Message)
				} else {
					r.writePlain("   %s\n", update.Message)
				}
			case tasks.CreatePlaylist:
				r.writePlain("\n📝 %s\n", update.Message)
			}
		}
	}()

	engine := r.newEngine(sourceSvc, destSvc)
	result, err := engine.Run(ctx, progressCh, sourceIDOrName)
	close(progressCh)

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Sync Complete!")
	r.writePlain("Source: %s (%d tracks)\n", result.SourcePlaylist.Playlist.Name, result.TotalTracks)
	r.writePlain("Destination: %s (%d tracks)\n", result.DestPlaylist.Name, result.DestPlaylist.TrackCount)
	r.writePlain("Success rate: %d/%d (%.1f%%)\n", result.SuccessCount, result.TotalTracks, result.MatchPercentage)

	if result.FailedCount > 0 {
		r.writePlain("\nFailed to match %d tracks:\n", result.FailedCount)
		for _, match := range result.TrackMatches {
			if match.Error != nil {
				r.writePlain("  - %s - %s\n", match.Original.Artist, match.Original.Title)
			}
		}
	}

	return nil
}

// SyncDiff compares and shows missing tracks between two playlists.
func (r *Runner) SyncDiff(ctx context.Context, cmd *cli.Command) error {
	sourceID := cmd.String("source-id")
	destID := cmd.String("dest-id")
	sourceService := cmd.String("source-service")
	destService := cmd.String("dest-service")

	r.logger.Info("diff requested", "source", sourceID, "dest", destID)
	r.writePlain("Comparing playlists...\n\n")

	sourceSvc, err := r.resolveService(sourceService)
	if err != nil {
		return err
	}
	destSvc, err := r.resolveService(destService)
	if err != nil {
		return err
	}

	progressCh := make(chan tasks.ProgressUpdate, 10)
	go func() {
		for update := range progressCh {
			r.writePlain("📥 %s\n", update.Message)
		}
	}()

	engine := r.newEngine(sourceSvc, destSvc)
	result, err := engine.Diff(ctx, progressCh, sourceSvc, destSvc, sourceID, destID)
	close(progressCh)

	if err != nil {
		return err
	}

	r.writePlain("\n✓ Source: %s (%d tracks)\n", result.Comparison.SourcePlaylist.Playlist.Name, len(result.Comparison.SourcePlaylist.Tracks))
	r.writePlain("✓ Destination: %s (%d tracks)\n\n", result.Comparison.DestPlaylist.Playlist.Name, len(result.Comparison.DestPlaylist.Tracks))

	r.writePlainHeader("Comparison Results")
	r.writePlain("Matched: %d tracks\n", result.Comparison.MatchedCount)
	r.writePlain("Missing from destination: %d tracks\n", len(result.Comparison.MissingInDest))
	r.writePlain("Extra in destination: %d tracks\n\n", len(result.Comparison.ExtraInDest))

	if len(result.Comparison.MissingInDest) > 0 {
		r.writePlain("Missing from destination:\n")
		for i, track := range result.Comparison.MissingInDest {
			r.writePlain("  %d. %s - %s", i+1, track.Artist, track.Title)
			if track.Album != "" {
				r.writePlain(" (%s)", track.Album)
			}
			r.writePlain("\n")
		}
		r.writePlain("\n")
	}

	if len(result.Comparison.ExtraInDest) > 0 {
		r.writePlain("Extra in destination (not in source):\n")
		for i, track := range result.Comparison.ExtraInDest {
			r.writePlain("  %d. %s - %s", i+1, track.Artist, track.Title)
			if track.Album != "" {
				r.writePlain(" (%s)", track.Album)
			}
			r.writePlain("\n")
		}
	}

	return nil
}

// SyncHistory lists recorded sync runs from the local database.
func (r *Runner) SyncHistory(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	db, err := r.database()
	if err != nil {
		return err
	}

	runs, err := repositories.NewSyncRunRepository(db).List(limit)
	if err != nil {
		return fmt.Errorf("failed to list sync runs: %w", err)
	}

	if useJSON {
		return r.writeJSON(runs, pretty)
	}

	if len(runs) == 0 {
		return r.writePlain("No sync runs recorded yet.\n")
	}

	r.writePlain("Recent sync runs:\n\n")
	for i, run := range runs {
		r.writePlain("%d. %s → %s\n", i+1, run.SourceService, run.DestService)
		r.writePlain("   Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		if run.FinishedAt != nil {
			r.writePlain("   Matched: %d/%d tracks (%d failed)\n", run.MatchedTracks, run.TotalTracks, run.FailedTracks)
		} else {
			r.writePlain("   Unfinished\n")
		}
		r.writePlain("\n")
	}

	return nil
}

// syncCommand handles playlist sync operations between services
func syncCommand(r *Runner) *cli.Command {
	serviceFlags := []cli.Flag{
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
	}

	return &cli.Command{
		Name:  "sync",
		Usage: "Sync playlists between services",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a full source → destination playlist sync",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source playlist name or ID",
						Required: true,
					},
				}, serviceFlags...),
				Action: r.SyncRun,
			},
			{
				Name:  "diff",
				Usage: "Compare and show missing tracks between two playlists",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "source-id",
						Usage:    "Source playlist ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "dest-id",
						Usage:    "Destination playlist ID",
						Required: true,
					},
				}, serviceFlags...),
				Action: r.SyncDiff,
			},
			{
				Name:  "history",
				Usage: "Show recorded sync runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 20,
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
				Action: r.SyncHistory,
			},
		},
	}
}
