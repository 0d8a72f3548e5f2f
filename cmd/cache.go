package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/syncronus/internal/repositories"
	"github.com/desertthunder/syncronus/internal/shared"
	"github.com/urfave/cli/v3"
)

// CachePlaylist fetches a playlist and stores its metadata and tracks locally.
//
// Cached tracks feed the sync engine's ISRC match cache, cutting repeat
// searches during transfers.
func (r *Runner) CachePlaylist(ctx context.Context, cmd *cli.Command) error {
	serviceName := cmd.StringArg("service")
	playlistID := cmd.String("id")

	if playlistID == "" {
		return fmt.Errorf("%w: --id flag is required", shared.ErrMissingArgument)
	}

	svc, err := r.resolveService(serviceName)
	if err != nil {
		return err
	}

	r.logger.Infof("caching %s playlist: %s", svc.Name(), playlistID)

	export, err := svc.ExportPlaylist(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("failed to export playlist: %w", err)
	}

	db, err := r.database()
	if err != nil {
		return err
	}

	if err := repositories.NewPlaylistRepository(db).Upsert(svc.Name(), export.Playlist); err != nil {
		return fmt.Errorf("failed to cache playlist: %w", err)
	}

	tracks := repositories.NewTrackRepository(db)
	cached := 0
	for _, track := range export.Tracks {
		if err := tracks.Upsert(svc.Name(), track); err != nil {
			r.logger.Warn("failed to cache track", "title", track.Title, "error", err)
			continue
		}
		cached++
	}

	r.logger.Infof("cached playlist: %s (%d tracks)", export.Playlist.Name, cached)

	r.writePlainln("✓ Playlist cached: %s", export.Playlist.Name)
	r.writePlainln("  Tracks cached: %d/%d", cached, len(export.Tracks))

	return nil
}

// CacheList lists locally cached playlists for a service.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	serviceName := cmd.StringArg("service")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	svc, err := r.resolveService(serviceName)
	if err != nil {
		return err
	}

	db, err := r.database()
	if err != nil {
		return err
	}

	playlists, err := repositories.NewPlaylistRepository(db).List(svc.Name())
	if err != nil {
		return fmt.Errorf("failed to list cached playlists: %w", err)
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	if len(playlists) == 0 {
		return r.writePlain("No cached playlists for %s.\n", svc.Name())
	}

	r.writePlain("Cached %s playlists:\n\n", svc.Name())
	for i, p := range playlists {
		r.writePlain("%d. %s (%d tracks)\n", i+1, p.Name, p.TrackCount)
	}

	return nil
}

// cacheCommand handles opt-in playlist and track caching
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Cache playlists and tracks locally",
		Commands: []*cli.Command{
			{
				Name:  "playlist",
				Usage: "Cache a playlist and its tracks",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Playlist ID to cache",
						Required: true,
					},
				},
				Action: r.CachePlaylist,
			},
			{
				Name:  "list",
				Usage: "List locally cached playlists",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.CacheList,
			},
		},
	}
}
