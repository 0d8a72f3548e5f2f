package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/syncronus/internal/models"
	"github.com/desertthunder/syncronus/internal/repositories"
	"github.com/desertthunder/syncronus/internal/services"
	"github.com/desertthunder/syncronus/internal/shared"
	fakes "github.com/desertthunder/syncronus/internal/testing"
)

func sourceWithPlaylist(export *models.PlaylistExport) *fakes.FakeService {
	return &fakes.FakeService{
		ServiceName: "Spotify",
		ExportPlaylistFn: func(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
			if playlistID == export.Playlist.ID {
				return export, nil
			}
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		},
		GetPlaylistsFn: func(ctx context.Context) ([]models.Playlist, error) {
			return []models.Playlist{export.Playlist}, nil
		},
	}
}

func destMatching(known map[string]models.Track) *fakes.FakeService {
	return &fakes.FakeService{
		ServiceName: "Tidal",
		FindByISRCFn: func(ctx context.Context, isrc string) (*models.Track, error) {
			if track, ok := known[isrc]; ok {
				return &track, nil
			}
			return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, isrc)
		},
		ImportPlaylistFn: func(ctx context.Context, playlist *models.PlaylistExport) (*models.Playlist, error) {
			return &models.Playlist{ID: "dest1", Name: playlist.Playlist.Name, TrackCount: len(playlist.Tracks)}, nil
		},
	}
}

func sampleSource() *models.PlaylistExport {
	return &models.PlaylistExport{
		Playlist: models.Playlist{ID: "src1", Name: "Road Trip", TrackCount: 3},
		Tracks: []models.Track{
			{ID: "s1", Title: "First", Artist: "A", ISRC: "ISRC00000001"},
			{ID: "s2", Title: "Second", Artist: "B", ISRC: "ISRC00000002"},
			{ID: "s3", Title: "Third", Artist: "C"}, // no ISRC
		},
	}
}

func TestEngineRun(t *testing.T) {
	known := map[string]models.Track{
		"ISRC00000001": {ID: "d1", Title: "First", ISRC: "ISRC00000001"},
	}

	t.Run("matches by ISRC and creates destination playlist", func(t *testing.T) {
		engine := NewPlaylistEngine(sourceWithPlaylist(sampleSource()), destMatching(known), nil)

		result, err := engine.Run(context.Background(), nil, "src1")
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if result.TotalTracks != 3 || result.SuccessCount != 1 || result.FailedCount != 2 {
			t.Errorf("counts = %d/%d/%d", result.TotalTracks, result.SuccessCount, result.FailedCount)
		}
		if result.MatchPercentage < 33 || result.MatchPercentage > 34 {
			t.Errorf("MatchPercentage = %f", result.MatchPercentage)
		}
		if result.DestPlaylist == nil || result.DestPlaylist.ID != "dest1" {
			t.Errorf("DestPlaylist = %+v", result.DestPlaylist)
		}

		// Per-track outcomes preserved in order
		if result.TrackMatches[0].Matched == nil || result.TrackMatches[0].Matched.ID != "d1" {
			t.Errorf("first match = %+v", result.TrackMatches[0])
		}
		if result.TrackMatches[2].Error == nil {
			t.Error("ISRC-less track should fail to match")
		}
	})

	t.Run("resolves source playlist by name", func(t *testing.T) {
		engine := NewPlaylistEngine(sourceWithPlaylist(sampleSource()), destMatching(known), nil)

		result, err := engine.Run(context.Background(), nil, "Road Trip")
		if err != nil {
			t.Fatalf("Run by name failed: %v", err)
		}
		if result.SourcePlaylist.Playlist.ID != "src1" {
			t.Errorf("resolved playlist = %+v", result.SourcePlaylist.Playlist)
		}
	})

	t.Run("unknown playlist fails with ErrPlaylistNotFound", func(t *testing.T) {
		engine := NewPlaylistEngine(sourceWithPlaylist(sampleSource()), destMatching(known), nil)

		_, err := engine.Run(context.Background(), nil, "does-not-exist")
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("zero matches refuses to create an empty playlist", func(t *testing.T) {
		engine := NewPlaylistEngine(sourceWithPlaylist(sampleSource()), destMatching(nil), nil)

		result, err := engine.Run(context.Background(), nil, "src1")
		if err == nil {
			t.Fatal("expected error when nothing matches")
		}
		if result == nil || result.DestPlaylist != nil {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("nil services fail with ErrServiceUnavailable", func(t *testing.T) {
		engine := NewPlaylistEngine(nil, nil, nil)

		_, err := engine.Run(context.Background(), nil, "src1")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("emits progress updates without blocking", func(t *testing.T) {
		engine := NewPlaylistEngine(sourceWithPlaylist(sampleSource()), destMatching(known), nil)

		// Capacity 1 forces most sends through the non-blocking default branch
		progress := make(chan ProgressUpdate, 1)
		if _, err := engine.Run(context.Background(), progress, "src1"); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		select {
		case <-progress:
		default:
			t.Error("expected at least one progress update")
		}
	})

	t.Run("records sync run history", func(t *testing.T) {
		db, err := shared.NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		if err := shared.RunMigrations(db); err != nil {
			t.Fatalf("failed to migrate: %v", err)
		}

		history := repositories.NewSyncRunRepository(db)
		engine := NewPlaylistEngine(sourceWithPlaylist(sampleSource()), destMatching(known), nil).WithHistory(history)

		if _, err := engine.Run(context.Background(), nil, "src1"); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		runs, err := history.List(5)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("got %d runs, want 1", len(runs))
		}

		run := runs[0]
		if run.SourceService != "Spotify" || run.DestService != "Tidal" {
			t.Errorf("run services = %s → %s", run.SourceService, run.DestService)
		}
		if run.DestPlaylistID != "dest1" || run.TotalTracks != 3 || run.MatchedTracks != 1 || run.FailedTracks != 2 {
			t.Errorf("run = %+v", run)
		}
		if run.FinishedAt == nil {
			t.Error("FinishedAt not set")
		}
	})

	t.Run("uses the local track cache before the provider", func(t *testing.T) {
		db, err := shared.NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		if err := shared.RunMigrations(db); err != nil {
			t.Fatalf("failed to migrate: %v", err)
		}

		cache := repositories.NewTrackRepository(db)
		if err := cache.Upsert("Tidal", models.Track{ID: "cached1", Title: "First", ISRC: "ISRC00000001"}); err != nil {
			t.Fatalf("failed to seed cache: %v", err)
		}

		var searches int
		dest := destMatching(known)
		inner := dest.FindByISRCFn
		dest.FindByISRCFn = func(ctx context.Context, isrc string) (*models.Track, error) {
			searches++
			return inner(ctx, isrc)
		}

		engine := NewPlaylistEngine(sourceWithPlaylist(sampleSource()), dest, nil).WithTrackCache(cache)

		result, err := engine.Run(context.Background(), nil, "src1")
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if result.TrackMatches[0].Matched.ID != "cached1" {
			t.Errorf("first match = %+v, want cache hit", result.TrackMatches[0].Matched)
		}
		// Only the uncached ISRC track hits the provider
		if searches != 1 {
			t.Errorf("provider searches = %d, want 1", searches)
		}
	})
}

func TestEngineDiff(t *testing.T) {
	sourceExport := &models.PlaylistExport{
		Playlist: models.Playlist{ID: "src1", Name: "Source"},
		Tracks: []models.Track{
			{ID: "s1", Title: "Shared By Code", Artist: "A", ISRC: "ISRC00000001"},
			{ID: "s2", Title: "Shared By Name", Artist: "B"},
			{ID: "s3", Title: "Only In Source", Artist: "C", ISRC: "ISRC00000003"},
		},
	}
	destExport := &models.PlaylistExport{
		Playlist: models.Playlist{ID: "dst1", Name: "Dest"},
		Tracks: []models.Track{
			{ID: "d1", Title: "Renamed Remaster", Artist: "A", ISRC: "ISRC00000001"},
			{ID: "d2", Title: "SHARED   BY  NAME!", Artist: "b"},
			{ID: "d3", Title: "Only In Dest", Artist: "D"},
		},
	}

	source := &fakes.FakeService{
		ServiceName: "Spotify",
		ExportPlaylistFn: func(ctx context.Context, id string) (*models.PlaylistExport, error) {
			return sourceExport, nil
		},
	}
	dest := &fakes.FakeService{
		ServiceName: "Tidal",
		ExportPlaylistFn: func(ctx context.Context, id string) (*models.PlaylistExport, error) {
			return destExport, nil
		},
	}

	engine := NewPlaylistEngine(source, dest, nil)

	result, err := engine.Diff(context.Background(), nil, source, dest, "src1", "dst1")
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	cmp := result.Comparison
	if cmp.MatchedCount != 2 {
		t.Errorf("MatchedCount = %d, want 2 (ISRC match + normalized name match)", cmp.MatchedCount)
	}
	if len(cmp.MissingInDest) != 1 || cmp.MissingInDest[0].ID != "s3" {
		t.Errorf("MissingInDest = %+v", cmp.MissingInDest)
	}
	if len(cmp.ExtraInDest) != 1 || cmp.ExtraInDest[0].ID != "d3" {
		t.Errorf("ExtraInDest = %+v", cmp.ExtraInDest)
	}
}

var _ SyncEngine = (*PlaylistEngine)(nil)
var _ services.Service = (*fakes.FakeService)(nil)
