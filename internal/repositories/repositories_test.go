package repositories

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/syncronus/internal/models"
	"github.com/desertthunder/syncronus/internal/shared"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestPlaylistRepository(t *testing.T) {
	repo := NewPlaylistRepository(newTestDB(t))

	playlist := models.Playlist{ID: "sp1", Name: "Road Trip", Description: "summer", TrackCount: 12}

	t.Run("upsert and get by service id", func(t *testing.T) {
		if err := repo.Upsert("spotify", playlist); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		got, err := repo.GetByServiceID("spotify", "sp1")
		if err != nil {
			t.Fatalf("GetByServiceID failed: %v", err)
		}
		if got.Name != "Road Trip" || got.TrackCount != 12 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("upsert updates existing row", func(t *testing.T) {
		updated := playlist
		updated.Name = "Road Trip 2"
		updated.TrackCount = 15

		if err := repo.Upsert("spotify", updated); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		got, err := repo.GetByServiceID("spotify", "sp1")
		if err != nil {
			t.Fatalf("GetByServiceID failed: %v", err)
		}
		if got.Name != "Road Trip 2" || got.TrackCount != 15 {
			t.Errorf("got %+v after update", got)
		}

		all, err := repo.List("spotify")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("got %d rows, want 1 after upsert", len(all))
		}
	})

	t.Run("same service id on another service is a separate row", func(t *testing.T) {
		if err := repo.Upsert("tidal", models.Playlist{ID: "sp1", Name: "Other"}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		got, err := repo.GetByServiceID("tidal", "sp1")
		if err != nil {
			t.Fatalf("GetByServiceID failed: %v", err)
		}
		if got.Name != "Other" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("find by name", func(t *testing.T) {
		got, err := repo.FindByName("spotify", "Road Trip 2")
		if err != nil {
			t.Fatalf("FindByName failed: %v", err)
		}
		if got.ID != "sp1" {
			t.Errorf("ID = %q", got.ID)
		}
	})

	t.Run("missing rows fail with ErrPlaylistNotFound", func(t *testing.T) {
		if _, err := repo.GetByServiceID("spotify", "nope"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("error = %v", err)
		}
		if _, err := repo.FindByName("spotify", "nope"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("upsert rejects missing keys", func(t *testing.T) {
		if err := repo.Upsert("", playlist); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("error = %v", err)
		}
		if err := repo.Upsert("spotify", models.Playlist{}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("error = %v", err)
		}
	})
}

func TestTrackRepository(t *testing.T) {
	repo := NewTrackRepository(newTestDB(t))

	track := models.Track{ID: "t1", Title: "Song", Artist: "Artist", Album: "Album", Duration: 200, ISRC: "USRC11111111"}

	t.Run("upsert and find by ISRC", func(t *testing.T) {
		if err := repo.Upsert("tidal", track); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		got, err := repo.FindByISRC("tidal", "USRC11111111")
		if err != nil {
			t.Fatalf("FindByISRC failed: %v", err)
		}
		if got.ID != "t1" || got.Title != "Song" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("ISRC lookup is per service", func(t *testing.T) {
		if _, err := repo.FindByISRC("spotify", "USRC11111111"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("empty ISRC is rejected", func(t *testing.T) {
		if _, err := repo.FindByISRC("tidal", ""); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("list by service", func(t *testing.T) {
		if err := repo.Upsert("tidal", models.Track{ID: "t2", Title: "Another"}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		tracks, err := repo.ListByService("tidal")
		if err != nil {
			t.Fatalf("ListByService failed: %v", err)
		}
		if len(tracks) != 2 {
			t.Errorf("got %d tracks, want 2", len(tracks))
		}
	})
}

func TestSyncRunRepository(t *testing.T) {
	repo := NewSyncRunRepository(newTestDB(t))

	t.Run("start and finish a run", func(t *testing.T) {
		id, err := repo.Start("spotify", "tidal", "sp1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		if err := repo.Finish(id, "td9", 10, 8, 2); err != nil {
			t.Fatalf("Finish failed: %v", err)
		}

		runs, err := repo.List(10)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("got %d runs, want 1", len(runs))
		}

		run := runs[0]
		if run.ID != id || run.SourceService != "spotify" || run.DestService != "tidal" {
			t.Errorf("run = %+v", run)
		}
		if run.DestPlaylistID != "td9" || run.TotalTracks != 10 || run.MatchedTracks != 8 || run.FailedTracks != 2 {
			t.Errorf("run counts = %+v", run)
		}
		if run.FinishedAt == nil {
			t.Error("FinishedAt not set")
		}
	})

	t.Run("unfinished runs have nil FinishedAt", func(t *testing.T) {
		if _, err := repo.Start("tidal", "spotify", "td1"); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		runs, err := repo.List(10)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if runs[0].SourcePlaylistID != "td1" {
			t.Errorf("newest run = %+v, want td1 first", runs[0])
		}
		if runs[0].FinishedAt != nil {
			t.Error("FinishedAt should be nil for unfinished run")
		}
	})

	t.Run("finishing an unknown run fails", func(t *testing.T) {
		if err := repo.Finish("missing", "", 0, 0, 0); err == nil {
			t.Error("expected error for unknown run id")
		}
	})

	t.Run("start requires both services", func(t *testing.T) {
		if _, err := repo.Start("", "tidal", "x"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("error = %v", err)
		}
	})
}
