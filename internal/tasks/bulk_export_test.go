package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/syncronus/internal/models"
	"github.com/desertthunder/syncronus/internal/shared"
	fakes "github.com/desertthunder/syncronus/internal/testing"
)

func exportService(playlists map[string]*models.PlaylistExport) *fakes.FakeService {
	return &fakes.FakeService{
		ServiceName: "Spotify",
		ExportPlaylistFn: func(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
			if export, ok := playlists[playlistID]; ok {
				return export, nil
			}
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		},
	}
}

func bulkFixtures() map[string]*models.PlaylistExport {
	return map[string]*models.PlaylistExport{
		"p1": {
			Playlist: models.Playlist{ID: "p1", Name: "First"},
			Tracks:   []models.Track{{ID: "t1", Title: "Song", Artist: "A", ISRC: "X"}},
		},
		"p2": {
			Playlist: models.Playlist{ID: "p2", Name: "Second"},
			Tracks:   []models.Track{{ID: "t2", Title: "Tune", Artist: "B"}},
		},
	}
}

func TestBulkExport(t *testing.T) {
	engine := NewPlaylistEngine(nil, nil, nil)

	t.Run("exports playlists as JSON with a manifest", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")

		result, err := engine.BulkExport(context.Background(), nil, exportService(bulkFixtures()),
			[]string{"p1", "p2"}, BulkExportOpts{Format: "json", OutputDir: dir, RateLimit: 1000})
		if err != nil {
			t.Fatalf("BulkExport failed: %v", err)
		}

		if result.SuccessfulExports != 2 || result.FailedExports != 0 {
			t.Errorf("result = %+v", result)
		}

		for _, id := range []string{"p1", "p2"} {
			path := filepath.Join(dir, id+".json")
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("missing export %s: %v", path, err)
			}
			var export models.PlaylistExport
			if err := json.Unmarshal(data, &export); err != nil {
				t.Errorf("export %s is not valid JSON: %v", id, err)
			}
		}

		manifest, err := os.ReadFile(result.ManifestPath)
		if err != nil {
			t.Fatalf("missing manifest: %v", err)
		}
		var decoded BulkExportResult
		if err := json.Unmarshal(manifest, &decoded); err != nil {
			t.Fatalf("manifest is not valid JSON: %v", err)
		}
		if decoded.TotalPlaylists != 2 {
			t.Errorf("manifest = %+v", decoded)
		}
	})

	t.Run("fetch failures are partial, not fatal", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")

		result, err := engine.BulkExport(context.Background(), nil, exportService(bulkFixtures()),
			[]string{"p1", "missing"}, BulkExportOpts{Format: "json", OutputDir: dir, RateLimit: 1000})
		if err != nil {
			t.Fatalf("BulkExport failed: %v", err)
		}

		if result.SuccessfulExports != 1 || result.FailedExports != 1 {
			t.Errorf("result = %+v", result)
		}

		var failed *PlaylistExportResult
		for i := range result.Results {
			if !result.Results[i].Success {
				failed = &result.Results[i]
			}
		}
		if failed == nil || failed.ErrorMessage == "" {
			t.Errorf("failed entry = %+v", failed)
		}
	})

	t.Run("csv format writes tracks and metadata files", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")

		result, err := engine.BulkExport(context.Background(), nil, exportService(bulkFixtures()),
			[]string{"p1"}, BulkExportOpts{Format: "csv", OutputDir: dir, RateLimit: 1000})
		if err != nil {
			t.Fatalf("BulkExport failed: %v", err)
		}
		if result.SuccessfulExports != 1 {
			t.Fatalf("result = %+v", result)
		}

		fakes.AssertFileExists(t, filepath.Join(dir, "p1_tracks.csv"))
		fakes.AssertFileExists(t, filepath.Join(dir, "p1_metadata.json"))
	})

	t.Run("nil service fails with ErrServiceUnavailable", func(t *testing.T) {
		_, err := engine.BulkExport(context.Background(), nil, nil, []string{"p1"}, BulkExportOpts{})
		if err == nil {
			t.Fatal("expected error for nil service")
		}
	})
}
