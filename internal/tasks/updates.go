package tasks

import (
	"fmt"

	"github.com/desertthunder/syncronus/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	FetchDest
	Compare
	MatchTracks
	CreatePlaylist
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case FetchDest:
		return "fetch_dest"
	case Compare:
		return "compare"
	case MatchTracks:
		return "match_tracks"
	case CreatePlaylist:
		return "create_playlist"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

func fetchSourceUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching source playlist (%s)...", name),
	}
}

func fetchDestUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchDest,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching destination playlist (%s)...", name),
	}
}

func foundPlaylistUpdate(export *models.PlaylistExport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found playlist: %s (%d tracks)", export.Playlist.Name, len(export.Tracks)),
		Data:    export,
	}
}

func buildDestMapUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Compare,
		Step:    step,
		Total:   total,
		Message: "Building track comparison maps...",
	}
}

func missingTrackUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Compare,
		Step:    step,
		Total:   total,
		Message: "Comparing tracks...",
	}
}

func matchTracksUpdate(step, total int, tr *models.Track, destName string) ProgressUpdate {
	if tr == nil {
		return ProgressUpdate{
			Phase:   MatchTracks,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("Matching tracks on %s...", destName),
		}
	}
	return ProgressUpdate{
		Phase:   MatchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s", step, total, tr.Artist, tr.Title),
	}
}

func createDestinationUpdate(destName string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Creating playlist on %s...", destName),
	}
}

func createdPlaylistUpdate(pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", pl.Name, pl.ID),
		Data:    pl,
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
