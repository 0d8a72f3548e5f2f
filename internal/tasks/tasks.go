package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncronus/internal/models"
	"github.com/desertthunder/syncronus/internal/repositories"
	"github.com/desertthunder/syncronus/internal/services"
	"github.com/desertthunder/syncronus/internal/shared"
)

// TrackMatchResult represents the result of attempting to match a single track.
type TrackMatchResult struct {
	Original models.Track  // Original track from source
	Matched  *models.Track // Matched track (nil if not found)
	Error    error         // Error if match failed
}

// SyncRunResult contains all data from a full transfer operation.
type SyncRunResult struct {
	SourcePlaylist  *models.PlaylistExport // Source playlist with tracks
	DestPlaylist    *models.Playlist       // Created destination playlist
	TrackMatches    []TrackMatchResult     // Individual track match results
	SuccessCount    int                    // Number of successfully matched tracks
	FailedCount     int                    // Number of failed matches
	TotalTracks     int                    // Total tracks processed
	MatchPercentage float64                // Success rate as percentage
}

// ComparisonResult contains track comparison details between two playlists.
type ComparisonResult struct {
	SourcePlaylist *models.PlaylistExport // Source playlist
	DestPlaylist   *models.PlaylistExport // Destination playlist
	MatchedCount   int                    // Tracks found in both
	MissingInDest  []models.Track         // Tracks in source but not in dest
	ExtraInDest    []models.Track         // Tracks in dest but not in source
}

// DiffResult contains the results of comparing two playlists.
type DiffResult struct {
	Comparison ComparisonResult
}

// SyncEngine defines operations for syncing playlists between services.
type SyncEngine interface {
	// Run performs a full source → destination sync: fetches the source
	// playlist, matches its tracks by ISRC, and creates the destination playlist.
	Run(ctx context.Context, progress chan<- ProgressUpdate, sourceIDOrName string) (*SyncRunResult, error)

	// Diff compares two playlists across services by identifying matched tracks, missing tracks, and extra tracks.
	Diff(ctx context.Context, progress chan<- ProgressUpdate, sourceSvc, destSvc services.Service, sourceID, destID string) (*DiffResult, error)

	// BulkExport exports multiple playlists from one service to local files.
	BulkExport(ctx context.Context, progress chan<- ProgressUpdate, srv services.Service, ids []string, opts BulkExportOpts) (*BulkExportResult, error)
}

// PlaylistEngine implements SyncEngine for playlist operations.
type PlaylistEngine struct {
	source  services.Service
	dest    services.Service
	history *repositories.SyncRunRepository // Optional; nil disables run recording
	tracks  *repositories.TrackRepository   // Optional local match cache
	logger  *log.Logger
}

// NewPlaylistEngine creates an engine transferring from source to dest.
func NewPlaylistEngine(source, dest services.Service, logger *log.Logger) *PlaylistEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PlaylistEngine{source: source, dest: dest, logger: logger}
}

// WithHistory enables sync-run recording through the given repository.
func (e *PlaylistEngine) WithHistory(history *repositories.SyncRunRepository) *PlaylistEngine {
	e.history = history
	return e
}

// WithTrackCache enables the local ISRC match cache.
func (e *PlaylistEngine) WithTrackCache(tracks *repositories.TrackRepository) *PlaylistEngine {
	e.tracks = tracks
	return e
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, skip this update
	}
}

// resolveSource exports the source playlist by ID, falling back to an exact
// name match against the user's library.
func (e *PlaylistEngine) resolveSource(ctx context.Context, idOrName string) (*models.PlaylistExport, error) {
	export, err := e.source.ExportPlaylist(ctx, idOrName)
	if err == nil {
		return export, nil
	}

	playlists, listErr := e.source.GetPlaylists(ctx)
	if listErr != nil {
		return nil, fmt.Errorf("%w: failed to get playlists: %v", shared.ErrAPIRequest, listErr)
	}

	for _, pl := range playlists {
		if pl.Name == idOrName {
			export, err = e.source.ExportPlaylist(ctx, pl.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to export playlist: %v", shared.ErrAPIRequest, err)
			}
			return export, nil
		}
	}

	return nil, fmt.Errorf("%w: no playlist found with name '%s'", shared.ErrPlaylistNotFound, idOrName)
}

// matchTrack finds the destination track for a source track by ISRC, checking
// the local cache before the provider's search endpoint.
func (e *PlaylistEngine) matchTrack(ctx context.Context, track models.Track) (*models.Track, error) {
	if track.ISRC == "" {
		return nil, fmt.Errorf("%w: track %q has no ISRC", shared.ErrTrackNotFound, track.Title)
	}

	if e.tracks != nil {
		if cached, err := e.tracks.FindByISRC(e.dest.Name(), track.ISRC); err == nil {
			return cached, nil
		}
	}

	matched, err := e.dest.FindByISRC(ctx, track.ISRC)
	if err != nil {
		return nil, err
	}

	if e.tracks != nil {
		if err := e.tracks.Upsert(e.dest.Name(), *matched); err != nil {
			e.logger.Warn("failed to cache matched track", "isrc", track.ISRC, "error", err)
		}
	}

	return matched, nil
}

// Run performs a full source → destination playlist sync.
func (e *PlaylistEngine) Run(ctx context.Context, progress chan<- ProgressUpdate, sourceIDOrName string) (*SyncRunResult, error) {
	if e.source == nil || e.dest == nil {
		return nil, fmt.Errorf("%w: service not initialized", shared.ErrServiceUnavailable)
	}

	result := &SyncRunResult{}

	e.sendProgress(progress, fetchSourceUpdate(1, 1, e.source.Name()))

	srcPlaylist, err := e.resolveSource(ctx, sourceIDOrName)
	if err != nil {
		return nil, err
	}

	total := len(srcPlaylist.Tracks)
	result.SourcePlaylist = srcPlaylist
	result.TotalTracks = total

	var runID string
	if e.history != nil {
		if runID, err = e.history.Start(e.source.Name(), e.dest.Name(), srcPlaylist.Playlist.ID); err != nil {
			e.logger.Warn("failed to record sync run", "error", err)
			runID = ""
		}
	}

	e.sendProgress(progress, foundPlaylistUpdate(srcPlaylist))
	e.sendProgress(progress, matchTracksUpdate(0, total, nil, e.dest.Name()))

	matches := make([]TrackMatchResult, total)
	successCount := 0

	for i, track := range srcPlaylist.Tracks {
		e.sendProgress(progress, matchTracksUpdate(i+1, total, &track, e.dest.Name()))

		matched, err := e.matchTrack(ctx, track)
		matches[i] = TrackMatchResult{
			Original: track,
			Matched:  matched,
			Error:    err,
		}

		if err == nil {
			successCount++
		} else if errors.Is(err, shared.ErrNotInRegion) {
			e.logger.Warn("track not available in destination region", "title", track.Title, "isrc", track.ISRC)
		}
	}

	result.TrackMatches = matches
	result.SuccessCount = successCount
	result.FailedCount = total - successCount
	if total > 0 {
		result.MatchPercentage = float64(successCount) / float64(total) * 100
	}

	finish := func(destID string) {
		if e.history != nil && runID != "" {
			if err := e.history.Finish(runID, destID, total, successCount, total-successCount); err != nil {
				e.logger.Warn("failed to finish sync run record", "error", err)
			}
		}
	}

	if successCount == 0 {
		finish("")
		return result, fmt.Errorf("no tracks were matched - cannot create empty playlist")
	}

	e.sendProgress(progress, createDestinationUpdate(e.dest.Name()))

	matchedTracks := make([]models.Track, 0, successCount)
	for _, match := range matches {
		if match.Matched != nil {
			track := match.Original
			track.ISRC = match.Matched.ISRC
			matchedTracks = append(matchedTracks, track)
		}
	}
	destExport := &models.PlaylistExport{
		Playlist: models.Playlist{
			Name:        srcPlaylist.Playlist.Name,
			Description: fmt.Sprintf("Synced from %s: %s", e.source.Name(), srcPlaylist.Playlist.Name),
			Public:      false,
		},
		Tracks: matchedTracks,
	}

	importedPl, err := e.dest.ImportPlaylist(ctx, destExport)
	if err != nil {
		finish("")
		return result, fmt.Errorf("%w: failed to create playlist: %v", shared.ErrAPIRequest, err)
	}

	result.DestPlaylist = importedPl
	finish(importedPl.ID)
	e.sendProgress(progress, createdPlaylistUpdate(importedPl))
	return result, nil
}

// Diff compares two playlists and identifies differences.
//
// ISRC equality is authoritative; tracks without a code fall back to a
// normalized title/artist key.
func (e *PlaylistEngine) Diff(ctx context.Context, progress chan<- ProgressUpdate, sourceSvc, destSvc services.Service, sourceID, destID string) (*DiffResult, error) {
	if sourceSvc == nil || destSvc == nil {
		return nil, fmt.Errorf("%w: service not initialized", shared.ErrServiceUnavailable)
	}

	result := &DiffResult{}

	e.sendProgress(progress, fetchSourceUpdate(1, 2, sourceSvc.Name()))
	sourceExport, err := sourceSvc.ExportPlaylist(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to export source playlist: %v", shared.ErrPlaylistNotFound, err)
	}

	e.sendProgress(progress, fetchDestUpdate(2, 2, destSvc.Name()))
	destExport, err := destSvc.ExportPlaylist(ctx, destID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to export destination playlist: %v", shared.ErrPlaylistNotFound, err)
	}

	result.Comparison.SourcePlaylist = sourceExport
	result.Comparison.DestPlaylist = destExport

	e.sendProgress(progress, buildDestMapUpdate(1, 2))
	destKeyMap := make(map[string]models.Track)
	destISRCMap := make(map[string]models.Track)

	for _, track := range destExport.Tracks {
		destKeyMap[shared.NormalizeTrackKey(track.Title, track.Artist)] = track
		if track.ISRC != "" {
			destISRCMap[track.ISRC] = track
		}
	}

	e.sendProgress(progress, missingTrackUpdate(2, 2))
	var missingInDest []models.Track
	matchedCount := 0

	for _, srcTrack := range sourceExport.Tracks {
		if trackPresent(srcTrack, destISRCMap, destKeyMap) {
			matchedCount++
		} else {
			missingInDest = append(missingInDest, srcTrack)
		}
	}

	sourceKeyMap := make(map[string]models.Track)
	sourceISRCMap := make(map[string]models.Track)

	for _, track := range sourceExport.Tracks {
		sourceKeyMap[shared.NormalizeTrackKey(track.Title, track.Artist)] = track
		if track.ISRC != "" {
			sourceISRCMap[track.ISRC] = track
		}
	}

	var extraInDest []models.Track
	for _, destTrack := range destExport.Tracks {
		if !trackPresent(destTrack, sourceISRCMap, sourceKeyMap) {
			extraInDest = append(extraInDest, destTrack)
		}
	}

	result.Comparison.MatchedCount = matchedCount
	result.Comparison.MissingInDest = missingInDest
	result.Comparison.ExtraInDest = extraInDest

	return result, nil
}

// trackPresent reports whether track appears in the given ISRC and
// normalized-key indexes.
func trackPresent(track models.Track, isrcMap, keyMap map[string]models.Track) bool {
	if track.ISRC != "" {
		if _, found := isrcMap[track.ISRC]; found {
			return true
		}
	}
	_, found := keyMap[shared.NormalizeTrackKey(track.Title, track.Artist)]
	return found
}
