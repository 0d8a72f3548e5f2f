// package models defines the data model for playlist synchronization between music services
package models

import "time"

// Playlist represents a music playlist from any service.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
	URL         string `json:"url,omitempty"`
}

// PlaylistExport represents a playlist with all its tracks for migration.
type PlaylistExport struct {
	Playlist Playlist `json:"playlist"`
	Tracks   []Track  `json:"tracks"`
}

// SyncRun records one playlist transfer between services.
type SyncRun struct {
	ID               string     `json:"id"`
	SourceService    string     `json:"source_service"`
	DestService      string     `json:"dest_service"`
	SourcePlaylistID string     `json:"source_playlist_id"`
	DestPlaylistID   string     `json:"dest_playlist_id,omitempty"`
	TotalTracks      int        `json:"total_tracks"`
	MatchedTracks    int        `json:"matched_tracks"`
	FailedTracks     int        `json:"failed_tracks"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// Track represents a music track from any service.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration,omitempty"` // Duration in seconds
	ISRC     string `json:"isrc,omitempty"`     // International Standard Recording Code for matching
}
