package services

import (
	"context"

	"github.com/desertthunder/syncronus/internal/auth"
	"github.com/desertthunder/syncronus/internal/models"
)

// Service defines the interface for music service providers (Spotify, Tidal) that can export and import playlists.
type Service interface {
	// Authenticate checks cached credentials, refreshing if possible.
	// Returns "" when the session is ready, or the authorization URL the user
	// must visit when the interactive flow has to be (re)run.
	Authenticate(ctx context.Context) (string, error)

	// GetPlaylists retrieves all playlists for the authenticated user.
	GetPlaylists(ctx context.Context) ([]models.Playlist, error)

	// GetPlaylist retrieves a specific playlist by ID.
	GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error)

	// ExportPlaylist exports a playlist with all its tracks.
	ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error)

	// ImportPlaylist creates a new playlist on the service and populates it with
	// the provided tracks, matching by ISRC.
	ImportPlaylist(ctx context.Context, playlist *models.PlaylistExport) (*models.Playlist, error)

	// FindByISRC looks a track up by its platform-independent recording code.
	FindByISRC(ctx context.Context, isrc string) (*models.Track, error)

	// Name returns the name of the service (e.g., "Spotify", "Tidal")
	Name() string
}

// OAuthService extends Service for providers driven by the interactive OAuth2 flow.
type OAuthService interface {
	Service

	// Session exposes the provider's OAuth2 session for the callback server.
	Session() *auth.Session
}
