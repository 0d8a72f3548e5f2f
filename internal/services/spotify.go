// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncronus/internal/auth"
	"github.com/desertthunder/syncronus/internal/models"
	"github.com/desertthunder/syncronus/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// SpotifyProvider is the capability descriptor for Spotify's token endpoint:
// no PKCE, client secret on both exchange and refresh.
var SpotifyProvider = auth.Provider{
	Name:             "Spotify",
	AuthURL:          spotifyAuthURL,
	TokenURL:         spotifyTokenURL,
	UsePKCE:          false,
	SecretOnExchange: true,
	SecretOnRefresh:  true,
}

var spotifyScopes = []string{
	"playlist-read-private",
	"playlist-modify-public",
	"playlist-modify-private",
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	URI         string          `json:"uri"`
}

type spotifyTracksRef struct {
	Href  string `json:"href"`
	Total int    `json:"total"`
}

type spotifyExternalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyPlaylist represents a Spotify playlist object.
type SpotifyPlaylist struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Public       bool                `json:"public"`
	Tracks       spotifyTracksRef    `json:"tracks"`
	Images       []SpotifyImage      `json:"images"`
	ExternalURLs spotifyExternalURLs `json:"external_urls"`
}

// spotifyPage is Spotify's offset-pagination envelope; Next is an absolute URL.
type spotifyPage struct {
	Items []json.RawMessage `json:"items"`
	Next  *string           `json:"next"`
}

// SpotifyService implements [Service] for the Spotify Web API.
type SpotifyService struct {
	session *auth.Session
	fetcher *Fetcher
	logger  *log.Logger
}

// NewSpotifyService creates a Spotify service from resolved credentials, caching
// tokens at cachePath.
func NewSpotifyService(cfg shared.ServiceConfig, cachePath string, logger *log.Logger) (*SpotifyService, error) {
	cfg = cfg.Resolve("SPOTIFY")

	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	session, err := auth.NewSession(SpotifyProvider, auth.SessionOpts{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       spotifyScopes,
		Store:        auth.NewStore(cachePath),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(session, spotifyBaseURL, FetcherOpts{
		Logger:  logger,
		Limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
	})

	return &SpotifyService{session: session, fetcher: fetcher, logger: logger}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// Session exposes the OAuth2 session for the interactive callback flow.
func (s *SpotifyService) Session() *auth.Session {
	return s.session
}

// Authenticate returns "" when cached credentials are usable, or the
// authorization URL the user must visit.
func (s *SpotifyService) Authenticate(ctx context.Context) (string, error) {
	if s.session.Authenticated() {
		if err := s.session.EnsureToken(ctx); err == nil {
			return "", nil
		}
	}

	s.logger.Warn("no valid Spotify token, interactive authorization required")

	state, err := shared.GenerateState()
	if err != nil {
		return "", err
	}

	return s.session.AuthURL(state)
}

// GetPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	playlists, err := FetchAll(ctx, s.fetcher, "/me/playlists", parseSpotifyPage,
		func(raw json.RawMessage) (models.Playlist, bool, error) {
			var sp SpotifyPlaylist
			if err := json.Unmarshal(raw, &sp); err != nil {
				return models.Playlist{}, false, err
			}
			return playlistFromSpotify(sp), true, nil
		}, PageOpts{})

	if errors.Is(err, shared.ErrEmptyCollection) {
		return []models.Playlist{}, nil
	}

	return playlists, err
}

// GetPlaylist retrieves a specific playlist by ID.
func (s *SpotifyService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	sp, err := s.playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	playlist := playlistFromSpotify(*sp)
	return &playlist, nil
}

// ExportPlaylist exports a playlist with all its tracks.
func (s *SpotifyService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	sp, err := s.playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	tracksURL := sp.Tracks.Href
	if tracksURL == "" {
		tracksURL = fmt.Sprintf("/playlists/%s/tracks", playlistID)
	}

	tracks, err := FetchAll(ctx, s.fetcher, tracksURL, parseSpotifyPage, mapSpotifyPlaylistItem, PageOpts{})
	if errors.Is(err, shared.ErrEmptyCollection) {
		s.logger.Warn("playlist has no tracks", "playlist", playlistID)
		tracks = nil
	} else if err != nil {
		return nil, err
	}

	return &models.PlaylistExport{Playlist: playlistFromSpotify(*sp), Tracks: tracks}, nil
}

// ImportPlaylist creates a playlist on Spotify and adds ISRC-matched tracks in batches of 100.
func (s *SpotifyService) ImportPlaylist(ctx context.Context, export *models.PlaylistExport) (*models.Playlist, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"name":        export.Playlist.Name,
		"description": export.Playlist.Description,
		"public":      export.Playlist.Public,
	}

	raw, err := s.fetcher.Post(ctx, fmt.Sprintf("/users/%s/playlists", userID), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	var created SpotifyPlaylist
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created playlist: %w", err)
	}

	var uris []string
	for _, track := range export.Tracks {
		if track.ISRC == "" {
			s.logger.Warn("track has no ISRC, skipping", "title", track.Title)
			continue
		}

		match, err := s.FindByISRC(ctx, track.ISRC)
		if err != nil {
			s.logger.Warn("failed to match track", "isrc", track.ISRC, "error", err)
			continue
		}
		uris = append(uris, "spotify:track:"+match.ID)
	}

	addURL := fmt.Sprintf("/playlists/%s/tracks", created.ID)
	for i := 0; i < len(uris); i += 100 {
		batch := uris[i:min(i+100, len(uris))]
		if _, err := s.fetcher.Post(ctx, addURL, map[string]any{"uris": batch}); err != nil {
			return nil, fmt.Errorf("failed to add tracks to playlist %s: %w", created.ID, err)
		}
	}

	s.logger.Info("imported playlist", "name", export.Playlist.Name, "id", created.ID, "tracks", len(uris))

	result := playlistFromSpotify(created)
	result.TrackCount = len(uris)
	return &result, nil
}

// FindByISRC searches Spotify for a track by recording code.
func (s *SpotifyService) FindByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	params := url.Values{}
	params.Set("q", "isrc:"+isrc)
	params.Set("type", "track")
	params.Set("limit", "1")

	raw, err := s.fetcher.Get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	if len(result.Tracks.Items) == 0 {
		return nil, fmt.Errorf("%w: no Spotify match for ISRC %s", shared.ErrTrackNotFound, isrc)
	}

	track := trackFromSpotify(result.Tracks.Items[0])
	return &track, nil
}

func (s *SpotifyService) playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	raw, err := s.fetcher.Get(ctx, fmt.Sprintf("/playlists/%s", playlistID), nil)
	if err != nil {
		return nil, err
	}

	var sp SpotifyPlaylist
	if err := json.Unmarshal(raw, &sp); err != nil {
		return nil, fmt.Errorf("failed to decode playlist: %w", err)
	}

	return &sp, nil
}

func (s *SpotifyService) userID(ctx context.Context) (string, error) {
	raw, err := s.fetcher.Get(ctx, "/me", nil)
	if err != nil {
		return "", err
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &user); err != nil {
		return "", fmt.Errorf("failed to decode user profile: %w", err)
	}

	return user.ID, nil
}

func parseSpotifyPage(raw json.RawMessage) (Page, error) {
	var page spotifyPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return Page{}, err
	}

	next := ""
	if page.Next != nil {
		next = *page.Next
	}

	return Page{Items: page.Items, Next: next}, nil
}

// mapSpotifyPlaylistItem converts a playlist-track wrapper to a [models.Track].
//
// Local files and removed tracks come back with a null track object; they are
// skipped, not errors.
func mapSpotifyPlaylistItem(raw json.RawMessage) (models.Track, bool, error) {
	var item struct {
		Track *SpotifyTrack `json:"track"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return models.Track{}, false, err
	}

	if item.Track == nil || item.Track.ID == "" {
		return models.Track{}, false, nil
	}

	return trackFromSpotify(*item.Track), true, nil
}

func playlistFromSpotify(sp SpotifyPlaylist) models.Playlist {
	return models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
		URL:         sp.ExternalURLs.Spotify,
	}
}

func trackFromSpotify(st SpotifyTrack) models.Track {
	track := models.Track{
		ID:       st.ID,
		Title:    st.Name,
		Album:    st.Album.Name,
		Duration: st.DurationMS / 1000,
		ISRC:     st.ExternalIDs.ISRC,
	}

	if len(st.Artists) > 0 {
		track.Artist = st.Artists[0].Name
	}

	return track
}
