// Tidal API implementation of [Service]
//
// Tidal's v2 API follows the JSON:API convention: responses carry a "data"
// member, related resources under "included", and pagination cursors under
// "links" with root-relative hrefs.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncronus/internal/auth"
	"github.com/desertthunder/syncronus/internal/models"
	"github.com/desertthunder/syncronus/internal/shared"
	"golang.org/x/time/rate"
)

const (
	tidalAuthURL  = "https://login.tidal.com/authorize"
	tidalTokenURL = "https://auth.tidal.com/v1/oauth2/token"
	tidalBaseURL  = "https://openapi.tidal.com/v2"
)

// TidalProvider is the capability descriptor for Tidal's token endpoint: PKCE
// required, client secret never sent (Tidal rejects an unexpected
// client_secret field on refresh).
var TidalProvider = auth.Provider{
	Name:             "Tidal",
	AuthURL:          tidalAuthURL,
	TokenURL:         tidalTokenURL,
	UsePKCE:          true,
	SecretOnExchange: false,
	SecretOnRefresh:  false,
}

var tidalScopes = []string{
	"playlists.read",
	"playlists.write",
	"entitlements.read",
	"user.read",
}

// Extension-field keys in the token cache record
const (
	tidalUserIDKey  = "user_id"
	tidalCountryKey = "user_country"
)

// tidalResource is a JSON:API resource object.
type tidalResource struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

// tidalDocument is a JSON:API response envelope.
type tidalDocument struct {
	Data     json.RawMessage `json:"data"`
	Included []tidalResource `json:"included"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

type tidalPlaylistAttrs struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Privacy       string `json:"privacy"`
	NumberOfItems int    `json:"numberOfItems"`
}

type tidalTrackAttrs struct {
	Title    string `json:"title"`
	ISRC     string `json:"isrc"`
	Duration int    `json:"duration"`
}

type tidalNameAttrs struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// TidalService implements [Service] for the Tidal v2 API.
type TidalService struct {
	session *auth.Session
	fetcher *Fetcher
	logger  *log.Logger
}

// NewTidalService creates a Tidal service from resolved credentials, caching
// tokens (and the resolved user id/country) at cachePath.
func NewTidalService(cfg shared.ServiceConfig, cachePath string, logger *log.Logger) (*TidalService, error) {
	cfg = cfg.Resolve("TIDAL")

	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	session, err := auth.NewSession(TidalProvider, auth.SessionOpts{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       tidalScopes,
		Store:        auth.NewStore(cachePath),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(session, tidalBaseURL, FetcherOpts{
		Logger:     logger,
		Limiter:    rate.NewLimiter(rate.Every(250*time.Millisecond), 2),
		GetRetries: 10, // Tidal rate-limits aggressively during large exports
	})

	return &TidalService{session: session, fetcher: fetcher, logger: logger}, nil
}

func (t *TidalService) Name() string {
	return "Tidal"
}

// Session exposes the OAuth2 session for the interactive callback flow.
func (t *TidalService) Session() *auth.Session {
	return t.session
}

// Authenticate returns "" when cached credentials are usable, or the
// authorization URL the user must visit.
func (t *TidalService) Authenticate(ctx context.Context) (string, error) {
	if t.session.Authenticated() {
		if err := t.session.EnsureToken(ctx); err == nil {
			return "", nil
		}
	}

	t.logger.Warn("no valid Tidal token, interactive authorization required")

	state, err := shared.GenerateState()
	if err != nil {
		return "", err
	}

	return t.session.AuthURL(state)
}

// ensureUser resolves the user id and country, caching them as extension
// fields of the token record so restarts skip the lookup.
func (t *TidalService) ensureUser(ctx context.Context) (string, string, error) {
	creds := t.session.Credentials()
	if id, country := creds.ExtraString(tidalUserIDKey), creds.ExtraString(tidalCountryKey); id != "" && country != "" {
		return id, country, nil
	}

	raw, err := t.fetcher.Get(ctx, "/users/me", nil)
	if err != nil {
		return "", "", err
	}

	var doc struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				Country string `json:"country"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", "", fmt.Errorf("failed to decode user profile: %w", err)
	}

	creds.SetExtra(tidalUserIDKey, doc.Data.ID)
	creds.SetExtra(tidalCountryKey, doc.Data.Attributes.Country)
	if err := t.session.SaveCredentials(); err != nil {
		t.logger.Warn("failed to cache user info", "error", err)
	}

	return doc.Data.ID, doc.Data.Attributes.Country, nil
}

// GetPlaylists retrieves all playlists owned by the authenticated user.
func (t *TidalService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	userID, country, err := t.ensureUser(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("filter[r.owners.id]", userID)
	params.Set("countryCode", country)

	start := "/playlists?" + params.Encode()
	playlists, err := FetchAll(ctx, t.fetcher, start, parseTidalPage,
		func(raw json.RawMessage) (models.Playlist, bool, error) {
			pl, err := playlistFromTidal(raw)
			if err != nil {
				return models.Playlist{}, false, err
			}
			return pl, true, nil
		}, PageOpts{})

	if errors.Is(err, shared.ErrEmptyCollection) {
		return []models.Playlist{}, nil
	}

	return playlists, err
}

// GetPlaylist retrieves a specific playlist by ID.
func (t *TidalService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	_, country, err := t.ensureUser(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("countryCode", country)

	raw, err := t.fetcher.Get(ctx, fmt.Sprintf("/playlists/%s", playlistID), params)
	if err != nil {
		return nil, err
	}

	var doc tidalDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode playlist: %w", err)
	}

	pl, err := playlistFromTidal(doc.Data)
	if err != nil {
		return nil, err
	}

	return &pl, nil
}

// ExportPlaylist exports a playlist with all its tracks.
//
// Tidal's relationship pages carry only track ids; each track's detail is
// fetched individually. Region-unavailable tracks are skipped.
func (t *TidalService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	playlist, err := t.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	itemsURL := fmt.Sprintf("/playlists/%s/relationships/items", playlistID)
	tracks, err := FetchAll(ctx, t.fetcher, itemsURL, parseTidalPage,
		func(raw json.RawMessage) (models.Track, bool, error) {
			var ref tidalResource
			if err := json.Unmarshal(raw, &ref); err != nil {
				return models.Track{}, false, err
			}
			if ref.Type != "tracks" {
				return models.Track{}, false, nil
			}

			track, err := t.track(ctx, ref.ID)
			if err != nil {
				if errors.Is(err, shared.ErrNotInRegion) {
					t.logger.Warn("track not available in region, skipping", "id", ref.ID)
					return models.Track{}, false, nil
				}
				return models.Track{}, false, err
			}

			return *track, true, nil
		}, PageOpts{})

	if errors.Is(err, shared.ErrEmptyCollection) {
		t.logger.Warn("playlist has no tracks", "playlist", playlistID)
		tracks = nil
	} else if err != nil {
		return nil, err
	}

	return &models.PlaylistExport{Playlist: *playlist, Tracks: tracks}, nil
}

// ImportPlaylist creates a playlist on Tidal and adds ISRC-matched tracks.
func (t *TidalService) ImportPlaylist(ctx context.Context, export *models.PlaylistExport) (*models.Playlist, error) {
	if _, _, err := t.ensureUser(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"data": map[string]any{
			"type": "playlists",
			"attributes": map[string]any{
				"name":        export.Playlist.Name,
				"description": export.Playlist.Description,
				"privacy":     "PRIVATE",
			},
		},
	}

	raw, err := t.fetcher.Post(ctx, "/playlists", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	var doc tidalDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode created playlist: %w", err)
	}

	var created tidalResource
	if err := json.Unmarshal(doc.Data, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created playlist: %w", err)
	}

	var refs []map[string]string
	for _, track := range export.Tracks {
		if track.ISRC == "" {
			t.logger.Warn("track has no ISRC, skipping", "title", track.Title)
			continue
		}

		match, err := t.FindByISRC(ctx, track.ISRC)
		if err != nil {
			if errors.Is(err, shared.ErrNotInRegion) || errors.Is(err, shared.ErrTrackNotFound) {
				t.logger.Warn("no Tidal match for track", "isrc", track.ISRC)
				continue
			}
			return nil, fmt.Errorf("failed to match track %s: %w", track.ISRC, err)
		}

		refs = append(refs, map[string]string{"type": "tracks", "id": match.ID})
	}

	if len(refs) > 0 {
		addURL := fmt.Sprintf("/playlists/%s/relationships/items", created.ID)
		if _, err := t.fetcher.Post(ctx, addURL, map[string]any{"data": refs}); err != nil {
			return nil, fmt.Errorf("failed to add tracks to playlist %s: %w", created.ID, err)
		}
	}

	t.logger.Info("imported playlist", "name", export.Playlist.Name, "id", created.ID, "tracks", len(refs))

	return &models.Playlist{
		ID:          created.ID,
		Name:        export.Playlist.Name,
		Description: export.Playlist.Description,
		TrackCount:  len(refs),
		URL:         "https://listen.tidal.com/playlist/" + created.ID,
	}, nil
}

// FindByISRC looks up the Tidal track for a recording code in the user's region.
func (t *TidalService) FindByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	_, country, err := t.ensureUser(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("filter[isrc]", isrc)
	params.Set("countryCode", country)

	raw, err := t.fetcher.Get(ctx, "/tracks", params)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: ISRC %s", shared.ErrNotInRegion, isrc)
		}
		return nil, err
	}

	var doc struct {
		Data []tidalResource `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode track search: %w", err)
	}

	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: no Tidal match for ISRC %s", shared.ErrTrackNotFound, isrc)
	}

	var attrs tidalTrackAttrs
	if err := json.Unmarshal(doc.Data[0].Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode track attributes: %w", err)
	}

	return &models.Track{
		ID:       doc.Data[0].ID,
		Title:    attrs.Title,
		Duration: attrs.Duration,
		ISRC:     attrs.ISRC,
	}, nil
}

// track fetches one track's detail with its artists and album included.
func (t *TidalService) track(ctx context.Context, trackID string) (*models.Track, error) {
	_, country, err := t.ensureUser(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("include", "artists,albums")
	params.Set("countryCode", country)

	raw, err := t.fetcher.Get(ctx, fmt.Sprintf("/tracks/%s", trackID), params)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: track %s", shared.ErrNotInRegion, trackID)
		}
		return nil, err
	}

	var doc tidalDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}

	var res tidalResource
	if err := json.Unmarshal(doc.Data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}

	var attrs tidalTrackAttrs
	if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode track attributes: %w", err)
	}

	track := models.Track{
		ID:       res.ID,
		Title:    attrs.Title,
		Duration: attrs.Duration,
		ISRC:     attrs.ISRC,
	}

	for _, inc := range doc.Included {
		var name tidalNameAttrs
		if err := json.Unmarshal(inc.Attributes, &name); err != nil {
			continue
		}
		switch inc.Type {
		case "artists":
			if track.Artist == "" {
				track.Artist = name.Name
			}
		case "albums":
			track.Album = name.Title
		}
	}

	return &track, nil
}

// parseTidalPage extracts items and the next cursor from a JSON:API page.
// Cursors are root-relative and resolved by the fetcher.
func parseTidalPage(raw json.RawMessage) (Page, error) {
	var doc struct {
		Data  []json.RawMessage `json:"data"`
		Links struct {
			Next string `json:"next"`
		} `json:"links"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Page{}, err
	}

	return Page{Items: doc.Data, Next: doc.Links.Next}, nil
}

func playlistFromTidal(raw json.RawMessage) (models.Playlist, error) {
	var res tidalResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return models.Playlist{}, err
	}

	var attrs tidalPlaylistAttrs
	if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
		return models.Playlist{}, err
	}

	return models.Playlist{
		ID:          res.ID,
		Name:        attrs.Name,
		Description: attrs.Description,
		TrackCount:  attrs.NumberOfItems,
		Public:      attrs.Privacy == "PUBLIC",
		URL:         "https://listen.tidal.com/playlist/" + res.ID,
	}, nil
}
