package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/syncronus/internal/models"
	"github.com/desertthunder/syncronus/internal/shared"
)

// PlaylistRepository caches playlist metadata per service.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a repository over the given database connection.
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Upsert inserts or refreshes the cached row for a service playlist.
func (r *PlaylistRepository) Upsert(service string, playlist models.Playlist) error {
	if service == "" || playlist.ID == "" {
		return fmt.Errorf("%w: service and playlist id are required", shared.ErrInvalidArgument)
	}

	query := `
		INSERT INTO playlists (id, service, service_id, name, description, track_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service, service_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			track_count = excluded.track_count,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	_, err := r.db.Exec(query,
		shared.GenerateID(),
		service,
		playlist.ID,
		playlist.Name,
		playlist.Description,
		playlist.TrackCount,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert playlist: %w", err)
	}

	return nil
}

// GetByServiceID retrieves a cached playlist by its service-native ID.
func (r *PlaylistRepository) GetByServiceID(service, serviceID string) (*models.Playlist, error) {
	query := `
		SELECT service_id, name, description, track_count
		FROM playlists
		WHERE service = ? AND service_id = ?
	`

	var playlist models.Playlist
	err := r.db.QueryRow(query, service, serviceID).Scan(
		&playlist.ID,
		&playlist.Name,
		&playlist.Description,
		&playlist.TrackCount,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", shared.ErrPlaylistNotFound, service, serviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	return &playlist, nil
}

// FindByName retrieves a cached playlist by exact name within a service.
func (r *PlaylistRepository) FindByName(service, name string) (*models.Playlist, error) {
	query := `
		SELECT service_id, name, description, track_count
		FROM playlists
		WHERE service = ? AND name = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var playlist models.Playlist
	err := r.db.QueryRow(query, service, name).Scan(
		&playlist.ID,
		&playlist.Name,
		&playlist.Description,
		&playlist.TrackCount,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s %q", shared.ErrPlaylistNotFound, service, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	return &playlist, nil
}

// List retrieves all cached playlists for a service, most recently updated first.
func (r *PlaylistRepository) List(service string) ([]models.Playlist, error) {
	query := `
		SELECT service_id, name, description, track_count
		FROM playlists
		WHERE service = ?
		ORDER BY updated_at DESC
	`

	rows, err := r.db.Query(query, service)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		var playlist models.Playlist
		if err := rows.Scan(&playlist.ID, &playlist.Name, &playlist.Description, &playlist.TrackCount); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}
