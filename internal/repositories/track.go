package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/syncronus/internal/models"
	"github.com/desertthunder/syncronus/internal/shared"
)

// TrackRepository caches track metadata per service, indexed by ISRC so a
// repeat sync can skip the provider's search endpoint.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a repository over the given database connection.
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Upsert inserts or refreshes the cached row for a service track.
func (r *TrackRepository) Upsert(service string, track models.Track) error {
	if service == "" || track.ID == "" {
		return fmt.Errorf("%w: service and track id are required", shared.ErrInvalidArgument)
	}

	query := `
		INSERT INTO tracks (id, service, service_id, title, artist, album, duration, isrc, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service, service_id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			duration = excluded.duration,
			isrc = excluded.isrc
	`

	_, err := r.db.Exec(query,
		shared.GenerateID(),
		service,
		track.ID,
		track.Title,
		track.Artist,
		track.Album,
		track.Duration,
		track.ISRC,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}

	return nil
}

// FindByISRC retrieves the cached track for a recording code on one service.
func (r *TrackRepository) FindByISRC(service, isrc string) (*models.Track, error) {
	if isrc == "" {
		return nil, fmt.Errorf("%w: isrc is required", shared.ErrInvalidArgument)
	}

	query := `
		SELECT service_id, title, artist, album, duration, isrc
		FROM tracks
		WHERE service = ? AND isrc = ?
		LIMIT 1
	`

	var track models.Track
	err := r.db.QueryRow(query, service, isrc).Scan(
		&track.ID,
		&track.Title,
		&track.Artist,
		&track.Album,
		&track.Duration,
		&track.ISRC,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s %s", shared.ErrTrackNotFound, service, isrc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	return &track, nil
}

// ListByService retrieves all cached tracks for a service.
func (r *TrackRepository) ListByService(service string) ([]models.Track, error) {
	query := `
		SELECT service_id, title, artist, album, duration, isrc
		FROM tracks
		WHERE service = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query, service)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var track models.Track
		if err := rows.Scan(&track.ID, &track.Title, &track.Artist, &track.Album, &track.Duration, &track.ISRC); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}
