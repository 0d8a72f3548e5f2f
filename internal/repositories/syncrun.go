package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/syncronus/internal/models"
	"github.com/desertthunder/syncronus/internal/shared"
)

// SyncRunRepository records playlist transfers and their match counts.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a repository over the given database connection.
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Start records the beginning of a transfer and returns its run ID.
func (r *SyncRunRepository) Start(sourceService, destService, sourcePlaylistID string) (string, error) {
	if sourceService == "" || destService == "" {
		return "", fmt.Errorf("%w: source and destination services are required", shared.ErrInvalidArgument)
	}

	id := shared.GenerateID()
	query := `
		INSERT INTO sync_runs (id, source_service, dest_service, source_playlist_id, started_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if _, err := r.db.Exec(query, id, sourceService, destService, sourcePlaylistID, time.Now()); err != nil {
		return "", fmt.Errorf("failed to record sync run: %w", err)
	}

	return id, nil
}

// Finish records the outcome of a transfer started with [SyncRunRepository.Start].
func (r *SyncRunRepository) Finish(id, destPlaylistID string, total, matched, failed int) error {
	query := `
		UPDATE sync_runs
		SET dest_playlist_id = ?, total_tracks = ?, matched_tracks = ?, failed_tracks = ?, finished_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, destPlaylistID, total, matched, failed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sync run not found: %s", id)
	}

	return nil
}

// List retrieves the most recent sync runs, newest first.
func (r *SyncRunRepository) List(limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, source_service, dest_service, source_playlist_id, dest_playlist_id,
			total_tracks, matched_tracks, failed_tracks, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var (
			run        models.SyncRun
			finishedAt sql.NullTime
		)
		err := rows.Scan(
			&run.ID,
			&run.SourceService,
			&run.DestService,
			&run.SourcePlaylistID,
			&run.DestPlaylistID,
			&run.TotalTracks,
			&run.MatchedTracks,
			&run.FailedTracks,
			&run.StartedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}
