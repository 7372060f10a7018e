package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// PlaylistRepository persists the playlist order list and the playlist index.
//
// The order list is a single row holding a JSON array of ids. The index holds one row per playlist with its
// tracks encoded as a JSON array.
type PlaylistRepository struct {
	db DBTX
}

// NewPlaylistRepository creates a new PlaylistRepository on a connection or transaction
func NewPlaylistRepository(db DBTX) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// ReadOrder returns the stored order list, or an empty list when none was written yet.
func (r *PlaylistRepository) ReadOrder(ctx context.Context) ([]string, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, "SELECT ids FROM playlist_order WHERE id = 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist order: %w", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode playlist order: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// WriteOrder replaces the order list.
func (r *PlaylistRepository) WriteOrder(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode playlist order: %w", err)
	}

	query := `
		INSERT INTO playlist_order (id, ids, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET ids = excluded.ids, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, string(raw)); err != nil {
		return fmt.Errorf("failed to write playlist order: %w", err)
	}
	return nil
}

// Get retrieves a playlist entry by id. A missing row yields [shared.ErrPlaylistNotFound].
func (r *PlaylistRepository) Get(ctx context.Context, id string) (*models.PlaylistEntry, error) {
	query := `
		SELECT id, snapshot_id, name, total_tracks, fully_loaded, tracks
		FROM playlist_index
		WHERE id = ?
	`
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return entry, err
}

// Put inserts or replaces a playlist entry.
func (r *PlaylistRepository) Put(ctx context.Context, entry models.PlaylistEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrInvalidInput)
	}

	tracks := entry.Tracks
	if tracks == nil {
		tracks = []models.TrackEntry{}
	}
	raw, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("failed to encode tracks: %w", err)
	}

	query := `
		INSERT INTO playlist_index (id, snapshot_id, name, total_tracks, fully_loaded, tracks, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			name = excluded.name,
			total_tracks = excluded.total_tracks,
			fully_loaded = excluded.fully_loaded,
			tracks = excluded.tracks,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.SnapshotID,
		entry.Name,
		entry.TotalTracks,
		entry.FullyLoaded,
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert playlist %s: %w", entry.ID, err)
	}
	return nil
}

// Delete removes a playlist entry. Deleting a missing id is not an error.
func (r *PlaylistRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM playlist_index WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete playlist %s: %w", id, err)
	}
	return nil
}

// List returns every stored entry keyed by id.
//
// Row order is not meaningful; callers iterate through the order list.
func (r *PlaylistRepository) List(ctx context.Context) (map[string]models.PlaylistEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, snapshot_id, name, total_tracks, fully_loaded, tracks
		FROM playlist_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]models.PlaylistEntry)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries[entry.ID] = *entry
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// Count returns the number of index rows.
func (r *PlaylistRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM playlist_index").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count playlists: %w", err)
	}
	return n, nil
}

// Reset removes the order list and every index row.
func (r *PlaylistRepository) Reset(ctx context.Context) error {
	for _, stmt := range []string{"DELETE FROM playlist_order", "DELETE FROM playlist_index"} {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset playlists: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a playlist_index row into a [models.PlaylistEntry]
func scanEntry(row scanner) (*models.PlaylistEntry, error) {
	var (
		entry  models.PlaylistEntry
		tracks string
	)

	err := row.Scan(
		&entry.ID,
		&entry.SnapshotID,
		&entry.Name,
		&entry.TotalTracks,
		&entry.FullyLoaded,
		&tracks,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	if err := json.Unmarshal([]byte(tracks), &entry.Tracks); err != nil {
		return nil, fmt.Errorf("failed to decode tracks for %s: %w", entry.ID, err)
	}
	if entry.Tracks == nil {
		entry.Tracks = []models.TrackEntry{}
	}

	return &entry, nil
}
