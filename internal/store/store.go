// Package store provides the durable sqlite-backed job snapshot store
// and the seen-video set used by the ingestion loop.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lunarchive/lunarchive/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id      TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS video_history (
	id TEXT PRIMARY KEY
);
`

// StoredJob is one persisted snapshot as raw payload. Decoding is left
// to the caller so a single undecodable row cannot abort rehydration.
type StoredJob struct {
	ID      string `db:"id"`
	Payload []byte `db:"payload"`
}

// Store is the sqlite-backed persistence layer.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store mkdir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// UpsertJob writes the snapshot for id, replacing any previous payload.
func (s *Store) UpsertJob(ctx context.Context, id string, snap domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		id, payload,
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// AllJobs returns every persisted snapshot. Jobs are never deleted from
// the store, only hidden from display, so this is the full history.
func (s *Store) AllJobs(ctx context.Context) ([]StoredJob, error) {
	var jobs []StoredJob
	if err := s.db.SelectContext(ctx, &jobs, `SELECT id, payload FROM jobs`); err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	return jobs, nil
}

// ContainsOrInsertVideo atomically records the video id as seen and
// reports whether it was already present.
func (s *Store) ContainsOrInsertVideo(ctx context.Context, videoID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO video_history (id) VALUES (?) ON CONFLICT(id) DO NOTHING`,
		videoID,
	)
	if err != nil {
		return false, fmt.Errorf("record video: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record video: %w", err)
	}
	return inserted == 0, nil
}
