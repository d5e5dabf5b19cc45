// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package recordings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/persistence/sqlite"
)

// ErrNotFound is returned by Catalog.Get for unknown IDs.
var ErrNotFound = errors.New("recordings: not found")

var schema = []string{
	`CREATE TABLE recordings (
		id           TEXT PRIMARY KEY,
		path         TEXT NOT NULL,
		backend      TEXT NOT NULL,
		frames       INTEGER NOT NULL,
		bytes        INTEGER NOT NULL,
		duration_ns  INTEGER NOT NULL,
		started_at   INTEGER NOT NULL,
		finished_at  INTEGER NOT NULL,
		orientation  INTEGER NOT NULL,
		properties   TEXT NOT NULL,
		fault        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX recordings_started_at ON recordings (started_at DESC)`,
}

// Record is a cataloged artifact. Fault is set when the recording ended on a
// source fault but was salvaged.
type Record struct {
	capture.Artifact
	Fault string `json:"fault,omitempty"`
}

// Catalog stores finalized artifacts in SQLite.
type Catalog struct {
	db   *sql.DB
	path string
}

// OpenCatalog opens (and migrates) the catalog database at path, creating
// its directory if needed.
func OpenCatalog(ctx context.Context, path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("recordings: create catalog dir: %w", err)
	}
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Catalog{db: db, path: path}, nil
}

// Path returns the database file path.
func (c *Catalog) Path() string { return c.path }

// Close releases the database.
func (c *Catalog) Close() error { return c.db.Close() }

// Ping checks the database connection.
func (c *Catalog) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

// Add inserts rec, replacing any row with the same ID.
func (c *Catalog) Add(ctx context.Context, rec Record) error {
	props, err := json.Marshal(rec.Properties)
	if err != nil {
		return fmt.Errorf("recordings: encode properties: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `INSERT OR REPLACE INTO recordings
		(id, path, backend, frames, bytes, duration_ns, started_at, finished_at, orientation, properties, fault)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Path, rec.Backend, int64(rec.Frames), rec.Bytes, int64(rec.Duration),
		rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(), int32(rec.Orientation), string(props), rec.Fault)
	if err != nil {
		return fmt.Errorf("recordings: insert %s: %w", rec.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, path, backend, frames, bytes, duration_ns, started_at, finished_at, orientation, properties, fault FROM recordings`

// Get returns the record with id or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (Record, error) {
	row := c.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// List returns up to limit records, newest first. limit <= 0 means 100.
func (c *Catalog) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := c.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recordings: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec                   Record
		frames, durationNS    int64
		startedNS, finishedNS int64
		orientation           int32
		props                 string
	)
	err := s.Scan(&rec.ID, &rec.Path, &rec.Backend, &frames, &rec.Bytes, &durationNS,
		&startedNS, &finishedNS, &orientation, &props, &rec.Fault)
	if err != nil {
		return Record{}, err
	}
	rec.Frames = uint64(frames)
	rec.Duration = time.Duration(durationNS)
	rec.StartedAt = time.Unix(0, startedNS).UTC()
	rec.FinishedAt = time.Unix(0, finishedNS).UTC()
	rec.Orientation = capture.Orientation(orientation)
	if err := json.Unmarshal([]byte(props), &rec.Properties); err != nil {
		return Record{}, fmt.Errorf("recordings: decode properties of %s: %w", rec.ID, err)
	}
	return rec, nil
}
