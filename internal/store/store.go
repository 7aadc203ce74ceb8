// Package store persists console state: the view transform, bookmarks
// and snapshot records, backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hamgrid/groundscope/internal/overlay"
	"github.com/hamgrid/groundscope/internal/view"
)

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS view_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    scale      REAL NOT NULL,
    offset     REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bookmarks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    label      TEXT NOT NULL,
    frequency  REAL NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshots (
    id               TEXT PRIMARY KEY,
    filename         TEXT NOT NULL,
    target           TEXT NOT NULL,
    center_frequency REAL NOT NULL,
    width            INTEGER NOT NULL,
    height           INTEGER NOT NULL,
    created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SnapshotRecord is one captured snapshot's metadata row.
type SnapshotRecord struct {
	ID              string    `json:"id"`
	Filename        string    `json:"filename"`
	Target          string    `json:"target"`
	CenterFrequency float64   `json:"centerFrequency"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store handles database operations.
type Store struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a store over the SQLite database at dbPath. Connections
// are opened lazily and the schema is initialized on first write.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// Ensure the schema exists before a read-only connection opens
		// the file.
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

const upsertViewStateSQL = `
INSERT INTO view_state (id, scale, offset, updated_at)
VALUES (1, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (id) DO UPDATE SET
    scale = excluded.scale,
    offset = excluded.offset,
    updated_at = excluded.updated_at`

// SaveViewState upserts the singleton view transform row. Satisfies
// view.Saver for the debounced persister.
func (s *Store) SaveViewState(state view.State) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.Prepare(upsertViewStateSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.Exec(state.Scale, state.Offset); err != nil {
		return fmt.Errorf("saving view state: %w", err)
	}
	return nil
}

const selectViewStateSQL = `
SELECT
    scale,
    offset
FROM view_state
WHERE
    id = 1`

// LoadViewState returns the persisted view state; found is false when
// none was ever saved.
func (s *Store) LoadViewState() (state view.State, found bool, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.Prepare(selectViewStateSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	switch err = stmt.QueryRow().Scan(&state.Scale, &state.Offset); {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
		return
	case err != nil:
		err = fmt.Errorf("scanning view state: %w", err)
		return
	}

	found = true
	return
}

const insertBookmarkSQL = `
INSERT INTO bookmarks (label, frequency)
VALUES (?, ?)`

// AddBookmark stores a bookmark and returns its ID.
func (s *Store) AddBookmark(ctx context.Context, label string, frequency float64) (id int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertBookmarkSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, label, frequency)
	if err != nil {
		err = fmt.Errorf("inserting bookmark: %w", err)
		return
	}

	id, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting bookmark ID: %w", err)
	}
	return
}

const deleteBookmarkSQL = `
DELETE FROM bookmarks
WHERE
    id = ?`

// DeleteBookmark removes a bookmark by ID.
func (s *Store) DeleteBookmark(ctx context.Context, id int64) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, deleteBookmarkSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("deleting bookmark: %w", err)
	}
	return nil
}

const selectBookmarksSQL = `
SELECT
    id,
    label,
    frequency
FROM bookmarks
ORDER BY
    frequency`

// Bookmarks lists all bookmarks in frequency order.
func (s *Store) Bookmarks(ctx context.Context) (bookmarks []overlay.Bookmark, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectBookmarksSQL)
	if err != nil {
		err = fmt.Errorf("querying bookmarks: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var b overlay.Bookmark
		if err = rows.Scan(&b.ID, &b.Label, &b.Frequency); err != nil {
			err = fmt.Errorf("scanning bookmark: %w", err)
			return
		}
		bookmarks = append(bookmarks, b)
	}
	err = rows.Err()
	return
}

const insertSnapshotSQL = `
INSERT INTO snapshots (id,
                       filename,
                       target,
                       center_frequency,
                       width,
                       height)
VALUES (?, ?, ?, ?, ?, ?)`

// RecordSnapshot stores one snapshot's metadata.
func (s *Store) RecordSnapshot(ctx context.Context, rec SnapshotRecord) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertSnapshotSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	_, err = stmt.ExecContext(ctx, rec.ID, rec.Filename, rec.Target, rec.CenterFrequency, rec.Width, rec.Height)
	if err != nil {
		return fmt.Errorf("inserting snapshot record: %w", err)
	}
	return nil
}

const selectSnapshotsSQL = `
SELECT
    id,
    filename,
    target,
    center_frequency,
    width,
    height,
    created_at
FROM snapshots
ORDER BY
    created_at DESC
LIMIT ?`

// Snapshots lists the most recent snapshot records, newest first.
func (s *Store) Snapshots(ctx context.Context, limit int) (records []SnapshotRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSnapshotsSQL, limit)
	if err != nil {
		err = fmt.Errorf("querying snapshots: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec SnapshotRecord
		if err = rows.Scan(&rec.ID, &rec.Filename, &rec.Target, &rec.CenterFrequency,
			&rec.Width, &rec.Height, &rec.CreatedAt); err != nil {
			err = fmt.Errorf("scanning snapshot record: %w", err)
			return
		}
		records = append(records, rec)
	}
	err = rows.Err()
	return
}

// Close closes both database connections.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
