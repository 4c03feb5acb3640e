package weights

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash"
	_ "modernc.org/sqlite"

	"github.com/wippyai/ceval/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS weights (
	version   TEXT PRIMARY KEY,
	blob      BLOB NOT NULL,
	checksum  INTEGER NOT NULL,
	size      INTEGER NOT NULL,
	stored_at INTEGER NOT NULL
)`

// Entry describes one stored blob without its contents.
type Entry struct {
	StoredAt time.Time
	Version  string
	Size     int64
}

// SQLiteStore persists blobs in a SQLite database file. Each row carries an
// xxhash checksum; a row whose blob no longer matches it reads as absent.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
// It is idempotent.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Storage("open", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Storage("connect", path, err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Storage(fmt.Sprintf("execute %q", pragma), path, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Storage("apply schema", path, err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, version string) ([]byte, bool, error) {
	var (
		blob     []byte
		checksum int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT blob, checksum FROM weights WHERE version = ?", version,
	).Scan(&blob, &checksum)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Storage("get", version, err)
	}
	if int64(xxhash.Sum64(blob)) != checksum {
		return nil, false, nil
	}
	return blob, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, version string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weights (version, blob, checksum, size, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			blob = excluded.blob,
			checksum = excluded.checksum,
			size = excluded.size,
			stored_at = excluded.stored_at`,
		version, blob, int64(xxhash.Sum64(blob)), len(blob), time.Now().Unix(),
	)
	if err != nil {
		return errors.Storage("put", version, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, version string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM weights WHERE version = ?", version); err != nil {
		return errors.Storage("remove", version, err)
	}
	return nil
}

// List returns all entries ordered by version.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version, size, stored_at FROM weights ORDER BY version")
	if err != nil {
		return nil, errors.Storage("list", "", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			storedAt int64
		)
		if err := rows.Scan(&e.Version, &e.Size, &storedAt); err != nil {
			return nil, errors.Storage("list", "", err)
		}
		e.StoredAt = time.Unix(storedAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("list", "", err)
	}
	return entries, nil
}
