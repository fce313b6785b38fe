package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS blobs (
    name        TEXT    PRIMARY KEY,
    data        BLOB    NOT NULL,
    size        INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL  -- Unix timestamp (nanoseconds)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("blob: migrate: %w", err)
	}
	return nil
}

// Put stores data under name, replacing any existing blob.
func (s *SQLiteStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	const q = `
INSERT INTO blobs (name, data, size, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET data = excluded.data, size = excluded.size, updated_at = excluded.updated_at`
	if data == nil {
		data = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, q, name, data, len(data), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("blob: put %s: %w", name, err)
	}
	return nil
}

// Get returns the blob stored under name.
func (s *SQLiteStore) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("blob.get", name)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: get %s: %w", name, err)
	}
	return data, nil
}

// List returns every blob ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, size, updated_at FROM blobs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("blob: list: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var (
			info Info
			ts   int64
		)
		if err := rows.Scan(&info.Name, &info.Size, &ts); err != nil {
			return nil, fmt.Errorf("blob: list scan: %w", err)
		}
		info.UpdatedAt = time.Unix(0, ts).UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("blob: list rows: %w", err)
	}
	return infos, nil
}

// Delete removes the blob stored under name.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("blob: delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("blob: delete %s: %w", name, err)
	}
	if n == 0 {
		return notFound("blob.delete", name)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("blob: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("blob: close: %w", err)
	}
	return nil
}
