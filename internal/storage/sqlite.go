package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kura/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite catalog at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stores (
		path TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		requested_name TEXT NOT NULL,
		documents INTEGER NOT NULL,
		dimensions INTEGER NOT NULL,
		index_type TEXT NOT NULL,
		session_id TEXT,
		run_id TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stores_name ON stores(name);
	CREATE INDEX IF NOT EXISTS idx_stores_created_at ON stores(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordStore inserts info, replacing any earlier record for the same path.
// A zero CreatedAt is set to now.
func (s *SQLiteCatalog) RecordStore(ctx context.Context, info *models.StoreInfo) error {
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO stores
		 (path, name, requested_name, documents, dimensions, index_type, session_id, run_id, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.Path, info.Name, info.RequestedName, info.Documents, info.Dimensions,
		info.IndexType, info.SessionID, info.RunID, info.SizeBytes, info.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record store %s: %w", info.Name, err)
	}
	return nil
}

const storeColumns = `name, requested_name, path, documents, dimensions, index_type, session_id, run_id, size_bytes, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanStore(row scanner) (*models.StoreInfo, error) {
	var (
		info      models.StoreInfo
		sessionID sql.NullString
	)
	err := row.Scan(&info.Name, &info.RequestedName, &info.Path, &info.Documents, &info.Dimensions,
		&info.IndexType, &sessionID, &info.RunID, &info.SizeBytes, &info.CreatedAt)
	if err != nil {
		return nil, err
	}
	info.SessionID = sessionID.String
	return &info, nil
}

// GetStore returns the most recent store recorded under name.
func (s *SQLiteCatalog) GetStore(ctx context.Context, name string) (*models.StoreInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE name = ? ORDER BY created_at DESC LIMIT 1`, name)
	info, err := scanStore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ListStores returns stores newest first. A non-positive limit returns everything from offset.
func (s *SQLiteCatalog) ListStores(ctx context.Context, offset, limit int) ([]*models.StoreInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+storeColumns+` FROM stores ORDER BY created_at DESC, name LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.StoreInfo
	for rows.Next() {
		info, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, info)
	}
	return list, rows.Err()
}

// CountStores returns the number of recorded stores.
func (s *SQLiteCatalog) CountStores(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stores").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}
