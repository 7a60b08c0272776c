package archivestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSnapshots keeps the archive document in a local SQLite database,
// for operators who want the archive next to other tooling state.
type SQLiteSnapshots struct {
	Path       string
	archiveKey string
	conn       *sql.DB
}

func NewSQLiteSnapshots(path string) (*SQLiteSnapshots, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS archive_snapshots (
		archive_key TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteSnapshots{Path: path, archiveKey: defaultArchiveKey, conn: conn}, nil
}

func (s *SQLiteSnapshots) ReadSnapshot(ctx context.Context) ([]byte, error) {
	var payload string
	err := s.conn.QueryRowContext(ctx,
		"SELECT snapshot FROM archive_snapshots WHERE archive_key = ?", s.archiveKey,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (s *SQLiteSnapshots) WriteSnapshot(ctx context.Context, data []byte) error {
	return s.writeKey(ctx, s.archiveKey, data)
}

// BackupSnapshot stores data under a side key in the same table.
func (s *SQLiteSnapshots) BackupSnapshot(ctx context.Context, data []byte) (string, error) {
	key := backupKey(s.archiveKey)
	if err := s.writeKey(ctx, key, data); err != nil {
		return "", err
	}
	return s.Path + "#" + key, nil
}

func (s *SQLiteSnapshots) writeKey(ctx context.Context, key string, data []byte) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO archive_snapshots (archive_key, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(archive_key) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC(),
	)
	return err
}

func (s *SQLiteSnapshots) Close() error {
	return s.conn.Close()
}
