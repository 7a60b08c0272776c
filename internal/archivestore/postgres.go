package archivestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresSnapshotTableName = "slackarchive_snapshots"
	defaultArchiveKey         = "default"
	postgresOperationTimeout  = 15 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresSnapshots keeps the archive document in one row of a key/value
// table, created on first use.
type PostgresSnapshots struct {
	dsn        string
	tableName  string
	archiveKey string
	openDB     sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresSnapshots(dsn string) (*PostgresSnapshots, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresSnapshots{
		dsn:        dsn,
		tableName:  postgresSnapshotTableName,
		archiveKey: defaultArchiveKey,
		openDB:     sql.Open,
	}, nil
}

func (p *PostgresSnapshots) ReadSnapshot(ctx context.Context) ([]byte, error) {
	if err := p.ensureReady(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT snapshot FROM %s WHERE archive_key = $1", postgresQuoteIdentifier(p.tableName))
	var payload string
	err := p.db.QueryRowContext(ctx, query, p.archiveKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (p *PostgresSnapshots) WriteSnapshot(ctx context.Context, data []byte) error {
	return p.writeKey(ctx, p.archiveKey, data)
}

// BackupSnapshot stores data under a side key in the same table.
func (p *PostgresSnapshots) BackupSnapshot(ctx context.Context, data []byte) (string, error) {
	key := backupKey(p.archiveKey)
	if err := p.writeKey(ctx, key, data); err != nil {
		return "", err
	}
	return p.tableName + "/" + key, nil
}

func (p *PostgresSnapshots) writeKey(ctx context.Context, key string, data []byte) error {
	if err := p.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (archive_key, snapshot, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (archive_key)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()`, postgresQuoteIdentifier(p.tableName))
	_, err := p.db.ExecContext(ctx, query, key, string(data))
	return err
}

func (p *PostgresSnapshots) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *PostgresSnapshots) ensureReady(ctx context.Context) error {
	if p == nil {
		return ErrInvalidInput
	}
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				archive_key TEXT PRIMARY KEY,
				snapshot TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, postgresQuoteIdentifier(p.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			p.initErr = err
			return
		}
		p.db = db
	})
	return p.initErr
}

func backupKey(archiveKey string) string {
	return archiveKey + ".malformed-" + time.Now().UTC().Format("20060102T150405.000000000Z")
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
