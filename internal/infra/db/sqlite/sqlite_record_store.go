package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/ports/repository"
	"telegram-voice-assistant/internal/infra/metrics"
)

var _ repository.RecordStore = (*RecordStore)(nil)

// RecordStore keeps every record in one single-file SQLite database.
type RecordStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath.
func Open(dbPath string) (*RecordStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS assistant_records (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &RecordStore{db: db}, nil
}

func (r *RecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM assistant_records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.IncRecordOp("sqlite", "get", "miss")
		return nil, domain.ErrNotFound
	}
	if err != nil {
		metrics.IncRecordOp("sqlite", "get", "error")
		return nil, err
	}
	metrics.IncRecordOp("sqlite", "get", "ok")
	return value, nil
}

func (r *RecordStore) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO assistant_records (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		metrics.IncRecordOp("sqlite", "put", "error")
		return err
	}
	metrics.IncRecordOp("sqlite", "put", "ok")
	return nil
}

func (r *RecordStore) Close() error { return r.db.Close() }
