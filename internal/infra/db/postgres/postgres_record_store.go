package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/ports/repository"
	"telegram-voice-assistant/internal/infra/metrics"
)

var _ repository.RecordStore = (*RecordStore)(nil)

type RecordStore struct {
	pool *pgxpool.Pool
}

func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

func (r *RecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM assistant_records WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.IncRecordOp("postgres", "get", "miss")
		return nil, domain.ErrNotFound
	}
	if err != nil {
		metrics.IncRecordOp("postgres", "get", "error")
		return nil, err
	}
	metrics.IncRecordOp("postgres", "get", "ok")
	return value, nil
}

func (r *RecordStore) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assistant_records (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		metrics.IncRecordOp("postgres", "put", "error")
		return err
	}
	metrics.IncRecordOp("postgres", "put", "ok")
	return nil
}
