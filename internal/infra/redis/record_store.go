package redis

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"

	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/ports/repository"
	"telegram-voice-assistant/internal/infra/metrics"
)

var _ repository.RecordStore = (*RecordStore)(nil)

// RecordStore keeps durable records as plain Redis strings without expiry.
type RecordStore struct {
	client *Client
	prefix string
}

func NewRecordStore(client *Client, prefix string) *RecordStore {
	if prefix == "" {
		prefix = "assistant:"
	}
	return &RecordStore{client: client, prefix: prefix}
}

func (s *RecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.cli.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncRecordOp("redis", "get", "miss")
		return nil, domain.ErrNotFound
	}
	if err != nil {
		metrics.IncRecordOp("redis", "get", "error")
		return nil, err
	}
	metrics.IncRecordOp("redis", "get", "ok")
	return b, nil
}

func (s *RecordStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0); err != nil {
		metrics.IncRecordOp("redis", "put", "error")
		return err
	}
	metrics.IncRecordOp("redis", "put", "ok")
	return nil
}
