package security

import (
	"context"
	"fmt"

	"telegram-voice-assistant/internal/domain/ports/repository"
)

var _ repository.RecordStore = (*EncryptedRecordStore)(nil)

// EncryptedRecordStore seals every value before it reaches the inner store.
// Keys are left in clear text so backends can still list and index them.
type EncryptedRecordStore struct {
	inner repository.RecordStore
	enc   *EncryptionService
}

func NewEncryptedRecordStore(inner repository.RecordStore, enc *EncryptionService) *EncryptedRecordStore {
	return &EncryptedRecordStore{inner: inner, enc: enc}
}

func (s *EncryptedRecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	pt, err := s.enc.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", key, err)
	}
	return pt, nil
}

func (s *EncryptedRecordStore) Put(ctx context.Context, key string, value []byte) error {
	ct, err := s.enc.Seal(value)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", key, err)
	}
	return s.inner.Put(ctx, key, ct)
}
