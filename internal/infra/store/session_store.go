package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/model"
	"telegram-voice-assistant/internal/domain/ports/repository"
	"telegram-voice-assistant/internal/infra/metrics"
)

var _ repository.ChatSessionRepository = (*SessionStore)(nil)

// SessionStore is a write-through cache of chat histories over a RecordStore.
// The cache only changes after the durable write succeeded, so a failed save
// leaves memory and storage in agreement.
type SessionStore struct {
	records repository.RecordStore
	log     *zerolog.Logger

	mu    sync.RWMutex
	cache map[model.SessionKey][]model.ChatMessage
}

func NewSessionStore(records repository.RecordStore, log *zerolog.Logger) *SessionStore {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &SessionStore{
		records: records,
		log:     log,
		cache:   make(map[model.SessionKey][]model.ChatMessage),
	}
}

func (s *SessionStore) Load(ctx context.Context, key model.SessionKey) ([]model.ChatMessage, error) {
	key = model.NewSessionKey(key.UserID, key.Name)

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && len(cached) > 0 {
		metrics.IncCacheRequest("session", "hit")
		return model.CloneMessages(cached), nil
	}
	metrics.IncCacheRequest("session", "miss")

	rk := SessionRecordKey(key)
	raw, err := s.records.Get(ctx, rk)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// New session: materialize an empty durable record.
		if err := s.Save(ctx, key, nil); err != nil {
			return nil, err
		}
		s.log.Debug().Str("user_id", key.UserID).Str("session", key.Name).Msg("created empty session")
		return model.CloneMessages(nil), nil
	case err != nil:
		return nil, &domain.StorageError{Op: "load", Key: rk, Err: err}
	}

	msgs, err := decodeMessages(raw)
	if err != nil {
		return nil, &domain.StorageError{Op: "load", Key: rk, Err: err}
	}

	s.mu.Lock()
	s.cache[key] = msgs
	s.mu.Unlock()
	return model.CloneMessages(msgs), nil
}

func (s *SessionStore) Save(ctx context.Context, key model.SessionKey, messages []model.ChatMessage) error {
	key = model.NewSessionKey(key.UserID, key.Name)
	rk := SessionRecordKey(key)

	msgs := model.CloneMessages(messages)
	raw, err := json.Marshal(msgs)
	if err != nil {
		return &domain.StorageError{Op: "save", Key: rk, Err: err}
	}
	if err := s.records.Put(ctx, rk, raw); err != nil {
		return &domain.StorageError{Op: "save", Key: rk, Err: err}
	}

	s.mu.Lock()
	s.cache[key] = msgs
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) ReplaceActive(ctx context.Context, userID string, messages []model.ChatMessage) error {
	return s.Save(ctx, model.NewSessionKey(userID, model.DefaultSessionName), messages)
}

func (s *SessionStore) Exists(ctx context.Context, userID string) (bool, error) {
	key := model.NewSessionKey(userID, model.DefaultSessionName)

	s.mu.RLock()
	_, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return true, nil
	}

	rk := SessionRecordKey(key)
	_, err := s.records.Get(ctx, rk)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, &domain.StorageError{Op: "load", Key: rk, Err: err}
	}
}

func decodeMessages(raw []byte) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	if len(raw) == 0 {
		return []model.ChatMessage{}, nil
	}
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return msgs, nil
}
