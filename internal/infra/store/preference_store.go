package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/model"
	"telegram-voice-assistant/internal/domain/ports/repository"
)

var _ repository.PreferenceRepository = (*PreferenceStore)(nil)

// PreferenceStore persists per-user flags in records separate from session histories.
type PreferenceStore struct {
	records repository.RecordStore
	mu      sync.Mutex
}

func NewPreferenceStore(records repository.RecordStore) *PreferenceStore {
	return &PreferenceStore{records: records}
}

func (p *PreferenceStore) GetVoice(ctx context.Context, userID string) (bool, error) {
	pref, err := p.get(ctx, userID)
	if err != nil {
		return false, err
	}
	return pref.VoiceEnabled, nil
}

func (p *PreferenceStore) ToggleVoice(ctx context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pref, err := p.get(ctx, userID)
	if err != nil {
		return false, err
	}
	pref.VoiceEnabled = !pref.VoiceEnabled

	key := PreferenceRecordKey(userID)
	raw, err := json.Marshal(pref)
	if err != nil {
		return false, &domain.StorageError{Op: "save", Key: key, Err: err}
	}
	if err := p.records.Put(ctx, key, raw); err != nil {
		return false, &domain.StorageError{Op: "save", Key: key, Err: err}
	}
	return pref.VoiceEnabled, nil
}

func (p *PreferenceStore) get(ctx context.Context, userID string) (model.Preference, error) {
	key := PreferenceRecordKey(userID)
	raw, err := p.records.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return model.Preference{}, nil
	}
	if err != nil {
		return model.Preference{}, &domain.StorageError{Op: "load", Key: key, Err: err}
	}
	var pref model.Preference
	if err := json.Unmarshal(raw, &pref); err != nil {
		return model.Preference{}, &domain.StorageError{Op: "load", Key: key, Err: fmt.Errorf("decode preference: %w", err)}
	}
	return pref, nil
}
