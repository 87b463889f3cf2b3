//go:build !integration

package store

import (
	"context"
	"testing"

	"telegram-voice-assistant/internal/domain/model"
)

func TestPreferenceStore_ToggleVoice(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := NewPreferenceStore(newFileStore(t, dir))

	on, err := p.GetVoice(ctx, "2001")
	if err != nil {
		t.Fatalf("GetVoice: %v", err)
	}
	if on {
		t.Fatal("expected voice to default to off")
	}

	first, err := p.ToggleVoice(ctx, "2001")
	if err != nil || !first {
		t.Fatalf("expected first toggle to enable voice, got %v err=%v", first, err)
	}

	// Durable across instances.
	restarted := NewPreferenceStore(newFileStore(t, dir))
	on, err = restarted.GetVoice(ctx, "2001")
	if err != nil || !on {
		t.Fatalf("expected persisted voice=on, got %v err=%v", on, err)
	}

	second, err := restarted.ToggleVoice(ctx, "2001")
	if err != nil || second {
		t.Fatalf("expected second toggle to restore off, got %v err=%v", second, err)
	}
}

func TestPreferenceStore_DoesNotTouchSessions(t *testing.T) {
	ctx := context.Background()
	fs := newFileStore(t, t.TempDir())
	sessions := NewSessionStore(fs, nil)
	prefs := NewPreferenceStore(fs)

	key := model.NewSessionKey("2002", "")
	hist := []model.ChatMessage{{Role: model.RoleUser, Content: "hello"}}
	if err := sessions.Save(ctx, key, hist); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := prefs.ToggleVoice(ctx, "2002"); err != nil {
		t.Fatalf("ToggleVoice: %v", err)
	}

	fresh := NewSessionStore(fs, nil)
	got, err := fresh.Load(ctx, key)
	if err != nil || len(got) != 1 || got[0].Content != "hello" {
		t.Fatalf("session changed after preference toggle: %v err=%v", got, err)
	}
}
