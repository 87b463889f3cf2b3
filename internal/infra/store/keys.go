package store

import (
	"strings"
	"unicode"

	"telegram-voice-assistant/internal/domain/model"
)

const maxSegmentLen = 128

// SessionRecordKey maps a session to its durable record key.
func SessionRecordKey(k model.SessionKey) string {
	return "sessions/" + safeSegment(k.UserID) + "/" + safeSegment(k.Name)
}

// PreferenceRecordKey maps a user to the record holding their preference flags.
func PreferenceRecordKey(userID string) string {
	return "preferences/" + safeSegment(userID)
}

// safeSegment normalizes caller-supplied text into a single file-safe path segment.
// Distinct inputs may collide (e.g. "a/b" and "a_b"); names are otherwise opaque.
func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		if b.Len() >= maxSegmentLen {
			break
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if strings.HasPrefix(out, ".") {
		out = "_" + out
	}
	return out
}
