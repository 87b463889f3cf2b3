package speech

import (
	"context"
	"strings"

	"github.com/abadojack/whatlanggo"

	"telegram-voice-assistant/internal/domain/ports/adapter"
)

var _ adapter.LanguageDetector = (*WhatlangDetector)(nil)

// WhatlangDetector detects the language locally with trigram statistics.
type WhatlangDetector struct {
	fallback string
}

func NewWhatlangDetector(fallback string) *WhatlangDetector {
	if fallback == "" {
		fallback = "en"
	}
	return &WhatlangDetector{fallback: fallback}
}

// Detect returns an ISO 639-1 code, or the fallback when the text is too short to tell.
func (d *WhatlangDetector) Detect(_ context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return d.fallback, nil
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" || !info.IsReliable() {
		return d.fallback, nil
	}
	return code, nil
}
