package adapter

import "context"

// SpeechToText turns a recorded voice note into text.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// TextToSpeech renders text as audio. languageCode is an ISO 639-1 code or "" when unknown.
type TextToSpeech interface {
	Synthesize(ctx context.Context, languageCode, text string) ([]byte, error)
}

// LanguageDetector guesses the language of a text.
type LanguageDetector interface {
	Detect(ctx context.Context, text string) (string, error)
}
