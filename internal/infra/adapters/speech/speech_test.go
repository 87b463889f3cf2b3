//go:build !integration

package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v2/option"
)

// noRetry keeps failing calls from backing off inside tests.
var noRetry = option.WithMaxRetries(0)

func TestSynthesize(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" || r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	s, err := NewOpenAISpeech(Options{
		APIKey:  "k",
		BaseURL: srv.URL,
		Voices:  map[string]string{"zh": "nova"},
	}, noRetry)
	if err != nil {
		t.Fatal(err)
	}
	audio, err := s.Synthesize(context.Background(), "zh-CN", "你好")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3fake" {
		t.Fatalf("audio = %q", audio)
	}
	if got["voice"] != "nova" || got["model"] != "tts-1" || got["input"] != "你好" {
		t.Fatalf("request = %v", got)
	}
	if s.VoiceFor("fr") != "alloy" {
		t.Errorf("unknown language should use the default voice")
	}
}

func TestSynthesizeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	s, _ := NewOpenAISpeech(Options{APIKey: "k", BaseURL: srv.URL}, noRetry)
	if _, err := s.Synthesize(context.Background(), "en", "hi"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := s.Synthesize(context.Background(), "en", "  "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if r.FormValue("model") != "whisper-1" || hdr.Filename != "note.ogg" || string(data) != "OggS" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" hello there "}`))
	}))
	defer srv.Close()

	s, _ := NewOpenAISpeech(Options{APIKey: "k", BaseURL: srv.URL + "/"}, noRetry)
	text, err := s.Transcribe(context.Background(), []byte("OggS"), "note.ogg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("text = %q", text)
	}
	if _, err := s.Transcribe(context.Background(), nil, ""); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestTranscribeHTTPError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	s, _ := NewOpenAISpeech(Options{APIKey: "k", BaseURL: srv.URL + "/v1"}, noRetry)
	if _, err := s.Transcribe(context.Background(), []byte("OggS"), "note.ogg"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestNewOpenAISpeechRequiresKey(t *testing.T) {
	if _, err := NewOpenAISpeech(Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestWhatlangDetector(t *testing.T) {
	d := NewWhatlangDetector("en")
	ctx := context.Background()

	cases := []struct {
		name string
		text string
		want string
	}{
		{"english", "The quick brown fox jumps over the lazy dog and keeps running far away.", "en"},
		{"german", "Ich habe heute keine Zeit, weil ich noch viel arbeiten muss und müde bin.", "de"},
		{"empty falls back", "   ", "en"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := d.Detect(ctx, tc.text)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if got != tc.want {
				t.Errorf("Detect(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}
