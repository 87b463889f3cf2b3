package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"telegram-voice-assistant/internal/domain/ports/adapter"
	"telegram-voice-assistant/internal/infra/metrics"
)

var (
	_ adapter.TextToSpeech = (*OpenAISpeech)(nil)
	_ adapter.SpeechToText = (*OpenAISpeech)(nil)
)

// maxAudioBytes bounds synthesized audio read into memory.
const maxAudioBytes = 25 << 20

type Options struct {
	APIKey       string
	BaseURL      string // e.g., https://api.openai.com/v1
	TTSModel     string
	STTModel     string
	Voices       map[string]string // ISO 639-1 -> voice
	DefaultVoice string
	Timeout      time.Duration
}

// OpenAISpeech implements both speech ports against the OpenAI audio endpoints.
type OpenAISpeech struct {
	opts   Options
	client openai.Client
}

func NewOpenAISpeech(opts Options, extra ...option.RequestOption) (*OpenAISpeech, error) {
	if opts.APIKey == "" {
		return nil, errors.New("speech: openai api key empty")
	}
	if opts.TTSModel == "" {
		opts.TTSModel = "tts-1"
	}
	if opts.STTModel == "" {
		opts.STTModel = "whisper-1"
	}
	if opts.DefaultVoice == "" {
		opts.DefaultVoice = "alloy"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithRequestTimeout(opts.Timeout)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}
	reqOpts = append(reqOpts, extra...)
	return &OpenAISpeech{opts: opts, client: openai.NewClient(reqOpts...)}, nil
}

// VoiceFor picks the configured voice for a language, or the default.
func (s *OpenAISpeech) VoiceFor(languageCode string) string {
	lang := strings.ToLower(strings.TrimSpace(languageCode))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if v := s.opts.Voices[lang]; v != "" {
		return v
	}
	return s.opts.DefaultVoice
}

func (s *OpenAISpeech) Synthesize(ctx context.Context, languageCode, text string) ([]byte, error) {
	start := time.Now()
	audio, err := s.synthesize(ctx, languageCode, text)
	metrics.ObserveSpeech("tts", int(time.Since(start).Milliseconds()), err == nil)
	return audio, err
}

func (s *OpenAISpeech) synthesize(ctx context.Context, languageCode, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("tts: empty text")
	}
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.opts.TTSModel),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(s.VoiceFor(languageCode)),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("tts: empty audio")
	}
	return audio, nil
}

func (s *OpenAISpeech) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	start := time.Now()
	text, err := s.transcribe(ctx, audio, filename)
	metrics.ObserveSpeech("stt", int(time.Since(start).Milliseconds()), err == nil)
	return text, err
}

func (s *OpenAISpeech) transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("stt: empty audio")
	}
	if filename == "" {
		filename = "voice.ogg"
	}
	// Telegram voice notes are Opus in an Ogg container.
	res, err := s.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), filename, "audio/ogg"),
		Model: openai.AudioModel(s.opts.STTModel),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}
