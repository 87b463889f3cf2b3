package ai

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-voice-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev runs without API keys.
// It echoes the last user message and reports an estimated usage.
type NoopAIAdapter struct {
	log   *zerolog.Logger
	delay time.Duration
}

func NewNoopAIAdapter(log *zerolog.Logger) *NoopAIAdapter {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &NoopAIAdapter{log: log, delay: 100 * time.Millisecond}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-ai-model"}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += perMessageOverhead + roughTokens(m.Content)
	}
	return n, nil
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	// Simulate slight processing time and respect ctx
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}

	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			last = messages[i].Content
			break
		}
	}
	reply := "You said: " + last
	in, _ := a.CountTokens(ctx, model, messages)
	out := roughTokens(reply)
	a.log.Debug().Int("messages", len(messages)).Msg("[noop-ai] chat")
	return reply, adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}, nil
}
