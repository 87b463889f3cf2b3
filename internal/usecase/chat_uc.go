// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/model"
	"telegram-voice-assistant/internal/domain/ports/adapter"
	"telegram-voice-assistant/internal/domain/ports/repository"
	"telegram-voice-assistant/internal/infra/logging"
	"telegram-voice-assistant/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	// HandleTurn runs one load -> complete -> evaluate -> save cycle for a user's session.
	HandleTurn(ctx context.Context, userID, sessionName, utterance string) (*TurnResult, error)
	// Ask completes a caller-supplied conversation without touching stored sessions.
	Ask(ctx context.Context, messages []model.ChatMessage) (*TurnResult, error)
	ListModels(ctx context.Context) ([]string, error)
	// Exclusive runs fn under the same per-user lock as HandleTurn. Commands that
	// touch a user's stored sessions or preferences go through it.
	Exclusive(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}

// Translator renders user-facing strings.
type Translator interface {
	T(key string, args ...interface{}) string
}

type TurnResult struct {
	Reply      string
	Annotation string
	Quota      model.QuotaState
}

// Text is the reply followed by its utilization annotation.
func (r *TurnResult) Text() string { return r.Reply + r.Annotation }

type ChatOptions struct {
	Model        string
	SystemPrompt string
	StripLabels  []string
	Policy       model.QuotaPolicy
	DevMode      bool
}

type chatUC struct {
	sessions repository.ChatSessionRepository
	ai       adapter.AIServiceAdapter
	exec     *TurnExecutor
	tr       Translator
	opts     ChatOptions
	log      *zerolog.Logger
}

func NewChatUseCase(
	sessions repository.ChatSessionRepository,
	ai adapter.AIServiceAdapter,
	exec *TurnExecutor,
	tr Translator,
	opts ChatOptions,
	log *zerolog.Logger,
) *chatUC {
	if exec == nil {
		exec = NewTurnExecutor()
	}
	if log == nil {
		log = logging.Nop()
	}
	if opts.Policy.ContextLimit <= 0 {
		opts.Policy = model.NewQuotaPolicy(model.DefaultContextLimit)
	}
	return &chatUC{sessions: sessions, ai: ai, exec: exec, tr: tr, opts: opts, log: log}
}

func (c *chatUC) HandleTurn(ctx context.Context, userID, sessionName, utterance string) (*TurnResult, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, domain.ErrInvalidArgument
	}
	var res *TurnResult
	err := c.exec.Run(ctx, userID, func(ctx context.Context) error {
		var err error
		res, err = c.turn(ctx, model.NewSessionKey(userID, sessionName), utterance)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// turn must run under the user's turn lock.
func (c *chatUC) turn(ctx context.Context, key model.SessionKey, utterance string) (*TurnResult, error) {
	log := logging.With(logging.WithSession(ctx, key.Name), c.log)
	defer logging.TraceDuration(log, "ChatUC.HandleTurn")()

	msgs, err := c.sessions.Load(ctx, key)
	if err != nil {
		metrics.IncTurn("storage_error")
		log.Error().Err(err).Msg("load session failed")
		return nil, err
	}
	msgs = append(msgs, model.ChatMessage{Role: model.RoleUser, Content: utterance})

	reply, quota, err := c.complete(ctx, log, msgs)
	if err != nil {
		// The appended user message is dropped with msgs; storage is untouched.
		metrics.IncTurn("service_error")
		return nil, err
	}

	if quota.ShouldReset {
		msgs = []model.ChatMessage{}
	} else {
		msgs = append(msgs, model.ChatMessage{Role: model.RoleAssistant, Content: reply})
	}

	if err := c.sessions.Save(ctx, key, msgs); err != nil {
		metrics.IncTurn("storage_error")
		log.Error().Err(err).Msg("save session failed")
		return nil, err
	}

	outcome := "ok"
	if quota.ShouldReset {
		outcome = "reset"
		log.Info().Int("total_tokens", quota.TotalTokens).Msg("context exhausted, session reset")
	}
	metrics.IncTurn(outcome)
	log.Debug().
		Str("utterance", logging.Redact(utterance, c.opts.DevMode)).
		Int("history", len(msgs)).
		Float64("utilization", quota.UtilizationPct).
		Msg("turn complete")

	return &TurnResult{Reply: reply, Annotation: c.annotate(quota), Quota: quota}, nil
}

func (c *chatUC) Ask(ctx context.Context, messages []model.ChatMessage) (*TurnResult, error) {
	if len(messages) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	log := logging.With(ctx, c.log)
	reply, quota, err := c.complete(ctx, log, model.CloneMessages(messages))
	if err != nil {
		return nil, err
	}
	return &TurnResult{Reply: reply, Annotation: c.annotate(quota), Quota: quota}, nil
}

func (c *chatUC) Exclusive(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	return c.exec.Run(ctx, userID, fn)
}

func (c *chatUC) ListModels(ctx context.Context) ([]string, error) {
	return c.ai.ListModels(ctx)
}

// complete calls the completion collaborator and evaluates the reported usage.
func (c *chatUC) complete(ctx context.Context, log *zerolog.Logger, msgs []model.ChatMessage) (string, model.QuotaState, error) {
	req := toAdapterMessages(c.opts.SystemPrompt, msgs)

	start := time.Now()
	reply, usage, err := c.ai.ChatWithUsage(ctx, c.opts.Model, req)
	if err != nil {
		log.Error().Err(err).Dur("latency", time.Since(start)).Msg("completion failed")
		return "", model.QuotaState{}, &domain.ServiceError{Collaborator: "completion", Err: err}
	}
	reply = StripLabel(reply, c.opts.StripLabels)

	quota := c.opts.Policy.Evaluate(usage.TotalTokens)
	if quota.Known {
		metrics.ObserveUtilization(quota.UtilizationPct)
	} else if est, err := c.ai.CountTokens(ctx, c.opts.Model, req); err == nil {
		// Estimates are informational only and never drive a reset.
		log.Warn().Int("estimated_prompt_tokens", est).Msg("completion reported no usage")
	}
	return reply, quota, nil
}

func (c *chatUC) annotate(q model.QuotaState) string {
	if c.tr == nil {
		return ""
	}
	if !q.Known {
		return c.tr.T("chat_used_unknown")
	}
	s := c.tr.T("chat_used", q.UtilizationPct)
	if q.ShouldReset {
		s += c.tr.T("chat_reset")
	}
	return s
}

// StripLabel removes a persona label the model may echo. The first label in
// labels found anywhere in reply wins; its first occurrence and everything
// before it are dropped, then the rest is trimmed.
func StripLabel(reply string, labels []string) string {
	for _, label := range labels {
		if label == "" {
			continue
		}
		if pos := strings.Index(reply, label); pos >= 0 {
			reply = reply[pos+len(label):]
			break
		}
	}
	return strings.TrimSpace(reply)
}

func toAdapterMessages(systemPrompt string, msgs []model.ChatMessage) []adapter.Message {
	out := make([]adapter.Message, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, adapter.Message{Role: string(model.RoleSystem), Content: systemPrompt})
	}
	for _, m := range msgs {
		out = append(out, adapter.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
