package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-voice-assistant/internal/config"
	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/model"
	"telegram-voice-assistant/internal/infra/logging"
	"telegram-voice-assistant/internal/usecase"
)

const maxAskBody = 1 << 20

// AskUseCase is the part of the chat usecase exposed over HTTP.
type AskUseCase interface {
	Ask(ctx context.Context, messages []model.ChatMessage) (*usecase.TurnResult, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Server is the admin HTTP surface: health, metrics and a stateless ask endpoint.
type Server struct {
	cfg     config.AdminConfig
	uc      AskUseCase
	timeout time.Duration
	auth    *Authenticator
	log     *zerolog.Logger
	server  *http.Server
}

func NewServer(cfg config.AdminConfig, uc AskUseCase, timeout time.Duration, log *zerolog.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s := &Server{cfg: cfg, uc: uc, timeout: timeout, log: log}
	if cfg.JWTSecret != "" {
		s.auth = NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL)
	}
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log), CORS(s.cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.RequireToken())
		}
		r.Use(Timeout(s.timeout))
		r.Post("/ask", s.handleAsk)
		r.Get("/models", s.handleModels)
	})
	return r
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("admin HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type askMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type askRequest struct {
	Input []askMessage `json:"input"`
}

type askResponse struct {
	Answer      string  `json:"answer"`
	Utilization float64 `json:"utilization"`
	// UsageKnown is false when the backend reported no token usage.
	UsageKnown bool `json:"usage_known"`
	Reset      bool `json:"reset"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	msgs, err := toMessages(req.Input)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := s.uc.Ask(r.Context(), msgs)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "input must not be empty"})
		return
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("ask failed")
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrService) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorResponse{Error: "completion failed"})
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:      res.Reply,
		Utilization: res.Quota.UtilizationPct,
		UsageKnown:  res.Quota.Known,
		Reset:       res.Quota.ShouldReset,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.uc.ListModels(r.Context())
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("list models failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "list models failed"})
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"items": models})
}

func toMessages(in []askMessage) ([]model.ChatMessage, error) {
	out := make([]model.ChatMessage, 0, len(in))
	for i, m := range in {
		role := model.Role(m.Role)
		switch role {
		case model.RoleUser, model.RoleAssistant, model.RoleSystem:
		default:
			return nil, fmt.Errorf("input[%d]: unknown role %q", i, m.Role)
		}
		out = append(out, model.ChatMessage{Role: role, Content: m.Content})
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
