// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"telegram-voice-assistant/internal/application"
	"telegram-voice-assistant/internal/config"
	"telegram-voice-assistant/internal/domain/model"
	"telegram-voice-assistant/internal/domain/ports/adapter"
	"telegram-voice-assistant/internal/domain/ports/repository"
	aiAdapters "telegram-voice-assistant/internal/infra/adapters/ai"
	"telegram-voice-assistant/internal/infra/adapters/speech"
	tele "telegram-voice-assistant/internal/infra/adapters/telegram"
	pg "telegram-voice-assistant/internal/infra/db/postgres"
	"telegram-voice-assistant/internal/infra/db/sqlite"
	httpapi "telegram-voice-assistant/internal/infra/http"
	"telegram-voice-assistant/internal/infra/i18n"
	"telegram-voice-assistant/internal/infra/logging"
	"telegram-voice-assistant/internal/infra/metrics"
	red "telegram-voice-assistant/internal/infra/redis"
	"telegram-voice-assistant/internal/infra/scheduler"
	"telegram-voice-assistant/internal/infra/security"
	"telegram-voice-assistant/internal/infra/store"
	"telegram-voice-assistant/internal/infra/worker"
	"telegram-voice-assistant/internal/usecase"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

// consoleUserID is the sender id used for lines typed in console mode.
const consoleUserID = 1

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled: message bodies are logged")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("assistant stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Redis (optional) ----
	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer c.Close()
		redisClient = c
	}

	// ---- Durable records ----
	records, closeRecords, err := openRecords(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeRecords()
	if cfg.Storage.EncryptionKey != "" {
		enc, err := security.NewEncryptionService(cfg.Storage.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
		records = security.NewEncryptedRecordStore(records, enc)
	}
	logger.Info().Str("backend", cfg.Storage.Backend).Bool("encrypted", cfg.Storage.EncryptionKey != "").Msg("record store ready")

	sessions := store.NewSessionStore(records, logger)
	prefs := store.NewPreferenceStore(records)

	// ---- Collaborators ----
	ai, err := buildAI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Locale.Default)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	sp := buildSpeech(cfg, logger)

	// ---- Use cases ----
	exec := usecase.NewTurnExecutor()
	if cfg.Redis.TurnLock {
		exec.WithRemoteLock(red.NewLocker(redisClient), cfg.Redis.LockTTL, red.TurnLockKey)
	}
	chatUC := usecase.NewChatUseCase(sessions, ai, exec, tr, usecase.ChatOptions{
		Model:        cfg.AI.DefaultModel,
		SystemPrompt: cfg.AI.SystemPrompt,
		StripLabels:  cfg.AI.StripLabels,
		Policy:       model.QuotaPolicy{ContextLimit: cfg.AI.ContextLimit, ResetMargin: cfg.AI.ResetMargin},
		DevMode:      cfg.Runtime.Dev,
	}, logger)

	// ---- Facade ----
	router := application.NewCommandRouter(cfg.Bot.Username)
	facade := application.NewBotFacade(router, chatUC, sessions, prefs, sp, tr, logger)

	// ---- Admin HTTP ----
	var srv *httpapi.Server
	if cfg.Admin.Port > 0 {
		srv = httpapi.NewServer(cfg.Admin, chatUC, cfg.AI.Timeout, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("admin HTTP server failed")
			}
		}()
	}
	defer func() {
		if srv == nil {
			return
		}
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Error().Err(err).Msg("admin HTTP shutdown")
		}
	}()

	// ---- Transport ----
	if cfg.Bot.Mode == "console" {
		logger.Info().Msg("console mode: type messages, Ctrl-D to quit")
		return tele.NewNoopBotAdapter(facade, consoleUserID, os.Stdin, os.Stdout, logger).StartPolling(ctx)
	}

	pool := worker.NewPool(cfg.Bot.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	var limiter tele.RateLimiter
	if redisClient != nil {
		limiter = red.NewRateLimiter(redisClient)
	}
	bot, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, facade, tr, limiter, pool, logger)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if err := bot.SetMenuCommands(ctx); err != nil {
		logger.Warn().Err(err).Msg("set bot command menu")
	}
	logger.Info().Int("workers", cfg.Bot.Workers).Msg("telegram polling started")
	return bot.StartPolling(ctx)
}

func openRecords(ctx context.Context, cfg *config.Config, redisClient *red.Client, logger *zerolog.Logger) (repository.RecordStore, func(), error) {
	noop := func() {}
	switch cfg.Storage.Backend {
	case "file":
		fs, err := store.NewFileRecordStore(cfg.Storage.Dir)
		if err != nil {
			return nil, noop, fmt.Errorf("file store: %w", err)
		}
		sweep := scheduler.NewScheduler("file_temp_sweep", time.Hour, func(ctx context.Context) (int, error) {
			return fs.SweepTemp(ctx, time.Hour)
		}, logger)
		sweep.RunOnce(ctx)
		sweep.Start(ctx)
		return fs, sweep.Stop, nil
	case "redis":
		return red.NewRecordStore(redisClient, ""), noop, nil
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres: %w", err)
		}
		return pg.NewRecordStore(pool), pool.Close, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("sqlite: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildAI wires every configured provider behind the multi-provider router and the concurrency cap.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	byProvider := map[string]adapter.AIServiceAdapter{}
	defaultProvider := cfg.AI.Provider

	if cfg.AI.MetisKey != "" {
		a, err := aiAdapters.NewMetisOpenAIAdapter(cfg.AI.MetisKey, cfg.AI.DefaultModel, cfg.AI.MetisBaseURL, cfg.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("metis adapter: %w", err)
		}
		byProvider["metis"] = a
		logger.Info().Str("base", cfg.AI.MetisBaseURL).Msg("AI adapter: Metis (OpenAI compatible)")
	}
	if cfg.AI.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiBaseURL, cfg.AI.DefaultModel, 0)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		byProvider["gemini"] = a
		logger.Info().Msg("AI adapter: Gemini")
	}
	if cfg.AI.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.DefaultModel, cfg.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		byProvider["openai"] = a
		logger.Info().Msg("AI adapter: OpenAI")
	}

	if len(byProvider) == 0 {
		if !cfg.Runtime.Dev {
			return nil, errors.New("no AI provider configured: set ai.metis_key, ai.gemini_key or ai.openai_key")
		}
		logger.Warn().Msg("no AI provider configured; using the echo adapter")
		byProvider["noop"] = aiAdapters.NewNoopAIAdapter(logger)
		defaultProvider = "noop"
	}
	if defaultProvider == "" {
		// Same priority as the keys above.
		for _, p := range []string{"metis", "gemini", "openai"} {
			if byProvider[p] != nil {
				defaultProvider = p
				break
			}
		}
	}

	multi := aiAdapters.NewMultiAIAdapter(defaultProvider, byProvider, cfg.AI.ModelProviders)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), nil
}

func buildSpeech(cfg *config.Config, logger *zerolog.Logger) application.Speech {
	sp := application.Speech{Detector: speech.NewWhatlangDetector(cfg.Locale.Default)}
	if cfg.Speech.OpenAIKey == "" {
		logger.Warn().Msg("speech disabled: no speech.openai_key or ai.openai_key")
		return sp
	}
	svc, err := speech.NewOpenAISpeech(speech.Options{
		APIKey:       cfg.Speech.OpenAIKey,
		BaseURL:      cfg.Speech.BaseURL,
		TTSModel:     cfg.Speech.TTSModel,
		STTModel:     cfg.Speech.STTModel,
		Voices:       cfg.Speech.Voices,
		DefaultVoice: cfg.Speech.DefaultVoice,
		Timeout:      cfg.AI.Timeout,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("speech disabled")
		return sp
	}
	sp.STT, sp.TTS = svc, svc
	return sp
}
