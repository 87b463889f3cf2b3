package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-voice-assistant/internal/infra/logging"
	"telegram-voice-assistant/internal/infra/metrics"
)

// Job does one unit of periodic work and reports how many items it handled.
type Job func(ctx context.Context) (int, error)

// Scheduler periodically runs a Job.
type Scheduler struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	job      Job
	log      *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler runs job every interval (default 1 minute), each run bounded by 30s.
func NewScheduler(name string, interval time.Duration, job Job, log *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logging.Nop()
	}
	l := log.With().Str("job", name).Logger()
	return &Scheduler{name: name, interval: interval, timeout: 30 * time.Second, job: job, log: &l}
}

// Start begins the loop in a background goroutine. Calling Start twice has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs the job immediately with the per-run timeout.
func (s *Scheduler) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.job(runCtx)
	if err != nil {
		metrics.IncJobRun(s.name, "error")
		s.log.Error().Err(err).Msg("scheduled job failed")
		return
	}
	metrics.IncJobRun(s.name, "ok")
	if n > 0 {
		s.log.Info().Int("items", n).Msg("scheduled job done")
	}
}

// Stop cancels the loop and waits for it to finish. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info().Msg("scheduler stopped")
}
