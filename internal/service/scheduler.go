package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultCompensationSchedule retries pending compensations every minute.
const DefaultCompensationSchedule = "@every 1m"

// pendingRetrier is the part of Compensator the scheduler drives.
type pendingRetrier interface {
	RetryPending(ctx context.Context) (int, error)
}

// CompensationScheduler runs Compensator.RetryPending on a cron schedule.
// Runs never overlap: a tick that fires while a run is in progress is skipped.
type CompensationScheduler struct {
	cron *cron.Cron
	comp pendingRetrier
	log  *slog.Logger
	// runTimeout bounds a single retry run.
	runTimeout time.Duration
}

// NewCompensationScheduler registers the retry job under spec (standard cron
// syntax or descriptors such as "@every 30s").
func NewCompensationScheduler(comp pendingRetrier, spec string, log *slog.Logger) (*CompensationScheduler, error) {
	if spec == "" {
		spec = DefaultCompensationSchedule
	}
	cl := cronLogger{log: log}
	s := &CompensationScheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		comp:       comp,
		log:        log,
		runTimeout: 5 * time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("service.NewCompensationScheduler: schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing the job in its own goroutine.
func (s *CompensationScheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for a running one, or for ctx.
func (s *CompensationScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("compensation scheduler stop timed out")
	}
}

// RunOnce performs a single retry pass.
func (s *CompensationScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	resolved, err := s.comp.RetryPending(ctx)
	if err != nil {
		s.log.Error("compensation retry run failed", "resolved", resolved, "err", err)
		return
	}
	if resolved > 0 {
		s.log.Info("compensation retry run", "resolved", resolved)
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
