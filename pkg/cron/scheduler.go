// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/service"
)

// Sweeper runs the pipeline batch sweeps.
type Sweeper interface {
	ProcessPending(ctx context.Context, limit int) (service.SweepResult, error)
	FinalizePending(ctx context.Context, limit int) (service.SweepResult, error)
}

// Config holds the cron expressions (standard 5-field format) and the
// number of documents each sweep may take.
type Config struct {
	ProcessSchedule  string
	FinalizeSchedule string
	Limit            int
	// Timeout bounds one sweep run.
	Timeout time.Duration
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	cfg     Config
	logger  *slog.Logger

	// Each sweep runs at most once at a time.
	processMu  sync.Mutex
	finalizeMu sync.Mutex
}

// NewScheduler creates a new job scheduler.
func NewScheduler(sweeper Sweeper, cfg Config, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}

	return &Scheduler{
		cron:    c,
		sweeper: sweeper,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers the sweeps and begins running them.
func (s *Scheduler) Start() error {
	if s.cfg.ProcessSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.ProcessSchedule, s.runProcess); err != nil {
			return err
		}
	}
	if s.cfg.FinalizeSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.FinalizeSchedule, s.runFinalize); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs both sweeps once, process first, and waits for them.
func (s *Scheduler) RunNow() {
	s.runProcess()
	s.runFinalize()
}

func (s *Scheduler) runProcess() {
	if !s.processMu.TryLock() {
		s.logger.Debug("process sweep still running, skipping")
		return
	}
	defer s.processMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if _, err := s.sweeper.ProcessPending(ctx, s.cfg.Limit); err != nil {
		s.logger.Error("scheduled process sweep failed", slog.Any("error", err))
	}
}

func (s *Scheduler) runFinalize() {
	if !s.finalizeMu.TryLock() {
		s.logger.Debug("finalize sweep still running, skipping")
		return
	}
	defer s.finalizeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if _, err := s.sweeper.FinalizePending(ctx, s.cfg.Limit); err != nil {
		s.logger.Error("scheduled finalize sweep failed", slog.Any("error", err))
	}
}
