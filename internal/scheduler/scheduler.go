package scheduler

import (
	"context"
	"log/slog"
	"time"

	"placement_notifier/internal/domain"
)

// Intaker runs one mailbox intake pass.
type Intaker interface {
	Run(ctx context.Context) (*domain.IntakeStats, error)
}

// Sweeper re-delivers records with undelivered channels.
type Sweeper interface {
	Sweep(ctx context.Context) (*domain.DispatchStats, error)
}

// Scheduler drives the pipeline on a fixed interval: one intake pass, then a
// dispatch sweep that picks up anything the event-driven path failed to
// deliver.
type Scheduler struct {
	intaker  Intaker
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(intaker Intaker, sweeper Sweeper, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		intaker:  intaker,
		sweeper:  sweeper,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.intaker.Run(passCtx); err != nil {
		s.logger.Error("intake pass failed", "error", err)
	}

	// The sweep runs even after an intake failure: earlier records may still
	// be waiting for delivery.
	if _, err := s.sweeper.Sweep(passCtx); err != nil {
		s.logger.Error("dispatch sweep failed", "error", err)
	}
}
