package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every registered job once per interval while holding the lock.
// A failing job is recorded and the rest of the cycle still runs.
type Service struct {
	cfg ServiceParams
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron: lock required")
	}
	if params.Registry == nil {
		params.Registry = NewRegistry()
	}
	if params.Interval <= 0 {
		params.Interval = defaultInterval
	}
	if params.JobTimeout <= 0 {
		params.JobTimeout = defaultJobTimeout
	}
	return &Service{cfg: params}, nil
}

// Run executes a cycle immediately, then on every tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single locked cycle and reports whether this replica
// held the lock for it.
func (s *Service) RunOnce(ctx context.Context) bool {
	locked, err := s.cfg.Lock.Acquire(ctx)
	if err != nil {
		s.cfg.Logger.Error(ctx, "scheduled run failed", fmt.Errorf("lock acquire: %w", err))
		return false
	}
	if !locked {
		s.cfg.Logger.Info(ctx, "cron lock held elsewhere, skipping cycle")
		s.cfg.Metrics.CycleSkipped()
		return false
	}
	defer func() {
		if err := s.cfg.Lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.cfg.Logger.Error(ctx, "failed to release cron lock", err)
		}
	}()

	jobs := s.cfg.Registry.Jobs()
	s.cfg.Logger.Info(s.cfg.Logger.WithField(ctx, "jobs", len(jobs)), "scheduled run starting")
	for _, job := range jobs {
		if ctx.Err() != nil {
			s.cfg.Logger.WarnErr(ctx, "scheduled run interrupted", ctx.Err())
			return true
		}
		s.runJob(ctx, job)
	}
	s.cfg.Logger.Info(ctx, "scheduled run complete")
	return true
}

func (s *Service) runJob(ctx context.Context, job Job) {
	ctx = s.cfg.Logger.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	s.cfg.Logger.Info(ctx, "job start")
	start := time.Now()
	err := job.Run(ctx)
	end := time.Now()
	s.cfg.Metrics.JobFinished(job.Name(), end.Sub(start), end, err)

	ctx = s.cfg.Logger.WithField(ctx, "duration_ms", end.Sub(start).Milliseconds())
	if err != nil {
		s.cfg.Logger.Error(ctx, "job failed", err)
		return
	}
	s.cfg.Logger.Info(ctx, "job completed")
}
