package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

const day = 24 * time.Hour

// pruneJob deletes rows that fell out of a retention window measured in days.
type pruneJob struct {
	name  string
	logg  *logger.Logger
	days  int
	prune func(ctx context.Context, cutoff time.Time) (int64, error)
	now   func() time.Time
}

func newPruneJob(name string, logg *logger.Logger, days, fallback int, prune func(context.Context, time.Time) (int64, error)) *pruneJob {
	if days <= 0 {
		days = fallback
	}
	return &pruneJob{name: name, logg: logg, days: days, prune: prune, now: db.UTCNow}
}

func (j *pruneJob) Name() string { return j.name }

func (j *pruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.days) * day)
	deleted, err := j.prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.days,
		"rows_deleted":   deleted,
	}), "retention sweep complete")
	return nil
}
