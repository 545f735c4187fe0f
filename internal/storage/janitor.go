package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/JSFTI/bg-removal/internal/logger"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Janitor prunes artifacts older than a retention window on a cron schedule.
type Janitor struct {
	store     ArtifactStore
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// NewJanitor validates schedule and registers the prune job. It does not start it.
func NewJanitor(store ArtifactStore, retention time.Duration, schedule string) (*Janitor, error) {
	j := &Janitor{
		store:     store,
		retention: retention,
		cron:      cron.New(),
		now:       time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, func() { _, _ = j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce deletes everything recorded before now-retention.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	removed, err := j.store.Prune(ctx, cutoff)
	fields := logrus.Fields{"cutoff": cutoff.Format(time.RFC3339), "removed": removed}
	if err != nil {
		logger.WithError(err).WithFields(fields).Warn("Diagnostics prune failed")
		return removed, err
	}
	logger.WithFields(fields).Debug("Diagnostics pruned")
	return removed, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts scheduling and waits for a running prune to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
