package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPurgeSchedule runs the purge at the top of every hour.
const DefaultPurgeSchedule = "@hourly"

// purgeTimeout bounds a single scheduled purge.
const purgeTimeout = time.Minute

// StartPurger schedules [Cache.Purge] with a standard five-field cron
// expression or a descriptor such as "@hourly". The returned function stops
// the scheduler and waits for a running purge to finish.
func (c *Cache) StartPurger(schedule string) (stop func(), err error) {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	sched := cron.New()
	if _, err := sched.AddFunc(schedule, c.purgeJob); err != nil {
		return nil, fmt.Errorf("cache: schedule purge %q: %w", schedule, err)
	}
	sched.Start()
	slog.Info("cache: purge scheduled", "schedule", schedule)

	return func() {
		<-sched.Stop().Done()
	}, nil
}

func (c *Cache) purgeJob() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()
	n, err := c.Purge(ctx)
	if err != nil {
		slog.Warn("cache: scheduled purge failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("cache: purged expired entries", "count", n)
	}
}
