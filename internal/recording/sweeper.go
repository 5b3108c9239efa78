package recording

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs retention once an hour.
const DefaultSweepSchedule = "@hourly"

// Sweep deletes artifacts created before now minus retention and returns
// how many were removed.
func (c *Coordinator) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	old, err := c.Store.ArtifactsBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, a := range old {
		if err := c.Delete(ctx, a.ID); err != nil {
			log.Printf("[recording] sweep %s: %v", a.ID, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// StartSweeper schedules Sweep on a cron spec. Stop the returned scheduler
// on shutdown.
func (c *Coordinator) StartSweeper(schedule string, retention time.Duration) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	sched := cron.New()
	_, err := sched.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(c.ctx, 5*time.Minute)
		defer cancel()
		n, err := c.Sweep(ctx, retention)
		if err != nil {
			log.Printf("[recording] sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[recording] sweep removed %d artifacts older than %s", n, retention)
		}
	})
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}
