package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/logging"
	"github.com/robfig/cron/v3"
)

// Purger removes old messages from a history.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// RetentionConfig configures the periodic purge of the message history.
type RetentionConfig struct {
	// Schedule is a standard cron expression.
	Schedule string
	// Retention is how long messages are kept.
	Retention     time.Duration
	LoggerFactory logging.LoggerFactory
}

// Retention purges old messages from the history according to a cron schedule.
type Retention struct {
	purger    Purger
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
	log       logging.LeveledLogger
}

// NewRetention schedules the purge job. Call Start to run the schedule.
func NewRetention(purger Purger, config RetentionConfig) (*Retention, error) {
	if config.Retention <= 0 {
		return nil, fmt.Errorf("retention must be positive: %s", config.Retention)
	}
	result := &Retention{
		purger:    purger,
		retention: config.Retention,
		cron:      cron.New(),
		now:       time.Now,
	}
	if config.LoggerFactory != nil {
		result.log = config.LoggerFactory.NewLogger("retention")
	}

	_, err := result.cron.AddFunc(config.Schedule, func() {
		_, _ = result.PurgeNow(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", config.Schedule, err)
	}
	return result, nil
}

func (r *Retention) Start() {
	r.cron.Start()
}

// Stop stops the schedule and waits for a running purge to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// PurgeNow removes all messages older than the retention period.
func (r *Retention) PurgeNow(ctx context.Context) (int64, error) {
	before := r.now().Add(-r.retention)
	purged, err := r.purger.Purge(ctx, before)
	if err != nil {
		if r.log != nil {
			r.log.Warnf("purge of messages before %s failed: %v", before.Format(time.RFC3339), err)
		}
		return 0, err
	}
	if r.log != nil && purged > 0 {
		r.log.Infof("purged %d messages received before %s", purged, before.Format(time.RFC3339))
	}
	return purged, nil
}
