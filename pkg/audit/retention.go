package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger removes records older than a cutoff. DBRecorder satisfies this.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// RetentionJob periodically purges expired access records.
type RetentionJob struct {
	cron   *cron.Cron
	purger Purger
	policy RetentionPolicy

	// onPurge receives the count of purged records after each run.
	onPurge func(purged int64, err error)
}

// NewRetentionJob builds a retention job against the given purger. The
// callback may be nil.
func NewRetentionJob(purger Purger, policy RetentionPolicy, onPurge func(purged int64, err error)) *RetentionJob {
	if onPurge == nil {
		onPurge = func(int64, error) {}
	}
	return &RetentionJob{
		cron:    cron.New(),
		purger:  purger,
		policy:  policy,
		onPurge: onPurge,
	}
}

// Start schedules the purge on the policy's cron expression and begins
// running it in the background.
func (j *RetentionJob) Start() error {
	_, err := j.cron.AddFunc(j.policy.Schedule, func() {
		purged, err := j.RunOnce(context.Background())
		j.onPurge(purged, err)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention job: %w", err)
	}
	j.cron.Start()
	return nil
}

// RunOnce purges records older than the retention window immediately.
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.policy.RetentionDays)
	return j.purger.Purge(ctx, cutoff)
}

// Stop cancels the schedule and waits for any running purge to finish.
func (j *RetentionJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
