// Package scheduler runs a mirror pass on a cron schedule. Overlap is
// excluded by construction: a tick firing while the previous pass is still
// running is skipped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mirrorlabs/dirmirror/pkg/plog"
)

// ValidateSpec checks a standard 5-field cron expression without building a
// scheduler, so config validation can reject bad schedules up front.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler triggers a job on a cron schedule.
type Scheduler struct {
	spec string
	job  func(ctx context.Context) error
}

// New creates a Scheduler for the given 5-field cron spec. The spec must
// already be validated.
func New(spec string, job func(ctx context.Context) error) *Scheduler {
	return &Scheduler{spec: spec, job: job}
}

// Run blocks until ctx is canceled, firing the job on every scheduled tick.
// A tick that arrives while the job is still running is skipped; a failed
// job is logged and the scheduler waits for the next tick. On cancellation
// Run waits for an in-flight job to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{}),
	))

	_, err := c.AddFunc(s.spec, func() {
		start := time.Now()
		plog.Info("Scheduled mirror pass starting")
		if err := s.job(ctx); err != nil {
			plog.Error("Scheduled mirror pass failed, waiting for next tick", "error", err)
			return
		}
		plog.Info("Scheduled mirror pass succeeded", "duration", time.Since(start).Round(time.Millisecond).String())
	})
	if err != nil {
		return fmt.Errorf("could not register schedule %q: %w", s.spec, err)
	}

	plog.Info("Scheduler started", "schedule", s.spec)
	c.Start()

	<-ctx.Done()
	plog.Info("Scheduler stopping, waiting for in-flight pass to finish")
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts plog to the cron.Logger interface. Skip notifications
// arrive via Info; they are surfaced at Warn because a skipped tick means
// a pass is running longer than the schedule interval.
type cronLogger struct{}

var _ cron.Logger = cronLogger{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	plog.Warn(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	plog.Error(msg, append(keysAndValues, "error", err)...)
}
