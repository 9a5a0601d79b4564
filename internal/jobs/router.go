package jobs

import (
	"context"
	"fmt"
	"time"
)

// DelayRouter sends jobs scheduled in the future to Delayed and everything
// else to Immediate. A nil Delayed sends every job to Immediate, leaving
// the worker to wait for NotBefore.
type DelayRouter struct {
	Immediate Submitter
	Delayed   Submitter
	Now       func() time.Time
}

// Submit routes job.
func (r *DelayRouter) Submit(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("jobs: job is nil")
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	if r.Delayed != nil && !job.Due(now()) {
		return r.Delayed.Submit(ctx, job)
	}
	if r.Immediate == nil {
		return fmt.Errorf("jobs: no immediate submitter configured")
	}
	return r.Immediate.Submit(ctx, job)
}
