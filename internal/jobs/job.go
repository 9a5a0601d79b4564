// Package jobs defines the deferred dispatch contract: the immutable job
// snapshot, the submitter a queue implements, and the retry policy the
// worker applies.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
	"github.com/ajayykmr/sms-gateway/internal/util"
)

// Job is a message snapshot bound to a provider name. The provider may be
// "random"; it is resolved when the job runs, not when it is queued.
type Job struct {
	ID        string           `json:"id"`
	Provider  string           `json:"provider"`
	Message   message.Snapshot `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
	NotBefore *time.Time       `json:"not_before,omitempty"`
	Attempt   int              `json:"attempt"`
}

// New snapshots msg for provider.
func New(msg *message.Message, provider string, now time.Time) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Provider:  provider,
		Message:   msg.Snapshot(),
		CreatedAt: now.UTC(),
	}
}

// At returns a copy of j scheduled for at.
func (j Job) At(at time.Time) *Job {
	t := at.UTC()
	j.NotBefore = &t
	return &j
}

// WithAttempt returns a copy of j carrying attempt.
func (j Job) WithAttempt(attempt int) *Job {
	j.Attempt = attempt
	return &j
}

// Due reports whether the job may run at now.
func (j *Job) Due(now time.Time) bool {
	return j.NotBefore == nil || !now.Before(*j.NotBefore)
}

// BuildMessage rebuilds and validates the message.
func (j *Job) BuildMessage() (*message.Message, error) {
	return message.FromSnapshot(j.Message)
}

// Encode serialises a job for transport.
func Encode(j *Job) ([]byte, error) {
	if j == nil {
		return nil, fmt.Errorf("jobs: job is nil")
	}
	return json.Marshal(j)
}

// Decode parses and validates a job. Malformed input is a ValidationError.
func Decode(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, errs.Validation("decode job: %v", err)
	}
	if _, err := util.ParseUUIDv4(j.ID); err != nil {
		return nil, errs.InvalidValue("id", j.ID, err.Error())
	}
	if strings.TrimSpace(j.Provider) == "" {
		return nil, errs.Validation("job %s has no provider", j.ID)
	}
	if _, err := j.BuildMessage(); err != nil {
		return nil, err
	}
	return &j, nil
}

// Submitter hands a job to a queue. Implementations must not call any
// provider.
type Submitter interface {
	Submit(ctx context.Context, job *Job) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, job *Job) error

// Submit calls f.
func (f SubmitterFunc) Submit(ctx context.Context, job *Job) error { return f(ctx, job) }
