// Package worker executes deferred SMS jobs with bounded concurrency and
// retries, publishing lifecycle events and dead-lettering failures.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/dispatch"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/jobs"
	"github.com/ajayykmr/sms-gateway/internal/message"
	"github.com/ajayykmr/sms-gateway/internal/models"
	"github.com/ajayykmr/sms-gateway/internal/observability/metrics"
	"github.com/ajayykmr/sms-gateway/internal/observability/tracing"
)

// Config holds the worker's runtime settings.
type Config struct {
	Retry       jobs.RetryPolicy
	Concurrency int
	// MaxPayloadBytes rejects oversized records before decoding. Zero
	// disables the check.
	MaxPayloadBytes int
}

// Record is a queued job as delivered by a transport.
type Record struct {
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte

	commit func(context.Context) error
}

// Sender delivers one message. *dispatch.Engine satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, msg *message.Message, provider string) (*common.SendResult, error)
}

// SenderFactory returns a fresh Sender for one attempt. Dispatch engines
// are not safe for concurrent use, so they are never shared between jobs.
type SenderFactory func() Sender

// StatusPublisher publishes job lifecycle events.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// DLQPublisher publishes jobs that will not be retried.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record models.DLQRecord) error
}

// Dependencies collects the engine's collaborators. Publishers are optional.
type Dependencies struct {
	Senders         SenderFactory
	StatusPublisher StatusPublisher
	DLQPublisher    DLQPublisher
	Logger          zerolog.Logger
	Now             func() time.Time
	// Wait pauses between attempts. It returns false when ctx ended first.
	Wait func(ctx context.Context, d time.Duration) bool
}

// Engine runs jobs.
type Engine struct {
	cfg       Config
	senders   SenderFactory
	status    StatusPublisher
	dlq       DLQPublisher
	logger    zerolog.Logger
	now       func() time.Time
	wait      func(ctx context.Context, d time.Duration) bool
	semaphore *semaphore.Weighted
}

// NewEngine validates cfg and deps.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.Concurrency < 1 {
		return nil, errors.New("worker: concurrency must be >= 1")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, errors.New("worker: max attempts must be >= 1")
	}
	if cfg.MaxPayloadBytes < 0 {
		return nil, errors.New("worker: max payload bytes cannot be negative")
	}
	if deps.Senders == nil {
		return nil, errors.New("worker: sender factory is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	wait := deps.Wait
	if wait == nil {
		wait = sleep
	}

	return &Engine{
		cfg:       cfg,
		senders:   deps.Senders,
		status:    deps.StatusPublisher,
		dlq:       deps.DLQPublisher,
		logger:    logger.With().Str("component", "worker_engine").Logger(),
		now:       now,
		wait:      wait,
		semaphore: semaphore.NewWeighted(int64(cfg.Concurrency)),
	}, nil
}

// HandleRecord decodes record and runs the job asynchronously. Records that
// cannot be decoded go straight to the DLQ and are committed.
func (e *Engine) HandleRecord(ctx context.Context, record *Record) {
	if record == nil {
		return
	}

	if e.cfg.MaxPayloadBytes > 0 && len(record.Value) > e.cfg.MaxPayloadBytes {
		err := errs.Validation("payload exceeds maximum size: got %d bytes, limit %d bytes", len(record.Value), e.cfg.MaxPayloadBytes)
		e.reject(ctx, record, string(record.Key), err)
		return
	}

	job, err := jobs.Decode(record.Value)
	if err != nil {
		e.reject(ctx, record, string(record.Key), err)
		return
	}

	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		e.logger.Warn().Str("job_id", job.ID).Err(err).Msg("worker: failed to acquire concurrency slot")
		return
	}
	go func() {
		defer e.semaphore.Release(1)
		e.Run(ctx, job, record)
	}()
}

// Submit runs job in-process. It implements jobs.Submitter for hosts that
// run without a queue; the job outlives the caller's context.
func (e *Engine) Submit(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return errors.New("worker: job is nil")
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("worker: acquire slot: %w", err)
	}
	go func() {
		defer e.semaphore.Release(1)
		e.Run(ctx, job, nil)
	}()
	return nil
}

// Wait blocks until every running job finished or ctx ended.
func (e *Engine) Wait(ctx context.Context) error {
	if err := e.semaphore.Acquire(ctx, int64(e.cfg.Concurrency)); err != nil {
		return err
	}
	e.semaphore.Release(int64(e.cfg.Concurrency))
	return nil
}

// Run executes job synchronously: it waits for NotBefore, then attempts the
// send until it succeeds, fails terminally or exhausts the retry policy.
// Recipients a provider accepted are not sent again on retry. record may be
// nil; when set it is committed once the job reached a final state.
func (e *Engine) Run(ctx context.Context, job *jobs.Job, record *Record) {
	ctx = dispatch.WithJobID(ctx, job.ID)
	ctx, span := tracing.Tracer().Start(ctx, "sms.job")
	defer span.End()

	log := e.logger.With().Str("job_id", job.ID).Str("provider", job.Provider).Logger()
	e.publishStatus(ctx, job, models.StatusEvent{EventType: models.StatusEventQueued, Attempt: job.Attempt})

	if job.NotBefore != nil {
		if d := job.NotBefore.Sub(e.now()); d > 0 {
			log.Debug().Dur("delay", d).Msg("worker: waiting for scheduled time")
			if !e.wait(ctx, d) {
				log.Warn().Msg("worker: context cancelled before scheduled time; job will be redelivered")
				return
			}
		}
	}

	msg, err := job.BuildMessage()
	if err != nil {
		e.fail(ctx, job, record, job.Attempt, time.Time{}, err)
		return
	}

	var delivered []models.Delivery
	firstFailedAt := time.Time{}
	attempt := job.Attempt + 1

	for {
		e.publishStatus(ctx, job, models.StatusEvent{EventType: models.StatusEventAttempt, Attempt: attempt})

		start := e.now()
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Retry.AttemptTimeout())
		res, err := e.senders().SendMessage(attemptCtx, msg, job.Provider)
		cancel()
		duration := e.now().Sub(start)
		if res != nil {
			for _, d := range res.Deliveries {
				delivered = append(delivered, models.Delivery{Recipient: d.Recipient, ProviderMessageID: d.ProviderMessageID})
			}
		}

		attemptLog := log.With().Int("attempt", attempt).Dur("duration", duration).Logger()

		if err == nil {
			attemptLog.Info().Int("delivered", len(delivered)).Msg("worker: job sent")
			metrics.RecordJob("sent")
			e.publishStatus(ctx, job, models.StatusEvent{
				EventType:  models.StatusEventSent,
				Attempt:    attempt,
				Provider:   resultProvider(res, job.Provider),
				Deliveries: delivered,
			})
			e.commit(ctx, record)
			return
		}

		if ctx.Err() != nil {
			attemptLog.Warn().Err(err).Msg("worker: context cancelled during send; job will be redelivered")
			return
		}

		attemptLog.Warn().Str("error_kind", errs.Kind(err)).Err(err).Msg("worker: attempt failed")
		if firstFailedAt.IsZero() {
			firstFailedAt = e.now()
		}

		if !e.cfg.Retry.ShouldRetry(attempt, err) {
			e.fail(ctx, job, record, attempt, firstFailedAt, err)
			return
		}

		if res != nil && len(res.Deliveries) > 0 {
			remaining, rerr := withoutRecipients(msg, res.Recipients())
			if rerr == nil {
				msg = remaining
			}
		}

		backoff := e.cfg.Retry.Delay(attempt)
		metrics.RecordJob("retry")
		e.publishStatus(ctx, job, models.StatusEvent{
			EventType: models.StatusEventRetry,
			Attempt:   attempt,
			Error:     err.Error(),
			ErrorKind: errs.Kind(err),
		})
		attemptLog.Info().Dur("backoff", backoff).Msg("worker: scheduling retry")

		if !e.wait(ctx, backoff) {
			log.Warn().Int("attempt", attempt).Msg("worker: context cancelled while waiting for retry; job will be redelivered")
			return
		}
		attempt++
	}
}

func (e *Engine) reject(ctx context.Context, record *Record, key string, err error) {
	e.logger.Warn().Str("key", key).Err(err).Msg("worker: invalid job record")
	metrics.RecordJob("invalid")
	now := e.now()
	e.publishDLQ(ctx, models.DLQRecord{
		JobID:         key,
		OriginalJob:   rawJSON(record.Value),
		FailureType:   models.FailureTypeValidation,
		LastError:     err.Error(),
		FirstFailedAt: now,
		LastAttemptAt: now,
	})
	e.commit(ctx, record)
}

func (e *Engine) fail(ctx context.Context, job *jobs.Job, record *Record, attempt int, firstFailedAt time.Time, err error) {
	now := e.now()
	if firstFailedAt.IsZero() {
		firstFailedAt = now
	}
	metrics.RecordJob("dlq")
	e.publishStatus(ctx, job, models.StatusEvent{
		EventType: models.StatusEventFailed,
		Attempt:   attempt,
		Error:     err.Error(),
		ErrorKind: errs.Kind(err),
	})

	original, encErr := jobs.Encode(job)
	if encErr != nil {
		original = nil
	}
	e.publishDLQ(ctx, models.DLQRecord{
		JobID:         job.ID,
		Provider:      job.Provider,
		OriginalJob:   rawJSON(original),
		Attempts:      attempt,
		FailureType:   failureType(err, attempt, e.cfg.Retry.MaxAttempts),
		LastError:     err.Error(),
		FirstFailedAt: firstFailedAt,
		LastAttemptAt: now,
		TraceID:       tracing.TraceID(ctx),
	})
	e.commit(ctx, record)
}

func failureType(err error, attempt, maxAttempts int) string {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return models.FailureTypeValidation
	case errs.Retryable(err) && attempt >= maxAttempts:
		return models.FailureTypeExhausted
	case errors.Is(err, errs.ErrConfiguration):
		return models.FailureTypePermanent
	default:
		return models.FailureTypeUnknown
	}
}

func (e *Engine) publishStatus(ctx context.Context, job *jobs.Job, event models.StatusEvent) {
	if e.status == nil {
		return
	}
	event.JobID = job.ID
	event.EventID = job.ID + ":" + event.EventType + ":" + strconv.Itoa(event.Attempt)
	if event.Provider == "" {
		event.Provider = job.Provider
	}
	event.RequestedProvider = job.Provider
	event.Recipients = append([]string(nil), job.Message.Recipients...)
	event.TemplateID = job.Message.TemplateID
	event.TraceID = tracing.TraceID(ctx)
	event.Timestamp = e.now().UTC()
	if err := e.status.PublishStatus(ctx, event); err != nil {
		e.logger.Error().
			Str("job_id", job.ID).
			Str("event", event.EventType).
			Err(err).
			Msg("worker: failed to publish status event")
	}
}

func (e *Engine) publishDLQ(ctx context.Context, record models.DLQRecord) {
	if e.dlq == nil {
		return
	}
	if err := e.dlq.PublishDLQ(ctx, record); err != nil {
		e.logger.Error().
			Str("job_id", record.JobID).
			Err(err).
			Msg("worker: failed to publish DLQ record")
	}
}

func (e *Engine) commit(ctx context.Context, record *Record) {
	if record == nil || record.commit == nil {
		return
	}
	if err := record.commit(ctx); err != nil {
		e.logger.Error().Err(err).Msg("worker: failed to commit record")
	}
}

func withoutRecipients(msg *message.Message, done []string) (*message.Message, error) {
	skip := make(map[string]bool, len(done))
	for _, r := range done {
		skip[r] = true
	}
	snap := msg.Snapshot()
	kept := snap.Recipients[:0:0]
	for _, r := range snap.Recipients {
		if !skip[r] {
			kept = append(kept, r)
		}
	}
	snap.Recipients = kept
	return message.FromSnapshot(snap)
}

func resultProvider(res *common.SendResult, fallback string) string {
	if res != nil && res.Provider != "" {
		return res.Provider
	}
	return fallback
}

// rawJSON embeds b as-is when it is JSON and as a JSON string otherwise.
func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("null")
	}
	if !json.Valid(b) {
		quoted, _ := json.Marshal(string(b))
		return quoted
	}
	return append(json.RawMessage(nil), b...)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
