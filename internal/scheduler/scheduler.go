// Package scheduler holds jobs scheduled for later in a Redis sorted set,
// scored by their NotBefore time, and forwards them once they are due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ajayykmr/sms-gateway/internal/jobs"
	"github.com/ajayykmr/sms-gateway/internal/observability/metrics"
)

// Defaults for the delay queue.
const (
	DefaultKey          = "sms:delayed"
	DefaultPollInterval = time.Second
	DefaultBatchSize    = 100
)

// Store is the subset of Redis commands the queue needs.
// redis.UniversalClient satisfies it.
type Store interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
}

// Option customises a Queue.
type Option func(*Queue)

// WithKey sets the sorted-set key.
func WithKey(key string) Option {
	return func(q *Queue) {
		if key != "" {
			q.key = key
		}
	}
}

// WithPollInterval sets how often Run looks for due jobs.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.interval = d
		}
	}
}

// WithBatchSize caps how many due jobs one poll forwards.
func WithBatchSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.batch = n
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// Queue is a Redis-backed delay queue. It implements jobs.Submitter.
type Queue struct {
	store    Store
	key      string
	interval time.Duration
	batch    int
	logger   zerolog.Logger
	now      func() time.Time
}

// New builds a queue over store.
func New(store Store, opts ...Option) (*Queue, error) {
	if store == nil {
		return nil, errors.New("scheduler: redis store is required")
	}
	q := &Queue{
		store:    store,
		key:      DefaultKey,
		interval: DefaultPollInterval,
		batch:    DefaultBatchSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	if reflect.ValueOf(q.logger).IsZero() {
		q.logger = zerolog.Nop()
	}
	q.logger = q.logger.With().Str("component", "scheduler").Str("key", q.key).Logger()
	return q, nil
}

// NewRedis connects a queue to a single Redis node.
func NewRedis(addr, password string, db int, opts ...Option) (*Queue, *redis.Client, error) {
	if addr == "" {
		return nil, nil, errors.New("scheduler: redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	q, err := New(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return q, client, nil
}

// Submit stores job until its NotBefore time. Jobs without one are due
// immediately.
func (q *Queue) Submit(ctx context.Context, job *jobs.Job) error {
	payload, err := jobs.Encode(job)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	at := q.now()
	if job.NotBefore != nil {
		at = *job.NotBefore
	}
	if err := q.store.ZAdd(ctx, q.key, redis.Z{Score: score(at), Member: string(payload)}).Err(); err != nil {
		return fmt.Errorf("scheduler: schedule job %s: %w", job.ID, err)
	}
	q.logger.Debug().Str("job_id", job.ID).Time("not_before", at).Msg("job scheduled")
	return nil
}

// Poll forwards every job due at the current time to dst and returns how
// many were forwarded. A member is forwarded only by the poller that removed
// it, so concurrent pollers never duplicate a job.
func (q *Queue) Poll(ctx context.Context, dst jobs.Submitter) (int, error) {
	now := q.now()
	members, err := q.store.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(score(now), 'f', 0, 64),
		Count: int64(q.batch),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scheduler: fetch due jobs: %w", err)
	}

	forwarded := 0
	for _, member := range members {
		removed, err := q.store.ZRem(ctx, q.key, member).Result()
		if err != nil {
			return forwarded, fmt.Errorf("scheduler: claim job: %w", err)
		}
		if removed == 0 {
			continue
		}

		job, err := jobs.Decode([]byte(member))
		if err != nil {
			q.logger.Error().Err(err).Msg("dropping undecodable scheduled job")
			continue
		}
		if err := dst.Submit(ctx, job); err != nil {
			if rerr := q.store.ZAdd(ctx, q.key, redis.Z{Score: score(now), Member: member}).Err(); rerr != nil {
				q.logger.Error().Str("job_id", job.ID).Err(rerr).Msg("failed to reschedule job")
			}
			return forwarded, fmt.Errorf("scheduler: forward job %s: %w", job.ID, err)
		}
		q.logger.Debug().Str("job_id", job.ID).Msg("job due")
		forwarded++
	}

	if n, err := q.store.ZCard(ctx, q.key).Result(); err == nil {
		metrics.SetJobsScheduled(n)
	}
	return forwarded, nil
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on
// the next tick.
func (q *Queue) Run(ctx context.Context, dst jobs.Submitter) error {
	if dst == nil {
		return errors.New("scheduler: destination submitter is required")
	}
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	q.logger.Info().Dur("interval", q.interval).Msg("delay queue poller started")
	for {
		if n, err := q.Poll(ctx, dst); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Warn().Err(err).Msg("delay queue poll failed")
		} else if n > 0 {
			q.logger.Info().Int("forwarded", n).Msg("forwarded due jobs")
		}

		select {
		case <-ctx.Done():
			q.logger.Info().Msg("delay queue poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
