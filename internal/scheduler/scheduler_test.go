package scheduler

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajayykmr/sms-gateway/internal/jobs"
	"github.com/ajayykmr/sms-gateway/internal/message"
)

type memStore struct {
	mu      sync.Mutex
	members map[string]float64
	failAdd error
}

func newMemStore() *memStore { return &memStore{members: map[string]float64{}} }

func (s *memStore) ZAdd(_ context.Context, _ string, members ...redis.Z) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd != nil {
		return redis.NewIntResult(0, s.failAdd)
	}
	for _, m := range members {
		s.members[m.Member.(string)] = m.Score
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (s *memStore) ZRangeByScore(_ context.Context, _ string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	max, err := strconv.ParseFloat(opt.Max, 64)
	if err != nil {
		return redis.NewStringSliceResult(nil, err)
	}
	var out []string
	for m, sc := range s.members {
		if sc <= max {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.members[out[i]] < s.members[out[j]] })
	if opt.Count > 0 && int64(len(out)) > opt.Count {
		out = out[:opt.Count]
	}
	return redis.NewStringSliceResult(out, nil)
}

func (s *memStore) ZRem(_ context.Context, _ string, members ...interface{}) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range members {
		if _, ok := s.members[m.(string)]; ok {
			delete(s.members, m.(string))
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (s *memStore) ZCard(context.Context, string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	return redis.NewIntResult(int64(len(s.members)), nil)
}

type collector struct {
	jobs []*jobs.Job
	err  error
}

func (c *collector) Submit(_ context.Context, j *jobs.Job) error {
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, j)
	return nil
}

func job(t *testing.T, now time.Time, delay time.Duration) *jobs.Job {
	t.Helper()
	m := message.New()
	require.NoError(t, m.AddRecipients("+15551230001"))
	require.NoError(t, m.SetText("reminder"))
	return jobs.New(m, "random", now).At(now.Add(delay))
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestPollForwardsOnlyDueJobs(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	q, err := New(store, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	early := job(t, now, -time.Minute)
	later := job(t, now, time.Hour)
	require.NoError(t, q.Submit(context.Background(), later))
	require.NoError(t, q.Submit(context.Background(), early))

	dst := &collector{}
	n, err := q.Poll(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, dst.jobs, 1)
	assert.Equal(t, early.ID, dst.jobs[0].ID)
	assert.Equal(t, "random", dst.jobs[0].Provider)
	assert.Len(t, store.members, 1)

	now = now.Add(2 * time.Hour)
	n, err = q.Poll(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, later.ID, dst.jobs[1].ID)
	assert.Empty(t, store.members)
}

func TestPollHonoursBatchSize(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	q, err := New(store, WithBatchSize(2), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Submit(context.Background(), job(t, now, -time.Duration(i+1)*time.Second)))
	}

	dst := &collector{}
	n, err := q.Poll(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.members, 1)
}

func TestPollReschedulesOnForwardFailure(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	q, err := New(store, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	require.NoError(t, q.Submit(context.Background(), job(t, now, 0)))

	_, err = q.Poll(context.Background(), &collector{err: errors.New("kafka down")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka down")
	assert.Len(t, store.members, 1, "job must stay scheduled")
}

func TestPollDropsUndecodableMembers(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	store.members["not a job"] = 0
	q, err := New(store, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	dst := &collector{}
	n, err := q.Poll(context.Background(), dst)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.members)
}

func TestSubmitErrors(t *testing.T) {
	store := newMemStore()
	store.failAdd = errors.New("READONLY")
	q, err := New(store)
	require.NoError(t, err)

	err = q.Submit(context.Background(), job(t, time.Now(), time.Minute))
	assert.ErrorContains(t, err, "READONLY")
	assert.Error(t, q.Submit(context.Background(), nil))
}

func TestRunStopsOnCancel(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	q, err := New(store, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, q.Submit(context.Background(), job(t, now, -time.Second)))

	var mu sync.Mutex
	var got []*jobs.Job
	ctx, cancel := context.WithCancel(context.Background())
	dst := jobs.SubmitterFunc(func(_ context.Context, j *jobs.Job) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, j)
		cancel()
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, dst) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 1)

	assert.Error(t, q.Run(context.Background(), nil))
}
