package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGroup struct {
	errs chan error
}

func newStubGroup() *stubGroup { return &stubGroup{errs: make(chan error)} }

func (g *stubGroup) Consume(ctx context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
	<-ctx.Done()
	return sarama.ErrClosedConsumerGroup
}
func (g *stubGroup) Errors() <-chan error { return g.errs }
func (g *stubGroup) Close() error {
	close(g.errs)
	return nil
}
func (g *stubGroup) Pause(map[string][]int32)  {}
func (g *stubGroup) Resume(map[string][]int32) {}
func (g *stubGroup) PauseAll()                 {}
func (g *stubGroup) ResumeAll()                {}

type stubSession struct {
	mu      sync.Mutex
	marked  []int64
	commits int
}

func (s *stubSession) Claims() map[string][]int32               { return nil }
func (s *stubSession) MemberID() string                         { return "member" }
func (s *stubSession) GenerationID() int32                      { return 1 }
func (s *stubSession) MarkOffset(string, int32, int64, string)  {}
func (s *stubSession) ResetOffset(string, int32, int64, string) {}
func (s *stubSession) Context() context.Context                 { return context.Background() }
func (s *stubSession) Commit()                                  { s.mu.Lock(); s.commits++; s.mu.Unlock() }
func (s *stubSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type stubClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *stubClaim) Topic() string                            { return "sms.jobs" }
func (c *stubClaim) Partition() int32                         { return 0 }
func (c *stubClaim) InitialOffset() int64                     { return 0 }
func (c *stubClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *stubClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func TestNewValidation(t *testing.T) {
	_, err := New(nil, "group", zerolog.Nop())
	assert.Error(t, err)
	_, err = New([]string{"localhost:9092"}, "", zerolog.Nop())
	assert.Error(t, err)
}

func TestConsumeClaimDeliversAndCommits(t *testing.T) {
	c := newConsumer(newStubGroup(), "sms-workers", true, zerolog.Nop())

	var got []*Record
	c.handler = func(ctx context.Context, rec *Record) error {
		got = append(got, rec)
		if rec.Offset == 8 {
			return errors.New("handler failed")
		}
		return c.Commit(ctx, rec)
	}

	session := &stubSession{}
	claim := &stubClaim{msgs: make(chan *sarama.ConsumerMessage, 2)}
	claim.msgs <- &sarama.ConsumerMessage{
		Topic: "sms.jobs", Partition: 0, Offset: 7,
		Key: []byte("job-1"), Value: []byte(`{"id":"job-1"}`),
		Timestamp: time.Unix(100, 0),
		Headers:   []*sarama.RecordHeader{{Key: []byte("x-job-attempt"), Value: []byte("1")}, nil, {Key: nil}},
	}
	claim.msgs <- &sarama.ConsumerMessage{Topic: "sms.jobs", Offset: 8}
	close(claim.msgs)

	h := &groupHandler{consumer: c}
	require.NoError(t, h.Setup(session))
	assert.True(t, c.IsReady())
	require.NoError(t, h.ConsumeClaim(session, claim))
	require.NoError(t, h.Cleanup(session))
	assert.False(t, c.IsReady())

	require.Len(t, got, 2)
	assert.Equal(t, "job-1", string(got[0].Key))
	assert.Equal(t, map[string][]byte{"x-job-attempt": []byte("1")}, got[0].Headers)
	assert.Equal(t, []int64{7}, session.marked, "failed record is not committed")
	assert.Equal(t, 1, session.commits)

	require.NoError(t, c.Commit(context.Background(), got[0]))
	assert.Equal(t, 1, session.commits, "second commit is a no-op")
}

func TestCommitValidation(t *testing.T) {
	c := newConsumer(newStubGroup(), "sms-workers", true, zerolog.Nop())
	assert.Error(t, c.Commit(context.Background(), nil))
	assert.Error(t, c.Commit(context.Background(), &Record{}))
}

func TestConsumeStopsOnClose(t *testing.T) {
	c := newConsumer(newStubGroup(), "sms-workers", true, zerolog.Nop())

	assert.Error(t, c.Consume(context.Background(), nil, func(context.Context, *Record) error { return nil }))
	assert.Error(t, c.Consume(context.Background(), []string{"sms.jobs"}, nil))

	done := make(chan error, 1)
	go func() {
		done <- c.Consume(context.Background(), []string{"sms.jobs"}, func(context.Context, *Record) error { return nil })
	}()

	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.cancel != nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.True(t, err == nil || errors.Is(err, context.Canceled), "unexpected error %v", err)
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after Close")
	}
}
