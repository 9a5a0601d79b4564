package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
)

func sampleMessage(t *testing.T) *message.Message {
	t.Helper()
	m := message.New()
	require.NoError(t, m.AddRecipients("+15551230001"))
	require.NoError(t, m.SetTemplate("TEMPLATE123", map[string]any{"otp": 1234}))
	return m
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := New(sampleMessage(t), "random", now).At(now.Add(time.Hour))

	raw, err := Encode(job)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, "random", decoded.Provider)
	assert.True(t, decoded.NotBefore.Equal(now.Add(time.Hour)))

	m, err := decoded.BuildMessage()
	require.NoError(t, err)
	assert.Equal(t, "1234", message.FormatValue(m.Variables()["otp"]))
}

func TestJobIsSnapshot(t *testing.T) {
	m := sampleMessage(t)
	job := New(m, "fake", time.Now())
	require.NoError(t, m.AddRecipients("+15559999999"))

	assert.Equal(t, []string{"+15551230001"}, job.Message.Recipients)

	retried := job.WithAttempt(2)
	assert.Equal(t, 0, job.Attempt)
	assert.Equal(t, 2, retried.Attempt)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"bad id":        `{"id":"x","provider":"fake","message":{"recipients":["+15551230001"],"text":"hi"}}`,
		"no provider":   `{"id":"b0c9c2b0-1f3a-4d2d-9e3f-123456789abc","message":{"recipients":["+15551230001"],"text":"hi"}}`,
		"bad message":   `{"id":"b0c9c2b0-1f3a-4d2d-9e3f-123456789abc","provider":"fake","message":{"recipients":[]}}`,
		"bad recipient": `{"id":"b0c9c2b0-1f3a-4d2d-9e3f-123456789abc","provider":"fake","message":{"recipients":["12"],"text":"hi"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 10*time.Second, p.Delay(1))
	assert.Equal(t, 30*time.Second, p.Delay(2))
	assert.Equal(t, 60*time.Second, p.Delay(3))
	assert.Equal(t, 60*time.Second, p.Delay(7))
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, DefaultTimeout, p.AttemptTimeout())
	assert.Equal(t, DefaultTimeout, RetryPolicy{MaxAttempts: 1}.AttemptTimeout())
	assert.Equal(t, time.Second, RetryPolicy{Timeout: time.Second}.AttemptTimeout())

	providerErr := &errs.ProviderError{Provider: "x"}
	assert.True(t, p.ShouldRetry(1, providerErr))
	assert.True(t, p.ShouldRetry(2, providerErr))
	assert.False(t, p.ShouldRetry(3, providerErr))
	assert.False(t, p.ShouldRetry(1, errs.Validation("bad")))
	assert.False(t, p.ShouldRetry(1, errs.MissingKeys("x", "token")))
}

type recorder struct{ jobs []*Job }

func (r *recorder) Submit(_ context.Context, j *Job) error {
	r.jobs = append(r.jobs, j)
	return nil
}

func TestDelayRouter(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	immediate, delayed := &recorder{}, &recorder{}
	router := &DelayRouter{Immediate: immediate, Delayed: delayed, Now: func() time.Time { return now }}

	due := New(sampleMessage(t), "fake", now)
	past := New(sampleMessage(t), "fake", now).At(now.Add(-time.Minute))
	future := New(sampleMessage(t), "fake", now).At(now.Add(time.Minute))

	for _, j := range []*Job{due, past, future} {
		require.NoError(t, router.Submit(context.Background(), j))
	}
	assert.Equal(t, []*Job{due, past}, immediate.jobs)
	assert.Equal(t, []*Job{future}, delayed.jobs)

	var got []*Job
	fallback := &DelayRouter{Immediate: SubmitterFunc(func(_ context.Context, j *Job) error {
		got = append(got, j)
		return nil
	})}
	require.NoError(t, fallback.Submit(context.Background(), future))
	assert.Len(t, got, 1)

	assert.Error(t, (&DelayRouter{}).Submit(context.Background(), due))
}

func TestJobJSONShape(t *testing.T) {
	job := New(sampleMessage(t), "twilio", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	raw, err := Encode(job)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "twilio", doc["provider"])
	assert.NotContains(t, doc, "not_before")
	assert.Equal(t, "TEMPLATE123", doc["message"].(map[string]any)["template_id"])
}
