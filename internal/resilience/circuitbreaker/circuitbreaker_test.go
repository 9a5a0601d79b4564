package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
)

type scriptedAdapter struct {
	name  string
	err   error
	calls int
}

func (s *scriptedAdapter) Name() string { return s.name }

func (s *scriptedAdapter) Send(context.Context, *message.Message) (*common.SendResult, error) {
	s.calls++
	res := common.NewSendResult(s.name)
	if s.err == nil {
		res.Add("+15551230001", "id")
	}
	return res, s.err
}

func testConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}
}

func msg(t *testing.T) *message.Message {
	t.Helper()
	m := message.New()
	require.NoError(t, m.AddRecipients("+15551230001"))
	require.NoError(t, m.SetText("hi"))
	return m
}

func TestNewStartsClosed(t *testing.T) {
	cb := New(testConfig("cb-test"), zerolog.Nop())
	assert.Equal(t, "cb-test", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.False(t, cb.IsOpen())
}

func TestWrapTripsOnProviderFailures(t *testing.T) {
	set := NewSet(zerolog.Nop(), testConfig)
	inner := &scriptedAdapter{name: "cb-trip", err: &errs.ProviderError{Provider: "cb-trip", StatusCode: 503}}
	guarded := set.Wrap(inner)

	for i := 0; i < 2; i++ {
		_, err := guarded.Send(context.Background(), msg(t))
		assert.ErrorIs(t, err, errs.ErrProvider)
	}
	assert.True(t, set.Get("cb-trip").IsOpen())

	res, err := guarded.Send(context.Background(), msg(t))
	assert.Equal(t, 2, inner.calls, "open circuit must not reach the adapter")
	assert.NotNil(t, res)

	var perr *errs.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Temporary)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, errs.Retryable(err))
}

func TestValidationErrorsDoNotTrip(t *testing.T) {
	set := NewSet(zerolog.Nop(), testConfig)
	inner := &scriptedAdapter{name: "cb-validation", err: errs.Validation("no content")}
	guarded := set.Wrap(inner)

	for i := 0; i < 5; i++ {
		_, err := guarded.Send(context.Background(), msg(t))
		assert.ErrorIs(t, err, errs.ErrValidation)
	}
	assert.False(t, set.Get("cb-validation").IsOpen())
	assert.Equal(t, 5, inner.calls)
}

func TestWrapPassesThroughSuccess(t *testing.T) {
	set := NewSet(zerolog.Nop(), nil)
	guarded := set.Wrap(&scriptedAdapter{name: "cb-ok"})

	res, err := guarded.Send(context.Background(), msg(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"+15551230001"}, res.Recipients())
	assert.Equal(t, "cb-ok", guarded.Name())
	assert.Same(t, set.Get("cb-ok"), set.Get("cb-ok"))
}
