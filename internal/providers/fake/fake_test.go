package fake

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
)

func newAdapter(t *testing.T, cfg common.ProviderConfig) (*Adapter, *Store) {
	t.Helper()
	store := NewStore()
	a, err := New(cfg, store, zerolog.Nop())
	require.NoError(t, err)
	return a, store
}

func TestSendRecordsPlainText(t *testing.T) {
	a, store := newAdapter(t, nil)

	m := message.New()
	require.NoError(t, m.AddRecipients("+1234567890"))
	require.NoError(t, m.SetText("Hello Test"))

	res, err := a.Send(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, []string{"+1234567890"}, res.Recipients())

	records := store.Messages()
	require.Len(t, records, 1)
	assert.Equal(t, []string{"+1234567890"}, records[0].To)
	assert.Equal(t, "Hello Test", records[0].Text)
	assert.Empty(t, records[0].TemplateID)
	assert.Nil(t, records[0].Variables)
}

func TestSendFailFastStopsAtInjectedFailure(t *testing.T) {
	a, store := newAdapter(t, nil)
	store.Fail("+15550000001", ScenarioPermanent)

	m := message.New()
	require.NoError(t, m.AddRecipients("+15550000001", "+15550000002"))
	require.NoError(t, m.SetText("hi"))

	res, err := a.Send(context.Background(), m)
	assert.ErrorIs(t, err, errs.ErrProvider)
	assert.Equal(t, []string{"+15550000001"}, store.Attempts())
	assert.Empty(t, res.Deliveries)
	assert.Empty(t, store.Messages())
}

func TestSendPartialDelivery(t *testing.T) {
	a, store := newAdapter(t, nil)
	store.Fail("+15550000002", ScenarioTimeout)

	m := message.New()
	require.NoError(t, m.AddRecipients("+15550000001", "+15550000002", "+15550000003"))
	require.NoError(t, m.SetText("hi"))

	res, err := a.Send(context.Background(), m)
	assert.ErrorIs(t, err, errs.ErrNetwork)
	assert.Equal(t, []string{"+15550000001"}, res.Recipients())
	assert.Equal(t, []string{"+15550000001", "+15550000002"}, store.Attempts())
}

func TestDefaultScenarioFromConfig(t *testing.T) {
	a, _ := newAdapter(t, common.ProviderConfig{"scenario": "transient"})

	m := message.New()
	require.NoError(t, m.AddRecipients("+15550000001"))
	require.NoError(t, m.SetText("hi"))

	_, err := a.Send(context.Background(), m)
	assert.True(t, errs.Temporary(err))
}

func TestLatencyHonoursContext(t *testing.T) {
	a, _ := newAdapter(t, common.ProviderConfig{"latency_ms": "1000"})

	m := message.New()
	require.NoError(t, m.AddRecipients("+15550000001"))
	require.NoError(t, m.SetText("hi"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Send(ctx, m)
	assert.ErrorIs(t, err, errs.ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResetClearsEverything(t *testing.T) {
	a, store := newAdapter(t, nil)
	store.Fail("+15550000009", ScenarioPermanent)

	m := message.New()
	require.NoError(t, m.AddRecipients("+15550000001"))
	require.NoError(t, m.SetText("hi"))
	_, err := a.Send(context.Background(), m)
	require.NoError(t, err)

	store.Reset()
	assert.Empty(t, store.Messages())
	assert.Empty(t, store.Attempts())

	m2 := message.New()
	require.NoError(t, m2.AddRecipients("+15550000009"))
	require.NoError(t, m2.SetText("hi"))
	_, err = a.Send(context.Background(), m2)
	assert.NoError(t, err, "injected failures are cleared by Reset")
}

func TestInvalidLatency(t *testing.T) {
	_, err := New(common.ProviderConfig{"latency_ms": "soon"}, NewStore(), zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = New(nil, nil, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestParseWebhook(t *testing.T) {
	a, _ := newAdapter(t, nil)

	data, err := a.ParseWebhook([]byte(`{"message_id":"fake-1","status":"delivered","recipient":"+15550000001"}`))
	require.NoError(t, err)
	assert.Equal(t, common.WebhookData{MessageID: "fake-1", Status: "delivered", Recipient: "+15550000001"}, data)

	data, err = a.ParseWebhook([]byte(`garbage`))
	require.NoError(t, err)
	assert.Equal(t, common.WebhookData{}, data)
}

func TestBoundedStoreKeepsLatest(t *testing.T) {
	store := NewBoundedStore(2)
	a, err := New(nil, store, zerolog.Nop())
	require.NoError(t, err)

	for _, to := range []string{"+15550000001", "+15550000002", "+15550000003"} {
		m := message.New()
		require.NoError(t, m.AddRecipients(to))
		require.NoError(t, m.SetText("hi"))
		_, err := a.Send(context.Background(), m)
		require.NoError(t, err)
	}

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"+15550000002"}, msgs[0].To)
	assert.Equal(t, []string{"+15550000003"}, msgs[1].To)
	assert.Equal(t, []string{"+15550000002", "+15550000003"}, store.Attempts())

	assert.Len(t, NewBoundedStore(0).Messages(), 0)
}
