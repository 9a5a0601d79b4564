package vonage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
)

func serve(t *testing.T, body string) *Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "k", r.PostForm.Get("api_key"))
		assert.Equal(t, "s", r.PostForm.Get("api_secret"))
		assert.Equal(t, "Acme", r.PostForm.Get("from"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	a, err := New(common.ProviderConfig{"key": "k", "secret": "s", "from": "Acme"}, zerolog.Nop(), WithEndpoint(srv.URL))
	require.NoError(t, err)
	return a
}

func textMessage(t *testing.T) *message.Message {
	t.Helper()
	m := message.New()
	require.NoError(t, m.AddRecipients("447700900123"))
	require.NoError(t, m.SetText("hello"))
	return m
}

func TestSendSuccess(t *testing.T) {
	a := serve(t, `{"message-count":"1","messages":[{"to":"447700900123","message-id":"0A0000000123ABCD1","status":"0"}]}`)

	res, err := a.Send(context.Background(), textMessage(t))
	require.NoError(t, err)
	assert.Equal(t, "0A0000000123ABCD1", res.Deliveries[0].ProviderMessageID)
}

func TestSendStatusError(t *testing.T) {
	a := serve(t, `{"message-count":"1","messages":[{"status":"4","error-text":"Bad Credentials"}]}`)

	_, err := a.Send(context.Background(), textMessage(t))
	var perr *errs.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Bad Credentials", perr.Message)
	assert.Equal(t, "4", perr.Code)
	assert.False(t, perr.Temporary)
}

func TestSendThrottledIsTemporary(t *testing.T) {
	a := serve(t, `{"messages":[{"status":"1","error-text":"Throughput Rate Exceeded"}]}`)

	_, err := a.Send(context.Background(), textMessage(t))
	assert.True(t, errs.Temporary(err))
}

func TestSendMalformedBody(t *testing.T) {
	a := serve(t, `not json`)

	_, err := a.Send(context.Background(), textMessage(t))
	var perr *errs.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Unknown error", perr.Message)
}
