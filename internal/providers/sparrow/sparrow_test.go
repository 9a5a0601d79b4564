package sparrow

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

func TestNewRequiresTokenAndFrom(t *testing.T) {
	_, err := New(common.ProviderConfig{}, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestSendPostsForm(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "tok", r.PostForm.Get("token"))
		assert.Equal(t, "InfoSMS", r.PostForm.Get("from"))
		assert.Equal(t, "Namaste", r.PostForm.Get("text"))
		got = append(got, r.PostForm.Get("to"))
		_, _ = w.Write([]byte(`{"count":1,"response_code":200,"response":"1 mesages has been queued for delivery","message_id":7}`))
	}))
	defer srv.Close()

	a, err := New(common.ProviderConfig{"token": "tok", "from": "InfoSMS"}, zerolog.Nop(), WithEndpoint(srv.URL))
	require.NoError(t, err)

	m := message.New()
	require.NoError(t, m.AddRecipients("9801234567", "9807654321"))
	require.NoError(t, m.SetText("Namaste"))

	res, err := a.Send(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, []string{"9801234567", "9807654321"}, got)
	assert.Equal(t, []string{"9801234567", "9807654321"}, res.Recipients())
	assert.Equal(t, "7", res.Deliveries[0].ProviderMessageID)
}

func TestSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"response_code":1002,"response":"Invalid Token"}`))
	}))
	defer srv.Close()

	a, err := New(common.ProviderConfig{"token": "bad", "from": "InfoSMS"}, zerolog.Nop(), WithEndpoint(srv.URL))
	require.NoError(t, err)

	m := message.New()
	require.NoError(t, m.AddRecipients("9801234567"))
	require.NoError(t, m.SetText("hi"))

	_, err = a.Send(context.Background(), m)
	var perr *errs.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Invalid Token", perr.Message)
	assert.Equal(t, "1002", perr.Code)
}
