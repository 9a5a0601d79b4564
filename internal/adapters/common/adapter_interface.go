package common

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/sms-gateway/internal/message"
)

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 30 * time.Second

// Adapter defines the behaviour required from provider adapters. Adapters
// convert a validated message into provider specific requests, issue one
// call per recipient in recipient order and stop at the first failure.
//
// On failure the returned SendResult lists the recipients that were
// delivered before the failing one; it is never nil when err is a
// provider or network error.
type Adapter interface {
	Name() string
	Send(ctx context.Context, msg *message.Message) (*SendResult, error)
}

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Deps carries the shared collaborators handed to adapter factories.
type Deps struct {
	Logger     zerolog.Logger
	HTTPClient HTTPClient
	Timeout    time.Duration
}

// Client returns the configured HTTP client or a default one honouring
// Timeout.
func (d Deps) Client() HTTPClient {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
