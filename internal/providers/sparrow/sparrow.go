// Package sparrow sends SMS through the Sparrow SMS v2 API.
package sparrow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
)

// Name is the registry name of this adapter.
const Name = "sparrow"

const defaultEndpoint = "https://api.sparrowsms.com/v2/sms/"

// Option customises the behaviour of the Sparrow adapter.
type Option func(*Adapter)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client common.HTTPClient) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(endpoint) != "" {
			a.endpoint = endpoint
		}
	}
}

// Adapter implements common.Adapter for Sparrow SMS.
type Adapter struct {
	logger     zerolog.Logger
	token      string
	from       string
	endpoint   string
	httpClient common.HTTPClient
}

// New constructs a Sparrow adapter. Required keys: token, from.
func New(cfg common.ProviderConfig, logger zerolog.Logger, opts ...Option) (*Adapter, error) {
	if err := cfg.Require(Name, "token", "from"); err != nil {
		return nil, err
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	endpoint, err := cfg.URL(Name, "endpoint", defaultEndpoint)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		logger:   logger.With().Str("provider", Name).Logger(),
		endpoint: endpoint,
		token:    cfg.Get("token"),
		from:     cfg.Get("from"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.httpClient == nil {
		a.httpClient = common.Deps{}.Client()
	}
	return a, nil
}

// Factory adapts New to the registry factory signature.
func Factory(cfg common.ProviderConfig, deps common.Deps) (common.Adapter, error) {
	return New(cfg, deps.Logger, WithHTTPClient(deps.Client()))
}

// Name returns the registry name.
func (a *Adapter) Name() string { return Name }

// Send posts the text body to each recipient. Sparrow has no template API;
// template-only messages go out with an empty text field.
func (a *Adapter) Send(ctx context.Context, msg *message.Message) (*common.SendResult, error) {
	if !msg.HasText() && !msg.HasTemplate() {
		return nil, errs.Validation("message text or template is required")
	}

	result := common.NewSendResult(Name)
	for _, to := range msg.Recipients() {
		id, err := a.sendSingle(ctx, to, msg.Text())
		if err != nil {
			a.logger.Warn().Str("recipient", to).Err(err).Msg("sparrow send failed")
			return result, err
		}
		result.Add(to, id)
	}
	return result, nil
}

func (a *Adapter) sendSingle(ctx context.Context, to, text string) (string, error) {
	form := url.Values{}
	form.Set("token", a.token)
	form.Set("from", a.from)
	form.Set("to", to)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("sparrow: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, body, err := common.Do(a.httpClient, Name, req, common.DefaultBodyLimit)
	if err != nil {
		return "", err
	}
	parsed := gjson.ParseBytes(body)
	if status != http.StatusOK {
		return "", common.StatusError(Name, status, parsed.Get("response_code").String(), parsed.Get("response").String(), body)
	}
	return parsed.Get("message_id").String(), nil
}
