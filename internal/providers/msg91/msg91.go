// Package msg91 sends SMS through MSG91. Template messages use the flow API
// in a single batched request; plain text goes out per recipient through the
// legacy sendsms endpoint.
package msg91

import (
	"bytes"
	"context"
	"encoding/json"
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
const Name = "msg91"

const (
	defaultBaseURL = "https://api.msg91.com/api"
	flowPath       = "/v5/flow/"
	sendSMSPath    = "/v2/sendsms"
	// transactional route
	defaultRoute = "4"
)

// Option customises the behaviour of the MSG91 adapter.
type Option func(*Adapter)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client common.HTTPClient) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithBaseURL overrides the API root.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(baseURL) != "" {
			a.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// Adapter implements common.Adapter for MSG91.
type Adapter struct {
	logger     zerolog.Logger
	authKey    string
	sender     string
	route      string
	baseURL    string
	httpClient common.HTTPClient
}

// New constructs an MSG91 adapter. Required keys: authkey, sender.
func New(cfg common.ProviderConfig, logger zerolog.Logger, opts ...Option) (*Adapter, error) {
	if err := cfg.Require(Name, "authkey", "sender"); err != nil {
		return nil, err
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	baseURL, err := cfg.URL(Name, "base_url", defaultBaseURL)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		logger:  logger.With().Str("provider", Name).Logger(),
		baseURL: strings.TrimRight(baseURL, "/"),
		authKey: cfg.Get("authkey"),
		sender:  cfg.Get("sender"),
		route:   cfg.GetDefault("route", defaultRoute),
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

// Send dispatches the message. A template message is one flow call covering
// every recipient, so it either delivers to all of them or to none.
func (a *Adapter) Send(ctx context.Context, msg *message.Message) (*common.SendResult, error) {
	switch {
	case msg.HasTemplate():
		return a.sendFlow(ctx, msg)
	case msg.HasText():
		return a.sendPlain(ctx, msg)
	default:
		return nil, errs.Validation("message text or template is required")
	}
}

type flowRequest struct {
	Sender     string           `json:"sender"`
	TemplateID string           `json:"template_id"`
	Recipients []map[string]any `json:"recipients"`
}

func (a *Adapter) sendFlow(ctx context.Context, msg *message.Message) (*common.SendResult, error) {
	result := common.NewSendResult(Name)
	recipients := msg.Recipients()
	vars := msg.Variables()

	payload := flowRequest{
		Sender:     a.sender,
		TemplateID: msg.TemplateID(),
		Recipients: make([]map[string]any, 0, len(recipients)),
	}
	for _, to := range recipients {
		entry := make(map[string]any, len(vars)+1)
		for k, v := range vars {
			entry[k] = v
		}
		entry["mobiles"] = to
		payload.Recipients = append(payload.Recipients, entry)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return result, fmt.Errorf("msg91: encode flow payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+flowPath, bytes.NewReader(data))
	if err != nil {
		return result, fmt.Errorf("msg91: new request: %w", err)
	}
	req.Header.Set("authkey", a.authKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := common.Do(a.httpClient, Name, req, common.DefaultBodyLimit)
	if err != nil {
		a.logger.Warn().Str("template_id", msg.TemplateID()).Err(err).Msg("msg91 flow send failed")
		return result, err
	}
	if status != http.StatusOK {
		err := common.StatusError(Name, status, gjson.GetBytes(body, "code").String(), gjson.GetBytes(body, "message").String(), body)
		a.logger.Warn().Str("template_id", msg.TemplateID()).Err(err).Msg("msg91 flow send failed")
		return result, err
	}

	requestID := requestIDFrom(body)
	for _, to := range recipients {
		result.Add(to, requestID)
	}
	return result, nil
}

func (a *Adapter) sendPlain(ctx context.Context, msg *message.Message) (*common.SendResult, error) {
	result := common.NewSendResult(Name)
	for _, to := range msg.Recipients() {
		form := url.Values{}
		form.Set("authkey", a.authKey)
		form.Set("mobiles", to)
		form.Set("message", msg.Text())
		form.Set("sender", a.sender)
		form.Set("route", a.route)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+sendSMSPath, strings.NewReader(form.Encode()))
		if err != nil {
			return result, fmt.Errorf("msg91: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		status, body, err := common.Do(a.httpClient, Name, req, common.DefaultBodyLimit)
		if err == nil && status != http.StatusOK {
			err = common.StatusError(Name, status, gjson.GetBytes(body, "code").String(), gjson.GetBytes(body, "message").String(), body)
		}
		if err != nil {
			a.logger.Warn().Str("recipient", to).Err(err).Msg("msg91 send failed")
			return result, err
		}
		result.Add(to, requestIDFrom(body))
	}
	return result, nil
}

// requestIDFrom reads the request id MSG91 returns, either as request_id or
// as the message field of a {"type":"success"} body.
func requestIDFrom(body []byte) string {
	parsed := gjson.ParseBytes(body)
	if id := parsed.Get("request_id").String(); id != "" {
		return id
	}
	if parsed.Get("type").String() == "success" {
		return parsed.Get("message").String()
	}
	return ""
}
