// Package twilio sends SMS through the Twilio Messages API.
package twilio

import (
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
const Name = "twilio"

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Option customises the behaviour of the Twilio adapter.
type Option func(*Adapter)

// WithHTTPClient overrides the HTTP client used to talk to Twilio.
func WithHTTPClient(client common.HTTPClient) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithBaseURL sets the base Twilio API URL. Useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(baseURL) != "" {
			a.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// Adapter implements common.Adapter for Twilio.
type Adapter struct {
	logger       zerolog.Logger
	accountSID   string
	authToken    string
	from         string
	httpClient   common.HTTPClient
	baseURL      string
	maxBodyBytes int64
}

// New constructs a Twilio adapter. Required keys: sid, token, from.
// An optional base_url key overrides the API root.
func New(cfg common.ProviderConfig, logger zerolog.Logger, opts ...Option) (*Adapter, error) {
	if err := cfg.Require(Name, "sid", "token", "from"); err != nil {
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
		logger:       logger.With().Str("provider", Name).Logger(),
		baseURL:      strings.TrimRight(baseURL, "/"),
		accountSID:   cfg.Get("sid"),
		authToken:    cfg.Get("token"),
		from:         cfg.Get("from"),
		maxBodyBytes: common.DefaultBodyLimit,
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

// Send posts one message per recipient. A template id switches the request
// to Twilio Content API fields.
func (a *Adapter) Send(ctx context.Context, msg *message.Message) (*common.SendResult, error) {
	if !msg.HasText() && !msg.HasTemplate() {
		return nil, errs.Validation("message text or template is required")
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", a.baseURL, url.PathEscape(a.accountSID))
	result := common.NewSendResult(Name)

	for _, to := range msg.Recipients() {
		sid, err := a.sendSingle(ctx, endpoint, to, msg)
		if err != nil {
			a.logger.Warn().
				Str("recipient", to).
				Int("delivered", len(result.Deliveries)).
				Err(err).
				Msg("twilio send failed")
			return result, err
		}
		a.logger.Debug().Str("recipient", to).Str("sid", sid).Msg("twilio send succeeded")
		result.Add(to, sid)
	}
	return result, nil
}

func (a *Adapter) sendSingle(ctx context.Context, endpoint, to string, msg *message.Message) (string, error) {
	params := url.Values{}
	params.Set("From", a.from)
	params.Set("To", to)

	if msg.HasTemplate() {
		params.Set("ContentSid", msg.TemplateID())
		if vars := msg.OrderedVariables(); len(vars) > 0 {
			content := make(map[string]string, len(vars))
			for _, v := range vars {
				content[v.Key] = message.FormatValue(v.Value)
			}
			encoded, err := json.Marshal(content)
			if err != nil {
				return "", fmt.Errorf("twilio: encode content variables: %w", err)
			}
			params.Set("ContentVariables", string(encoded))
		}
	} else {
		params.Set("Body", msg.Text())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: new request: %w", err)
	}
	req.SetBasicAuth(a.accountSID, a.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, body, err := common.Do(a.httpClient, Name, req, a.maxBodyBytes)
	if err != nil {
		return "", err
	}

	if status != http.StatusCreated {
		parsed := gjson.ParseBytes(body)
		return "", common.StatusError(Name, status, parsed.Get("code").String(), parsed.Get("message").String(), body)
	}
	return gjson.GetBytes(body, "sid").String(), nil
}
