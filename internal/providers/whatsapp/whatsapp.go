// Package whatsapp sends messages through the WhatsApp Business Cloud API
// and parses its delivery-status and inbound-message webhooks.
package whatsapp

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
	"github.com/ajayykmr/sms-gateway/internal/util"
)

// Name is the registry name of this adapter.
const Name = "whatsapp"

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
	defaultLanguage   = "en"

	signatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

// Option customises the behaviour of the WhatsApp adapter.
type Option func(*Adapter)

// WithHTTPClient overrides the HTTP client used to talk to the Graph API.
func WithHTTPClient(client common.HTTPClient) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithBaseURL sets the Graph API root. Useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(baseURL) != "" {
			a.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// Adapter implements common.Adapter, common.WebhookParser,
// common.SignedWebhook and common.SubscriptionVerifier.
type Adapter struct {
	logger             zerolog.Logger
	phoneNumberID      string
	accessToken        string
	apiVersion         string
	businessAccountID  string
	templateLanguage   string
	previewURL         bool
	defaultCountryCode string
	webhookSecret      string
	verifyToken        string
	baseURL            string
	httpClient         common.HTTPClient
}

// New constructs a WhatsApp adapter. Required keys: phone_number_id,
// access_token.
func New(cfg common.ProviderConfig, logger zerolog.Logger, opts ...Option) (*Adapter, error) {
	if err := cfg.Require(Name, "phone_number_id", "access_token"); err != nil {
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
		logger:             logger.With().Str("provider", Name).Logger(),
		baseURL:            strings.TrimRight(baseURL, "/"),
		phoneNumberID:      cfg.Get("phone_number_id"),
		accessToken:        cfg.Get("access_token"),
		apiVersion:         cfg.GetDefault("api_version", defaultAPIVersion),
		businessAccountID:  cfg.Get("business_account_id"),
		templateLanguage:   cfg.GetDefault("template_language", defaultLanguage),
		previewURL:         cfg.Bool("preview_url", false),
		defaultCountryCode: cfg.Get("default_country_code"),
		webhookSecret:      cfg.Get("webhook_secret"),
		verifyToken:        cfg.Get("webhook_verify_token"),
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

// BusinessAccountID returns the configured WABA id, if any.
func (a *Adapter) BusinessAccountID() string { return a.businessAccountID }

func (a *Adapter) endpoint() string {
	return fmt.Sprintf("%s/%s/%s/messages", a.baseURL, a.apiVersion, url.PathEscape(a.phoneNumberID))
}

// Send posts one message per recipient. A template id selects the template
// payload; its body parameters follow the message's variable order.
func (a *Adapter) Send(ctx context.Context, msg *message.Message) (*common.SendResult, error) {
	if !msg.HasText() && !msg.HasTemplate() {
		return nil, errs.Validation("message text or template is required")
	}

	result := common.NewSendResult(Name)
	for _, to := range msg.Recipients() {
		id, err := a.sendSingle(ctx, util.DialString(to, a.defaultCountryCode), msg)
		if err != nil {
			a.logger.Warn().
				Str("recipient", to).
				Int("delivered", len(result.Deliveries)).
				Err(err).
				Msg("whatsapp send failed")
			return result, err
		}
		a.logger.Debug().Str("recipient", to).Str("wamid", id).Msg("whatsapp send succeeded")
		result.Add(to, id)
	}
	return result, nil
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type outboundPayload struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

func (a *Adapter) buildPayload(to string, msg *message.Message) outboundPayload {
	p := outboundPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}
	if !msg.HasTemplate() {
		p.Type = "text"
		p.Text = &textBody{PreviewURL: a.previewURL, Body: msg.Text()}
		return p
	}

	p.Type = "template"
	p.Template = &templateBody{
		Name:     msg.TemplateID(),
		Language: templateLanguage{Code: a.templateLanguage},
	}
	if vars := msg.OrderedVariables(); len(vars) > 0 {
		params := make([]templateParameter, 0, len(vars))
		for _, v := range vars {
			params = append(params, templateParameter{Type: "text", Text: message.FormatValue(v.Value)})
		}
		p.Template.Components = []templateComponent{{Type: "body", Parameters: params}}
	}
	return p
}

func (a *Adapter) sendSingle(ctx context.Context, to string, msg *message.Message) (string, error) {
	data, err := json.Marshal(a.buildPayload(to, msg))
	if err != nil {
		return "", fmt.Errorf("whatsapp: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("whatsapp: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	req.Header.Set("Content-Type", "application/json")

	status, body, err := common.Do(a.httpClient, Name, req, common.DefaultBodyLimit)
	if err != nil {
		return "", err
	}

	parsed := gjson.ParseBytes(body)
	id := parsed.Get("messages.0.id").String()
	if status == http.StatusOK && id != "" {
		return id, nil
	}

	msgText := parsed.Get("error.message").String()
	if msgText == "" {
		msgText = parsed.Get("error.error_user_msg").String()
	}
	if status == http.StatusOK && msgText == "" {
		msgText = "response missing message id"
	}
	return "", common.StatusError(Name, status, parsed.Get("error.code").String(), msgText, body)
}

// ParseWebhook normalizes a Cloud API notification. An incoming message
// takes precedence over a status update when both are present.
func (a *Adapter) ParseWebhook(payload []byte) (common.WebhookData, error) {
	var data common.WebhookData
	if !gjson.ValidBytes(payload) {
		return data, nil
	}

	value := gjson.GetBytes(payload, "entry.0.changes.0.value")
	if st := value.Get("statuses.0"); st.Exists() {
		data.MessageID = st.Get("id").String()
		data.Status = st.Get("status").String()
		data.Recipient = st.Get("recipient_id").String()
	}
	if in := value.Get("messages.0"); in.Exists() {
		data.MessageID = in.Get("id").String()
		data.Status = "received"
		data.Recipient = in.Get("from").String()
	}
	return data, nil
}

// WebhookSecret returns the app secret used to sign callbacks.
func (a *Adapter) WebhookSecret() string { return a.webhookSecret }

// SignatureHeader names the signature header and its value prefix.
func (a *Adapter) SignatureHeader() (string, string) { return signatureHeader, signaturePrefix }

// VerifySubscription answers the hub.challenge handshake Meta performs when
// the callback URL is registered.
func (a *Adapter) VerifySubscription(query url.Values) (string, bool) {
	if query.Get("hub.mode") != "subscribe" {
		return "", false
	}
	if a.verifyToken == "" || query.Get("hub.verify_token") != a.verifyToken {
		return "", false
	}
	return query.Get("hub.challenge"), true
}
