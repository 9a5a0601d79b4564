// Package webhook authenticates, normalizes and fans out inbound provider
// callbacks.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/observability/metrics"
)

var (
	// ErrNotSupported is returned for adapters that cannot parse webhooks.
	ErrNotSupported = errors.New("webhook: not supported for this provider")
	// ErrNoHandshake is returned for adapters without a subscription handshake.
	ErrNoHandshake = errors.New("webhook: provider has no subscription handshake")
	// ErrHandshakeRejected is returned when the handshake parameters do not match.
	ErrHandshakeRejected = errors.New("webhook: subscription handshake rejected")
)

// Event is one normalized callback. Optional fields are "" when the payload
// did not carry them.
type Event struct {
	Provider   string    `json:"provider"`
	Payload    []byte    `json:"-"`
	MessageID  string    `json:"message_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Listener receives accepted webhook events.
type Listener interface {
	OnWebhook(ctx context.Context, ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event)

func (f ListenerFunc) OnWebhook(ctx context.Context, ev Event) { f(ctx, ev) }

// Pipeline handles callbacks for a single provider.
type Pipeline struct {
	provider  string
	parser    common.WebhookParser
	signed    common.SignedWebhook
	verifier  common.SubscriptionVerifier
	listeners []Listener
	logger    zerolog.Logger
	now       func() time.Time
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

// WithListeners registers listeners, notified in order.
func WithListeners(listeners ...Listener) PipelineOption {
	return func(p *Pipeline) {
		for _, l := range listeners {
			if l != nil {
				p.listeners = append(p.listeners, l)
			}
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline returns a pipeline for adapter registered as provider. It fails
// with ErrNotSupported when adapter does not implement common.WebhookParser.
func NewPipeline(provider string, adapter common.Adapter, opts ...PipelineOption) (*Pipeline, error) {
	parser, ok := adapter.(common.WebhookParser)
	if !ok {
		return nil, ErrNotSupported
	}
	p := &Pipeline{provider: provider, parser: parser, now: time.Now}
	p.signed, _ = adapter.(common.SignedWebhook)
	p.verifier, _ = adapter.(common.SubscriptionVerifier)
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if reflect.ValueOf(p.logger).IsZero() {
		p.logger = zerolog.Nop()
	}
	p.logger = p.logger.With().Str("component", "webhook").Str("provider", provider).Logger()
	return p, nil
}

// Provider returns the provider name the pipeline serves.
func (p *Pipeline) Provider() string { return p.provider }

// Handshake answers a subscription verification request with the challenge
// to echo back.
func (p *Pipeline) Handshake(query url.Values) (string, error) {
	if p.verifier == nil {
		return "", ErrNoHandshake
	}
	challenge, ok := p.verifier.VerifySubscription(query)
	if !ok {
		metrics.RecordWebhookRejection(p.provider, "handshake")
		p.logger.Warn().Str("mode", query.Get("hub.mode")).Msg("webhook handshake rejected")
		return "", ErrHandshakeRejected
	}
	p.logger.Info().Msg("webhook handshake accepted")
	return challenge, nil
}

// Authenticate checks the HMAC-SHA256 signature of body. Providers without a
// configured secret are not checked.
func (p *Pipeline) Authenticate(header http.Header, body []byte) error {
	if p.signed == nil || p.signed.WebhookSecret() == "" {
		return nil
	}
	name, prefix := p.signed.SignatureHeader()
	sig := header.Get(name)
	if sig == "" {
		return &errs.WebhookAuthError{Provider: p.provider, Reason: "missing signature"}
	}
	if !VerifySignature(p.signed.WebhookSecret(), prefix, sig, body) {
		return &errs.WebhookAuthError{Provider: p.provider, Reason: "signature mismatch"}
	}
	return nil
}

// VerifySignature reports whether signature equals prefix followed by the
// hex HMAC-SHA256 of body under secret. The comparison is constant time.
func VerifySignature(secret, prefix, signature string, body []byte) bool {
	if !strings.HasPrefix(signature, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the signature VerifySignature accepts for body.
func Sign(secret, prefix string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

// Process authenticates and normalizes one callback and emits exactly one
// event to the listeners.
func (p *Pipeline) Process(ctx context.Context, header http.Header, body []byte, requestID string) (Event, error) {
	if err := p.Authenticate(header, body); err != nil {
		metrics.RecordWebhookRejection(p.provider, "signature")
		p.logger.Warn().Str("request_id", requestID).Err(err).Msg("webhook rejected")
		return Event{}, err
	}

	data, err := p.parser.ParseWebhook(body)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		Provider:   p.provider,
		Payload:    append([]byte(nil), body...),
		MessageID:  data.MessageID,
		Status:     data.Status,
		Recipient:  data.Recipient,
		ReceivedAt: p.now().UTC(),
		RequestID:  requestID,
	}
	metrics.RecordWebhookEvent(p.provider, ev.Status)
	for _, l := range p.listeners {
		l.OnWebhook(ctx, ev)
	}
	return ev, nil
}
