package webhook

import (
	"context"
	"reflect"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajayykmr/sms-gateway/internal/models"
)

// LogListener logs accepted events.
type LogListener struct {
	logger zerolog.Logger
}

// NewLogListener returns a listener logging through logger.
func NewLogListener(logger zerolog.Logger) *LogListener {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &LogListener{logger: logger}
}

func (l *LogListener) OnWebhook(_ context.Context, ev Event) {
	l.logger.Info().
		Str("provider", ev.Provider).
		Str("message_id", ev.MessageID).
		Str("status", ev.Status).
		Str("recipient", ev.Recipient).
		Str("request_id", ev.RequestID).
		Int("payload_bytes", len(ev.Payload)).
		Msg("webhook received")
}

// Publisher ships webhook events to an external bus.
type Publisher interface {
	PublishWebhook(ctx context.Context, event models.WebhookEvent) error
}

// PublishListener forwards events to a Publisher. Failures are logged; the
// provider still receives 200 since the event was accepted.
type PublishListener struct {
	publisher Publisher
	logger    zerolog.Logger
}

// NewPublishListener returns a listener publishing through publisher.
func NewPublishListener(publisher Publisher, logger zerolog.Logger) *PublishListener {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &PublishListener{publisher: publisher, logger: logger}
}

func (l *PublishListener) OnWebhook(ctx context.Context, ev Event) {
	err := l.publisher.PublishWebhook(ctx, models.WebhookEvent{
		EventID:    uuid.NewString(),
		Provider:   ev.Provider,
		MessageID:  ev.MessageID,
		Status:     ev.Status,
		Recipient:  ev.Recipient,
		Payload:    string(ev.Payload),
		RequestID:  ev.RequestID,
		ReceivedAt: ev.ReceivedAt,
	})
	if err != nil {
		l.logger.Error().
			Str("provider", ev.Provider).
			Str("message_id", ev.MessageID).
			Err(err).
			Msg("webhook: failed to publish event")
	}
}
