package dispatch

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
	"github.com/ajayykmr/sms-gateway/internal/models"
	"github.com/ajayykmr/sms-gateway/internal/observability/metrics"
)

// SendingEvent is emitted once per dispatch, before the first provider call.
type SendingEvent struct {
	Message           *message.Message
	Provider          string
	RequestedProvider string
	TraceID           string
}

// SentEvent is emitted once per dispatch, after the last provider call.
type SentEvent struct {
	Message           *message.Message
	Provider          string
	RequestedProvider string
	Success           bool
	Err               error
	Result            *common.SendResult
	Duration          time.Duration
	TraceID           string
}

// ErrorText returns the failure text, or "" on success.
func (e SentEvent) ErrorText() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Listener observes dispatch calls. Listeners run synchronously on the
// dispatching goroutine.
type Listener interface {
	OnSending(ctx context.Context, ev SendingEvent)
	OnSent(ctx context.Context, ev SentEvent)
}

// ListenerFuncs adapts a pair of functions to Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	Sending func(ctx context.Context, ev SendingEvent)
	Sent    func(ctx context.Context, ev SentEvent)
}

func (f ListenerFuncs) OnSending(ctx context.Context, ev SendingEvent) {
	if f.Sending != nil {
		f.Sending(ctx, ev)
	}
}

func (f ListenerFuncs) OnSent(ctx context.Context, ev SentEvent) {
	if f.Sent != nil {
		f.Sent(ctx, ev)
	}
}

type jobIDKey struct{}

// WithJobID tags ctx with the deferred job being executed so listeners can
// correlate events with it.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobIDFromContext returns the job id set by WithJobID.
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}

// LogListener writes dispatch events to a zerolog logger.
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

func (l *LogListener) OnSending(ctx context.Context, ev SendingEvent) {
	l.logger.Info().
		Str("provider", ev.Provider).
		Str("requested_provider", ev.RequestedProvider).
		Strs("recipients", ev.Message.Recipients()).
		Str("template_id", ev.Message.TemplateID()).
		Str("job_id", JobIDFromContext(ctx)).
		Str("trace_id", ev.TraceID).
		Msg("sms sending")
}

func (l *LogListener) OnSent(ctx context.Context, ev SentEvent) {
	delivered := 0
	if ev.Result != nil {
		delivered = len(ev.Result.Deliveries)
	}
	if ev.Success {
		l.logger.Info().
			Str("provider", ev.Provider).
			Int("delivered", delivered).
			Dur("duration", ev.Duration).
			Str("job_id", JobIDFromContext(ctx)).
			Str("trace_id", ev.TraceID).
			Msg("sms sent")
		return
	}
	l.logger.Warn().
		Str("provider", ev.Provider).
		Int("delivered", delivered).
		Int("recipients", len(ev.Message.Recipients())).
		Str("error_kind", errs.Kind(ev.Err)).
		Dur("duration", ev.Duration).
		Str("job_id", JobIDFromContext(ctx)).
		Str("trace_id", ev.TraceID).
		Err(ev.Err).
		Msg("sms sending failed")
}

// MetricsListener records dispatch outcomes in Prometheus.
type MetricsListener struct{}

func (MetricsListener) OnSending(context.Context, SendingEvent) {}

func (MetricsListener) OnSent(_ context.Context, ev SentEvent) {
	outcome := "success"
	if !ev.Success {
		outcome = errs.Kind(ev.Err)
	}
	delivered := 0
	if ev.Result != nil {
		delivered = len(ev.Result.Deliveries)
	}
	metrics.RecordDispatch(ev.Provider, outcome, delivered, ev.Duration)
}

// StatusPublisher ships status events to an external bus.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// EventListener converts dispatch events into status events and publishes
// them. Publish failures are logged and never fail the dispatch.
type EventListener struct {
	publisher StatusPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEventListener returns a listener publishing through publisher.
func NewEventListener(publisher StatusPublisher, logger zerolog.Logger) *EventListener {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &EventListener{publisher: publisher, logger: logger, now: time.Now}
}

func (l *EventListener) OnSending(ctx context.Context, ev SendingEvent) {
	l.publish(ctx, models.StatusEvent{
		EventType:         models.StatusEventSending,
		Provider:          ev.Provider,
		RequestedProvider: ev.RequestedProvider,
		Recipients:        ev.Message.Recipients(),
		TemplateID:        ev.Message.TemplateID(),
		TraceID:           ev.TraceID,
	})
}

func (l *EventListener) OnSent(ctx context.Context, ev SentEvent) {
	event := models.StatusEvent{
		EventType:         models.StatusEventSent,
		Provider:          ev.Provider,
		RequestedProvider: ev.RequestedProvider,
		Recipients:        ev.Message.Recipients(),
		TemplateID:        ev.Message.TemplateID(),
		TraceID:           ev.TraceID,
	}
	if ev.Result != nil {
		for _, d := range ev.Result.Deliveries {
			event.Deliveries = append(event.Deliveries, models.Delivery{
				Recipient:         d.Recipient,
				ProviderMessageID: d.ProviderMessageID,
			})
		}
	}
	if !ev.Success {
		event.EventType = models.StatusEventFailed
		event.Error = ev.ErrorText()
		event.ErrorKind = errs.Kind(ev.Err)
	}
	l.publish(ctx, event)
}

func (l *EventListener) publish(ctx context.Context, event models.StatusEvent) {
	if l.publisher == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.JobID = JobIDFromContext(ctx)
	event.Timestamp = l.now().UTC()
	if err := l.publisher.PublishStatus(ctx, event); err != nil {
		l.logger.Error().
			Str("event", event.EventType).
			Str("provider", event.Provider).
			Err(err).
			Msg("dispatch: failed to publish status event")
	}
}
