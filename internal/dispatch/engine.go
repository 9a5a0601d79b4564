// Package dispatch turns a message built through the Engine into provider
// calls. An Engine holds builder state and is not safe for concurrent use;
// create one per goroutine.
package dispatch

import (
	"context"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/jobs"
	"github.com/ajayykmr/sms-gateway/internal/message"
	"github.com/ajayykmr/sms-gateway/internal/observability/tracing"
	"github.com/ajayykmr/sms-gateway/internal/registry"
	"github.com/ajayykmr/sms-gateway/internal/resilience/circuitbreaker"
)

// Option customises an Engine.
type Option func(*Engine)

// WithDefaultProvider sets the provider used when UseProvider was not called.
func WithDefaultProvider(name string) Option {
	return func(e *Engine) { e.defaultProvider = name }
}

// WithQueueByDefault makes Send queue the message instead of sending it.
func WithQueueByDefault(queue bool) Option {
	return func(e *Engine) { e.queueByDefault = queue }
}

// WithSubmitter sets the queue SendLater hands jobs to.
func WithSubmitter(s jobs.Submitter) Option {
	return func(e *Engine) { e.submitter = s }
}

// WithListener registers listeners. They are notified in registration order.
func WithListener(listeners ...Listener) Option {
	return func(e *Engine) {
		for _, l := range listeners {
			if l != nil {
				e.listeners = append(e.listeners, l)
			}
		}
	}
}

// WithBreakers guards every adapter with the breaker of its provider.
func WithBreakers(set *circuitbreaker.Set) Option {
	return func(e *Engine) { e.breakers = set }
}

// WithDeps sets the dependencies passed to adapter factories.
func WithDeps(deps common.Deps) Option {
	return func(e *Engine) { e.deps = deps }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRandSource replaces the function used to pick from the random pool.
func WithRandSource(intn func(n int) int) Option {
	return func(e *Engine) { e.intn = intn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine builds one message at a time and dispatches it.
type Engine struct {
	registry        *registry.Registry
	deps            common.Deps
	logger          zerolog.Logger
	defaultProvider string
	queueByDefault  bool
	submitter       jobs.Submitter
	listeners       []Listener
	breakers        *circuitbreaker.Set
	intn            func(n int) int
	now             func() time.Time

	adapters map[string]common.Adapter

	msg      *message.Message
	provider string
}

// New returns an Engine resolving providers through reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		now:      time.Now,
		adapters: make(map[string]common.Adapter),
		msg:      message.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if reflect.ValueOf(e.logger).IsZero() {
		e.logger = zerolog.Nop()
	}
	e.logger = e.logger.With().Str("component", "dispatch").Logger()
	if reflect.ValueOf(e.deps.Logger).IsZero() {
		e.deps.Logger = e.logger
	}
	return e
}

// QueueByDefault reports whether Send queues.
func (e *Engine) QueueByDefault() bool { return e.queueByDefault }

// UseProvider selects the provider for the next send. "random" picks from
// the registry's pool when the message is sent.
func (e *Engine) UseProvider(name string) *Engine {
	e.provider = name
	return e
}

// To adds recipients to the pending message.
func (e *Engine) To(numbers ...string) error {
	return e.msg.AddRecipients(numbers...)
}

// Text sets the pending message body.
func (e *Engine) Text(text string) error {
	return e.msg.SetText(text)
}

// Template sets the pending message template.
func (e *Engine) Template(id string, vars map[string]any) error {
	return e.msg.SetTemplate(id, vars)
}

// Message returns a copy of the pending message.
func (e *Engine) Message() *message.Message {
	return e.msg.Clone()
}

func (e *Engine) reset() {
	e.msg = message.New()
	e.provider = ""
}

func (e *Engine) requestedProvider() string {
	if e.provider != "" {
		return e.provider
	}
	return e.defaultProvider
}

// SendNow delivers the pending message synchronously. Builder state is
// cleared whatever the outcome. On failure the result lists the recipients
// delivered before the failing one.
func (e *Engine) SendNow(ctx context.Context) (*common.SendResult, error) {
	defer e.reset()
	return e.dispatch(ctx, e.msg, e.requestedProvider())
}

// SendMessage delivers msg through provider without touching builder state.
func (e *Engine) SendMessage(ctx context.Context, msg *message.Message, provider string) (*common.SendResult, error) {
	if msg == nil {
		return nil, errs.Validation("message is required")
	}
	if provider == "" {
		provider = e.defaultProvider
	}
	return e.dispatch(ctx, msg, provider)
}

// SendLater validates the pending message and hands a snapshot of it to the
// submitter. No provider is contacted.
func (e *Engine) SendLater(ctx context.Context) (*jobs.Job, error) {
	defer e.reset()
	return e.submit(ctx, nil)
}

// SendLaterAt is SendLater for a job that must not run before at.
func (e *Engine) SendLaterAt(ctx context.Context, at time.Time) (*jobs.Job, error) {
	defer e.reset()
	return e.submit(ctx, &at)
}

// Receipt is the outcome of Send: Result when sent, Job when queued.
type Receipt struct {
	Result *common.SendResult
	Job    *jobs.Job
}

// Queued reports whether the message was queued.
func (r Receipt) Queued() bool { return r.Job != nil }

// Send queues when the engine queues by default and sends otherwise.
func (e *Engine) Send(ctx context.Context) (Receipt, error) {
	if e.queueByDefault {
		job, err := e.SendLater(ctx)
		return Receipt{Job: job}, err
	}
	res, err := e.SendNow(ctx)
	return Receipt{Result: res}, err
}

func (e *Engine) submit(ctx context.Context, at *time.Time) (*jobs.Job, error) {
	if err := e.msg.Validate(); err != nil {
		return nil, err
	}
	if e.submitter == nil {
		return nil, errs.Configuration("", "no job submitter configured for deferred sends")
	}

	job := jobs.New(e.msg.Clone(), e.requestedProvider(), e.now())
	if at != nil {
		job = job.At(*at)
	}
	if err := e.submitter.Submit(ctx, job); err != nil {
		return nil, err
	}
	e.logger.Debug().
		Str("job_id", job.ID).
		Str("provider", job.Provider).
		Int("recipients", len(job.Message.Recipients)).
		Msg("sms queued")
	return job, nil
}

func (e *Engine) dispatch(ctx context.Context, msg *message.Message, requested string) (*common.SendResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	// A resolution failure still reports one Sending/Sent pair, under the
	// requested name.
	provider, pickErr := e.registry.Pick(requested, e.intn)
	if pickErr != nil {
		provider = requested
	}

	ctx, span := tracing.Tracer().Start(ctx, "sms.dispatch",
		trace.WithAttributes(
			attribute.String("sms.provider", provider),
			attribute.String("sms.requested_provider", requested),
			attribute.Int("sms.recipients", len(msg.Recipients())),
			attribute.Bool("sms.template", msg.HasTemplate()),
		),
	)
	defer span.End()

	snapshot := msg.Clone()
	start := e.now()
	e.emitSending(ctx, SendingEvent{
		Message:           snapshot,
		Provider:          provider,
		RequestedProvider: requested,
		TraceID:           tracing.TraceID(ctx),
	})

	var (
		result  *common.SendResult
		adapter common.Adapter
	)
	err := pickErr
	if err == nil {
		adapter, err = e.adapter(provider)
	}
	if err == nil {
		result, err = adapter.Send(ctx, msg)
	}
	if result == nil {
		result = common.NewSendResult(provider)
	}

	sent := SentEvent{
		Message:           snapshot,
		Provider:          provider,
		RequestedProvider: requested,
		Success:           err == nil,
		Err:               err,
		Result:            result,
		Duration:          e.now().Sub(start),
		TraceID:           tracing.TraceID(ctx),
	}
	span.SetAttributes(attribute.Int("sms.delivered", len(result.Deliveries)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errs.Kind(err))
	}
	e.emitSent(ctx, sent)

	return result, err
}

func (e *Engine) adapter(provider string) (common.Adapter, error) {
	if a, ok := e.adapters[provider]; ok {
		return a, nil
	}
	a, err := e.registry.Build(provider, e.deps)
	if err != nil {
		return nil, err
	}
	if e.breakers != nil {
		a = e.breakers.Wrap(a)
	}
	e.adapters[provider] = a
	return a, nil
}

func (e *Engine) emitSending(ctx context.Context, ev SendingEvent) {
	for _, l := range e.listeners {
		l.OnSending(ctx, ev)
	}
}

func (e *Engine) emitSent(ctx context.Context, ev SentEvent) {
	for _, l := range e.listeners {
		l.OnSent(ctx, ev)
	}
}
