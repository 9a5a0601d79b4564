// Package fake is an in-memory provider for tests and local development.
// Sent messages are recorded in a Store instead of leaving the process, and
// per-recipient failure scenarios can be injected.
package fake

import (
	"context"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
)

// Name is the registry name of this adapter.
const Name = "fake"

// Scenario enumerates the behaviours the fake provider can simulate.
type Scenario string

const (
	ScenarioSuccess   Scenario = "success"
	ScenarioTransient Scenario = "transient"
	ScenarioPermanent Scenario = "permanent"
	ScenarioTimeout   Scenario = "timeout"
)

// Record is one recorded outbound message.
type Record struct {
	To         []string
	Text       string
	TemplateID string
	Variables  map[string]any
}

// DefaultRetained is the history kept by stores owned by long-running
// processes.
const DefaultRetained = 1000

// Store keeps recorded messages. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	limit     int
	records   []Record
	attempts  []string
	scenarios map[string]Scenario
}

// NewStore returns an empty store that keeps everything until Reset.
func NewStore() *Store {
	return &Store{scenarios: make(map[string]Scenario)}
}

// NewBoundedStore returns a store that keeps only the latest limit messages
// and attempts. A limit below one behaves like NewStore.
func NewBoundedStore(limit int) *Store {
	s := NewStore()
	if limit > 0 {
		s.limit = limit
	}
	return s
}

// Messages returns the recorded messages in send order.
func (s *Store) Messages() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Attempts returns every recipient a send was attempted for, in order.
func (s *Store) Attempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

// Fail makes sends to recipient behave according to scenario.
func (s *Store) Fail(recipient string, scenario Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios[recipient] = scenario
}

// Reset clears recorded messages, attempts and injected failures.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.attempts = nil
	s.scenarios = make(map[string]Scenario)
}

func (s *Store) attempt(recipient string) (Scenario, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, recipient)
	if s.limit > 0 && len(s.attempts) > s.limit {
		s.attempts = s.attempts[len(s.attempts)-s.limit:]
	}
	sc, ok := s.scenarios[recipient]
	return sc, ok
}

func (s *Store) record(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	if s.limit > 0 && len(s.records) > s.limit {
		s.records = s.records[len(s.records)-s.limit:]
	}
}

// Adapter implements common.Adapter and common.WebhookParser.
type Adapter struct {
	logger          zerolog.Logger
	store           *Store
	defaultScenario Scenario
	latency         time.Duration
	webhookSecret   string
}

// New constructs a fake adapter backed by store. Optional keys: scenario,
// latency_ms, webhook_secret.
func New(cfg common.ProviderConfig, store *Store, logger zerolog.Logger) (*Adapter, error) {
	if store == nil {
		return nil, errs.Configuration(Name, "store is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	a := &Adapter{
		logger:          logger.With().Str("provider", Name).Logger(),
		store:           store,
		defaultScenario: Scenario(strings.ToLower(cfg.GetDefault("scenario", string(ScenarioSuccess)))),
		webhookSecret:   cfg.Get("webhook_secret"),
	}
	if v := cfg.Get("latency_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return nil, errs.Configuration(Name, "latency_ms must be a non-negative integer")
		}
		a.latency = time.Duration(ms) * time.Millisecond
	}
	return a, nil
}

// Factory returns a registry factory bound to store.
func Factory(store *Store) func(common.ProviderConfig, common.Deps) (common.Adapter, error) {
	return func(cfg common.ProviderConfig, deps common.Deps) (common.Adapter, error) {
		return New(cfg, store, deps.Logger)
	}
}

// Name returns the registry name.
func (a *Adapter) Name() string { return Name }

// Send records the message after every recipient passed its scenario. A
// failing recipient stops the loop; nothing is recorded for that call.
func (a *Adapter) Send(ctx context.Context, msg *message.Message) (*common.SendResult, error) {
	if !msg.HasText() && !msg.HasTemplate() {
		return nil, errs.Validation("message text or template is required")
	}

	result := common.NewSendResult(Name)
	for _, to := range msg.Recipients() {
		if err := a.simulate(ctx, to); err != nil {
			a.logger.Debug().Str("recipient", to).Err(err).Msg("fake send failed")
			return result, err
		}
		result.Add(to, "fake-"+uuid.NewString())
	}

	a.store.record(Record{
		To:         msg.Recipients(),
		Text:       msg.Text(),
		TemplateID: msg.TemplateID(),
		Variables:  msg.Variables(),
	})
	return result, nil
}

func (a *Adapter) simulate(ctx context.Context, to string) error {
	scenario, ok := a.store.attempt(to)
	if !ok {
		scenario = a.defaultScenario
	}

	if a.latency > 0 {
		timer := time.NewTimer(a.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errs.Network(Name, ctx.Err())
		case <-timer.C:
		}
	}

	switch scenario {
	case ScenarioSuccess:
		return nil
	case ScenarioTransient:
		return &errs.ProviderError{Provider: Name, StatusCode: 429, Message: "rate limited", Temporary: true}
	case ScenarioPermanent:
		return &errs.ProviderError{Provider: Name, StatusCode: 400, Message: "invalid recipient"}
	case ScenarioTimeout:
		return errs.Network(Name, context.DeadlineExceeded)
	default:
		return errs.Configuration(Name, "unknown scenario %q", string(scenario))
	}
}

// ParseWebhook reads a flat {"message_id","status","recipient"} document.
func (a *Adapter) ParseWebhook(payload []byte) (common.WebhookData, error) {
	if !gjson.ValidBytes(payload) {
		return common.WebhookData{}, nil
	}
	parsed := gjson.ParseBytes(payload)
	return common.WebhookData{
		MessageID: parsed.Get("message_id").String(),
		Status:    parsed.Get("status").String(),
		Recipient: parsed.Get("recipient").String(),
	}, nil
}

// WebhookSecret returns the optional signing secret.
func (a *Adapter) WebhookSecret() string { return a.webhookSecret }

// SignatureHeader names the signature header and its value prefix.
func (a *Adapter) SignatureHeader() (string, string) { return "X-Signature", "" }
