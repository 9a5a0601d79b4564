// Package publisher encodes gateway records as JSON and writes them to
// Kafka topics through a shared sync producer.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/sms-gateway/internal/jobs"
	"github.com/ajayykmr/sms-gateway/internal/models"
)

// ErrProducerNotInitialised is returned by publishers built without a producer.
var ErrProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// Header names set on every record.
const (
	HeaderContentType = "content-type"
	HeaderRecordType  = "x-record-type"
	HeaderJobAttempt  = "x-job-attempt"
)

// SyncProducer is the subset of producer behaviour the publishers need.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

type base struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

func newBase(prod SyncProducer, topic string, logger zerolog.Logger) base {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return base{producer: prod, topic: topic, logger: logger}
}

func (b base) publish(kind, key string, v any, extra map[string][]byte) error {
	if b.producer == nil {
		return ErrProducerNotInitialised
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal %s: %w", kind, err)
	}
	headers := map[string][]byte{
		HeaderContentType: []byte("application/json"),
		HeaderRecordType:  []byte(kind),
	}
	for k, v := range extra {
		headers[k] = v
	}
	var keyBytes []byte
	if key != "" {
		keyBytes = []byte(key)
	}
	if err := b.producer.PublishSync(b.topic, keyBytes, headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish %s: %w", kind, err)
	}
	return nil
}

// StatusPublisher emits status events.
type StatusPublisher struct{ base }

// NewStatusPublisher returns a StatusPublisher writing to topic.
func NewStatusPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *StatusPublisher {
	return &StatusPublisher{newBase(prod, topic, logger)}
}

// PublishStatus writes event keyed by its job id (or event id).
func (p *StatusPublisher) PublishStatus(_ context.Context, event models.StatusEvent) error {
	return p.publish("status_event", event.Key(), event, nil)
}

// DLQPublisher writes dead-letter records.
type DLQPublisher struct{ base }

// NewDLQPublisher returns a DLQPublisher writing to topic.
func NewDLQPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *DLQPublisher {
	return &DLQPublisher{newBase(prod, topic, logger)}
}

// PublishDLQ writes record keyed by its job id.
func (p *DLQPublisher) PublishDLQ(_ context.Context, record models.DLQRecord) error {
	if err := p.publish("dlq_record", record.JobID, record, nil); err != nil {
		return err
	}
	p.logger.Warn().
		Str("job_id", record.JobID).
		Str("failure_type", record.FailureType).
		Int("attempts", record.Attempts).
		Msg("job moved to dlq")
	return nil
}

// WebhookPublisher writes normalized webhook events.
type WebhookPublisher struct{ base }

// NewWebhookPublisher returns a WebhookPublisher writing to topic.
func NewWebhookPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *WebhookPublisher {
	return &WebhookPublisher{newBase(prod, topic, logger)}
}

// PublishWebhook writes event keyed by provider message id when present, so
// every update for one message lands on one partition.
func (p *WebhookPublisher) PublishWebhook(_ context.Context, event models.WebhookEvent) error {
	key := event.MessageID
	if key == "" {
		key = event.EventID
	}
	return p.publish("webhook_event", key, event, nil)
}

// JobSubmitter queues deferred jobs on the job topic. It implements
// jobs.Submitter.
type JobSubmitter struct{ base }

// NewJobSubmitter returns a JobSubmitter writing to topic.
func NewJobSubmitter(prod SyncProducer, topic string, logger zerolog.Logger) *JobSubmitter {
	return &JobSubmitter{newBase(prod, topic, logger)}
}

// Submit writes job keyed by its id.
func (s *JobSubmitter) Submit(_ context.Context, job *jobs.Job) error {
	if job == nil {
		return errors.New("kafka publisher: job is nil")
	}
	return s.publish("sms_job", job.ID, job, map[string][]byte{
		HeaderJobAttempt: []byte(strconv.Itoa(job.Attempt)),
	})
}
