package models

import "time"

// Status event constants.
const (
	StatusEventQueued  = "queued"
	StatusEventSending = "sending"
	StatusEventSent    = "sent"
	StatusEventFailed  = "failed"
	StatusEventAttempt = "attempt"
	StatusEventRetry   = "retry"
	StatusEventDLQ     = "dlq"
)

// StatusEvent represents lifecycle events emitted for outbound messages,
// both by the dispatch engine and by the deferred job worker.
type StatusEvent struct {
	EventID           string     `json:"event_id"`
	EventType         string     `json:"event_type"`
	JobID             string     `json:"job_id,omitempty"`
	Provider          string     `json:"provider,omitempty"`
	RequestedProvider string     `json:"requested_provider,omitempty"`
	Recipients        []string   `json:"recipients,omitempty"`
	TemplateID        string     `json:"template_id,omitempty"`
	Attempt           int        `json:"attempt,omitempty"`
	Deliveries        []Delivery `json:"deliveries,omitempty"`
	Error             string     `json:"error,omitempty"`
	ErrorKind         string     `json:"error_kind,omitempty"`
	TraceID           string     `json:"trace_id,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

// Key returns the Kafka partition key for the event.
func (e StatusEvent) Key() string {
	if e.JobID != "" {
		return e.JobID
	}
	return e.EventID
}
