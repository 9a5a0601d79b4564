package models

import "time"

// SendRequest is the body of POST /v1/messages.
type SendRequest struct {
	Provider   string         `json:"provider,omitempty"`
	To         []string       `json:"to"`
	Text       string         `json:"text,omitempty"`
	TemplateID string         `json:"template_id,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
	// SendAt is an RFC3339 timestamp; when set the message is queued for
	// that time.
	SendAt string `json:"send_at,omitempty"`
	// Queue overrides the configured queue-by-default behaviour.
	Queue *bool `json:"queue,omitempty"`
}

// Delivery is one recipient accepted by a provider.
type Delivery struct {
	Recipient         string `json:"recipient"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// Send response statuses.
const (
	SendStatusSent   = "sent"
	SendStatusQueued = "queued"
	SendStatusFailed = "failed"
)

// SendResponse is the body returned by POST /v1/messages.
type SendResponse struct {
	Status     string     `json:"status"`
	Provider   string     `json:"provider,omitempty"`
	JobID      string     `json:"job_id,omitempty"`
	SendAt     *time.Time `json:"send_at,omitempty"`
	Deliveries []Delivery `json:"deliveries,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  string     `json:"error_kind,omitempty"`
}
