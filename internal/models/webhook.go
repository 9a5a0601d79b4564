package models

import "time"

// WebhookEvent is the wire form of a normalized inbound provider callback.
type WebhookEvent struct {
	EventID    string    `json:"event_id"`
	Provider   string    `json:"provider"`
	MessageID  string    `json:"message_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Payload    string    `json:"payload"`
	RequestID  string    `json:"request_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
