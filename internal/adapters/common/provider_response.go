package common

import "unicode/utf8"

// DefaultRawBodyLimit defines the maximum number of characters retained from a
// provider response body when it is used as an error message.
const DefaultRawBodyLimit = 1024

// Delivery records one recipient accepted by the provider.
type Delivery struct {
	Recipient         string `json:"recipient"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// SendResult is the outcome of one adapter Send call.
type SendResult struct {
	Provider   string     `json:"provider"`
	Deliveries []Delivery `json:"deliveries"`
}

// NewSendResult returns an empty result for provider.
func NewSendResult(provider string) *SendResult {
	return &SendResult{Provider: provider, Deliveries: []Delivery{}}
}

// Add appends a delivery.
func (r *SendResult) Add(recipient, providerMessageID string) {
	r.Deliveries = append(r.Deliveries, Delivery{Recipient: recipient, ProviderMessageID: providerMessageID})
}

// Recipients lists the delivered recipients in send order.
func (r *SendResult) Recipients() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Deliveries))
	for _, d := range r.Deliveries {
		out = append(out, d.Recipient)
	}
	return out
}

// TruncateRaw trims the supplied string to the specified rune limit. If limit
// is zero or negative it returns an empty string.
func TruncateRaw(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	runes := []rune(raw)
	return string(runes[:limit])
}
