package common

import "net/url"

// WebhookData is the normalized content of an inbound provider callback.
// Empty strings mean the field was absent from the payload.
type WebhookData struct {
	MessageID string
	Status    string
	Recipient string
}

// WebhookParser is implemented by adapters that accept inbound callbacks.
// Unrecognized payload shapes are not an error; they yield empty data.
type WebhookParser interface {
	ParseWebhook(payload []byte) (WebhookData, error)
}

// SignedWebhook is implemented by adapters whose callbacks carry an
// HMAC-SHA256 signature of the raw body. An empty secret disables the check.
type SignedWebhook interface {
	WebhookSecret() string
	// SignatureHeader names the request header carrying the signature and
	// prefix is stripped from its value before hex decoding.
	SignatureHeader() (header, prefix string)
}

// SubscriptionVerifier is implemented by adapters that answer a GET
// handshake when a webhook URL is registered.
type SubscriptionVerifier interface {
	VerifySubscription(query url.Values) (challenge string, ok bool)
}
