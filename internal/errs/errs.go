// Package errs defines the failure taxonomy shared by the message model, the
// provider adapters, the dispatch engine and the webhook pipeline.
//
// Every typed error matches one sentinel through errors.Is so callers can
// classify failures without depending on the concrete type:
//
//	if errors.Is(err, errs.ErrValidation) { ... }
//
// UnknownProviderError additionally matches ErrConfiguration because an
// unknown provider name is a setup defect of the same family.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used for classification.
var (
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrProvider        = errors.New("provider error")
	ErrNetwork         = errors.New("network error")
	ErrWebhookAuth     = errors.New("webhook authentication failed")
)

// ValidationError reports a malformed or incomplete message. It is always
// raised before any network activity.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("validation: %s: %q", e.Reason, e.Value)
	}
	return "validation: " + e.Reason
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation builds a ValidationError from a formatted reason.
func Validation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidValue builds a ValidationError naming the offending value.
func InvalidValue(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// ConfigurationError reports missing credentials or an unusable provider
// policy. It surfaces at adapter construction or provider resolution time.
type ConfigurationError struct {
	Provider string
	Missing  []string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration")
	if e.Provider != "" {
		b.WriteString(": provider ")
		b.WriteString(e.Provider)
	}
	if len(e.Missing) > 0 {
		b.WriteString(": missing required keys: ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configuration builds a ConfigurationError from a formatted reason.
func Configuration(provider, format string, args ...any) error {
	return &ConfigurationError{Provider: provider, Reason: fmt.Sprintf(format, args...)}
}

// MissingKeys builds a ConfigurationError listing absent credential keys.
func MissingKeys(provider string, keys ...string) error {
	return &ConfigurationError{Provider: provider, Missing: append([]string(nil), keys...)}
}

// UnknownProviderError reports a provider name absent from the registry.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("configuration: sms driver %q not configured", e.Provider)
}

// Is matches both ErrUnknownProvider and ErrConfiguration.
func (e *UnknownProviderError) Is(target error) bool {
	return target == ErrUnknownProvider || target == ErrConfiguration
}

// ProviderError reports a remote rejection. Code and Message carry the
// provider's own error details when they could be extracted.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	// Temporary marks rejections the provider documents as transient
	// (throttling, 5xx).
	Temporary bool
	Err       error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": provider error")
	switch {
	case e.StatusCode > 0 && e.Code != "":
		fmt.Fprintf(&b, " (http %d, code %s)", e.StatusCode, e.Code)
	case e.StatusCode > 0:
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	case e.Code != "":
		fmt.Fprintf(&b, " (code %s)", e.Code)
	}
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	b.WriteString(": ")
	b.WriteString(msg)
	return b.String()
}

// Is reports whether target is ErrProvider.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func (e *ProviderError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure and carries the original cause.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
}

// Is reports whether target is ErrNetwork.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

// Network wraps a transport failure for provider.
func Network(provider string, err error) error {
	return &NetworkError{Provider: provider, Err: err}
}

// WebhookAuthError reports a failed inbound signature check. It never leaves
// the webhook pipeline; the HTTP boundary turns it into a 401.
type WebhookAuthError struct {
	Provider string
	Reason   string
}

func (e *WebhookAuthError) Error() string {
	return fmt.Sprintf("%s: webhook authentication failed: %s", e.Provider, e.Reason)
}

// Is reports whether target is ErrWebhookAuth.
func (e *WebhookAuthError) Is(target error) bool { return target == ErrWebhookAuth }

// Retryable reports whether a deferred job failing with err may be attempted
// again. Only provider rejections and transport failures qualify; validation
// and configuration defects never heal on their own.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrProvider) || errors.Is(err, ErrNetwork)
}

// Temporary reports whether err is a transport failure or a provider
// rejection flagged as transient.
func Temporary(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Temporary
}

// Kind returns a short label for err, used for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrProvider):
		return "provider"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrWebhookAuth):
		return "webhook_auth"
	default:
		return "unknown"
	}
}
