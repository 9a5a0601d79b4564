package util

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// ErrInvalidUUID is returned when a value is not a UUID v4.
	ErrInvalidUUID = errors.New("invalid uuid v4")
	// ErrInvalidTimestamp indicates the value could not be parsed as RFC3339.
	ErrInvalidTimestamp = errors.New("invalid rfc3339 timestamp")
	// ErrInvalidPhone is returned when a phone number does not match the
	// accepted recipient pattern.
	ErrInvalidPhone = errors.New("invalid phone number format")
	// ErrInvalidURL indicates that a URL failed validation.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidDuration indicates a duration list entry could not be parsed.
	ErrInvalidDuration = errors.New("invalid duration")
)

// phonePattern accepts an optional leading plus followed by 7 to 15 digits.
// It is deliberately looser than E.164 since several gateways take national
// numbers without a country prefix.
var phonePattern = regexp.MustCompile(`^\+?\d{7,15}$`)

// ParseUUIDv4 parses and validates a UUID string, ensuring it is version 4.
func ParseUUIDv4(value string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return uuid.UUID{}, fmt.Errorf("%w: value is empty", ErrInvalidUUID)
	}

	u, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %v", ErrInvalidUUID, err)
	}

	if u.Version() != 4 {
		return uuid.UUID{}, fmt.Errorf("%w: expected version 4", ErrInvalidUUID)
	}

	return u, nil
}

// ParseRFC3339 parses a timestamp string using RFC3339Nano for maximum fidelity.
func ParseRFC3339(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: value is empty", ErrInvalidTimestamp)
	}

	ts, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}

	return ts, nil
}

// NormalizePhone trims a recipient number and checks it against the accepted
// pattern.
func NormalizePhone(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidPhone)
	}

	if !phonePattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, trimmed)
	}

	return trimmed, nil
}

// DialString keeps only digits and '+' from value. When the result carries no
// leading '+' and countryCode is set, the country code is prepended.
func DialString(value, countryCode string) string {
	var b strings.Builder
	b.Grow(len(value) + len(countryCode))
	for _, r := range value {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if countryCode != "" && !strings.HasPrefix(out, "+") {
		out = countryCode + out
	}
	return out
}

// EnsureMaxRunes ensures a string is not longer than the provided rune count.
func EnsureMaxRunes(field, value string, max int) error {
	if max <= 0 {
		return nil
	}
	length := utf8.RuneCountInString(value)
	if length > max {
		return fmt.Errorf("%s exceeds maximum length of %d characters", field, max)
	}
	return nil
}

// ValidateHTTPURL ensures the provided string is a valid HTTP or HTTPS URL.
func ValidateHTTPURL(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	return trimmed, nil
}

// ParseDurations parses a comma separated list such as "10s,30s,60s".
// Bare integers are read as seconds.
func ParseDurations(value string) ([]time.Duration, error) {
	parts := strings.Split(value, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if d, err := time.ParseDuration(trimmed); err == nil {
			if d < 0 {
				return nil, fmt.Errorf("%w: %q is negative", ErrInvalidDuration, trimmed)
			}
			out = append(out, d)
			continue
		}
		var secs int
		if _, err := fmt.Sscanf(trimmed, "%d", &secs); err != nil || fmt.Sprint(secs) != trimmed || secs < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDuration, trimmed)
		}
		out = append(out, time.Duration(secs)*time.Second)
	}
	return out, nil
}
