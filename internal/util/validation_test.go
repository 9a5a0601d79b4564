package util

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseUUIDv4(t *testing.T) {
	_, err := ParseUUIDv4("b0c9c2b0-1f3a-4d2d-9e3f-123456789abc")
	if err != nil {
		t.Fatalf("expected success parsing valid uuid: %v", err)
	}

	if _, err := ParseUUIDv4(""); !errors.Is(err, ErrInvalidUUID) {
		t.Fatalf("expected ErrInvalidUUID for empty string, got %v", err)
	}

	if _, err := ParseUUIDv4("6fa459ea-ee8a-11d2-90f6-000000000000"); !errors.Is(err, ErrInvalidUUID) {
		t.Fatalf("expected ErrInvalidUUID for non v4 uuid, got %v", err)
	}
}

func TestParseRFC3339(t *testing.T) {
	ts, err := ParseRFC3339("2025-10-11T10:00:00Z")
	if err != nil {
		t.Fatalf("expected success parsing timestamp: %v", err)
	}

	if got := ts.Format(time.RFC3339); got != "2025-10-11T10:00:00Z" {
		t.Fatalf("unexpected timestamp round trip: %s", got)
	}

	if _, err := ParseRFC3339("not-a-time"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	accepted := []string{"+15551234567", "9779812345678", "1234567", " +447700900123 ", "123456789012345"}
	for _, value := range accepted {
		if _, err := NormalizePhone(value); err != nil {
			t.Fatalf("expected %q to be accepted: %v", value, err)
		}
	}

	rejected := []string{"", "123456", "1234567890123456", "+1-555-123", "abc1234567", "++1234567", "1234567+"}
	for _, value := range rejected {
		if _, err := NormalizePhone(value); !errors.Is(err, ErrInvalidPhone) {
			t.Fatalf("expected ErrInvalidPhone for %q, got %v", value, err)
		}
	}

	got, _ := NormalizePhone("  +15551234567\t")
	if got != "+15551234567" {
		t.Fatalf("expected trimmed number, got %q", got)
	}
}

func TestDialString(t *testing.T) {
	cases := []struct {
		in, cc, want string
	}{
		{"+1 (555) 123-4567", "", "+15551234567"},
		{"555 123 4567", "1", "15551234567"},
		{"+44 7700 900123", "1", "+447700900123"},
		{"98-1234-5678", "", "9812345678"},
	}
	for _, tc := range cases {
		if got := DialString(tc.in, tc.cc); got != tc.want {
			t.Fatalf("DialString(%q, %q) = %q, want %q", tc.in, tc.cc, got, tc.want)
		}
	}
}

func TestEnsureMaxRunes(t *testing.T) {
	if err := EnsureMaxRunes("text", strings.Repeat("é", 1600), 1600); err != nil {
		t.Fatalf("expected 1600 multibyte characters to pass: %v", err)
	}
	if err := EnsureMaxRunes("text", strings.Repeat("a", 1601), 1600); err == nil {
		t.Fatalf("expected error above maximum")
	}
	if err := EnsureMaxRunes("text", strings.Repeat("a", 5000), 0); err != nil {
		t.Fatalf("expected no limit when max is zero: %v", err)
	}
}

func TestValidateHTTPURL(t *testing.T) {
	if _, err := ValidateHTTPURL("https://api.twilio.com/2010-04-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ValidateHTTPURL("ftp://example.com"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestParseDurations(t *testing.T) {
	got, err := ParseDurations("10s, 30, 1m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Duration{10 * time.Second, 30 * time.Second, time.Minute}
	if len(got) != len(want) {
		t.Fatalf("expected %d durations, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("duration[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := ParseDurations("10s,soon"); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}
