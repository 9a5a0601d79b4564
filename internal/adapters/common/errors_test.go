package common

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ajayykmr/sms-gateway/internal/errs"
)

type stubClient struct {
	resp *http.Response
	err  error
}

func (s stubClient) Do(*http.Request) (*http.Response, error) { return s.resp, s.err }

func TestDoTransportFailure(t *testing.T) {
	base := errors.New("connection refused")
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)

	_, _, err := Do(stubClient{err: base}, "sparrow", req, 0)
	if !errors.Is(err, errs.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected cause to be preserved: %v", err)
	}
}

func TestDoLimitsBody(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(strings.Repeat("x", 64)))}
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)

	status, body, err := Do(stubClient{resp: resp}, "sparrow", req, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != 200 || len(body) != 10 {
		t.Fatalf("expected 200 and 10 bytes, got %d and %d", status, len(body))
	}
}

func TestStatusError(t *testing.T) {
	err := StatusError("twilio", 400, "21211", "Invalid 'To' Phone Number", nil)
	if !errors.Is(err, errs.ErrProvider) || err.Temporary {
		t.Fatalf("expected permanent provider error, got %+v", err)
	}

	fromBody := StatusError("sparrow", 503, "", "", []byte("  upstream down \n"))
	if fromBody.Message != "upstream down" || !fromBody.Temporary {
		t.Fatalf("expected body message and temporary flag, got %+v", fromBody)
	}

	fallback := StatusError("msg91", 429, "", "", nil)
	if fallback.Message != http.StatusText(429) || !fallback.Temporary {
		t.Fatalf("expected status text fallback, got %+v", fallback)
	}
}

func TestTruncateRaw(t *testing.T) {
	if got := TruncateRaw("héllo", 2); got != "hé" {
		t.Fatalf("expected rune-aware truncation, got %q", got)
	}
	if got := TruncateRaw("abc", 0); got != "" {
		t.Fatalf("expected empty string for zero limit, got %q", got)
	}
}
