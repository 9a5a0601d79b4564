package common

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ajayykmr/sms-gateway/internal/errs"
)

// DefaultBodyLimit caps how many bytes are read from a provider response.
const DefaultBodyLimit int64 = 16 * 1024

// Do executes req and reads at most limit bytes of the response body.
// Transport and read failures are returned as *errs.NetworkError; HTTP
// status handling is left to the caller.
func Do(client HTTPClient, provider string, req *http.Request, limit int64) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, errs.Network(provider, err)
	}
	defer resp.Body.Close()

	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return resp.StatusCode, nil, errs.Network(provider, fmt.Errorf("read body: %w", err))
	}
	return resp.StatusCode, body, nil
}

// StatusError builds the ProviderError for a rejected request. When message
// is empty the trimmed body is used, then the HTTP status text. Throttling
// and server side statuses are marked temporary.
func StatusError(provider string, status int, code, message string, body []byte) *errs.ProviderError {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = TruncateRaw(strings.TrimSpace(string(body)), DefaultRawBodyLimit)
	}
	if msg == "" && status > 0 {
		msg = http.StatusText(status)
	}
	return &errs.ProviderError{
		Provider:   provider,
		StatusCode: status,
		Code:       code,
		Message:    msg,
		Temporary:  status == http.StatusTooManyRequests || status >= 500,
	}
}
