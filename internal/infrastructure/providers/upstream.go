// Package providers holds the upstream clients and the helpers they share.
package providers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/janhq/usage-sync/internal/domain/ingest"
)

// CheckResponse maps a non-2xx response to the ingest error taxonomy. It
// returns nil for successful responses.
func CheckResponse(provider, operation string, resp *resty.Response) error {
	if resp == nil {
		return &ingest.UpstreamError{Provider: provider, Operation: operation}
	}
	if !resp.IsError() {
		return nil
	}
	status := resp.StatusCode()
	if status == http.StatusTooManyRequests {
		return &ingest.RateLimitError{
			Provider:   provider,
			StatusCode: status,
			RetryAfter: RetryAfter(resp.Header().Get("Retry-After")),
		}
	}
	return &ingest.UpstreamError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: status,
		Body:       responseBody(resp),
	}
}

func responseBody(resp *resty.Response) string {
	if body := resp.String(); body != "" {
		return body
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return ""
	}
	defer resp.RawResponse.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.RawResponse.Body, 64<<10))
	if err != nil {
		return ""
	}
	return string(body)
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Endpoint joins a base URL and a path.
func Endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
