package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/janhq/usage-sync/internal/utils/platformerrors"
)

var (
	// ErrRateLimited matches any upstream rate-limit response.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrSyncInProgress is returned when a run for the same provider is
	// already executing in this process.
	ErrSyncInProgress = errors.New("sync already in progress for provider")
	// ErrUnknownProvider is returned by Service for an unregistered provider id.
	ErrUnknownProvider = errors.New("unknown provider")
)

// RateLimitError reports an upstream rate-limit response.
type RateLimitError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited (status %d, retry after %s)", e.Provider, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited (status %d)", e.Provider, e.StatusCode)
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// UpstreamError reports a non-2xx, non-rate-limit upstream response.
type UpstreamError struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: %s failed with status %d", e.Provider, e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s failed with status %d: %s", e.Provider, e.Operation, e.StatusCode, body)
}

// NewConfigMissing builds the error a provider returns from Validate when
// required credentials are not configured.
func NewConfigMissing(provider string, missing ...string) error {
	return platformerrors.NewErrorWithContext(context.Background(), platformerrors.LayerProvider,
		platformerrors.ErrorTypeConfigMissing,
		fmt.Sprintf("%s is not configured: missing %s", provider, strings.Join(missing, ", ")),
		nil, "", map[string]any{"provider": provider, "missing": missing})
}

// IsConfigMissing reports whether err is a missing-configuration error.
func IsConfigMissing(err error) bool {
	return platformerrors.IsErrorType(err, platformerrors.ErrorTypeConfigMissing)
}
