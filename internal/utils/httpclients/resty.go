package httpclients

import (
	"context"
	"time"

	"github.com/janhq/usage-sync/internal/infrastructure/logger"
	"github.com/janhq/usage-sync/internal/utils/platformerrors"

	"resty.dev/v3"
)

type HTTPClientStartsAt struct{}

// NewClient returns a resty client that logs every exchange at debug level.
// Response bodies are not logged; upstream payloads carry user emails.
func NewClient(clientName string, timeout time.Duration) *resty.Client {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		ctx := context.WithValue(r.Context(), HTTPClientStartsAt{}, time.Now())
		r.SetContext(ctx)
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		log := logger.GetLogger()
		startTime, _ := r.Request.Context().Value(HTTPClientStartsAt{}).(time.Time)
		event := log.Debug().
			Str("run_id", platformerrors.RunIDFromContext(r.Request.Context())).
			Str("client", clientName).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(startTime))
		if raw := r.Request.RawRequest; raw != nil {
			event = event.
				Str("method", raw.Method).
				Str("path", raw.URL.Path).
				Str("query", raw.URL.RawQuery)
		}
		event.Msg("HTTP client request")
		return nil
	})
	return client
}
