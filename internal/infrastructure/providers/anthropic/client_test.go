package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/usage-sync/internal/domain/identity"
	"github.com/janhq/usage-sync/internal/domain/ingest"
	"github.com/janhq/usage-sync/internal/domain/usage"
	"github.com/janhq/usage-sync/internal/utils/redact"
)

func newTestClient(t *testing.T, handler http.Handler, resolver identity.Resolver) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "sk-admin-test", PageSize: 2}, resolver,
		redact.NewSanitizer(redact.LevelHashed, ""), zerolog.Nop())
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func fetchAll(t *testing.T, c *Client, w ingest.Window) ([]usage.Record, error) {
	t.Helper()
	var (
		out    []usage.Record
		cursor string
	)
	for i := 0; i < 20; i++ {
		page, err := c.FetchPage(context.Background(), w, cursor)
		if err != nil {
			return out, err
		}
		out = append(out, page.Items...)
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
	t.Fatal("pagination did not terminate")
	return nil, nil
}

func TestFetchPage_PaginatesDaysAndPages(t *testing.T) {
	var requests []string
	mux := http.NewServeMux()
	mux.HandleFunc(reportPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-admin-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		day, page := r.URL.Query().Get("starting_at"), r.URL.Query().Get("page")
		requests = append(requests, day+"|"+page)
		switch day + "|" + page {
		case "2025-06-13|":
			writeJSON(t, w, map[string]any{
				"data": []any{map[string]any{
					"date":  "2025-06-13T00:00:00Z",
					"actor": map[string]any{"type": "user_actor", "email_address": "Alice@Example.com"},
					"model_breakdown": []any{map[string]any{
						"model":          "claude-sonnet-4-20250514",
						"tokens":         map[string]any{"input": 100, "output": 50, "cache_read": 10, "cache_creation": 5},
						"estimated_cost": map[string]any{"currency": "USD", "amount": 250},
					}},
				}},
				"has_more":  true,
				"next_page": "p2",
			})
		case "2025-06-13|p2":
			writeJSON(t, w, map[string]any{
				"data": []any{map[string]any{
					"date":  "2025-06-13T00:00:00Z",
					"actor": map[string]any{"type": "user_actor", "email_address": "bob@example.com"},
					"model_breakdown": []any{map[string]any{
						"model":          "claude-opus-4-5-20251101",
						"tokens":         map[string]any{"input": 1},
						"estimated_cost": map[string]any{"currency": "USD", "amount": 12.5},
					}},
				}},
				"has_more": false,
			})
		default:
			writeJSON(t, w, map[string]any{"data": []any{}, "has_more": false})
		}
	})
	c := newTestClient(t, mux, nil)

	w := ingest.Window{Start: time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)}
	recs, err := fetchAll(t, c, w)
	require.NoError(t, err)

	assert.Equal(t, []string{"2025-06-13|", "2025-06-13|p2", "2025-06-14|"}, requests)
	require.Len(t, recs, 2)

	assert.Equal(t, "alice@example.com", recs[0].Identity)
	assert.Equal(t, Tool, recs[0].ProviderTool)
	assert.Equal(t, int64(100), recs[0].InputTokens)
	assert.Equal(t, int64(50), recs[0].OutputTokens)
	assert.Equal(t, int64(10), recs[0].CacheReadTokens)
	assert.Equal(t, int64(5), recs[0].CacheWriteTokens)
	assert.True(t, decimal.RequireFromString("2.5").Equal(recs[0].CostUSD))
	assert.Equal(t, time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC), recs[0].Date)

	assert.True(t, decimal.RequireFromString("0.125").Equal(recs[1].CostUSD))
}

func TestFetchPage_ResolvesAPIKeyActors(t *testing.T) {
	var lookups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(reportPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"data": []any{
				map[string]any{
					"date":            "2025-06-13",
					"actor":           map[string]any{"type": "api_actor", "api_key_name": "ci-key"},
					"model_breakdown": []any{map[string]any{"model": "claude-sonnet-4", "tokens": map[string]any{"input": 7}}},
				},
				map[string]any{
					"date":            "2025-06-13",
					"actor":           map[string]any{"type": "api_actor", "api_key_name": "mapped-key"},
					"model_breakdown": []any{map[string]any{"model": "claude-sonnet-4", "tokens": map[string]any{"input": 8}}},
				},
				map[string]any{
					"date":            "2025-06-13",
					"actor":           map[string]any{"type": "api_actor", "api_key_name": "orphan"},
					"model_breakdown": []any{map[string]any{"model": "claude-sonnet-4", "tokens": map[string]any{"input": 9}}},
				},
			},
			"has_more": false,
		})
	})
	mux.HandleFunc(usersPath, func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		if r.URL.Query().Get("after_id") == "" {
			writeJSON(t, w, map[string]any{"data": []any{map[string]any{"id": "u1", "email": "Ops@Example.com"}}, "has_more": true, "last_id": "u1"})
			return
		}
		writeJSON(t, w, map[string]any{"data": []any{map[string]any{"id": "u2", "email": "dev@example.com"}}, "has_more": false, "last_id": "u2"})
	})
	mux.HandleFunc(keysPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"data": []any{
			map[string]any{"id": "k1", "name": "ci-key", "created_by": map[string]any{"id": "u2", "type": "user"}},
		}, "has_more": false})
	})
	resolver := identity.NewStatic(map[string]map[string]string{ProviderID: {"mapped-key": "mapped@example.com"}})
	c := newTestClient(t, mux, identity.Chain{resolver})

	day := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)
	w := ingest.Window{Start: day, End: day.AddDate(0, 0, 1)}
	recs, err := fetchAll(t, c, w)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "dev@example.com", recs[0].Identity)
	assert.Equal(t, "mapped@example.com", recs[1].Identity)
	assert.Empty(t, recs[2].Identity)

	// The owner table is cached between pages.
	_, err = fetchAll(t, c, w)
	require.NoError(t, err)
	assert.Equal(t, int32(2), lookups.Load())
}

func TestFetchPage_RateLimited(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}), nil)

	_, err := c.FetchPage(context.Background(), ingest.Window{Start: time.Now().Add(-time.Hour), End: time.Now()}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrRateLimited)

	var rl *ingest.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
}

func TestFetchPage_UpstreamError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}), nil)

	_, err := c.FetchPage(context.Background(), ingest.Window{Start: time.Now().Add(-time.Hour), End: time.Now()}, "")
	var up *ingest.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, http.StatusInternalServerError, up.StatusCode)
	assert.Contains(t, up.Body, "boom")
}

func TestValidate(t *testing.T) {
	c := NewClient(Config{}, nil, nil, zerolog.Nop())
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, ingest.IsConfigMissing(err))
}

func TestDecodeCursor(t *testing.T) {
	w := ingest.Window{Start: time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)}

	day, page, err := decodeCursor("", w)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), day)
	assert.Empty(t, page)

	day, page, err = decodeCursor(encodeCursor(day, "abc|def"), w)
	require.NoError(t, err)
	assert.Equal(t, "abc|def", page)
	assert.Equal(t, 2, day.Day())

	_, _, err = decodeCursor("garbage", w)
	assert.Error(t, err)
}
