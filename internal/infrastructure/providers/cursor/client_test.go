package cursor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/usage-sync/internal/domain/ingest"
)

var (
	winStart = time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	winEnd   = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
)

func TestFetchPage_MapsEventsAndPaginates(t *testing.T) {
	inside := winStart.Add(90 * time.Minute).UnixMilli()
	var bodies []eventsRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, eventsPath, r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_test", user)
		assert.Empty(t, pass)

		var req eventsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		bodies = append(bodies, req)

		w.Header().Set("Content-Type", "application/json")
		if req.Page == 1 {
			_, _ = w.Write([]byte(`{
				"usageEvents": [
					{"timestamp": "` + jsonInt(inside) + `", "userEmail": "Dev@Acme.io", "model": "claude-4-sonnet", "kind": "Usage-based",
					 "tokenUsage": {"inputTokens": 120, "outputTokens": 40, "cacheWriteTokens": 3, "cacheReadTokens": 900, "totalCents": 4.5}},
					{"timestamp": "` + jsonInt(winEnd.UnixMilli()) + `", "userEmail": "late@acme.io", "model": "gpt-4o"}
				],
				"pagination": {"currentPage": 1, "numPages": 2, "hasNextPage": true}
			}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"usageEvents": [{"timestamp": ` + jsonInt(inside+1) + `, "userEmail": "ops@acme.io", "model": "gpt-4o", "kind": "Included in Business"}],
			"pagination": {"currentPage": 2, "numPages": 2, "hasNextPage": false}
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key_test", PageSize: 2}, zerolog.Nop())
	w := ingest.Window{Start: winStart, End: winEnd}

	first, err := c.FetchPage(context.Background(), w, "")
	require.NoError(t, err)
	assert.Equal(t, "2", first.NextCursor)
	require.Len(t, first.Items, 1)

	ev := first.Items[0]
	assert.Equal(t, "dev@acme.io", ev.Identity)
	assert.Equal(t, Tool, ev.ProviderTool)
	assert.Equal(t, inside, ev.EventTimestampMs)
	assert.Equal(t, winStart, ev.Date)
	assert.Equal(t, int64(120), ev.InputTokens)
	assert.Equal(t, int64(900), ev.CacheReadTokens)
	assert.True(t, decimal.RequireFromString("0.045").Equal(ev.CostUSD))

	second, err := c.FetchPage(context.Background(), w, first.NextCursor)
	require.NoError(t, err)
	assert.Empty(t, second.NextCursor)
	require.Len(t, second.Items, 1)
	assert.True(t, second.Items[0].CostUSD.IsZero())

	require.Len(t, bodies, 2)
	assert.Equal(t, winStart.UnixMilli(), bodies[0].StartDate)
	assert.Equal(t, winEnd.UnixMilli()-1, bodies[0].EndDate)
	assert.Equal(t, 2, bodies[1].Page)
	assert.Equal(t, 2, bodies[1].PageSize)
}

func TestFetchPage_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, zerolog.Nop())
	_, err := c.FetchPage(context.Background(), ingest.Window{Start: winStart, End: winEnd}, "")
	assert.ErrorIs(t, err, ingest.ErrRateLimited)
}

func TestFetchPage_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, zerolog.Nop())
	_, err := c.FetchPage(context.Background(), ingest.Window{Start: winStart, End: winEnd}, "")
	var up *ingest.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, http.StatusUnauthorized, up.StatusCode)
}

func TestFetchPage_MalformedCursor(t *testing.T) {
	c := NewClient(Config{APIKey: "k"}, zerolog.Nop())
	_, err := c.FetchPage(context.Background(), ingest.Window{Start: winStart, End: winEnd}, "zero")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.True(t, ingest.IsConfigMissing(NewClient(Config{}, zerolog.Nop()).Validate()))
	assert.NoError(t, NewClient(Config{APIKey: "k"}, zerolog.Nop()).Validate())
}

func TestEpochMillis(t *testing.T) {
	var v struct {
		A epochMillis `json:"a"`
		B epochMillis `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1750979225854","b":1750979225855}`), &v))
	assert.Equal(t, epochMillis(1750979225854), v.A)
	assert.Equal(t, epochMillis(1750979225855), v.B)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
