// Package cursor reads the team usage events of the Cursor admin API. Each
// event is stored once under the per-event regime.
package cursor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"github.com/janhq/usage-sync/internal/domain/ingest"
	"github.com/janhq/usage-sync/internal/domain/usage"
	"github.com/janhq/usage-sync/internal/infrastructure/providers"
	"github.com/janhq/usage-sync/internal/utils/httpclients"
)

const (
	ProviderID = "cursor"
	Tool       = "cursor"

	eventsPath = "/teams/filtered-usage-events"
)

// Config holds the admin API settings.
type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Timeout  time.Duration
}

// Client is the ingest.Provider for Cursor usage events.
type Client struct {
	http *resty.Client
	cfg  Config
	log  zerolog.Logger
}

// NewClient creates a Client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cursor.com"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := httpclients.NewClient("cursor", cfg.Timeout).
		SetBasicAuth(cfg.APIKey, "").
		SetHeader("Content-Type", "application/json")
	return &Client{
		http: client,
		cfg:  cfg,
		log:  log.With().Str("component", "cursor-client").Logger(),
	}
}

func (c *Client) ID() string { return ProviderID }

func (c *Client) Validate() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ingest.NewConfigMissing(ProviderID, "CURSOR_ADMIN_API_KEY")
	}
	return nil
}

type eventsRequest struct {
	StartDate int64 `json:"startDate"`
	EndDate   int64 `json:"endDate"`
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
}

type eventsResponse struct {
	UsageEvents []usageEvent `json:"usageEvents"`
	Pagination  struct {
		CurrentPage int  `json:"currentPage"`
		NumPages    int  `json:"numPages"`
		HasNextPage bool `json:"hasNextPage"`
	} `json:"pagination"`
	TotalUsageEventsCount int `json:"totalUsageEventsCount"`
}

type usageEvent struct {
	Timestamp  epochMillis `json:"timestamp"`
	UserEmail  string      `json:"userEmail"`
	Model      string      `json:"model"`
	Kind       string      `json:"kind"`
	TokenUsage *struct {
		InputTokens      int64           `json:"inputTokens"`
		OutputTokens     int64           `json:"outputTokens"`
		CacheWriteTokens int64           `json:"cacheWriteTokens"`
		CacheReadTokens  int64           `json:"cacheReadTokens"`
		TotalCents       decimal.Decimal `json:"totalCents"`
	} `json:"tokenUsage"`
}

// epochMillis accepts a millisecond timestamp sent as a string or a number.
type epochMillis int64

func (m *epochMillis) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		var f float64
		if ferr := json.Unmarshal([]byte(raw), &f); ferr != nil {
			return fmt.Errorf("invalid timestamp %q: %w", raw, err)
		}
		v = int64(f)
	}
	*m = epochMillis(v)
	return nil
}

// FetchPage returns one page of events inside the window. The continuation
// token is the next 1-based page number.
func (c *Client) FetchPage(ctx context.Context, w ingest.Window, cursor string) (ingest.Page[usage.Record], error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return ingest.Page[usage.Record]{}, fmt.Errorf("cursor: malformed continuation token %q", cursor)
		}
		page = n
	}

	var body eventsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(eventsRequest{
			StartDate: w.Start.UnixMilli(),
			EndDate:   w.End.UnixMilli() - 1,
			Page:      page,
			PageSize:  c.cfg.PageSize,
		}).
		SetResult(&body).
		Post(providers.Endpoint(c.cfg.BaseURL, eventsPath))
	if err != nil {
		return ingest.Page[usage.Record]{}, fmt.Errorf("cursor usage events: %w", err)
	}
	if err := providers.CheckResponse(ProviderID, "usage events", resp); err != nil {
		return ingest.Page[usage.Record]{}, err
	}

	records := make([]usage.Record, 0, len(body.UsageEvents))
	startMs, endMs := w.Start.UnixMilli(), w.End.UnixMilli()
	for _, ev := range body.UsageEvents {
		ts := int64(ev.Timestamp)
		if ts < startMs || ts >= endMs {
			continue
		}
		rec := usage.Record{
			Date:             ingest.Day(time.UnixMilli(ts)),
			Identity:         strings.ToLower(strings.TrimSpace(ev.UserEmail)),
			ProviderTool:     Tool,
			RawModelName:     ev.Model,
			EventTimestampMs: ts,
		}
		if tu := ev.TokenUsage; tu != nil {
			rec.InputTokens = tu.InputTokens
			rec.OutputTokens = tu.OutputTokens
			rec.CacheWriteTokens = tu.CacheWriteTokens
			rec.CacheReadTokens = tu.CacheReadTokens
			rec.CostUSD = tu.TotalCents.Div(decimal.NewFromInt(100))
		}
		records = append(records, rec)
	}

	next := ""
	if body.Pagination.HasNextPage {
		next = strconv.Itoa(page + 1)
	}
	c.log.Debug().
		Int("page", page).
		Int("events", len(body.UsageEvents)).
		Int("kept", len(records)).
		Bool("has_next", body.Pagination.HasNextPage).
		Msg("fetched usage events page")
	return ingest.Page[usage.Record]{Items: records, NextCursor: next}, nil
}
