// Package anthropic reads the organization Claude Code usage report. The
// report is a per-day rollup per actor and model, stored under the
// aggregated regime.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"github.com/janhq/usage-sync/internal/domain/identity"
	"github.com/janhq/usage-sync/internal/domain/ingest"
	"github.com/janhq/usage-sync/internal/domain/usage"
	"github.com/janhq/usage-sync/internal/infrastructure/providers"
	"github.com/janhq/usage-sync/internal/utils/httpclients"
	"github.com/janhq/usage-sync/internal/utils/redact"
)

const (
	ProviderID = "anthropic"
	Tool       = "claude_code"

	apiVersion = "2023-06-01"
	reportPath = "/v1/organizations/usage_report/claude_code"
	keysPath   = "/v1/organizations/api_keys"
	usersPath  = "/v1/organizations/users"
)

// Config holds the admin API settings.
type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Timeout  time.Duration
	// KeyOwnerTTL bounds how long the api key -> email table is reused.
	KeyOwnerTTL time.Duration
}

// Client is the ingest.Provider for the Claude Code usage report.
type Client struct {
	http      *resty.Client
	cfg       Config
	resolver  identity.Resolver
	sanitizer *redact.Sanitizer
	log       zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	keyOwners    map[string]string
	ownersLoaded time.Time
}

// NewClient creates a Client
func NewClient(cfg Config, resolver identity.Resolver, sanitizer *redact.Sanitizer, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KeyOwnerTTL <= 0 {
		cfg.KeyOwnerTTL = time.Hour
	}
	client := httpclients.NewClient("anthropic", cfg.Timeout).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", apiVersion).
		SetHeader("Accept", "application/json")
	return &Client{
		http:      client,
		cfg:       cfg,
		resolver:  resolver,
		sanitizer: sanitizer,
		log:       log.With().Str("component", "anthropic-client").Logger(),
		now:       time.Now,
	}
}

func (c *Client) ID() string { return ProviderID }

func (c *Client) Validate() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ingest.NewConfigMissing(ProviderID, "ANTHROPIC_ADMIN_API_KEY")
	}
	return nil
}

// FetchPage returns one report page for one day of the window. The
// continuation token is "YYYY-MM-DD|page"; the day advances once the
// upstream reports no more pages for it.
func (c *Client) FetchPage(ctx context.Context, w ingest.Window, cursor string) (ingest.Page[usage.Record], error) {
	day, page, err := decodeCursor(cursor, w)
	if err != nil {
		return ingest.Page[usage.Record]{}, err
	}
	if !day.Before(w.End) {
		return ingest.Page[usage.Record]{}, nil
	}

	report, err := c.fetchReport(ctx, day, page)
	if err != nil {
		return ingest.Page[usage.Record]{}, err
	}

	records := make([]usage.Record, 0, len(report.Data))
	for _, row := range report.Data {
		email, err := c.actorEmail(ctx, row.Actor)
		if err != nil {
			return ingest.Page[usage.Record]{}, err
		}
		rowDay := day
		if parsed, ok := parseDate(row.Date); ok {
			rowDay = parsed
		}
		for _, mb := range row.ModelBreakdown {
			records = append(records, usage.Record{
				Date:             rowDay,
				Identity:         email,
				ProviderTool:     Tool,
				RawModelName:     mb.Model,
				InputTokens:      mb.Tokens.Input,
				OutputTokens:     mb.Tokens.Output,
				CacheReadTokens:  mb.Tokens.CacheRead,
				CacheWriteTokens: mb.Tokens.CacheCreation,
				CostUSD:          centsToUSD(mb.EstimatedCost),
			})
		}
	}

	next := ""
	switch {
	case report.HasMore && report.NextPage != nil && *report.NextPage != "":
		next = encodeCursor(day, *report.NextPage)
	case day.AddDate(0, 0, 1).Before(w.End):
		next = encodeCursor(day.AddDate(0, 0, 1), "")
	}
	return ingest.Page[usage.Record]{Items: records, NextCursor: next}, nil
}

func (c *Client) fetchReport(ctx context.Context, day time.Time, page string) (*usageReport, error) {
	var report usageReport
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("starting_at", day.Format(time.DateOnly)).
		SetQueryParam("limit", strconv.Itoa(c.cfg.PageSize)).
		SetResult(&report)
	if page != "" {
		req.SetQueryParam("page", page)
	}
	resp, err := req.Get(providers.Endpoint(c.cfg.BaseURL, reportPath))
	if err != nil {
		return nil, fmt.Errorf("anthropic usage report: %w", err)
	}
	if err := providers.CheckResponse(ProviderID, "usage report", resp); err != nil {
		return nil, err
	}
	return &report, nil
}

// actorEmail resolves the actor of a report row. API key actors are looked
// up through the key's creator, then through the identity resolver.
func (c *Client) actorEmail(ctx context.Context, a actor) (string, error) {
	switch a.Type {
	case actorUser:
		return normalizeEmail(a.EmailAddress), nil
	case actorAPIKey:
		owners, err := c.keyOwnerTable(ctx)
		if err != nil {
			return "", err
		}
		if email, ok := owners[a.APIKeyName]; ok {
			return email, nil
		}
		if c.resolver != nil {
			email, ok, err := c.resolver.ResolveEmail(ctx, ProviderID, a.APIKeyName)
			if err != nil {
				return "", fmt.Errorf("resolve api key %q: %w", a.APIKeyName, err)
			}
			if ok {
				return normalizeEmail(email), nil
			}
		}
		c.log.Debug().Str("api_key", c.sanitizer.Text(a.APIKeyName)).Msg("api key actor has no known owner")
		return "", nil
	default:
		return normalizeEmail(a.EmailAddress), nil
	}
}

// keyOwnerTable returns api key name -> creator email, refreshed after
// KeyOwnerTTL. A failing lookup degrades to an empty table unless the
// upstream is rate limiting.
func (c *Client) keyOwnerTable(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keyOwners != nil && c.now().Sub(c.ownersLoaded) < c.cfg.KeyOwnerTTL {
		return c.keyOwners, nil
	}

	owners, err := c.loadKeyOwners(ctx)
	if err != nil {
		if isRateLimited(err) {
			return nil, err
		}
		c.log.Warn().Err(err).Msg("api key owner lookup failed, falling back to identity mappings")
		owners = map[string]string{}
	}
	c.keyOwners = owners
	c.ownersLoaded = c.now()
	return owners, nil
}

func (c *Client) loadKeyOwners(ctx context.Context) (map[string]string, error) {
	emails := make(map[string]string)
	err := paginate(ctx, c, usersPath, "list users", func(users []orgUser) {
		for _, u := range users {
			emails[u.ID] = normalizeEmail(u.Email)
		}
	})
	if err != nil {
		return nil, err
	}

	owners := make(map[string]string)
	err = paginate(ctx, c, keysPath, "list api keys", func(keys []apiKey) {
		for _, k := range keys {
			if email, ok := emails[k.CreatedBy.ID]; ok && email != "" {
				owners[k.Name] = email
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return owners, nil
}

func paginate[T any](ctx context.Context, c *Client, path, op string, visit func([]T)) error {
	afterID := ""
	for {
		var page listResponse[T]
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("limit", "100").
			SetResult(&page)
		if afterID != "" {
			req.SetQueryParam("after_id", afterID)
		}
		resp, err := req.Get(providers.Endpoint(c.cfg.BaseURL, path))
		if err != nil {
			return fmt.Errorf("anthropic %s: %w", op, err)
		}
		if err := providers.CheckResponse(ProviderID, op, resp); err != nil {
			return err
		}
		visit(page.Data)
		if !page.HasMore || page.LastID == "" || page.LastID == afterID {
			return nil
		}
		afterID = page.LastID
	}
}

func encodeCursor(day time.Time, page string) string {
	return day.Format(time.DateOnly) + "|" + page
}

func decodeCursor(cursor string, w ingest.Window) (time.Time, string, error) {
	if cursor == "" {
		return ingest.Day(w.Start), "", nil
	}
	dayPart, page, found := strings.Cut(cursor, "|")
	if !found {
		return time.Time{}, "", fmt.Errorf("anthropic: malformed continuation token %q", cursor)
	}
	day, err := time.Parse(time.DateOnly, dayPart)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("anthropic: malformed continuation token %q: %w", cursor, err)
	}
	return day, page, nil
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return ingest.Day(t), true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func centsToUSD(c estimatedCost) decimal.Decimal {
	if c.Amount.IsZero() {
		return decimal.Zero
	}
	return c.Amount.Div(decimal.NewFromInt(100))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isRateLimited(err error) bool {
	return errors.Is(err, ingest.ErrRateLimited)
}
