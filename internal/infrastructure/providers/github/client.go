// Package github lists commits of configured repositories, resolves their
// author emails and attributes them to AI tools.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v61/github"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/janhq/usage-sync/internal/domain/attribution"
	"github.com/janhq/usage-sync/internal/domain/commit"
	"github.com/janhq/usage-sync/internal/domain/identity"
	"github.com/janhq/usage-sync/internal/domain/ingest"
	"github.com/janhq/usage-sync/internal/infrastructure/providers"
	"github.com/janhq/usage-sync/internal/utils/httpclients"
	"github.com/janhq/usage-sync/internal/utils/redact"
)

const ProviderID = commit.SourceGitHub

// Config holds the commit host settings. Either Token or the App triple
// must be set.
type Config struct {
	APIBaseURL     string
	GraphQLURL     string
	Token          string
	AppID          string
	InstallationID string
	PrivateKey     string
	Org            string
	Repos          []RepoRef
	PerPage        int
	// DetailInterval paces the per-commit detail requests.
	DetailInterval time.Duration
	EmailTTL       time.Duration
	Timeout        time.Duration
}

// Client is the ingest.Provider for commits.
type Client struct {
	cfg       Config
	rest      *gh.Client
	http      *resty.Client
	tokens    TokenSource
	resolver  identity.Resolver
	sanitizer *redact.Sanitizer
	pacer     *ingest.Pacer
	log       zerolog.Logger
	now       func() time.Time
	configErr error

	emailMu      sync.Mutex
	emails       map[string]string
	emailsLoaded time.Time
}

// NewClient creates a Client. Invalid credentials surface from Validate.
func NewClient(cfg Config, resolver identity.Resolver, sanitizer *redact.Sanitizer, log zerolog.Logger) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.github.com"
	}
	if cfg.GraphQLURL == "" {
		cfg.GraphQLURL = graphQLURL(cfg.APIBaseURL)
	}
	if cfg.PerPage <= 0 || cfg.PerPage > 100 {
		cfg.PerPage = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.EmailTTL = emailTTLOrDefault(cfg.EmailTTL)

	c := &Client{
		cfg:       cfg,
		http:      httpclients.NewClient("github", cfg.Timeout),
		resolver:  resolver,
		sanitizer: sanitizer,
		pacer:     ingest.NewPacer(cfg.DetailInterval),
		log:       log.With().Str("component", "github-client").Logger(),
		now:       time.Now,
	}

	switch {
	case cfg.AppID != "" && cfg.InstallationID != "" && cfg.PrivateKey != "":
		src, err := NewAppTokenSource(cfg.AppID, cfg.InstallationID, cfg.PrivateKey, cfg.APIBaseURL, c.http)
		if err != nil {
			c.configErr = err
		} else {
			c.tokens = src
		}
	case cfg.Token != "":
		c.tokens = StaticToken(cfg.Token)
	}

	if c.tokens != nil {
		httpClient := &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &authTransport{source: c.tokens},
		}
		c.rest = gh.NewClient(httpClient)
		if base, err := url.Parse(strings.TrimRight(cfg.APIBaseURL, "/") + "/"); err == nil {
			c.rest.BaseURL = base
		}
	}
	return c
}

func (c *Client) ID() string { return ProviderID }

func (c *Client) Validate() error {
	var missing []string
	if c.tokens == nil && c.configErr == nil {
		missing = append(missing, "GITHUB_TOKEN or GITHUB_APP_ID/GITHUB_APP_INSTALLATION_ID/GITHUB_APP_PRIVATE_KEY")
	}
	if len(c.cfg.Repos) == 0 {
		missing = append(missing, "GITHUB_REPOS")
	}
	if len(missing) > 0 {
		return ingest.NewConfigMissing(ProviderID, missing...)
	}
	return c.configErr
}

// FetchPage lists one page of commits of one repository inside the window.
// The continuation token is "repoIndex|page".
func (c *Client) FetchPage(ctx context.Context, w ingest.Window, cursor string) (ingest.Page[commit.Record], error) {
	idx, page, err := decodeCursor(cursor)
	if err != nil {
		return ingest.Page[commit.Record]{}, err
	}
	if idx >= len(c.cfg.Repos) {
		return ingest.Page[commit.Record]{}, nil
	}
	repo := c.cfg.Repos[idx]

	opts := &gh.CommitsListOptions{
		SHA:         repo.Branch,
		Since:       w.Start,
		Until:       w.End.Add(-time.Second),
		ListOptions: gh.ListOptions{Page: page, PerPage: c.cfg.PerPage},
	}
	listed, resp, err := c.rest.Repositories.ListCommits(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		if isEmptyRepository(resp) {
			listed, resp = nil, nil
		} else {
			return ingest.Page[commit.Record]{}, classifyError("list commits "+repo.FullName(), err)
		}
	}

	records := make([]commit.Record, 0, len(listed))
	for _, lc := range listed {
		if len(lc.Parents) > 1 {
			continue
		}
		rec, ok, err := c.buildRecord(ctx, repo, lc, w)
		if err != nil {
			return ingest.Page[commit.Record]{}, err
		}
		if ok {
			records = append(records, rec)
		}
	}

	next := ""
	switch {
	case resp != nil && resp.NextPage != 0:
		next = encodeCursor(idx, resp.NextPage)
	case idx+1 < len(c.cfg.Repos):
		next = encodeCursor(idx+1, 1)
	}
	return ingest.Page[commit.Record]{Items: records, NextCursor: next}, nil
}

func (c *Client) buildRecord(ctx context.Context, repo RepoRef, lc *gh.RepositoryCommit, w ingest.Window) (commit.Record, bool, error) {
	committedAt := lc.GetCommit().GetCommitter().GetDate().Time
	if committedAt.IsZero() {
		committedAt = lc.GetCommit().GetAuthor().GetDate().Time
	}
	committedAt = committedAt.UTC()
	if committedAt.Before(w.Start) || !committedAt.Before(w.End) {
		return commit.Record{}, false, nil
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return commit.Record{}, false, err
	}
	detail, _, err := c.rest.Repositories.GetCommit(ctx, repo.Owner, repo.Name, lc.GetSHA(), nil)
	if err != nil {
		return commit.Record{}, false, classifyError("get commit "+repo.FullName(), err)
	}
	if len(detail.Parents) > 1 {
		return commit.Record{}, false, nil
	}

	email, err := c.resolveEmail(ctx, detail)
	if err != nil {
		return commit.Record{}, false, err
	}

	authorID := ""
	if id := detail.GetAuthor().GetID(); id != 0 {
		authorID = strconv.FormatInt(id, 10)
	}
	message := detail.GetCommit().GetMessage()
	authorName := detail.GetCommit().GetAuthor().GetName()
	rawEmail := detail.GetCommit().GetAuthor().GetEmail()

	rec := commit.Record{
		RepoFullName: repo.FullName(),
		Commit: commit.Commit{
			CommitID:    detail.GetSHA(),
			AuthorEmail: email,
			AuthorID:    authorID,
			CommittedAt: committedAt,
			Message:     message,
			Additions:   detail.GetStats().GetAdditions(),
			Deletions:   detail.GetStats().GetDeletions(),
		},
		Attributions: attribution.DetectAll(message, authorName, rawEmail),
	}
	if email == "" {
		c.log.Debug().
			Str("repo", repo.FullName()).
			Str("commit", detail.GetSHA()).
			Str("author", c.sanitizer.Identity(rawEmail)).
			Msg("commit author email unresolved")
	}
	return rec, true, nil
}

// resolveEmail prefers the commit author email, then the organization
// verified-domain email of the author login, then the identity mapping of
// the author id. An empty result means the author is unresolved.
func (c *Client) resolveEmail(ctx context.Context, rc *gh.RepositoryCommit) (string, error) {
	if email := strings.ToLower(strings.TrimSpace(rc.GetCommit().GetAuthor().GetEmail())); email != "" && !isNoreply(email) {
		return email, nil
	}

	if login := strings.ToLower(rc.GetAuthor().GetLogin()); login != "" {
		emails, err := c.verifiedEmails(ctx)
		if err != nil {
			return "", err
		}
		if email, ok := emails[login]; ok {
			return email, nil
		}
	}

	if id := rc.GetAuthor().GetID(); id != 0 && c.resolver != nil {
		email, ok, err := c.resolver.ResolveEmail(ctx, ProviderID, strconv.FormatInt(id, 10))
		if err != nil {
			return "", fmt.Errorf("resolve github author %d: %w", id, err)
		}
		if ok {
			return email, nil
		}
	}
	return "", nil
}

func isNoreply(email string) bool {
	return strings.HasSuffix(email, "@users.noreply.github.com") || email == "noreply@github.com"
}

// isEmptyRepository matches the 409 GitHub returns when listing commits of
// a repository without any.
func isEmptyRepository(resp *gh.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusConflict
}

// classifyError maps go-github errors to the ingest taxonomy.
func classifyError(op string, err error) error {
	var (
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
		respErr  *gh.ErrorResponse
	)
	switch {
	case errors.As(err, &rateErr):
		retry := time.Until(rateErr.Rate.Reset.Time)
		if retry < 0 {
			retry = 0
		}
		return &ingest.RateLimitError{Provider: ProviderID, StatusCode: statusOf(rateErr.Response), RetryAfter: retry}
	case errors.As(err, &abuseErr):
		return &ingest.RateLimitError{Provider: ProviderID, StatusCode: statusOf(abuseErr.Response), RetryAfter: abuseErr.GetRetryAfter()}
	case errors.As(err, &respErr):
		status := statusOf(respErr.Response)
		if isRateLimitStatus(status, respErr.Response) {
			return &ingest.RateLimitError{Provider: ProviderID, StatusCode: status}
		}
		return &ingest.UpstreamError{Provider: ProviderID, Operation: op, StatusCode: status, Body: respErr.Message}
	default:
		return fmt.Errorf("github %s: %w", op, err)
	}
}

// checkResponse classifies resty responses from the GitHub API.
func checkResponse(op string, resp *resty.Response) error {
	if resp != nil && resp.IsError() && isRateLimitStatus(resp.StatusCode(), resp.RawResponse) {
		return &ingest.RateLimitError{
			Provider:   ProviderID,
			StatusCode: resp.StatusCode(),
			RetryAfter: providers.RetryAfter(resp.Header().Get("Retry-After")),
		}
	}
	return providers.CheckResponse(ProviderID, op, resp)
}

func isRateLimitStatus(status int, resp *http.Response) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status == http.StatusForbidden && resp != nil && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func encodeCursor(repoIdx, page int) string {
	return strconv.Itoa(repoIdx) + "|" + strconv.Itoa(page)
}

func decodeCursor(cursor string) (int, int, error) {
	if cursor == "" {
		return 0, 1, nil
	}
	idxPart, pagePart, ok := strings.Cut(cursor, "|")
	idx, err1 := strconv.Atoi(idxPart)
	page, err2 := strconv.Atoi(pagePart)
	if !ok || err1 != nil || err2 != nil || idx < 0 || page < 1 {
		return 0, 0, fmt.Errorf("github: malformed continuation token %q", cursor)
	}
	return idx, page, nil
}
