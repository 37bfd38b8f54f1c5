package github

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/janhq/usage-sync/internal/domain/ingest"
	"github.com/janhq/usage-sync/internal/infrastructure/providers"
)

const verifiedEmailsQuery = `query($org: String!, $cursor: String) {
  organization(login: $org) {
    membersWithRole(first: 100, after: $cursor) {
      pageInfo { hasNextPage endCursor }
      nodes { login organizationVerifiedDomainEmails(login: $org) }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type verifiedEmailsResponse struct {
	Data struct {
		Organization *struct {
			MembersWithRole struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Nodes []struct {
					Login  string   `json:"login"`
					Emails []string `json:"organizationVerifiedDomainEmails"`
				} `json:"nodes"`
			} `json:"membersWithRole"`
		} `json:"organization"`
	} `json:"data"`
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

// verifiedEmails returns lowercased login -> verified-domain email for the
// organization members, cached for emailTTL. A failed lookup degrades to the
// last known table unless the upstream is rate limiting.
func (c *Client) verifiedEmails(ctx context.Context) (map[string]string, error) {
	if c.cfg.Org == "" {
		return nil, nil
	}

	c.emailMu.Lock()
	defer c.emailMu.Unlock()
	if c.emails != nil && c.now().Sub(c.emailsLoaded) < c.cfg.EmailTTL {
		return c.emails, nil
	}

	emails, err := c.loadVerifiedEmails(ctx)
	if err != nil {
		if errors.Is(err, ingest.ErrRateLimited) {
			return nil, err
		}
		c.log.Warn().Err(err).Str("org", c.cfg.Org).Msg("verified domain email lookup failed")
		if c.emails == nil {
			c.emails = map[string]string{}
		}
		c.emailsLoaded = c.now()
		return c.emails, nil
	}
	c.emails = emails
	c.emailsLoaded = c.now()
	return emails, nil
}

func (c *Client) loadVerifiedEmails(ctx context.Context) (map[string]string, error) {
	emails := make(map[string]string)
	var cursor *string
	for {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		var out verifiedEmailsResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetBody(graphQLRequest{
				Query:     verifiedEmailsQuery,
				Variables: map[string]any{"org": c.cfg.Org, "cursor": cursor},
			}).
			SetResult(&out).
			Post(c.cfg.GraphQLURL)
		if err != nil {
			return nil, fmt.Errorf("github graphql: %w", err)
		}
		if err := checkResponse("verified emails", resp); err != nil {
			return nil, err
		}
		if len(out.Errors) > 0 {
			if strings.EqualFold(out.Errors[0].Type, "RATE_LIMITED") {
				return nil, &ingest.RateLimitError{Provider: ProviderID, StatusCode: resp.StatusCode()}
			}
			return nil, fmt.Errorf("github graphql: %s", out.Errors[0].Message)
		}
		org := out.Data.Organization
		if org == nil {
			return nil, fmt.Errorf("github graphql: organization %q not visible", c.cfg.Org)
		}
		for _, n := range org.MembersWithRole.Nodes {
			if len(n.Emails) > 0 && n.Login != "" {
				emails[strings.ToLower(n.Login)] = strings.ToLower(n.Emails[0])
			}
		}
		if !org.MembersWithRole.PageInfo.HasNextPage {
			return emails, nil
		}
		next := org.MembersWithRole.PageInfo.EndCursor
		cursor = &next
	}
}

// graphQLURL derives the GraphQL endpoint from a REST base URL.
func graphQLURL(apiBaseURL string) string {
	base := strings.TrimRight(apiBaseURL, "/")
	if strings.HasSuffix(base, "/api/v3") {
		return strings.TrimSuffix(base, "/v3") + "/graphql"
	}
	return providers.Endpoint(base, "/graphql")
}

func emailTTLOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
