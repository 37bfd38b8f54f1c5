package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"resty.dev/v3"

	"github.com/janhq/usage-sync/internal/infrastructure/providers"
)

// TokenSource yields a bearer token for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a personal access token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// tokenCache holds the current installation token. The owning
// AppTokenSource refreshes it lazily under mu.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// AppTokenSource exchanges a GitHub App JWT for installation tokens.
type AppTokenSource struct {
	appID          string
	installationID string
	key            *rsa.PrivateKey
	apiBaseURL     string
	http           *resty.Client
	// refreshBuffer renews the token this long before it expires.
	refreshBuffer time.Duration
	now           func() time.Time

	cache tokenCache
}

// NewAppTokenSource parses the PEM private key and returns a token source.
func NewAppTokenSource(appID, installationID, privateKeyPEM, apiBaseURL string, client *resty.Client) (*AppTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalizePEM(privateKeyPEM)))
	if err != nil {
		return nil, fmt.Errorf("parse github app private key: %w", err)
	}
	return &AppTokenSource{
		appID:          appID,
		installationID: installationID,
		key:            key,
		apiBaseURL:     apiBaseURL,
		http:           client,
		refreshBuffer:  5 * time.Minute,
		now:            time.Now,
	}, nil
}

// Token returns the cached installation token, exchanging a fresh one when
// it is missing or about to expire.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()

	if s.cache.token != "" && s.now().Add(s.refreshBuffer).Before(s.cache.expiresAt) {
		return s.cache.token, nil
	}

	appJWT, err := s.signJWT()
	if err != nil {
		return "", err
	}

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetAuthToken(appJWT).
		SetHeader("Accept", "application/vnd.github+json").
		SetResult(&out).
		Post(providers.Endpoint(s.apiBaseURL, "/app/installations/"+s.installationID+"/access_tokens"))
	if err != nil {
		return "", fmt.Errorf("github installation token: %w", err)
	}
	if err := providers.CheckResponse(ProviderID, "installation token", resp); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("github installation token: empty token in response")
	}

	s.cache.token = out.Token
	s.cache.expiresAt = out.ExpiresAt
	if s.cache.expiresAt.IsZero() {
		s.cache.expiresAt = s.now().Add(time.Hour)
	}
	return s.cache.token, nil
}

func (s *AppTokenSource) signJWT() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer: s.appID,
		// GitHub rejects an iat ahead of its clock.
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign github app jwt: %w", err)
	}
	return signed, nil
}

// normalizePEM restores newlines in keys passed through single-line env vars.
func normalizePEM(pem string) string {
	return strings.ReplaceAll(strings.TrimSpace(pem), `\n`, "\n")
}

// authTransport injects the bearer token into go-github requests.
type authTransport struct {
	source TokenSource
	base   http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token(req.Context())
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}
