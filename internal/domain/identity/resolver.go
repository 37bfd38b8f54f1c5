// Package identity resolves provider identities (API key ids, VCS author
// ids) to emails. The mapping itself is maintained elsewhere; this package
// only reads it.
package identity

import (
	"context"
	"strings"
	"sync"
)

// Resolver returns the email mapped to a provider identity. ok is false when
// no mapping exists.
type Resolver interface {
	ResolveEmail(ctx context.Context, provider, externalID string) (email string, ok bool, err error)
}

// Static is an in-memory resolver keyed by provider and external id.
type Static struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewStatic creates a Static resolver from "provider" -> "externalID" -> email.
func NewStatic(entries map[string]map[string]string) *Static {
	s := &Static{entries: make(map[string]string)}
	for provider, ids := range entries {
		for id, email := range ids {
			s.entries[key(provider, id)] = email
		}
	}
	return s
}

// Set adds or replaces a mapping
func (s *Static) Set(provider, externalID, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key(provider, externalID)] = email
}

// ResolveEmail implements Resolver
func (s *Static) ResolveEmail(ctx context.Context, provider, externalID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email, ok := s.entries[key(provider, externalID)]
	return email, ok && email != "", nil
}

// Chain tries each resolver in order and returns the first hit. An error
// from one resolver stops the chain.
type Chain []Resolver

// ResolveEmail implements Resolver
func (c Chain) ResolveEmail(ctx context.Context, provider, externalID string) (string, bool, error) {
	if strings.TrimSpace(externalID) == "" {
		return "", false, nil
	}
	for _, r := range c {
		if r == nil {
			continue
		}
		email, ok, err := r.ResolveEmail(ctx, provider, externalID)
		if err != nil {
			return "", false, err
		}
		if ok {
			return strings.ToLower(strings.TrimSpace(email)), true, nil
		}
	}
	return "", false, nil
}

func key(provider, externalID string) string {
	return strings.ToLower(provider) + "\x00" + externalID
}
