package client

import (
	"context"
	"sync"
)

// TokenProvider supplies bearer tokens for the chat stream endpoint.
// RefreshAfter is called once after a 401, passing the token that was
// rejected, so the provider can tell a stale caller from the first one to
// notice expiry.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	RefreshAfter(ctx context.Context, stale string) (string, error)
}

// SingleFlightTokenProvider caches a token from Source and deduplicates
// concurrent refreshes: when several requests race against an expiring
// token, exactly one Source call replaces it and the rest reuse the result.
type SingleFlightTokenProvider struct {
	// Source fetches a fresh token, e.g. from the platform's identity
	// service.
	Source func(ctx context.Context) (string, error)

	mu    sync.Mutex
	token string
}

func (p *SingleFlightTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}
	return p.fetchLocked(ctx)
}

func (p *SingleFlightTokenProvider) RefreshAfter(ctx context.Context, stale string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Someone else already replaced the stale token while we waited.
	if p.token != "" && p.token != stale {
		return p.token, nil
	}
	p.token = ""
	return p.fetchLocked(ctx)
}

func (p *SingleFlightTokenProvider) fetchLocked(ctx context.Context) (string, error) {
	t, err := p.Source(ctx)
	if err != nil {
		return "", err
	}
	p.token = t
	return t, nil
}
