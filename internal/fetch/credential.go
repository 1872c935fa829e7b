// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dugout/internal/logging"
	"github.com/tomtom215/dugout/internal/metrics"
)

// Credential is a currently-valid bearer credential for the upstream API.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the credential is past its expiry.
// Zero ExpiresAt means the credential never expires (static tokens).
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// CredentialProvider supplies a currently-valid access credential and
// refreshes it on expiry. The fetch client treats this as an opaque
// capability; refresh failures propagate as terminal fetch errors.
type CredentialProvider interface {
	Credential(ctx context.Context) (Credential, error)
	Refresh(ctx context.Context) (Credential, error)
}

// StaticProvider serves a fixed token. Refresh returns the same token; an
// upstream rejection of a static token is therefore terminal on the second
// consecutive rejection.
type StaticProvider struct {
	token string
}

// NewStaticProvider creates a provider around a fixed bearer token.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

func (p *StaticProvider) Credential(_ context.Context) (Credential, error) {
	return Credential{Token: p.token}, nil
}

func (p *StaticProvider) Refresh(_ context.Context) (Credential, error) {
	return Credential{Token: p.token}, nil
}

// TokenEndpointProvider obtains short-lived bearer tokens from a token
// endpoint using client credentials, caching the token until expiry.
// Safe for concurrent use by all fetch workers.
type TokenEndpointProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu      sync.Mutex
	current Credential
}

// NewTokenEndpointProvider creates a refreshing credential provider.
func NewTokenEndpointProvider(tokenURL, clientID, clientSecret string, timeout time.Duration) *TokenEndpointProvider {
	return &TokenEndpointProvider{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Credential returns the cached token, fetching a fresh one if the cache is
// empty or expired.
func (p *TokenEndpointProvider) Credential(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Token != "" && !p.current.Expired(time.Now()) {
		return p.current, nil
	}
	return p.fetchLocked(ctx)
}

// Refresh discards the cached token and fetches a fresh one.
func (p *TokenEndpointProvider) Refresh(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	metrics.CredentialRefreshesTotal.Inc()
	return p.fetchLocked(ctx)
}

// tokenResponse is the token endpoint's reply. Both expires_at (RFC 3339)
// and expires_in (seconds) forms are accepted.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	ExpiresIn   int    `json:"expires_in"`
}

// fetchLocked requests a new token. Must be called with mu held.
func (p *TokenEndpointProvider) fetchLocked(ctx context.Context) (Credential, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     p.clientID,
		"client_secret": p.clientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return Credential{}, fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credential{}, fmt.Errorf("token endpoint returned %d %s", resp.StatusCode, resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Credential{}, fmt.Errorf("decode token response: %w", err)
	}

	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return Credential{}, fmt.Errorf("token endpoint returned an empty token")
	}

	cred := Credential{Token: token}
	switch {
	case tr.ExpiresAt != "":
		at, err := time.Parse(time.RFC3339, tr.ExpiresAt)
		if err != nil {
			return Credential{}, fmt.Errorf("parse token expires_at: %w", err)
		}
		cred.ExpiresAt = at
	case tr.ExpiresIn > 0:
		cred.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	p.current = cred
	logging.Debug().Time("expires_at", cred.ExpiresAt).Msg("Obtained fresh upstream credential")

	return cred, nil
}
