package schwab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"schwab-invest-bot/internal/vault"
)

// VaultTokenSource supplies access tokens from the encrypted token store.
// Token acquisition and refresh happen out of process (the OAuth flow is a
// separate tool); this source only reads what that flow saved, and fails
// loudly when the stored token has expired.
type VaultTokenSource struct {
	store *vault.Store

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewVaultTokenSource creates a token source over the given store.
func NewVaultTokenSource(store *vault.Store) *VaultTokenSource {
	return &VaultTokenSource{store: store}
}

// AccessToken returns the stored access token, reloading from disk when the
// cached copy is within a minute of expiry.
func (v *VaultTokenSource) AccessToken(ctx context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.token != "" && time.Until(v.expires) > time.Minute {
		return v.token, nil
	}

	tokens, err := v.store.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load token store: %w", err)
	}

	raw, ok := tokens["access_token"].(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("token store has no access_token; run the auth flow")
	}

	expires := time.Time{}
	if expStr, ok := tokens["expires_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, expStr); err == nil {
			expires = t
		}
	}
	if !expires.IsZero() && time.Until(expires) <= time.Minute {
		return "", fmt.Errorf("stored access token expired at %s; run the auth flow", expires.Format(time.RFC3339))
	}

	v.token = raw
	v.expires = expires
	return v.token, nil
}

// StaticTokenSource returns a fixed token, for tests and mock mode.
type StaticTokenSource string

func (s StaticTokenSource) AccessToken(context.Context) (string, error) {
	return string(s), nil
}
