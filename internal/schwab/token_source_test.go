package schwab

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"schwab-invest-bot/internal/vault"
)

func newTokenStore(t *testing.T, tokens map[string]interface{}) *vault.Store {
	t.Helper()

	enc, err := vault.NewTokenEncryption("test-passphrase")
	if err != nil {
		t.Fatalf("NewTokenEncryption failed: %v", err)
	}
	store := vault.NewStore(enc, filepath.Join(t.TempDir(), "tokens.enc"), nil)
	if err := store.Save(tokens); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return store
}

func TestVaultTokenSource(t *testing.T) {
	store := newTokenStore(t, map[string]interface{}{
		"access_token": "live-token",
		"expires_at":   time.Now().Add(time.Hour).Format(time.RFC3339),
	})

	src := NewVaultTokenSource(store)
	token, err := src.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "live-token" {
		t.Errorf("token = %q", token)
	}

	// Second call serves from cache.
	token, err = src.AccessToken(context.Background())
	if err != nil || token != "live-token" {
		t.Errorf("cached read = %q, %v", token, err)
	}
}

func TestVaultTokenSourceExpired(t *testing.T) {
	store := newTokenStore(t, map[string]interface{}{
		"access_token": "stale-token",
		"expires_at":   time.Now().Add(-time.Hour).Format(time.RFC3339),
	})

	if _, err := NewVaultTokenSource(store).AccessToken(context.Background()); err == nil {
		t.Error("expected error for expired token")
	} else if !strings.Contains(err.Error(), "expired") {
		t.Errorf("err = %v, want mention of expiry", err)
	}
}

func TestVaultTokenSourceMissingToken(t *testing.T) {
	store := newTokenStore(t, map[string]interface{}{"refresh_token": "only-refresh"})

	if _, err := NewVaultTokenSource(store).AccessToken(context.Background()); err == nil {
		t.Error("expected error for missing access_token")
	}
}
