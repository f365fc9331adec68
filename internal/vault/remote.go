package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// RemoteConfig holds HashiCorp Vault connection settings for fetching the
// encryption key and brokerage API credentials instead of reading them from
// the environment.
type RemoteConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV v2 secrets engine mount
	SecretPath string `json:"secret_path"` // path under the mount holding app secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RemoteSource reads application secrets from a HashiCorp Vault KV v2 store.
type RemoteSource struct {
	client *api.Client
	config RemoteConfig
}

// NewRemoteSource connects to Vault. When the config is disabled it returns
// (nil, nil) and callers fall back to environment credentials.
func NewRemoteSource(cfg RemoteConfig) (*RemoteSource, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &RemoteSource{client: client, config: cfg}, nil
}

// Secrets fetches the app secret map (encryption key, API key, app secret)
// from the configured KV v2 path.
func (r *RemoteSource) Secrets(ctx context.Context) (map[string]string, error) {
	path := fmt.Sprintf("%s/data/%s", r.config.MountPath, r.config.SecretPath)

	secret, err := r.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secrets found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", path)
	}

	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// EncryptionKey returns the token encryption key stored in Vault, or "" if
// the field is absent.
func (r *RemoteSource) EncryptionKey(ctx context.Context) (string, error) {
	secrets, err := r.Secrets(ctx)
	if err != nil {
		return "", err
	}
	return secrets["token_encryption_key"], nil
}

// Health checks the Vault connection and seal status.
func (r *RemoteSource) Health(ctx context.Context) error {
	health, err := r.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}
