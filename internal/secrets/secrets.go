// Package secrets resolves the exchange and advisor API key material
// (SPEC_FULL.md §6.5), optionally backed by HashiCorp Vault. Grounded
// on the teacher's internal/vault/client.go, trimmed from its
// multi-tenant per-userID APIKeyData/Store/Get/Delete/Rotate/ListKeys
// surface to the single pair of credentials this system needs: there
// is one exchange account and one advisor API key, not a per-customer
// vault tree.
package secrets

import (
	"context"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"btc-advisor-bot/config"
)

// Resolver yields the exchange and advisor credentials the rest of the
// system needs to start. When cfg.Vault.Enabled is false it is a thin
// pass-through over the plain config values.
type Resolver struct {
	cfg    config.VaultConfig
	client *vaultapi.Client
}

// New builds a Resolver. If cfg.Enabled, it opens a Vault client
// immediately (matching the teacher's NewClient) so a bad address or
// token surfaces at startup rather than on first credential read.
func New(cfg config.VaultConfig) (*Resolver, error) {
	if !cfg.Enabled {
		return &Resolver{cfg: cfg}, nil
	}

	vc := vaultapi.DefaultConfig()
	vc.Address = cfg.Address
	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vc.ConfigureTLS(&vaultapi.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configure vault TLS: %w", err)
		}
	}

	client, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Resolver{cfg: cfg, client: client}, nil
}

// ExchangeCredentials returns the Binance API key/secret, read from
// Vault at <MountPath>/<SecretPath>/exchange when enabled, otherwise taken
// verbatim from exchange.api_key/secret_key in the config file.
func (r *Resolver) ExchangeCredentials(ctx context.Context, fallback config.ExchangeConfig) (apiKey, secretKey string, err error) {
	if !r.cfg.Enabled {
		return fallback.APIKey, fallback.SecretKey, nil
	}
	data, err := r.read(ctx, "exchange")
	if err != nil {
		return "", "", err
	}
	return getString(data, "api_key"), getString(data, "secret_key"), nil
}

// AdvisorAPIKey returns the LLM advisor's API key, read from Vault at
// <MountPath>/<SecretPath>/advisor when enabled, otherwise taken verbatim
// from advisor.api_key in the config file.
func (r *Resolver) AdvisorAPIKey(ctx context.Context, fallback config.AdvisorConfig) (string, error) {
	if !r.cfg.Enabled {
		return fallback.APIKey, nil
	}
	data, err := r.read(ctx, "advisor")
	if err != nil {
		return "", err
	}
	return getString(data, "api_key"), nil
}

func (r *Resolver) read(ctx context.Context, leaf string) (map[string]interface{}, error) {
	path := fmt.Sprintf("%s/%s/%s", r.cfg.MountPath, r.cfg.SecretPath, leaf)

	secret, err := r.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read vault secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault secret %s not found", path)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("vault secret %s: unexpected KV v2 shape", path)
	}
	return data, nil
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
