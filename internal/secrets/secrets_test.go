package secrets

import (
	"context"
	"testing"

	"btc-advisor-bot/config"
)

func TestResolverPassesThroughWhenVaultDisabled(t *testing.T) {
	r, err := New(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	apiKey, secretKey, err := r.ExchangeCredentials(context.Background(), config.ExchangeConfig{APIKey: "k", SecretKey: "s"})
	if err != nil {
		t.Fatalf("ExchangeCredentials: %v", err)
	}
	if apiKey != "k" || secretKey != "s" {
		t.Errorf("got (%q, %q), want (%q, %q)", apiKey, secretKey, "k", "s")
	}

	advisorKey, err := r.AdvisorAPIKey(context.Background(), config.AdvisorConfig{APIKey: "adv"})
	if err != nil {
		t.Fatalf("AdvisorAPIKey: %v", err)
	}
	if advisorKey != "adv" {
		t.Errorf("advisorKey = %q, want %q", advisorKey, "adv")
	}
}

func TestGetStringMissingKeyReturnsEmpty(t *testing.T) {
	if got := getString(map[string]interface{}{"a": "b"}, "missing"); got != "" {
		t.Errorf("getString = %q, want empty", got)
	}
}
