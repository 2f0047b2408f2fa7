package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WALLET_STORE", "")
	t.Setenv("METADATA_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TokenCurrency != "USD" || cfg.TokenIssuer != defaultTokenIssuer {
		t.Fatalf("unexpected token %s/%s", cfg.TokenCurrency, cfg.TokenIssuer)
	}
	if cfg.Lookahead != 10 || cfg.PollInterval != 3*time.Second || cfg.PollAttempts != 20 {
		t.Fatalf("unexpected ledger defaults %+v", cfg)
	}
	if cfg.WalletSlot != "renmo_wallets" || cfg.WalletStore != StoreFile {
		t.Fatalf("unexpected wallet defaults %+v", cfg)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("LEDGER_LOOKAHEAD", "25")
	t.Setenv("FUNDING_POLL_INTERVAL", "500ms")
	t.Setenv("FUNDING_POLL_ATTEMPTS", "4")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("IDEMPOTENCY_TTL", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LedgerBackend != LedgerMemory || cfg.Lookahead != 25 {
		t.Fatalf("unexpected ledger config %+v", cfg)
	}
	if cfg.PollInterval != 500*time.Millisecond || cfg.PollAttempts != 4 {
		t.Fatalf("unexpected poll config %v x %d", cfg.PollInterval, cfg.PollAttempts)
	}
	if cfg.ShutdownPeriod != 3*time.Second || cfg.IdempotencyTTL != time.Minute {
		t.Fatalf("unexpected durations %v %v", cfg.ShutdownPeriod, cfg.IdempotencyTTL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"FUNDING_POLL_ATTEMPTS": "0",
		"LEDGER_LOOKAHEAD":      "soon",
		"WALLET_STORE":          "floppy",
		"LEDGER_BACKEND":        "mainnet",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadRequiresBackendURLs(t *testing.T) {
	t.Setenv("WALLET_STORE", "redis")
	t.Setenv("REDIS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected REDIS_URL to be required")
	}

	t.Setenv("WALLET_STORE", "file")
	t.Setenv("METADATA_BACKEND", "pinata")
	t.Setenv("PINATA_JWT", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected PINATA_JWT to be required")
	}
}
