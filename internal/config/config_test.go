package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(newViper(map[string]any{"ADMIN_ACCOUNT": "0xAdmin"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != defaultPort || cfg.AppEnv != defaultAppEnv {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DeployerAccount != "0xAdmin" {
		t.Fatalf("deployer should default to admin, got %q", cfg.DeployerAccount)
	}
	if cfg.TreasuryAccount != defaultTreasury || cfg.InitialSupply != defaultInitialSupply {
		t.Fatalf("unexpected treasury defaults: %+v", cfg)
	}
	if cfg.TokenDecimals != 18 {
		t.Fatalf("expected 18 decimals, got %d", cfg.TokenDecimals)
	}
	if cfg.JWTSecret != devJWTSecret {
		t.Fatalf("expected dev secret in development")
	}
	if cfg.ShutdownPeriod != defaultShutdownDelay || cfg.IdempotencyTTL != defaultIdempotencyTTL || cfg.TokenTTL != time.Hour {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestFromViperRequiresAdmin(t *testing.T) {
	if _, err := FromViper(newViper(nil)); err == nil {
		t.Fatal("expected error without ADMIN_ACCOUNT")
	}
}

func TestFromViperRequiresSecretOutsideDev(t *testing.T) {
	_, err := FromViper(newViper(map[string]any{"ADMIN_ACCOUNT": "admin", "APP_ENV": "production"}))
	if err == nil {
		t.Fatal("expected error without JWT_SECRET in production")
	}
	cfg, err := FromViper(newViper(map[string]any{"ADMIN_ACCOUNT": "admin", "APP_ENV": "production", "JWT_SECRET": "s3cret"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IsDev() {
		t.Fatal("production must not be dev")
	}
}

func TestFromViperDurations(t *testing.T) {
	cfg, err := FromViper(newViper(map[string]any{
		"ADMIN_ACCOUNT":            "admin",
		"SHUTDOWN_TIMEOUT_SECONDS": "3",
		"IDEMPOTENCY_TTL":          "90m",
		"TOKEN_TTL":                "15m",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("expected 3s shutdown, got %s", cfg.ShutdownPeriod)
	}
	if cfg.IdempotencyTTL != 90*time.Minute {
		t.Fatalf("expected 90m ttl, got %s", cfg.IdempotencyTTL)
	}
	if cfg.TokenTTL != 15*time.Minute {
		t.Fatalf("expected 15m token ttl, got %s", cfg.TokenTTL)
	}

	if _, err := FromViper(newViper(map[string]any{"ADMIN_ACCOUNT": "admin", "SHUTDOWN_TIMEOUT_SECONDS": "abc"})); err == nil {
		t.Fatal("expected invalid shutdown error")
	}
}
