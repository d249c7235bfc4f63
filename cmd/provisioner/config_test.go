package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-provisioning/core"
)

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadConfig_DefaultsWithoutFileOrEnv(t *testing.T) {
	cfg, err := loadConfig(context.Background(), "", mapLookup(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	defaults := core.DefaultConfig()
	if cfg.HTTP.Address != defaults.HTTP.Address {
		t.Fatalf("expected default address, got %q", cfg.HTTP.Address)
	}
	if !cfg.Stores.Memory.Enabled {
		t.Fatalf("expected memory store enabled by default")
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provisioner.yaml")
	doc := []byte(`
service_name: edge
http:
  address: ":9000"
readiness:
  strategy: exponential
  max_duration: 90s
  endpoints:
    - db:5432
tenancy:
  max_projects_per_account: 5
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(context.Background(), path, mapLookup(map[string]string{
		"PROVISIONER_HTTP_ADDRESS":         ":9100",
		"PROVISIONER_READINESS_ENDPOINTS":  "db:5432, cache:6379",
		"PROVISIONER_STORES_REDIS_ENABLED": "true",
		"PROVISIONER_STORES_REDIS_ADDR":    "cache:6379",
		"PROVISIONER_STORES_REDIS_DB":      "2",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "edge" {
		t.Fatalf("expected file service name, got %q", cfg.ServiceName)
	}
	if cfg.HTTP.Address != ":9100" {
		t.Fatalf("expected env address, got %q", cfg.HTTP.Address)
	}
	if cfg.Readiness.Strategy != core.ReadinessStrategyExponential || cfg.Readiness.MaxDuration != 90*time.Second {
		t.Fatalf("unexpected readiness config %#v", cfg.Readiness)
	}
	if len(cfg.Readiness.Endpoints) != 2 || cfg.Readiness.Endpoints[1] != "cache:6379" {
		t.Fatalf("expected env endpoints, got %#v", cfg.Readiness.Endpoints)
	}
	if !cfg.Stores.Redis.Enabled || cfg.Stores.Redis.Addr != "cache:6379" || cfg.Stores.Redis.DB != 2 {
		t.Fatalf("unexpected redis config %#v", cfg.Stores.Redis)
	}
	if cfg.Tenancy.MaxProjectsPerAccount != 5 {
		t.Fatalf("expected file project limit, got %d", cfg.Tenancy.MaxProjectsPerAccount)
	}
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	if _, err := loadConfig(context.Background(), "", mapLookup(map[string]string{
		"PROVISIONER_STORES_REDIS_ENABLED": "maybe",
	})); err == nil {
		t.Fatalf("expected unparsable bool to fail")
	}
	if _, err := loadConfig(context.Background(), "", mapLookup(map[string]string{
		"PROVISIONER_READINESS_STRATEGY": "random",
	})); err == nil {
		t.Fatalf("expected unsupported strategy to fail validation")
	}
	if _, err := loadConfig(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), mapLookup(nil)); err == nil {
		t.Fatalf("expected missing config file to fail")
	}
}
