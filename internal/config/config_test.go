package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"APP_CONFIG", "HTTP_ADDR", "DATABASE_URL", "PG_DSN", "APP_ENV", "AUTH_JWT_SECRET",
		"JWT_SECRET", "CATALOG_PATH", "CASE_SEED_PATH", "AUTOMAP_BASE_URL", "AUTOMAP_TOKEN", "AUTOMAP_TIMEOUT",
		"SESSION_TTL", "TENANT_ID", "MAX_BODY_BYTES"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.SessionTTL != 24*time.Hour || cfg.DefaultTenantID != "tenant-demo" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.DatabaseURL != "" || cfg.Production() {
		t.Fatalf("expected in-memory development defaults")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "app.yaml")
	data := []byte(`
http_addr: ":9000"
app_env: production
session_ttl: 2h
automap:
  base_url: http://mapper.local
  timeout: 3s
default_tenant_id: acme
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("APP_CONFIG", path)
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("PG_DSN", "postgres://localhost/psur")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || !cfg.Production() || cfg.DefaultTenantID != "acme" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.AutoMap.BaseURL != "http://mapper.local" || cfg.AutoMap.Timeout != 3*time.Second {
		t.Fatalf("automap values not applied: %+v", cfg.AutoMap)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("env should override file, got %v", cfg.SessionTTL)
	}
	if cfg.DatabaseURL != "postgres://localhost/psur" {
		t.Fatalf("expected PG_DSN fallback, got %q", cfg.DatabaseURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "app.yaml")
	if err := os.WriteFile(path, []byte("default_tenant_id: \" \"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("APP_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected blank tenant to be rejected")
	}

	t.Setenv("APP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing file error")
	}
}
