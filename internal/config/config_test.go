package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Session.DefaultPolicy != "hwm" {
		t.Errorf("default policy = %q", cfg.Session.DefaultPolicy)
	}
	if cfg.Server.ShutdownTimeout.Duration != 10*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout.Duration)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
server:
  addr: ":9999"
  shutdown_timeout: 3s
session:
  default_policy: simple
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ShutdownTimeout.Duration != 3*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout.Duration)
	}
	if cfg.Session.DefaultPolicy != "simple" {
		t.Errorf("policy = %q", cfg.Session.DefaultPolicy)
	}
	// Untouched sections keep their defaults.
	if cfg.OKX.BaseURL != "https://www.okx.com" {
		t.Errorf("okx base url = %q", cfg.OKX.BaseURL)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9999"
`)
	t.Setenv("ROI_SERVER_ADDR", ":7777")
	t.Setenv("ROI_OKX_API_KEY", "env-okx-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("env override lost: addr = %q", cfg.Server.Addr)
	}
	if cfg.OKX.Key != "env-okx-key" {
		t.Errorf("okx key = %q", cfg.OKX.Key)
	}
}

func TestLoad_InvalidPolicyRejected(t *testing.T) {
	path := writeConfig(t, `
session:
  default_policy: martingale
`)
	if _, err := Load(path); err == nil {
		t.Fatal("invalid policy must fail validation")
	}
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("postgres enabled without DSN must fail validation")
	}
}

func TestRedacted_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.OKX.Key = "super-secret-key"

	s := cfg.Redacted()
	if strings.Contains(s, "super-secret-key") {
		t.Errorf("secret leaked into %q", s)
	}
	if !strings.Contains(s, "supe****") {
		t.Errorf("redacted prefix missing from %q", s)
	}
}
