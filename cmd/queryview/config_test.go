package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/tinytelemetry/queryview/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := loadConfig("", nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.DBPath != filepath.Join(home, ".local", "share", "queryview", "queryview.duckdb") {
		t.Fatalf("db-path = %q", cfg.DBPath)
	}
	if cfg.APIAddr != "127.0.0.1:3000" {
		t.Fatalf("api-addr = %q", cfg.APIAddr)
	}
	if cfg.BaseURL != "http://127.0.0.1:3000" {
		t.Fatalf("base-url = %q", cfg.BaseURL)
	}
	if cfg.QueryTimeout != model.DefaultQueryTimeout {
		t.Fatalf("query-timeout = %v", cfg.QueryTimeout)
	}
	if !cfg.JournalEnabled || cfg.BackupEnabled {
		t.Fatalf("journal/backup defaults = %v/%v", cfg.JournalEnabled, cfg.BackupEnabled)
	}
	if cfg.User.Name != "local" || !cfg.User.HasPermission(model.PermEditQuery) {
		t.Fatalf("user = %+v", cfg.User)
	}
	if cfg.ConfigPath != "" {
		t.Fatalf("config path = %q, want empty without a file", cfg.ConfigPath)
	}
}

func TestLoadConfig_FileEnvAndFlags(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("QUERYVIEW_MAX_RESULT_ROWS", "50")

	path := writeConfig(t, `
db-path: ~/data/catalog.duckdb
api-port: 8080
query-timeout: 5s
redis-addr: localhost:6379
user:
  name: viewer
  permissions: [view_query]
`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("api-addr", "", "")
	if err := flags.Parse([]string{"--api-addr", "0.0.0.0:9999"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(path, flags)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.DBPath != filepath.Join(home, "data", "catalog.duckdb") {
		t.Fatalf("db-path = %q", cfg.DBPath)
	}
	if cfg.APIPort != 8080 || cfg.APIAddr != "0.0.0.0:9999" {
		t.Fatalf("api = %d %q", cfg.APIPort, cfg.APIAddr)
	}
	if cfg.QueryTimeout != 5*time.Second {
		t.Fatalf("query-timeout = %v", cfg.QueryTimeout)
	}
	if cfg.MaxResultRows != 50 {
		t.Fatalf("max-result-rows = %d, want env override 50", cfg.MaxResultRows)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("redis-addr = %q", cfg.RedisAddr)
	}
	if cfg.User.Name != "viewer" || cfg.User.HasPermission(model.PermEditQuery) {
		t.Fatalf("user = %+v", cfg.User)
	}
	if cfg.ConfigPath != path {
		t.Fatalf("config path = %q", cfg.ConfigPath)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cases := map[string]string{
		"api port":    "api-port: 70000\n",
		"concurrency": "max-concurrent-queries: 0\n",
		"rows":        "max-result-rows: -1\n",
	}
	for name, body := range cases {
		if _, err := loadConfig(writeConfig(t, body), nil); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := loadConfig(writeConfig(t, "db-path: [unterminated\n"), nil); err == nil {
		t.Fatal("expected parse error")
	}
}
