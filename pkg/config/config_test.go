package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "purple.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom("", envMap(map[string]string{"GOOGLE_API_KEY": "k"}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr() != "0.0.0.0:9009" || cfg.Provider != "gemini" || cfg.MaxRetries != 2 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.AgentID != "Purple-Agent-gemini-3-pro-preview" || cfg.APIKey != "k" {
		t.Fatalf("agent=%q key=%q", cfg.AgentID, cfg.APIKey)
	}
	if cfg.Rules.MaxTurn != 90 || cfg.Rules.AllowPass || cfg.StoreBackend != BackendAuto {
		t.Fatalf("rules=%+v backend=%q", cfg.Rules, cfg.StoreBackend)
	}
}

func TestLoadFrom_Precedence(t *testing.T) {
	path := writeFile(t, `
port: 8000
model: gemini-2.5-flash
max_retries: 4
request_timeout: 30s
store:
  url: "sqlite:file::memory:?cache=shared"
  backend: sql
rules:
  allow_pass: true
  enforce_phase: true
extract:
  command: .move
`)
	cfg, err := LoadFrom(path, envMap(map[string]string{
		"PURPLE_MAX_RETRIES":     "1",
		"PURPLE_ATTEMPT_TIMEOUT": "5s",
		"PURPLE_ALLOW_PASS":      "false",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8000 || cfg.Model != "gemini-2.5-flash" || cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.MaxRetries != 1 || cfg.AttemptTimeout != 5*time.Second || cfg.Rules.AllowPass || !cfg.Rules.EnforcePhase {
		t.Fatalf("env did not win: %+v", cfg)
	}
	if cfg.StoreBackend != BackendSQL || !strings.HasPrefix(cfg.DatabaseURL, "sqlite:") || cfg.CommandQuery != ".move" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.AgentID != "Purple-Agent-gemini-2.5-flash" {
		t.Fatalf("agent id=%q", cfg.AgentID)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{name: "bad yaml", yaml: "port: [", want: "parse"},
		{name: "bad duration", env: map[string]string{"PURPLE_REQUEST_TIMEOUT": "soon"}, want: "PURPLE_REQUEST_TIMEOUT"},
		{name: "bad retries", env: map[string]string{"PURPLE_MAX_RETRIES": "two"}, want: "PURPLE_MAX_RETRIES"},
		{name: "negative retries", env: map[string]string{"PURPLE_MAX_RETRIES": "-1"}, want: "max_retries"},
		{name: "bad turn", yaml: "rules:\n  max_turn: 45\n", want: "max_turn"},
		{name: "bad backend", env: map[string]string{"PURPLE_STORE_BACKEND": "ent"}, want: "backend"},
		{name: "bad url", env: map[string]string{"PURPLE_DATABASE_URL": "mysql://x"}, want: "database url"},
	}
	for _, tc := range cases {
		path := ""
		if tc.yaml != "" {
			path = writeFile(t, tc.yaml)
		}
		_, err := LoadFrom(path, envMap(tc.env))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err=%v want %q", tc.name, err, tc.want)
		}
	}
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestCredentials(t *testing.T) {
	cfg, err := LoadFrom("", envMap(map[string]string{"PURPLE_PROVIDER": "openai", "OPENAI_API_KEY": "sk-test"}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "sk-test" || !cfg.RequiresCredential() || cfg.Model != "gpt-5-nano" || cfg.AgentID != "Purple-Agent-gpt-5-nano" {
		t.Fatalf("cfg=%+v", cfg)
	}
	cfg.BaseURL = "http://localhost:11434/v1"
	if cfg.RequiresCredential() {
		t.Fatal("local openai-compatible server should not need a key")
	}
	cfg.Provider = "fake"
	if cfg.RequiresCredential() {
		t.Fatal("fake provider needs no key")
	}
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "": slog.LevelInfo, "loud": slog.LevelInfo} {
		if got := (Config{LogLevel: in}).SlogLevel(); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}
