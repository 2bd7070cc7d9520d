package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	for _, name := range []string{
		"CEREBRAS_API_KEY", "BIXX_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"SERPER_API_KEY", "TURNSTILE_SITE_KEY", "TURNSTILE_SECRET_KEY", "TURNSTILE_SESSION_SECRET",
	} {
		t.Setenv(name, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider != "cerebras" {
		t.Errorf("provider=%q, want cerebras", cfg.Provider)
	}
	if cfg.Chat.HistoryLimit != 24 || cfg.Chat.PlannerHistoryLimit != 12 {
		t.Errorf("history limits = %d/%d", cfg.Chat.HistoryLimit, cfg.Chat.PlannerHistoryLimit)
	}
	if cfg.Chat.MaxTokens != 20000 || cfg.Chat.PlannerMaxTokens != 300 {
		t.Errorf("token limits = %d/%d", cfg.Chat.MaxTokens, cfg.Chat.PlannerMaxTokens)
	}
	if cfg.Turnstile.MaxAge != 30*time.Minute {
		t.Errorf("turnstile max age = %v", cfg.Turnstile.MaxAge)
	}
	if cfg.Search.Enabled() || cfg.Turnstile.Enabled() {
		t.Error("search and turnstile should be disabled without keys")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("BIXX_API_KEY", `["k1","k2"]`)
	t.Setenv("MY_SERPER", "serper-key")

	path := filepath.Join(dir, "pulse.yaml")
	content := `provider: cerebras
search:
  api_key: ${MY_SERPER}
  image_limit: 4
turnstile:
  site_key: "site"
  secret_key: "# not set"
  session_secret: "sess"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := cfg.Cerebras.Keys(); !reflect.DeepEqual(got, []string{"k1", "k2"}) {
		t.Errorf("keys=%v", got)
	}
	if cfg.Search.APIKey != "serper-key" || !cfg.Search.Enabled() {
		t.Errorf("search key=%q", cfg.Search.APIKey)
	}
	if cfg.Search.ImageLimit != 4 {
		t.Errorf("image limit=%d", cfg.Search.ImageLimit)
	}
	if !cfg.Turnstile.Enabled() {
		t.Error("turnstile should be enabled with a site key and session secret")
	}
	if cfg.Turnstile.SigningSecret() != "sess" {
		t.Errorf("signing secret=%q", cfg.Turnstile.SigningSecret())
	}
}

func TestParseKeys(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  single ", []string{"single"}},
		{`["a","b"]`, []string{"a", "b"}},
		{`[broken`, []string{"[broken"}},
	}
	for _, tt := range tests {
		if got := ParseKeys(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseKeys(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{
		Provider:  "anthropic",
		Anthropic: ProviderConfig{Model: "claude-sonnet-4-5"},
		OpenAI:    ProviderConfig{Model: "gpt-5.2"},
	}

	cfg.ApplyOverrides("openai", "gpt-4o")
	if cfg.Provider != "openai" {
		t.Fatalf("provider=%q, want %q", cfg.Provider, "openai")
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Fatalf("openai model=%q, want %q", cfg.OpenAI.Model, "gpt-4o")
	}
	if cfg.Anthropic.Model != "claude-sonnet-4-5" {
		t.Fatalf("anthropic model changed unexpectedly: %q", cfg.Anthropic.Model)
	}

	if _, err := (&Config{Provider: "nope"}).Active(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	isolate(t)
	if got := LoadToken(); got != "" {
		t.Fatalf("LoadToken() = %q, want empty", got)
	}
	if err := SaveToken("abc123"); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	if got := LoadToken(); got != "abc123" {
		t.Errorf("LoadToken() = %q, want %q", got, "abc123")
	}
}
