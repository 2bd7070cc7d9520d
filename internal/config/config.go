package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Provider  string          `mapstructure:"provider" yaml:"provider"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Cerebras  ProviderConfig  `mapstructure:"cerebras" yaml:"cerebras"`
	OpenAI    ProviderConfig  `mapstructure:"openai" yaml:"openai"`
	Anthropic ProviderConfig  `mapstructure:"anthropic" yaml:"anthropic"`
	Gemini    ProviderConfig  `mapstructure:"gemini" yaml:"gemini"`
	Chat      ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Turnstile TurnstileConfig `mapstructure:"turnstile" yaml:"turnstile"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Client    ClientConfig    `mapstructure:"client" yaml:"client"`
}

// ProviderConfig configures one model backend. APIKey may hold a single
// key or a JSON array of keys; APIKeys adds more.
type ProviderConfig struct {
	APIKey  string   `mapstructure:"api_key" yaml:"api_key,omitempty"`
	APIKeys []string `mapstructure:"api_keys" yaml:"api_keys,omitempty"`
	Model   string   `mapstructure:"model" yaml:"model"`
	BaseURL string   `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// Keys returns the full credential pool for the provider.
func (p ProviderConfig) Keys() []string {
	keys := append([]string(nil), p.APIKeys...)
	return append(keys, ParseKeys(p.APIKey)...)
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	SessionTTL   time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`     // idle chat sessions are evicted after this
	MaxSessions  int           `mapstructure:"max_sessions" yaml:"max_sessions"`   // oldest idle session evicted beyond this
	CookieSecure bool          `mapstructure:"cookie_secure" yaml:"cookie_secure"` // mark cookies Secure (production)
	CORSOrigins  []string      `mapstructure:"cors_origins" yaml:"cors_origins,omitempty"`
}

type ChatConfig struct {
	Model               string  `mapstructure:"model" yaml:"model,omitempty"`         // override the provider model
	PlannerModel        string  `mapstructure:"planner_model" yaml:"planner_model,omitempty"`
	Temperature         float32 `mapstructure:"temperature" yaml:"temperature"`
	TopP                float32 `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens           int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	PlannerTemperature  float32 `mapstructure:"planner_temperature" yaml:"planner_temperature"`
	PlannerMaxTokens    int     `mapstructure:"planner_max_tokens" yaml:"planner_max_tokens"`
	HistoryLimit        int     `mapstructure:"history_limit" yaml:"history_limit"`
	PlannerHistoryLimit int     `mapstructure:"planner_history_limit" yaml:"planner_history_limit"`
	SystemPromptFile    string  `mapstructure:"system_prompt_file" yaml:"system_prompt_file,omitempty"`
	CaptureFile         string  `mapstructure:"capture_file" yaml:"capture_file,omitempty"` // raw model output is written here when set
}

type SearchConfig struct {
	APIKey            string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	InfoLimit         int           `mapstructure:"info_limit" yaml:"info_limit"`
	ImageLimit        int           `mapstructure:"image_limit" yaml:"image_limit"`
	VideoLimit        int           `mapstructure:"video_limit" yaml:"video_limit"`
}

// Enabled reports whether a search provider is configured.
func (s SearchConfig) Enabled() bool {
	return usable(s.APIKey)
}

type TurnstileConfig struct {
	SiteKey       string        `mapstructure:"site_key" yaml:"site_key,omitempty"`
	SecretKey     string        `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
	SessionSecret string        `mapstructure:"session_secret" yaml:"session_secret,omitempty"` // defaults to SecretKey
	VerifyURL     string        `mapstructure:"verify_url" yaml:"verify_url"`
	MaxAge        time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// Enabled reports whether bot verification is configured.
func (t TurnstileConfig) Enabled() bool {
	return usable(t.SiteKey) && (usable(t.SecretKey) || usable(t.SessionSecret))
}

// SigningSecret returns the secret used to sign verification cookies.
func (t TurnstileConfig) SigningSecret() string {
	if usable(t.SessionSecret) {
		return strings.TrimSpace(t.SessionSecret)
	}
	if usable(t.SecretKey) {
		return strings.TrimSpace(t.SecretKey)
	}
	return ""
}

type AuthConfig struct {
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path,omitempty"` // defaults to the XDG data dir
}

// ClientConfig configures the CLI when it talks to a pulse server.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
	Token     string `mapstructure:"token" yaml:"token,omitempty"`
}

// usable treats blank values and commented-out values ("#...") as unset.
func usable(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.HasPrefix(v, "#")
}

// ParseKeys reads a credential pool from a single key or a JSON array.
func ParseKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return list
		}
	}
	return []string{raw}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "cerebras")
	v.SetDefault("server.addr", "127.0.0.1:3000")
	v.SetDefault("server.session_ttl", 30*time.Minute)
	v.SetDefault("server.max_sessions", 1000)
	v.SetDefault("cerebras.model", "qwen-3-235b-a22b-instruct-2507")
	v.SetDefault("cerebras.base_url", "https://api.cerebras.ai/v1")
	v.SetDefault("openai.model", "gpt-5.2")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("gemini.model", "gemini-3-flash-preview")
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.top_p", 0.8)
	v.SetDefault("chat.max_tokens", 20000)
	v.SetDefault("chat.planner_temperature", 0.2)
	v.SetDefault("chat.planner_max_tokens", 300)
	v.SetDefault("chat.history_limit", 24)
	v.SetDefault("chat.planner_history_limit", 12)
	v.SetDefault("search.base_url", "https://google.serper.dev")
	v.SetDefault("search.requests_per_second", 5.0)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.info_limit", 50)
	v.SetDefault("search.image_limit", 10)
	v.SetDefault("search.video_limit", 5)
	v.SetDefault("turnstile.verify_url", "https://challenges.cloudflare.com/turnstile/v0/siteverify")
	v.SetDefault("turnstile.max_age", 30*time.Minute)
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)
	v.SetDefault("client.server_url", "http://127.0.0.1:3000")
}

// Load reads config.yaml from the config dir or the working directory.
// A missing file is not an error.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path
// searches the default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		configPath, err := GetConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config dir: %w", err)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configPath)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveCredentials(&cfg)
	return &cfg, nil
}

// Active returns the configuration of the selected provider.
func (c *Config) Active() (ProviderConfig, error) {
	switch c.Provider {
	case "cerebras":
		return c.Cerebras, nil
	case "openai":
		return c.OpenAI, nil
	case "anthropic":
		return c.Anthropic, nil
	case "gemini":
		return c.Gemini, nil
	default:
		return ProviderConfig{}, fmt.Errorf("unknown provider: %s", c.Provider)
	}
}

// ApplyOverrides applies provider and model overrides to the config.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model != "" {
		switch c.Provider {
		case "cerebras":
			c.Cerebras.Model = model
		case "openai":
			c.OpenAI.Model = model
		case "anthropic":
			c.Anthropic.Model = model
		case "gemini":
			c.Gemini.Model = model
		}
	}
}

func resolveCredentials(cfg *Config) {
	resolveProvider(&cfg.Cerebras, "CEREBRAS_API_KEY", "BIXX_API_KEY")
	resolveProvider(&cfg.OpenAI, "OPENAI_API_KEY")
	resolveProvider(&cfg.Anthropic, "ANTHROPIC_API_KEY")
	resolveProvider(&cfg.Gemini, "GEMINI_API_KEY")

	cfg.Search.APIKey = firstSet(expandEnv(cfg.Search.APIKey), os.Getenv("SERPER_API_KEY"))

	cfg.Turnstile.SiteKey = firstSet(expandEnv(cfg.Turnstile.SiteKey), os.Getenv("TURNSTILE_SITE_KEY"))
	cfg.Turnstile.SecretKey = firstSet(expandEnv(cfg.Turnstile.SecretKey), os.Getenv("TURNSTILE_SECRET_KEY"))
	cfg.Turnstile.SessionSecret = firstSet(expandEnv(cfg.Turnstile.SessionSecret), os.Getenv("TURNSTILE_SESSION_SECRET"))

	cfg.Chat.SystemPromptFile = expandEnv(cfg.Chat.SystemPromptFile)
	cfg.Store.Path = expandEnv(cfg.Store.Path)
	cfg.Client.Token = expandEnv(cfg.Client.Token)
	if cfg.Client.Token == "" {
		cfg.Client.Token = LoadToken()
	}
}

func resolveProvider(p *ProviderConfig, envVars ...string) {
	p.APIKey = expandEnv(p.APIKey)
	for i, k := range p.APIKeys {
		p.APIKeys[i] = expandEnv(k)
	}
	if p.APIKey == "" && len(p.APIKeys) == 0 {
		for _, name := range envVars {
			if v := os.Getenv(name); v != "" {
				p.APIKey = v
				break
			}
		}
	}
	p.BaseURL = expandEnv(p.BaseURL)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if usable(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for pulse.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "pulse"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "pulse"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDataDir returns the XDG data directory for pulse.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDataDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "pulse"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", "pulse"), nil
}

func tokenPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token"), nil
}

// SaveToken stores the CLI session token next to the config file.
func SaveToken(token string) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0600)
}

// LoadToken returns the stored CLI session token, or "".
func LoadToken() string {
	path, err := tokenPath()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
