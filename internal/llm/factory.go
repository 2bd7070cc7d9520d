package llm

import (
	"fmt"
	"log/slog"

	"github.com/samsaffron/pulse/internal/config"
)

// ProviderNames lists the backends NewProvider understands.
var ProviderNames = []string{"cerebras", "openai", "anthropic", "gemini"}

// Factory builds providers for the configured backend, one per API key.
type Factory struct {
	name string
	pc   config.ProviderConfig
	ring *KeyRing
}

// NewFactory resolves the active provider from cfg.
func NewFactory(cfg *config.Config, logger *slog.Logger) (*Factory, error) {
	pc, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	if cfg.Chat.Model != "" {
		pc.Model = cfg.Chat.Model
	}
	return &Factory{name: cfg.Provider, pc: pc, ring: NewKeyRing(pc.Keys(), logger)}, nil
}

// Keys returns the credential pool.
func (f *Factory) Keys() *KeyRing {
	return f.ring
}

// Model returns the default model for the backend.
func (f *Factory) Model() string {
	return f.pc.Model
}

// New returns a provider bound to a single key.
func (f *Factory) New(key string) (Provider, error) {
	return NewProvider(f.name, f.pc, key)
}

// NewProvider creates a provider of the named backend using key.
func NewProvider(name string, pc config.ProviderConfig, key string) (Provider, error) {
	if key == "" {
		return nil, ErrNoKeys
	}
	switch name {
	case "cerebras":
		return NewOpenAIProvider("cerebras", key, pc.BaseURL, pc.Model), nil
	case "openai":
		return NewOpenAIProvider("openai", key, pc.BaseURL, pc.Model), nil
	case "anthropic":
		return NewAnthropicProvider(key, pc.BaseURL, pc.Model), nil
	case "gemini":
		return NewGeminiProvider(key, pc.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}
