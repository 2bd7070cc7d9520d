package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/samsaffron/pulse/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show pulse configuration",
	Long: `View the effective pulse configuration.

Examples:
  pulse config            # show current config, secrets redacted
  pulse config path       # print config file path`,
	RunE: configShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE:  configShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration file path",
	RunE:  configPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd)
}

// redact masks a secret, keeping enough of it to tell keys apart.
func redact(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "…" + s[len(s)-4:]
	}
}

func redactProvider(p *config.ProviderConfig) {
	p.APIKey = redact(p.APIKey)
	for i, k := range p.APIKeys {
		p.APIKeys[i] = redact(k)
	}
}

func redactConfig(cfg *config.Config) {
	redactProvider(&cfg.Cerebras)
	redactProvider(&cfg.OpenAI)
	redactProvider(&cfg.Anthropic)
	redactProvider(&cfg.Gemini)
	cfg.Search.APIKey = redact(cfg.Search.APIKey)
	cfg.Turnstile.SecretKey = redact(cfg.Turnstile.SecretKey)
	cfg.Turnstile.SessionSecret = redact(cfg.Turnstile.SessionSecret)
	cfg.Client.Token = redact(cfg.Client.Token)
}

func configShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	redactConfig(cfg)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func configPath(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		fmt.Println(configFile)
		return nil
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
