package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/pulse/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Build single-page sites by chatting with a model",
	Long: `pulse streams model replies that write and patch an HTML document.

Examples:
  pulse serve                            # run the web app and API
  pulse login                            # sign in against a pulse server
  pulse build "a landing page for a bakery" --out index.html
  pulse build "make the header teal" --site 3f2a... --diff
  pulse sites list --filter bakery
  pulse config show`,
	Version:           Version,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/pulse/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.LoadFile(configFile)
}
