package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/pulse/internal/auth"
	"github.com/samsaffron/pulse/internal/chat"
	"github.com/samsaffron/pulse/internal/llm"
	"github.com/samsaffron/pulse/internal/prompt"
	"github.com/samsaffron/pulse/internal/search"
	"github.com/samsaffron/pulse/internal/serve"
	"github.com/samsaffron/pulse/internal/signal"
	"github.com/samsaffron/pulse/internal/store"
)

var (
	serveHost        string
	servePort        int
	serveProvider    string
	serveModel       string
	serveCORSOrigins []string
	serveSessionTTL  time.Duration
	serveSessionMax  int
	serveCapture     string
	serveDB          string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web app and API",
	Long: `Run the pulse HTTP server.

Endpoints:
  GET  /                       web chat with live preview
  POST /api/chat/stream        stream one turn as server-sent events
  POST /api/references         attach reference files to the next turn
  POST /api/auth/{signup,login,logout}, GET /api/auth/me
  GET  /api/turnstile/site-key, POST /api/turnstile/verify
  GET|POST /api/sites, GET|PUT /api/sites/{id}
  GET  /sites/view/{id}, /sites/view/{id}/chat
  GET  /api/health`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind host (overrides server.addr)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Bind port (overrides server.addr)")
	serveCmd.Flags().StringVarP(&serveProvider, "provider", "p", "", "Model provider (cerebras, openai, anthropic, gemini)")
	serveCmd.Flags().StringVarP(&serveModel, "model", "m", "", "Model name override")
	serveCmd.Flags().StringArrayVar(&serveCORSOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable, or '*' for all)")
	serveCmd.Flags().DurationVar(&serveSessionTTL, "session-ttl", 0, "Chat session idle TTL")
	serveCmd.Flags().IntVar(&serveSessionMax, "session-max", 0, "Max chat sessions in memory")
	serveCmd.Flags().StringVar(&serveCapture, "capture", "", "Write planner output and raw model tokens to this file")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "SQLite database path")
}

// resolveAddr applies --host/--port on top of the configured address.
func resolveAddr(addr, host string, port int) (string, error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid server.addr %q: %w", addr, err)
	}
	if host != "" {
		h = host
	}
	if port != 0 {
		if port < 0 || port > 65535 {
			return "", fmt.Errorf("invalid --port %d (must be 1-65535)", port)
		}
		p = strconv.Itoa(port)
	}
	return net.JoinHostPort(h, p), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(serveProvider, serveModel)

	cfg.Server.Addr, err = resolveAddr(cfg.Server.Addr, serveHost, servePort)
	if err != nil {
		return err
	}
	if len(serveCORSOrigins) > 0 {
		cfg.Server.CORSOrigins = serveCORSOrigins
	}
	if serveSessionTTL > 0 {
		cfg.Server.SessionTTL = serveSessionTTL
	}
	if serveSessionMax > 0 {
		cfg.Server.MaxSessions = serveSessionMax
	}
	if serveCapture != "" {
		cfg.Chat.CaptureFile = serveCapture
	}

	logger := slog.Default()

	dbPath := serveDB
	if dbPath == "" {
		dbPath = cfg.Store.Path
	}
	if dbPath == "" {
		if dbPath, err = store.GetDBPath(); err != nil {
			return err
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	backend, err := llm.NewFactory(cfg, logger)
	if err != nil {
		return err
	}
	if backend.Keys().Len() == 0 {
		logger.Warn("no API keys configured; chat turns will fail", "provider", cfg.Provider)
	}

	var provider search.Provider
	if serper := search.NewSerper(cfg.Search); serper != nil {
		provider = serper
	}

	prompts, err := prompt.NewLoader(cfg.Chat.SystemPromptFile, logger)
	if err != nil {
		return err
	}
	go func() {
		if err := prompts.Watch(ctx); err != nil {
			logger.Warn("system prompt watch stopped", "error", err)
		}
	}()

	engine := chat.NewEngine(chat.Options{
		Backend: backend,
		Search:  search.NewOrchestrator(provider, logger),
		Prompts: prompts,
		Chat:    cfg.Chat,
		Logger:  logger,
	})

	sessions := chat.NewManager(cfg.Server.SessionTTL, cfg.Server.MaxSessions)
	defer sessions.Close()

	turnstile := auth.NewTurnstile(cfg.Turnstile)
	srv := serve.New(serve.Options{
		Config:    cfg.Server,
		Engine:    engine,
		Store:     st,
		Identity:  auth.NewProvider(st, cfg.Auth.TokenTTL),
		Turnstile: turnstile,
		Sessions:  sessions,
		Logger:    logger,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("pulse listening",
		"addr", "http://"+cfg.Server.Addr,
		"provider", cfg.Provider,
		"model", backend.Model(),
		"keys", backend.Keys().Len(),
		"search", cfg.Search.Enabled(),
		"turnstile", turnstile.Enabled(),
		"db", dbPath,
	)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
