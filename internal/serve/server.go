// Package serve is the HTTP surface: auth, bot verification, reference
// uploads, site records and the streaming chat endpoint.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/samsaffron/pulse/internal/auth"
	"github.com/samsaffron/pulse/internal/chat"
	"github.com/samsaffron/pulse/internal/config"
	"github.com/samsaffron/pulse/internal/serveui"
	"github.com/samsaffron/pulse/internal/store"
)

// Options wires a Server to its collaborators.
type Options struct {
	Config    config.ServerConfig
	Engine    *chat.Engine
	Store     store.Store
	Identity  *auth.Provider
	Turnstile *auth.Turnstile
	Sessions  *chat.Manager
	Logger    *slog.Logger
}

// Server serves the web API.
type Server struct {
	cfg       config.ServerConfig
	engine    *chat.Engine
	store     store.Store
	identity  *auth.Provider
	turnstile *auth.Turnstile
	sessions  *chat.Manager
	logger    *slog.Logger

	server *http.Server
}

// New creates a server. Call Handler for tests or Start to listen.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       opts.Config,
		engine:    opts.Engine,
		store:     opts.Store,
		identity:  opts.Identity,
		turnstile: opts.Turnstile,
		sessions:  opts.Sessions,
		logger:    logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(s.cors)
	r.Use(s.identify)

	r.Get("/", s.handleUI)
	r.Get("/api/health", s.handleHealth)

	r.Route("/api/turnstile", func(r chi.Router) {
		r.Get("/site-key", s.handleSiteKey)
		r.Post("/verify", s.handleTurnstileVerify)
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/me", s.handleMe)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.withSession)
		r.Post("/api/references", s.handleReferences)
		r.Post("/api/chat/stream", s.handleChatStream)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Route("/api/sites", func(r chi.Router) {
			r.Get("/", s.handleListSites)
			r.Post("/", s.handleCreateSite)
			r.Get("/{id}", s.handleGetSite)
			r.Put("/{id}", s.handleUpdateSite)
		})
		r.Get("/sites/view/{id}", s.handleViewSite)
		r.Get("/sites/view/{id}/chat", s.handleViewTranscript)
	})

	return r
}

// Start listens on the configured address. It returns once the listener
// is up; serving continues in the background.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.identity != nil {
		go s.purgeTokens(ctx)
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) purgeTokens(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := s.identity.Purge(ctx)
			if err != nil {
				s.logger.Warn("purge expired tokens", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired tokens", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", serveui.ETag())
	if r.Header.Get("If-None-Match") == serveui.ETag() {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	_, _ = w.Write(serveui.IndexHTML())
}
