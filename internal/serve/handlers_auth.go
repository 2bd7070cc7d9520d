package serve

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/samsaffron/pulse/internal/auth"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.identity.TTL() / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var c credentials
	if !readJSON(w, r, &c) {
		return c, false
	}
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required.")
		return c, false
	}
	return c, true
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	c, ok := s.readCredentials(w, r)
	if !ok {
		return
	}
	id, token, err := s.identity.Signup(r.Context(), c.Email, c.Password)
	if err != nil {
		s.logger.Info("signup rejected", "error", err)
		writeError(w, http.StatusBadRequest, "Could not sign up.")
		return
	}
	s.setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	c, ok := s.readCredentials(w, r)
	if !ok {
		return
	}
	id, token, err := s.identity.Authenticate(r.Context(), c.Email, c.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error("login failed", "error", err)
		}
		writeError(w, http.StatusBadRequest, "Invalid credentials.")
		return
	}
	s.setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": id})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := authToken(r); token != "" {
		if err := s.identity.Revoke(r.Context(), token); err != nil {
			s.logger.Warn("revoke token", "error", err)
		}
	}
	s.clearAuthCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if id == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": id})
}

func (s *Server) handleSiteKey(w http.ResponseWriter, r *http.Request) {
	key := s.turnstile.SiteKey()
	if key == "" {
		writeError(w, http.StatusNotFound, "Turnstile not configured.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"siteKey": key})
}

func (s *Server) handleTurnstileVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	token := strings.TrimSpace(body.Token)
	err := auth.ErrMissingToken
	if token != "" {
		err = s.turnstile.Verify(r.Context(), token, remoteIP(r))
	}
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Missing token."})
		return
	case err != nil:
		s.logger.Info("turnstile verification failed", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Verification failed."})
		return
	}

	if value := s.turnstile.SignSession(time.Now()); value != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookie,
			Value:    value,
			Path:     "/",
			MaxAge:   int(s.turnstile.MaxAge() / time.Second),
			HttpOnly: true,
			Secure:   s.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// botCheckPassed reports whether the request may start a turn. Signed-in
// users are trusted; anonymous visitors need a fresh verification cookie.
func (s *Server) botCheckPassed(r *http.Request) bool {
	if identityFrom(r.Context()) != nil {
		return true
	}
	value := ""
	if c, err := r.Cookie(auth.SessionCookie); err == nil {
		value = c.Value
	}
	return s.turnstile.Allowed(value)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
