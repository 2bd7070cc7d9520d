package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/samsaffron/pulse/internal/config"
	"github.com/samsaffron/pulse/internal/wire"
)

// apiClient talks to a pulse server. The cookie jar carries the chat
// session between a reference upload and the turn that uses it.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(cfg config.ClientConfig) (*apiClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &apiClient{
		base:  strings.TrimRight(cfg.ServerURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Jar: jar},
	}, nil
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) request(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&e)
		return nil, &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	return resp, nil
}

// call sends body as JSON and decodes the reply into out when non-nil.
func (c *apiClient) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.request(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// stream posts a turn and hands every frame to fn until the terminal
// frame or the end of the body.
func (c *apiClient) stream(ctx context.Context, body any, fn func(wire.Frame) bool) error {
	resp, err := c.request(ctx, http.MethodPost, "/api/chat/stream", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	r := wire.NewReader(resp.Body)
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if fn(f) {
			return nil
		}
	}
}

// authCookie finds the session token a login response set.
func authCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == "pulse_auth" {
			return c.Value
		}
	}
	return ""
}
