package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/pulse/internal/chat"
	"github.com/samsaffron/pulse/internal/config"
	"github.com/samsaffron/pulse/internal/store"
	"github.com/samsaffron/pulse/internal/wire"
)

func TestResolveAddr(t *testing.T) {
	tests := []struct {
		addr, host string
		port       int
		want       string
		wantErr    bool
	}{
		{addr: "127.0.0.1:3000", want: "127.0.0.1:3000"},
		{addr: "127.0.0.1:3000", host: "0.0.0.0", want: "0.0.0.0:3000"},
		{addr: "127.0.0.1:3000", port: 8080, want: "127.0.0.1:8080"},
		{addr: "127.0.0.1:3000", port: 70000, wantErr: true},
		{addr: "nonsense", wantErr: true},
	}
	for _, tt := range tests {
		got, err := resolveAddr(tt.addr, tt.host, tt.port)
		if tt.wantErr {
			assert.Error(t, err, tt.addr)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFilterSites(t *testing.T) {
	sites := []store.RecordSummary{
		{ID: "1", Name: "Bakery landing"},
		{ID: "2", Name: "Portfolio"},
		{ID: "3", Name: "Bike shop"},
	}
	assert.Len(t, filterSites(sites, ""), 3)

	got := filterSites(sites, "bakery")
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	assert.Empty(t, filterSites(sites, "zzz"))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", redact(""))
	assert.Equal(t, "****", redact("short"))
	assert.Equal(t, "sk-a…wxyz", redact("sk-abcdefghijklmnopqrstuvwxyz"))

	cfg := &config.Config{Search: config.SearchConfig{APIKey: "serper-secret-key"}}
	cfg.OpenAI.APIKeys = []string{"openai-key-one-1234"}
	redactConfig(cfg)
	assert.Equal(t, "serp…-key", cfg.Search.APIKey)
	assert.Equal(t, "open…1234", cfg.OpenAI.APIKeys[0])
}

func TestAPIClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/chat/stream", r.URL.Path)
		wire.SetHeaders(w)
		fw := wire.NewWriter(w)
		_ = fw.WriteFrame(wire.Content("Hi ```html\n<p>x</p>\n```"))
		_ = fw.WriteDone()
	}))
	defer srv.Close()

	client, err := newAPIClient(config.ClientConfig{ServerURL: srv.URL + "/", Token: "tok"})
	require.NoError(t, err)

	consumer := chat.NewConsumer(chat.ConsumerOptions{})
	defer consumer.Stop()
	require.NoError(t, client.stream(context.Background(), chat.TurnRequest{Message: "hi"}, consumer.Handle))

	require.True(t, consumer.Done())
	res := consumer.Result()
	assert.Contains(t, res.Document, "<p>x</p>")
	assert.Equal(t, "✓ Wrote 2 lines", res.Status)
}

func TestAPIClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Not authenticated."}`))
	}))
	defer srv.Close()

	client, err := newAPIClient(config.ClientConfig{ServerURL: srv.URL})
	require.NoError(t, err)

	err = client.call(context.Background(), http.MethodGet, "/api/sites", nil, nil)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Not authenticated.", apiErr.Message)
}
