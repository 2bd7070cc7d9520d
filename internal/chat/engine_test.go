package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/pulse/internal/config"
	"github.com/samsaffron/pulse/internal/llm"
	"github.com/samsaffron/pulse/internal/search"
	"github.com/samsaffron/pulse/internal/tags"
	"github.com/samsaffron/pulse/internal/wire"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeBackend struct {
	ring      *llm.KeyRing
	providers map[string]*llm.MockProvider
}

func newFakeBackend(keys ...string) *fakeBackend {
	b := &fakeBackend{ring: llm.NewKeyRing(keys, quiet), providers: map[string]*llm.MockProvider{}}
	for _, k := range keys {
		b.providers[k] = llm.NewMockProvider("mock-" + k)
	}
	return b
}

func (b *fakeBackend) Keys() *llm.KeyRing { return b.ring }
func (b *fakeBackend) Model() string      { return "test-model" }
func (b *fakeBackend) New(key string) (llm.Provider, error) {
	p, ok := b.providers[key]
	if !ok {
		return nil, errors.New("unknown key")
	}
	return p, nil
}

type fixedPrompt string

func (p fixedPrompt) Current() string { return string(p) }

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
}

func (s *fakeSearch) Query(_ context.Context, kind tags.Kind, q string) (search.Results, error) {
	s.mu.Lock()
	s.queries = append(s.queries, string(kind)+":"+q)
	s.mu.Unlock()
	if q == "broken" {
		return search.Results{}, errors.New("boom")
	}
	return search.Results{Kind: kind, Query: q, ImageURLs: []string{"https://img/" + q + ".png"}}, nil
}

type recorder struct {
	frames []wire.Frame
	done   int
	err    error
}

func (r *recorder) WriteFrame(f wire.Frame) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) WriteDone() error {
	if r.err != nil {
		return r.err
	}
	r.done++
	return nil
}

func (r *recorder) content() string {
	var b strings.Builder
	for _, f := range r.frames {
		b.WriteString(f.Content)
	}
	return b.String()
}

func (r *recorder) statuses() []string {
	var out []string
	for _, f := range r.frames {
		if f.Status != "" {
			out = append(out, f.Status)
		}
	}
	return out
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		Temperature:         0.7,
		TopP:                0.8,
		MaxTokens:           20000,
		PlannerTemperature:  0.2,
		PlannerMaxTokens:    300,
		HistoryLimit:        24,
		PlannerHistoryLimit: 12,
	}
}

func newTestEngine(b Backend, s search.Provider) *Engine {
	var orch *search.Orchestrator
	if s != nil {
		orch = search.NewOrchestrator(s, quiet)
	}
	return NewEngine(Options{
		Backend: b,
		Search:  orch,
		Prompts: fixedPrompt("SYS"),
		Chat:    testChatConfig(),
		Logger:  quiet,
	})
}

func TestEngineStreamsFilteredContent(t *testing.T) {
	b := newFakeBackend("k1")
	b.providers["k1"].AddChunks("Hello <sea", "rch.info>weather</sea", "rch.info> world")

	rec := &recorder{}
	err := newTestEngine(b, nil).Run(context.Background(), TurnRequest{Message: "hi"}, rec)
	require.NoError(t, err)

	assert.Equal(t, "Hello  world", rec.content())
	assert.Empty(t, rec.statuses())
	assert.Equal(t, 1, rec.done)

	reqs := b.providers["k1"].Requests()
	require.Len(t, reqs, 1, "no planner call without a search provider")
	assert.Equal(t, "test-model", reqs[0].Model)
	assert.Equal(t, 20000, reqs[0].MaxOutputTokens)
	assert.InDelta(t, 0.7, reqs[0].Temperature, 1e-6)
	assert.True(t, strings.HasPrefix(reqs[0].Messages[0].Content, "SYS\n\n"))
}

func TestEngineExplicitTagsSkipPlanner(t *testing.T) {
	b := newFakeBackend("k1")
	b.providers["k1"].AddTextResponse("Here you go")
	s := &fakeSearch{}

	rec := &recorder{}
	msg := "cats page <search.images>cats</search.images><search.info>broken</search.info>"
	require.NoError(t, newTestEngine(b, s).Run(context.Background(), TurnRequest{Message: msg}, rec))

	assert.Equal(t, []string{"info:broken", "images:cats"}, s.queries)
	assert.Equal(t, []string{wire.StatusSearching, wire.StatusReady}, rec.statuses())
	assert.Equal(t, "Here you go", rec.content())
	require.Len(t, rec.frames[0].Requests, 2)
	assert.Equal(t, tags.KindInfo, rec.frames[0].Requests[0].Kind)

	reqs := b.providers["k1"].Requests()
	require.Len(t, reqs, 1)
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	assert.Equal(t, llm.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "[Image results for: cats]")
	for _, m := range reqs[0].Messages {
		assert.NotContains(t, m.Content, "<search.images>", "user tags must not reach the answer prompt")
	}
}

func TestEnginePlannerRequestsSearches(t *testing.T) {
	b := newFakeBackend("k1")
	b.providers["k1"].
		AddTextResponse("<search.videos>lofi</search.videos>").
		AddChunks("Done.")
	s := &fakeSearch{}

	capture := filepath.Join(t.TempDir(), "capture.txt")
	e := newTestEngine(b, s)
	e.cfg.CaptureFile = capture

	rec := &recorder{}
	require.NoError(t, e.Run(context.Background(), TurnRequest{Message: "music site"}, rec))

	assert.Equal(t, []string{"videos:lofi"}, s.queries)
	assert.Equal(t, []string{wire.StatusSearching, wire.StatusReady}, rec.statuses())

	reqs := b.providers["k1"].Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, 300, reqs[0].MaxOutputTokens)
	assert.InDelta(t, 0.2, reqs[0].Temperature, 1e-6)

	data, err := os.ReadFile(capture)
	require.NoError(t, err)
	assert.Equal(t, "<search.videos>lofi</search.videos>\nDone.", string(data))
}

func TestEnginePlannerFailureIsIgnored(t *testing.T) {
	b := newFakeBackend("k1")
	b.providers["k1"].
		AddError(errors.New("planner down")).
		AddTextResponse("answer")
	s := &fakeSearch{}

	rec := &recorder{}
	require.NoError(t, newTestEngine(b, s).Run(context.Background(), TurnRequest{Message: "hi"}, rec))

	assert.Empty(t, s.queries)
	assert.Empty(t, rec.statuses())
	assert.Equal(t, "answer", rec.content())
}

func TestEngineRotatesOnRateLimit(t *testing.T) {
	b := newFakeBackend("k1", "k2")
	limited := &llm.APIError{Provider: "mock", StatusCode: http.StatusTooManyRequests, Message: "slow down"}
	b.providers["k1"].AddError(limited)
	b.providers["k2"].AddTextResponse("from k2")

	rec := &recorder{}
	require.NoError(t, newTestEngine(b, nil).Run(context.Background(), TurnRequest{Message: "hi"}, rec))
	assert.Equal(t, "from k2", rec.content())
	assert.Equal(t, 1, rec.done)
}

func TestEngineAllKeysLimited(t *testing.T) {
	b := newFakeBackend("k1", "k2")
	limited := &llm.APIError{Provider: "mock", StatusCode: http.StatusTooManyRequests, Message: "We're experiencing high traffic"}
	b.providers["k1"].AddError(limited)
	b.providers["k2"].AddError(limited)

	rec := &recorder{}
	require.NoError(t, newTestEngine(b, nil).Run(context.Background(), TurnRequest{Message: "hi"}, rec))
	require.Len(t, rec.frames, 1)
	assert.Equal(t, "We're experiencing high traffic", rec.frames[0].Error)
	assert.Equal(t, 1, rec.done)
}

func TestEngineNoRotationAfterContent(t *testing.T) {
	b := newFakeBackend("k1", "k2")
	limited := &llm.APIError{Provider: "mock", StatusCode: http.StatusTooManyRequests}
	b.providers["k1"].AddError(limited, "partial ")
	b.providers["k2"].AddError(limited, "partial ")

	rec := &recorder{}
	require.NoError(t, newTestEngine(b, nil).Run(context.Background(), TurnRequest{Message: "hi"}, rec))

	assert.Equal(t, "partial ", rec.content())
	assert.Equal(t, "Service unavailable.", rec.frames[len(rec.frames)-1].Error)
	assert.Equal(t, 1, len(b.providers["k1"].Requests())+len(b.providers["k2"].Requests()))
}

func TestEngineNoKeys(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, newTestEngine(newFakeBackend(), nil).Run(context.Background(), TurnRequest{Message: "hi"}, rec))
	require.Len(t, rec.frames, 1)
	assert.Equal(t, "Service unavailable.", rec.frames[0].Error)
	assert.Equal(t, 1, rec.done)
}

func TestEngineCanceledWritesNothing(t *testing.T) {
	b := newFakeBackend("k1")
	b.providers["k1"].AddChunks("never")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	err := newTestEngine(b, nil).Run(ctx, TurnRequest{Message: "hi"}, rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.frames)
	assert.Zero(t, rec.done)
}

func TestEngineClientGone(t *testing.T) {
	b := newFakeBackend("k1")
	b.providers["k1"].AddChunks("text")

	rec := &recorder{err: io.ErrClosedPipe}
	err := newTestEngine(b, nil).Run(context.Background(), TurnRequest{Message: "hi"}, rec)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestEngineReferenceInPrompt(t *testing.T) {
	b := newFakeBackend("k1")
	b.providers["k1"].AddTextResponse("ok")

	rec := &recorder{}
	req := TurnRequest{
		Message:   "build it",
		History:   []Message{UserMessage("build it")},
		Reference: "[User file: brief.md]\nA bakery.",
	}
	require.NoError(t, newTestEngine(b, nil).Run(context.Background(), req, rec))

	msgs := b.providers["k1"].Requests()[0].Messages
	var joined strings.Builder
	for _, m := range msgs {
		joined.WriteString(m.Content)
	}
	assert.Contains(t, joined.String(), "A bakery.")
}

func TestTurnRequestConversation(t *testing.T) {
	req := TurnRequest{Message: "more", History: []Message{UserMessage("hi"), AssistantMessage("hello")}}
	assert.Equal(t, []Message{UserMessage("hi"), AssistantMessage("hello"), UserMessage("more")}, req.Conversation())

	req.History = append(req.History, UserMessage("more"))
	assert.Len(t, req.Conversation(), 3)

	assert.Empty(t, TurnRequest{}.Conversation())
}
