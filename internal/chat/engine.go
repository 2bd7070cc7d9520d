package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/samsaffron/pulse/internal/config"
	"github.com/samsaffron/pulse/internal/llm"
	"github.com/samsaffron/pulse/internal/prompt"
	"github.com/samsaffron/pulse/internal/search"
	"github.com/samsaffron/pulse/internal/tags"
	"github.com/samsaffron/pulse/internal/wire"
)

// Backend hands out providers bound to one credential each.
type Backend interface {
	Keys() *llm.KeyRing
	Model() string
	New(key string) (llm.Provider, error)
}

// Prompts supplies the current system prompt.
type Prompts interface {
	Current() string
}

// FrameWriter receives the frames of a turn. *wire.Writer implements it.
type FrameWriter interface {
	WriteFrame(f wire.Frame) error
	WriteDone() error
}

// TurnRequest is the body of a streaming chat request.
type TurnRequest struct {
	Message  string    `json:"message"`
	Document string    `json:"html"`
	Numbered string    `json:"htmlNumbered,omitempty"`
	History  []Message `json:"history"`
	RecordID string    `json:"siteId,omitempty"`

	// Reference is attached server side from the session, never decoded
	// from the request body.
	Reference string `json:"-"`
}

// Conversation is the history with the current message as its last user
// entry. The browser sends the message both ways; the CLI sends only
// Message.
func (r TurnRequest) Conversation() []Message {
	msgs := append([]Message(nil), r.History...)
	if n := len(msgs); n > 0 && msgs[n-1].Role == string(llm.RoleUser) {
		return msgs
	}
	if r.Message == "" {
		return msgs
	}
	return append(msgs, UserMessage(r.Message))
}

// Options configures an Engine.
type Options struct {
	Backend Backend
	Search  *search.Orchestrator
	Prompts Prompts
	Chat    config.ChatConfig
	Logger  *slog.Logger
}

// Engine runs the server side of a turn: planning, searching, streaming
// the answer through the tag filter and framing it for the client.
type Engine struct {
	backend Backend
	search  *search.Orchestrator
	prompts Prompts
	cfg     config.ChatConfig
	logger  *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		backend: opts.Backend,
		search:  opts.Search,
		prompts: opts.Prompts,
		cfg:     opts.Chat,
		logger:  logger,
	}
}

// writeError marks a failure to deliver a frame. Nothing more can be sent
// to that client.
type writeError struct{ err error }

func (e *writeError) Error() string { return "write frame: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// Run streams one turn to w and always finishes with the terminal frame
// unless ctx is canceled or the client is gone. Model failures are
// reported to the client as an error frame and are not returned.
func (e *Engine) Run(ctx context.Context, req TurnRequest, w FrameWriter) error {
	if e.backend == nil || e.backend.Keys().Len() == 0 {
		e.logger.Warn("chat stream unavailable: no API keys configured")
		return e.fail(w, llm.ErrNoKeys)
	}

	capture := e.openCapture()
	defer capture.Close()

	turn := prompt.Turn{
		System:    e.system(),
		UserText:  req.Message,
		Document:  req.Document,
		Numbered:  req.Numbered,
		History:   ToLLM(req.History),
		Reference: req.Reference,
	}

	reqs := tags.ExtractRequests(req.Message)
	if len(reqs) == 0 && e.search.Enabled() {
		reqs = e.plan(ctx, turn, capture)
	}

	results, err := e.search.Run(ctx, reqs, func(phase search.Phase, reqs []tags.Request) error {
		var f wire.Frame
		switch phase {
		case search.PhaseSearching:
			f = wire.Searching(reqs)
		case search.PhaseReady:
			f = wire.Ready(reqs)
		default:
			return nil
		}
		if err := w.WriteFrame(f); err != nil {
			return &writeError{err}
		}
		return nil
	})
	if err != nil {
		return e.finish(ctx, w, err)
	}
	turn.Search = search.FormatContext(results)

	answer := llm.Request{
		Model:           e.backend.Model(),
		Messages:        prompt.Answer(turn, e.cfg.HistoryLimit),
		MaxOutputTokens: e.cfg.MaxTokens,
		Temperature:     e.cfg.Temperature,
		TopP:            e.cfg.TopP,
	}

	emitted := false
	rotate := func(err error) bool {
		return !emitted && llm.IsRateLimit(err)
	}
	err = e.backend.Keys().Rotate(ctx, rotate, func(ctx context.Context, key string) error {
		p, err := e.backend.New(key)
		if err != nil {
			return err
		}
		return e.stream(ctx, p, answer, w, capture, &emitted)
	})
	if err != nil {
		return e.finish(ctx, w, err)
	}
	if err := w.WriteDone(); err != nil {
		return &writeError{err}
	}
	return nil
}

// finish reports err to the client unless the request is gone.
func (e *Engine) finish(ctx context.Context, w FrameWriter, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var we *writeError
	if errors.As(err, &we) {
		return err
	}
	return e.fail(w, err)
}

func (e *Engine) fail(w FrameWriter, err error) error {
	e.logger.Error("chat stream failed", "error", err)
	if werr := w.WriteFrame(wire.Error(llm.UserMessage(err))); werr != nil {
		return &writeError{werr}
	}
	if werr := w.WriteDone(); werr != nil {
		return &writeError{werr}
	}
	return nil
}

// plan asks the model which searches would help. Failures only disable
// searching for this turn.
func (e *Engine) plan(ctx context.Context, turn prompt.Turn, capture io.Writer) []tags.Request {
	model := e.cfg.PlannerModel
	if model == "" {
		model = e.backend.Model()
	}
	req := llm.Request{
		Model:           model,
		Messages:        prompt.Planner(turn, e.cfg.PlannerHistoryLimit),
		MaxOutputTokens: e.cfg.PlannerMaxTokens,
		Temperature:     e.cfg.PlannerTemperature,
		TopP:            e.cfg.TopP,
	}

	var text string
	err := e.backend.Keys().Rotate(ctx, nil, func(ctx context.Context, key string) error {
		p, err := e.backend.New(key)
		if err != nil {
			return err
		}
		text, err = llm.Collect(ctx, p, req)
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("search planning failed", "error", err)
		}
		return nil
	}

	fmt.Fprintf(capture, "%s\n", text)
	reqs := tags.ExtractRequests(text)
	e.logger.Debug("search plan", "requests", len(reqs))
	return reqs
}

// stream runs one answer attempt. emitted is set once a content frame has
// gone out, after which the turn can no longer move to another key.
func (e *Engine) stream(ctx context.Context, p llm.Provider, req llm.Request, w FrameWriter, capture io.Writer, emitted *bool) error {
	s, err := p.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer s.Close()

	send := func(text string) error {
		if text == "" {
			return nil
		}
		if err := w.WriteFrame(wire.Content(text)); err != nil {
			return &writeError{err}
		}
		*emitted = true
		return nil
	}

	filter := tags.NewFilter()
	for {
		ev, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if ev.Type == llm.EventDone {
			break
		}
		if ev.Type != llm.EventTextDelta || ev.Text == "" {
			continue
		}
		io.WriteString(capture, ev.Text)
		if err := send(filter.Feed(ev.Text)); err != nil {
			return err
		}
	}

	rest, truncated := filter.Flush()
	if truncated {
		e.logger.Warn("dropped unterminated search tag at end of stream")
	}
	return send(rest)
}

func (e *Engine) system() string {
	if e.prompts == nil {
		return ""
	}
	return e.prompts.Current()
}

type nopCapture struct{ io.Writer }

func (nopCapture) Close() error { return nil }

// openCapture truncates the capture file for this turn. Capture is best
// effort and never fails a turn.
func (e *Engine) openCapture() io.WriteCloser {
	if e.cfg.CaptureFile == "" {
		return nopCapture{io.Discard}
	}
	f, err := os.Create(e.cfg.CaptureFile)
	if err != nil {
		e.logger.Warn("open capture file", "path", e.cfg.CaptureFile, "error", err)
		return nopCapture{io.Discard}
	}
	return f
}
