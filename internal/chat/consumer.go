package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/samsaffron/pulse/internal/coalesce"
	"github.com/samsaffron/pulse/internal/edit"
	"github.com/samsaffron/pulse/internal/search"
	"github.com/samsaffron/pulse/internal/tags"
	"github.com/samsaffron/pulse/internal/wire"
)

const (
	DefaultDocumentWindow = 16 * time.Millisecond
	DefaultDebounceWindow = 120 * time.Millisecond
)

// ConsumerOptions configures a Consumer. Every callback is optional and
// may run on a timer goroutine, but never concurrently with itself.
type ConsumerOptions struct {
	// Document is the document before the turn.
	Document string
	// History is the conversation so far, normally ending with the
	// user message that started the turn.
	History []Message

	OnDocument   func(doc string)     // full editor buffer, coalesced
	OnPreview    func(doc string)     // debounced after document updates
	OnTranscript func(msgs []Message) // debounced conversation snapshot
	OnSearch     func(phase search.Phase, reqs []tags.Request)
	OnCodeActive func(active bool)

	DocumentWindow time.Duration
	DebounceWindow time.Duration
}

// Result is the outcome of a finished turn.
type Result struct {
	Messages []Message
	Document string
	Patches  []edit.LinePatch
	Summary  string
	Status   string
	Lines    int
	// Code reports whether a fenced document arrived this turn.
	Code bool
	// Err holds the error frame text when the turn failed.
	Err string
}

// Consumer rebuilds a turn from its frames: prose goes to the assistant
// message, fenced code to the document. It is driven by a single reader.
type Consumer struct {
	opts   ConsumerOptions
	router *edit.FenceRouter

	awaiting bool
	pending  strings.Builder

	raw       strings.Builder
	messages  []Message
	assistant int
	code      bool

	document   *coalesce.Coalescer[string]
	preview    *coalesce.Coalescer[string]
	transcript *coalesce.Coalescer[[]Message]

	done   bool
	result Result
}

// NewConsumer creates a consumer for one turn.
func NewConsumer(opts ConsumerOptions) *Consumer {
	if opts.DocumentWindow <= 0 {
		opts.DocumentWindow = DefaultDocumentWindow
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}

	c := &Consumer{
		opts:      opts,
		messages:  append([]Message(nil), opts.History...),
		assistant: -1,
	}
	c.preview = coalesce.New(opts.DebounceWindow, coalesce.Debounce, func(doc string) {
		if opts.OnPreview != nil {
			opts.OnPreview(doc)
		}
	})
	c.document = coalesce.New(opts.DocumentWindow, coalesce.Throttle, func(doc string) {
		if opts.OnDocument != nil {
			opts.OnDocument(doc)
		}
		c.preview.Push(doc)
	})
	c.transcript = coalesce.New(opts.DebounceWindow, coalesce.Debounce, func(msgs []Message) {
		if opts.OnTranscript != nil {
			opts.OnTranscript(msgs)
		}
	})

	c.router = edit.NewFenceRouter()
	c.router.OnProse = c.appendProse
	c.router.OnCode = func(string) {
		c.document.Push(c.router.Code())
	}
	c.router.OnCodeStart = func() {
		c.code = true
		c.ensureAssistant()
		if opts.OnCodeActive != nil {
			opts.OnCodeActive(true)
		}
	}
	c.router.OnCodeStop = func(string) {
		if opts.OnCodeActive != nil {
			opts.OnCodeActive(false)
		}
	}
	return c
}

// Handle processes one frame and reports whether the turn is over.
func (c *Consumer) Handle(f wire.Frame) bool {
	if c.done {
		return true
	}
	switch {
	case f.IsDone():
		c.finish()
		return true
	case f.Error != "":
		c.fail(f.Error)
		return true
	case f.Status == wire.StatusSearching:
		c.awaiting = true
		if c.opts.OnSearch != nil {
			c.opts.OnSearch(search.PhaseSearching, f.Requests)
		}
	case f.Status == wire.StatusReady:
		c.awaiting = false
		if c.opts.OnSearch != nil {
			c.opts.OnSearch(search.PhaseReady, f.Requests)
		}
		if c.pending.Len() > 0 {
			held := c.pending.String()
			c.pending.Reset()
			c.router.Feed(held)
		}
	case f.Content != "":
		if c.awaiting {
			c.pending.WriteString(f.Content)
			return false
		}
		c.router.Feed(f.Content)
	}
	return false
}

// Done reports whether the turn has ended.
func (c *Consumer) Done() bool {
	return c.done
}

// Result returns the outcome. It is complete only once Handle has
// returned true.
func (c *Consumer) Result() Result {
	return c.result
}

// Stop abandons the turn. Pending deliveries are dropped and no sink is
// called after Stop returns.
func (c *Consumer) Stop() {
	c.done = true
	c.document.Stop()
	c.preview.Stop()
	c.transcript.Stop()
}

func (c *Consumer) ensureAssistant() {
	if c.assistant >= 0 {
		return
	}
	c.messages = append(c.messages, AssistantMessage(""))
	c.assistant = len(c.messages) - 1
	c.pushTranscript()
}

func (c *Consumer) appendProse(text string) {
	if text == "" {
		return
	}
	c.ensureAssistant()
	c.raw.WriteString(text)
	c.messages[c.assistant].Text = c.raw.String()
	c.pushTranscript()
}

func (c *Consumer) pushTranscript() {
	c.transcript.Push(append([]Message(nil), c.messages...))
}

func (c *Consumer) fail(msg string) {
	c.router.Flush()
	c.appendProse(fmt.Sprintf("\n\n(%s)", msg))
	c.result = Result{
		Messages: append([]Message(nil), c.messages...),
		Document: c.current(),
		Code:     c.code,
		Err:      msg,
	}
	c.flushAll()
	c.done = true
}

// current is the document as the preview shows it now.
func (c *Consumer) current() string {
	if c.code {
		return c.router.Code()
	}
	return c.opts.Document
}

func (c *Consumer) finish() {
	if c.pending.Len() > 0 {
		// The stream ended while waiting for search results.
		held := c.pending.String()
		c.pending.Reset()
		c.router.Feed(held)
	}
	c.router.Flush()

	raw := c.raw.String()
	doc, patches := edit.ApplyLinePatches(raw, c.current())
	res := Result{Document: doc, Patches: patches, Code: c.code}

	if len(patches) > 0 {
		res.Summary = edit.Summarize(patches)
		if c.assistant >= 0 {
			c.messages[c.assistant].Text = edit.StripLinePatches(raw)
		}
		c.document.Push(doc)
	}

	written := doc
	if c.code && c.router.Code() != "" {
		written = c.router.Code()
	}
	res.Lines = edit.LineCount(written)
	if res.Lines > 0 {
		res.Status = fmt.Sprintf("✓ Wrote %d lines", res.Lines)
	} else {
		res.Status = "✓"
	}

	if c.assistant >= 0 {
		c.pushTranscript()
	}
	res.Messages = append([]Message(nil), c.messages...)
	c.result = res
	c.flushAll()
	c.done = true
}

// flushAll delivers pending values in dependency order: the document
// first so its preview is scheduled, then the preview itself.
func (c *Consumer) flushAll() {
	c.document.Flush()
	c.preview.Flush()
	c.transcript.Flush()
}
