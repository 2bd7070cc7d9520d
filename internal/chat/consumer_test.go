package chat

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/pulse/internal/search"
	"github.com/samsaffron/pulse/internal/tags"
	"github.com/samsaffron/pulse/internal/wire"
)

func feed(c *Consumer, frames ...wire.Frame) bool {
	var done bool
	for _, f := range frames {
		done = c.Handle(f)
	}
	return done
}

// doneFrame returns the terminal frame as a reader would produce it.
func doneFrame(t *testing.T) wire.Frame {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, wire.NewWriter(&buf).WriteDone())
	f, err := wire.NewReader(&buf).Next()
	require.NoError(t, err)
	require.True(t, f.IsDone())
	return f
}

func TestConsumerRoutesProseAndCode(t *testing.T) {
	var mu sync.Mutex
	var docs []string
	var active []bool
	c := NewConsumer(ConsumerOptions{
		History: []Message{UserMessage("make a page")},
		OnDocument: func(doc string) {
			mu.Lock()
			docs = append(docs, doc)
			mu.Unlock()
		},
		OnCodeActive: func(a bool) { active = append(active, a) },
	})

	done := feed(c,
		wire.Content("Here it is:\n``"),
		wire.Content("`ht"),
		wire.Content("ml\n<html>\n<body></body>\n"),
		wire.Content("</html>\n```\nEnjoy!"),
	)
	require.False(t, done)
	require.True(t, feed(c, doneFrame(t)))

	res := c.Result()
	assert.Equal(t, "<html>\n<body></body>\n</html>\n", res.Document)
	assert.True(t, res.Code)
	assert.Equal(t, "✓ Wrote 4 lines", res.Status)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Here it is:\nEnjoy!", res.Messages[1].Text)
	assert.Equal(t, []bool{true, false}, active)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(docs) > 0 && docs[len(docs)-1] == res.Document
	}, time.Second, 5*time.Millisecond, "final document delivered")
}

func TestConsumerBuffersWhileSearching(t *testing.T) {
	var phases []search.Phase
	c := NewConsumer(ConsumerOptions{
		OnSearch: func(p search.Phase, _ []tags.Request) { phases = append(phases, p) },
	})

	reqs := []tags.Request{{Kind: tags.KindInfo, Query: "q"}}
	feed(c, wire.Searching(reqs), wire.Content("held "), wire.Content("back"))
	assert.Empty(t, c.raw.String(), "content must wait for ready")

	feed(c, wire.Ready(reqs), wire.Content("!"))
	assert.Equal(t, "held back!", c.raw.String())
	assert.Equal(t, []search.Phase{search.PhaseSearching, search.PhaseReady}, phases)
}

func TestConsumerAppliesLinePatches(t *testing.T) {
	doc := "<h1>Old</h1>\n<p>a</p>\n<p>b</p>"
	c := NewConsumer(ConsumerOptions{
		Document: doc,
		History:  []Message{UserMessage("rename")},
	})
	feed(c,
		wire.Content("Renamed.\n<changeline1>"),
		wire.Content("<h1>New</h1></changeline1>\n<changeline9>x</changeline9>"),
	)
	require.True(t, c.Handle(doneFrame(t)))

	res := c.Result()
	assert.False(t, res.Code)
	assert.Equal(t, "<h1>New</h1>\n<p>a</p>\n<p>b</p>", res.Document)
	assert.Equal(t, "Updated line 1.", res.Summary)
	assert.Equal(t, "Renamed.", res.Messages[1].Text, "directives are stripped from the reply")
	assert.Equal(t, "✓ Wrote 3 lines", res.Status)
}

func TestConsumerErrorFrame(t *testing.T) {
	c := NewConsumer(ConsumerOptions{History: []Message{UserMessage("hi")}})
	feed(c, wire.Content("Partial"))
	require.True(t, c.Handle(wire.Error("Service unavailable.")))

	res := c.Result()
	assert.Equal(t, "Service unavailable.", res.Err)
	assert.Equal(t, "Partial\n\n(Service unavailable.)", res.Messages[1].Text)
	assert.Empty(t, res.Status)
	assert.True(t, c.Handle(wire.Content("ignored")), "frames after the end are ignored")
}

func TestConsumerEmptyTurnStatus(t *testing.T) {
	c := NewConsumer(ConsumerOptions{})
	require.True(t, c.Handle(doneFrame(t)))
	res := c.Result()
	assert.Equal(t, "✓", res.Status)
	assert.Empty(t, res.Messages)
}

func TestConsumerDebouncesTranscript(t *testing.T) {
	var mu sync.Mutex
	var snapshots [][]Message
	c := NewConsumer(ConsumerOptions{
		History:        []Message{UserMessage("hi")},
		DebounceWindow: 30 * time.Millisecond,
		OnTranscript: func(m []Message) {
			mu.Lock()
			snapshots = append(snapshots, m)
			mu.Unlock()
		},
	})
	for _, s := range []string{"a", "b", "c", "d"} {
		c.Handle(wire.Content(s))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots) > 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Len(t, snapshots, 1, "bursts collapse into one write")
	assert.Equal(t, "abcd", snapshots[0][1].Text)
	mu.Unlock()
	c.Stop()
}

func TestConsumerStopDropsPending(t *testing.T) {
	delivered := false
	c := NewConsumer(ConsumerOptions{
		DebounceWindow: time.Hour,
		OnTranscript:   func([]Message) { delivered = true },
	})
	c.Handle(wire.Content("x"))
	c.Stop()
	assert.True(t, c.Done())
	assert.False(t, delivered)
}
