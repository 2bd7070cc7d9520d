package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider replays scripted turns. Each Stream call consumes the next
// turn; requests are recorded for inspection.
type MockProvider struct {
	name string

	mu       sync.Mutex
	turns    []mockTurn
	requests []Request
}

type mockTurn struct {
	chunks []string
	err    error
	delay  time.Duration
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Name() string {
	return m.name
}

// AddTextResponse queues a turn that streams text as one chunk.
func (m *MockProvider) AddTextResponse(text string) *MockProvider {
	return m.AddChunks(text)
}

// AddChunks queues a turn that streams each chunk as its own delta.
func (m *MockProvider) AddChunks(chunks ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{chunks: chunks})
	return m
}

// AddError queues a turn that fails with err after streaming chunks.
func (m *MockProvider) AddError(err error, chunks ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{chunks: chunks, err: err})
	return m
}

// WithDelay makes the most recently queued turn pause between chunks.
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.turns); n > 0 {
		m.turns[n-1].delay = d
	}
	return m
}

// Requests returns the requests seen so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.turns) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock provider %s: no scripted turns left", m.name)
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	m.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		for _, chunk := range turn.chunks {
			if turn.delay > 0 {
				select {
				case <-time.After(turn.delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			select {
			case events <- Event{Type: EventTextDelta, Text: chunk}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if turn.err != nil {
			return turn.err
		}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}
