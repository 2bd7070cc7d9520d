package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
)

type eventStream struct {
	events <-chan Event
	cancel context.CancelFunc
}

// newEventStream runs produce on its own goroutine and exposes the events
// it sends as a Stream. A returned error is delivered as a final error.
func newEventStream(ctx context.Context, produce func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		if err := produce(ctx, ch); err != nil {
			select {
			case ch <- Event{Type: EventError, Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return &eventStream{events: ch, cancel: cancel}
}

func (s *eventStream) Recv() (Event, error) {
	ev, ok := <-s.events
	if !ok {
		return Event{}, io.EOF
	}
	if ev.Type == EventError {
		return Event{}, ev.Err
	}
	return ev, nil
}

// Close cancels the producer and drains whatever it still sends so the
// goroutine can exit.
func (s *eventStream) Close() error {
	s.cancel()
	go func() {
		for range s.events {
		}
	}()
	return nil
}

// Collect runs a request to completion and returns the concatenated text.
func Collect(ctx context.Context, p Provider, req Request) (string, error) {
	stream, err := p.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), fmt.Errorf("%s: %w", p.Name(), err)
		}
		if ev.Type == EventTextDelta {
			b.WriteString(ev.Text)
		}
	}
}
