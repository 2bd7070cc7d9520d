// Package wire frames a streaming turn as server-sent events.
//
// Each event is a single "data:" line holding one JSON object, and the
// stream always ends with the literal "data: [DONE]".
package wire

import (
	"github.com/samsaffron/pulse/internal/tags"
)

// Status values carried by phase frames.
const (
	StatusSearching = "searching"
	StatusReady     = "ready"
)

// Done is the payload of the terminal frame.
const Done = "[DONE]"

// Frame is one message of a turn. Exactly one of Status, Content or
// Error is set, except for the terminal frame where none are.
type Frame struct {
	Status   string         `json:"status,omitempty"`
	Requests []tags.Request `json:"requests,omitempty"`
	Content  string         `json:"content,omitempty"`
	Error    string         `json:"error,omitempty"`

	done bool
}

// Searching announces that the listed requests are being looked up.
func Searching(reqs []tags.Request) Frame {
	return Frame{Status: StatusSearching, Requests: reqs}
}

// Ready announces that search results are in place.
func Ready(reqs []tags.Request) Frame {
	return Frame{Status: StatusReady, Requests: reqs}
}

// Content carries a filtered text delta.
func Content(text string) Frame {
	return Frame{Content: text}
}

// Error carries a user-facing error message.
func Error(msg string) Frame {
	return Frame{Error: msg}
}

// IsDone reports whether f is the terminal frame.
func (f Frame) IsDone() bool {
	return f.done
}
