// Package chat runs streaming turns: the Engine produces frames on the
// server, the Consumer turns them back into chat text and a document on
// the client.
package chat

import (
	"github.com/samsaffron/pulse/internal/llm"
	"github.com/samsaffron/pulse/internal/store"
)

// Message is one chat entry as exchanged with clients.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// UserMessage builds a user entry.
func UserMessage(text string) Message {
	return Message{Role: string(llm.RoleUser), Text: text}
}

// AssistantMessage builds an assistant entry.
func AssistantMessage(text string) Message {
	return Message{Role: string(llm.RoleAssistant), Text: text}
}

// ToLLM converts history for a model request. Unknown roles are kept so
// prompt sanitising can drop them in one place.
func ToLLM(msgs []Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: llm.Role(m.Role), Content: m.Text})
	}
	return out
}

// ToTranscript converts messages for storage.
func ToTranscript(msgs []Message) []store.TranscriptEntry {
	out := make([]store.TranscriptEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, store.TranscriptEntry{Role: m.Role, Text: m.Text})
	}
	return out
}

// FromTranscript converts stored entries back to messages.
func FromTranscript(entries []store.TranscriptEntry) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, Message{Role: e.Role, Text: e.Text})
	}
	return out
}
