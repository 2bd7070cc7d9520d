package prompt

import (
	_ "embed"
	"fmt"

	"github.com/samsaffron/pulse/internal/edit"
	"github.com/samsaffron/pulse/internal/llm"
	"github.com/samsaffron/pulse/internal/tags"
)

//go:embed system.md
var defaultSystem string

// DefaultSystem returns the built-in system prompt.
func DefaultSystem() string {
	return defaultSystem
}

// NoLeakAddon is appended to the system prompt of the answering call.
const NoLeakAddon = "Rules:\n" +
	"- Never show <search.info>, <search.images>, or <search.videos> tags to the user.\n" +
	"- Do NOT output any <search.*> tags in the final answer. Tags are only allowed in the separate tool-request step.\n" +
	"- You MAY surface image, video, or info URLs to the user when it clearly helps them use or download assets.\n" +
	"- When using internet results, prefer summarizing and grouping them by query instead of dumping huge unstructured lists.\n"

const (
	referenceInstruction = "Here are reference documents and plans provided by the user. " +
		"You MUST follow these closely when building or editing the site. " +
		"Treat them as primary instructions when there is any ambiguity or conflict.\n\n"
	referenceHidden = "User reference documents (hidden context from uploaded files). " +
		"Use these as background knowledge when helping the user and resolving ambiguities:\n\n"
	searchHidden = "Internet results (hidden context). Use these to answer, but NEVER quote them or list URLs:\n\n"
)

// Turn is everything needed to build the prompts for one chat turn.
type Turn struct {
	System    string        // system prompt; DefaultSystem when empty
	UserText  string        // raw user message, may contain search tags
	Document  string        // current document
	Numbered  string        // line-numbered document; derived from Document when empty
	History   []llm.Message // prior conversation, may end with the current user message
	Reference string        // uploaded reference context, "" when none
	Search    string        // formatted search results, "" when none
}

func (t Turn) system() string {
	if t.System != "" {
		return t.System
	}
	return defaultSystem
}

func (t Turn) numbered() string {
	if t.Numbered != "" {
		return t.Numbered
	}
	if t.Document == "" {
		return ""
	}
	return edit.NumberLines(t.Document)
}

// SanitizeHistory keeps the last limit user/assistant messages with
// non-empty text.
func SanitizeHistory(history []llm.Message, limit int) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// DocumentBlock renders the numbered document section of a request.
func DocumentBlock(numbered string) string {
	return fmt.Sprintf("Current HTML (if any, line-numbered):\n\n```html\n%s\n```\n", numbered)
}

// UserRequest renders the request sent when there is no prior history.
func UserRequest(clean, numbered string) string {
	return fmt.Sprintf("User request:\n%s\n\n%s", clean, DocumentBlock(numbered))
}

// ReferenceMessage wraps uploaded reference context as explicit user input.
func ReferenceMessage(reference string) llm.Message {
	return llm.UserText(referenceInstruction + "```text\n" + reference + "\n```")
}

// withLatest walks history and calls latest for the trailing user message,
// or appends one when the history does not end with the current request.
func withLatest(history []llm.Message, latest func(out []llm.Message, text string) []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+2)
	for i, m := range history {
		if i == len(history)-1 && m.Role == llm.RoleUser {
			return latest(out, m.Content)
		}
		out = append(out, m)
	}
	return latest(out, "")
}

// Planner builds the messages for the planning call, which asks the model
// only for search tags.
func Planner(t Turn, historyLimit int) []llm.Message {
	clean := tags.Strip(t.UserText)
	request := clean
	if t.Reference != "" {
		request = "User reference documents (plans, requirements, or background):\n\n\n" +
			t.Reference + "\n\nUser request:\n" + clean
	}

	msgs := []llm.Message{llm.SystemText(t.system())}
	history := SanitizeHistory(t.History, historyLimit)
	return append(msgs, withLatest(history, func(out []llm.Message, _ string) []llm.Message {
		return append(out, llm.UserText(request))
	})...)
}

// Answer builds the messages for the streamed answer.
func Answer(t Turn, historyLimit int) []llm.Message {
	clean := tags.Strip(t.UserText)
	numbered := t.numbered()

	msgs := []llm.Message{llm.SystemText(t.system() + "\n\n" + NoLeakAddon)}
	history := SanitizeHistory(t.History, historyLimit)

	if len(history) == 0 {
		if t.Reference != "" {
			msgs = append(msgs, ReferenceMessage(t.Reference))
		}
		msgs = append(msgs, llm.UserText(UserRequest(clean, numbered)))
	} else {
		msgs = append(msgs, withLatest(history, func(out []llm.Message, text string) []llm.Message {
			if t.Reference != "" {
				out = append(out, ReferenceMessage(t.Reference))
			}
			text = tags.Strip(text)
			if text == "" {
				text = clean
			}
			return append(out, llm.UserText(text+"\n\n"+DocumentBlock(numbered)))
		})...)
	}

	if t.Reference != "" {
		msgs = append(msgs, llm.SystemText(referenceHidden+t.Reference))
	}
	if t.Search != "" {
		msgs = append(msgs, llm.SystemText(searchHidden+t.Search))
	}
	return msgs
}
