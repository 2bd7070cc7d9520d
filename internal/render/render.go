// Package render turns stored sites and transcripts into viewable HTML.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"

	"github.com/samsaffron/pulse/internal/store"
)

// EmptyDocument is served for records without content.
const EmptyDocument = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Empty project</title></head><body></body></html>`

// Raw HTML in messages is escaped, not passed through.
var transcriptMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Table, extension.Linkify),
)

// Document returns content, or EmptyDocument when it is blank.
func Document(content string) string {
	if strings.TrimSpace(content) == "" {
		return EmptyDocument
	}
	return content
}

// Title returns the text of the first <title> element in doc, or "".
func Title(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	inTitle := false
	var sb strings.Builder
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "title" && inTitle {
				return strings.Join(strings.Fields(sb.String()), " ")
			}
		case html.TextToken:
			if inTitle {
				sb.Write(z.Text())
			}
		}
	}
}

// Markdown converts a chat message to HTML.
func Markdown(md string) string {
	var buf bytes.Buffer
	if err := transcriptMarkdown.Convert([]byte(md), &buf); err != nil {
		return "<p>" + html.EscapeString(md) + "</p>"
	}
	return buf.String()
}

const transcriptStyle = `body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;color:#1f2328}
.msg{border-radius:.5rem;padding:.75rem 1rem;margin:.75rem 0}
.user{background:#eef4ff;white-space:pre-wrap}
.assistant{background:#f6f8fa}
.role{font-size:.75rem;text-transform:uppercase;color:#57606a;margin-bottom:.25rem}
pre{overflow-x:auto}`

// Transcript renders a saved conversation as a standalone page. User
// messages are shown verbatim; assistant messages are rendered as
// Markdown.
func Transcript(name string, entries []store.TranscriptEntry) string {
	var b strings.Builder
	title := html.EscapeString(name)
	fmt.Fprintf(&b, "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>%s · chat</title><style>%s</style></head><body>\n", title, transcriptStyle)
	fmt.Fprintf(&b, "<h1>%s</h1>\n", title)
	if len(entries) == 0 {
		b.WriteString("<p>No messages yet.</p>\n")
	}
	for _, e := range entries {
		switch e.Role {
		case "user":
			fmt.Fprintf(&b, "<div class=\"msg user\"><div class=\"role\">You</div>%s</div>\n", html.EscapeString(e.Text))
		case "assistant":
			fmt.Fprintf(&b, "<div class=\"msg assistant\"><div class=\"role\">Pulse</div>%s</div>\n", Markdown(e.Text))
		}
	}
	b.WriteString("</body></html>\n")
	return b.String()
}
