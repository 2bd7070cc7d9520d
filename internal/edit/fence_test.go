package edit

import (
	"strings"
	"testing"
)

type routed struct {
	kind string // "prose" or "code"
	text string
}

type fenceRecorder struct {
	router  *FenceRouter
	out     []routed
	starts  int
	stops   []string
	prose   strings.Builder
	code    strings.Builder
	ordered strings.Builder
}

func newFenceRecorder() *fenceRecorder {
	rec := &fenceRecorder{router: NewFenceRouter()}
	rec.router.OnProse = func(s string) {
		rec.add("prose", s)
		rec.prose.WriteString(s)
	}
	rec.router.OnCode = func(s string) {
		rec.add("code", s)
		rec.code.WriteString(s)
	}
	rec.router.OnCodeStart = func() { rec.starts++ }
	rec.router.OnCodeStop = func(code string) { rec.stops = append(rec.stops, code) }
	return rec
}

// add merges consecutive deltas of the same kind.
func (r *fenceRecorder) add(kind, s string) {
	r.ordered.WriteString(s)
	if n := len(r.out); n > 0 && r.out[n-1].kind == kind {
		r.out[n-1].text += s
		return
	}
	r.out = append(r.out, routed{kind, s})
}

func (r *fenceRecorder) feed(chunks ...string) {
	for _, c := range chunks {
		r.router.Feed(c)
	}
	r.router.Flush()
}

func TestFenceRouterSplitInfoString(t *testing.T) {
	rec := newFenceRecorder()
	rec.feed("Hello ", "wor", "ld ```py", "thon\nprint(1)\n``", "` done")

	want := []routed{
		{"prose", "Hello world "},
		{"code", "print(1)\n"},
		{"prose", " done"},
	}
	if len(rec.out) != len(want) {
		t.Fatalf("got %d segments %#v, want %#v", len(rec.out), rec.out, want)
	}
	for i := range want {
		if rec.out[i] != want[i] {
			t.Errorf("segment %d = %#v, want %#v", i, rec.out[i], want[i])
		}
	}
	if rec.starts != 1 || len(rec.stops) != 1 || rec.stops[0] != "print(1)\n" {
		t.Errorf("starts=%d stops=%q", rec.starts, rec.stops)
	}
}

func TestFenceRouterLineTerminators(t *testing.T) {
	tests := []struct {
		name      string
		chunks    []string
		wantProse string
		wantCode  string
	}{
		{
			name:      "lf",
			chunks:    []string{"a\n```\n<p>x</p>\n```\nb"},
			wantProse: "a\nb",
			wantCode:  "<p>x</p>\n",
		},
		{
			name:      "crlf",
			chunks:    []string{"a\r\n```html\r\n<p>x</p>\r\n```\r\nb"},
			wantProse: "a\r\nb",
			wantCode:  "<p>x</p>\r\n",
		},
		{
			name:      "crlf split after close",
			chunks:    []string{"```\nx\n```\r", "\nafter"},
			wantProse: "after",
			wantCode:  "x\n",
		},
		{
			name:      "newline after close in next chunk",
			chunks:    []string{"```\nx\n```", "\nafter"},
			wantProse: "after",
			wantCode:  "x\n",
		},
		{
			name:      "fence split one backtick at a time",
			chunks:    []string{"p", "`", "`", "`", "html", "\n", "code", "`", "``", "q"},
			wantProse: "pq",
			wantCode:  "code",
		},
		{
			name:      "inline backticks stay prose",
			chunks:    []string{"use `go test` or ``x``"},
			wantProse: "use `go test` or ``x``",
		},
		{
			name:      "trailing backtick released on flush",
			chunks:    []string{"end`"},
			wantProse: "end`",
		},
		{
			name:      "unclosed block",
			chunks:    []string{"intro\n```html\n<div>", "</div>"},
			wantProse: "intro\n",
			wantCode:  "<div></div>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newFenceRecorder()
			rec.feed(tt.chunks...)
			if got := rec.prose.String(); got != tt.wantProse {
				t.Errorf("prose = %q, want %q", got, tt.wantProse)
			}
			if got := rec.code.String(); got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestFenceRouterResetsEditorPerBlock(t *testing.T) {
	rec := newFenceRecorder()
	rec.feed("```\nfirst\n```\nmid\n```\nsecond\n```\n")

	if rec.starts != 2 {
		t.Fatalf("starts = %d, want 2", rec.starts)
	}
	if len(rec.stops) != 2 || rec.stops[0] != "first\n" || rec.stops[1] != "second\n" {
		t.Errorf("stops = %q", rec.stops)
	}
	if rec.router.Code() != "second\n" {
		t.Errorf("Code() = %q, want %q", rec.router.Code(), "second\n")
	}
	if rec.router.InCode() {
		t.Error("router should be back in prose mode")
	}
}

// Prose and code together reconstruct the input minus fences and the
// line terminators that follow them, regardless of chunking.
func TestFenceRouterBalanceAcrossChunkings(t *testing.T) {
	input := "Intro text\n```\n<html>\n<body>hi</body>\n</html>\n```\nMiddle\n```\nmore code\n```\nOutro"
	want := "Intro text\n<html>\n<body>hi</body>\n</html>\nMiddle\nmore code\nOutro"

	for size := 1; size <= len(input); size++ {
		rec := newFenceRecorder()
		var chunks []string
		for i := 0; i < len(input); i += size {
			end := i + size
			if end > len(input) {
				end = len(input)
			}
			chunks = append(chunks, input[i:end])
		}
		rec.feed(chunks...)
		if got := rec.ordered.String(); got != want {
			t.Fatalf("chunk size %d: got %q, want %q", size, got, want)
		}
		if rec.starts != 2 || len(rec.stops) != 2 {
			t.Fatalf("chunk size %d: starts=%d stops=%d", size, rec.starts, len(rec.stops))
		}
	}
}
