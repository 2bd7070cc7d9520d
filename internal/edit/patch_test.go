package edit

import (
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func TestParseLinePatches(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []LinePatch
	}{
		{
			name: "none",
			text: "just prose",
			want: nil,
		},
		{
			name: "start and end tags",
			text: "<changeline2>\nX\nY\n</changeline3>",
			want: []LinePatch{{Start: 2, End: 3, Content: "X\nY"}},
		},
		{
			name: "pair form",
			text: "<changeline4-6>a</changeline4-6>",
			want: []LinePatch{{Start: 4, End: 6, Content: "a"}},
		},
		{
			name: "case insensitive and reversed",
			text: "<ChangeLine5>z</CHANGELINE1>",
			want: []LinePatch{{Start: 5, End: 1, Content: "z"}},
		},
		{
			name: "keeps indentation of first line",
			text: "<changeline1>\n\n    <p>hi</p>\n  \n</changeline1>",
			want: []LinePatch{{Start: 1, End: 1, Content: "    <p>hi</p>"}},
		},
		{
			name: "several",
			text: "a <changeline1>x</changeline1> b <changeline3>y</changeline3>",
			want: []LinePatch{{Start: 1, End: 1, Content: "x"}, {Start: 3, End: 3, Content: "y"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLinePatches(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseLinePatches() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestApplyLinePatchesWidthTruncates(t *testing.T) {
	doc := "A\nB\nC\nD"
	text := "<changeline2>\nX\nY\nZ\n</changeline3>"

	got, applied := ApplyLinePatches(text, doc)
	if got != "A\nX\nY\nD" {
		t.Errorf("document = %q, want %q", got, "A\nX\nY\nD")
	}
	if len(applied) != 1 {
		t.Fatalf("applied = %d, want 1", len(applied))
	}
	if s := Summarize(applied); s != "Updated lines 2–3." {
		t.Errorf("Summarize() = %q", s)
	}
}

func TestApplyLinePatchesRangeCorrectness(t *testing.T) {
	doc := "l1\nl2\nl3\nl4\nl5\nl6"
	lines := strings.Split(doc, "\n")

	for s := 1; s <= len(lines); s++ {
		for e := s; e <= len(lines); e++ {
			for _, content := range []string{"n", "n1\nn2", "n1\nn2\nn3\nn4\nn5\nn6\nn7"} {
				text := "<changeline" + strconv.Itoa(s) + ">" + content + "</changeline" + strconv.Itoa(e) + ">"
				got, applied := ApplyLinePatches(text, doc)
				if len(applied) != 1 {
					t.Fatalf("(%d,%d) applied = %d", s, e, len(applied))
				}
				gotLines := strings.Split(got, "\n")
				if len(gotLines) != len(lines) {
					t.Fatalf("(%d,%d) line count changed to %d", s, e, len(gotLines))
				}
				repl := strings.Split(content, "\n")
				for i := range lines {
					want := lines[i]
					if i+1 >= s && i+1 <= e {
						want = ""
						if k := i + 1 - s; k < len(repl) {
							want = repl[k]
						}
					}
					if gotLines[i] != want {
						t.Errorf("(%d,%d,%q) line %d = %q, want %q", s, e, content, i+1, gotLines[i], want)
					}
				}
			}
		}
	}
}

func TestApplyLinePatchesOutOfRange(t *testing.T) {
	doc := "a\nb\nc"
	tests := []string{
		"<changeline0>x</changeline1>",
		"<changeline3>x</changeline4>",
		"<changeline9>x</changeline9>",
	}
	for _, text := range tests {
		got, applied := ApplyLinePatches(text, doc)
		if got != doc {
			t.Errorf("%q changed document to %q", text, got)
		}
		if len(applied) != 0 {
			t.Errorf("%q applied = %#v, want none", text, applied)
		}
	}
}

func TestApplyLinePatchesSkipsOnlyInvalid(t *testing.T) {
	doc := "a\nb\nc"
	text := "<changeline9>bad</changeline9> <changeline3>C</changeline3>"
	got, applied := ApplyLinePatches(text, doc)
	if got != "a\nb\nC" {
		t.Errorf("document = %q", got)
	}
	if len(applied) != 1 || applied[0].Start != 3 {
		t.Errorf("applied = %#v", applied)
	}
}

func TestApplyLinePatchesUsesOriginalBounds(t *testing.T) {
	doc := "1\n2\n3"
	text := "<changeline1>a\nb</changeline1><changeline1-3>x\ny\nz</changeline1-3>"
	got, applied := ApplyLinePatches(text, doc)
	if got != "x\ny\nz" {
		t.Errorf("document = %q", got)
	}
	if s := Summarize(applied); s != "Updated line 1, lines 1–3." {
		t.Errorf("Summarize() = %q", s)
	}
}

func TestApplyLinePatchesNoDirectives(t *testing.T) {
	doc := "keep\nme"
	got, applied := ApplyLinePatches("nothing here", doc)
	if got != doc || applied != nil {
		t.Errorf("ApplyLinePatches() = (%q, %#v)", got, applied)
	}
}

func TestApplyLinePatchesNormalizesCRLF(t *testing.T) {
	got, _ := ApplyLinePatches("<changeline1>x\r\ny</changeline2>", "a\nb")
	if got != "x\ny" {
		t.Errorf("document = %q, want %q", got, "x\ny")
	}
}

func TestStripLinePatches(t *testing.T) {
	in := "Done. <changeline2>\nX\n</changeline3>\n  "
	if got := StripLinePatches(in); got != "Done." {
		t.Errorf("StripLinePatches() = %q, want %q", got, "Done.")
	}
}

func TestNumberLines(t *testing.T) {
	got := NumberLines("<html>\n</html>")
	want := "   1: <html>\n   2: </html>"
	if got != want {
		t.Errorf("NumberLines() = %q, want %q", got, want)
	}
	if NumberLines("") != "" {
		t.Error("NumberLines(\"\") should be empty")
	}
}

func TestLineCount(t *testing.T) {
	tests := map[string]int{"": 0, "a": 1, "a\nb": 2, "a\n": 2}
	for in, want := range tests {
		if got := LineCount(in); got != want {
			t.Errorf("LineCount(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestPatchDiff(t *testing.T) {
	if d := PatchDiff("index.html", "a\n", "a\n"); d != "" {
		t.Errorf("PatchDiff(same) = %q, want empty", d)
	}
	d := PatchDiff("index.html", "a\nb\n", "a\nc\n")
	if !strings.Contains(d, "-b") || !strings.Contains(d, "+c") {
		t.Errorf("PatchDiff() = %q", d)
	}
}
