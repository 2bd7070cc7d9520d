package edit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LinePatch replaces an inclusive, 1-based line range of a document.
type LinePatch struct {
	Start   int
	End     int
	Content string
}

// Range returns the patch bounds ordered low to high.
func (p LinePatch) Range() (int, int) {
	if p.Start <= p.End {
		return p.Start, p.End
	}
	return p.End, p.Start
}

// Label renders the range as "line 3" or "lines 2–5".
func (p LinePatch) Label() string {
	s, e := p.Range()
	if s == e {
		return fmt.Sprintf("line %d", s)
	}
	return fmt.Sprintf("lines %d–%d", s, e)
}

var (
	// <changeline2>…</changeline5> or <changeline2-5>…</changeline2-5>
	linePatchRe = regexp.MustCompile(`(?i)<changeline(\d+)(?:-(\d+))?>([\s\S]*?)</changeline(\d+)(?:-(\d+))?>`)
	// Any directive span, used when cleaning text for display.
	linePatchSpanRe = regexp.MustCompile(`(?i)<changeline\d+(?:-\d+)?>[\s\S]*?</changeline\d+(?:-\d+)?>`)

	leadingBlankRe  = regexp.MustCompile(`^\s*\n`)
	trailingBlankRe = regexp.MustCompile(`\n\s*$`)
)

// ParseLinePatches extracts every directive in text, in order of
// appearance. The start line comes from the opening tag and the end line
// from the closing tag; the pair form carries both numbers in each tag.
// No range validation happens here.
func ParseLinePatches(text string) []LinePatch {
	var patches []LinePatch
	for _, m := range linePatchRe.FindAllStringSubmatch(text, -1) {
		start, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		endField := m[4]
		if m[2] != "" {
			endField = m[2]
		} else if m[5] != "" {
			endField = m[5]
		}
		end, err := strconv.Atoi(endField)
		if err != nil {
			continue
		}
		content := leadingBlankRe.ReplaceAllString(m[3], "")
		content = trailingBlankRe.ReplaceAllString(content, "")
		patches = append(patches, LinePatch{Start: start, End: end, Content: content})
	}
	return patches
}

// ApplyLinePatches applies the directives found in text to doc. Each
// range must lie within the original document; others are skipped.
// It returns the updated document and the patches that were applied.
// When nothing applies the document is returned unchanged.
func ApplyLinePatches(text, doc string) (string, []LinePatch) {
	patches := ParseLinePatches(text)
	if len(patches) == 0 || doc == "" {
		return doc, nil
	}

	orig := strings.Split(doc, "\n")
	lines := make([]string, len(orig))
	copy(lines, orig)

	var applied []LinePatch
	for _, p := range patches {
		s, e := p.Range()
		if s < 1 || s > len(orig) || e < 1 || e > len(orig) {
			continue
		}
		count := e - s + 1
		repl := strings.Split(strings.ReplaceAll(p.Content, "\r\n", "\n"), "\n")
		for i := 0; i < count; i++ {
			line := ""
			if i < len(repl) {
				line = repl[i]
			}
			lines[s-1+i] = line
		}
		applied = append(applied, p)
	}

	if len(applied) == 0 {
		return doc, nil
	}
	return strings.Join(lines, "\n"), applied
}

// StripLinePatches removes directive spans from text and trims it.
func StripLinePatches(text string) string {
	return strings.TrimSpace(linePatchSpanRe.ReplaceAllString(text, ""))
}

// Summarize renders applied patches as a status line such as
// "Updated lines 2–3, line 7." It returns "" for no patches.
func Summarize(patches []LinePatch) string {
	if len(patches) == 0 {
		return ""
	}
	labels := make([]string, len(patches))
	for i, p := range patches {
		labels[i] = p.Label()
	}
	return "Updated " + strings.Join(labels, ", ") + "."
}

// NumberLines prefixes each line with its 1-based number, right aligned
// to four columns, so a model can address lines in directives.
func NumberLines(doc string) string {
	if doc == "" {
		return ""
	}
	lines := strings.Split(doc, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%4d: %s", i+1, line)
	}
	return b.String()
}

// LineCount returns the number of lines in doc, or 0 when it is empty.
func LineCount(doc string) int {
	if doc == "" {
		return 0
	}
	return strings.Count(doc, "\n") + 1
}
