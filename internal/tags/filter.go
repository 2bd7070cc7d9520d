package tags

import (
	"strings"
)

var (
	openMarkers = map[string]Kind{
		OpenInfo:   KindInfo,
		OpenImages: KindImages,
		OpenVideos: KindVideos,
	}
	closeMarkers = map[Kind][]string{
		KindInfo:   {CloseInfo},
		KindImages: {CloseImages, CloseOnline},
		KindVideos: {CloseVideos},
	}
	allMarkers = NewScanner(
		OpenInfo, OpenImages, OpenVideos,
		CloseInfo, CloseImages, CloseOnline, CloseVideos,
	)
	closeScanners = map[Kind]*Scanner{
		KindInfo:   NewScanner(closeMarkers[KindInfo]...),
		KindImages: NewScanner(closeMarkers[KindImages]...),
		KindVideos: NewScanner(closeMarkers[KindVideos]...),
	}
)

// State is the complete state of the streaming filter between chunks.
// Carry is never longer than the longest marker.
type State struct {
	Carry string
	// Mode is the kind of span currently being swallowed, or "" outside.
	Mode Kind
}

// InSpan reports whether the filter is inside a request span.
func (s State) InSpan() bool {
	return s.Mode != ""
}

// Step runs one chunk through the filter. It returns the next state and
// the text that is safe to show. Request spans are removed even when
// their markers are split across chunk boundaries.
func Step(st State, input string) (State, string) {
	if input == "" && st.Carry == "" {
		return st, ""
	}

	text := st.Carry + input
	lowered := lowerASCII(text)
	mode := st.Mode

	var out strings.Builder
	i := 0
	spanFrom := 0

	for i < len(text) {
		if mode == "" {
			idx := strings.Index(lowered[i:], Sentinel)
			if idx < 0 {
				out.WriteString(text[i:])
				i = len(text)
				break
			}
			idx += i
			out.WriteString(text[i:idx])

			if kind, n := matchOpen(lowered[idx:]); n > 0 {
				mode = kind
				i = idx + n
				spanFrom = i
				continue
			}

			// Not a start marker: step past the '<' and keep scanning.
			out.WriteByte(text[idx])
			i = idx + 1
			continue
		}

		endIdx, marker := closeScanners[mode].Index(text[i:])
		if endIdx < 0 {
			i = len(text)
			break
		}
		i += endIdx + len(marker)
		mode = ""
	}

	emitted := out.String()
	next := State{Mode: mode}

	if mode == "" {
		if k := allMarkers.PartialSuffix(emitted); k > 0 {
			next.Carry = emitted[len(emitted)-k:]
			emitted = emitted[:len(emitted)-k]
		}
	} else {
		tail := text[spanFrom:]
		if keep := allMarkers.MaxLen() - 1; len(tail) > keep {
			tail = tail[len(tail)-keep:]
		}
		next.Carry = tail
	}

	return next, emitted
}

func matchOpen(lowered string) (Kind, int) {
	for marker, kind := range openMarkers {
		if strings.HasPrefix(lowered, marker) {
			return kind, len(marker)
		}
	}
	return "", 0
}

// Filter removes request spans from a token stream as it arrives.
// A Filter is not safe for concurrent use; each stream owns one.
type Filter struct {
	state State
}

// NewFilter returns a filter in its initial state.
func NewFilter() *Filter {
	return &Filter{}
}

// Feed consumes the next token and returns the text safe to emit now.
func (f *Filter) Feed(token string) string {
	var out string
	f.state, out = Step(f.state, token)
	return out
}

// Flush ends the stream. Held-back text outside a span is returned;
// truncated is true when the stream ended inside an unterminated span.
func (f *Filter) Flush() (rest string, truncated bool) {
	st := f.state
	f.state = State{}
	if st.InSpan() {
		return "", true
	}
	return st.Carry, false
}

// State returns a copy of the current filter state.
func (f *Filter) State() State {
	return f.state
}
