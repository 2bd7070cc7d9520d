package tags

import "strings"

// Scanner finds markers from a fixed set inside text, ignoring case.
// Markers are plain strings; there is no nesting or attribute parsing.
type Scanner struct {
	markers []string
	lower   []string
	maxLen  int
}

// NewScanner builds a scanner over the given markers.
func NewScanner(markers ...string) *Scanner {
	s := &Scanner{
		markers: append([]string(nil), markers...),
		lower:   make([]string, len(markers)),
	}
	for i, m := range markers {
		s.lower[i] = lowerASCII(m)
		if len(m) > s.maxLen {
			s.maxLen = len(m)
		}
	}
	return s
}

// MaxLen returns the length of the longest marker.
func (s *Scanner) MaxLen() int {
	return s.maxLen
}

// Markers returns the markers in registration order.
func (s *Scanner) Markers() []string {
	return s.markers
}

// Index returns the position and value of the earliest marker in text.
// When two markers start at the same position the longer one wins.
// It returns -1 and "" when no marker occurs.
func (s *Scanner) Index(text string) (int, string) {
	lowered := lowerASCII(text)
	best := -1
	bestMarker := ""
	for i, m := range s.lower {
		idx := strings.Index(lowered, m)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best || (idx == best && len(m) > len(bestMarker)) {
			best = idx
			bestMarker = s.markers[i]
		}
	}
	return best, bestMarker
}

// PartialSuffix returns the length of the longest suffix of text that is
// a proper prefix of some marker. Such a suffix may complete into a
// marker once more input arrives, so callers hold it back.
func (s *Scanner) PartialSuffix(text string) int {
	lowered := lowerASCII(text)
	limit := s.maxLen - 1
	if limit > len(lowered) {
		limit = len(lowered)
	}
	for n := limit; n > 0; n-- {
		suffix := lowered[len(lowered)-n:]
		for _, m := range s.lower {
			if len(m) > n && strings.HasPrefix(m, suffix) {
				return n
			}
		}
	}
	return 0
}

// lowerASCII folds A-Z only so byte offsets in the result match the input.
func lowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if 'A' <= b[j] && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
