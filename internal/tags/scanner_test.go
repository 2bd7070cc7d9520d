package tags

import "testing"

func TestScannerIndex(t *testing.T) {
	s := NewScanner("<a>", "<ab>", "</a>")

	tests := []struct {
		name       string
		text       string
		wantIdx    int
		wantMarker string
	}{
		{"none", "plain text", -1, ""},
		{"earliest wins", "x</a> <a>", 1, "</a>"},
		{"case insensitive", "xx<A>", 2, "<a>"},
		{"longest at same position", "<ab>", 0, "<ab>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, marker := s.Index(tt.text)
			if idx != tt.wantIdx || marker != tt.wantMarker {
				t.Errorf("Index(%q) = (%d, %q), want (%d, %q)", tt.text, idx, marker, tt.wantIdx, tt.wantMarker)
			}
		})
	}
}

func TestScannerPartialSuffix(t *testing.T) {
	s := NewScanner(OpenInfo, CloseInfo)

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hello", 0},
		{"hello <", 1},
		{"hello <sea", 4},
		{"hello <SEARCH.inf", 11},
		{"hello </search.info", 13},
		// A complete marker is not a partial one.
		{"<search.info>", 0},
		{"a <b", 0},
	}

	for _, tt := range tests {
		if got := s.PartialSuffix(tt.text); got != tt.want {
			t.Errorf("PartialSuffix(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestScannerMaxLen(t *testing.T) {
	if got := allMarkers.MaxLen(); got != len(CloseImages) {
		t.Errorf("MaxLen() = %d, want %d", got, len(CloseImages))
	}
}

func TestLowerASCIIKeepsOffsets(t *testing.T) {
	in := "İ<SEARCH.info>"
	got := lowerASCII(in)
	if len(got) != len(in) {
		t.Fatalf("len changed: %d -> %d", len(in), len(got))
	}
	if got[len("İ"):] != "<search.info>" {
		t.Errorf("lowerASCII(%q) = %q", in, got)
	}
}
