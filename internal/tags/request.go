package tags

import (
	"regexp"
	"strings"
)

// Kind identifies which search backend a request targets.
type Kind string

const (
	KindInfo   Kind = "info"
	KindImages Kind = "images"
	KindVideos Kind = "videos"
)

// Kinds lists every request kind in extraction order.
var Kinds = []Kind{KindInfo, KindImages, KindVideos}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInfo, KindImages, KindVideos:
		return true
	}
	return false
}

// Markers recognised in model output and user text.
const (
	Sentinel = "<search."

	OpenInfo   = "<search.info>"
	OpenImages = "<search.images>"
	OpenVideos = "<search.videos>"

	CloseInfo   = "</search.info>"
	CloseImages = "</search.images>"
	CloseOnline = "</search.online>"
	CloseVideos = "</search.videos>"
)

// Request is a single search query lifted out of text.
type Request struct {
	Kind  Kind   `json:"type"`
	Query string `json:"q"`
}

var (
	infoRe   = regexp.MustCompile(`(?i)<search\.info>([\s\S]*?)</search\.info>`)
	imagesRe = regexp.MustCompile(`(?i)<search\.images>([\s\S]*?)</search\.(?:images|online)>`)
	videosRe = regexp.MustCompile(`(?i)<search\.videos>([\s\S]*?)</search\.videos>`)

	infoStreamRe   = regexp.MustCompile(`(?i)<search\.info>[\s\S]*?</search\.info>\s*`)
	imagesStreamRe = regexp.MustCompile(`(?i)<search\.images>[\s\S]*?</search\.(?:images|online)>\s*`)
	videosStreamRe = regexp.MustCompile(`(?i)<search\.videos>[\s\S]*?</search\.videos>\s*`)
)

func spanPattern(k Kind) *regexp.Regexp {
	switch k {
	case KindImages:
		return imagesRe
	case KindVideos:
		return videosRe
	default:
		return infoRe
	}
}

// ExtractRequests returns every well-formed request in text: all info
// requests first, then images, then videos, each group in order of
// appearance. Queries are trimmed and empty ones are dropped.
func ExtractRequests(text string) []Request {
	if text == "" {
		return nil
	}
	var out []Request
	for _, kind := range Kinds {
		for _, m := range spanPattern(kind).FindAllStringSubmatch(text, -1) {
			q := strings.TrimSpace(m[1])
			if q == "" {
				continue
			}
			out = append(out, Request{Kind: kind, Query: q})
		}
	}
	return out
}

// Strip removes every well-formed request span and trims the result.
func Strip(text string) string {
	for _, kind := range Kinds {
		text = spanPattern(kind).ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// StripStream removes request spans together with the whitespace that
// follows each one. The rest of the text is left untouched.
func StripStream(text string) string {
	text = infoStreamRe.ReplaceAllString(text, "")
	text = imagesStreamRe.ReplaceAllString(text, "")
	return videosStreamRe.ReplaceAllString(text, "")
}
