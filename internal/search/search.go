// Package search runs web lookups requested through inline search tags and
// renders their results as hidden model context.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/samsaffron/pulse/internal/tags"
)

// Provider answers a single search request.
type Provider interface {
	Query(ctx context.Context, kind tags.Kind, q string) (Results, error)
}

// Organic is one web result.
type Organic struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Results holds what one request produced. Only the field matching Kind
// is populated.
type Results struct {
	Kind       tags.Kind `json:"type"`
	Query      string    `json:"q"`
	Organic    []Organic `json:"organic,omitempty"`
	ImageURLs  []string  `json:"imageUrls,omitempty"`
	VideoLinks []string  `json:"videoLinks,omitempty"`
}

// Empty reports whether r carries no results.
func (r Results) Empty() bool {
	return len(r.Organic) == 0 && len(r.ImageURLs) == 0 && len(r.VideoLinks) == 0
}

// FormatContext renders results as the text block handed to the model.
func FormatContext(results []Results) string {
	var b strings.Builder
	for _, r := range results {
		switch r.Kind {
		case tags.KindInfo:
			fmt.Fprintf(&b, "\n[Web info for: %s]\n", r.Query)
			for _, item := range r.Organic {
				fmt.Fprintf(&b, "- %s (%s)\n  %s\n", item.Title, item.Link, item.Snippet)
			}
		case tags.KindImages:
			fmt.Fprintf(&b, "\n[Image results for: %s]\n", r.Query)
			fmt.Fprintf(&b, "- Total image links available: %d\n", len(r.ImageURLs))
			for _, u := range r.ImageURLs {
				fmt.Fprintf(&b, "- %s\n", u)
			}
		case tags.KindVideos:
			fmt.Fprintf(&b, "\n[Video results for: %s]\n", r.Query)
			fmt.Fprintf(&b, "- Total video links available: %d\n", len(r.VideoLinks))
			for _, link := range r.VideoLinks {
				fmt.Fprintf(&b, "- %s\n", link)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
