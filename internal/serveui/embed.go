// Package serveui embeds the browser client: a chat pane next to a live
// preview of the document being built.
package serveui

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
)

//go:embed static/index.html
var indexHTML []byte

var etag = func() string {
	sum := sha256.Sum256(indexHTML)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}()

// IndexHTML returns a copy of the page.
func IndexHTML() []byte {
	out := make([]byte, len(indexHTML))
	copy(out, indexHTML)
	return out
}

// ETag identifies the embedded page version.
func ETag() string {
	return etag
}
