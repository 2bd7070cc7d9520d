package serveui

import (
	"strings"
	"testing"
)

func TestIndexHTML(t *testing.T) {
	page := string(IndexHTML())
	for _, want := range []string{"/api/chat/stream", "[DONE]", "changeline"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestIndexHTMLReturnsCopy(t *testing.T) {
	a := IndexHTML()
	a[0] = 'X'
	if IndexHTML()[0] == 'X' {
		t.Fatal("IndexHTML exposed the embedded buffer")
	}
}

func TestETagIsStableAndQuoted(t *testing.T) {
	if ETag() != ETag() {
		t.Fatal("etag changed between calls")
	}
	if !strings.HasPrefix(ETag(), `"`) || !strings.HasSuffix(ETag(), `"`) {
		t.Fatalf("etag %s is not quoted", ETag())
	}
}
