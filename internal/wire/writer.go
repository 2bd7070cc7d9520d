package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// SetHeaders prepares a response for event streaming.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Writer encodes frames onto a stream and flushes after each one.
// It is safe for concurrent use; frames are written whole.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool
	onFrame func(Frame)
}

// NewWriter wraps w. When w is an http.Flusher every frame is flushed.
func NewWriter(w io.Writer) *Writer {
	fw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// Tee registers fn to observe every frame written, including the
// terminal one. It must be called before the first write.
func (w *Writer) Tee(fn func(Frame)) {
	w.onFrame = fn
}

// WriteFrame writes a single frame.
func (w *Writer) WriteFrame(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return w.write(f, b)
}

// WriteDone writes the terminal marker. Later writes fail.
func (w *Writer) WriteDone() error {
	if err := w.write(Frame{done: true}, []byte(Done)); err != nil {
		return err
	}
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *Writer) write(f Frame, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	if w.onFrame != nil {
		w.onFrame(f)
	}
	return nil
}
