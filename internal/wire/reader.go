package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxEventSize bounds a single event; content deltas are small.
const maxEventSize = 4 << 20

// Reader decodes frames from an event stream.
type Reader struct {
	sc   *bufio.Scanner
	done bool
}

// NewReader reads events from r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &Reader{sc: sc}
}

// Next returns the next frame. After the terminal frame, or when the
// stream ends without one, it returns io.EOF. Lines that are not data
// lines, and data that is not valid JSON, are skipped.
func (r *Reader) Next() (Frame, error) {
	if r.done {
		return Frame{}, io.EOF
	}
	for r.sc.Scan() {
		line := r.sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == Done {
			r.done = true
			return Frame{done: true}, nil
		}
		var f Frame
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			continue
		}
		return f, nil
	}
	if err := r.sc.Err(); err != nil {
		return Frame{}, fmt.Errorf("read event stream: %w", err)
	}
	r.done = true
	return Frame{}, io.EOF
}
