// Package edit splits streamed replies into prose and code, and applies
// line-range patches to documents.
package edit

import "strings"

const fence = "```"

// FenceRouter splits streaming text into prose and fenced code.
// Text outside triple-backtick fences goes to OnProse, text inside to
// OnCode. The fence itself, its info string (for example "html") and the
// line terminators around it are never forwarded.
type FenceRouter struct {
	buffer      string
	inCode      bool
	skipInfo    bool // discarding the rest of an opening fence line
	skipEOL     bool // a closing fence may still be followed by a newline
	editor      strings.Builder
	OnProse     func(text string)
	OnCode      func(text string) // incremental code, in arrival order
	OnCodeStart func()
	OnCodeStop  func(code string) // full content of the closed block
}

// NewFenceRouter creates a router in prose mode.
func NewFenceRouter() *FenceRouter {
	return &FenceRouter{}
}

// Feed processes a chunk of filtered stream text.
func (r *FenceRouter) Feed(chunk string) {
	r.buffer += chunk
	r.process()
}

// Flush releases any text held back while waiting for a possible fence.
// An open code block stays open; its content has already been routed.
func (r *FenceRouter) Flush() {
	if r.buffer != "" && !r.skipInfo {
		r.emit(r.buffer)
	}
	r.buffer = ""
	r.skipInfo = false
	r.skipEOL = false
}

// InCode reports whether the router is inside a code block.
func (r *FenceRouter) InCode() bool {
	return r.inCode
}

// Code returns the accumulated content of the current or last code block.
func (r *FenceRouter) Code() string {
	return r.editor.String()
}

func (r *FenceRouter) process() {
	for r.buffer != "" {
		text := r.buffer

		if r.skipEOL {
			switch {
			case strings.HasPrefix(text, "\r\n"):
				text = text[2:]
			case strings.HasPrefix(text, "\n"):
				text = text[1:]
			case text == "\r":
				// Wait for the byte after the carriage return.
				return
			}
			r.skipEOL = false
			r.buffer = text
			continue
		}

		if r.skipInfo {
			nl := strings.IndexByte(text, '\n')
			if nl < 0 {
				r.buffer = ""
				return
			}
			r.skipInfo = false
			r.buffer = text[nl+1:]
			continue
		}

		idx := strings.Index(text, fence)
		if idx < 0 {
			// Keep a trailing "`" or "``" until we know whether it opens a fence.
			keep := trailingBackticks(text)
			r.emit(text[:len(text)-keep])
			r.buffer = text[len(text)-keep:]
			return
		}

		r.emit(text[:idx])
		r.buffer = text[idx+len(fence):]

		if !r.inCode {
			r.inCode = true
			r.skipInfo = true
			r.editor.Reset()
			if r.OnCodeStart != nil {
				r.OnCodeStart()
			}
			continue
		}

		r.inCode = false
		r.skipEOL = true
		if r.OnCodeStop != nil {
			r.OnCodeStop(r.editor.String())
		}
	}
}

func (r *FenceRouter) emit(text string) {
	if text == "" {
		return
	}
	if r.inCode {
		r.editor.WriteString(text)
		if r.OnCode != nil {
			r.OnCode(text)
		}
		return
	}
	if r.OnProse != nil {
		r.OnProse(text)
	}
}

func trailingBackticks(text string) int {
	n := 0
	for n < 2 && n < len(text) && text[len(text)-1-n] == '`' {
		n++
	}
	return n
}
