package tether

import (
	"bytes"
)

// Wire format constants.
const (
	// FrameTerminator ends every frame, in both directions.
	FrameTerminator = '\n'
	// TokenSeparator separates the command name and the arguments of a frame.
	TokenSeparator = ' '
)

// FrameDecoder turns a stream of received text, delivered in arbitrary chunks, into the
// sequence of complete frames it contains.
//
// Push appends a chunk; Pull returns the next complete frame, if any. Callers drain all
// complete frames with Pull after every Push. The frames returned never depend on how the
// input was split into chunks, including which frames are dropped for exceeding the maximum
// frame size.
//
// A FrameDecoder is not goroutine-safe; it is owned by the session worker.
type FrameDecoder struct {
	buf     []byte
	head    int // start of the unconsumed data in buf
	maxSize int
	// discarding is set after an oversized fragment was dropped; input is skipped up to and
	// including the next terminator.
	discarding bool
	dropped    int
}

// NewFrameDecoder creates a decoder. Frames longer than maxSize bytes, terminator excluded,
// are dropped; zero or a negative value disables the bound.
func NewFrameDecoder(maxSize int) *FrameDecoder {
	return &FrameDecoder{maxSize: maxSize}
}

// Push appends received text to the buffer.
//
// A trailing fragment already longer than the maximum frame size is discarded up to its
// terminator and counted as dropped. Complete frames already buffered are kept.
func (d *FrameDecoder) Push(text string) {
	if d.discarding {
		idx := indexTerminator(text)
		if idx < 0 {
			return
		}
		d.discarding = false
		text = text[idx+1:]
	}

	d.compact()
	d.buf = append(d.buf, text...)

	if d.maxSize <= 0 {
		return
	}

	pending := d.buf[d.head:]
	tail := len(pending) - (bytes.LastIndexByte(pending, FrameTerminator) + 1)
	if tail <= d.maxSize {
		return
	}

	d.buf = d.buf[:len(d.buf)-tail]
	d.discarding = true
	d.dropped++
}

// Pull returns the next complete frame without its terminator. Complete frames longer than
// the maximum frame size are skipped and counted as dropped. It returns false when no
// complete frame is buffered.
func (d *FrameDecoder) Pull() (string, bool) {
	for {
		idx := bytes.IndexByte(d.buf[d.head:], FrameTerminator)
		if idx < 0 {
			return "", false
		}

		start := d.head
		d.head += idx + 1
		oversized := d.maxSize > 0 && idx > d.maxSize

		var frame string
		if !oversized {
			frame = string(d.buf[start : start+idx])
		}

		if d.head == len(d.buf) {
			d.buf = d.buf[:0]
			d.head = 0
		}

		if oversized {
			d.dropped++
			continue
		}

		return frame, true
	}
}

// TakeDropped returns the number of oversized frames dropped since the previous call.
func (d *FrameDecoder) TakeDropped() int {
	n := d.dropped
	d.dropped = 0

	return n
}

// Len returns the number of buffered bytes not yet returned by Pull.
func (d *FrameDecoder) Len() int {
	return len(d.buf) - d.head
}

// Reset discards all buffered data.
func (d *FrameDecoder) Reset() {
	d.buf = d.buf[:0]
	d.head = 0
	d.discarding = false
	d.dropped = 0
}

// compact moves the unconsumed data to the front of buf once the consumed prefix dominates.
func (d *FrameDecoder) compact() {
	if d.head == 0 || d.head < len(d.buf)/2 {
		return
	}
	n := copy(d.buf, d.buf[d.head:])
	d.buf = d.buf[:n]
	d.head = 0
}

func indexTerminator(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == FrameTerminator {
			return i
		}
	}

	return -1
}

// EncodeFrame returns the wire form of an outbound command.
func EncodeFrame(command string) string {
	return command + string(FrameTerminator)
}
