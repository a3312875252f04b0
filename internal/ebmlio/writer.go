package ebmlio

import (
	"io"
)

// Writer tracks the stream position of everything written through it.
type Writer struct {
	w   io.Writer
	pos int64
}

// NewWriter wraps w, treating its current offset as position 0.
func NewWriter(w io.Writer) *Writer {
	return NewWriterAt(w, 0)
}

// NewWriterAt wraps w whose current offset is pos.
func NewWriterAt(w io.Writer, pos int64) *Writer {
	return &Writer{w: w, pos: pos}
}

func (w *Writer) Pos() int64 {
	return w.pos
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.pos += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

func (w *Writer) WriteByte(c byte) error {
	_, err := w.Write([]byte{c})
	return err
}
