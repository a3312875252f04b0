package matroska

import (
	"math"
)

// Releaser frees the storage behind a Buffer. It runs once, while the buffer
// is still valid.
type Releaser func(b *Buffer) error

type bufferOptions struct {
	copy     bool
	releaser Releaser
}

// BufferOption configures NewBuffer.
type BufferOption func(*bufferOptions)

// WithCopy makes the buffer own a private copy of the bytes.
func WithCopy() BufferOption {
	return func(o *bufferOptions) {
		o.copy = true
	}
}

// WithReleaser injects the strategy that frees the bytes on Release.
func WithReleaser(fn Releaser) BufferOption {
	return func(o *bufferOptions) {
		o.releaser = fn
	}
}

// Buffer is a frame payload handle. By default it references the caller's
// bytes; the caller keeps them alive until the buffer is released.
type Buffer struct {
	data     []byte
	size     uint32
	owned    bool
	releaser Releaser
	valid    bool
}

// NewBuffer wraps data. A payload too large for the 32-bit size field yields
// an invalid buffer instead of an error; check Valid before use.
func NewBuffer(data []byte, opts ...BufferOption) *Buffer {
	o := bufferOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Buffer{owned: o.copy, releaser: o.releaser}
	if uint64(len(data)) > math.MaxUint32 {
		return b
	}
	b.size = uint32(len(data))
	if o.copy {
		b.data = make([]byte, len(data))
		copy(b.data, data)
	} else {
		b.data = data
	}
	b.valid = true
	return b
}

// Valid reports whether the buffer holds usable bytes.
func (b *Buffer) Valid() bool {
	return b != nil && b.valid
}

// Owned reports whether the buffer holds a private copy of its bytes.
func (b *Buffer) Owned() bool {
	return b.owned
}

// Bytes returns the payload. It panics on a released or invalid buffer.
func (b *Buffer) Bytes() []byte {
	b.mustBeValid()
	return b.data
}

// Size returns the payload length. It panics on a released or invalid buffer.
func (b *Buffer) Size() uint32 {
	b.mustBeValid()
	return b.size
}

// Release runs the releaser and drops the storage. Calls after the first
// are no-ops.
func (b *Buffer) Release() error {
	if !b.Valid() {
		return nil
	}
	var err error
	if b.releaser != nil {
		err = b.releaser(b)
	}
	b.data = nil
	b.size = 0
	b.valid = false
	return err
}

// Clone returns an independent buffer owning a copy of the bytes. The
// releaser stays with the original.
func (b *Buffer) Clone() *Buffer {
	if !b.Valid() {
		return &Buffer{owned: true}
	}
	return NewBuffer(b.data, WithCopy())
}

func (b *Buffer) mustBeValid() {
	if !b.Valid() {
		panic("matroska: access to released or invalid buffer")
	}
}
