package ebmlio

import (
	"io"
	"math/bits"

	"github.com/pkg/errors"
)

// Reader tracks the stream position of everything read through it and can be
// bounded so a parser never reads past the element it was handed.
type Reader struct {
	src    io.Reader
	pos    int64
	remain int64 // -1 when unbounded
}

// NewReader wraps r, treating its current offset as position 0.
func NewReader(r io.Reader) *Reader {
	return NewReaderAt(r, 0)
}

// NewReaderAt wraps r whose current offset is pos.
func NewReaderAt(r io.Reader, pos int64) *Reader {
	return &Reader{src: r, pos: pos, remain: -1}
}

// Limit returns a reader over the next n bytes. Reads through it advance r.
func (r *Reader) Limit(n int64) *Reader {
	if r.remain >= 0 && n > r.remain {
		n = r.remain
	}
	return &Reader{src: r, pos: r.pos, remain: n}
}

func (r *Reader) Pos() int64 {
	return r.pos
}

// Remaining returns the bytes left in a bounded reader, -1 when unbounded.
func (r *Reader) Remaining() int64 {
	return r.remain
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.remain == 0 {
		return 0, io.EOF
	}
	if r.remain > 0 && int64(len(p)) > r.remain {
		p = p[:r.remain]
	}
	n, err := r.src.Read(p)
	r.pos += int64(n)
	if r.remain > 0 {
		r.remain -= int64(n)
	}
	return n, err
}

// ReadFull fills p or fails with io.ErrUnexpectedEOF.
func (r *Reader) ReadFull(p []byte) error {
	if _, err := io.ReadFull(r, p); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

// ReadByte returns io.EOF when no byte is left.
func (r *Reader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Skip advances n bytes, seeking when the source allows it.
func (r *Reader) Skip(n int64) error {
	if n < 0 {
		return errors.Errorf("negative skip %d", n)
	}
	if r.remain >= 0 && n > r.remain {
		return io.ErrUnexpectedEOF
	}
	switch src := r.src.(type) {
	case *Reader:
		if err := src.Skip(n); err != nil {
			return err
		}
	case io.Seeker:
		if _, err := src.Seek(n, io.SeekCurrent); err != nil {
			return errors.Wrap(err, "seek")
		}
	default:
		copied, err := io.CopyN(io.Discard, src, n)
		if err != nil {
			r.pos += copied
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	r.pos += n
	if r.remain > 0 {
		r.remain -= n
	}
	return nil
}

// ReadVint reads one unsigned VINT and reports its coded length.
func (r *Reader) ReadVint() (v uint64, n int, unknown bool, err error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, 0, false, err
	}
	if first == 0 {
		return 0, 1, false, ErrInvalidVint
	}
	n = bits.LeadingZeros8(first) + 1
	var buf [MaxVintLength]byte
	buf[0] = first
	if err := r.ReadFull(buf[1:n]); err != nil {
		return 0, n, false, err
	}
	return DecodeVint(buf[:n])
}

// ReadSignedVint reads one biased signed VINT, the coding of EBML lace deltas.
func (r *Reader) ReadSignedVint() (int64, int, error) {
	v, n, _, err := r.ReadVint()
	if err != nil {
		return 0, n, err
	}
	return int64(v) - signedBias(n), n, nil
}

// ReadID reads an element ID, marker bits included.
func (r *Reader) ReadID() (ID, int, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	if first < 0x10 {
		return 0, 1, errors.Wrapf(ErrInvalidVint, "element id starts with 0x%02x", first)
	}
	n := bits.LeadingZeros8(first) + 1
	id := ID(first)
	for i := 1; i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, i, err
		}
		id = id<<8 | ID(b)
	}
	return id, n, nil
}

// ReadElementHeader reads an element ID and its data size. The returned
// length is the header's byte count.
func (r *Reader) ReadElementHeader() (id ID, size uint64, n int, err error) {
	id, idLen, err := r.ReadID()
	if err != nil {
		return 0, 0, idLen, err
	}
	size, sizeLen, unknown, err := r.ReadVint()
	if err != nil {
		return id, 0, idLen + sizeLen, err
	}
	if unknown {
		size = UnknownSize
	}
	return id, size, idLen + sizeLen, nil
}
