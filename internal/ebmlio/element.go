package ebmlio

import (
	"github.com/pkg/errors"
)

// ID is an EBML element ID with its marker bits, e.g. 0xA3 or 0x1F43B675.
type ID uint32

// Size returns the coded length of the ID.
func (id ID) Size() int {
	switch {
	case id <= 0xFF:
		return 1
	case id <= 0xFFFF:
		return 2
	case id <= 0xFFFFFF:
		return 3
	default:
		return 4
	}
}

// Scope selects how much of an element ReadData materializes.
type Scope int

const (
	// ScopeAllData reads every payload byte.
	ScopeAllData Scope = iota
	// ScopeNoData parses headers and tables but skips payload bytes.
	ScopeNoData
)

// WriteFilter selects which optional children get rendered.
type WriteFilter int

const (
	// WriteSkipDefault omits children holding their default value.
	WriteSkipDefault WriteFilter = iota
	// WriteAll renders every child that has a value.
	WriteAll
)

// ElementHeaderSize returns the byte count of an element header carrying size.
func ElementHeaderSize(id ID, size uint64) int {
	return id.Size() + VintSize(size)
}

// WriteID writes the ID bytes.
func WriteID(w *Writer, id ID) error {
	n := id.Size()
	var buf [4]byte
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(id)
		id >>= 8
	}
	_, err := w.Write(buf[:n])
	return err
}

// WriteElementHeader writes id followed by the minimal coding of size and
// returns the header length.
func WriteElementHeader(w *Writer, id ID, size uint64) (int, error) {
	if err := WriteID(w, id); err != nil {
		return 0, errors.Wrapf(err, "write id 0x%X", uint32(id))
	}
	buf, err := AppendVint(nil, size)
	if err != nil {
		return 0, errors.Wrapf(err, "size of 0x%X", uint32(id))
	}
	if _, err := w.Write(buf); err != nil {
		return 0, errors.Wrapf(err, "write size of 0x%X", uint32(id))
	}
	return id.Size() + len(buf), nil
}

// UintSize returns the payload length of an unsigned integer element.
func UintSize(v uint64) int {
	n := 1
	for v > 0xFF {
		v >>= 8
		n++
	}
	return n
}

// AppendUint appends the big-endian payload of v.
func AppendUint(dst []byte, v uint64) []byte {
	n := UintSize(v)
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}

// GetUint decodes an unsigned integer payload.
func GetUint(b []byte) (uint64, error) {
	if len(b) > 8 {
		return 0, errors.Errorf("unsigned integer payload of %d bytes", len(b))
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// IntSize returns the payload length of a signed integer element.
func IntSize(v int64) int {
	n := 1
	for n < 8 {
		limit := int64(1) << (8*uint(n) - 1)
		if v >= -limit && v < limit {
			break
		}
		n++
	}
	return n
}

// AppendInt appends the big-endian two's complement payload of v.
func AppendInt(dst []byte, v int64) []byte {
	n := IntSize(v)
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}

// GetInt decodes a signed integer payload.
func GetInt(b []byte) (int64, error) {
	if len(b) > 8 {
		return 0, errors.Errorf("signed integer payload of %d bytes", len(b))
	}
	if len(b) == 0 {
		return 0, nil
	}
	v := int64(int8(b[0]))
	for _, c := range b[1:] {
		v = v<<8 | int64(c)
	}
	return v, nil
}

// WriteUintElement writes a complete unsigned integer element.
func WriteUintElement(w *Writer, id ID, v uint64) (uint64, error) {
	payload := AppendUint(nil, v)
	n, err := WriteElementHeader(w, id, uint64(len(payload)))
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(payload); err != nil {
		return 0, errors.Wrapf(err, "write 0x%X payload", uint32(id))
	}
	return uint64(n + len(payload)), nil
}

// WriteIntElement writes a complete signed integer element.
func WriteIntElement(w *Writer, id ID, v int64) (uint64, error) {
	payload := AppendInt(nil, v)
	n, err := WriteElementHeader(w, id, uint64(len(payload)))
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(payload); err != nil {
		return 0, errors.Wrapf(err, "write 0x%X payload", uint32(id))
	}
	return uint64(n + len(payload)), nil
}

// UintElementSize returns the full encoded length of an unsigned integer element.
func UintElementSize(id ID, v uint64) uint64 {
	n := uint64(UintSize(v))
	return uint64(ElementHeaderSize(id, n)) + n
}

// IntElementSize returns the full encoded length of a signed integer element.
func IntElementSize(id ID, v int64) uint64 {
	n := uint64(IntSize(v))
	return uint64(ElementHeaderSize(id, n)) + n
}
