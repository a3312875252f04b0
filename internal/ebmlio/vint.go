// Package ebmlio implements the small part of EBML the block engine relies on:
// variable-length integers, element headers, integer payloads and stream
// readers/writers that know their position.
package ebmlio

import (
	"io"
	"math/bits"

	"github.com/pkg/errors"
)

// MaxVintLength is the longest VINT accepted by Matroska (8 bytes, 56 data bits).
const MaxVintLength = 8

// UnknownSize is returned by ReadElementHeader when the size field has all data bits set.
const UnknownSize = ^uint64(0)

var (
	ErrVintOverflow = errors.New("value does not fit in a vint")
	ErrInvalidVint  = errors.New("invalid vint marker")
)

// VintSize returns the minimal coded length of v, or 0 when v cannot be coded.
func VintSize(v uint64) int {
	for n := 1; n <= MaxVintLength; n++ {
		if v < (uint64(1)<<(7*uint(n)))-1 {
			return n
		}
	}
	return 0
}

// PutVint codes v on exactly n bytes of b.
func PutVint(b []byte, v uint64, n int) error {
	if n < 1 || n > MaxVintLength || len(b) < n {
		return errors.Wrapf(ErrVintOverflow, "length %d", n)
	}
	if v >= (uint64(1)<<(7*uint(n)))-1 {
		return errors.Wrapf(ErrVintOverflow, "value %d on %d bytes", v, n)
	}
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	b[0] |= 0x80 >> uint(n-1)
	return nil
}

// AppendVint appends the minimal coding of v to dst.
func AppendVint(dst []byte, v uint64) ([]byte, error) {
	n := VintSize(v)
	if n == 0 {
		return dst, errors.Wrapf(ErrVintOverflow, "value %d", v)
	}
	var tmp [MaxVintLength]byte
	if err := PutVint(tmp[:], v, n); err != nil {
		return dst, err
	}
	return append(dst, tmp[:n]...), nil
}

// DecodeVint reads a VINT from the front of b. unknown is set when all data
// bits are ones, which Matroska reserves for "unknown size".
func DecodeVint(b []byte) (v uint64, n int, unknown bool, err error) {
	if len(b) == 0 {
		return 0, 0, false, io.ErrUnexpectedEOF
	}
	if b[0] == 0 {
		return 0, 0, false, ErrInvalidVint
	}
	n = bits.LeadingZeros8(b[0]) + 1
	if len(b) < n {
		return 0, 0, false, io.ErrUnexpectedEOF
	}
	v = uint64(b[0] & (0xFF >> uint(n)))
	for i := 1; i < n; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, n, v == (uint64(1)<<(7*uint(n)))-1, nil
}

func signedBias(n int) int64 {
	return (int64(1) << (7*uint(n) - 1)) - 1
}

// SignedVintSize returns the minimal coded length of a signed (lacing delta)
// VINT, or 0 when v cannot be coded.
func SignedVintSize(v int64) int {
	for n := 1; n <= MaxVintLength; n++ {
		bias := signedBias(n)
		if v >= -bias && v <= bias {
			return n
		}
	}
	return 0
}

// PutSignedVint codes v on exactly n bytes of b using the biased representation.
func PutSignedVint(b []byte, v int64, n int) error {
	if n < 1 || n > MaxVintLength {
		return errors.Wrapf(ErrVintOverflow, "length %d", n)
	}
	bias := signedBias(n)
	if v < -bias || v > bias {
		return errors.Wrapf(ErrVintOverflow, "signed value %d on %d bytes", v, n)
	}
	return PutVint(b, uint64(v+bias), n)
}

// AppendSignedVint appends the minimal signed coding of v to dst.
func AppendSignedVint(dst []byte, v int64) ([]byte, error) {
	n := SignedVintSize(v)
	if n == 0 {
		return dst, errors.Wrapf(ErrVintOverflow, "signed value %d", v)
	}
	var tmp [MaxVintLength]byte
	if err := PutSignedVint(tmp[:], v, n); err != nil {
		return dst, err
	}
	return append(dst, tmp[:n]...), nil
}

// DecodeSignedVint reads a signed VINT from the front of b.
func DecodeSignedVint(b []byte) (int64, int, error) {
	u, n, _, err := DecodeVint(b)
	if err != nil {
		return 0, 0, err
	}
	return int64(u) - signedBias(n), n, nil
}
