package matroska

import (
	"github.com/babelcloud/mkvblock/internal/ebmlio"
)

// Lacing is the multi-frame packing of a block payload. The first four values
// match the two lacing bits of the block flags.
type Lacing uint8

const (
	LacingNone Lacing = iota
	LacingXiph
	LacingFixed
	LacingEBML
	// LacingAuto asks the block to pick the smallest encoding when sized.
	LacingAuto
)

const lacingMask = 0x06

func (l Lacing) flagBits() byte {
	if l > LacingEBML {
		return 0
	}
	return byte(l) << 1
}

func lacingFromFlags(flags byte) Lacing {
	return Lacing((flags & lacingMask) >> 1)
}

// XiphLacingSize returns the lace table size, count byte included, for Xiph
// lacing of the given frame sizes.
func XiphLacingSize(sizes []int32) uint64 {
	n := uint64(1)
	for i := 0; i < len(sizes)-1; i++ {
		n += uint64(sizes[i])/255 + 1
	}
	return n
}

// EBMLLacingSize returns the lace table size, count byte included, for EBML
// lacing of the given frame sizes.
func EBMLLacingSize(sizes []int32) uint64 {
	if len(sizes) < 2 {
		return 1
	}
	n := uint64(1) + uint64(ebmlio.VintSize(uint64(sizes[0])))
	for i := 1; i < len(sizes)-1; i++ {
		n += uint64(ebmlio.SignedVintSize(int64(sizes[i]) - int64(sizes[i-1])))
	}
	return n
}

// FixedLacingSize returns the lace table size for fixed-size lacing.
func FixedLacingSize(sizes []int32) uint64 {
	return 1
}

// LacingSize returns the lace table size of kind for sizes. LacingNone and a
// single frame need no table.
func LacingSize(kind Lacing, sizes []int32) uint64 {
	if len(sizes) < 2 {
		return 0
	}
	switch kind {
	case LacingXiph:
		return XiphLacingSize(sizes)
	case LacingFixed:
		return FixedLacingSize(sizes)
	case LacingEBML:
		return EBMLLacingSize(sizes)
	case LacingAuto:
		return LacingSize(BestLacing(sizes), sizes)
	default:
		return 0
	}
}

// BestLacing picks the lacing with the smallest footprint for sizes. Equal
// sizes always use fixed lacing; Xiph wins over EBML only when strictly smaller.
func BestLacing(sizes []int32) Lacing {
	if len(sizes) < 2 {
		return LacingNone
	}
	if sameSizes(sizes) {
		return LacingFixed
	}
	if XiphLacingSize(sizes) < EBMLLacingSize(sizes) {
		return LacingXiph
	}
	return LacingEBML
}

func sameSizes(sizes []int32) bool {
	for _, s := range sizes[1:] {
		if s != sizes[0] {
			return false
		}
	}
	return true
}

func appendLaceTable(dst []byte, kind Lacing, sizes []int32) ([]byte, error) {
	dst = append(dst, byte(len(sizes)-1))
	switch kind {
	case LacingXiph:
		for _, s := range sizes[:len(sizes)-1] {
			for s >= 0xFF {
				dst = append(dst, 0xFF)
				s -= 0xFF
			}
			dst = append(dst, byte(s))
		}
	case LacingEBML:
		var err error
		if dst, err = ebmlio.AppendVint(dst, uint64(sizes[0])); err != nil {
			return dst, err
		}
		for i := 1; i < len(sizes)-1; i++ {
			if dst, err = ebmlio.AppendSignedVint(dst, int64(sizes[i])-int64(sizes[i-1])); err != nil {
				return dst, err
			}
		}
	}
	return dst, nil
}
