package matroska

import (
	"github.com/pkg/errors"
)

var (
	ErrInvalidBuffer       = errors.New("invalid frame buffer")
	ErrTimestampRange      = errors.New("relative timestamp does not fit in 16 bits")
	ErrTrackMismatch       = errors.New("frame track differs from block track")
	ErrUnknownTrack        = errors.New("unknown track")
	ErrNoParentCluster     = errors.New("parent cluster not set")
	ErrNoParentTrack       = errors.New("parent track not set")
	ErrBlockFull           = errors.New("block cannot take more frames")
	ErrBlockFrozen         = errors.New("block frames are fixed after render or parse")
	ErrEmptyBlock          = errors.New("block has no frames")
	ErrNoPayload           = errors.New("frame payload was not read")
	ErrCorrupt             = errors.New("corrupt block data")
	ErrConversionForbidden = errors.New("handle policy forbids block groups")
	ErrTrackNumberRange    = errors.New("track number out of range")
	ErrUnexpectedElement   = errors.New("unexpected element")
)
