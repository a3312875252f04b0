package matroska

import (
	"github.com/pkg/errors"
)

// Policy decides which element a Handle writes.
type Policy int

const (
	// PolicyNoSimple always writes BlockGroups.
	PolicyNoSimple Policy = iota
	// PolicyAlwaysSimple always writes SimpleBlocks and never converts.
	PolicyAlwaysSimple
	// PolicySimpleAuto writes SimpleBlocks until a group is needed.
	PolicySimpleAuto
)

// variant is implemented by *SimpleBlock and *BlockGroup only.
type variant interface {
	Element
	internal() *Block
}

func (s *SimpleBlock) internal() *Block { return &s.Block }

func (g *BlockGroup) internal() *Block { return &g.block }

// Handle holds either a SimpleBlock or a BlockGroup and converts from the
// former to the latter when the policy allows it.
type Handle struct {
	table   *Table
	policy  Policy
	cluster ClusterID
	v       variant
}

func NewHandle(t *Table, policy Policy) *Handle {
	h := &Handle{table: t, policy: policy, cluster: NoCluster}
	if policy == PolicyNoSimple {
		h.v = NewBlockGroup(t)
	} else {
		h.v = NewSimpleBlock(t)
	}
	return h
}

func wrapHandle(t *Table, policy Policy, cluster ClusterID, v variant) *Handle {
	return &Handle{table: t, policy: policy, cluster: cluster, v: v}
}

func (h *Handle) Policy() Policy {
	return h.policy
}

func (h *Handle) Kind() Kind {
	return h.v.internal().Kind()
}

func (h *Handle) IsSimpleBlock() bool {
	_, ok := h.v.(*SimpleBlock)
	return ok
}

// Group returns the BlockGroup. It panics when the handle holds a SimpleBlock.
func (h *Handle) Group() *BlockGroup {
	g, ok := h.v.(*BlockGroup)
	if !ok {
		panic("matroska: handle holds a SimpleBlock, not a BlockGroup")
	}
	return g
}

// Simple returns the SimpleBlock. It panics when the handle holds a BlockGroup.
func (h *Handle) Simple() *SimpleBlock {
	s, ok := h.v.(*SimpleBlock)
	if !ok {
		panic("matroska: handle holds a BlockGroup, not a SimpleBlock")
	}
	return s
}

// Internal returns the frame container of whichever element is held.
func (h *Handle) Internal() *Block {
	return h.v.internal()
}

// Element returns the element to render.
func (h *Handle) Element() Element {
	return h.v
}

func (h *Handle) SetParent(c ClusterID) error {
	if err := h.v.internal().SetParent(c); err != nil {
		return err
	}
	h.cluster = c
	return nil
}

func (h *Handle) GlobalTimestamp() (uint64, error) {
	return h.v.internal().GlobalTimestamp()
}

func (h *Handle) ReleaseFrames() {
	h.v.internal().ReleaseFrames()
}

// SetBlockGroup replaces the held element with g, which is attached to the
// handle's cluster. Frames of the replaced element are released.
func (h *Handle) SetBlockGroup(g *BlockGroup) error {
	if h.policy == PolicyAlwaysSimple {
		return ErrConversionForbidden
	}
	if h.cluster != NoCluster {
		if err := g.SetParent(h.cluster); err != nil {
			return err
		}
	}
	if cur, ok := h.v.(*BlockGroup); !ok || cur != g {
		h.v.internal().ReleaseFrames()
	}
	h.v = g
	return nil
}

// SetBlockDuration sets the duration, turning the handle into a group first.
func (h *Handle) SetBlockDuration(ticks uint64) error {
	if err := h.ReplaceSimpleByGroup(); err != nil {
		return errors.Wrap(err, "block duration")
	}
	h.Group().SetBlockDuration(ticks)
	return nil
}

// ReplaceSimpleByGroup moves the frames of a SimpleBlock into a new
// BlockGroup. Keyframe and discardable flags are dropped. It is a no-op on a
// group.
func (h *Handle) ReplaceSimpleByGroup() error {
	if h.policy == PolicyAlwaysSimple {
		return ErrConversionForbidden
	}
	s, ok := h.v.(*SimpleBlock)
	if !ok {
		return nil
	}
	g := NewBlockGroup(h.table)
	g.block.moveFrom(&s.Block)
	h.v = g
	logger().Debug("SimpleBlock converted to BlockGroup", "track", g.block.trackNumber, "frames", g.block.NumFrames())
	return nil
}

// AddFrameAuto adds a frame to whichever element the policy selects. A
// SimpleBlock without references is a keyframe; with references it is not,
// and it is discardable when a reference lies in the future.
func (h *Handle) AddFrameAuto(track TrackID, timestamp uint64, buf *Buffer, lacing Lacing, past, forward Referenceable) error {
	noRefs := isNilRef(past) && isNilRef(forward)
	if s, ok := h.v.(*SimpleBlock); ok && (h.policy == PolicyAlwaysSimple || noRefs) {
		discardable := false
		if !noRefs {
			var err error
			if discardable, err = h.refersForward(track, timestamp, past, forward); err != nil {
				return err
			}
		}
		if err := s.AddFrame(track, timestamp, buf, lacing); err != nil {
			return err
		}
		s.SetKeyframe(noRefs)
		s.SetDiscardable(discardable)
		return nil
	}

	if err := h.ReplaceSimpleByGroup(); err != nil {
		return err
	}
	return h.Group().AddFrameWithRefs(track, timestamp, buf, lacing, past, forward)
}

func (h *Handle) refersForward(track TrackID, timestamp uint64, refs ...Referenceable) (bool, error) {
	tr, ok := h.table.Track(track)
	if !ok {
		return false, errors.Wrapf(ErrUnknownTrack, "track id %d", track)
	}
	own := tr.TimestampScale * timestamp
	for _, ref := range refs {
		if isNilRef(ref) {
			continue
		}
		ts, err := ref.GlobalTimestamp()
		if err != nil {
			return false, errors.Wrap(err, "referenced block")
		}
		if ts > own {
			return true, nil
		}
	}
	return false, nil
}
