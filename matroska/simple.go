package matroska

// SimpleBlock is the compact block element. Keyframe and discardable bits
// live in its flags byte.
type SimpleBlock struct {
	Block
}

// NewSimpleBlock returns an empty SimpleBlock marked as a keyframe.
func NewSimpleBlock(t *Table) *SimpleBlock {
	s := &SimpleBlock{}
	s.init(t, KindCompact)
	s.flags = flagKeyframe
	return s
}

func (s *SimpleBlock) SetKeyframe(keyframe bool) {
	s.setFlag(flagKeyframe, keyframe)
}

func (s *SimpleBlock) SetDiscardable(discardable bool) {
	s.setFlag(flagDiscardable, discardable)
}

func (s *SimpleBlock) IsKeyframe() bool {
	return s.flags&flagKeyframe != 0
}

func (s *SimpleBlock) IsDiscardable() bool {
	return s.flags&flagDiscardable != 0
}

func (s *SimpleBlock) setFlag(bit byte, on bool) {
	if on {
		s.flags |= bit
	} else {
		s.flags &^= bit
	}
	s.dirty()
}
