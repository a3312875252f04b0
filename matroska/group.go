package matroska

import (
	"math"

	"github.com/pkg/errors"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
)

// ReferenceBlock points at another block of the same track. Delta is the
// distance in track ticks: negative for past blocks, positive for future ones.
type ReferenceBlock struct {
	Delta int16
}

// BlockGroup wraps a full Block with its duration and references.
type BlockGroup struct {
	block Block

	duration    uint64
	hasDuration bool
	priority    uint64
	refs        []ReferenceBlock
	size        uint64
}

// NewBlockGroup returns an empty group whose block resolves IDs through t.
func NewBlockGroup(t *Table) *BlockGroup {
	g := &BlockGroup{}
	g.block.init(t, KindFull)
	return g
}

// ID returns the BlockGroup element ID.
func (g *BlockGroup) ID() ebmlio.ID {
	return IDBlockGroup
}

// Block returns the contained block.
func (g *BlockGroup) Block() *Block {
	return &g.block
}

// SizeIsValid rejects empty groups.
func (g *BlockGroup) SizeIsValid(size uint64) bool {
	return size > 0
}

// SetBlockDuration sets the duration in track ticks.
func (g *BlockGroup) SetBlockDuration(ticks uint64) {
	g.duration = ticks
	g.hasDuration = true
}

// BlockDuration returns the duration and whether one was set.
func (g *BlockGroup) BlockDuration() (uint64, bool) {
	return g.duration, g.hasDuration
}

// SetReferencePriority sets the priority. Zero is left out of the output unless WriteAll.
func (g *BlockGroup) SetReferencePriority(p uint64) {
	g.priority = p
}

// ReferencePriority returns the reference priority.
func (g *BlockGroup) ReferencePriority() uint64 {
	return g.priority
}

// ReferenceCount returns the number of recorded references.
func (g *BlockGroup) ReferenceCount() int {
	return len(g.refs)
}

// Reference returns the i-th reference.
func (g *BlockGroup) Reference(i int) ReferenceBlock {
	return g.refs[i]
}

// SetParent moves the block to cluster c.
func (g *BlockGroup) SetParent(c ClusterID) error {
	return g.block.SetParent(c)
}

// SetParentTrack sets the track of the block.
func (g *BlockGroup) SetParentTrack(id TrackID) {
	g.block.SetParentTrack(id)
}

// GlobalTimestamp returns the absolute timestamp of the block.
func (g *BlockGroup) GlobalTimestamp() (uint64, error) {
	return g.block.GlobalTimestamp()
}

// TrackNumber returns the track number of the block.
func (g *BlockGroup) TrackNumber() uint16 {
	return g.block.TrackNumber()
}

// ClusterPosition returns the stream offset of the parent cluster.
func (g *BlockGroup) ClusterPosition() (int64, error) {
	return g.block.ClusterPosition()
}

// ReleaseFrames releases the frames of the block.
func (g *BlockGroup) ReleaseFrames() {
	g.block.ReleaseFrames()
}

// AddFrame adds a frame without references.
func (g *BlockGroup) AddFrame(track TrackID, timestamp uint64, buf *Buffer, lacing Lacing) error {
	return g.AddFrameWithRefs(track, timestamp, buf, lacing, nil, nil)
}

// AddFrameWithPast adds a frame referencing one past block.
func (g *BlockGroup) AddFrameWithPast(track TrackID, timestamp uint64, buf *Buffer, past Referenceable, lacing Lacing) error {
	return g.AddFrameWithRefs(track, timestamp, buf, lacing, past, nil)
}

// AddFrameWithRefs adds a frame and references past and forward, either of
// which may be nil. References are recorded only if the frame is accepted.
func (g *BlockGroup) AddFrameWithRefs(track TrackID, timestamp uint64, buf *Buffer, lacing Lacing, past, forward Referenceable) error {
	var pending []ReferenceBlock
	for _, ref := range []Referenceable{past, forward} {
		if isNilRef(ref) {
			continue
		}
		delta, err := g.referenceDelta(track, timestamp, ref)
		if err != nil {
			return err
		}
		pending = append(pending, ReferenceBlock{Delta: delta})
	}

	if err := g.block.AddFrame(track, timestamp, buf, lacing); err != nil {
		return err
	}
	for _, ref := range pending {
		g.addReference(ref)
	}
	return nil
}

func isNilRef(ref Referenceable) bool {
	switch r := ref.(type) {
	case nil:
		return true
	case *BlockGroup:
		return r == nil
	case *SimpleBlock:
		return r == nil
	case *Block:
		return r == nil
	case *Handle:
		return r == nil
	}
	return false
}

func (g *BlockGroup) addReference(ref ReferenceBlock) {
	for _, r := range g.refs {
		if r == ref {
			return
		}
	}
	g.refs = append(g.refs, ref)
}

// referenceDelta converts the distance to ref into track ticks of the block
// that timestamp would land in.
func (g *BlockGroup) referenceDelta(track TrackID, timestamp uint64, ref Referenceable) (int16, error) {
	tr, ok := g.block.table.Track(track)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownTrack, "track id %d", track)
	}
	own := tr.TimestampScale * timestamp
	if len(g.block.frames) > 0 {
		var err error
		if own, err = g.block.GlobalTimestamp(); err != nil {
			return 0, err
		}
	}
	other, err := ref.GlobalTimestamp()
	if err != nil {
		return 0, errors.Wrap(err, "referenced block")
	}
	delta := (int64(other) - int64(own)) / int64(tr.TimestampScale)
	if delta < math.MinInt16 || delta > math.MaxInt16 {
		return 0, errors.Wrapf(ErrTimestampRange, "reference %d ticks away", delta)
	}
	return int16(delta), nil
}

// UpdateSize computes the group size including its children.
func (g *BlockGroup) UpdateSize(filter ebmlio.WriteFilter, force bool) (uint64, error) {
	blockSize, err := g.block.UpdateSize(filter, force)
	if err != nil {
		return 0, err
	}
	size := uint64(ebmlio.ElementHeaderSize(IDBlock, blockSize)) + blockSize
	if g.hasDuration {
		size += ebmlio.UintElementSize(IDBlockDuration, g.duration)
	}
	if g.priority != 0 || filter == ebmlio.WriteAll {
		size += ebmlio.UintElementSize(IDReferencePriority, g.priority)
	}
	for _, r := range g.refs {
		size += ebmlio.IntElementSize(IDReferenceBlock, int64(r.Delta))
	}
	g.size = size
	return size, nil
}

// RenderData writes the group children.
func (g *BlockGroup) RenderData(w *ebmlio.Writer, force bool, filter ebmlio.WriteFilter) (uint64, error) {
	if g.block.state != StateSized {
		if _, err := g.UpdateSize(filter, force); err != nil {
			return 0, err
		}
	}
	hn, err := ebmlio.WriteElementHeader(w, IDBlock, g.block.size)
	if err != nil {
		return 0, err
	}
	written := uint64(hn)
	n, err := g.block.RenderData(w, force, filter)
	written += n
	if err != nil {
		return written, err
	}
	if g.hasDuration {
		n, err := ebmlio.WriteUintElement(w, IDBlockDuration, g.duration)
		written += n
		if err != nil {
			return written, err
		}
	}
	if g.priority != 0 || filter == ebmlio.WriteAll {
		n, err := ebmlio.WriteUintElement(w, IDReferencePriority, g.priority)
		written += n
		if err != nil {
			return written, err
		}
	}
	for _, r := range g.refs {
		n, err := ebmlio.WriteIntElement(w, IDReferenceBlock, int64(r.Delta))
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// ReadData parses the group children. Unknown children are skipped.
func (g *BlockGroup) ReadData(r *ebmlio.Reader, size uint64, scope ebmlio.Scope) (uint64, error) {
	lr := r.Limit(int64(size))
	g.refs = nil
	g.hasDuration = false
	g.duration = 0
	g.priority = 0
	sawBlock := false

	for lr.Remaining() > 0 {
		id, childSize, _, err := lr.ReadElementHeader()
		if err != nil {
			return g.consumed(lr, size), errors.Wrap(corrupt(err), "block group child")
		}
		if childSize == ebmlio.UnknownSize || childSize > uint64(lr.Remaining()) {
			return g.consumed(lr, size), errors.Wrapf(ErrCorrupt, "child 0x%X of %d bytes", uint32(id), childSize)
		}
		switch id {
		case IDBlock:
			if _, err := g.block.ReadData(lr, childSize, scope); err != nil {
				return g.consumed(lr, size), err
			}
			sawBlock = true
		case IDBlockDuration, IDReferencePriority, IDReferenceBlock:
			if err := g.readChild(lr, id, childSize); err != nil {
				return g.consumed(lr, size), err
			}
		default:
			if err := lr.Skip(int64(childSize)); err != nil {
				return g.consumed(lr, size), errors.Wrap(corrupt(err), "skip child")
			}
		}
	}
	if !sawBlock {
		return size, errors.Wrap(ErrCorrupt, "block group without block")
	}
	g.size = size
	return size, nil
}

func (g *BlockGroup) readChild(r *ebmlio.Reader, id ebmlio.ID, size uint64) error {
	if size > 8 {
		return errors.Wrapf(ErrCorrupt, "integer child 0x%X of %d bytes", uint32(id), size)
	}
	buf := make([]byte, size)
	if err := r.ReadFull(buf); err != nil {
		return errors.Wrap(corrupt(err), "integer child")
	}
	switch id {
	case IDReferenceBlock:
		v, err := ebmlio.GetInt(buf)
		if err != nil {
			return corrupt(err)
		}
		if v < math.MinInt16 || v > math.MaxInt16 {
			return errors.Wrapf(ErrTimestampRange, "reference %d", v)
		}
		g.refs = append(g.refs, ReferenceBlock{Delta: int16(v)})
	default:
		v, err := ebmlio.GetUint(buf)
		if err != nil {
			return corrupt(err)
		}
		if id == IDBlockDuration {
			g.SetBlockDuration(v)
		} else {
			g.priority = v
		}
	}
	return nil
}

func (g *BlockGroup) consumed(lr *ebmlio.Reader, size uint64) uint64 {
	return size - uint64(lr.Remaining())
}
