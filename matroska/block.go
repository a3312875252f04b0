package matroska

import (
	"bytes"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
)

// Kind tells a full Block (inside a BlockGroup) from a compact SimpleBlock.
type Kind int

const (
	KindFull Kind = iota
	KindCompact
)

func (k Kind) String() string {
	if k == KindCompact {
		return "SimpleBlock"
	}
	return "Block"
}

// State is the lifecycle position of a Block.
type State int

const (
	StateEmpty State = iota
	StateAccumulating
	StateSized
	StateRendered
	StateParsed
)

const (
	// MaxLacedFrames is the hard limit imposed by the one-byte lace count.
	MaxLacedFrames = 256
	// PreferredLacedFrames is where Full starts reporting true; more frames
	// barely shrink the lace overhead.
	PreferredLacedFrames = 8
	// minHeadSize is a one-byte track number, the timestamp and the flags.
	minHeadSize = 4
)

const (
	flagKeyframe    = 0x80
	flagInvisible   = 0x08
	flagDiscardable = 0x01
)

// Referenceable is anything a block can reference by timestamp.
type Referenceable interface {
	GlobalTimestamp() (uint64, error)
}

// Block is the frame container shared by Block and SimpleBlock elements.
type Block struct {
	table   *Table
	kind    Kind
	cluster ClusterID
	track   TrackID

	frames []*Buffer
	sizes  []int32

	trackNumber  uint16
	timestamp    uint64 // absolute ticks of the first frame
	relative     int16
	hasTimestamp bool
	invisible    bool
	flags        byte // keyframe and discardable bits, compact kind only
	lacing       Lacing
	resolved     Lacing
	size         uint64
	state        State

	firstFrame int64
	payload    []byte
}

// NewBlock returns an empty full-kind Block resolving its parents through t.
func NewBlock(t *Table) *Block {
	b := &Block{}
	b.init(t, KindFull)
	return b
}

func (b *Block) init(t *Table, kind Kind) {
	b.table = t
	b.kind = kind
	b.cluster = NoCluster
	b.track = NoTrack
	b.lacing = LacingAuto
	b.resolved = LacingNone
	b.firstFrame = -1
}

func (b *Block) ID() ebmlio.ID {
	if b.kind == KindCompact {
		return IDSimpleBlock
	}
	return IDBlock
}

func (b *Block) Kind() Kind {
	return b.kind
}

func (b *Block) State() State {
	return b.state
}

// SizeIsValid rejects payloads shorter than the fixed head.
func (b *Block) SizeIsValid(size uint64) bool {
	return size >= minHeadSize
}

// SetParent attaches the block to a cluster. When frames are already held the
// relative timestamp is recomputed and must still fit.
func (b *Block) SetParent(c ClusterID) error {
	if b.hasTimestamp && len(b.frames) > 0 && b.state == StateAccumulating {
		cl, ok := b.table.Cluster(c)
		if !ok {
			return errors.Wrapf(ErrNoParentCluster, "cluster id %d", c)
		}
		rel, err := relativeTimestamp(b.timestamp, cl.BaseTimestamp)
		if err != nil {
			return err
		}
		b.relative = rel
	}
	b.cluster = c
	return nil
}

// SetParentTrack points the block at a registered track.
func (b *Block) SetParentTrack(id TrackID) {
	b.track = id
}

func (b *Block) NumFrames() int {
	return len(b.sizes)
}

// Frame returns the i-th frame buffer, nil when its payload was skipped.
func (b *Block) Frame(i int) *Buffer {
	if i < 0 || i >= len(b.frames) {
		return nil
	}
	return b.frames[i]
}

func (b *Block) TrackNumber() uint16 {
	return b.trackNumber
}

// RelativeTimestamp is the timestamp as written in the block.
func (b *Block) RelativeTimestamp() int16 {
	return b.relative
}

func (b *Block) Invisible() bool {
	return b.invisible
}

func (b *Block) SetInvisible(invisible bool) {
	b.invisible = invisible
	b.dirty()
}

// Lacing returns the lacing in effect: the resolved one once sized or
// parsed, the requested one before.
func (b *Block) Lacing() Lacing {
	switch b.state {
	case StateSized, StateRendered, StateParsed:
		return b.resolved
	}
	return b.lacing
}

// Full reports whether the block should be closed: lacing is disabled or the
// preferred frame count is reached.
func (b *Block) Full() bool {
	if len(b.frames) == 0 {
		return false
	}
	return b.lacing == LacingNone || len(b.frames) >= PreferredLacedFrames
}

// AddFrame appends buf as the next frame. The first frame fixes the track,
// the timestamp and the lacing. A rendered or parsed block takes no more
// frames until ReleaseFrames. On error nothing is changed and buf still
// belongs to the caller; on success the block owns it.
func (b *Block) AddFrame(track TrackID, timestamp uint64, buf *Buffer, lacing Lacing) error {
	if b.state == StateRendered || b.state == StateParsed {
		return errors.Wrapf(ErrBlockFrozen, "block in state %d", b.state)
	}
	if !buf.Valid() {
		return ErrInvalidBuffer
	}
	if buf.Size() > math.MaxInt32 {
		return errors.Wrapf(ErrInvalidBuffer, "frame of %d bytes", buf.Size())
	}
	tr, ok := b.table.Track(track)
	if !ok {
		return errors.Wrapf(ErrUnknownTrack, "track id %d", track)
	}
	first := len(b.frames) == 0
	if !first && tr.Number != b.trackNumber {
		return errors.Wrapf(ErrTrackMismatch, "track %d added to block of track %d", tr.Number, b.trackNumber)
	}
	if !first && (b.lacing == LacingNone || len(b.frames) >= MaxLacedFrames) {
		return errors.Wrapf(ErrBlockFull, "%d frames, lacing %s", len(b.frames), b.lacing)
	}
	cl, ok := b.table.Cluster(b.cluster)
	if !ok {
		return ErrNoParentCluster
	}
	rel, err := relativeTimestamp(timestamp, cl.BaseTimestamp)
	if err != nil {
		logger().Debug("Frame rejected", "track", tr.Number, "timestamp", timestamp,
			"cluster_timestamp", cl.BaseTimestamp, "error", err)
		return err
	}

	if first {
		b.timestamp = timestamp
		b.relative = rel
		b.hasTimestamp = true
		b.trackNumber = tr.Number
		b.track = track
		b.lacing = lacing
		b.firstFrame = -1
	}
	b.frames = append(b.frames, buf)
	b.sizes = append(b.sizes, int32(buf.Size()))
	b.state = StateAccumulating
	return nil
}

func relativeTimestamp(timestamp, base uint64) (int16, error) {
	delta := int64(timestamp) - int64(base)
	if delta < math.MinInt16 || delta > math.MaxInt16 {
		return 0, errors.Wrapf(ErrTimestampRange, "timestamp %d against cluster %d", timestamp, base)
	}
	return int16(delta), nil
}

func (b *Block) parentTrack() (Track, bool) {
	if tr, ok := b.table.Track(b.track); ok {
		return tr, true
	}
	if !b.hasTimestamp {
		return Track{}, false
	}
	id, ok := b.table.TrackByNumber(b.trackNumber)
	if !ok {
		return Track{}, false
	}
	return b.table.Track(id)
}

// GlobalTimestamp returns scale * (cluster base + relative timestamp).
func (b *Block) GlobalTimestamp() (uint64, error) {
	if !b.hasTimestamp {
		return 0, ErrEmptyBlock
	}
	tr, ok := b.parentTrack()
	if !ok {
		return 0, ErrNoParentTrack
	}
	cl, ok := b.table.Cluster(b.cluster)
	if !ok {
		return 0, ErrNoParentCluster
	}
	return tr.TimestampScale * uint64(int64(cl.BaseTimestamp)+int64(b.relative)), nil
}

// ClusterPosition returns the stream position of the parent cluster.
func (b *Block) ClusterPosition() (int64, error) {
	cl, ok := b.table.Cluster(b.cluster)
	if !ok {
		return -1, ErrNoParentCluster
	}
	return cl.Position, nil
}

// GetBestLacingType returns the lacing that produces the smallest footprint.
func (b *Block) GetBestLacingType() Lacing {
	return BestLacing(b.sizes)
}

func (b *Block) resolveLacing() Lacing {
	if len(b.sizes) < 2 {
		return LacingNone
	}
	switch b.lacing {
	case LacingXiph, LacingEBML:
		return b.lacing
	case LacingFixed:
		if sameSizes(b.sizes) {
			return LacingFixed
		}
		logger().Debug("Fixed lacing needs equal frames, choosing best lacing",
			"track", b.trackNumber, "frames", len(b.sizes))
	}
	return b.GetBestLacingType()
}

func (b *Block) headSize() uint64 {
	return uint64(ebmlio.VintSize(uint64(b.trackNumber))) + 3
}

// UpdateSize resolves the lacing and returns the exact payload size
// RenderData will write. An empty block is an error unless force is set.
func (b *Block) UpdateSize(_ ebmlio.WriteFilter, force bool) (uint64, error) {
	if len(b.sizes) == 0 && !force {
		return 0, ErrEmptyBlock
	}
	b.resolved = b.resolveLacing()
	size := b.headSize() + LacingSize(b.resolved, b.sizes)
	for _, s := range b.sizes {
		size += uint64(s)
	}
	b.size = size
	b.state = StateSized
	return size, nil
}

func (b *Block) dirty() {
	if b.state == StateSized || b.state == StateRendered {
		b.state = StateAccumulating
	}
}

// RenderData writes the head, the lace table and the frames. It sizes the
// block first when UpdateSize was not called since the last change.
func (b *Block) RenderData(w *ebmlio.Writer, force bool, filter ebmlio.WriteFilter) (uint64, error) {
	if b.state != StateSized {
		if _, err := b.UpdateSize(filter, force); err != nil {
			return 0, err
		}
	}
	for i, f := range b.frames {
		if f == nil || !f.Valid() {
			return 0, errors.Wrapf(ErrNoPayload, "frame %d", i)
		}
	}

	head := make([]byte, 0, 16)
	head, err := ebmlio.AppendVint(head, uint64(b.trackNumber))
	if err != nil {
		return 0, err
	}
	head = append(head, byte(uint16(b.relative)>>8), byte(uint16(b.relative)))
	flags := b.resolved.flagBits()
	if b.invisible {
		flags |= flagInvisible
	}
	if b.kind == KindCompact {
		flags |= b.flags
	}
	head = append(head, flags)
	if b.resolved != LacingNone {
		if head, err = appendLaceTable(head, b.resolved, b.sizes); err != nil {
			return 0, err
		}
	}
	if _, err := w.Write(head); err != nil {
		return 0, errors.Wrap(err, "write block head")
	}

	written := uint64(len(head))
	b.firstFrame = w.Pos()
	for i, f := range b.frames {
		n, err := w.Write(f.Bytes())
		written += uint64(n)
		if err != nil {
			return written, errors.Wrapf(err, "write frame %d", i)
		}
	}
	if written != b.size {
		return written, errors.Errorf("block rendered %d bytes, sized %d", written, b.size)
	}
	b.state = StateRendered
	return written, nil
}

func (b *Block) readHead(r *ebmlio.Reader) (flags byte, n int, err error) {
	track, tn, unknown, err := r.ReadVint()
	if err != nil {
		return 0, tn, errors.Wrap(corrupt(err), "track number")
	}
	if unknown || track > math.MaxUint16 {
		return 0, tn, errors.Wrapf(ErrCorrupt, "track number %d", track)
	}
	var ts [3]byte
	if err := r.ReadFull(ts[:]); err != nil {
		return 0, tn, errors.Wrap(corrupt(err), "timestamp and flags")
	}
	b.trackNumber = uint16(track)
	b.relative = int16(uint16(ts[0])<<8 | uint16(ts[1]))
	b.hasTimestamp = true
	b.invisible = ts[2]&flagInvisible != 0
	b.resolved = lacingFromFlags(ts[2])
	b.lacing = b.resolved
	if b.kind == KindCompact {
		b.flags = ts[2] & (flagKeyframe | flagDiscardable)
	}
	if cl, ok := b.table.Cluster(b.cluster); ok {
		b.timestamp = uint64(int64(cl.BaseTimestamp) + int64(b.relative))
	}
	if id, ok := b.table.TrackByNumber(b.trackNumber); ok {
		b.track = id
	}
	return ts[2], tn + 3, nil
}

// ReadInternalHead reads only the track number, timestamp and flags and
// returns the head length. Frames are left untouched.
func (b *Block) ReadInternalHead(r *ebmlio.Reader) (uint64, error) {
	_, n, err := b.readHead(r)
	return uint64(n), err
}

// ReadData parses a block payload of size bytes. With ScopeAllData the
// payload is read once and frames are non-owning views into it; with
// ScopeNoData only sizes and positions are kept.
func (b *Block) ReadData(r *ebmlio.Reader, size uint64, scope ebmlio.Scope) (uint64, error) {
	if !b.SizeIsValid(size) {
		return 0, errors.Wrapf(ErrCorrupt, "block payload of %d bytes", size)
	}
	b.ReleaseFrames()

	lr := r.Limit(int64(size))
	_, headLen, err := b.readHead(lr)
	if err != nil {
		return uint64(size - uint64(lr.Remaining())), err
	}
	remaining := size - uint64(headLen)

	var sizes []int32
	if b.resolved == LacingNone {
		if remaining > math.MaxInt32 {
			return 0, errors.Wrapf(ErrCorrupt, "frame of %d bytes", remaining)
		}
		sizes = []int32{int32(remaining)}
	} else {
		sizes, err = readLaceTable(lr, b.resolved, remaining)
		if err != nil {
			return size - uint64(lr.Remaining()), err
		}
	}

	b.firstFrame = lr.Pos()
	total := uint64(lr.Remaining())
	frames := make([]*Buffer, len(sizes))
	if scope == ebmlio.ScopeAllData {
		// Grow with the bytes actually present; the declared size is untrusted.
		var payload bytes.Buffer
		n, err := io.CopyN(&payload, lr, int64(total))
		if err != nil {
			b.firstFrame = -1
			return size - uint64(lr.Remaining()), errors.Wrapf(corrupt(err), "frame data: %d of %d bytes", n, total)
		}
		data := payload.Bytes()
		off := 0
		for i, s := range sizes {
			frames[i] = NewBuffer(data[off : off+int(s)])
			off += int(s)
		}
		b.payload = data
	} else if err := lr.Skip(int64(total)); err != nil {
		b.firstFrame = -1
		return size - uint64(lr.Remaining()), errors.Wrap(corrupt(err), "skip frame data")
	}

	b.frames = frames
	b.sizes = sizes
	b.size = size
	b.state = StateParsed
	return size, nil
}

func readLaceTable(r *ebmlio.Reader, lacing Lacing, remaining uint64) ([]int32, error) {
	countByte, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(corrupt(err), "lace count")
	}
	remaining--
	count := int(countByte) + 1
	sizes := make([]int32, count)

	var used uint64
	switch lacing {
	case LacingXiph:
		for i := 0; i < count-1; i++ {
			var s uint64
			for {
				c, err := r.ReadByte()
				if err != nil {
					return nil, errors.Wrapf(corrupt(err), "xiph size of frame %d", i)
				}
				remaining--
				s += uint64(c)
				if c != 0xFF {
					break
				}
			}
			if s > math.MaxInt32 {
				return nil, errors.Wrapf(ErrCorrupt, "xiph size %d", s)
			}
			sizes[i] = int32(s)
			used += s
		}
	case LacingEBML:
		first, n, unknown, err := r.ReadVint()
		if err != nil || unknown {
			return nil, errors.Wrap(corrupt(err), "ebml size of first frame")
		}
		if first > math.MaxInt32 {
			return nil, errors.Wrapf(ErrCorrupt, "ebml size %d", first)
		}
		remaining -= uint64(n)
		sizes[0] = int32(first)
		used = first
		for i := 1; i < count-1; i++ {
			delta, n, err := r.ReadSignedVint()
			if err != nil {
				return nil, errors.Wrapf(corrupt(err), "ebml delta of frame %d", i)
			}
			remaining -= uint64(n)
			s := int64(sizes[i-1]) + delta
			if s < 0 || s > math.MaxInt32 {
				return nil, errors.Wrapf(ErrCorrupt, "ebml size %d of frame %d", s, i)
			}
			sizes[i] = int32(s)
			used += uint64(s)
		}
	case LacingFixed:
		if remaining%uint64(count) != 0 {
			return nil, errors.Wrapf(ErrCorrupt, "%d bytes do not split into %d frames", remaining, count)
		}
		each := remaining / uint64(count)
		if each > math.MaxInt32 {
			return nil, errors.Wrapf(ErrCorrupt, "fixed size %d", each)
		}
		for i := range sizes {
			sizes[i] = int32(each)
		}
		return sizes, nil
	}

	if used > remaining {
		return nil, errors.Wrapf(ErrCorrupt, "lace table claims %d bytes, %d left", used, remaining)
	}
	last := remaining - used
	if last > math.MaxInt32 {
		return nil, errors.Wrapf(ErrCorrupt, "last frame of %d bytes", last)
	}
	sizes[count-1] = int32(last)
	return sizes, nil
}

// corrupt maps short reads and bad VINTs onto ErrCorrupt.
func corrupt(err error) error {
	if err == nil {
		return ErrCorrupt
	}
	return errors.Wrap(ErrCorrupt, err.Error())
}

// GetDataPosition returns the stream position of frame i, -1 before the
// block was rendered or parsed or when i is out of range.
func (b *Block) GetDataPosition(i int) int64 {
	if b.firstFrame < 0 || i < 0 || i >= len(b.sizes) {
		return -1
	}
	pos := b.firstFrame
	for _, s := range b.sizes[:i] {
		pos += int64(s)
	}
	return pos
}

// GetFrameSize returns the size of frame i, -1 before the block was rendered
// or parsed or when i is out of range.
func (b *Block) GetFrameSize(i int) int64 {
	if b.firstFrame < 0 || i < 0 || i >= len(b.sizes) {
		return -1
	}
	return int64(b.sizes[i])
}

// ReleaseFrames releases every frame buffer and forgets the frames. Track,
// timestamp and parent links survive.
func (b *Block) ReleaseFrames() {
	for i, f := range b.frames {
		if f == nil {
			continue
		}
		if err := f.Release(); err != nil {
			logger().Warn("Frame release failed", "track", b.trackNumber, "frame", i, "error", err)
		}
	}
	b.frames = nil
	b.sizes = nil
	b.payload = nil
	b.firstFrame = -1
	b.state = StateEmpty
}

// moveFrom takes over src's frames and timing, leaving src frame-less.
func (b *Block) moveFrom(src *Block) {
	b.frames, src.frames = src.frames, nil
	b.sizes, src.sizes = src.sizes, nil
	b.payload, src.payload = src.payload, nil
	b.trackNumber = src.trackNumber
	b.timestamp = src.timestamp
	b.relative = src.relative
	b.hasTimestamp = src.hasTimestamp
	b.invisible = src.invisible
	b.lacing = src.lacing
	b.cluster = src.cluster
	b.track = src.track
	b.firstFrame = -1
	if len(b.frames) > 0 {
		b.state = StateAccumulating
	}
	src.firstFrame = -1
	src.state = StateEmpty
}
