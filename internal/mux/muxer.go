// Package mux groups blocks into Matroska clusters. ClusterMuxer is the
// writing side, ReadCluster and ReadClusters the reading side.
package mux

import (
	"io"
	"log/slog"
	"math"

	"github.com/pkg/errors"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
	"github.com/babelcloud/mkvblock/matroska"
)

var ErrClosed = errors.New("cluster muxer is closed")

// Options configures a ClusterMuxer.
type Options struct {
	Policy matroska.Policy
	// Lacing is applied to runs of keyframes on the same track.
	// matroska.LacingNone writes one frame per block.
	Lacing matroska.Lacing
	// MaxFrames caps the frames laced into one block. Zero means
	// matroska.PreferredLacedFrames.
	MaxFrames int
	Filter    ebmlio.WriteFilter
	Logger    *slog.Logger
}

// CuePoint locates a keyframe block in the output.
type CuePoint struct {
	Track uint16
	// Time is the global timestamp of the block.
	Time            uint64
	ClusterPosition int64
	// BlockPosition is the stream offset of the block element.
	BlockPosition int64
}

// ClusterMuxer queues frames into blocks and writes them out one cluster at
// a time. It is not safe for concurrent use.
type ClusterMuxer struct {
	out    *stickyWriter
	w      *ebmlio.Writer
	table  *matroska.Table
	opts   Options
	logger *slog.Logger

	cluster matroska.ClusterID
	base    uint64
	handles []*matroska.Handle
	open    map[matroska.TrackID]*matroska.Handle
	last    map[matroska.TrackID]*matroska.Handle
	cues    []CuePoint

	closed   bool
	frames   int
	clusters int
}

// NewClusterMuxer creates a muxer writing clusters to w. Tracks and clusters
// are registered in table.
func NewClusterMuxer(w io.Writer, table *matroska.Table, opts Options) *ClusterMuxer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.With("component", "cluster_muxer")
	}
	out := &stickyWriter{writer: w, logger: logger}
	return &ClusterMuxer{
		out:     out,
		w:       ebmlio.NewWriter(out),
		table:   table,
		opts:    opts,
		logger:  logger,
		cluster: matroska.NoCluster,
		open:    make(map[matroska.TrackID]*matroska.Handle),
		last:    make(map[matroska.TrackID]*matroska.Handle),
	}
}

func (m *ClusterMuxer) maxFrames() int {
	switch {
	case m.opts.MaxFrames <= 0:
		return matroska.PreferredLacedFrames
	case m.opts.MaxFrames > matroska.MaxLacedFrames:
		return matroska.MaxLacedFrames
	}
	return m.opts.MaxFrames
}

// Position returns the number of bytes written so far.
func (m *ClusterMuxer) Position() int64 {
	return m.w.Pos()
}

// WriteFrame queues one frame. Keyframes are laced with the previous
// keyframes of the track when lacing is enabled; other frames get their own
// block referencing the previous block of the track. A cluster is flushed
// before its relative timestamps would overflow.
func (m *ClusterMuxer) WriteFrame(track matroska.TrackID, timestamp uint64, data []byte, keyframe bool) error {
	if m.closed {
		return ErrClosed
	}
	if len(data) == 0 {
		return nil
	}
	tr, ok := m.table.Track(track)
	if !ok {
		return errors.Wrapf(matroska.ErrUnknownTrack, "track id %d", track)
	}

	if m.cluster != matroska.NoCluster && !fitsCluster(timestamp, m.base) {
		if err := m.Flush(); err != nil {
			return err
		}
	}
	if m.cluster == matroska.NoCluster {
		m.cluster = m.table.AddCluster(timestamp)
		m.base = timestamp
	}

	buf := matroska.NewBuffer(data, matroska.WithCopy())
	var err error
	if keyframe {
		err = m.addKeyframe(track, timestamp, buf)
	} else {
		err = m.addReferencing(track, timestamp, buf)
	}
	if err != nil {
		m.logger.Warn("Frame rejected", "track", tr.Number, "timestamp", timestamp, "size", len(data), "error", err)
		return err
	}

	m.frames++
	m.logger.Debug("Frame queued", "track", tr.Number, "timestamp", timestamp, "size", len(data), "keyframe", keyframe)
	return nil
}

func fitsCluster(timestamp, base uint64) bool {
	return timestamp >= base && timestamp-base <= math.MaxInt16
}

func (m *ClusterMuxer) newHandle() (*matroska.Handle, error) {
	h := matroska.NewHandle(m.table, m.opts.Policy)
	if err := h.SetParent(m.cluster); err != nil {
		return nil, err
	}
	return h, nil
}

func (m *ClusterMuxer) addKeyframe(track matroska.TrackID, timestamp uint64, buf *matroska.Buffer) error {
	if m.opts.Lacing != matroska.LacingNone {
		if h, ok := m.open[track]; ok && h.Internal().NumFrames() < m.maxFrames() {
			err := h.AddFrameAuto(track, timestamp, buf, m.opts.Lacing, nil, nil)
			if err == nil {
				return nil
			}
			if !errors.Is(err, matroska.ErrBlockFull) {
				return err
			}
		}
	}

	h, err := m.newHandle()
	if err != nil {
		return err
	}
	if err := h.AddFrameAuto(track, timestamp, buf, m.opts.Lacing, nil, nil); err != nil {
		return err
	}
	m.handles = append(m.handles, h)
	m.last[track] = h
	if m.opts.Lacing != matroska.LacingNone {
		m.open[track] = h
	}
	return nil
}

func (m *ClusterMuxer) addReferencing(track matroska.TrackID, timestamp uint64, buf *matroska.Buffer) error {
	var past matroska.Referenceable
	if p, ok := m.last[track]; ok {
		past = p
	}

	h, err := m.newHandle()
	if err != nil {
		return err
	}
	if err := h.AddFrameAuto(track, timestamp, buf, matroska.LacingNone, past, nil); err != nil {
		return err
	}
	m.handles = append(m.handles, h)
	m.last[track] = h
	delete(m.open, track)
	return nil
}

func isKeyBlock(h *matroska.Handle) bool {
	if h.IsSimpleBlock() {
		return h.Simple().IsKeyframe()
	}
	return h.Group().ReferenceCount() == 0
}

// Flush writes the pending cluster, records its position in the table and
// releases the frame payloads. It is a no-op without a pending cluster.
func (m *ClusterMuxer) Flush() error {
	if m.cluster == matroska.NoCluster {
		return nil
	}
	defer m.reset()

	size := ebmlio.UintElementSize(matroska.IDTimestamp, m.base)
	for _, h := range m.handles {
		e := h.Element()
		n, err := e.UpdateSize(m.opts.Filter, false)
		if err != nil {
			return errors.Wrap(err, "size block")
		}
		size += uint64(ebmlio.ElementHeaderSize(e.ID(), n)) + n
	}

	pos := m.w.Pos()
	m.table.SetClusterPosition(m.cluster, pos)
	if _, err := ebmlio.WriteElementHeader(m.w, matroska.IDCluster, size); err != nil {
		return errors.Wrap(err, "write cluster header")
	}
	if _, err := ebmlio.WriteUintElement(m.w, matroska.IDTimestamp, m.base); err != nil {
		return errors.Wrap(err, "write cluster timestamp")
	}

	for _, h := range m.handles {
		blockPos := m.w.Pos()
		if _, err := matroska.Render(m.w, h.Element(), m.opts.Filter); err != nil {
			return errors.Wrap(err, "render block")
		}
		if !isKeyBlock(h) {
			continue
		}
		ts, err := h.GlobalTimestamp()
		if err != nil {
			return errors.Wrap(err, "cue timestamp")
		}
		m.cues = append(m.cues, CuePoint{
			Track:           h.Internal().TrackNumber(),
			Time:            ts,
			ClusterPosition: pos,
			BlockPosition:   blockPos,
		})
	}

	m.clusters++
	m.logger.Info("Cluster flushed",
		"timestamp", m.base,
		"position", pos,
		"size", size,
		"blocks", len(m.handles))
	return nil
}

// reset drops the pending cluster. Handles stay reachable through last so
// the next cluster can reference them; only their payloads are released.
func (m *ClusterMuxer) reset() {
	for _, h := range m.handles {
		h.ReleaseFrames()
	}
	m.handles = nil
	clear(m.open)
	m.cluster = matroska.NoCluster
}

// Cues returns the cue points of the keyframe blocks written so far.
func (m *ClusterMuxer) Cues() []CuePoint {
	cues := make([]CuePoint, len(m.cues))
	copy(cues, m.cues)
	return cues
}

// Close flushes the pending cluster and rejects further frames. The
// underlying writer is left open.
func (m *ClusterMuxer) Close() error {
	if m.closed {
		return nil
	}
	err := m.Flush()
	m.closed = true
	m.out.Close()
	m.logger.Info("Cluster muxer closed",
		"frames", m.frames,
		"clusters", m.clusters,
		"cues", len(m.cues),
		"bytes", m.w.Pos())
	return err
}
