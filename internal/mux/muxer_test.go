package mux

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/at-wat/ebml-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
	"github.com/babelcloud/mkvblock/matroska"
)

type testBlockGroup struct {
	Block          ebml.Block
	BlockDuration  uint64  `ebml:",omitempty"`
	ReferenceBlock []int64 `ebml:",omitempty"`
}

type testCluster struct {
	Timecode    uint64
	SimpleBlock []ebml.Block     `ebml:",omitempty"`
	BlockGroup  []testBlockGroup `ebml:",omitempty"`
}

type testClusters struct {
	Cluster []testCluster `ebml:"Cluster"`
}

func newTracks() (*matroska.Table, matroska.TrackID, matroska.TrackID) {
	tbl := matroska.NewTable()
	video := tbl.AddTrack(1, 1)
	audio := tbl.AddTrack(2, 1)
	return tbl, video, audio
}

func writeMixedStream(t *testing.T, policy matroska.Policy) (*bytes.Buffer, *ClusterMuxer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tbl, video, audio := newTracks()
	m := NewClusterMuxer(&buf, tbl, Options{Policy: policy, Lacing: matroska.LacingAuto, Logger: logger})

	require.NoError(t, m.WriteFrame(video, 0, []byte("vkey0"), true))
	require.NoError(t, m.WriteFrame(audio, 0, []byte("aud0"), true))
	require.NoError(t, m.WriteFrame(audio, 20, []byte("aud1"), true))
	require.NoError(t, m.WriteFrame(video, 33, []byte("vp33!"), false))
	require.NoError(t, m.WriteFrame(audio, 40, []byte("aud2"), true))
	require.NoError(t, m.WriteFrame(video, 66, []byte("vp66!"), false))
	require.NoError(t, m.Close())
	return &buf, m
}

func TestClusterMuxer_WriteAndReadBack(t *testing.T) {
	buf, m := writeMixedStream(t, matroska.PolicySimpleAuto)
	assert.Equal(t, int64(70), m.Position())
	assert.Equal(t, 70, buf.Len())

	cues := m.Cues()
	require.Len(t, cues, 2)
	assert.Equal(t, CuePoint{Track: 1, Time: 0, ClusterPosition: 0, BlockPosition: 8}, cues[0])
	assert.Equal(t, CuePoint{Track: 2, Time: 0, ClusterPosition: 0, BlockPosition: 19}, cues[1])

	rtbl, _, _ := newTracks()
	clusters, err := ReadClusters(ebmlio.NewReader(bytes.NewReader(buf.Bytes())), rtbl, ebmlio.ScopeAllData, matroska.PolicySimpleAuto)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	pc := clusters[0]
	assert.Equal(t, int64(0), pc.Position)
	assert.Equal(t, uint64(0), pc.Timestamp)
	assert.Equal(t, 6, pc.NumFrames())
	require.Len(t, pc.Handles, 4)

	key := pc.Handles[0]
	require.True(t, key.IsSimpleBlock())
	assert.True(t, key.Simple().IsKeyframe())
	assert.Equal(t, []byte("vkey0"), key.Internal().Frame(0).Bytes())

	laced := pc.Handles[1].Internal()
	assert.Equal(t, uint16(2), laced.TrackNumber())
	assert.Equal(t, matroska.LacingFixed, laced.Lacing())
	require.Equal(t, 3, laced.NumFrames())
	assert.Equal(t, []byte("aud2"), laced.Frame(2).Bytes())

	for i, want := range []uint64{33, 66} {
		h := pc.Handles[2+i]
		require.False(t, h.IsSimpleBlock())
		require.Equal(t, 1, h.Group().ReferenceCount())
		assert.Equal(t, int16(-33), h.Group().Reference(0).Delta)
		ts, err := h.GlobalTimestamp()
		require.NoError(t, err)
		assert.Equal(t, want, ts)
	}

	c, ok := rtbl.Cluster(pc.ID)
	require.True(t, ok)
	assert.Equal(t, int64(0), c.Position)
}

func TestClusterMuxer_DecodesWithEBMLGo(t *testing.T) {
	buf, _ := writeMixedStream(t, matroska.PolicySimpleAuto)

	var doc testClusters
	require.NoError(t, ebml.Unmarshal(bytes.NewReader(buf.Bytes()), &doc))
	require.Len(t, doc.Cluster, 1)
	c := doc.Cluster[0]
	assert.Equal(t, uint64(0), c.Timecode)

	require.Len(t, c.SimpleBlock, 2)
	assert.Equal(t, uint64(1), c.SimpleBlock[0].TrackNumber)
	assert.True(t, c.SimpleBlock[0].Keyframe)
	assert.Equal(t, [][]byte{[]byte("vkey0")}, c.SimpleBlock[0].Data)
	assert.Equal(t, ebml.LacingFixed, c.SimpleBlock[1].Lacing)
	assert.Equal(t, [][]byte{[]byte("aud0"), []byte("aud1"), []byte("aud2")}, c.SimpleBlock[1].Data)

	require.Len(t, c.BlockGroup, 2)
	assert.Equal(t, int16(33), c.BlockGroup[0].Block.Timecode)
	assert.Equal(t, []int64{-33}, c.BlockGroup[0].ReferenceBlock)
	assert.Equal(t, int16(66), c.BlockGroup[1].Block.Timecode)
}

func TestClusterMuxer_AlwaysSimple(t *testing.T) {
	buf, m := writeMixedStream(t, matroska.PolicyAlwaysSimple)
	assert.Len(t, m.Cues(), 2)

	rtbl, _, _ := newTracks()
	pc, err := ReadCluster(ebmlio.NewReader(bytes.NewReader(buf.Bytes())), rtbl, ebmlio.ScopeAllData, matroska.PolicyAlwaysSimple)
	require.NoError(t, err)
	require.Len(t, pc.Handles, 4)
	for _, h := range pc.Handles {
		assert.True(t, h.IsSimpleBlock())
	}
	assert.False(t, pc.Handles[2].Simple().IsKeyframe())
	assert.False(t, pc.Handles[2].Simple().IsDiscardable())
}

func TestClusterMuxer_FlushesBeforeOverflow(t *testing.T) {
	var buf bytes.Buffer
	tbl, video, _ := newTracks()
	m := NewClusterMuxer(&buf, tbl, Options{Policy: matroska.PolicySimpleAuto, Lacing: matroska.LacingNone})

	require.NoError(t, m.WriteFrame(video, 0, []byte{1}, true))
	require.NoError(t, m.WriteFrame(video, 32767, []byte{2}, false))
	require.NoError(t, m.WriteFrame(video, 40000, []byte{3}, true))
	require.NoError(t, m.WriteFrame(video, 40010, []byte{4}, false))
	require.NoError(t, m.Close())

	rtbl, _, _ := newTracks()
	clusters, err := ReadClusters(ebmlio.NewReader(bytes.NewReader(buf.Bytes())), rtbl, ebmlio.ScopeNoData, matroska.PolicySimpleAuto)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, uint64(0), clusters[0].Timestamp)
	assert.Equal(t, uint64(40000), clusters[1].Timestamp)
	assert.Equal(t, 2, clusters[1].NumFrames())

	second, ok := tbl.Cluster(1)
	require.True(t, ok)
	assert.Equal(t, clusters[1].Position, second.Position)

	cues := m.Cues()
	require.Len(t, cues, 2)
	assert.Equal(t, second.Position, cues[1].ClusterPosition)
	assert.Equal(t, uint64(40000), cues[1].Time)
}

func TestClusterMuxer_ReferenceOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	tbl, video, _ := newTracks()
	m := NewClusterMuxer(&buf, tbl, Options{Policy: matroska.PolicySimpleAuto})

	require.NoError(t, m.WriteFrame(video, 0, []byte{1}, true))
	err := m.WriteFrame(video, 40000, []byte{2}, false)
	assert.ErrorIs(t, err, matroska.ErrTimestampRange)
}

func TestClusterMuxer_Closed(t *testing.T) {
	var buf bytes.Buffer
	tbl, video, _ := newTracks()
	m := NewClusterMuxer(&buf, tbl, Options{})

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.WriteFrame(video, 0, []byte{1}, true), ErrClosed)
	assert.ErrorIs(t, m.WriteFrame(matroska.TrackID(9), 0, []byte{1}, true), ErrClosed)
	assert.Equal(t, 0, buf.Len())
}

func TestClusterMuxer_UnknownTrackAndEmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	tbl, video, _ := newTracks()
	m := NewClusterMuxer(&buf, tbl, Options{})

	assert.ErrorIs(t, m.WriteFrame(matroska.TrackID(9), 0, []byte{1}, true), matroska.ErrUnknownTrack)
	require.NoError(t, m.WriteFrame(video, 0, nil, true))
	require.NoError(t, m.Flush())
	assert.Equal(t, 0, buf.Len())
}

type failingWriter struct {
	err error
}

func (w *failingWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

func TestClusterMuxer_WriteErrorSticks(t *testing.T) {
	boom := errors.New("broken pipe")
	tbl, video, _ := newTracks()
	m := NewClusterMuxer(&failingWriter{err: boom}, tbl, Options{})

	require.NoError(t, m.WriteFrame(video, 0, []byte{1}, true))
	assert.ErrorIs(t, m.Flush(), boom)
	assert.Empty(t, m.Cues())

	require.NoError(t, m.WriteFrame(video, 10, []byte{2}, true))
	assert.ErrorIs(t, m.Close(), boom)
}
