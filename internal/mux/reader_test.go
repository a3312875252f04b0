package mux

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
	"github.com/babelcloud/mkvblock/matroska"
)

type testEBMLHeader struct {
	EBMLVersion        uint64
	EBMLReadVersion    uint64
	EBMLDocType        string
	EBMLDocTypeVersion uint64
}

type testInfo struct {
	TimecodeScale uint64
	MuxingApp     string
}

type testSegment struct {
	Info    testInfo
	Cluster testCluster `ebml:",size=unknown"`
}

type testContainer struct {
	Header  testEBMLHeader `ebml:"EBML"`
	Segment testSegment    `ebml:",size=unknown"`
}

func TestReadClusters_UnknownSizes(t *testing.T) {
	doc := testContainer{
		Header: testEBMLHeader{EBMLVersion: 1, EBMLReadVersion: 1, EBMLDocType: "matroska", EBMLDocTypeVersion: 4},
		Segment: testSegment{
			Info: testInfo{TimecodeScale: 1000000, MuxingApp: "mkvblock-test"},
			Cluster: testCluster{
				Timecode: 100,
				SimpleBlock: []ebml.Block{
					{TrackNumber: 1, Timecode: 5, Keyframe: true, Data: [][]byte{{1, 2, 3}}},
					{TrackNumber: 2, Timecode: 7, Data: [][]byte{{4, 5}}},
				},
			},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, ebml.Marshal(&doc, &buf))

	tbl, _, _ := newTracks()
	clusters, err := ReadClusters(ebmlio.NewReader(bytes.NewReader(buf.Bytes())), tbl, ebmlio.ScopeAllData, matroska.PolicySimpleAuto)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	pc := clusters[0]
	assert.Equal(t, uint64(100), pc.Timestamp)
	require.Len(t, pc.Handles, 2)

	first := pc.Handles[0]
	assert.True(t, first.Simple().IsKeyframe())
	assert.Equal(t, []byte{1, 2, 3}, first.Internal().Frame(0).Bytes())
	ts, err := first.GlobalTimestamp()
	require.NoError(t, err)
	assert.Equal(t, uint64(105), ts)

	second := pc.Handles[1]
	assert.False(t, second.Simple().IsKeyframe())
	assert.Equal(t, uint16(2), second.Internal().TrackNumber())

	_, err = ReadCluster(ebmlio.NewReader(bytes.NewReader(buf.Bytes())), tbl, ebmlio.ScopeAllData, matroska.PolicySimpleAuto)
	assert.ErrorIs(t, err, ErrNotCluster)
}

func TestReadCluster_Errors(t *testing.T) {
	tbl, _, _ := newTracks()

	unknown := []byte{0x1F, 0x43, 0xB6, 0x75, 0xFF}
	_, err := ReadCluster(ebmlio.NewReader(bytes.NewReader(unknown)), tbl, ebmlio.ScopeAllData, matroska.PolicySimpleAuto)
	assert.ErrorIs(t, err, ErrUnknownSize)

	// SimpleBlock before the cluster timestamp.
	early := []byte{0x1F, 0x43, 0xB6, 0x75, 0x87, 0xA3, 0x85, 0x81, 0x00, 0x00, 0x80, 0xAA}
	_, err = ReadCluster(ebmlio.NewReader(bytes.NewReader(early)), tbl, ebmlio.ScopeAllData, matroska.PolicySimpleAuto)
	assert.ErrorIs(t, err, matroska.ErrNoParentCluster)
}

type closeNotifier struct {
	bytes.Buffer
	once   sync.Once
	closed chan struct{}
}

func (c *closeNotifier) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestReadClusters_WebMWriterOutput(t *testing.T) {
	out := &closeNotifier{closed: make(chan struct{})}
	writers, err := webm.NewSimpleBlockWriter(out, []webm.TrackEntry{
		{
			Name:        "Audio",
			TrackNumber: 1,
			TrackUID:    1,
			CodecID:     "A_OPUS",
			TrackType:   2,
			Audio: &webm.Audio{
				SamplingFrequency: 48000.0,
				Channels:          2,
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, writers, 1)

	for i := 0; i < 5; i++ {
		_, err := writers[0].Write(true, int64(i*20), []byte{byte(i), 0xF0})
		require.NoError(t, err)
	}
	require.NoError(t, writers[0].Close())

	select {
	case <-out.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("webm writer did not finish")
	}

	tbl := matroska.NewTable()
	tbl.AddTrack(1, 1)
	clusters, err := ReadClusters(ebmlio.NewReader(bytes.NewReader(out.Bytes())), tbl, ebmlio.ScopeAllData, matroska.PolicySimpleAuto)
	require.NoError(t, err)
	require.NotEmpty(t, clusters)

	var got []uint64
	for _, pc := range clusters {
		for _, h := range pc.Handles {
			ts, err := h.GlobalTimestamp()
			require.NoError(t, err)
			got = append(got, ts)
			assert.Equal(t, byte(0xF0), h.Internal().Frame(0).Bytes()[1])
		}
	}
	assert.Equal(t, []uint64{0, 20, 40, 60, 80}, got)
}
