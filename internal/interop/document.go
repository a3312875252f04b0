package interop

import (
	"io"

	"github.com/at-wat/ebml-go"
	"github.com/pkg/errors"
	"k8s.io/utils/ptr"

	"github.com/babelcloud/mkvblock/matroska"
)

type EBMLHeader struct {
	EBMLVersion        uint64 `ebml:",omitempty"`
	EBMLReadVersion    uint64 `ebml:",omitempty"`
	EBMLMaxIDLength    uint64 `ebml:",omitempty"`
	EBMLMaxSizeLength  uint64 `ebml:",omitempty"`
	EBMLDocType        string `ebml:",omitempty"`
	EBMLDocTypeVersion uint64 `ebml:",omitempty"`
}

type Info struct {
	TimecodeScale uint64 `ebml:",omitempty"`
	MuxingApp     string `ebml:",omitempty"`
	WritingApp    string `ebml:",omitempty"`
}

type TrackEntry struct {
	TrackNumber uint64
	TrackUID    uint64 `ebml:",omitempty"`
	TrackType   uint64 `ebml:",omitempty"`
	CodecID     string `ebml:",omitempty"`
	Name        string `ebml:",omitempty"`
}

type Tracks struct {
	TrackEntry []TrackEntry `ebml:",omitempty"`
}

type BlockGroup struct {
	Block             ebml.Block
	BlockDuration     uint64  `ebml:",omitempty"`
	ReferencePriority uint64  `ebml:",omitempty"`
	ReferenceBlock    []int64 `ebml:",omitempty"`
}

type Cluster struct {
	Timecode    uint64
	PrevSize    uint64       `ebml:",omitempty"`
	SimpleBlock []ebml.Block `ebml:",omitempty"`
	BlockGroup  []BlockGroup `ebml:",omitempty"`
}

type Segment struct {
	Info    Info      `ebml:",omitempty"`
	Tracks  Tracks    `ebml:",omitempty"`
	Cluster []Cluster `ebml:",omitempty"`
}

// Document is the subset of a Matroska or WebM file that block inspection
// needs.
type Document struct {
	Header  EBMLHeader `ebml:"EBML"`
	Segment Segment    `ebml:",size=unknown"`
}

// DecodeDocument reads a whole file with ebml-go.
func DecodeDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := ebml.Unmarshal(r, &doc); err != nil {
		return nil, errors.Wrap(err, "ebml-go unmarshal")
	}
	return &doc, nil
}

// BlockInfo summarizes one block of a decoded document.
type BlockInfo struct {
	Cluster    int
	Track      uint64
	Timestamp  int64
	Frames     []int
	Lacing     matroska.Lacing
	Keyframe   bool
	Group      bool
	Duration   *uint64
	References []int64
}

// Summarize lists the blocks of doc in file order within each cluster,
// SimpleBlocks first.
func Summarize(doc *Document) []BlockInfo {
	var out []BlockInfo
	for ci, c := range doc.Segment.Cluster {
		for _, b := range c.SimpleBlock {
			out = append(out, blockInfo(ci, c.Timecode, &b, true))
		}
		for _, g := range c.BlockGroup {
			info := blockInfo(ci, c.Timecode, &g.Block, false)
			info.Group = true
			info.Keyframe = len(g.ReferenceBlock) == 0
			if g.BlockDuration != 0 {
				info.Duration = ptr.To(g.BlockDuration)
			}
			info.References = g.ReferenceBlock
			out = append(out, info)
		}
	}
	return out
}

func blockInfo(cluster int, base uint64, b *ebml.Block, simple bool) BlockInfo {
	frames := make([]int, len(b.Data))
	for i, d := range b.Data {
		frames[i] = len(d)
	}
	return BlockInfo{
		Cluster:   cluster,
		Track:     b.TrackNumber,
		Timestamp: int64(base) + int64(b.Timecode),
		Frames:    frames,
		Lacing:    LacingFromEBML(b.Lacing),
		Keyframe:  simple && b.Keyframe,
	}
}
