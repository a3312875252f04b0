// Package interop converts between matroska blocks and github.com/at-wat/ebml-go
// blocks. Conversions go through the wire format so each side only ever sees
// bytes the other produced.
package interop

import (
	"bytes"

	"github.com/at-wat/ebml-go"
	"github.com/pkg/errors"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
	"github.com/babelcloud/mkvblock/matroska"
)

var ErrNotBlock = errors.New("element carries no block")

// ToEBML renders the block payload of e and decodes it with ebml-go. A
// BlockGroup converts its inner Block.
func ToEBML(e matroska.Element) (*ebml.Block, error) {
	switch v := e.(type) {
	case *matroska.BlockGroup:
		e = v.Block()
	case *matroska.Virtual:
		return nil, errors.Wrap(ErrNotBlock, "virtual block")
	}

	var buf bytes.Buffer
	size, err := e.UpdateSize(ebmlio.WriteSkipDefault, false)
	if err != nil {
		return nil, err
	}
	if _, err := e.RenderData(ebmlio.NewWriter(&buf), false, ebmlio.WriteSkipDefault); err != nil {
		return nil, errors.Wrap(err, "render block")
	}
	b, err := ebml.UnmarshalBlock(bytes.NewReader(buf.Bytes()), int64(size))
	if err != nil {
		return nil, errors.Wrap(err, "ebml-go unmarshal block")
	}
	return b, nil
}

// FromEBML encodes b with ebml-go and parses the result as a SimpleBlock of
// cluster. The frames are views into a private copy of the payload.
func FromEBML(table *matroska.Table, cluster matroska.ClusterID, b *ebml.Block) (*matroska.SimpleBlock, error) {
	var buf bytes.Buffer
	if err := ebml.MarshalBlock(b, &buf); err != nil {
		return nil, errors.Wrap(err, "ebml-go marshal block")
	}
	s := matroska.NewSimpleBlock(table)
	if err := s.SetParent(cluster); err != nil {
		return nil, err
	}
	size := uint64(buf.Len())
	if _, err := s.ReadData(ebmlio.NewReader(&buf), size, ebmlio.ScopeAllData); err != nil {
		return nil, err
	}
	return s, nil
}

// LacingFromEBML maps an ebml-go lacing mode onto the matroska one.
func LacingFromEBML(l ebml.LacingMode) matroska.Lacing {
	switch l {
	case ebml.LacingXiph:
		return matroska.LacingXiph
	case ebml.LacingFixed:
		return matroska.LacingFixed
	case ebml.LacingEBML:
		return matroska.LacingEBML
	}
	return matroska.LacingNone
}
