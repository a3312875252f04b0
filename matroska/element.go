package matroska

import (
	"github.com/pkg/errors"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
)

// Element is an EBML element that can size, render and parse itself.
type Element interface {
	ID() ebmlio.ID
	SizeIsValid(size uint64) bool
	UpdateSize(filter ebmlio.WriteFilter, force bool) (uint64, error)
	RenderData(w *ebmlio.Writer, force bool, filter ebmlio.WriteFilter) (uint64, error)
	ReadData(r *ebmlio.Reader, size uint64, scope ebmlio.Scope) (uint64, error)
}

var (
	_ Element = (*Block)(nil)
	_ Element = (*SimpleBlock)(nil)
	_ Element = (*BlockGroup)(nil)
	_ Element = (*Virtual)(nil)
)

// Render writes e with its header and returns the total byte count.
func Render(w *ebmlio.Writer, e Element, filter ebmlio.WriteFilter) (uint64, error) {
	size, err := e.UpdateSize(filter, false)
	if err != nil {
		return 0, err
	}
	hn, err := ebmlio.WriteElementHeader(w, e.ID(), size)
	if err != nil {
		return 0, err
	}
	n, err := e.RenderData(w, false, filter)
	if err != nil {
		return uint64(hn) + n, errors.Wrapf(err, "render 0x%X", uint32(e.ID()))
	}
	if n != size {
		return uint64(hn) + n, errors.Errorf("element 0x%X rendered %d bytes, sized %d", uint32(e.ID()), n, size)
	}
	return uint64(hn) + n, nil
}

// ReadElement reads one block-level element of cluster: BlockGroup,
// SimpleBlock, Block or BlockVirtual.
func ReadElement(r *ebmlio.Reader, t *Table, cluster ClusterID, scope ebmlio.Scope) (Element, error) {
	id, size, _, err := r.ReadElementHeader()
	if err != nil {
		return nil, errors.Wrap(corrupt(err), "element header")
	}
	return ReadElementBody(r, id, size, t, cluster, scope)
}

// ReadElementBody parses the payload of an element whose header was already
// read.
func ReadElementBody(r *ebmlio.Reader, id ebmlio.ID, size uint64, t *Table, cluster ClusterID, scope ebmlio.Scope) (Element, error) {
	var e Element
	switch id {
	case IDSimpleBlock:
		s := NewSimpleBlock(t)
		s.cluster = cluster
		e = s
	case IDBlockGroup:
		g := NewBlockGroup(t)
		g.block.cluster = cluster
		e = g
	case IDBlock:
		b := NewBlock(t)
		b.cluster = cluster
		e = b
	case IDBlockVirtual:
		v := NewVirtual(t)
		v.SetParent(cluster)
		e = v
	default:
		return nil, errors.Wrapf(ErrUnexpectedElement, "id 0x%X", uint32(id))
	}
	if size == ebmlio.UnknownSize || !e.SizeIsValid(size) {
		return nil, errors.Wrapf(ErrCorrupt, "element 0x%X of size %d", uint32(id), size)
	}
	if _, err := e.ReadData(r, size, scope); err != nil {
		return nil, errors.Wrapf(err, "read 0x%X", uint32(id))
	}
	return e, nil
}

// ReadHandle reads a SimpleBlock or BlockGroup and wraps it in a Handle.
func ReadHandle(r *ebmlio.Reader, t *Table, cluster ClusterID, scope ebmlio.Scope, policy Policy) (*Handle, error) {
	e, err := ReadElement(r, t, cluster, scope)
	if err != nil {
		return nil, err
	}
	return HandleOf(t, policy, cluster, e)
}

// HandleOf wraps a parsed SimpleBlock or BlockGroup.
func HandleOf(t *Table, policy Policy, cluster ClusterID, e Element) (*Handle, error) {
	v, ok := e.(variant)
	if !ok {
		return nil, errors.Wrapf(ErrUnexpectedElement, "id 0x%X is not a SimpleBlock or BlockGroup", uint32(e.ID()))
	}
	return wrapHandle(t, policy, cluster, v), nil
}
