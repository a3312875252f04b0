package mux

import (
	"io"

	"github.com/pkg/errors"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
	"github.com/babelcloud/mkvblock/matroska"
)

var (
	ErrNotCluster  = errors.New("element is not a cluster")
	ErrUnknownSize = errors.New("element of unknown size cannot be skipped")
)

const (
	idSegment        ebmlio.ID = 0x18538067
	idPosition       ebmlio.ID = 0xA7
	idPrevSize       ebmlio.ID = 0xAB
	idCRC32          ebmlio.ID = 0xBF
	idSilentTracks   ebmlio.ID = 0x5854
	idEncryptedBlock ebmlio.ID = 0xAF
)

// ParsedCluster is a cluster read back from a stream.
type ParsedCluster struct {
	ID        matroska.ClusterID
	Timestamp uint64
	Position  int64
	Handles   []*matroska.Handle
}

// NumFrames counts the frames of every block in the cluster.
func (pc *ParsedCluster) NumFrames() int {
	n := 0
	for _, h := range pc.Handles {
		n += h.Internal().NumFrames()
	}
	return n
}

// ReadCluster reads one sized cluster at the current position of r. The
// cluster is registered in table; its blocks resolve tracks by number.
func ReadCluster(r *ebmlio.Reader, table *matroska.Table, scope ebmlio.Scope, policy matroska.Policy) (*ParsedCluster, error) {
	pos := r.Pos()
	id, size, _, err := r.ReadElementHeader()
	if err != nil {
		return nil, err
	}
	if id != matroska.IDCluster {
		return nil, errors.Wrapf(ErrNotCluster, "id 0x%X at %d", uint32(id), pos)
	}
	if size == ebmlio.UnknownSize {
		return nil, errors.Wrapf(ErrUnknownSize, "cluster at %d", pos)
	}
	return readClusterBody(r, table, scope, policy, pos, size)
}

func readClusterBody(r *ebmlio.Reader, table *matroska.Table, scope ebmlio.Scope, policy matroska.Policy, pos int64, size uint64) (*ParsedCluster, error) {
	pc := &ParsedCluster{ID: matroska.NoCluster, Position: pos}
	lr := r.Limit(int64(size))
	for lr.Remaining() > 0 {
		id, childSize, _, err := lr.ReadElementHeader()
		if err != nil {
			return pc, errors.Wrapf(err, "cluster child at %d", lr.Pos())
		}
		if err := readClusterChild(lr, table, scope, policy, pc, id, childSize); err != nil {
			return pc, err
		}
	}
	return pc, nil
}

func isClusterChild(id ebmlio.ID) bool {
	switch id {
	case matroska.IDTimestamp, matroska.IDSimpleBlock, matroska.IDBlockGroup, matroska.IDVoid,
		idPosition, idPrevSize, idCRC32, idSilentTracks, idEncryptedBlock:
		return true
	}
	return false
}

func readClusterChild(r *ebmlio.Reader, table *matroska.Table, scope ebmlio.Scope, policy matroska.Policy, pc *ParsedCluster, id ebmlio.ID, size uint64) error {
	if size == ebmlio.UnknownSize {
		return errors.Wrapf(ErrUnknownSize, "cluster child 0x%X", uint32(id))
	}
	switch id {
	case matroska.IDTimestamp:
		if size > 8 {
			return errors.Wrapf(matroska.ErrCorrupt, "cluster timestamp of %d bytes", size)
		}
		b := make([]byte, size)
		if err := r.ReadFull(b); err != nil {
			return errors.Wrap(err, "cluster timestamp")
		}
		ts, err := ebmlio.GetUint(b)
		if err != nil {
			return err
		}
		pc.Timestamp = ts
		pc.ID = table.AddCluster(ts)
		table.SetClusterPosition(pc.ID, pc.Position)
	case matroska.IDSimpleBlock, matroska.IDBlockGroup:
		if pc.ID == matroska.NoCluster {
			return errors.Wrap(matroska.ErrNoParentCluster, "block before cluster timestamp")
		}
		e, err := matroska.ReadElementBody(r, id, size, table, pc.ID, scope)
		if err != nil {
			return err
		}
		h, err := matroska.HandleOf(table, policy, pc.ID, e)
		if err != nil {
			return err
		}
		pc.Handles = append(pc.Handles, h)
	default:
		if err := r.Skip(int64(size)); err != nil {
			return errors.Wrapf(err, "skip cluster child 0x%X", uint32(id))
		}
	}
	return nil
}

// ReadClusters reads every cluster until the end of r. The EBML header and
// top-level elements other than clusters are skipped; the Segment is entered.
// Clusters of unknown size end at the next element that cannot be a
// cluster child.
func ReadClusters(r *ebmlio.Reader, table *matroska.Table, scope ebmlio.Scope, policy matroska.Policy) ([]*ParsedCluster, error) {
	var out []*ParsedCluster
	var open *ParsedCluster
	for {
		pos := r.Pos()
		id, size, _, err := r.ReadElementHeader()
		if errors.Is(err, io.EOF) && r.Pos() == pos {
			return out, nil
		}
		if err != nil {
			return out, errors.Wrapf(err, "element header at %d", pos)
		}

		switch {
		case id == matroska.IDCluster:
			open = nil
			if size == ebmlio.UnknownSize {
				open = &ParsedCluster{ID: matroska.NoCluster, Position: pos}
				out = append(out, open)
				continue
			}
			pc, err := readClusterBody(r, table, scope, policy, pos, size)
			out = append(out, pc)
			if err != nil {
				return out, err
			}
		case open != nil && isClusterChild(id):
			if err := readClusterChild(r, table, scope, policy, open, id, size); err != nil {
				return out, err
			}
		case id == idSegment:
			open = nil
		default:
			open = nil
			if size == ebmlio.UnknownSize {
				return out, errors.Wrapf(ErrUnknownSize, "element 0x%X at %d", uint32(id), pos)
			}
			if err := r.Skip(int64(size)); err != nil {
				return out, errors.Wrapf(err, "skip element 0x%X", uint32(id))
			}
		}
	}
}
