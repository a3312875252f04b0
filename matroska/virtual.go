package matroska

import (
	"github.com/pkg/errors"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
)

// maxVirtualTrack keeps the track number VINT at two bytes; 0x3FFF would
// need three since the all-ones two-byte value is reserved.
const maxVirtualTrack = 0x3FFF

// Virtual is the BlockVirtual element: a block head without frames.
type Virtual struct {
	table       *Table
	cluster     ClusterID
	trackNumber uint16
	relative    int16
	flags       byte
	size        uint64
}

func NewVirtual(t *Table) *Virtual {
	return &Virtual{table: t, cluster: NoCluster}
}

func (v *Virtual) ID() ebmlio.ID {
	return IDBlockVirtual
}

func (v *Virtual) SizeIsValid(size uint64) bool {
	return size == 4 || size == 5
}

func (v *Virtual) SetParent(c ClusterID) {
	v.cluster = c
}

func (v *Virtual) SetTrackNumber(n uint16) error {
	if n >= maxVirtualTrack {
		return errors.Wrapf(ErrTrackNumberRange, "virtual block track %d", n)
	}
	v.trackNumber = n
	return nil
}

func (v *Virtual) TrackNumber() uint16 {
	return v.trackNumber
}

// SetTimestamp stores the absolute timestamp relative to the parent cluster.
func (v *Virtual) SetTimestamp(timestamp uint64) error {
	cl, ok := v.table.Cluster(v.cluster)
	if !ok {
		return ErrNoParentCluster
	}
	rel, err := relativeTimestamp(timestamp, cl.BaseTimestamp)
	if err != nil {
		return err
	}
	v.relative = rel
	return nil
}

// Timestamp returns the absolute timestamp, or an error without a cluster.
func (v *Virtual) Timestamp() (uint64, error) {
	cl, ok := v.table.Cluster(v.cluster)
	if !ok {
		return 0, ErrNoParentCluster
	}
	return uint64(int64(cl.BaseTimestamp) + int64(v.relative)), nil
}

func (v *Virtual) RelativeTimestamp() int16 {
	return v.relative
}

func (v *Virtual) UpdateSize(_ ebmlio.WriteFilter, _ bool) (uint64, error) {
	if v.trackNumber >= maxVirtualTrack {
		return 0, errors.Wrapf(ErrTrackNumberRange, "virtual block track %d", v.trackNumber)
	}
	v.size = uint64(ebmlio.VintSize(uint64(v.trackNumber))) + 3
	return v.size, nil
}

func (v *Virtual) RenderData(w *ebmlio.Writer, force bool, filter ebmlio.WriteFilter) (uint64, error) {
	if _, err := v.UpdateSize(filter, force); err != nil {
		return 0, err
	}
	head, err := ebmlio.AppendVint(make([]byte, 0, 5), uint64(v.trackNumber))
	if err != nil {
		return 0, err
	}
	head = append(head, byte(uint16(v.relative)>>8), byte(uint16(v.relative)), 0)
	n, err := w.Write(head)
	if err != nil {
		return uint64(n), errors.Wrap(err, "write virtual block")
	}
	return uint64(n), nil
}

func (v *Virtual) ReadData(r *ebmlio.Reader, size uint64, _ ebmlio.Scope) (uint64, error) {
	if !v.SizeIsValid(size) {
		return 0, errors.Wrapf(ErrCorrupt, "virtual block of %d bytes", size)
	}
	lr := r.Limit(int64(size))
	track, n, unknown, err := lr.ReadVint()
	if err != nil || unknown || track >= maxVirtualTrack {
		return size - uint64(lr.Remaining()), errors.Wrap(corrupt(err), "virtual block track")
	}
	if uint64(n)+3 != size {
		return size - uint64(lr.Remaining()), errors.Wrapf(ErrCorrupt, "virtual block head of %d bytes in %d", n+3, size)
	}
	var rest [3]byte
	if err := lr.ReadFull(rest[:]); err != nil {
		return size - uint64(lr.Remaining()), errors.Wrap(corrupt(err), "virtual block timestamp")
	}
	v.trackNumber = uint16(track)
	v.relative = int16(uint16(rest[0])<<8 | uint16(rest[1]))
	v.flags = rest[2]
	v.size = size
	return size, nil
}
