package matroska

// TrackID indexes a track in a Table.
type TrackID int

// ClusterID indexes a cluster in a Table.
type ClusterID int

const (
	NoTrack   TrackID   = -1
	NoCluster ClusterID = -1
)

// Track holds the facts blocks need about a track.
type Track struct {
	Number uint16
	// TimestampScale converts track ticks into the container time unit.
	TimestampScale uint64
}

// Cluster holds the facts blocks need about a cluster.
type Cluster struct {
	BaseTimestamp uint64
	// Position is the stream offset of the cluster element, -1 until written or read.
	Position int64
}

// Table is the muxer-owned lookup table behind the tracks and clusters that
// blocks point back to. Blocks keep IDs, never the entries themselves.
type Table struct {
	tracks   []Track
	clusters []Cluster
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// AddTrack registers a track. A zero scale is stored as 1.
func (t *Table) AddTrack(number uint16, scale uint64) TrackID {
	if scale == 0 {
		scale = 1
	}
	t.tracks = append(t.tracks, Track{Number: number, TimestampScale: scale})
	return TrackID(len(t.tracks) - 1)
}

// Track returns the track behind id and whether it exists.
func (t *Table) Track(id TrackID) (Track, bool) {
	if t == nil || id < 0 || int(id) >= len(t.tracks) {
		return Track{}, false
	}
	return t.tracks[id], true
}

// TrackByNumber finds the first track registered with number.
func (t *Table) TrackByNumber(number uint16) (TrackID, bool) {
	if t == nil {
		return NoTrack, false
	}
	for i, tr := range t.tracks {
		if tr.Number == number {
			return TrackID(i), true
		}
	}
	return NoTrack, false
}

// NumTracks returns the number of registered tracks.
func (t *Table) NumTracks() int {
	if t == nil {
		return 0
	}
	return len(t.tracks)
}

// AddCluster registers a cluster whose position is not known yet.
func (t *Table) AddCluster(base uint64) ClusterID {
	t.clusters = append(t.clusters, Cluster{BaseTimestamp: base, Position: -1})
	return ClusterID(len(t.clusters) - 1)
}

// Cluster returns the cluster behind id and whether it exists.
func (t *Table) Cluster(id ClusterID) (Cluster, bool) {
	if t == nil || id < 0 || int(id) >= len(t.clusters) {
		return Cluster{}, false
	}
	return t.clusters[id], true
}

// SetClusterPosition records the stream offset of a cluster. It reports false for an unknown id.
func (t *Table) SetClusterPosition(id ClusterID, pos int64) bool {
	if t == nil || id < 0 || int(id) >= len(t.clusters) {
		return false
	}
	t.clusters[id].Position = pos
	return true
}

// NumClusters returns the number of registered clusters.
func (t *Table) NumClusters() int {
	if t == nil {
		return 0
	}
	return len(t.clusters)
}
