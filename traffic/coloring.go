package traffic

// Directions of travel along a road segment.
const (
	ForwardDirection uint8 = 0
	ReverseDirection uint8 = 1
)

// RoadSegmentID identifies one directed piece of road geometry within a tile:
// the feature id, the index of the segment within the feature's polyline, and
// the direction of travel.
type RoadSegmentID struct {
	Fid uint32
	Idx uint16
	Dir uint8
}

// Coloring maps every known road segment of one tile to its congestion bucket.
type Coloring map[RoadSegmentID]SpeedGroup

// MergeColoring merges delta into target. On a conflict, TempBlock always
// wins, Unknown never overrides a known value, and among known groups the
// lower (slower) one wins.
func MergeColoring(delta, target Coloring) {
	for seg, sg := range delta {
		cur, ok := target[seg]
		if !ok {
			target[seg] = sg
			continue
		}
		if cur == TempBlock {
			continue
		}
		if sg == TempBlock || cur == Unknown || (sg != Unknown && sg < cur) {
			target[seg] = sg
		}
	}
}

// Clone returns a deep copy of the coloring.
func (c Coloring) Clone() Coloring {
	if c == nil {
		return nil
	}
	out := make(Coloring, len(c))
	for seg, sg := range c {
		out[seg] = sg
	}
	return out
}
