// Package traffic holds the speed-group vocabulary shared by the decoder,
// the message cache and the consumers: congestion buckets, road segment
// identifiers and per-tile colorings.
package traffic

// SpeedGroup is a congestion bucket. Groups are ordered: a lower group means
// slower traffic. TempBlock marks a road that is temporarily impassable,
// Unknown means no information.
type SpeedGroup uint8

const (
	G0 SpeedGroup = iota
	G1
	G2
	G3
	G4
	G5
	TempBlock
	Unknown

	speedGroupCount
)

// groupThresholdPct[g] is the maximum Vreal/Vmax percentage for group g.
// Values falling on the border of two groups may belong to either group.
// For the special groups the threshold is 100%.
var groupThresholdPct = [speedGroupCount]uint32{8, 16, 33, 58, 83, 100, 100, 100}

// GroupByPercentage converts the ratio between the speed of flowing traffic
// and the posted limit (Vreal/Vmax, in percent) into a SpeedGroup bucket.
func GroupByPercentage(p float64) SpeedGroup {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	for g := SpeedGroup(0); g < speedGroupCount; g++ {
		if p <= float64(groupThresholdPct[g]) {
			return g
		}
	}
	return Unknown
}

func (g SpeedGroup) String() string {
	switch g {
	case G0:
		return "G0"
	case G1:
		return "G1"
	case G2:
		return "G2"
	case G3:
		return "G3"
	case G4:
		return "G4"
	case G5:
		return "G5"
	case TempBlock:
		return "TEMP_BLOCK"
	case Unknown:
		return "UNKNOWN"
	}
	return "UNKNOWN"
}

// SpeedGroupFromString parses the wire form of a speed group.
func SpeedGroupFromString(s string) (SpeedGroup, bool) {
	switch s {
	case "G0":
		return G0, true
	case "G1":
		return G1, true
	case "G2":
		return G2, true
	case "G3":
		return G3, true
	case "G4":
		return G4, true
	case "G5":
		return G5, true
	case "TEMP_BLOCK":
		return TempBlock, true
	case "UNKNOWN":
		return Unknown, true
	}
	return Unknown, false
}
