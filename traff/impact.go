package traff

import "github.com/traffxml/traff-go/traffic"

// MaxspeedNone marks an Impact without an explicit speed value.
const MaxspeedNone = 255

// Impact is the consolidated effect of a message's events on the road:
// a congestion bucket, an optional explicit speed and a delay.
type Impact struct {
	SpeedGroup traffic.SpeedGroup
	// MaxspeedKmH is the reported speed limit or speed of flowing traffic,
	// MaxspeedNone if not reported.
	MaxspeedKmH int
	DelayMins   int
}

// Equal reports whether two impacts are the same. Two full blocks are equal
// no matter what else they carry; otherwise all three fields must match.
func (i Impact) Equal(o Impact) bool {
	if i.SpeedGroup == traffic.TempBlock && o.SpeedGroup == traffic.TempBlock {
		return true
	}
	return i.SpeedGroup == o.SpeedGroup &&
		i.MaxspeedKmH == o.MaxspeedKmH &&
		i.DelayMins == o.DelayMins
}

// eventSpeedGroups maps event types to congestion buckets. Types without an
// entry carry no speed information of their own.
var eventSpeedGroups = map[EventType]traffic.SpeedGroup{
	CongestionHeavyTraffic:                 traffic.G4,
	CongestionLongQueue:                    traffic.G0,
	CongestionNone:                         traffic.G5,
	CongestionNormalTraffic:                traffic.G5,
	CongestionQueue:                        traffic.G2,
	CongestionQueueLikely:                  traffic.G3,
	CongestionSlowTraffic:                  traffic.G3,
	CongestionStationaryTraffic:            traffic.G1,
	CongestionStationaryTrafficLikely:      traffic.G2,
	CongestionTrafficBuildingUp:            traffic.G4,
	CongestionTrafficCongestion:            traffic.G3,
	CongestionTrafficFlowingFreely:         traffic.G5,
	CongestionTrafficHeavierThanNormal:     traffic.G4,
	CongestionTrafficLighterThanNormal:     traffic.G5,
	CongestionTrafficMuchHeavierThanNormal: traffic.G3,
	CongestionTrafficProblem:               traffic.G3,

	// Delay types whose duration depends on the route length are better
	// expressed as a bucket.
	DelayDelay:         traffic.G2,
	DelayDelayPossible: traffic.G3,
	DelayLongDelay:     traffic.G1,
	DelayVeryLongDelay: traffic.G0,

	// Carriageway-level blockages are deliberately absent: other
	// carriageways of the same road may still be open.
	RestrictionBlocked:      traffic.TempBlock,
	RestrictionBlockedAhead: traffic.TempBlock,
	RestrictionClosed:       traffic.TempBlock,
	RestrictionClosedAhead:  traffic.TempBlock,
	RestrictionEntryBlocked: traffic.TempBlock,
	RestrictionExitBlocked:  traffic.TempBlock,
	RestrictionRampBlocked:  traffic.TempBlock,
	RestrictionRampClosed:   traffic.TempBlock,
	RestrictionSpeedLimit:   traffic.G4,
}

// eventDelayMins maps event types with an inherent duration to a delay in
// minutes. Types whose delay scales with route length are mapped to a speed
// group instead.
var eventDelayMins = map[EventType]int{
	DelaySeveralHours:      150,
	DelayUncertainDuration: 60,
}

// TrafficImpact consolidates the message's events into a single Impact.
// A full block wins outright. Otherwise the most restrictive bucket, the
// lowest explicit speed and the longest delay are kept. The second return
// value is false when no event has any effect on traffic.
func (m *Message) TrafficImpact() (Impact, bool) {
	if len(m.Events) == 0 {
		return Impact{}, false
	}

	var impacts []Impact
	for _, ev := range m.Events {
		impact := Impact{SpeedGroup: traffic.Unknown, MaxspeedKmH: MaxspeedNone}

		if sg, ok := eventSpeedGroups[ev.Type]; ok {
			impact.SpeedGroup = sg
		}
		if ev.SpeedKmH > 0 {
			impact.MaxspeedKmH = ev.SpeedKmH
		}
		if ev.Class == Delay && ev.DurationMins > 0 {
			impact.DelayMins = ev.DurationMins
		} else if mins, ok := eventDelayMins[ev.Type]; ok {
			impact.DelayMins = mins
		}

		if impact.SpeedGroup == traffic.TempBlock {
			return impact, true
		}
		if impact.MaxspeedKmH < MaxspeedNone || impact.DelayMins > 0 ||
			impact.SpeedGroup != traffic.Unknown {
			impacts = append(impacts, impact)
		}
	}

	if len(impacts) == 0 {
		return Impact{}, false
	}

	result := Impact{SpeedGroup: traffic.Unknown, MaxspeedKmH: MaxspeedNone}
	for _, impact := range impacts {
		if result.SpeedGroup == traffic.Unknown ||
			(impact.SpeedGroup != traffic.Unknown && impact.SpeedGroup < result.SpeedGroup) {
			result.SpeedGroup = impact.SpeedGroup
		}
		if impact.MaxspeedKmH < result.MaxspeedKmH {
			result.MaxspeedKmH = impact.MaxspeedKmH
		}
		if impact.DelayMins > result.DelayMins {
			result.DelayMins = impact.DelayMins
		}
	}
	return result, true
}
