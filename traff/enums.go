package traff

// Directionality says which directions of travel a location affects.
type Directionality int

const (
	OneDirection Directionality = iota
	BothDirections
)

func (d Directionality) String() string {
	if d == BothDirections {
		return "BOTH_DIRECTIONS"
	}
	return "ONE_DIRECTION"
}

func directionalityFromString(s string) (Directionality, bool) {
	switch s {
	case "ONE_DIRECTION":
		return OneDirection, true
	case "BOTH_DIRECTIONS":
		return BothDirections, true
	}
	return OneDirection, false
}

// Ramps says which ramps, if any, a location refers to.
type Ramps int

const (
	RampsNone Ramps = iota
	RampsAll
	RampsEntry
	RampsExit
)

func (r Ramps) String() string {
	switch r {
	case RampsAll:
		return "ALL_RAMPS"
	case RampsEntry:
		return "ENTRY_RAMP"
	case RampsExit:
		return "EXIT_RAMP"
	}
	return "NONE"
}

func rampsFromString(s string) (Ramps, bool) {
	switch s {
	case "ALL_RAMPS":
		return RampsAll, true
	case "ENTRY_RAMP":
		return RampsEntry, true
	case "EXIT_RAMP":
		return RampsExit, true
	case "NONE":
		return RampsNone, true
	}
	return RampsNone, false
}

// RoadClass is the coarse road classification hint a location may carry.
type RoadClass int

const (
	Motorway RoadClass = iota
	Trunk
	Primary
	Secondary
	Tertiary
	OtherRoad
)

func (c RoadClass) String() string {
	switch c {
	case Motorway:
		return "MOTORWAY"
	case Trunk:
		return "TRUNK"
	case Primary:
		return "PRIMARY"
	case Secondary:
		return "SECONDARY"
	case Tertiary:
		return "TERTIARY"
	}
	return "OTHER"
}

func roadClassFromString(s string) (RoadClass, bool) {
	switch s {
	case "MOTORWAY":
		return Motorway, true
	case "TRUNK":
		return Trunk, true
	case "PRIMARY":
		return Primary, true
	case "SECONDARY":
		return Secondary, true
	case "TERTIARY":
		return Tertiary, true
	case "OTHER":
		return OtherRoad, true
	}
	return OtherRoad, false
}

// EventClass is the coarse category of a traffic event.
type EventClass int

const (
	ClassInvalid EventClass = iota
	Activity
	Authority
	Carpool
	Congestion
	Construction
	Delay
	Environment
	EquipmentStatus
	Hazard
	Incident
	Restriction
	Security
	Transport
	Weather
)

var eventClassNames = map[EventClass]string{
	ClassInvalid:    "INVALID",
	Activity:        "ACTIVITY",
	Authority:       "AUTHORITY",
	Carpool:         "CARPOOL",
	Congestion:      "CONGESTION",
	Construction:    "CONSTRUCTION",
	Delay:           "DELAY",
	Environment:     "ENVIRONMENT",
	EquipmentStatus: "EQUIPMENT_STATUS",
	Hazard:          "HAZARD",
	Incident:        "INCIDENT",
	Restriction:     "RESTRICTION",
	Security:        "SECURITY",
	Transport:       "TRANSPORT",
	Weather:         "WEATHER",
}

func (c EventClass) String() string {
	if s, ok := eventClassNames[c]; ok {
		return s
	}
	return "INVALID"
}

func eventClassFromString(s string) (EventClass, bool) {
	for c, name := range eventClassNames {
		if name == s {
			return c, true
		}
	}
	return ClassInvalid, false
}

// EventType is the specific event within its class. The set below covers the
// congestion, delay and restriction classes; events of other classes are
// skipped during parsing.
type EventType int

const (
	TypeInvalid EventType = iota

	CongestionCleared
	CongestionForecastWithdrawn
	CongestionHeavyTraffic
	CongestionLongQueue
	CongestionNone
	CongestionNormalTraffic
	CongestionQueue
	CongestionQueueLikely
	CongestionSlowTraffic
	CongestionStationaryTraffic
	CongestionStationaryTrafficLikely
	CongestionTrafficBuildingUp
	CongestionTrafficCongestion
	CongestionTrafficEasing
	CongestionTrafficFlowingFreely
	CongestionTrafficHeavierThanNormal
	CongestionTrafficLighterThanNormal
	CongestionTrafficMuchHeavierThanNormal
	CongestionTrafficProblem

	DelayClearance
	DelayDelay
	DelayDelayPossible
	DelayForecastWithdrawn
	DelayLongDelay
	DelaySeveralHours
	DelayUncertainDuration
	DelayVeryLongDelay

	RestrictionBlocked
	RestrictionBlockedAhead
	RestrictionCarriagewayBlocked
	RestrictionCarriagewayClosed
	RestrictionClosed
	RestrictionClosedAhead
	RestrictionEntryBlocked
	RestrictionEntryReopened
	RestrictionExitBlocked
	RestrictionExitReopened
	RestrictionOpen
	RestrictionRampBlocked
	RestrictionRampClosed
	RestrictionRampReopened
	RestrictionReopened
	RestrictionSpeedLimit
	RestrictionSpeedLimitLifted
)

var eventTypeNames = map[EventType]string{
	TypeInvalid: "INVALID",

	CongestionCleared:                      "CONGESTION_CLEARED",
	CongestionForecastWithdrawn:            "CONGESTION_FORECAST_WITHDRAWN",
	CongestionHeavyTraffic:                 "CONGESTION_HEAVY_TRAFFIC",
	CongestionLongQueue:                    "CONGESTION_LONG_QUEUE",
	CongestionNone:                         "CONGESTION_NONE",
	CongestionNormalTraffic:                "CONGESTION_NORMAL_TRAFFIC",
	CongestionQueue:                        "CONGESTION_QUEUE",
	CongestionQueueLikely:                  "CONGESTION_QUEUE_LIKELY",
	CongestionSlowTraffic:                  "CONGESTION_SLOW_TRAFFIC",
	CongestionStationaryTraffic:            "CONGESTION_STATIONARY_TRAFFIC",
	CongestionStationaryTrafficLikely:      "CONGESTION_STATIONARY_TRAFFIC_LIKELY",
	CongestionTrafficBuildingUp:            "CONGESTION_TRAFFIC_BUILDING_UP",
	CongestionTrafficCongestion:            "CONGESTION_TRAFFIC_CONGESTION",
	CongestionTrafficEasing:                "CONGESTION_TRAFFIC_EASING",
	CongestionTrafficFlowingFreely:         "CONGESTION_TRAFFIC_FLOWING_FREELY",
	CongestionTrafficHeavierThanNormal:     "CONGESTION_TRAFFIC_HEAVIER_THAN_NORMAL",
	CongestionTrafficLighterThanNormal:     "CONGESTION_TRAFFIC_LIGHTER_THAN_NORMAL",
	CongestionTrafficMuchHeavierThanNormal: "CONGESTION_TRAFFIC_MUCH_HEAVIER_THAN_NORMAL",
	CongestionTrafficProblem:               "CONGESTION_TRAFFIC_PROBLEM",

	DelayClearance:         "DELAY_CLEARANCE",
	DelayDelay:             "DELAY_DELAY",
	DelayDelayPossible:     "DELAY_DELAY_POSSIBLE",
	DelayForecastWithdrawn: "DELAY_FORECAST_WITHDRAWN",
	DelayLongDelay:         "DELAY_LONG_DELAY",
	DelaySeveralHours:      "DELAY_SEVERAL_HOURS",
	DelayUncertainDuration: "DELAY_UNCERTAIN_DURATION",
	DelayVeryLongDelay:     "DELAY_VERY_LONG_DELAY",

	RestrictionBlocked:            "RESTRICTION_BLOCKED",
	RestrictionBlockedAhead:       "RESTRICTION_BLOCKED_AHEAD",
	RestrictionCarriagewayBlocked: "RESTRICTION_CARRIAGEWAY_BLOCKED",
	RestrictionCarriagewayClosed:  "RESTRICTION_CARRIAGEWAY_CLOSED",
	RestrictionClosed:             "RESTRICTION_CLOSED",
	RestrictionClosedAhead:        "RESTRICTION_CLOSED_AHEAD",
	RestrictionEntryBlocked:       "RESTRICTION_ENTRY_BLOCKED",
	RestrictionEntryReopened:      "RESTRICTION_ENTRY_REOPENED",
	RestrictionExitBlocked:        "RESTRICTION_EXIT_BLOCKED",
	RestrictionExitReopened:       "RESTRICTION_EXIT_REOPENED",
	RestrictionOpen:               "RESTRICTION_OPEN",
	RestrictionRampBlocked:        "RESTRICTION_RAMP_BLOCKED",
	RestrictionRampClosed:         "RESTRICTION_RAMP_CLOSED",
	RestrictionRampReopened:       "RESTRICTION_RAMP_REOPENED",
	RestrictionReopened:           "RESTRICTION_REOPENED",
	RestrictionSpeedLimit:         "RESTRICTION_SPEED_LIMIT",
	RestrictionSpeedLimitLifted:   "RESTRICTION_SPEED_LIMIT_LIFTED",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "INVALID"
}

func eventTypeFromString(s string) (EventType, bool) {
	for t, name := range eventTypeNames {
		if name == s {
			return t, true
		}
	}
	return TypeInvalid, false
}

// ResponseStatus is the status code of a subscription or poll response.
type ResponseStatus int

const (
	StatusInvalid ResponseStatus = iota
	StatusOK
	StatusSubscriptionRejected
	StatusNotCovered
	StatusPartiallyCovered
	StatusSubscriptionUnknown
	StatusPushRejected
	StatusInternalError
)

var responseStatusNames = map[ResponseStatus]string{
	StatusInvalid:              "INVALID",
	StatusOK:                   "OK",
	StatusSubscriptionRejected: "SUBSCRIPTION_REJECTED",
	StatusNotCovered:           "NOT_COVERED",
	StatusPartiallyCovered:     "PARTIALLY_COVERED",
	StatusSubscriptionUnknown:  "SUBSCRIPTION_UNKNOWN",
	StatusPushRejected:         "PUSH_REJECTED",
	StatusInternalError:        "INTERNAL_ERROR",
}

func (s ResponseStatus) String() string {
	if n, ok := responseStatusNames[s]; ok {
		return n
	}
	return "INVALID"
}

func responseStatusFromString(s string) (ResponseStatus, bool) {
	for st, name := range responseStatusNames {
		if name == s {
			return st, true
		}
	}
	return StatusInvalid, false
}
