// Package traff implements the traffic feed wire model: messages with their
// locations and events, the consolidated traffic impact, colorings decoded
// from them, and the XML codec for feeds, responses and the persisted cache.
package traff

import (
	"time"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traffic"
)

// Point is one geographic reference point of a location.
type Point struct {
	Coordinates tiles.LatLon
	// JunctionName and JunctionRef are display hints, not used for matching.
	JunctionName string
	JunctionRef  string
	// DistanceM is the along-road distance to the next point, 0 if unknown.
	DistanceM float64
}

// Equal compares two optional points by coordinates only.
func (p *Point) Equal(o *Point) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Coordinates == o.Coordinates
}

// Location is the ordered geographic description of a message. The road and
// place names are presentation metadata; matching uses the points and the
// road-class/ramp hints only.
type Location struct {
	From   *Point
	At     *Point
	Via    *Point
	NotVia *Point
	To     *Point

	Directionality Directionality
	Ramps          Ramps
	RoadClass      *RoadClass

	Country     string
	Destination string
	Direction   string
	Origin      string
	RoadRef     string
	RoadName    string
	Territory   string
	Town        string
}

// Equal compares two locations by their point sets. Metadata and hints are
// excluded: two messages describing the same physical stretch of road share
// a decode result even if the textual details differ.
func (l *Location) Equal(o *Location) bool {
	if l == nil || o == nil {
		return l == o
	}
	return l.From.Equal(o.From) &&
		l.At.Equal(o.At) &&
		l.Via.Equal(o.Via) &&
		l.NotVia.Equal(o.NotVia) &&
		l.To.Equal(o.To)
}

// Event is one traffic event of a message, a (class, type) pair plus
// optional quantifiers. Zero means unspecified for all quantifiers.
type Event struct {
	Class EventClass
	Type  EventType

	// LengthM is the affected length in meters.
	LengthM int
	// Probability is in percent.
	Probability int
	// DurationMins is the explicit q_duration quantifier.
	DurationMins int
	// SpeedKmH is the explicit speed quantifier.
	SpeedKmH int
}

// MultiTileColoring is a decoded coloring spanning one or more tiles.
type MultiTileColoring map[tiles.ID]traffic.Coloring

// MergeMultiTileColoring merges delta into target, tile by tile, using the
// segment-level merge rule from the traffic package.
func MergeMultiTileColoring(delta, target MultiTileColoring) {
	for tile, coloring := range delta {
		if existing, ok := target[tile]; ok {
			traffic.MergeColoring(coloring, existing)
		} else {
			target[tile] = coloring.Clone()
		}
	}
}

// Clone returns a deep copy of the coloring.
func (c MultiTileColoring) Clone() MultiTileColoring {
	if c == nil {
		return nil
	}
	out := make(MultiTileColoring, len(c))
	for tile, coloring := range c {
		out[tile] = coloring.Clone()
	}
	return out
}

// Message is one traffic report. A non-cancellation message always has a
// Location; a cancellation message has none.
type Message struct {
	ID string

	ReceiveTime    time.Time
	UpdateTime     time.Time
	ExpirationTime time.Time
	// StartTime and EndTime bound the validity window; zero means unset.
	StartTime time.Time
	EndTime   time.Time

	Cancellation bool
	Forecast     bool

	// Replaces lists ids of messages this one supersedes.
	Replaces []string

	Location *Location
	Events   []Event

	// Decoded is the cached coloring produced by the decoder.
	Decoded MultiTileColoring
}

// Feed is an ordered batch of messages as received from a source.
type Feed []Message

// Response is the reply to a subscribe, change-subscription, poll or
// unsubscribe request.
type Response struct {
	Status         ResponseStatus
	SubscriptionID string
	// TimeoutS is the number of seconds after which the data should be
	// considered stale; 0 if the source did not say.
	TimeoutS int
	// MinVersion is the lowest protocol version the source still serves,
	// empty if not stated.
	MinVersion string
	// Feed is the embedded feed, if the response carried one.
	Feed Feed
}

// EffectiveExpirationTime is the latest of the explicit expiration time and
// the validity window bounds. A message stays in the cache until then even
// if its expiration time has passed, so that a still-running validity window
// keeps it alive.
func (m *Message) EffectiveExpirationTime() time.Time {
	t := m.ExpirationTime
	if m.StartTime.After(t) {
		t = m.StartTime
	}
	if m.EndTime.After(t) {
		t = m.EndTime
	}
	return t
}

// IsExpired reports whether the message's effective expiration time has
// passed.
func (m *Message) IsExpired(now time.Time) bool {
	return m.EffectiveExpirationTime().Before(now)
}

// ShiftTimestamps moves all timestamps of the message so that its update
// time becomes now, preserving the relative offsets. Canned test feeds use
// this to stay fresh.
func (m *Message) ShiftTimestamps(now time.Time) {
	delta := now.Sub(m.UpdateTime)
	m.UpdateTime = now
	if !m.ReceiveTime.IsZero() {
		m.ReceiveTime = m.ReceiveTime.Add(delta)
	}
	m.ExpirationTime = m.ExpirationTime.Add(delta)
	if !m.StartTime.IsZero() {
		m.StartTime = m.StartTime.Add(delta)
	}
	if !m.EndTime.IsZero() {
		m.EndTime = m.EndTime.Add(delta)
	}
}

// ShiftTimestamps shifts every message of the feed, see Message.ShiftTimestamps.
func (f Feed) ShiftTimestamps(now time.Time) {
	for i := range f {
		f[i].ShiftTimestamps(now)
	}
}
