// Package decoder turns traffic messages into colorings of map road segments.
// It matches a message's location to segments through a Matcher and derives a
// speed group per segment from the message's consolidated impact.
package decoder

import (
	"context"
	"fmt"
	"math"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
	"github.com/traffxml/traff-go/traffic"
)

// MatchPoint is one input point of a map-matching request.
type MatchPoint struct {
	Coordinates tiles.LatLon
	// DistanceToNextM is the expected along-road distance to the next point,
	// 0 for the last point.
	DistanceToNextM float64
}

// MatchRequest asks the matcher for the chain of road segments connecting the
// points, in order.
type MatchRequest struct {
	Points []MatchPoint
	// RoadClass and Ramps narrow the candidate set, if present.
	RoadClass *traff.RoadClass
	Ramps     traff.Ramps
	// Backwards is set when the points were reversed to match the opposite
	// direction of travel.
	Backwards bool
}

// MatchedSegment is one road segment of a match result, in travel order.
type MatchedSegment struct {
	Tile    tiles.ID
	Segment traffic.RoadSegmentID
	// Junction is the position of the segment's start junction.
	Junction tiles.LatLon
	// Fake marks a connector the router inserted to bridge a gap; fake
	// segments are never colored.
	Fake bool
}

// Matcher is the map-matching service the decoder delegates to.
type Matcher interface {
	MatchLocation(ctx context.Context, req MatchRequest) ([]MatchedSegment, error)
}

// CacheView looks up a previously decoded message by id. The returned message
// must not be mutated.
type CacheView func(id string) (traff.Message, bool)

// Decoder decodes messages against one map dataset.
type Decoder struct {
	provider tiles.Provider
	matcher  Matcher
	cached   CacheView
}

// New returns a decoder. cached may be nil if no previous decode results are
// available.
func New(provider tiles.Provider, matcher Matcher, cached CacheView) *Decoder {
	return &Decoder{provider: provider, matcher: matcher, cached: cached}
}

// DecodeMessage fills in msg.Decoded. Messages without a location or without
// any traffic impact end up with no coloring. When a previously decoded
// version of the message covers the same stretch of road, its match result is
// reused instead of asking the matcher again.
func (d *Decoder) DecodeMessage(ctx context.Context, msg *traff.Message) error {
	if msg.Location == nil {
		return nil
	}
	impact, ok := msg.TrafficImpact()
	if !ok {
		msg.Decoded = nil
		return nil
	}

	if d.cached != nil {
		if old, found := d.cached(msg.ID); found && len(old.Decoded) > 0 &&
			old.Location.Equal(msg.Location) {
			if oldImpact, ok := old.TrafficImpact(); ok && oldImpact.Equal(impact) {
				msg.Decoded = old.Decoded.Clone()
				return nil
			}
			// Same geometry, different impact: keep the matched segments,
			// recompute their speed groups.
			msg.Decoded = blankColoring(old.Decoded)
			d.applyImpact(msg, impact)
			return nil
		}
	}

	decoded := make(traff.MultiTileColoring)
	directions := 1
	if msg.Location.Directionality == traff.BothDirections {
		directions = 2
	}
	for dir := 0; dir < directions; dir++ {
		segments, err := d.matchDirection(ctx, msg.Location, dir == 1)
		if err != nil {
			return fmt.Errorf("decode message %s: %w", msg.ID, err)
		}
		for _, s := range segments {
			if decoded[s.Tile] == nil {
				decoded[s.Tile] = make(traffic.Coloring)
			}
			decoded[s.Tile][s.Segment] = traffic.Unknown
		}
	}
	msg.Decoded = decoded
	d.applyImpact(msg, impact)
	return nil
}

// blankColoring copies the segment keys of a coloring with every group reset
// to Unknown.
func blankColoring(old traff.MultiTileColoring) traff.MultiTileColoring {
	out := make(traff.MultiTileColoring, len(old))
	for tile, coloring := range old {
		blank := make(traffic.Coloring, len(coloring))
		for seg := range coloring {
			blank[seg] = traffic.Unknown
		}
		out[tile] = blank
	}
	return out
}

// dnpFudgeFactor inflates the straight-line distance between two points into
// an estimate of the along-road distance.
const dnpFudgeFactor = 1.19

func (d *Decoder) matchDirection(ctx context.Context, loc *traff.Location, backwards bool) ([]MatchedSegment, error) {
	mid := loc.At
	if mid == nil {
		mid = loc.Via
	}
	var points []*traff.Point
	for _, p := range []*traff.Point{loc.From, mid, loc.To} {
		if p != nil {
			points = append(points, p)
		}
	}
	if backwards {
		for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
			points[i], points[j] = points[j], points[i]
		}
	}

	req := MatchRequest{
		RoadClass: loc.RoadClass,
		Ramps:     loc.Ramps,
		Backwards: backwards,
	}
	for i, p := range points {
		mp := MatchPoint{Coordinates: p.Coordinates}
		if i < len(points)-1 {
			if p.DistanceM > 0 {
				mp.DistanceToNextM = p.DistanceM
			} else {
				mp.DistanceToNextM = dnpFudgeFactor *
					haversineM(p.Coordinates, points[i+1].Coordinates)
			}
		}
		req.Points = append(req.Points, mp)
	}

	segments, err := d.matcher.MatchLocation(ctx, req)
	if err != nil {
		return nil, err
	}
	return selectSegments(segments, loc, backwards), nil
}

// selectSegments narrows a match result to the segments the location actually
// refers to. A location with an at point but an open end names a single
// segment next to the at point; anything else colors the whole chain.
func selectSegments(segments []MatchedSegment, loc *traff.Location, backwards bool) []MatchedSegment {
	// Connectors at either end only exist to anchor the match.
	for len(segments) > 0 && segments[0].Fake {
		segments = segments[1:]
	}
	for len(segments) > 0 && segments[len(segments)-1].Fake {
		segments = segments[:len(segments)-1]
	}
	if len(segments) == 0 {
		return nil
	}

	hasFrom := loc.From != nil
	hasAt := loc.At != nil
	hasTo := loc.To != nil

	switch {
	case hasAt && !hasTo:
		if backwards {
			return segments[:1]
		}
		return segments[len(segments)-1:]
	case hasAt && !hasFrom:
		if backwards {
			return segments[len(segments)-1:]
		}
		return segments[:1]
	case hasFrom && hasAt && hasTo:
		best := -1
		bestDist := math.Inf(1)
		for i, s := range segments {
			if s.Fake {
				continue
			}
			if dist := haversineM(s.Junction, loc.At.Coordinates); dist < bestDist {
				best, bestDist = i, dist
			}
		}
		if best < 0 {
			return nil
		}
		return segments[best : best+1]
	}

	kept := segments[:0]
	for _, s := range segments {
		if !s.Fake {
			kept = append(kept, s)
		}
	}
	return kept
}

// applyImpact assigns a speed group to every decoded segment. Three signals
// compete and the slowest wins: the impact's own bucket, a bucket derived
// from the reported delay over the route's normal travel time, and a bucket
// derived from the reported speed over the segment's legal speed.
func (d *Decoder) applyImpact(msg *traff.Message, impact traff.Impact) {
	fromDelay := traffic.Unknown
	if impact.DelayMins > 0 && impact.SpeedGroup != traffic.TempBlock {
		normalS := 0.0
		for tile, coloring := range msg.Decoded {
			for seg := range coloring {
				lengthM, ok := d.provider.SegmentLengthM(tile, seg)
				if !ok {
					continue
				}
				speedKmH, ok := d.provider.SegmentMaxspeedKmH(tile, seg)
				if !ok || speedKmH <= 0 {
					continue
				}
				normalS += lengthM / (speedKmH / 3.6)
			}
		}
		if normalS > 0 {
			delayS := float64(impact.DelayMins) * 60
			fromDelay = traffic.GroupByPercentage(normalS * 100 / (normalS + delayS))
		}
	}

	for tile, coloring := range msg.Decoded {
		for seg := range coloring {
			sg := impact.SpeedGroup
			if sg != traffic.TempBlock && fromDelay != traffic.Unknown &&
				(sg == traffic.Unknown || fromDelay < sg) {
				sg = fromDelay
			}
			if sg != traffic.TempBlock && impact.MaxspeedKmH != traff.MaxspeedNone {
				if legalKmH, ok := d.provider.SegmentMaxspeedKmH(tile, seg); ok && legalKmH > 0 {
					fromMaxspeed := traffic.GroupByPercentage(
						float64(impact.MaxspeedKmH) * 100 / legalKmH)
					if sg == traffic.Unknown || fromMaxspeed < sg {
						sg = fromMaxspeed
					}
				}
			}
			coloring[seg] = sg
		}
	}
}

const earthRadiusM = 6371000

// haversineM is the great-circle distance between two points in meters.
func haversineM(a, b tiles.LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}
