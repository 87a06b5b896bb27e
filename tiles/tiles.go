// Package tiles is the boundary to the tiled map dataset. The manager and the
// decoder only ever see the Provider interface; the concrete dataset reader
// lives outside this module.
package tiles

import (
	"math"

	"github.com/traffxml/traff-go/traffic"
)

// ID names one map tile. Tiles are versioned independently.
type ID string

// LatLon is a geographic coordinate in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// Rect is a geographic bounding box in degrees.
type Rect struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Intersects reports whether the two rects share any area.
func (r Rect) Intersects(o Rect) bool {
	return r.MinLat <= o.MaxLat && o.MinLat <= r.MaxLat &&
		r.MinLon <= o.MaxLon && o.MinLon <= r.MaxLon
}

// metersPerLatDegree is a good enough approximation for tile lookups.
const metersPerLatDegree = 111320.0

// RectAround returns a square with the given side length centered on p.
func RectAround(p LatLon, sideM float64) Rect {
	dLat := sideM / 2 / metersPerLatDegree
	dLon := dLat / math.Cos(p.Lat*math.Pi/180)
	return Rect{
		MinLat: p.Lat - dLat,
		MinLon: p.Lon - dLon,
		MaxLat: p.Lat + dLat,
		MaxLon: p.Lon + dLon,
	}
}

// Provider exposes the tile geometry and speed data the pipeline needs.
// Implementations must be safe for concurrent use.
type Provider interface {
	// TilesByRect returns the ids of all tiles overlapping the rect,
	// whether or not their data is loaded.
	TilesByRect(r Rect) []ID
	// IsAlive reports whether the tile's backing map data is loaded.
	IsAlive(id ID) bool
	// TileRect returns the tile's bounding rectangle.
	TileRect(id ID) (Rect, bool)
	// TileVersion returns the version of the tile's map data.
	TileVersion(id ID) (int64, bool)
	// SegmentLengthM returns the length of a road segment in meters.
	SegmentLengthM(id ID, seg traffic.RoadSegmentID) (float64, bool)
	// SegmentMaxspeedKmH returns the legal speed on a road segment for its
	// direction of travel.
	SegmentMaxspeedKmH(id ID, seg traffic.RoadSegmentID) (float64, bool)
}
