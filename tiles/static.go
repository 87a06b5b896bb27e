package tiles

import (
	"slices"
	"sync"

	"github.com/traffxml/traff-go/traffic"
)

// SegmentInfo describes one road segment of a static tile.
type SegmentInfo struct {
	LengthM     float64
	MaxspeedKmH float64
}

// StaticProvider is a Provider backed by an in-memory tile table. It serves
// the tests and the daemon's offline mode; real deployments wire the map
// dataset reader instead.
type StaticProvider struct {
	mu    sync.RWMutex
	tiles map[ID]*staticTile
}

type staticTile struct {
	rect     Rect
	version  int64
	alive    bool
	segments map[traffic.RoadSegmentID]SegmentInfo
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{tiles: make(map[ID]*staticTile)}
}

// AddTile registers a tile with its extent and data version.
func (p *StaticProvider) AddTile(id ID, rect Rect, version int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tiles[id] = &staticTile{
		rect:     rect,
		version:  version,
		alive:    true,
		segments: make(map[traffic.RoadSegmentID]SegmentInfo),
	}
}

// AddSegment registers a road segment of a previously added tile.
func (p *StaticProvider) AddSegment(id ID, seg traffic.RoadSegmentID, info SegmentInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tiles[id]; ok {
		t.segments[seg] = info
	}
}

// SetAlive marks a tile's map data as loaded or unloaded.
func (p *StaticProvider) SetAlive(id ID, alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tiles[id]; ok {
		t.alive = alive
	}
}

// SetVersion changes a tile's data version, simulating a map update.
func (p *StaticProvider) SetVersion(id ID, version int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tiles[id]; ok {
		t.version = version
	}
}

func (p *StaticProvider) TilesByRect(r Rect) []ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []ID
	for id, t := range p.tiles {
		if t.rect.Intersects(r) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (p *StaticProvider) IsAlive(id ID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tiles[id]
	return ok && t.alive
}

func (p *StaticProvider) TileRect(id ID) (Rect, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tiles[id]
	if !ok {
		return Rect{}, false
	}
	return t.rect, true
}

func (p *StaticProvider) TileVersion(id ID) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tiles[id]
	if !ok {
		return 0, false
	}
	return t.version, true
}

func (p *StaticProvider) SegmentLengthM(id ID, seg traffic.RoadSegmentID) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tiles[id]
	if !ok {
		return 0, false
	}
	info, ok := t.segments[seg]
	if !ok {
		return 0, false
	}
	return info.LengthM, true
}

func (p *StaticProvider) SegmentMaxspeedKmH(id ID, seg traffic.RoadSegmentID) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tiles[id]
	if !ok {
		return 0, false
	}
	info, ok := t.segments[seg]
	if !ok {
		return 0, false
	}
	return info.MaxspeedKmH, true
}
