package traffgo

import (
	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

// State is the overall health of the traffic pipeline as shown to the user.
type State int

const (
	// StateDisabled means traffic is switched off.
	StateDisabled State = iota
	// StateEnabled means everything is normal.
	StateEnabled
	// StateWaitingData means a request to a source is outstanding.
	StateWaitingData
	// StateOutdated means the data on display is older than we like.
	StateOutdated
	// StateNoData means the sources have no coverage for the active area.
	StateNoData
	// StateNetworkError means the sources have been failing for too long.
	// Terminal until traffic is disabled and re-enabled.
	StateNetworkError
	// StateExpiredData means a source serves data our map is too old for.
	StateExpiredData
	// StateExpiredApp means a source no longer serves our protocol version.
	StateExpiredApp
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	case StateWaitingData:
		return "waiting for data"
	case StateOutdated:
		return "outdated"
	case StateNoData:
		return "no data"
	case StateNetworkError:
		return "network error"
	case StateExpiredData:
		return "data too old"
	case StateExpiredApp:
		return "app too old"
	}
	return "unknown"
}

// StateListener is told about state changes. Called on a dedicated
// notification goroutine, never on the worker.
type StateListener func(State)

// RenderConsumer receives the aggregate coloring for display. isFinal is set
// when the feed queue is empty, so no further update is imminent.
type RenderConsumer interface {
	OnTrafficUpdate(coloring traff.MultiTileColoring, isFinal bool)
}

// RouteConsumer receives the aggregate coloring for traversal-cost penalties
// during route computation.
type RouteConsumer interface {
	OnTrafficUpdate(coloring traff.MultiTileColoring)
}

// tileGroup is one of the three areas we keep subscriptions for: the
// viewport, the position square and the route corridor. lastRects remembers
// the input so Invalidate can force recomputation.
type tileGroup struct {
	lastRects []tiles.Rect
	active    map[tiles.ID]struct{}
}

// update recomputes the group's active tile set from the requested rects.
// Only tiles whose map data is loaded enter the set; an unloaded tile must
// not widen the subscription area. Returns true if the set changed.
func (g *tileGroup) update(provider tiles.Provider, rects []tiles.Rect) bool {
	g.lastRects = append([]tiles.Rect(nil), rects...)
	fresh := make(map[tiles.ID]struct{})
	for _, r := range rects {
		for _, id := range provider.TilesByRect(r) {
			if !provider.IsAlive(id) {
				continue
			}
			fresh[id] = struct{}{}
		}
	}
	if len(fresh) == len(g.active) {
		same := true
		for id := range fresh {
			if _, ok := g.active[id]; !ok {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}
	g.active = fresh
	return true
}

// invalidate clears the remembered input so the next update always reports a
// change.
func (g *tileGroup) invalidate() {
	g.lastRects = nil
	g.active = nil
}
