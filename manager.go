// Package traffgo ties the traffic pipeline together: it keeps subscriptions
// to upstream sources aligned with the areas that matter (viewport, vehicle
// position, route corridor), feeds received messages through the decoder one
// at a time, maintains the aggregate coloring, and pushes throttled updates
// to the rendering and routing consumers.
package traffgo

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/traffxml/traff-go/decoder"
	"github.com/traffxml/traff-go/source"
	"github.com/traffxml/traff-go/storage"
	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

// Options tunes the manager's worker. Zero values select the defaults.
type Options struct {
	// UpdateInterval is the worker's idle wake-up period.
	UpdateInterval time.Duration
	// OutdatedTimeout is the response age at which data counts as stale.
	OutdatedTimeout time.Duration
	// NetworkErrorTimeout is the response age at which the pipeline gives up.
	NetworkErrorTimeout time.Duration
	// MaxRetries is the failure count at which the pipeline gives up.
	MaxRetries int
	// RenderThrottle and RouteThrottle bound how often each consumer is
	// notified while updates keep coming.
	RenderThrottle time.Duration
	RouteThrottle  time.Duration
	// PositionSquareM is the side length of the square kept subscribed
	// around the vehicle position.
	PositionSquareM float64
}

func (o *Options) applyDefaults() {
	if o.UpdateInterval <= 0 {
		o.UpdateInterval = time.Minute
	}
	if o.OutdatedTimeout <= 0 {
		// One missed poll plus a minute of slack.
		o.OutdatedTimeout = 6 * time.Minute
	}
	if o.NetworkErrorTimeout <= 0 {
		o.NetworkErrorTimeout = 20 * time.Minute
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.RenderThrottle <= 0 {
		o.RenderThrottle = 10 * time.Second
	}
	if o.RouteThrottle <= 0 {
		o.RouteThrottle = time.Minute
	}
	if o.PositionSquareM <= 0 {
		o.PositionSquareM = 5000
	}
}

// Manager is the traffic pipeline. Create one with New, register sources,
// then keep it posted about the viewport, position and route.
type Manager struct {
	opts     Options
	provider tiles.Provider
	dec      *decoder.Decoder

	// mu guards the manager state below. The source list has its own lock
	// so a slow source cannot stall state queries.
	mu            sync.Mutex
	enabled       bool
	state         State
	messages      map[string]traff.Message
	global        traff.MultiTileColoring
	feedQueue     []traff.Feed
	render        tileGroup
	position      tileGroup
	route         tileGroup
	tilesChanged  bool
	lastRenderPut time.Time
	lastRoutePut  time.Time

	srcMu   sync.Mutex
	sources []source.Source

	consumerMu     sync.Mutex
	renderConsumer RenderConsumer
	routeConsumer  RouteConsumer
	listener       StateListener

	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
	notices chan State

	now func() time.Time
}

// New returns a running manager. The matcher is the map-matching service
// locations are decoded against. Call Teardown when done.
func New(provider tiles.Provider, matcher decoder.Matcher, opts Options) *Manager {
	m := newManager(provider, matcher, opts)
	go m.notifier()
	go m.worker()
	return m
}

// newManager builds the manager without starting its goroutines. Tests
// drive iterations by hand.
func newManager(provider tiles.Provider, matcher decoder.Matcher, opts Options) *Manager {
	opts.applyDefaults()
	m := &Manager{
		opts:     opts,
		provider: provider,
		enabled:  true,
		state:    StateEnabled,
		messages: make(map[string]traff.Message),
		global:   make(traff.MultiTileColoring),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		notices:  make(chan State, 8),
		now:      time.Now,
	}
	m.dec = decoder.New(provider, matcher, m.cachedMessage)
	return m
}

// cachedMessage is the decoder's view into the message cache.
func (m *Manager) cachedMessage(id string) (traff.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	return msg, ok
}

// SetEnabled switches traffic processing on or off. Disabling suspends the
// pipeline but keeps the cache and the queued feeds, so re-enabling resumes
// where it left off. Re-enabling also clears a terminal network-error state.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	if m.enabled == enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = enabled
	if enabled {
		m.setStateLocked(StateEnabled)
		m.render.invalidate()
		m.position.invalidate()
		m.route.invalidate()
		m.tilesChanged = true
	} else {
		m.setStateLocked(StateDisabled)
	}
	m.mu.Unlock()
	if enabled {
		m.poke()
	}
}

// IsEnabled reports whether traffic processing is on.
func (m *Manager) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// UpdateViewport tells the manager what area is on screen.
func (m *Manager) UpdateViewport(r tiles.Rect) {
	m.updateGroup(&m.render, []tiles.Rect{r})
}

// UpdatePosition tells the manager where the vehicle is. A fixed-size square
// around the position stays subscribed.
func (m *Manager) UpdatePosition(p tiles.LatLon) {
	m.updateGroup(&m.position, []tiles.Rect{tiles.RectAround(p, m.opts.PositionSquareM)})
}

// UpdateRoute tells the manager which tiles the active route passes through.
func (m *Manager) UpdateRoute(rects []tiles.Rect) {
	m.updateGroup(&m.route, rects)
}

func (m *Manager) updateGroup(g *tileGroup, rects []tiles.Rect) {
	m.mu.Lock()
	changed := g.update(m.provider, rects)
	if changed {
		m.tilesChanged = true
	}
	m.mu.Unlock()
	if changed {
		m.poke()
	}
}

// Invalidate forces the next worker pass to recompute subscriptions and
// renotify the consumers, as after a map data change.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.render.invalidate()
	m.position.invalidate()
	m.route.invalidate()
	m.tilesChanged = true
	m.lastRenderPut = time.Time{}
	m.lastRoutePut = time.Time{}
	m.mu.Unlock()
	m.poke()
}

// Push queues a feed handed in from outside the source machinery, such as a
// file import.
func (m *Manager) Push(feed traff.Feed) {
	m.ReceiveFeed(feed)
}

// ReceiveFeed queues a received feed for decoding. Sources call this.
func (m *Manager) ReceiveFeed(feed traff.Feed) {
	if len(feed) == 0 {
		return
	}
	m.mu.Lock()
	m.feedQueue = append(m.feedQueue, feed)
	m.mu.Unlock()
	m.poke()
}

// ActiveTileRects returns the bounding rects of all tiles any of the three
// groups cares about. This is the area sources are subscribed to.
func (m *Manager) ActiveTileRects() []tiles.Rect {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeTileRectsLocked()
}

func (m *Manager) activeTileRectsLocked() []tiles.Rect {
	seen := make(map[tiles.ID]struct{})
	var rects []tiles.Rect
	for _, g := range []*tileGroup{&m.render, &m.position, &m.route} {
		for id := range g.active {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if r, ok := m.provider.TileRect(id); ok {
				rects = append(rects, r)
			}
		}
	}
	return rects
}

// RegisterSource adds an upstream source. The worker subscribes it on its
// next pass.
func (m *Manager) RegisterSource(src source.Source) {
	m.srcMu.Lock()
	m.sources = append(m.sources, src)
	m.srcMu.Unlock()
	m.mu.Lock()
	m.tilesChanged = true
	m.mu.Unlock()
	m.poke()
}

func (m *Manager) snapshotSources() []source.Source {
	m.srcMu.Lock()
	defer m.srcMu.Unlock()
	return append([]source.Source(nil), m.sources...)
}

// State returns the pipeline's current health.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetStateListener installs the state-change callback.
func (m *Manager) SetStateListener(l StateListener) {
	m.consumerMu.Lock()
	defer m.consumerMu.Unlock()
	m.listener = l
}

// SetRenderConsumer installs the rendering consumer.
func (m *Manager) SetRenderConsumer(c RenderConsumer) {
	m.consumerMu.Lock()
	defer m.consumerMu.Unlock()
	m.renderConsumer = c
}

// SetRouteConsumer installs the routing consumer.
func (m *Manager) SetRouteConsumer(c RouteConsumer) {
	m.consumerMu.Lock()
	defer m.consumerMu.Unlock()
	m.routeConsumer = c
}

// Messages returns a snapshot of the cached messages.
func (m *Manager) Messages() []traff.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]traff.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, msg)
	}
	return out
}

// Coloring returns a copy of the current aggregate coloring.
func (m *Manager) Coloring() traff.MultiTileColoring {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global.Clone()
}

// ClearCache drops every cached message and the aggregate coloring.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.messages = make(map[string]traff.Message)
	m.global = make(traff.MultiTileColoring)
	m.lastRenderPut = time.Time{}
	m.lastRoutePut = time.Time{}
	m.mu.Unlock()
	m.poke()
}

// SaveCache persists the message cache.
func (m *Manager) SaveCache(store *storage.Store) error {
	m.mu.Lock()
	snapshot := make(map[string]traff.Message, len(m.messages))
	for id, msg := range m.messages {
		snapshot[id] = msg
	}
	m.mu.Unlock()
	return store.Save(snapshot, m.provider)
}

// RestoreCache loads a persisted message cache. Messages whose decoded
// coloring refers to outdated tile data keep their payload but are queued
// for a fresh decode.
func (m *Manager) RestoreCache(store *storage.Store) error {
	ready, needsDecode, err := store.Load(m.provider)
	if err != nil {
		return fmt.Errorf("restore cache: %w", err)
	}
	m.mu.Lock()
	for id, msg := range ready {
		m.messages[id] = msg
	}
	m.rebuildGlobalLocked()
	if len(needsDecode) > 0 {
		m.feedQueue = append(m.feedQueue, needsDecode)
	}
	m.mu.Unlock()
	log.Printf("restored %d cached messages, %d need re-decoding", len(ready), len(needsDecode))
	m.poke()
	return nil
}

// Teardown stops the worker, unsubscribing every source first.
func (m *Manager) Teardown() {
	close(m.quit)
	<-m.done
	close(m.notices)
}

// poke wakes the worker without blocking.
func (m *Manager) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// setStateLocked records a state change and hands it to the notifier.
// Callers hold mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	log.Printf("traffic state %s -> %s", m.state, s)
	m.state = s
	select {
	case m.notices <- s:
	default:
		// A full queue means the listener is hopelessly behind; it will
		// still see the latest state on the next change.
	}
}

// notifier delivers state changes to the listener off the worker goroutine.
func (m *Manager) notifier() {
	for s := range m.notices {
		m.consumerMu.Lock()
		l := m.listener
		m.consumerMu.Unlock()
		if l != nil {
			l(s)
		}
	}
}

// rebuildGlobalLocked recomputes the aggregate coloring from the cache.
// Callers hold mu.
func (m *Manager) rebuildGlobalLocked() {
	global := make(traff.MultiTileColoring)
	for _, msg := range m.messages {
		traff.MergeMultiTileColoring(msg.Decoded, global)
	}
	m.global = global
}

// PurgeExpiredMessages removes expired messages and rebuilds the aggregate
// coloring. The worker calls this every pass; tests call it directly. Must
// not run concurrently with the worker's decode step, which the manager's
// locking already guarantees for external callers.
func (m *Manager) PurgeExpiredMessages() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, msg := range m.messages {
		if msg.IsExpired(now) {
			delete(m.messages, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("purged %d expired messages", removed)
		m.rebuildGlobalLocked()
	}
}

var _ source.Manager = (*Manager)(nil)
