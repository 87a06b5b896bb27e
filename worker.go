package traffgo

import (
	"context"
	"log"
	"time"

	"github.com/traffxml/traff-go/source"
	"github.com/traffxml/traff-go/traff"
)

// worker is the manager's single processing goroutine. Each pass does a
// bounded amount of work; decoding in particular handles exactly one message,
// so a burst of inbound feeds is worked off incrementally instead of stalling
// a single pass for its whole duration.
func (m *Manager) worker() {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		m.runIteration()

		if m.queuePending() {
			// More messages are waiting; only stop for a shutdown.
			select {
			case <-m.quit:
				m.shutdownSources()
				return
			default:
				continue
			}
		}

		select {
		case <-m.quit:
			m.shutdownSources()
			return
		case <-m.wake:
		case <-ticker.C:
		}
	}
}

func (m *Manager) queuePending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return false
	}
	for _, feed := range m.feedQueue {
		if len(feed) > 0 {
			return true
		}
	}
	return false
}

// runIteration is one worker pass. Exported to tests via the Iterate helper.
func (m *Manager) runIteration() {
	if !m.IsEnabled() {
		return
	}
	m.PurgeExpiredMessages()
	m.updateSubscriptions()
	m.pollSources()
	m.consolidateFeedQueue()
	decoded := m.decodeFirstMessage()
	m.updateState()
	m.notifyConsumers(decoded)
}

// updateSubscriptions realigns every source's subscription when the active
// tile set changed, and re-subscribes sources whose subscription was
// rejected in case the service changed its mind along with our area.
func (m *Manager) updateSubscriptions() {
	m.mu.Lock()
	changed := m.tilesChanged
	m.tilesChanged = false
	rects := m.activeTileRectsLocked()
	m.mu.Unlock()

	for _, src := range m.snapshotSources() {
		st := src.Status()
		if st.Availability == source.AvailabilityExpiredApp {
			continue
		}
		if changed || st.Availability == source.AvailabilitySubscriptionRejected {
			src.SubscribeOrChangeSubscription(rects)
		}
	}
}

func (m *Manager) pollSources() {
	for _, src := range m.snapshotSources() {
		if src.IsPollNeeded() {
			src.Poll()
		}
	}
}

// consolidateFeedQueue deduplicates messages across the queued feeds: of two
// messages with the same id, the one with the newer update time survives; on
// a tie the one from the later-queued feed does. Emptied feeds are dropped.
func (m *Manager) consolidateFeedQueue() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedQueue = consolidateFeeds(m.feedQueue)
}

func consolidateFeeds(queue []traff.Feed) []traff.Feed {
	type pos struct{ feed, idx int }
	best := make(map[string]pos)
	drop := make(map[pos]bool)

	for fi, feed := range queue {
		for mi, msg := range feed {
			p, seen := best[msg.ID]
			if !seen {
				best[msg.ID] = pos{fi, mi}
				continue
			}
			held := queue[p.feed][p.idx]
			if msg.UpdateTime.Before(held.UpdateTime) {
				drop[pos{fi, mi}] = true
				continue
			}
			drop[p] = true
			best[msg.ID] = pos{fi, mi}
		}
	}

	var out []traff.Feed
	for fi, feed := range queue {
		var kept traff.Feed
		for mi, msg := range feed {
			if !drop[pos{fi, mi}] {
				kept = append(kept, msg)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// decodeFirstMessage pops the oldest queued message and runs it through the
// decoder. The decode itself runs without the manager lock held; the decoder
// reaches back into the cache through its own locked view. Returns true if a
// message was processed.
func (m *Manager) decodeFirstMessage() bool {
	m.mu.Lock()
	var msg traff.Message
	found := false
	for i := range m.feedQueue {
		if len(m.feedQueue[i]) == 0 {
			continue
		}
		msg = m.feedQueue[i][0]
		m.feedQueue[i] = m.feedQueue[i][1:]
		found = true
		break
	}
	if found {
		// A cached copy at least as new makes this update a no-op.
		if old, ok := m.messages[msg.ID]; ok && !old.UpdateTime.Before(msg.UpdateTime) {
			m.mu.Unlock()
			return true
		}
	}
	m.mu.Unlock()
	if !found {
		return false
	}

	if msg.Cancellation {
		m.mu.Lock()
		delete(m.messages, msg.ID)
		for _, id := range msg.Replaces {
			delete(m.messages, id)
		}
		m.rebuildGlobalLocked()
		m.mu.Unlock()
		log.Printf("message %s cancelled", msg.ID)
		return true
	}

	if err := m.dec.DecodeMessage(context.Background(), &msg); err != nil {
		// Decoding is deterministic; a retry without new input cannot go
		// better. Cache the message uncolored.
		log.Printf("decoding message %s failed: %v", msg.ID, err)
		msg.Decoded = nil
	}

	m.mu.Lock()
	removed := false
	for _, id := range msg.Replaces {
		if _, ok := m.messages[id]; ok {
			delete(m.messages, id)
			removed = true
		}
	}
	if old, ok := m.messages[msg.ID]; ok && len(old.Decoded) > 0 {
		removed = true
	}
	m.messages[msg.ID] = msg
	if removed {
		m.rebuildGlobalLocked()
	} else {
		traff.MergeMultiTileColoring(msg.Decoded, m.global)
	}
	m.mu.Unlock()
	return true
}

// updateState re-derives the pipeline state from the sources. The first
// matching condition wins: network error, then an outstanding request, then
// a too-old app, then missing coverage, then stale data, then normal. A
// network error is terminal until traffic is toggled off and on.
func (m *Manager) updateState() {
	m.mu.Lock()
	if !m.enabled || m.state == StateNetworkError {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	now := m.now()
	statuses := make([]source.Status, 0)
	for _, src := range m.snapshotSources() {
		statuses = append(statuses, src.Status())
	}

	next := StateEnabled
	switch {
	case m.anyNetworkError(statuses, now):
		next = StateNetworkError
	case anyStatus(statuses, func(st source.Status) bool { return st.Waiting }):
		next = StateWaitingData
	case anyStatus(statuses, func(st source.Status) bool {
		return st.Availability == source.AvailabilityExpiredApp
	}):
		next = StateExpiredApp
	case anyStatus(statuses, func(st source.Status) bool {
		return st.Availability == source.AvailabilityNotCovered
	}):
		next = StateNoData
	case anyStatus(statuses, func(st source.Status) bool {
		return !st.LastResponse.IsZero() && now.Sub(st.LastResponse) >= m.opts.OutdatedTimeout
	}):
		next = StateOutdated
	}

	m.mu.Lock()
	// The lock was dropped while collecting statuses; a concurrent disable
	// or a network error tripping in between must not be overwritten.
	if m.enabled && m.state != StateNetworkError {
		m.setStateLocked(next)
	}
	m.mu.Unlock()
}

func (m *Manager) anyNetworkError(statuses []source.Status, now time.Time) bool {
	for _, st := range statuses {
		if st.Retries >= m.opts.MaxRetries {
			return true
		}
		if !st.LastResponse.IsZero() && now.Sub(st.LastResponse) >= m.opts.NetworkErrorTimeout {
			return true
		}
	}
	return false
}

func anyStatus(statuses []source.Status, pred func(source.Status) bool) bool {
	for _, st := range statuses {
		if pred(st) {
			return true
		}
	}
	return false
}

// notifyConsumers pushes the aggregate coloring out. With the queue drained
// the update is final and goes out unconditionally; while more messages are
// pending each consumer gets at most one interim update per throttle period.
func (m *Manager) notifyConsumers(workDone bool) {
	m.mu.Lock()
	queueEmpty := true
	for _, feed := range m.feedQueue {
		if len(feed) > 0 {
			queueEmpty = false
			break
		}
	}
	if !workDone && !queueEmpty {
		m.mu.Unlock()
		return
	}
	now := m.now()
	final := queueEmpty
	notifyRender := final || now.Sub(m.lastRenderPut) >= m.opts.RenderThrottle
	notifyRoute := final || now.Sub(m.lastRoutePut) >= m.opts.RouteThrottle
	if !workDone && final {
		// Nothing changed since the last pass; don't spam the consumers.
		notifyRender = false
		notifyRoute = false
	}
	var coloring traff.MultiTileColoring
	if notifyRender || notifyRoute {
		coloring = m.global.Clone()
	}
	if notifyRender {
		m.lastRenderPut = now
	}
	if notifyRoute {
		m.lastRoutePut = now
	}
	m.mu.Unlock()

	m.consumerMu.Lock()
	render := m.renderConsumer
	route := m.routeConsumer
	m.consumerMu.Unlock()

	if notifyRender && render != nil {
		render.OnTrafficUpdate(coloring, final)
	}
	if notifyRoute && route != nil {
		route.OnTrafficUpdate(coloring)
	}
}

// shutdownSources unsubscribes every source on teardown.
func (m *Manager) shutdownSources() {
	for _, src := range m.snapshotSources() {
		src.Unsubscribe()
	}
}
