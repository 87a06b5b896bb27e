package source

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

// MockSource serves a canned feed. It accepts any subscription and re-serves
// the feed on every poll with its timestamps shifted to now, so the messages
// never expire. Used in tests and for offline demos.
type MockSource struct {
	state

	mgr Manager

	mu   sync.Mutex
	feed traff.Feed
}

// NewMock returns a mock source serving feed.
func NewMock(mgr Manager, feed traff.Feed) *MockSource {
	return &MockSource{state: newState(defaultPollInterval), mgr: mgr, feed: feed}
}

// SetFeed replaces the canned feed served on the next poll.
func (s *MockSource) SetFeed(feed traff.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = feed
}

func (s *MockSource) SubscribeOrChangeSubscription(rects []tiles.Rect) {
	s.requestStarted()
	resp := traff.Response{Status: traff.StatusOK}
	if !s.isSubscribed() {
		resp.SubscriptionID = uuid.NewString()
	}
	s.handleResponse(resp)

	// Serve the first feed on the next worker pass, not an interval later.
	s.state.mu.Lock()
	s.nextRequest = s.state.now()
	s.state.mu.Unlock()
}

func (s *MockSource) IsPollNeeded() bool {
	return s.pollDue() && s.isSubscribed()
}

func (s *MockSource) Poll() {
	if !s.isSubscribed() {
		return
	}
	s.requestStarted()
	s.handleResponse(traff.Response{Status: traff.StatusOK})

	s.mu.Lock()
	feed := make(traff.Feed, len(s.feed))
	copy(feed, s.feed)
	s.mu.Unlock()
	feed.ShiftTimestamps(time.Now())
	if len(feed) > 0 {
		s.mgr.ReceiveFeed(feed)
	}
}

func (s *MockSource) Unsubscribe() {
	s.unsubscribed()
}
