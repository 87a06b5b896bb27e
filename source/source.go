// Package source implements the subscription protocol towards upstream
// traffic services: subscribe, change-subscription, poll and unsubscribe,
// with availability tracking and retry backoff per source. Transports share
// the state machine; the HTTP transport pulls, the websocket transport is
// pushed to, and the mock transport serves a canned feed for testing and
// offline use.
package source

import (
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

// ProtocolVersion is the protocol version this implementation speaks.
const ProtocolVersion = "0.8"

// Availability is the health of a source as far as the protocol can tell.
type Availability int

const (
	// AvailabilityUnknown means no response has been seen yet.
	AvailabilityUnknown Availability = iota
	// AvailabilityAvailable means the last request succeeded.
	AvailabilityAvailable
	// AvailabilitySubscriptionRejected means the source refused the
	// subscription. The source stays idle until re-subscribed.
	AvailabilitySubscriptionRejected
	// AvailabilityNotCovered means the source has no data for the
	// subscribed area.
	AvailabilityNotCovered
	// AvailabilityError means the last request failed; a retry is scheduled.
	AvailabilityError
	// AvailabilityExpiredApp means the source no longer serves our protocol
	// version. Terminal.
	AvailabilityExpiredApp
)

func (a Availability) String() string {
	switch a {
	case AvailabilityAvailable:
		return "available"
	case AvailabilitySubscriptionRejected:
		return "subscription rejected"
	case AvailabilityNotCovered:
		return "not covered"
	case AvailabilityError:
		return "error"
	case AvailabilityExpiredApp:
		return "app too old"
	}
	return "unknown"
}

// Status is a snapshot of a source's protocol state.
type Status struct {
	SubscriptionID string
	LastRequest    time.Time
	LastResponse   time.Time
	NextRequest    time.Time
	Retries        int
	// Waiting is set while a request is in flight.
	Waiting      bool
	Availability Availability
}

// Manager is the part of the traffic manager a source talks back to.
type Manager interface {
	// ActiveTileRects returns the areas the manager currently wants data
	// for, one rect per active tile.
	ActiveTileRects() []tiles.Rect
	// ReceiveFeed hands a received feed over for decoding.
	ReceiveFeed(feed traff.Feed)
}

// Source is one upstream traffic service.
type Source interface {
	// SubscribeOrChangeSubscription subscribes if there is no subscription
	// yet, otherwise moves the existing subscription to the new areas.
	SubscribeOrChangeSubscription(rects []tiles.Rect)
	// IsPollNeeded reports whether the source's own schedule says a poll
	// is due.
	IsPollNeeded() bool
	// Poll performs one pull request. A no-op for push transports.
	Poll()
	// Unsubscribe tears the subscription down. A no-op if not subscribed.
	Unsubscribe()
	// Status returns a snapshot of the protocol state.
	Status() Status
}

const (
	defaultPollInterval = 5 * time.Minute
	errorRetryBackoff   = time.Minute
)

// state is the protocol state machine shared by all transports. The embedding
// transport drives it by reporting requests, responses and transport errors.
type state struct {
	mu sync.Mutex

	subscriptionID string
	lastRequest    time.Time
	lastResponse   time.Time
	nextRequest    time.Time
	retries        int
	waiting        bool
	availability   Availability

	pollInterval time.Duration

	now func() time.Time
}

func newState(pollInterval time.Duration) state {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return state{pollInterval: pollInterval, now: time.Now}
}

func (s *state) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		SubscriptionID: s.subscriptionID,
		LastRequest:    s.lastRequest,
		LastResponse:   s.lastResponse,
		NextRequest:    s.nextRequest,
		Retries:        s.retries,
		Waiting:        s.waiting,
		Availability:   s.availability,
	}
}

// isSubscribed reports whether the source holds a subscription id.
func (s *state) isSubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptionID != ""
}

func (s *state) currentSubscriptionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptionID
}

// pollDue implements the shared part of IsPollNeeded: the next-due time has
// passed and the source is not idle in a terminal or suspended state.
func (s *state) pollDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.availability {
	case AvailabilityExpiredApp, AvailabilitySubscriptionRejected, AvailabilityNotCovered:
		return false
	}
	if s.waiting || s.nextRequest.IsZero() {
		return false
	}
	return !s.nextRequest.After(s.now())
}

// requestStarted marks a request as in flight.
func (s *state) requestStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = true
	s.lastRequest = s.now()
}

// requestFailed records a transport-level failure and schedules a retry.
func (s *state) requestFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = false
	s.retries++
	s.availability = AvailabilityError
	s.nextRequest = s.now().Add(errorRetryBackoff)
	log.Printf("source request failed (retry %d): %v", s.retries, err)
}

// responseAction tells the transport what to do after the state machine has
// digested a response.
type responseAction int

const (
	actionNone responseAction = iota
	// actionResubscribe means the source must immediately subscribe anew.
	actionResubscribe
)

// handleResponse applies a protocol response to the state machine and
// returns what the transport should do next.
func (s *state) handleResponse(resp traff.Response) responseAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.waiting = false
	s.lastResponse = now

	if tooOld(resp.MinVersion) {
		log.Printf("source requires protocol version %s, we speak %s, giving up",
			resp.MinVersion, ProtocolVersion)
		s.availability = AvailabilityExpiredApp
		s.nextRequest = time.Time{}
		return actionNone
	}

	switch resp.Status {
	case traff.StatusOK, traff.StatusPartiallyCovered:
		s.availability = AvailabilityAvailable
		s.retries = 0
		if resp.SubscriptionID != "" {
			s.subscriptionID = resp.SubscriptionID
		}
		interval := s.pollInterval
		if resp.TimeoutS > 0 && time.Duration(resp.TimeoutS)*time.Second < interval {
			interval = time.Duration(resp.TimeoutS) * time.Second
		}
		s.nextRequest = now.Add(interval)
	case traff.StatusSubscriptionRejected:
		s.availability = AvailabilitySubscriptionRejected
		s.nextRequest = time.Time{}
	case traff.StatusNotCovered:
		s.availability = AvailabilityNotCovered
		s.nextRequest = time.Time{}
	case traff.StatusSubscriptionUnknown:
		s.subscriptionID = ""
		return actionResubscribe
	default:
		s.retries++
		s.availability = AvailabilityError
		s.nextRequest = now.Add(errorRetryBackoff)
	}
	return actionNone
}

// unsubscribed resets the state after a successful unsubscribe.
func (s *state) unsubscribed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptionID = ""
	s.nextRequest = time.Time{}
	if s.availability != AvailabilityExpiredApp {
		s.availability = AvailabilityUnknown
	}
}

// tooOld reports whether the source's minimum protocol version is beyond
// what we speak. Versions compare part by part, so "0.10" is newer than
// "0.8" rather than a smaller decimal fraction.
func tooOld(minVersion string) bool {
	if minVersion == "" {
		return false
	}
	major, minor, ok := parseVersion(minVersion)
	if !ok {
		return false
	}
	ourMajor, ourMinor, _ := parseVersion(ProtocolVersion)
	if major != ourMajor {
		return major > ourMajor
	}
	return minor > ourMinor
}

// parseVersion splits a "major.minor" version string. A missing minor part
// counts as zero.
func parseVersion(v string) (major, minor int, ok bool) {
	head, rest, found := strings.Cut(v, ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, 0, false
	}
	if !found {
		return major, 0, true
	}
	minor, err = strconv.Atoi(rest)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
