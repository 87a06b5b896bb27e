package source

import (
	"bytes"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

// WSSource is a push source: after subscribing over a websocket it receives
// feed documents as the service publishes them, with no polling.
type WSSource struct {
	state

	url string
	mgr Manager

	mu        sync.Mutex
	conn      *websocket.Conn
	lastRects []tiles.Rect
	closed    bool
}

// NewWS returns a push source for the websocket endpoint at url. The
// connection is established on the first subscribe.
func NewWS(url string, mgr Manager) *WSSource {
	// The poll interval only bounds how stale a silent connection may get.
	return &WSSource{state: newState(defaultPollInterval), url: url, mgr: mgr}
}

func (s *WSSource) SubscribeOrChangeSubscription(rects []tiles.Rect) {
	s.mu.Lock()
	s.lastRects = append([]tiles.Rect(nil), rects...)
	closed := s.closed
	s.mu.Unlock()
	if closed || s.Status().Availability == AvailabilityExpiredApp {
		return
	}

	if err := s.connect(); err != nil {
		s.requestFailed(err)
		return
	}
	op := "subscribe"
	subID := s.currentSubscriptionID()
	if subID != "" {
		op = "change_subscription"
	}
	s.send(requestXML(op, subID, rects))
}

// IsPollNeeded is always false: data arrives as the service pushes it.
func (s *WSSource) IsPollNeeded() bool { return false }

// Poll is a no-op for a push transport.
func (s *WSSource) Poll() {}

func (s *WSSource) Unsubscribe() {
	subID := s.currentSubscriptionID()
	if subID != "" {
		s.send(requestXML("unsubscribe", subID, nil))
	}
	s.unsubscribed()

	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// connect dials the endpoint if no connection is up and starts the reader.
func (s *WSSource) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return err
	}
	s.conn = conn
	go s.readLoop(conn)
	return nil
}

func (s *WSSource) send(body []byte) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	s.requestStarted()
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		s.requestFailed(err)
		s.dropConn(conn)
	}
}

// readLoop consumes the socket until it breaks: response documents drive the
// state machine, feed documents go straight to the manager.
func (s *WSSource) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.requestFailed(err)
				s.dropConn(conn)
			}
			return
		}
		s.handleDocument(data)
	}
}

func (s *WSSource) handleDocument(data []byte) {
	switch {
	case bytes.Contains(data, []byte("<response")):
		resp, err := traff.ParseResponse(data)
		if err != nil {
			log.Printf("source %s: %v", s.url, err)
			return
		}
		if s.handleResponse(resp) == actionResubscribe {
			s.mu.Lock()
			rects := append([]tiles.Rect(nil), s.lastRects...)
			s.mu.Unlock()
			s.send(requestXML("subscribe", "", rects))
			return
		}
		if len(resp.Feed) > 0 {
			s.mgr.ReceiveFeed(resp.Feed)
		}
	case bytes.Contains(data, []byte("<feed")):
		feed, err := traff.ParseFeed(data)
		if err != nil {
			log.Printf("source %s: %v", s.url, err)
			return
		}
		s.pushReceived()
		if len(feed) > 0 {
			s.mgr.ReceiveFeed(feed)
		}
	default:
		log.Printf("source %s: unrecognized document, ignoring", s.url)
	}
}

// pushReceived refreshes the response timestamp for an unsolicited feed.
func (s *WSSource) pushReceived() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.lastResponse = s.state.now()
	s.availability = AvailabilityAvailable
	s.retries = 0
}

// dropConn closes a broken connection so the next subscribe redials.
func (s *WSSource) dropConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()

	// The worker re-subscribes rejected sources; flag ourselves so a broken
	// socket gets a fresh subscription on the next pass.
	time.AfterFunc(errorRetryBackoff, func() {
		s.mu.Lock()
		rects := append([]tiles.Rect(nil), s.lastRects...)
		closed := s.closed
		s.mu.Unlock()
		if closed || len(rects) == 0 {
			return
		}
		s.SubscribeOrChangeSubscription(rects)
	})
}
