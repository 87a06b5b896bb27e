package source

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

// HTTPSource is a pull source: it subscribes over HTTP POST and polls the
// service on its schedule.
type HTTPSource struct {
	state

	url    string
	client *http.Client
	mgr    Manager

	// rectsMu guards the last requested areas, kept for re-subscription
	// after a SUBSCRIPTION_UNKNOWN response.
	rectsMu   sync.Mutex
	lastRects []tiles.Rect
}

// NewHTTP returns a source polling the service at url. pollInterval <= 0
// selects the default.
func NewHTTP(url string, mgr Manager, pollInterval time.Duration) *HTTPSource {
	return &HTTPSource{
		state:  newState(pollInterval),
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		mgr:    mgr,
	}
}

func (s *HTTPSource) SubscribeOrChangeSubscription(rects []tiles.Rect) {
	s.rectsMu.Lock()
	s.lastRects = append([]tiles.Rect(nil), rects...)
	s.rectsMu.Unlock()

	if s.Status().Availability == AvailabilityExpiredApp {
		return
	}
	op := "subscribe"
	subID := s.currentSubscriptionID()
	if subID != "" {
		op = "change_subscription"
	}
	s.exchange(requestXML(op, subID, rects), true)
}

func (s *HTTPSource) IsPollNeeded() bool {
	return s.pollDue() && s.isSubscribed()
}

func (s *HTTPSource) Poll() {
	subID := s.currentSubscriptionID()
	if subID == "" {
		return
	}
	s.exchange(requestXML("poll", subID, nil), true)
}

func (s *HTTPSource) Unsubscribe() {
	subID := s.currentSubscriptionID()
	if subID == "" {
		return
	}
	s.exchange(requestXML("unsubscribe", subID, nil), false)
	s.unsubscribed()
}

// exchange sends one request document and runs the response through the
// state machine. Transport and protocol failures never propagate; they show
// up as availability. allowResubscribe stops a source that answers a fresh
// subscribe with SUBSCRIPTION_UNKNOWN from causing a request loop.
func (s *HTTPSource) exchange(body []byte, allowResubscribe bool) {
	s.requestStarted()
	resp, err := s.post(body)
	if err != nil {
		s.requestFailed(err)
		return
	}
	if s.handleResponse(resp) == actionResubscribe {
		if allowResubscribe {
			log.Printf("source %s does not know our subscription, subscribing anew", s.url)
			s.rectsMu.Lock()
			rects := append([]tiles.Rect(nil), s.lastRects...)
			s.rectsMu.Unlock()
			s.exchange(requestXML("subscribe", "", rects), false)
		}
		return
	}
	if len(resp.Feed) > 0 {
		s.mgr.ReceiveFeed(resp.Feed)
	}
}

func (s *HTTPSource) post(body []byte) (traff.Response, error) {
	httpResp, err := s.client.Post(s.url, "text/xml", bytes.NewReader(body))
	if err != nil {
		return traff.Response{}, fmt.Errorf("post to %s: %w", s.url, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return traff.Response{}, fmt.Errorf("post to %s: status %s", s.url, httpResp.Status)
	}
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return traff.Response{}, fmt.Errorf("read response from %s: %w", s.url, err)
	}
	return traff.ParseResponse(data)
}

// requestXML builds a protocol request document. Subscribe and
// change-subscription requests carry the filter list, poll and unsubscribe
// requests only the subscription id.
func requestXML(op, subscriptionID string, rects []tiles.Rect) []byte {
	var b strings.Builder
	b.WriteString(`<request operation="` + op + `"`)
	if subscriptionID != "" {
		b.WriteString(` subscription_id="` + subscriptionID + `"`)
	}
	if len(rects) == 0 {
		b.WriteString("/>\n")
		return []byte(b.String())
	}
	b.WriteString(">\n<subscription>\n<filter_list>\n")
	b.WriteString(traff.FiltersXML(rects))
	b.WriteString("</filter_list>\n</subscription>\n</request>\n")
	return []byte(b.String())
}
