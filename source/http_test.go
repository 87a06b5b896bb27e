package source

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

const testFeedXML = `<feed>
  <message id="msg1" update_time="2026-08-25T10:00:00Z" expiration_time="2026-08-25T11:00:00Z">
    <location><from>48.1 11.5</from><to>48.2 11.6</to></location>
    <events><event class="CONGESTION" type="CONGESTION_QUEUE"/></events>
  </message>
</feed>`

type testServer struct {
	t        *testing.T
	requests []string
	// respond maps a request operation to the canned response body.
	respond map[string]string
}

func (ts *testServer) handler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		ts.t.Errorf("read request: %v", err)
	}
	op := "unknown"
	for _, candidate := range []string{"subscribe", "change_subscription", "poll", "unsubscribe"} {
		if strings.Contains(string(body), `operation="`+candidate+`"`) {
			op = candidate
			break
		}
	}
	ts.requests = append(ts.requests, op)
	fmt.Fprint(w, ts.respond[op])
}

func TestHTTPSourceSubscribeAndPoll(t *testing.T) {
	ts := &testServer{t: t, respond: map[string]string{
		"subscribe":   `<response status="OK" subscription_id="sub1" timeout="60"/>`,
		"poll":        `<response status="OK">` + testFeedXML + `</response>`,
		"unsubscribe": `<response status="OK"/>`,
	}}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()

	mgr := &fakeManager{}
	s := NewHTTP(srv.URL, mgr, 5*time.Minute)

	s.SubscribeOrChangeSubscription([]tiles.Rect{{MinLat: 48, MinLon: 11, MaxLat: 49, MaxLon: 12}})
	if st := s.Status(); st.Availability != AvailabilityAvailable || st.SubscriptionID != "sub1" {
		t.Fatalf("after subscribe: %+v", st)
	}
	if s.IsPollNeeded() {
		t.Error("IsPollNeeded() right after subscribing = true, want false")
	}

	s.Poll()
	if len(mgr.feeds) != 1 || len(mgr.feeds[0]) != 1 || mgr.feeds[0][0].ID != "msg1" {
		t.Fatalf("manager received feeds %v, want one feed with msg1", mgr.feeds)
	}

	s.Unsubscribe()
	if st := s.Status(); st.SubscriptionID != "" {
		t.Errorf("subscription id after unsubscribe = %q, want empty", st.SubscriptionID)
	}
	if got, want := ts.requests, []string{"subscribe", "poll", "unsubscribe"}; len(got) != len(want) {
		t.Errorf("requests = %v, want %v", got, want)
	}
}

func TestHTTPSourceResubscribesWhenUnknown(t *testing.T) {
	ts := &testServer{t: t, respond: map[string]string{
		"poll":      `<response status="SUBSCRIPTION_UNKNOWN"/>`,
		"subscribe": `<response status="OK" subscription_id="sub2"/>`,
	}}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()

	mgr := &fakeManager{}
	s := NewHTTP(srv.URL, mgr, 5*time.Minute)
	s.lastRects = []tiles.Rect{{MinLat: 48, MinLon: 11, MaxLat: 49, MaxLon: 12}}
	s.subscriptionID = "stale"

	s.Poll()
	if st := s.Status(); st.SubscriptionID != "sub2" {
		t.Errorf("subscription id = %q, want the fresh sub2", st.SubscriptionID)
	}
	if len(ts.requests) != 2 || ts.requests[0] != "poll" || ts.requests[1] != "subscribe" {
		t.Errorf("requests = %v, want [poll subscribe]", ts.requests)
	}
}

func TestHTTPSourceTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	mgr := &fakeManager{}
	s := NewHTTP(srv.URL, mgr, 5*time.Minute)
	s.SubscribeOrChangeSubscription([]tiles.Rect{{MinLat: 48, MinLon: 11, MaxLat: 49, MaxLon: 12}})

	if st := s.Status(); st.Availability != AvailabilityError || st.Retries != 1 {
		t.Errorf("after transport error: %+v", st)
	}
}

func TestMockSource(t *testing.T) {
	mgr := &fakeManager{}
	parsed, err := traff.ParseFeed([]byte(testFeedXML))
	if err != nil {
		t.Fatal(err)
	}
	s := NewMock(mgr, parsed)

	s.SubscribeOrChangeSubscription(nil)
	st := s.Status()
	if st.SubscriptionID == "" || st.Availability != AvailabilityAvailable {
		t.Fatalf("after subscribe: %+v", st)
	}
	if !s.IsPollNeeded() {
		t.Fatal("IsPollNeeded() after subscribing = false, want true")
	}

	s.Poll()
	if len(mgr.feeds) != 1 {
		t.Fatalf("manager received %d feeds, want 1", len(mgr.feeds))
	}
	// The served copy is shifted to now, the canned feed stays put.
	if age := time.Since(mgr.feeds[0][0].UpdateTime); age < 0 || age > time.Minute {
		t.Errorf("served message update time is %v old, want roughly now", age)
	}
	if s.IsPollNeeded() {
		t.Error("IsPollNeeded() right after a poll = true, want false")
	}
}
