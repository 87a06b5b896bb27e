package source

import (
	"testing"
	"time"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

type fakeManager struct {
	rects []tiles.Rect
	feeds []traff.Feed
}

func (m *fakeManager) ActiveTileRects() []tiles.Rect { return m.rects }
func (m *fakeManager) ReceiveFeed(feed traff.Feed)   { m.feeds = append(m.feeds, feed) }

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name       string
		resp       traff.Response
		want       Availability
		wantAction responseAction
		wantSubID  string
		pollsStop  bool
	}{
		{
			name:      "ok",
			resp:      traff.Response{Status: traff.StatusOK, SubscriptionID: "sub1"},
			want:      AvailabilityAvailable,
			wantSubID: "sub1",
		},
		{
			name:      "partial coverage is success",
			resp:      traff.Response{Status: traff.StatusPartiallyCovered, SubscriptionID: "sub1"},
			want:      AvailabilityAvailable,
			wantSubID: "sub1",
		},
		{
			name:      "rejected keeps the id and stops polling",
			resp:      traff.Response{Status: traff.StatusSubscriptionRejected},
			want:      AvailabilitySubscriptionRejected,
			wantSubID: "old",
			pollsStop: true,
		},
		{
			name:      "not covered keeps the id and stops polling",
			resp:      traff.Response{Status: traff.StatusNotCovered},
			want:      AvailabilityNotCovered,
			wantSubID: "old",
			pollsStop: true,
		},
		{
			name:       "unknown subscription clears the id and resubscribes",
			resp:       traff.Response{Status: traff.StatusSubscriptionUnknown},
			want:       AvailabilityUnknown,
			wantAction: actionResubscribe,
			wantSubID:  "",
		},
		{
			name: "internal error schedules a retry",
			resp: traff.Response{Status: traff.StatusInternalError},
			want: AvailabilityError,
			wantSubID: "old",
		},
		{
			name:      "newer minimum version disables the source",
			resp:      traff.Response{Status: traff.StatusOK, MinVersion: "0.9"},
			want:      AvailabilityExpiredApp,
			wantSubID: "old",
			pollsStop: true,
		},
		{
			name:      "our minimum version is fine",
			resp:      traff.Response{Status: traff.StatusOK, MinVersion: "0.8"},
			want:      AvailabilityAvailable,
			wantSubID: "old",
		},
		{
			name:      "two digit minor version disables the source",
			resp:      traff.Response{Status: traff.StatusOK, MinVersion: "0.10"},
			want:      AvailabilityExpiredApp,
			wantSubID: "old",
			pollsStop: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(time.Minute)
			s.subscriptionID = "old"

			action := s.handleResponse(tt.resp)
			if action != tt.wantAction {
				t.Errorf("handleResponse() action = %v, want %v", action, tt.wantAction)
			}
			st := s.Status()
			if st.Availability != tt.want {
				t.Errorf("availability = %v, want %v", st.Availability, tt.want)
			}
			if st.SubscriptionID != tt.wantSubID {
				t.Errorf("subscription id = %q, want %q", st.SubscriptionID, tt.wantSubID)
			}
			if tt.pollsStop && s.pollDue() {
				t.Error("pollDue() = true after a state that must stop polling")
			}
		})
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		minVersion string
		want       bool
	}{
		{"", false},
		{"0.7", false},
		{"0.8", false},
		{"0.9", true},
		// Versions compare part by part, not as decimal fractions.
		{"0.10", true},
		{"1.0", true},
		{"1", true},
		{"not-a-version", false},
	}
	for _, tt := range tests {
		t.Run("min "+tt.minVersion, func(t *testing.T) {
			if got := tooOld(tt.minVersion); got != tt.want {
				t.Errorf("tooOld(%q) = %v, want %v", tt.minVersion, got, tt.want)
			}
		})
	}
}

func TestStatePollSchedule(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s := newState(5 * time.Minute)
	s.now = func() time.Time { return now }

	if s.pollDue() {
		t.Error("pollDue() before any response = true, want false")
	}

	s.handleResponse(traff.Response{Status: traff.StatusOK, SubscriptionID: "sub1"})
	if s.pollDue() {
		t.Error("pollDue() right after a response = true, want false")
	}

	now = now.Add(5*time.Minute + time.Second)
	if !s.pollDue() {
		t.Error("pollDue() after the interval = false, want true")
	}

	// A shorter server-side timeout shortens the schedule.
	s.handleResponse(traff.Response{Status: traff.StatusOK, TimeoutS: 60})
	now = now.Add(61 * time.Second)
	if !s.pollDue() {
		t.Error("pollDue() after the server timeout = false, want true")
	}
}

func TestStateRetryBackoff(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s := newState(5 * time.Minute)
	s.now = func() time.Time { return now }
	s.subscriptionID = "sub1"

	s.requestStarted()
	s.requestFailed(errTest)
	st := s.Status()
	if st.Retries != 1 || st.Availability != AvailabilityError {
		t.Fatalf("after failure: retries = %d, availability = %v", st.Retries, st.Availability)
	}
	if s.pollDue() {
		t.Error("pollDue() inside the backoff window = true, want false")
	}
	now = now.Add(errorRetryBackoff + time.Second)
	if !s.pollDue() {
		t.Error("pollDue() after the backoff = false, want true")
	}

	// A success resets the counter.
	s.handleResponse(traff.Response{Status: traff.StatusOK})
	if st := s.Status(); st.Retries != 0 {
		t.Errorf("retries after success = %d, want 0", st.Retries)
	}
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "test error" }
