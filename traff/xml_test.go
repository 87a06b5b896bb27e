package traff

import (
	"strings"
	"testing"
	"time"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traffic"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed>
  <message id="msg1" receive_time="2026-08-25T10:00:30Z" update_time="2026-08-25T10:00:00Z"
           expiration_time="2026-08-25T11:00:00Z">
    <location country="DE" road_class="MOTORWAY" road_ref="A 9" directionality="ONE_DIRECTION"
              town="Munich" direction="Nuremberg">
      <from junction_name="Allershausen" junction_ref="67">48.42777 11.59763</from>
      <to distance="2000">48.53194 11.60365</to>
    </location>
    <events>
      <event class="CONGESTION" type="CONGESTION_QUEUE" length="2000" speed="20"/>
      <event class="DELAY" type="DELAY_DELAY" q_duration="0:30"/>
    </events>
  </message>
  <message id="msg2" update_time="2026-08-25T10:05:00Z" expiration_time="2026-08-25T10:35:00Z"
           cancellation="true">
    <merge>
      <replaces id="msg0"/>
    </merge>
  </message>
</feed>`

func TestParseFeed(t *testing.T) {
	feed, err := ParseFeed([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("ParseFeed() error = %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("ParseFeed() returned %d messages, want 2", len(feed))
	}

	msg := feed[0]
	if msg.ID != "msg1" {
		t.Errorf("message id = %q, want %q", msg.ID, "msg1")
	}
	if want := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC); !msg.UpdateTime.Equal(want) {
		t.Errorf("update time = %v, want %v", msg.UpdateTime, want)
	}
	if msg.Location == nil {
		t.Fatal("message has no location")
	}
	if msg.Location.RoadClass == nil || *msg.Location.RoadClass != Motorway {
		t.Errorf("road class = %v, want MOTORWAY", msg.Location.RoadClass)
	}
	if msg.Location.From == nil || msg.Location.From.JunctionName != "Allershausen" {
		t.Errorf("from point = %+v, want junction Allershausen", msg.Location.From)
	}
	if got, want := msg.Location.From.Coordinates, (tiles.LatLon{Lat: 48.42777, Lon: 11.59763}); got != want {
		t.Errorf("from coordinates = %v, want %v", got, want)
	}
	if msg.Location.To == nil || msg.Location.To.DistanceM != 2000 {
		t.Errorf("to point = %+v, want distance 2000", msg.Location.To)
	}
	if len(msg.Events) != 2 {
		t.Fatalf("message has %d events, want 2", len(msg.Events))
	}
	if ev := msg.Events[0]; ev.Type != CongestionQueue || ev.LengthM != 2000 || ev.SpeedKmH != 20 {
		t.Errorf("first event = %+v, want CONGESTION_QUEUE length 2000 speed 20", ev)
	}
	if ev := msg.Events[1]; ev.Type != DelayDelay || ev.DurationMins != 30 {
		t.Errorf("second event = %+v, want DELAY_DELAY with 30 min duration", ev)
	}

	cancel := feed[1]
	if !cancel.Cancellation {
		t.Error("msg2 not parsed as cancellation")
	}
	if len(cancel.Replaces) != 1 || cancel.Replaces[0] != "msg0" {
		t.Errorf("msg2 replaces = %v, want [msg0]", cancel.Replaces)
	}
}

func TestParseFeedSkipsBrokenMessages(t *testing.T) {
	// msg1 has only one of from/at/to and must be dropped, msg2 is fine.
	doc := `<feed>
  <message id="msg1" update_time="2026-08-25T10:00:00Z" expiration_time="2026-08-25T11:00:00Z">
    <location><from>48.1 11.5</from></location>
    <events><event class="CONGESTION" type="CONGESTION_QUEUE"/></events>
  </message>
  <message id="msg2" update_time="2026-08-25T10:00:00Z" expiration_time="2026-08-25T11:00:00Z">
    <location><from>48.1 11.5</from><to>48.2 11.6</to></location>
    <events>
      <event class="CONGESTION" type="DELAY_DELAY"/>
      <event class="CONGESTION" type="CONGESTION_QUEUE"/>
    </events>
  </message>
</feed>`

	feed, err := ParseFeed([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFeed() error = %v", err)
	}
	if len(feed) != 1 || feed[0].ID != "msg2" {
		t.Fatalf("ParseFeed() = %v, want just msg2", feed)
	}
	// The event whose type does not belong to its class is dropped.
	if len(feed[0].Events) != 1 || feed[0].Events[0].Type != CongestionQueue {
		t.Errorf("msg2 events = %+v, want just CONGESTION_QUEUE", feed[0].Events)
	}
}

func TestParseFeedAllMessagesBroken(t *testing.T) {
	doc := `<feed>
  <message id="msg1" update_time="not a time" expiration_time="2026-08-25T11:00:00Z"/>
</feed>`
	if _, err := ParseFeed([]byte(doc)); err == nil {
		t.Error("ParseFeed() with no parsable message returned nil error")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"0:30", 30, true},
		{"01:05", 65, true},
		{"2 h", 120, true},
		{"2h", 120, true},
		{"45 min", 45, true},
		{"45min", 45, true},
		{"soon", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseDuration(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseDuration(%q) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	doc := `<response status="OK" subscription_id="sub-42" timeout="300">
  <feed>
    <message id="msg1" update_time="2026-08-25T10:00:00Z" expiration_time="2026-08-25T11:00:00Z">
      <location><from>48.1 11.5</from><to>48.2 11.6</to></location>
      <events><event class="CONGESTION" type="CONGESTION_SLOW_TRAFFIC"/></events>
    </message>
  </feed>
</response>`

	resp, err := ParseResponse([]byte(doc))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if resp.Status != StatusOK {
		t.Errorf("status = %v, want OK", resp.Status)
	}
	if resp.SubscriptionID != "sub-42" {
		t.Errorf("subscription id = %q, want sub-42", resp.SubscriptionID)
	}
	if resp.TimeoutS != 300 {
		t.Errorf("timeout = %d, want 300", resp.TimeoutS)
	}
	if len(resp.Feed) != 1 || resp.Feed[0].ID != "msg1" {
		t.Errorf("embedded feed = %v, want one message msg1", resp.Feed)
	}
}

func TestParseResponseWithoutFeed(t *testing.T) {
	resp, err := ParseResponse([]byte(`<response status="SUBSCRIPTION_REJECTED"/>`))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if resp.Status != StatusSubscriptionRejected {
		t.Errorf("status = %v, want SUBSCRIPTION_REJECTED", resp.Status)
	}
	if resp.Feed != nil {
		t.Errorf("feed = %v, want nil", resp.Feed)
	}
}

func TestFiltersXML(t *testing.T) {
	got := FiltersXML([]tiles.Rect{
		{MinLat: 48, MinLon: 11, MaxLat: 48.5, MaxLon: 11.5},
		{MinLat: 52, MinLon: 13, MaxLat: 52.5, MaxLon: 13.5},
	})
	want := `<filter bbox="48 11 48.5 11.5"/>` + "\n" + `<filter bbox="52 13 52.5 13.5"/>` + "\n"
	if got != want {
		t.Errorf("FiltersXML() = %q, want %q", got, want)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	update := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	seg := traffic.RoadSegmentID{Fid: 7, Idx: 1, Dir: traffic.ForwardDirection}
	msg := Message{
		ID:             "msg1",
		UpdateTime:     update,
		ExpirationTime: update.Add(time.Hour),
		Location: &Location{
			From: pt(48.1, 11.5),
			To:   pt(48.2, 11.6),
		},
		Events: []Event{{Class: Congestion, Type: CongestionQueue}},
		Decoded: MultiTileColoring{
			"tile1": {seg: traffic.G2},
		},
	}

	versions := map[tiles.ID]int64{"tile1": 5}
	versionOf := func(id tiles.ID) (int64, bool) {
		v, ok := versions[id]
		return v, ok
	}

	data, err := MarshalCache(map[string]Message{msg.ID: msg}, versionOf)
	if err != nil {
		t.Fatalf("MarshalCache() error = %v", err)
	}
	if !strings.Contains(string(data), `version="5"`) {
		t.Fatalf("cache document does not record the tile version:\n%s", data)
	}

	cached, err := ParseCache(data)
	if err != nil {
		t.Fatalf("ParseCache() error = %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("ParseCache() returned %d messages, want 1", len(cached))
	}

	got := cached[0]
	if got.Message.ID != "msg1" || !got.Message.UpdateTime.Equal(update) {
		t.Errorf("restored message = %+v", got.Message)
	}
	if !got.Message.Location.Equal(msg.Location) {
		t.Errorf("restored location = %+v, want %+v", got.Message.Location, msg.Location)
	}
	if got.Message.Decoded["tile1"][seg] != traffic.G2 {
		t.Errorf("restored coloring = %v, want G2 for %v", got.Message.Decoded["tile1"], seg)
	}
	if got.TileVersions["tile1"] != 5 {
		t.Errorf("restored tile version = %d, want 5", got.TileVersions["tile1"])
	}
}
