package traff

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traffic"
)

// The codec is attribute-based: every scalar lives in an attribute, points
// keep their coordinates as "lat lon" character data. Unknown attributes and
// elements are ignored so newer feeds still parse.

type pointXML struct {
	Distance     string `xml:"distance,attr,omitempty"`
	JunctionName string `xml:"junction_name,attr,omitempty"`
	JunctionRef  string `xml:"junction_ref,attr,omitempty"`
	Coordinates  string `xml:",chardata"`
}

type locationXML struct {
	Country        string `xml:"country,attr,omitempty"`
	Destination    string `xml:"destination,attr,omitempty"`
	Direction      string `xml:"direction,attr,omitempty"`
	Directionality string `xml:"directionality,attr,omitempty"`
	Origin         string `xml:"origin,attr,omitempty"`
	Ramps          string `xml:"ramps,attr,omitempty"`
	RoadClass      string `xml:"road_class,attr,omitempty"`
	RoadRef        string `xml:"road_ref,attr,omitempty"`
	RoadName       string `xml:"road_name,attr,omitempty"`
	Territory      string `xml:"territory,attr,omitempty"`
	Town           string `xml:"town,attr,omitempty"`

	From   *pointXML `xml:"from"`
	At     *pointXML `xml:"at"`
	Via    *pointXML `xml:"via"`
	NotVia *pointXML `xml:"not_via"`
	To     *pointXML `xml:"to"`
}

type eventXML struct {
	Class       string `xml:"class,attr"`
	Type        string `xml:"type,attr"`
	Length      string `xml:"length,attr,omitempty"`
	Probability string `xml:"probability,attr,omitempty"`
	QDuration   string `xml:"q_duration,attr,omitempty"`
	Speed       string `xml:"speed,attr,omitempty"`
}

type replacesXML struct {
	ID string `xml:"id,attr"`
}

type segmentXML struct {
	Fid        uint32 `xml:"fid,attr"`
	Idx        uint16 `xml:"idx,attr"`
	Dir        uint8  `xml:"dir,attr"`
	SpeedGroup string `xml:"speed_group,attr"`
}

type coloringXML struct {
	Tile     string       `xml:"tile,attr"`
	Version  int64        `xml:"version,attr"`
	Segments []segmentXML `xml:"segment"`
}

type messageXML struct {
	XMLName        xml.Name `xml:"message"`
	ID             string   `xml:"id,attr"`
	ReceiveTime    string   `xml:"receive_time,attr,omitempty"`
	UpdateTime     string   `xml:"update_time,attr"`
	ExpirationTime string   `xml:"expiration_time,attr"`
	StartTime      string   `xml:"start_time,attr,omitempty"`
	EndTime        string   `xml:"end_time,attr,omitempty"`
	Cancellation   bool     `xml:"cancellation,attr"`
	Forecast       bool     `xml:"forecast,attr"`

	Replaces  []replacesXML `xml:"merge>replaces"`
	Location  *locationXML  `xml:"location"`
	Events    []eventXML    `xml:"events>event"`
	Colorings []coloringXML `xml:"colorings>coloring"`
}

type feedXML struct {
	XMLName  xml.Name     `xml:"feed"`
	Messages []messageXML `xml:"message"`
}

type responseXML struct {
	XMLName        xml.Name `xml:"response"`
	Status         string   `xml:"status,attr"`
	SubscriptionID string   `xml:"subscription_id,attr,omitempty"`
	Timeout        string   `xml:"timeout,attr,omitempty"`
	MinVersion     string   `xml:"min_version,attr,omitempty"`
	Feed           *feedXML `xml:"feed"`
}

var (
	latLonRe   = regexp.MustCompile(`([+-]?[0-9]*\.?[0-9]+)\s+([+-]?[0-9]*\.?[0-9]+)`)
	durationRe = regexp.MustCompile(`(?:([0-9]+):([0-9]{2}))|(?:([0-9]+) *h)|(?:([0-9]+) *min)`)
)

func pointFromXML(px *pointXML) (*Point, error) {
	if px == nil {
		return nil, nil
	}
	m := latLonRe.FindStringSubmatch(px.Coordinates)
	if m == nil {
		return nil, fmt.Errorf("not a valid coordinate pair: %q", px.Coordinates)
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("not a valid coordinate pair: %q", px.Coordinates)
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, fmt.Errorf("not a valid coordinate pair: %q", px.Coordinates)
	}
	p := &Point{
		Coordinates:  tiles.LatLon{Lat: lat, Lon: lon},
		JunctionName: px.JunctionName,
		JunctionRef:  px.JunctionRef,
	}
	if px.Distance != "" {
		if d, err := strconv.ParseFloat(px.Distance, 64); err == nil {
			p.DistanceM = d
		}
	}
	return p, nil
}

func pointToXML(p *Point) *pointXML {
	if p == nil {
		return nil
	}
	px := &pointXML{
		JunctionName: p.JunctionName,
		JunctionRef:  p.JunctionRef,
		Coordinates:  fmt.Sprintf("%+f %+f", p.Coordinates.Lat, p.Coordinates.Lon),
	}
	if p.DistanceM > 0 {
		px.Distance = strconv.FormatFloat(p.DistanceM, 'f', -1, 64)
	}
	return px
}

func locationFromXML(lx *locationXML) (*Location, error) {
	if lx == nil {
		return nil, errors.New("no location element")
	}
	loc := &Location{
		Country:     lx.Country,
		Destination: lx.Destination,
		Direction:   lx.Direction,
		Origin:      lx.Origin,
		RoadRef:     lx.RoadRef,
		RoadName:    lx.RoadName,
		Territory:   lx.Territory,
		Town:        lx.Town,
	}

	var err error
	if loc.From, err = pointFromXML(lx.From); err != nil {
		return nil, err
	}
	if loc.At, err = pointFromXML(lx.At); err != nil {
		return nil, err
	}
	if loc.Via, err = pointFromXML(lx.Via); err != nil {
		return nil, err
	}
	if loc.NotVia, err = pointFromXML(lx.NotVia); err != nil {
		return nil, err
	}
	if loc.To, err = pointFromXML(lx.To); err != nil {
		return nil, err
	}

	// A matchable location needs at least two of from/at/to.
	numPoints := 0
	for _, p := range []*Point{loc.From, loc.At, loc.To} {
		if p != nil {
			numPoints++
		}
	}
	if numPoints < 2 {
		return nil, fmt.Errorf("only %d points of from/at/to specified", numPoints)
	}

	if lx.Directionality != "" {
		if d, ok := directionalityFromString(lx.Directionality); ok {
			loc.Directionality = d
		} else {
			log.Printf("unknown directionality %q (ignoring)", lx.Directionality)
		}
	}
	if lx.Ramps != "" {
		if r, ok := rampsFromString(lx.Ramps); ok {
			loc.Ramps = r
		} else {
			log.Printf("unknown ramps value %q (ignoring)", lx.Ramps)
		}
	}
	if lx.RoadClass != "" {
		if rc, ok := roadClassFromString(lx.RoadClass); ok {
			loc.RoadClass = &rc
		} else {
			log.Printf("unknown road class %q (ignoring)", lx.RoadClass)
		}
	}
	return loc, nil
}

func locationToXML(loc *Location) *locationXML {
	if loc == nil {
		return nil
	}
	lx := &locationXML{
		Country:        loc.Country,
		Destination:    loc.Destination,
		Direction:      loc.Direction,
		Directionality: loc.Directionality.String(),
		Origin:         loc.Origin,
		Ramps:          loc.Ramps.String(),
		RoadRef:        loc.RoadRef,
		RoadName:       loc.RoadName,
		Territory:      loc.Territory,
		Town:           loc.Town,
		From:           pointToXML(loc.From),
		At:             pointToXML(loc.At),
		Via:            pointToXML(loc.Via),
		NotVia:         pointToXML(loc.NotVia),
		To:             pointToXML(loc.To),
	}
	if loc.RoadClass != nil {
		lx.RoadClass = loc.RoadClass.String()
	}
	return lx
}

// parseDuration accepts the three duration spellings feeds use:
// "01:30" (hh:mm), "1 h" and "30 min". Returns minutes.
func parseDuration(s string) (int, bool) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	switch {
	case m[1] != "" && m[2] != "":
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return h*60 + mins, true
	case m[3] != "":
		h, _ := strconv.Atoi(m[3])
		return h * 60, true
	case m[4] != "":
		mins, _ := strconv.Atoi(m[4])
		return mins, true
	}
	return 0, false
}

func formatDuration(mins int) string {
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

func eventFromXML(ex eventXML) (Event, error) {
	var ev Event
	if ex.Class == "" {
		return ev, errors.New("no event class specified")
	}
	class, ok := eventClassFromString(ex.Class)
	if !ok {
		return ev, fmt.Errorf("unknown event class %q", ex.Class)
	}
	if ex.Type == "" {
		return ev, errors.New("no event type specified")
	}
	// The type must belong to the declared class.
	if !strings.HasPrefix(ex.Type, ex.Class+"_") {
		return ev, fmt.Errorf("event type %q does not match event class %q", ex.Type, ex.Class)
	}
	typ, ok := eventTypeFromString(ex.Type)
	if !ok {
		return ev, fmt.Errorf("unknown event type %q", ex.Type)
	}
	ev.Class = class
	ev.Type = typ

	if ex.Length != "" {
		if v, err := strconv.Atoi(ex.Length); err == nil {
			ev.LengthM = v
		}
	}
	if ex.Probability != "" {
		if v, err := strconv.Atoi(ex.Probability); err == nil {
			ev.Probability = v
		}
	}
	if ex.QDuration != "" {
		if mins, ok := parseDuration(ex.QDuration); ok {
			ev.DurationMins = mins
		} else {
			log.Printf("not a valid duration: %q", ex.QDuration)
		}
	}
	if ex.Speed != "" {
		if v, err := strconv.Atoi(ex.Speed); err == nil {
			ev.SpeedKmH = v
		}
	}
	return ev, nil
}

func eventToXML(ev Event) eventXML {
	ex := eventXML{
		Class: ev.Class.String(),
		Type:  ev.Type.String(),
	}
	if ev.LengthM > 0 {
		ex.Length = strconv.Itoa(ev.LengthM)
	}
	if ev.Probability > 0 {
		ex.Probability = strconv.Itoa(ev.Probability)
	}
	if ev.DurationMins > 0 {
		ex.QDuration = formatDuration(ev.DurationMins)
	}
	if ev.SpeedKmH > 0 {
		ex.Speed = strconv.Itoa(ev.SpeedKmH)
	}
	return ex
}

func messageFromXML(mx messageXML) (Message, error) {
	var msg Message
	if mx.ID == "" {
		return msg, errors.New("message has no id")
	}
	msg.ID = mx.ID

	var err error
	if mx.ReceiveTime != "" {
		if msg.ReceiveTime, err = ParseTime(mx.ReceiveTime); err != nil {
			return msg, fmt.Errorf("message %s: receive_time: %w", msg.ID, err)
		}
	}
	if mx.UpdateTime == "" {
		return msg, fmt.Errorf("message %s has no update_time", msg.ID)
	}
	if msg.UpdateTime, err = ParseTime(mx.UpdateTime); err != nil {
		return msg, fmt.Errorf("message %s: update_time: %w", msg.ID, err)
	}
	if mx.ExpirationTime == "" {
		return msg, fmt.Errorf("message %s has no expiration_time", msg.ID)
	}
	if msg.ExpirationTime, err = ParseTime(mx.ExpirationTime); err != nil {
		return msg, fmt.Errorf("message %s: expiration_time: %w", msg.ID, err)
	}
	if mx.StartTime != "" {
		if msg.StartTime, err = ParseTime(mx.StartTime); err != nil {
			return msg, fmt.Errorf("message %s: start_time: %w", msg.ID, err)
		}
	}
	if mx.EndTime != "" {
		if msg.EndTime, err = ParseTime(mx.EndTime); err != nil {
			return msg, fmt.Errorf("message %s: end_time: %w", msg.ID, err)
		}
	}

	msg.Cancellation = mx.Cancellation
	msg.Forecast = mx.Forecast

	for _, r := range mx.Replaces {
		if r.ID != "" {
			msg.Replaces = append(msg.Replaces, r.ID)
		}
	}

	if !msg.Cancellation {
		if msg.Location, err = locationFromXML(mx.Location); err != nil {
			return msg, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		kept := 0
		for _, ex := range mx.Events {
			ev, err := eventFromXML(ex)
			if err != nil {
				log.Printf("could not parse event, skipping: %v", err)
				continue
			}
			msg.Events = append(msg.Events, ev)
			kept++
		}
		if kept == 0 {
			return msg, fmt.Errorf("message %s has no events but is not a cancellation message", msg.ID)
		}
	}
	return msg, nil
}

func messageToXML(msg Message, versionOf func(tiles.ID) (int64, bool)) messageXML {
	mx := messageXML{
		ID:             msg.ID,
		UpdateTime:     FormatTime(msg.UpdateTime),
		ExpirationTime: FormatTime(msg.ExpirationTime),
		Cancellation:   msg.Cancellation,
		Forecast:       msg.Forecast,
		Location:       locationToXML(msg.Location),
	}
	if !msg.ReceiveTime.IsZero() {
		mx.ReceiveTime = FormatTime(msg.ReceiveTime)
	}
	if !msg.StartTime.IsZero() {
		mx.StartTime = FormatTime(msg.StartTime)
	}
	if !msg.EndTime.IsZero() {
		mx.EndTime = FormatTime(msg.EndTime)
	}
	for _, id := range msg.Replaces {
		mx.Replaces = append(mx.Replaces, replacesXML{ID: id})
	}
	for _, ev := range msg.Events {
		mx.Events = append(mx.Events, eventToXML(ev))
	}
	if versionOf != nil {
		for tile, coloring := range msg.Decoded {
			version, ok := versionOf(tile)
			if !ok {
				continue
			}
			cx := coloringXML{Tile: string(tile), Version: version}
			for seg, sg := range coloring {
				cx.Segments = append(cx.Segments, segmentXML{
					Fid:        seg.Fid,
					Idx:        seg.Idx,
					Dir:        seg.Dir,
					SpeedGroup: sg.String(),
				})
			}
			mx.Colorings = append(mx.Colorings, cx)
		}
	}
	return mx
}

// ParseFeed parses a wire feed. Malformed messages are skipped and logged;
// an error is returned only if the document is unreadable or every message
// failed to parse.
func ParseFeed(data []byte) (Feed, error) {
	var fx feedXML
	if err := xml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feedFromXML(fx)
}

func feedFromXML(fx feedXML) (Feed, error) {
	var feed Feed
	failed := 0
	for _, mx := range fx.Messages {
		msg, err := messageFromXML(mx)
		if err != nil {
			log.Printf("could not parse message, skipping: %v", err)
			failed++
			continue
		}
		feed = append(feed, msg)
	}
	if len(fx.Messages) > 0 && failed == len(fx.Messages) {
		return nil, errors.New("parse feed: no message could be parsed")
	}
	return feed, nil
}

// ParseResponse parses the reply to a subscription or poll request,
// including an embedded feed if present.
func ParseResponse(data []byte) (Response, error) {
	var rx responseXML
	if err := xml.Unmarshal(data, &rx); err != nil {
		return Response{}, fmt.Errorf("parse response: %w", err)
	}
	status, ok := responseStatusFromString(rx.Status)
	if !ok {
		return Response{}, fmt.Errorf("parse response: unknown status %q", rx.Status)
	}
	resp := Response{
		Status:         status,
		SubscriptionID: rx.SubscriptionID,
		MinVersion:     rx.MinVersion,
	}
	if rx.Timeout != "" {
		if v, err := strconv.Atoi(rx.Timeout); err == nil {
			resp.TimeoutS = v
		}
	}
	if rx.Feed != nil {
		feed, err := feedFromXML(*rx.Feed)
		if err != nil {
			return resp, err
		}
		resp.Feed = feed
	}
	return resp, nil
}

// MarshalFeed renders messages as a wire feed, without decoded colorings.
func MarshalFeed(feed Feed) ([]byte, error) {
	fx := feedXML{}
	for _, msg := range feed {
		fx.Messages = append(fx.Messages, messageToXML(msg, nil))
	}
	return xml.MarshalIndent(fx, "", "  ")
}

// CachedMessage is a message restored from the persisted cache together with
// the data versions its decoded coloring was computed against.
type CachedMessage struct {
	Message      Message
	TileVersions map[tiles.ID]int64
}

// MarshalCache renders the message cache as one document, one message
// element per cached message including its decoded coloring. versionOf
// supplies the current data version per tile; tiles it does not know are
// not persisted.
func MarshalCache(messages map[string]Message, versionOf func(tiles.ID) (int64, bool)) ([]byte, error) {
	fx := feedXML{}
	for _, msg := range messages {
		fx.Messages = append(fx.Messages, messageToXML(msg, versionOf))
	}
	return xml.MarshalIndent(fx, "", "  ")
}

// ParseCache parses a persisted cache document. Decoded colorings are
// returned together with their recorded tile versions so the caller can
// invalidate stale tiles.
func ParseCache(data []byte) ([]CachedMessage, error) {
	var fx feedXML
	if err := xml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse cache: %w", err)
	}
	var out []CachedMessage
	for _, mx := range fx.Messages {
		msg, err := messageFromXML(mx)
		if err != nil {
			log.Printf("could not parse cached message, skipping: %v", err)
			continue
		}
		cm := CachedMessage{Message: msg, TileVersions: make(map[tiles.ID]int64)}
		for _, cx := range mx.Colorings {
			coloring, err := coloringFromXML(cx)
			if err != nil {
				log.Printf("message %s: %v (discarding coloring)", msg.ID, err)
				cm.Message.Decoded = nil
				cm.TileVersions = map[tiles.ID]int64{}
				break
			}
			if cm.Message.Decoded == nil {
				cm.Message.Decoded = make(MultiTileColoring)
			}
			tile := tiles.ID(cx.Tile)
			cm.Message.Decoded[tile] = coloring
			cm.TileVersions[tile] = cx.Version
		}
		out = append(out, cm)
	}
	return out, nil
}

func coloringFromXML(cx coloringXML) (traffic.Coloring, error) {
	if cx.Tile == "" {
		return nil, errors.New("coloring element without tile attribute")
	}
	coloring := make(traffic.Coloring, len(cx.Segments))
	for _, sx := range cx.Segments {
		sg, ok := traffic.SpeedGroupFromString(sx.SpeedGroup)
		if !ok {
			return nil, fmt.Errorf("missing or invalid speed group for segment %d/%d/%d",
				sx.Fid, sx.Idx, sx.Dir)
		}
		coloring[traffic.RoadSegmentID{Fid: sx.Fid, Idx: sx.Idx, Dir: sx.Dir}] = sg
	}
	return coloring, nil
}

// FiltersXML renders the filter list of a subscription request: one bbox
// filter per rect, "minLat minLon maxLat maxLon".
func FiltersXML(rects []tiles.Rect) string {
	var b strings.Builder
	for _, r := range rects {
		fmt.Fprintf(&b, "<filter bbox=\"%g %g %g %g\"/>\n",
			r.MinLat, r.MinLon, r.MaxLat, r.MaxLon)
	}
	return b.String()
}
