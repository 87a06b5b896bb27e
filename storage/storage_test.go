package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
	"github.com/traffxml/traff-go/traffic"
)

func testProvider() *tiles.StaticProvider {
	p := tiles.NewStaticProvider()
	p.AddTile("tile1", tiles.Rect{MinLat: 48, MinLon: 11, MaxLat: 49, MaxLon: 12}, 3)
	p.AddTile("tile2", tiles.Rect{MinLat: 49, MinLon: 11, MaxLat: 50, MaxLon: 12}, 5)
	return p
}

func testMessage(id string, decoded traff.MultiTileColoring) traff.Message {
	now := time.Now().Round(time.Second).UTC()
	return traff.Message{
		ID:             id,
		UpdateTime:     now,
		ExpirationTime: now.Add(time.Hour),
		Location: &traff.Location{
			From: &traff.Point{Coordinates: tiles.LatLon{Lat: 48.1, Lon: 11.5}},
			To:   &traff.Point{Coordinates: tiles.LatLon{Lat: 48.2, Lon: 11.6}},
		},
		Events:  []traff.Event{{Class: traff.Congestion, Type: traff.CongestionQueue}},
		Decoded: decoded,
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.xml")
	store := NewStore(path)
	provider := testProvider()

	seg := traffic.RoadSegmentID{Fid: 1, Dir: traffic.ForwardDirection}
	msg := testMessage("msg1", traff.MultiTileColoring{"tile1": {seg: traffic.G2}})

	if err := store.Save(map[string]traff.Message{msg.ID: msg}, provider); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ready, needsDecode, err := store.Load(provider)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(needsDecode) != 0 {
		t.Errorf("needsDecode = %v, want empty", needsDecode)
	}
	got, ok := ready["msg1"]
	if !ok {
		t.Fatalf("ready = %v, want msg1", ready)
	}
	if got.Decoded["tile1"][seg] != traffic.G2 {
		t.Errorf("restored coloring = %v, want G2", got.Decoded["tile1"])
	}
	if !got.UpdateTime.Equal(msg.UpdateTime) {
		t.Errorf("restored update time = %v, want %v", got.UpdateTime, msg.UpdateTime)
	}
}

func TestLoadInvalidatesChangedTiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.xml")
	store := NewStore(path)
	provider := testProvider()

	seg1 := traffic.RoadSegmentID{Fid: 1, Dir: traffic.ForwardDirection}
	seg2 := traffic.RoadSegmentID{Fid: 2, Dir: traffic.ForwardDirection}
	messages := map[string]traff.Message{
		"spans": testMessage("spans", traff.MultiTileColoring{
			"tile1": {seg1: traffic.G2},
			"tile2": {seg2: traffic.G3},
		}),
		"untouched": testMessage("untouched", traff.MultiTileColoring{
			"tile2": {seg2: traffic.G4},
		}),
	}
	if err := store.Save(messages, provider); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// New data for tile1 arrives between save and load.
	provider.SetVersion("tile1", 4)

	ready, needsDecode, err := store.Load(provider)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := ready["untouched"]; !ok {
		t.Errorf("message untouched not in ready set: %v", ready)
	}
	if len(needsDecode) != 1 || needsDecode[0].ID != "spans" {
		t.Fatalf("needsDecode = %v, want just the spanning message", needsDecode)
	}
	// Only the stale tile's portion is dropped.
	stale := needsDecode[0]
	if _, ok := stale.Decoded["tile1"]; ok {
		t.Error("stale tile1 coloring survived the load")
	}
	if stale.Decoded["tile2"][seg2] != traffic.G3 {
		t.Errorf("tile2 coloring = %v, want the saved G3", stale.Decoded["tile2"])
	}
	if stale.Location == nil || len(stale.Events) == 0 {
		t.Error("re-queued message lost its location or events")
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope", "cache.xml"))
	ready, needsDecode, err := store.Load(testProvider())
	if err != nil {
		t.Fatalf("Load() of a missing file: error = %v", err)
	}
	if len(ready) != 0 || len(needsDecode) != 0 {
		t.Errorf("Load() of a missing file = %v, %v, want empty", ready, needsDecode)
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.xml")
	store := NewStore(path)
	if err := store.Save(map[string]traff.Message{}, testProvider()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("cache file still exists after Reset()")
	}
	if err := store.Reset(); err != nil {
		t.Errorf("second Reset() error = %v", err)
	}
}
