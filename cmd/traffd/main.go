package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	lib "github.com/traffxml/traff-go"
	"github.com/traffxml/traff-go/config"
	"github.com/traffxml/traff-go/decoder"
	"github.com/traffxml/traff-go/source"
	"github.com/traffxml/traff-go/storage"
	"github.com/traffxml/traff-go/tiles"
	"github.com/traffxml/traff-go/traff"
)

// loggingConsumer prints aggregate coloring sizes. Stands in for the real
// rendering and routing consumers, which live in the navigation app.
type loggingConsumer struct{ name string }

func (c *loggingConsumer) OnTrafficUpdate(coloring traff.MultiTileColoring, final bool) {
	segments := 0
	for _, tile := range coloring {
		segments += len(tile)
	}
	log.Printf("%s update: %d tiles, %d segments, final=%v", c.name, len(coloring), segments, final)
}

// routeAdapter narrows the render signature to the routing one.
type routeAdapter struct{ loggingConsumer }

func (c *routeAdapter) OnTrafficUpdate(coloring traff.MultiTileColoring) {
	c.loggingConsumer.OnTrafficUpdate(coloring, true)
}

func main() {
	sourceName := flag.String("source", "", "source name from config.sources[] (default: all)")
	viewport := flag.String("viewport", "", "initial viewport as 'minLat minLon maxLat maxLon'")
	flag.Parse()

	lib.InitLogging()
	if err := config.LoadAppConfig(); err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Without a map dataset reader the daemon runs against a single
	// placeholder tile spanning the viewport. Decoded colorings still flow
	// end to end; the matcher is a plug point for a real map matcher.
	provider := tiles.NewStaticProvider()
	rect := tiles.Rect{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}
	if *viewport != "" {
		parsed, err := parseRect(*viewport)
		if err != nil {
			log.Fatalf("bad -viewport: %v", err)
		}
		rect = parsed
	}
	provider.AddTile("world", rect, 1)

	mgr := lib.New(provider, noMatcher{}, lib.Options{
		UpdateInterval:      time.Duration(config.Config.Manager.UpdateIntervalS) * time.Second,
		RenderThrottle:      time.Duration(config.Config.Manager.RenderThrottleS) * time.Second,
		RouteThrottle:       time.Duration(config.Config.Manager.RouteThrottleS) * time.Second,
		PositionSquareM:     float64(config.Config.Manager.PositionSquareM),
		NetworkErrorTimeout: time.Duration(config.Config.Manager.NetworkErrorTimeoutS) * time.Second,
	})
	mgr.SetRenderConsumer(&loggingConsumer{name: "render"})
	mgr.SetRouteConsumer(&routeAdapter{loggingConsumer{name: "route"}})
	mgr.SetStateListener(func(s lib.State) {
		log.Printf("traffic state: %s", s)
	})

	var store *storage.Store
	if path := config.Config.Storage.CachePath; path != "" {
		store = storage.NewStore(path)
		if err := mgr.RestoreCache(store); err != nil {
			log.Printf("cache restore failed, starting empty: %v", err)
		}
	}

	for _, sc := range config.Config.Sources {
		if *sourceName != "" && sc.Name != *sourceName {
			continue
		}
		src, err := buildSource(sc, mgr)
		if err != nil {
			log.Fatalf("source %s: %v", sc.Name, err)
		}
		mgr.RegisterSource(src)
		log.Printf("registered %s source %s", sc.Kind, sc.Name)
	}

	mgr.UpdateViewport(rect)

	if port := config.Config.Server.Port; port > 0 {
		lib.StartServer(mgr, port)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Print("shutting down")

	lib.StopServer()
	mgr.Teardown()
	if store != nil {
		if err := mgr.SaveCache(store); err != nil {
			log.Printf("cache save failed: %v", err)
		}
	}
}

func buildSource(sc config.SourceConfig, mgr *lib.Manager) (source.Source, error) {
	switch sc.Kind {
	case "http":
		return source.NewHTTP(sc.URL, mgr, time.Duration(sc.PollIntervalS)*time.Second), nil
	case "ws":
		return source.NewWS(sc.URL, mgr), nil
	case "mock":
		var feed traff.Feed
		if sc.FeedFile != "" {
			data, err := os.ReadFile(sc.FeedFile)
			if err != nil {
				return nil, err
			}
			feed, err = traff.ParseFeed(data)
			if err != nil {
				return nil, err
			}
		}
		return source.NewMock(mgr, feed), nil
	}
	return nil, errUnknownKind(sc.Kind)
}

type errUnknownKind string

func (e errUnknownKind) Error() string { return "unknown source kind " + string(e) }

// noMatcher is the plug point for a real map matcher. Without one, messages
// are cached but produce no coloring.
type noMatcher struct{}

func (noMatcher) MatchLocation(_ context.Context, _ decoder.MatchRequest) ([]decoder.MatchedSegment, error) {
	return nil, nil
}

func parseRect(s string) (tiles.Rect, error) {
	var r tiles.Rect
	_, err := fmt.Sscan(s, &r.MinLat, &r.MinLon, &r.MaxLat, &r.MaxLon)
	return r, err
}
