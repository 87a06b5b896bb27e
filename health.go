package traffgo

import (
	"encoding/json"
	"net/http"

	"github.com/traffxml/traff-go/traff"
)

type healthResponse struct {
	Status          string `json:"status"`
	TrafficState    string `json:"traffic_state"`
	CachedMessages  int    `json:"cached_messages"`
	ColoredSegments int    `json:"colored_segments"`
}

func handleHealth(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		segments := 0
		for _, tile := range m.Coloring() {
			segments += len(tile)
		}
		resp := healthResponse{
			Status:          "ok",
			TrafficState:    m.State().String(),
			CachedMessages:  len(m.Messages()),
			ColoredSegments: segments,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func handleMessages(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := traff.MarshalFeed(m.Messages())
		if err != nil {
			w.WriteHeader(500)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write(data)
	}
}
