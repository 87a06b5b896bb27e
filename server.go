package traffgo

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

var (
	server *http.Server
)

// StartServer exposes the manager's state over HTTP for monitoring:
// /api/health for liveness and /api/traffic/messages.xml for the cached
// messages as a feed document.
func StartServer(m *Manager, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", handleHealth(m))
	mux.HandleFunc("/api/traffic/messages.xml", handleMessages(m))

	addr := fmt.Sprintf(":%d", port)
	server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("server listening on %s", addr)
}

// StopServer shuts the monitoring server down gracefully.
func StopServer() {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	} else {
		log.Printf("server shut down successfully")
	}
}
