package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BioHazard786/camrelay/internal/metrics"
	"github.com/BioHazard786/camrelay/internal/signaling"
	"github.com/BioHazard786/camrelay/internal/version"
)

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /ws", s.ServeWs)

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	s.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"ready": true})
	})

	s.mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"version": version.Version})
	})

	s.mux.Handle("GET /metrics", metrics.PrometheusHandler(s.hub.Metrics()))

	s.mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.hub.Stats(r.Context())
		if err != nil {
			status := http.StatusServiceUnavailable
			if !errors.Is(err, signaling.ErrHubStopped) {
				status = http.StatusGatewayTimeout
			}
			WriteJSON(w, status, map[string]any{"error": err.Error()})
			return
		}
		WriteJSON(w, http.StatusOK, stats)
	})

	s.mux.HandleFunc("GET /ice", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"iceServers": s.cfg.ICE.ICEServers()})
	})

	if s.cfg.StaticDir != "" {
		s.mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
}

// ServeWs upgrades the request and hands the connection to the hub.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	// Upgrade writes the HTTP error response itself.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	client := signaling.NewClient(s.hub, conn)
	if !s.hub.RegisterClient(client) {
		conn.Close()
		return
	}
	s.log.Debug("websocket connected", "client", client.ID, "remote_addr", r.RemoteAddr, "subprotocol", conn.Subprotocol())

	// Start the client's read and write pumps in separate goroutines
	// These methods will handle the client's lifecycle
	go client.WritePump()
	go client.ReadPump()
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
