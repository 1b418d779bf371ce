// Package nethttp serves the operational endpoints next to /ws: health,
// per-room metrics, and hot-updatable room settings.
package nethttp

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"tilerise/internal/room"
)

// Handlers bundles the HTTP surface around the room manager.
type Handlers struct {
	manager *room.Manager
	logger  *zap.SugaredLogger
}

// New builds the operational handlers.
func New(manager *room.Manager, logger *zap.SugaredLogger) *Handlers {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handlers{manager: manager, logger: logger}
}

// Register attaches every endpoint to mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/metrics", h.Metrics)
	mux.HandleFunc("/admin/config", h.AdminConfig)
}

// Healthz answers liveness probes.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// Metrics serves GET /metrics?room=lobby.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = "lobby"
	}
	rm, ok := h.manager.Get(roomID)
	if !ok {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}
	width, height := rm.Grid()
	payload := map[string]any{
		"room":    roomID,
		"grid":    map[string]int{"width": width, "height": height},
		"metrics": rm.Metrics().Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// AdminConfig reads or updates room tunables.
// GET  /admin/config?room=lobby          returns the current settings
// POST /admin/config?room=lobby {json}   overlays the provided fields
func (h *Handlers) AdminConfig(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = "lobby"
	}
	rm, ok := h.manager.Get(roomID)
	if !ok {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		tun, err := rm.TunablesSnapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tun)
	case http.MethodPost:
		var body struct {
			MaxPlayers *int `json:"maxPlayers,omitempty"`
			ChatMaxLen *int `json:"chatMaxLen,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		tun, err := rm.UpdateTunables(body.MaxPlayers, body.ChatMaxLen)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		h.logger.Infow("config updated", "room", roomID, "maxPlayers", tun.MaxPlayers, "chatMaxLen", tun.ChatMaxLen)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tun)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
