package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/modules/alerts"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// AlertHandlers serves persisted alerts and the live alert stream
type AlertHandlers struct {
	repo *alerts.Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewAlertHandlers creates a new alert handlers instance
func NewAlertHandlers(repo *alerts.Repository, bus *events.Bus, log zerolog.Logger) *AlertHandlers {
	return &AlertHandlers{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("handler", "alerts").Logger(),
	}
}

// HandleList returns persisted alerts, newest first
// GET /api/alerts?limit=50&unacked=true
func (h *AlertHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	unackedOnly := r.URL.Query().Get("unacked") == "true"

	list, err := h.repo.List(limit, unackedOnly)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list alerts")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"alerts": list, "count": len(list)},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleAcknowledge marks an alert as acknowledged
// POST /api/alerts/{id}/ack
func (h *AlertHandlers) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.Acknowledge(id); err != nil {
		status := http.StatusInternalServerError
		if domain.IsNotFound(err) {
			status = http.StatusNotFound
		} else {
			h.log.Error().Err(err).Str("alert_id", id).Msg("Failed to acknowledge alert")
		}
		h.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"id": id, "acknowledged": true},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleStream upgrades to a websocket and forwards live alert events until
// the client disconnects.
// GET /api/alerts/stream
func (h *AlertHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	// CloseRead returns a context cancelled when the client goes away.
	ctx := conn.CloseRead(r.Context())
	h.log.Info().Msg("Alert stream client connected")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "bus closed")
				return
			}
			writeCtx, done := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			done()
			if err != nil {
				h.log.Debug().Err(err).Msg("Alert stream write failed, dropping client")
				return
			}
		}
	}
}

func (h *AlertHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
