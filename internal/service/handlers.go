package service

import (
	"encoding/json"
	"net/http"

	"hotel-sync/internal/engine"

	"go.uber.org/zap"
)

// Handler REST 只读接口
// Read-only REST surface for dashboards and health probes. All mutations go
// through the WebSocket protocol so every change fans out to every client.
type Handler struct {
	engine      *engine.Engine
	dbConnected bool
	logger      *zap.Logger
}

func NewHandler(eng *engine.Engine, dbConnected bool, logger *zap.Logger) *Handler {
	return &Handler{
		engine:      eng,
		dbConnected: dbConnected,
		logger:      logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"message":           "Server is running",
		"databaseConnected": h.dbConnected,
	})
}

func (h *Handler) Rooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.engine.Rooms(r.Context())
	if err != nil {
		h.logger.Error("failed to list rooms", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch rooms")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *Handler) RoomByID(w http.ResponseWriter, r *http.Request, id string) {
	room, err := h.engine.Room(r.Context(), id)
	if err != nil {
		if rej, ok := engine.AsRejection(err); ok {
			writeError(w, http.StatusNotFound, rej.Message)
			return
		}
		h.logger.Error("failed to fetch room", zap.String("room_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) Guests(w http.ResponseWriter, r *http.Request) {
	guests, err := h.engine.Guests(r.Context())
	if err != nil {
		h.logger.Error("failed to list guests", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch guests")
		return
	}
	writeJSON(w, http.StatusOK, guests)
}
