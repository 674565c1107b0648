package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin checks belong to the fronting proxy
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LotCheck reports whether a lot exists before a client may watch it
type LotCheck func(ctx context.Context, lotID string) (bool, error)

// Handler serves lot watch connections
type Handler struct {
	manager  *Manager
	logger   *zap.Logger
	lotCheck LotCheck
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLotCheck refuses connections for lots the check does not find
func WithLotCheck(check LotCheck) HandlerOption {
	return func(h *Handler) { h.lotCheck = check }
}

// NewHandler creates a new WebSocket handler
func NewHandler(manager *Manager, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		manager: manager,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the watch endpoint on router: /ws/lots/{id}
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/ws/lots/{id}", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request and subscribes it to the lot in the path
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	lotID := mux.Vars(r)["id"]
	if lotID == "" {
		http.Error(w, "lot id is required", http.StatusBadRequest)
		return
	}

	if h.lotCheck != nil {
		found, err := h.lotCheck(r.Context(), lotID)
		if err != nil {
			h.logger.Warn("Failed to look up lot", zap.String("lot_id", lotID), zap.Error(err))
			http.Error(w, "lot lookup failed", http.StatusServiceUnavailable)
			return
		}
		if !found {
			http.Error(w, "lot not found", http.StatusNotFound)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.String("lot_id", lotID), zap.Error(err))
		return
	}
	h.manager.Serve(conn, lotID)
}

// SubscriberCount returns the number of websocket clients watching a lot
func (h *Handler) SubscriberCount(lotID string) int {
	return h.manager.SubscriberCount(lotID)
}
