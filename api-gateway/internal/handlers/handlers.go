package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/aaronwang/lot-auction/api-gateway/internal/service"
	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/aaronwang/lot-auction/shared/websocket"
)

// Handler contains HTTP request handlers
type Handler struct {
	auction *service.AuctionService
	watch   *websocket.Handler
	metrics http.Handler
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler. watch and metrics may be nil.
func NewHandler(auction *service.AuctionService, watch *websocket.Handler, metrics http.Handler, logger *zap.Logger) *Handler {
	return &Handler{
		auction: auction,
		watch:   watch,
		metrics: metrics,
		logger:  logger,
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}
	if h.watch != nil {
		h.watch.Register(router)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/lots", h.CreateLot).Methods(http.MethodPost)
	api.HandleFunc("/lots/{id}", h.GetLot).Methods(http.MethodGet)
	api.HandleFunc("/lots/{id}", h.DeleteLot).Methods(http.MethodDelete)
	api.HandleFunc("/lots/{id}/bids", h.ListBids).Methods(http.MethodGet)
	api.HandleFunc("/lots/{id}/bids", h.PlaceBid).Methods(http.MethodPost)
	api.HandleFunc("/bids/{id}", h.DeleteBid).Methods(http.MethodDelete)

	router.Use(h.loggingMiddleware)
	router.Use(corsMiddleware)
	router.Use(principalMiddleware)

	return router
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "api-gateway",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// CreateLot lists a new lot for the calling seller
func (h *Handler) CreateLot(w http.ResponseWriter, r *http.Request) {
	seller, ok := principalFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.CreateLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lot, err := h.auction.CreateLot(r.Context(), seller, req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, lot)
}

// GetLot returns a lot with its status brought up to date
func (h *Handler) GetLot(w http.ResponseWriter, r *http.Request) {
	lot, err := h.auction.GetLot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lot)
}

// DeleteLot removes a lot and its bids
func (h *Handler) DeleteLot(w http.ResponseWriter, r *http.Request) {
	requester, ok := principalFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.auction.DeleteLot(r.Context(), mux.Vars(r)["id"], requester); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBids returns a lot's bids, highest first
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.auction.ListBids(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if bids == nil {
		bids = []*models.Bid{}
	}
	respondJSON(w, http.StatusOK, bids)
}

// PlaceBid handles bid placement requests
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidder, ok := principalFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, err := h.auction.PlaceBid(r.Context(), mux.Vars(r)["id"], bidder.ID, req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, bid)
}

// DeleteBid withdraws a bid
func (h *Handler) DeleteBid(w http.ResponseWriter, r *http.Request) {
	requester, ok := principalFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.auction.DeleteBid(r.Context(), mux.Vars(r)["id"], requester); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrLotNotActive),
		errors.Is(err, service.ErrBidTooLow),
		errors.Is(err, service.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidLot):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
