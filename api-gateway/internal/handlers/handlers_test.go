package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap"

	"github.com/aaronwang/lot-auction/api-gateway/internal/clock"
	"github.com/aaronwang/lot-auction/api-gateway/internal/ledger"
	"github.com/aaronwang/lot-auction/api-gateway/internal/notify"
	"github.com/aaronwang/lot-auction/api-gateway/internal/service"
	"github.com/aaronwang/lot-auction/shared/broadcast"
	"github.com/aaronwang/lot-auction/shared/models"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	clock  *clock.Fake
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fake := clock.NewFake(t0)
	svc := service.NewAuctionService(
		ledger.NewMemory(),
		broadcast.NewHub(broadcast.DefaultBuffer),
		notify.NewLogRecorder(zap.NewNop()),
		zap.NewNop(),
		service.WithClock(fake),
	)
	t.Cleanup(svc.Close)
	h := NewHandler(svc, nil, nil, zap.NewNop())
	return &testServer{router: h.SetupRoutes(), clock: fake}
}

func (s *testServer) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		id, role, _ := strings.Cut(user, "/")
		req.Header.Set(HeaderUserID, id)
		req.Header.Set(HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createLot(t *testing.T) *models.Lot {
	t.Helper()
	body := fmt.Sprintf(`{"title":"Pocket watch","category":"WATCHES","starting_price":"100.00","start_time":%q,"end_time":%q}`,
		t0.Format(time.RFC3339), t0.Add(time.Hour).Format(time.RFC3339))
	rec := s.do(t, http.MethodPost, "/api/v1/lots", "seller", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var lot models.Lot
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lot))
	return &lot
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	check.Equal(t, http.StatusOK, rec.Code)
	check.True(t, strings.Contains(rec.Body.String(), "healthy"))
}

func TestLotAndBidFlow(t *testing.T) {
	s := newTestServer(t)
	lot := s.createLot(t)
	check.Equal(t, models.CategoryWatches, lot.Category)
	check.Equal(t, []string{models.DefaultLotImage}, lot.Images)

	lotPath := "/api/v1/lots/" + lot.ID

	rec := s.do(t, http.MethodPost, lotPath+"/bids", "alice", `{"amount":"150.00"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	var first models.Bid
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	check.Equal(t, "alice", first.BidderID)

	rec = s.do(t, http.MethodPost, lotPath+"/bids", "bob", `{"amount":"120"}`)
	check.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, lotPath+"/bids", "bob", `{"amount":"200.001"}`)
	check.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, lotPath+"/bids", "", `{"amount":"300"}`)
	check.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, lotPath+"/bids", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var bids []models.Bid
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bids))
	check.Equal(t, 1, len(bids))

	rec = s.do(t, http.MethodDelete, "/api/v1/bids/"+first.ID, "bob", "")
	check.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/v1/bids/"+first.ID, "alice", "")
	check.Equal(t, http.StatusNoContent, rec.Code)

	s.clock.Set(t0.Add(2 * time.Hour))
	rec = s.do(t, http.MethodGet, lotPath, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var got models.Lot
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	check.Equal(t, models.LotStatusExpired, got.Status)
	check.Equal(t, "100", got.CurrentPrice.String())
}

func TestDeleteLot(t *testing.T) {
	s := newTestServer(t)
	lot := s.createLot(t)
	lotPath := "/api/v1/lots/" + lot.ID

	rec := s.do(t, http.MethodDelete, lotPath, "mallory", "")
	check.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, lotPath, "moderator/admin", "")
	check.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, lotPath, "", "")
	check.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateLot_BadRequests(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/lots", "seller", `{not json`)
	check.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/lots", "seller", `{"title":"","starting_price":"1"}`)
	check.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/lots", "", `{"title":"Lamp"}`)
	check.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", service.ErrLotNotActive), http.StatusConflict},
		{service.ErrBidTooLow, http.StatusConflict},
		{service.ErrConcurrencyConflict, http.StatusConflict},
		{service.ErrInvalidAmount, http.StatusBadRequest},
		{service.ErrInvalidLot, http.StatusBadRequest},
		{service.ErrStorageFailure, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		check.Equal(t, tc.want, statusFor(tc.err))
	}
}
