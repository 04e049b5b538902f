package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketrush/internal/service/ticket/application"
	"ticketrush/internal/service/ticket/domain"
)

type stubTicketService struct {
	grabErr  error
	stockErr error
	gotUser  string
	gotID    int64
}

func (s *stubTicketService) GrabTicket(_ context.Context, ticketID int64, userID string) (*application.GrabTicketResponse, error) {
	s.gotID, s.gotUser = ticketID, userID
	if s.grabErr != nil {
		return nil, s.grabErr
	}
	return &application.GrabTicketResponse{OrderID: "o-1", OrderSN: "SN1", TicketID: ticketID, Message: "ok"}, nil
}

func (s *stubTicketService) GetStock(_ context.Context, ticketID int64) (*application.StockView, error) {
	if s.stockErr != nil {
		return nil, s.stockErr
	}
	return &application.StockView{TicketID: ticketID, Stock: 42}, nil
}

func serve(t *testing.T, svc TicketService, method, path, user string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	mux := http.NewServeMux()
	NewTicketHandler(svc, prometheus.NewRegistry()).RegisterRoutes(mux)

	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body map[string]interface{}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestGrabHandlerCreated(t *testing.T) {
	svc := &stubTicketService{}
	for _, prefix := range []string{"/ticket", "/resource"} {
		rec, body := serve(t, svc, http.MethodPost, prefix+"/grab/7", "alice")
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "o-1", body["order_id"])
		assert.Equal(t, "SN1", body["order_sn"])
		assert.EqualValues(t, 7, svc.gotID)
		assert.Equal(t, "alice", svc.gotUser)
	}
}

func TestGrabHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		err     error
		code    int
		message string
	}{
		{domain.ErrWindowNotOpen, http.StatusUnprocessableEntity, domain.ErrWindowNotOpen.Error()},
		{domain.ErrWindowClosed, http.StatusUnprocessableEntity, domain.ErrWindowClosed.Error()},
		{domain.ErrDuplicateClaim, http.StatusUnprocessableEntity, domain.ErrDuplicateClaim.Error()},
		{domain.ErrOutOfStock, http.StatusUnprocessableEntity, domain.ErrOutOfStock.Error()},
		{domain.ErrTicketNotFound, http.StatusNotFound, domain.ErrTicketNotFound.Error()},
		{fmt.Errorf("%w: dial tcp: refused", domain.ErrReservationFailed), http.StatusInternalServerError, "internal error, please retry later"},
		{domain.ErrMisconfigured, http.StatusInternalServerError, "internal error, please retry later"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec, body := serve(t, &stubTicketService{grabErr: tt.err}, http.MethodPost, "/ticket/grab/1", "alice")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestGrabHandlerBadRequest(t *testing.T) {
	rec, _ := serve(t, &stubTicketService{}, http.MethodPost, "/ticket/grab/1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, &stubTicketService{}, http.MethodPost, "/ticket/grab/abc", "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, &stubTicketService{}, http.MethodGet, "/ticket/grab/1", "alice")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStockHandler(t *testing.T) {
	rec, body := serve(t, &stubTicketService{}, http.MethodGet, "/ticket/stock/3", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["ticket_id"])
	assert.EqualValues(t, 42, body["stock"])

	rec, _ = serve(t, &stubTicketService{stockErr: domain.ErrTicketNotFound}, http.MethodGet, "/resource/stock/3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec, _ := serve(t, &stubTicketService{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
