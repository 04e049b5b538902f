package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/service/ticket/application"
	"ticketrush/internal/service/ticket/domain"
)

const (
	serviceName = "ticket-service"
	// HeaderUserID 由上游网关在鉴权后写入
	HeaderUserID = "X-User-ID"
)

// TicketService 是 HTTP 层依赖的应用服务能力
type TicketService interface {
	GrabTicket(ctx context.Context, ticketID int64, userID string) (*application.GrabTicketResponse, error)
	GetStock(ctx context.Context, ticketID int64) (*application.StockView, error)
}

// TicketHandler 封装了抢票服务的 HTTP 处理器
type TicketHandler struct {
	service  TicketService
	gatherer prometheus.Gatherer
}

// NewTicketHandler 创建一个新的 HTTP 处理器实例。gatherer 为 nil 时使用默认注册表。
func NewTicketHandler(service TicketService, gatherer prometheus.Gatherer) *TicketHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &TicketHandler{service: service, gatherer: gatherer}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。/resource 是 /ticket 的别名。
func (h *TicketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	for _, prefix := range []string{"/ticket", "/resource"} {
		mux.HandleFunc("POST "+prefix+"/grab/{ticketID}", h.grabHandler)
		mux.HandleFunc("GET "+prefix+"/stock/{ticketID}", h.stockHandler)
	}
}

type grabResponse struct {
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
	OrderSN string `json:"order_sn,omitempty"`
}

type stockResponse struct {
	TicketID int64 `json:"ticket_id"`
	Stock    int64 `json:"stock"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *TicketHandler) grabHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.GrabTicket")
	defer span.End()

	ticketID, ok := parseTicketID(w, r)
	if !ok {
		return
	}
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "missing user identity"})
		return
	}
	span.SetAttributes(attribute.Int64("ticket.id", ticketID), attribute.String("user.id", userID))

	resp, err := h.service.GrabTicket(ctx, ticketID, userID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grabResponse{
		Message: resp.Message,
		OrderID: resp.OrderID,
		OrderSN: resp.OrderSN,
	})
}

func (h *TicketHandler) stockHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.GetStock")
	defer span.End()

	ticketID, ok := parseTicketID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetStock(ctx, ticketID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{TicketID: view.TicketID, Stock: view.Stock})
}

// writeError 把领域错误映射为状态码。基础设施错误不向调用方暴露细节。
func (h *TicketHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrTicketNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: domain.ErrTicketNotFound.Error()})
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error, please retry later"})
	}
}

func parseTicketID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("ticketID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid ticket id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
