package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ticketrush/internal/service/ticket/domain"
)

// CreateOrderHandler 负责在账本中写入 pending 订单。
type CreateOrderHandler struct {
	NextHandler
	repo      domain.OrderRepository
	newID     func() string
	newSerial func() string
}

func NewCreateOrderHandler(repo domain.OrderRepository, newID, newSerial func() string) *CreateOrderHandler {
	return &CreateOrderHandler{repo: repo, newID: newID, newSerial: newSerial}
}

func (h *CreateOrderHandler) Handle(rc *ReservationContext) error {
	ctx, span := rc.Tracer.Start(rc.Ctx, "saga.CreateOrder")
	defer span.End()

	order, err := domain.NewOrder(h.newID(), h.newSerial(), rc.UserID, rc.Ticket, rc.Now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build order failed")
		return fmt.Errorf("%w: %v", domain.ErrReservationFailed, err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	if err := h.repo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist order failed")
		return fmt.Errorf("%w: %v", domain.ErrReservationFailed, err)
	}
	rc.Order = order
	span.AddEvent("pending order saved")

	return h.executeNext(rc)
}
