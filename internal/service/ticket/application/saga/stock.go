package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/service/ticket/domain"
)

// StockHandler 负责原子扣减库存，并注册回补库存的补偿操作。
type StockHandler struct {
	NextHandler
}

func (h *StockHandler) Handle(rc *ReservationContext) error {
	ctx, span := rc.Tracer.Start(rc.Ctx, "saga.DecrementStock")
	span.SetAttributes(attribute.Int64("ticket.id", rc.Ticket.ID))

	ok, err := rc.Stock.TryDecrement(ctx, rc.Ticket.ID)
	if err != nil {
		// 扣减结果未知时不回补，否则可能超卖。计数器由 ticketctl prepare 按账本校正
		logger.Alert(ctx).Err(err).
			Int64("ticket_id", rc.Ticket.ID).
			Str("user_id", rc.UserID).
			Msg("stock decrement outcome unknown, one unit may be withheld until the counter is re-initialized")
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock store failed")
		span.End()
		return fmt.Errorf("%w: %v", domain.ErrReservationFailed, err)
	}
	if !ok {
		span.SetStatus(codes.Error, domain.ErrOutOfStock.Error())
		span.End()
		return domain.ErrOutOfStock
	}
	span.AddEvent("stock decremented")
	span.End()

	rc.AddCompensation(func(compCtx context.Context) error {
		compCtx, compSpan := rc.Tracer.Start(compCtx, "saga.compensation.RestoreStock")
		defer compSpan.End()
		if err := rc.Stock.Increment(compCtx, rc.Ticket.ID, 1); err != nil {
			compSpan.RecordError(err)
			return err
		}
		return nil
	})

	return h.executeNext(rc)
}
