package saga

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/service/ticket/domain"
	"ticketrush/internal/service/ticket/domain/port"
)

// ScheduleHandler 为已创建的订单调度支付超时补偿任务。
// 调度失败不会让抢票失败：订单已经落库，只能告警后人工处理。
type ScheduleHandler struct {
	NextHandler
	scheduler port.CompensationScheduler
	attempts  uint64
	backoff   time.Duration
	timeout   time.Duration
	onFailure func(ctx context.Context, task domain.CompensationTask, err error)
}

func NewScheduleHandler(scheduler port.CompensationScheduler, attempts uint64, backoff, timeout time.Duration,
	onFailure func(ctx context.Context, task domain.CompensationTask, err error)) *ScheduleHandler {
	return &ScheduleHandler{
		scheduler: scheduler,
		attempts:  attempts,
		backoff:   backoff,
		timeout:   timeout,
		onFailure: onFailure,
	}
}

func (h *ScheduleHandler) Handle(rc *ReservationContext) error {
	// 请求被取消时补偿任务依然要投递出去
	ctx, cancel := context.WithTimeout(context.WithoutCancel(rc.Ctx), h.timeout)
	defer cancel()
	ctx, span := rc.Tracer.Start(ctx, "saga.ScheduleCompensation")
	defer span.End()

	task := domain.CompensationTask{
		OrderID:   rc.Order.ID,
		TicketID:  rc.Ticket.ID,
		UserID:    rc.UserID,
		FireAt:    rc.Now.Add(rc.Ticket.PaymentTimeout),
		CreatedAt: rc.Now,
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		task.TraceID = sc.TraceID().String()
	}
	span.SetAttributes(
		attribute.String("order.id", task.OrderID),
		attribute.String("compensation.fire_at", task.FireAt.Format(time.RFC3339)),
	)

	b := retry.WithMaxRetries(h.attempts, retry.NewExponential(h.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := h.scheduler.Schedule(ctx, task); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", task.OrderID).Msg("schedule compensation failed, retrying")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compensation not scheduled")
		logger.Alert(ctx).Err(err).
			Str("order_id", task.OrderID).
			Int64("ticket_id", task.TicketID).
			Str("user_id", task.UserID).
			Time("fire_at", task.FireAt).
			Msg("compensation task could not be scheduled, stock and claim lock will not be reclaimed automatically")
		if h.onFailure != nil {
			h.onFailure(ctx, task, err)
		}
	} else {
		span.AddEvent("compensation scheduled")
	}
	rc.FireAt = task.FireAt

	return h.executeNext(rc)
}
