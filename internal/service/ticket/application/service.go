package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/pkg/metrics"
	"ticketrush/internal/service/ticket/application/saga"
	"ticketrush/internal/service/ticket/domain"
	"ticketrush/internal/service/ticket/domain/port"
)

// TicketApplicationService 编排抢票、库存查询和超时补偿流程。
type TicketApplicationService struct {
	tickets   domain.TicketRepository
	orders    domain.OrderRepository
	stock     port.StockStore
	locks     port.ClaimLockStore
	reclaimer port.Reclaimer
	scheduler port.CompensationScheduler

	lockTTL time.Duration
	tracer  trace.Tracer
	metrics *metrics.Metrics
	now     func() time.Time

	newID     func() string
	newSerial func() string

	scheduleAttempts uint64
	scheduleBackoff  time.Duration
	scheduleTimeout  time.Duration
}

// Option 用于覆盖 TicketApplicationService 的默认设置
type Option func(*TicketApplicationService)

func WithClock(now func() time.Time) Option {
	return func(s *TicketApplicationService) { s.now = now }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *TicketApplicationService) { s.tracer = tracer }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TicketApplicationService) { s.metrics = m }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *TicketApplicationService) { s.newID = newID }
}

// WithSnowflakeNode 多实例部署时每个实例必须使用不同的节点号
func WithSnowflakeNode(node *snowflake.Node) Option {
	return func(s *TicketApplicationService) {
		s.newSerial = func() string { return "SN" + node.Generate().String() }
	}
}

// WithScheduleRetry 配置补偿任务投递的重试次数和初始退避
func WithScheduleRetry(attempts uint64, backoff time.Duration) Option {
	return func(s *TicketApplicationService) {
		s.scheduleAttempts = attempts
		s.scheduleBackoff = backoff
	}
}

// NewTicketApplicationService 创建应用服务。lockTTL 是用户锁的过期时间。
func NewTicketApplicationService(
	tickets domain.TicketRepository,
	orders domain.OrderRepository,
	stock port.StockStore,
	locks port.ClaimLockStore,
	reclaimer port.Reclaimer,
	scheduler port.CompensationScheduler,
	lockTTL time.Duration,
	opts ...Option,
) (*TicketApplicationService, error) {
	if lockTTL <= 0 {
		return nil, fmt.Errorf("claim lock ttl must be positive, got %s", lockTTL)
	}
	s := &TicketApplicationService{
		tickets:          tickets,
		orders:           orders,
		stock:            stock,
		locks:            locks,
		reclaimer:        reclaimer,
		scheduler:        scheduler,
		lockTTL:          lockTTL,
		tracer:           otel.Tracer("ticket-service"),
		now:              time.Now,
		newID:            func() string { return uuid.New().String() },
		scheduleAttempts: 3,
		scheduleBackoff:  100 * time.Millisecond,
		scheduleTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.newSerial == nil {
		node, err := snowflake.NewNode(0)
		if err != nil {
			return nil, fmt.Errorf("create snowflake node: %w", err)
		}
		s.newSerial = func() string { return "SN" + node.Generate().String() }
	}
	return s, nil
}

// GrabTicket 为 userID 抢一张 ticketID 的票。
// 成功时订单处于 pending 状态，并且已经调度了支付超时补偿任务。
func (s *TicketApplicationService) GrabTicket(ctx context.Context, ticketID int64, userID string) (resp *GrabTicketResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "app.GrabTicket")
	defer span.End()
	span.SetAttributes(attribute.Int64("ticket.id", ticketID), attribute.String("user.id", userID))

	start := time.Now()
	defer func() {
		s.metrics.GrabDuration.Observe(time.Since(start).Seconds())
		s.metrics.GrabTotal.WithLabelValues(grabResult(err)).Inc()
	}()

	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := s.now()
	if err := ticket.CheckWindow(now); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ticket.CheckLockTTL(s.lockTTL); err != nil {
		logger.Ctx(ctx).Error().
			Int64("ticket_id", ticketID).
			Dur("claim_lock_ttl", s.lockTTL).
			Dur("payment_timeout", ticket.PaymentTimeout).
			Msg("claim lock ttl must exceed payment timeout, refusing to reserve")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rc := &saga.ReservationContext{
		Ctx:       ctx,
		Tracer:    s.tracer,
		Ticket:    ticket,
		UserID:    userID,
		Now:       now,
		LockTTL:   s.lockTTL,
		LockToken: s.newID(),
		Locks:     s.locks,
		Stock:     s.stock,
	}

	if err := s.buildChain().Handle(rc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		rc.TriggerCompensation(context.WithoutCancel(ctx))
		if !domain.IsValidation(err) {
			logger.Ctx(ctx).Error().Err(err).
				Int64("ticket_id", ticketID).
				Str("user_id", userID).
				Msg("reservation rolled back")
		}
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("order_id", rc.Order.ID).
		Int64("ticket_id", ticketID).
		Str("user_id", userID).
		Msg("ticket reserved, awaiting payment")
	span.AddEvent("ticket reserved")

	return &GrabTicketResponse{
		OrderID:  rc.Order.ID,
		OrderSN:  rc.Order.Serial,
		TicketID: ticketID,
		FireAt:   rc.FireAt,
		Message:  "ticket grabbed successfully, please complete payment in time",
	}, nil
}

func (s *TicketApplicationService) buildChain() saga.Handler {
	chain := new(saga.ClaimLockHandler)
	chain.
		SetNext(new(saga.StockHandler)).
		SetNext(saga.NewCreateOrderHandler(s.orders, s.newID, s.newSerial)).
		SetNext(saga.NewScheduleHandler(s.scheduler, s.scheduleAttempts, s.scheduleBackoff, s.scheduleTimeout,
			func(context.Context, domain.CompensationTask, error) { s.metrics.ScheduleFailures.Inc() }))
	return chain
}

// GetStock 读取票种的实时库存
func (s *TicketApplicationService) GetStock(ctx context.Context, ticketID int64) (*StockView, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetStock")
	defer span.End()

	if _, err := s.tickets.FindByID(ctx, ticketID); err != nil {
		return nil, err
	}
	stock, err := s.stock.Read(ctx, ticketID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &StockView{TicketID: ticketID, Stock: stock}, nil
}

// PrepareTicket 初始化票种的库存计数器。
// stock 为 nil 时使用 总库存 - 仍占用库存的订单数，保证计数器与账本一致。
func (s *TicketApplicationService) PrepareTicket(ctx context.Context, ticketID int64, stock *int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "app.PrepareTicket")
	defer span.End()

	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return 0, err
	}

	var value int64
	if stock != nil {
		value = *stock
	} else {
		active, err := s.orders.CountActive(ctx, ticketID)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		value = ticket.TotalStock - active
		if value < 0 {
			value = 0
		}
	}

	if err := s.stock.Initialize(ctx, ticketID, value); err != nil {
		span.RecordError(err)
		return 0, err
	}
	logger.Ctx(ctx).Info().Int64("ticket_id", ticketID).Int64("stock", value).Msg("ticket stock initialized")
	return value, nil
}

// ConfirmPayment 记录支付成功信号，只允许 pending -> paid。
// 补偿任务已经取消的订单不能再支付。
func (s *TicketApplicationService) ConfirmPayment(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.ConfirmPayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Pay(s.now()); err != nil {
		return nil, err
	}

	ok, err := s.orders.TransitionStatus(ctx, orderID, domain.StatusPending, domain.StatusPaid)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		current, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrIllegalTransition, orderID, current.Status)
	}

	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("order paid")
	return order, nil
}

// HandleCompensation 处理到期的支付超时检查任务。
// 同一个任务被重复投递时只会回补一次，已支付的订单不受影响。
func (s *TicketApplicationService) HandleCompensation(ctx context.Context, task domain.CompensationTask) (outcome domain.CompensationOutcome, err error) {
	ctx, span := s.tracer.Start(ctx, "app.HandleCompensation", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", task.OrderID),
		attribute.Int64("ticket.id", task.TicketID),
	)
	defer func() {
		label := string(outcome)
		if err != nil {
			label = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "compensation failed")
		}
		s.metrics.CompensationTotal.WithLabelValues(label).Inc()
	}()

	order, err := s.orders.FindByID(ctx, task.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Ctx(ctx).Info().Str("order_id", task.OrderID).Msg("order not found, nothing to compensate")
		return domain.OutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}

	switch order.Status {
	case domain.StatusPending:
		ok, err := s.orders.TransitionStatus(ctx, order.ID, domain.StatusPending, domain.StatusCancelled)
		if err != nil {
			return "", err
		}
		if !ok {
			// 与支付确认竞争失败，或者另一个投递已经取消了订单
			order, err = s.orders.FindByID(ctx, order.ID)
			if err != nil {
				return "", err
			}
			if order.Status != domain.StatusCancelled {
				logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("status", string(order.Status)).Msg("order left pending concurrently, skip compensation")
				return domain.OutcomeSkipped, nil
			}
		}
		return s.reclaim(ctx, order)
	case domain.StatusCancelled:
		// 上一次投递在取消后、回补前中断
		return s.reclaim(ctx, order)
	default:
		logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("status", string(order.Status)).Msg("order no longer pending, skip compensation")
		return domain.OutcomeSkipped, nil
	}
}

func (s *TicketApplicationService) reclaim(ctx context.Context, order *domain.Order) (domain.CompensationOutcome, error) {
	restored, err := s.reclaimer.Reclaim(ctx, order.ID, order.UserID, order.TicketID, order.Quantity)
	if err != nil {
		return "", err
	}
	if !restored {
		logger.Ctx(ctx).Info().Str("order_id", order.ID).Msg("stock already reclaimed for order")
		return domain.OutcomeSkipped, nil
	}
	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Int64("ticket_id", order.TicketID).
		Str("user_id", order.UserID).
		Msg("payment timed out, order cancelled and stock reclaimed")
	return domain.OutcomeRestored, nil
}

func grabResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrTicketNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrWindowNotOpen):
		return "not_started"
	case errors.Is(err, domain.ErrWindowClosed):
		return "ended"
	case errors.Is(err, domain.ErrDuplicateClaim):
		return "duplicate"
	case errors.Is(err, domain.ErrOutOfStock):
		return "sold_out"
	case errors.Is(err, domain.ErrMisconfigured):
		return "misconfigured"
	default:
		return "failed"
	}
}
