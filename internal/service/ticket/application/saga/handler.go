package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/service/ticket/domain"
	"ticketrush/internal/service/ticket/domain/port"
)

// ReservationContext 在一次抢票流程中传递上下文数据。
type ReservationContext struct {
	Ctx     context.Context
	Tracer  trace.Tracer
	Ticket  *domain.Ticket
	UserID  string
	Now     time.Time
	LockTTL time.Duration
	// LockToken 标识本次请求持有的用户锁，释放时只删除自己的锁
	LockToken string

	// 由各个步骤填充
	Order  *domain.Order
	FireAt time.Time

	// 依赖出站端口
	Locks port.ClaimLockStore
	Stock port.StockStore

	compensations []func(ctx context.Context) error
	compLock      sync.Mutex
}

// AddCompensation 注册补偿操作，后注册的先执行
func (c *ReservationContext) AddCompensation(comp func(ctx context.Context) error) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context) error{comp}, c.compensations...)
}

// TriggerCompensation 逆序执行所有已注册的补偿操作，单个失败不影响后续操作。
func (c *ReservationContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().
		Int64("ticket_id", c.Ticket.ID).
		Str("user_id", c.UserID).
		Int("count", len(c.compensations)).
		Msg("executing reservation compensations")
	for _, comp := range c.compensations {
		if err := comp(ctx); err != nil {
			// 补偿失败意味着库存或锁需要人工介入
			logger.Alert(ctx).Err(err).
				Int64("ticket_id", c.Ticket.ID).
				Str("user_id", c.UserID).
				Msg("reservation compensation failed")
		}
	}
	c.compensations = nil
}

// Handler 和 NextHandler 组成责任链，每个步骤成功后调用下一个。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(rc *ReservationContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(rc *ReservationContext) error {
	if h.next != nil {
		return h.next.Handle(rc)
	}
	return nil
}
