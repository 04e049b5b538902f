// internal/service/ticket/domain/repository.go
package domain

import "context"

// OrderRepository 定义了订单账本的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Create 在一个数据库事务内写入新订单
	Create(ctx context.Context, order *Order) error

	// FindByID 根据 ID 查找订单，不存在时返回 ErrOrderNotFound
	FindByID(ctx context.Context, id string) (*Order, error)

	// TransitionStatus 条件更新：仅当当前状态仍为 from 时写入 to。
	// 返回 false 表示其他写入方已经抢先迁移了状态。
	TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error)

	// CountActive 统计某票种仍占用库存（pending/paid）的订单数量
	CountActive(ctx context.Context, ticketID int64) (int64, error)
}

// TicketRepository 是票种目录的只读接口
type TicketRepository interface {
	// FindByID 不存在时返回 ErrTicketNotFound
	FindByID(ctx context.Context, id int64) (*Ticket, error)
}
