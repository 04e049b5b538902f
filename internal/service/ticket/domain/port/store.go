package port

import (
	"context"
	"time"
)

// StockStore 是库存计数器的出站端口。
// 所有修改都必须是单条原子操作，实现方保证计数器永远不会被扣成负数。
type StockStore interface {
	// TryDecrement 库存大于 0 时扣减 1 并返回 true，否则不修改并返回 false
	TryDecrement(ctx context.Context, ticketID int64) (bool, error)

	// Increment 是 TryDecrement 的补偿操作
	Increment(ctx context.Context, ticketID int64, amount int64) error

	// Read 读取当前库存，计数器不存在时返回 0
	Read(ctx context.Context, ticketID int64) (int64, error)

	// Initialize 覆盖写入库存（管理用）
	Initialize(ctx context.Context, ticketID int64, stock int64) error
}

// ClaimLockStore 是“每个用户每个票种只能抢一次”的锁端口
type ClaimLockStore interface {
	// TryAcquire 锁不存在时以 token 为值创建并返回 true；已存在时返回 false
	TryAcquire(ctx context.Context, userID string, ticketID int64, token string, ttl time.Duration) (bool, error)

	// Release 仅当锁的值仍为 token 时删除，锁不存在或属于其他请求时不报错
	Release(ctx context.Context, userID string, ticketID int64, token string) error
}

// Reclaimer 在一次原子操作中回补订单占用的库存并释放用户锁。
// 同一个订单只会生效一次，重复调用返回 false。
type Reclaimer interface {
	Reclaim(ctx context.Context, orderID, userID string, ticketID, quantity int64) (bool, error)
}
