package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"ticketrush/internal/pkg/redis"
)

const (
	decrementScriptName = "ticket_decrement"
	reclaimScriptName   = "ticket_reclaim"
	releaseScriptName   = "ticket_release"
)

// StockKey 库存计数器。所有 key 共享 {ticketID} hash tag，在集群中落在同一个 slot。
func StockKey(ticketID int64) string {
	return fmt.Sprintf("ticket:{%d}:stock", ticketID)
}

// ClaimKey 用户抢购锁
func ClaimKey(ticketID int64, userID string) string {
	return fmt.Sprintf("ticket:{%d}:claim:%s", ticketID, userID)
}

// RestoredKey 订单回补标记，存在即表示该订单的库存已回补过
func RestoredKey(ticketID int64, orderID string) string {
	return fmt.Sprintf("ticket:{%d}:restored:%s", ticketID, orderID)
}

// TicketRedisAdapter 同时实现了 port.StockStore、port.ClaimLockStore 和 port.Reclaimer。
type TicketRedisAdapter struct {
	redisClient *redis.Client
	markerTTL   time.Duration
}

// NewTicketRedisAdapter 创建适配器并加载 Lua 脚本。
// markerTTL 是回补标记的保留时长，必须覆盖补偿任务可能被重复投递的窗口。
func NewTicketRedisAdapter(redisClient *redis.Client, markerTTL time.Duration) (*TicketRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(decrementScriptName, decrementScript); err != nil {
		return nil, errors.Wrap(err, "failed to load critical decrement script")
	}
	if err := redisClient.LoadScriptFromContent(reclaimScriptName, reclaimScript); err != nil {
		return nil, errors.Wrap(err, "failed to load critical reclaim script")
	}
	if err := redisClient.LoadScriptFromContent(releaseScriptName, releaseScript); err != nil {
		return nil, errors.Wrap(err, "failed to load critical release script")
	}
	if markerTTL <= 0 {
		markerTTL = 7 * 24 * time.Hour
	}
	return &TicketRedisAdapter{
		redisClient: redisClient,
		markerTTL:   markerTTL,
	}, nil
}

// TryDecrement 实现了 port.StockStore
func (a *TicketRedisAdapter) TryDecrement(ctx context.Context, ticketID int64) (bool, error) {
	result, err := a.redisClient.RunScript(ctx, decrementScriptName, []string{StockKey(ticketID)})
	if err != nil {
		return false, errors.Wrapf(err, "decrement stock of ticket %d", ticketID)
	}
	return scriptFlag(result)
}

// Increment 实现了 port.StockStore
func (a *TicketRedisAdapter) Increment(ctx context.Context, ticketID int64, amount int64) error {
	if err := a.redisClient.GetClient().IncrBy(ctx, StockKey(ticketID), amount).Err(); err != nil {
		return errors.Wrapf(err, "increment stock of ticket %d by %d", ticketID, amount)
	}
	return nil
}

// Read 实现了 port.StockStore
func (a *TicketRedisAdapter) Read(ctx context.Context, ticketID int64) (int64, error) {
	stock, err := a.redisClient.GetClient().Get(ctx, StockKey(ticketID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read stock of ticket %d", ticketID)
	}
	return stock, nil
}

// Initialize 实现了 port.StockStore
func (a *TicketRedisAdapter) Initialize(ctx context.Context, ticketID int64, stock int64) error {
	if stock < 0 {
		return fmt.Errorf("stock of ticket %d must not be negative: %d", ticketID, stock)
	}
	if err := a.redisClient.GetClient().Set(ctx, StockKey(ticketID), stock, 0).Err(); err != nil {
		return errors.Wrapf(err, "initialize stock of ticket %d", ticketID)
	}
	return nil
}

// TryAcquire 实现了 port.ClaimLockStore，等价于 SET key token NX EX ttl
func (a *TicketRedisAdapter) TryAcquire(ctx context.Context, userID string, ticketID int64, token string, ttl time.Duration) (bool, error) {
	ok, err := a.redisClient.GetClient().SetNX(ctx, ClaimKey(ticketID, userID), token, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "acquire claim lock of user %s on ticket %d", userID, ticketID)
	}
	return ok, nil
}

// Release 实现了 port.ClaimLockStore，只删除 token 持有的锁
func (a *TicketRedisAdapter) Release(ctx context.Context, userID string, ticketID int64, token string) error {
	if _, err := a.redisClient.RunScript(ctx, releaseScriptName, []string{ClaimKey(ticketID, userID)}, token); err != nil {
		return errors.Wrapf(err, "release claim lock of user %s on ticket %d", userID, ticketID)
	}
	return nil
}

// Reclaim 实现了 port.Reclaimer
func (a *TicketRedisAdapter) Reclaim(ctx context.Context, orderID, userID string, ticketID, quantity int64) (bool, error) {
	keys := []string{RestoredKey(ticketID, orderID), StockKey(ticketID), ClaimKey(ticketID, userID)}
	ttlSeconds := int64(a.markerTTL / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := a.redisClient.RunScript(ctx, reclaimScriptName, keys, quantity, ttlSeconds)
	if err != nil {
		return false, errors.Wrapf(err, "reclaim order %s", orderID)
	}
	return scriptFlag(result)
}

func scriptFlag(result interface{}) (bool, error) {
	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	switch code {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unknown result code from Lua script: %d", code)
	}
}

var decrementScript = `
-- KEYS[1]: 库存 key, 例如: ticket:{42}:stock
local stock = tonumber(redis.call('get', KEYS[1]))
if stock and stock > 0 then
    redis.call('decr', KEYS[1])
    return 1
end
return 0
`

var reclaimScript = `
-- KEYS[1]: 回补标记, 例如: ticket:{42}:restored:<orderID>
-- KEYS[2]: 库存 key
-- KEYS[3]: 用户锁
-- ARGV[1]: 回补数量
-- ARGV[2]: 标记过期时间(秒)
if not redis.call('set', KEYS[1], '1', 'NX', 'EX', ARGV[2]) then
    return 0 -- 已经回补过
end
redis.call('incrby', KEYS[2], ARGV[1])
redis.call('del', KEYS[3])
return 1
`

var releaseScript = `
-- KEYS[1]: 用户锁
-- ARGV[1]: 加锁时写入的 token
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`
