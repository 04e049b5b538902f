package infrastructure

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ticketrush/internal/service/ticket/domain"
)

type cachedTicket struct {
	ticket    *domain.Ticket
	expiresAt time.Time
}

// CachedTicketRepository 在票种目录前加一层本地缓存。
// 抢购高峰时同一票种的并发读取通过 singleflight 合并为一次数据库查询。
type CachedTicketRepository struct {
	inner         domain.TicketRepository
	ttl           time.Duration
	lookupTimeout time.Duration
	now           func() time.Time

	mu      sync.RWMutex
	entries map[int64]cachedTicket
	group   singleflight.Group
}

// NewCachedTicketRepository 创建缓存仓储，ttl <= 0 时使用 30 秒
func NewCachedTicketRepository(inner domain.TicketRepository, ttl time.Duration) *CachedTicketRepository {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedTicketRepository{
		inner:         inner,
		ttl:           ttl,
		lookupTimeout: 5 * time.Second,
		now:           time.Now,
		entries:       make(map[int64]cachedTicket),
	}
}

// FindByID 实现了 domain.TicketRepository。不存在的票种不缓存。
func (r *CachedTicketRepository) FindByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return copyTicket(entry.ticket), nil
	}

	// 合并后的查询不受任何单个调用方取消的影响，每个调用方只等待自己的 ctx
	ch := r.group.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
		defer cancel()
		t, err := r.inner.FindByID(lookupCtx, id)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.entries[id] = cachedTicket{ticket: t, expiresAt: r.now().Add(r.ttl)}
		r.mu.Unlock()
		return t, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyTicket(res.Val.(*domain.Ticket)), nil
	}
}

// Invalidate 删除某个票种的缓存
func (r *CachedTicketRepository) Invalidate(id int64) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	return &c
}
