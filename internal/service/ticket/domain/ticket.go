// internal/service/ticket/domain/ticket.go
package domain

import (
	"time"
)

// Ticket 是票种（被抢购的资源），由外部目录维护，对抢票核心只读。
type Ticket struct {
	ID          int64
	Name        string
	Description string
	TotalStock  int64
	Price       float64
	StartTime   time.Time
	EndTime     time.Time
	// PaymentTimeout 抢票成功后等待支付的时长，超时由补偿任务回收库存
	PaymentTimeout time.Duration
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CheckWindow 校验 now 是否落在抢票时间窗口内（闭区间）
func (t *Ticket) CheckWindow(now time.Time) error {
	if now.Before(t.StartTime) {
		return ErrWindowNotOpen
	}
	if now.After(t.EndTime) {
		return ErrWindowClosed
	}
	return nil
}

// CheckLockTTL 校验配置约束 lockTTL > PaymentTimeout：用户锁不能早于补偿任务过期。
func (t *Ticket) CheckLockTTL(lockTTL time.Duration) error {
	if lockTTL <= t.PaymentTimeout {
		return ErrMisconfigured
	}
	return nil
}
