// internal/service/ticket/domain/event.go
package domain

import "time"

// CompensationTask 是支付超时检查任务，抢票成功时投递一次，到期后由补偿处理器消费。
// 投递语义为至少一次，处理器依靠订单状态和回补标记保证幂等。
type CompensationTask struct {
	TraceID   string    `json:"traceId,omitempty"`
	OrderID   string    `json:"orderId"`
	TicketID  int64     `json:"ticketId"`
	UserID    string    `json:"userId"`
	FireAt    time.Time `json:"fireAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// CompensationOutcome 描述一次补偿执行的结果
type CompensationOutcome string

const (
	// OutcomeRestored 本次执行回补了库存并释放了用户锁
	OutcomeRestored CompensationOutcome = "restored"
	// OutcomeSkipped 订单不存在、已支付或已被回补，无需处理
	OutcomeSkipped CompensationOutcome = "skipped"
)
