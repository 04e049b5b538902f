// internal/service/ticket/domain/order.go
package domain

import (
	"errors"
	"time"
)

// Order 是订单聚合的根实体。每次抢票固定生成数量为 1 的订单。
type Order struct {
	ID         string
	UserID     string
	TicketID   int64
	Quantity   int64
	UnitPrice  float64 // 下单时的票价快照
	TotalPrice float64
	Status     Status
	Serial     string // 人类可读的订单号，例如 SN1849203...
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewOrder 工厂函数：为一次成功的抢票创建待支付订单
func NewOrder(id, serial, userID string, ticket *Ticket, now time.Time) (*Order, error) {
	if id == "" || serial == "" || userID == "" || ticket == nil {
		return nil, errors.New("cannot create order with empty required fields")
	}
	return &Order{
		ID:         id,
		UserID:     userID,
		TicketID:   ticket.ID,
		Quantity:   1,
		UnitPrice:  ticket.Price,
		TotalPrice: ticket.Price,
		Status:     StatusPending,
		Serial:     serial,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Cancel 支付超时取消，只允许从 pending 迁移
func (o *Order) Cancel(now time.Time) error {
	return o.apply(EventCancel, now)
}

// Pay 支付确认，只允许从 pending 迁移
func (o *Order) Pay(now time.Time) error {
	return o.apply(EventPay, now)
}

// MarkAsFailed 将订单标记为失败
func (o *Order) MarkAsFailed(now time.Time) error {
	return o.apply(EventFail, now)
}

func (o *Order) apply(event string, now time.Time) error {
	next, err := Fire(o.Status, event)
	if err != nil {
		return err
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}
