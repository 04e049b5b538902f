// internal/service/ticket/domain/state.go
package domain

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// Status 定义了订单的生命周期状态，以小写字符串存储在 orders.status 列
type Status string

const (
	StatusPending   Status = "pending"   // 已抢到票，等待支付
	StatusPaid      Status = "paid"      // 已支付
	StatusCancelled Status = "cancelled" // 支付超时，库存已回补
	StatusRefunded  Status = "refunded"  // 已退款
	StatusFailed    Status = "failed"    // 处理失败
)

// 订单状态机事件
const (
	EventPay    = "pay"
	EventCancel = "cancel"
	EventFail   = "fail"
	EventRefund = "refund"
)

// orderEvents 是唯一合法的状态迁移表，任何不在表中的写入都会被拒绝。
// 状态只会离开 pending，不会回退。
var orderEvents = fsm.Events{
	{Name: EventPay, Src: []string{string(StatusPending)}, Dst: string(StatusPaid)},
	{Name: EventCancel, Src: []string{string(StatusPending)}, Dst: string(StatusCancelled)},
	{Name: EventFail, Src: []string{string(StatusPending)}, Dst: string(StatusFailed)},
	{Name: EventRefund, Src: []string{string(StatusPaid)}, Dst: string(StatusRefunded)},
}

// Valid 判断是否为已声明的状态
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

// Holding 表示该状态的订单仍然占用一张库存
func (s Status) Holding() bool {
	return s == StatusPending || s == StatusPaid
}

// Fire 在 current 状态上触发 event，返回迁移后的状态。
// 每次调用都构造新的 FSM，因此可以被并发调用。
func Fire(current Status, event string) (Status, error) {
	machine := fsm.NewFSM(string(current), orderEvents, fsm.Callbacks{})
	if err := machine.Event(context.Background(), event); err != nil {
		return current, fmt.Errorf("%w: %s on %s: %v", ErrIllegalTransition, event, current, err)
	}
	return Status(machine.Current()), nil
}

// EventFor 找到从 from 迁移到 to 的事件名
func EventFor(from, to Status) (string, error) {
	for _, e := range orderEvents {
		if e.Dst != string(to) {
			continue
		}
		for _, src := range e.Src {
			if src == string(from) {
				return e.Name, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// CheckTransition 校验 from -> to 是否为声明过的迁移
func CheckTransition(from, to Status) error {
	event, err := EventFor(from, to)
	if err != nil {
		return err
	}
	_, err = Fire(from, event)
	return err
}
