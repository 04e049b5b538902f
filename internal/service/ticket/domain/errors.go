// internal/service/ticket/domain/errors.go
package domain

import "errors"

// 校验类错误：面向用户，HTTP 422
var (
	ErrWindowNotOpen  = errors.New("the ticket grab has not started yet")
	ErrWindowClosed   = errors.New("the ticket grab has ended")
	ErrDuplicateClaim = errors.New("you have already grabbed this ticket")
	ErrOutOfStock     = errors.New("sorry, this ticket is sold out")
)

// 基础设施类错误：HTTP 500，不向用户暴露细节
var (
	ErrReservationFailed = errors.New("order creation failed, stock has been restored, please retry")
	ErrMisconfigured     = errors.New("ticket configuration violates claim lock ttl > payment timeout")
)

var (
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal order status transition")
)

// IsValidation 判断错误是否属于校验类（窗口未开始/已结束、重复抢购、库存不足）
func IsValidation(err error) bool {
	return errors.Is(err, ErrWindowNotOpen) ||
		errors.Is(err, ErrWindowClosed) ||
		errors.Is(err, ErrDuplicateClaim) ||
		errors.Is(err, ErrOutOfStock)
}
