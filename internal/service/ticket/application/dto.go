package application

import "time"

// GrabTicketResponse 是抢票用例的输出数据
type GrabTicketResponse struct {
	OrderID  string
	OrderSN  string
	TicketID int64
	FireAt   time.Time
	Message  string
}

// StockView 是库存查询的输出数据
type StockView struct {
	TicketID int64
	Stock    int64
}
