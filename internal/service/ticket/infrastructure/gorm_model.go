package infrastructure

import "time"

// TicketModel 是 Ticket 领域对象在数据库中的表示。
type TicketModel struct {
	ID             int64   `gorm:"primaryKey"`
	Name           string  `gorm:"size:255;not null"`
	Description    string  `gorm:"type:text"`
	TotalStock     int64   `gorm:"not null"`
	CurrentStock   int64   `gorm:"not null"` // 仅作展示，实时库存以 Redis 计数器为准
	Price          float64 `gorm:"type:decimal(8,2);not null"`
	StartTime      time.Time
	EndTime        time.Time
	TimeoutMinutes int `gorm:"not null;default:15"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (TicketModel) TableName() string {
	return "tickets"
}

// OrderModel 是 Order 领域对象在数据库中的表示。
type OrderModel struct {
	ID         string  `gorm:"primaryKey;size:36"`
	UserID     string  `gorm:"size:64;not null;index:idx_orders_user_ticket"`
	TicketID   int64   `gorm:"not null;index:idx_orders_user_ticket;index:idx_orders_ticket_status"`
	Quantity   int64   `gorm:"not null;default:1"`
	UnitPrice  float64 `gorm:"type:decimal(8,2);not null"`
	TotalPrice float64 `gorm:"type:decimal(8,2);not null"`
	Status     string  `gorm:"size:16;not null;default:pending;index:idx_orders_ticket_status"`
	OrderSN    string  `gorm:"column:order_sn;size:32;uniqueIndex"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}
