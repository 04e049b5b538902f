package infrastructure

import (
	"time"

	"ticketrush/internal/service/ticket/domain"
)

// ToDomainTicket 将数据库模型转换为领域模型。timeout_minutes 未设置时使用 defaultTimeout。
func ToDomainTicket(model *TicketModel, defaultTimeout time.Duration) *domain.Ticket {
	if model == nil {
		return nil
	}
	timeout := time.Duration(model.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &domain.Ticket{
		ID:             model.ID,
		Name:           model.Name,
		Description:    model.Description,
		TotalStock:     model.TotalStock,
		Price:          model.Price,
		StartTime:      model.StartTime,
		EndTime:        model.EndTime,
		PaymentTimeout: timeout,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

// ToDomainOrder 将数据库模型转换为领域模型
func ToDomainOrder(model *OrderModel) *domain.Order {
	if model == nil {
		return nil
	}
	return &domain.Order{
		ID:         model.ID,
		UserID:     model.UserID,
		TicketID:   model.TicketID,
		Quantity:   model.Quantity,
		UnitPrice:  model.UnitPrice,
		TotalPrice: model.TotalPrice,
		Status:     domain.Status(model.Status),
		Serial:     model.OrderSN,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

// FromDomainOrder 将领域模型转换为数据库模型
func FromDomainOrder(order *domain.Order) *OrderModel {
	return &OrderModel{
		ID:         order.ID,
		UserID:     order.UserID,
		TicketID:   order.TicketID,
		Quantity:   order.Quantity,
		UnitPrice:  order.UnitPrice,
		TotalPrice: order.TotalPrice,
		Status:     string(order.Status),
		OrderSN:    order.Serial,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}
