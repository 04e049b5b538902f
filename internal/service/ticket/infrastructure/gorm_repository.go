package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"ticketrush/internal/service/ticket/domain"
)

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormOrderRepository 创建一个新的订单仓储实例
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db, now: time.Now}
}

// Create 在事务内写入订单
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := FromDomainOrder(order)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		return errors.Wrapf(err, "create order %s", order.ID)
	}
	return nil
}

// FindByID 根据 ID 查找订单
func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %s", id)
	}
	return ToDomainOrder(&model), nil
}

// TransitionStatus 使用 WHERE status = from 的条件更新实现比较并交换。
// 非法迁移在访问数据库之前就被拒绝。
func (r *GormOrderRepository) TransitionStatus(ctx context.Context, id string, from, to domain.Status) (bool, error) {
	if err := domain.CheckTransition(from, to); err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "transition order %s from %s to %s", id, from, to)
	}
	return res.RowsAffected == 1, nil
}

// CountActive 统计仍占用库存的订单
func (r *GormOrderRepository) CountActive(ctx context.Context, ticketID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("ticket_id = ? AND status IN ?", ticketID, []string{string(domain.StatusPending), string(domain.StatusPaid)}).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrapf(err, "count active orders of ticket %d", ticketID)
	}
	return count, nil
}

// GormTicketRepository 是 domain.TicketRepository 的 GORM 实现
type GormTicketRepository struct {
	db             *gorm.DB
	defaultTimeout time.Duration
}

// NewGormTicketRepository 创建一个新的票种仓储实例
func NewGormTicketRepository(db *gorm.DB, defaultTimeout time.Duration) *GormTicketRepository {
	return &GormTicketRepository{db: db, defaultTimeout: defaultTimeout}
}

// FindByID 使用 GORM 从数据库中查找票种
func (r *GormTicketRepository) FindByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	var model TicketModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, errors.Wrapf(err, "find ticket %d", id)
	}
	return ToDomainTicket(&model, r.defaultTimeout), nil
}
