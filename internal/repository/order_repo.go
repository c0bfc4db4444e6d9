package repository

import (
	"context"
	"errors"
	"time"

	"settlecore/internal/model"

	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) CreateItem(ctx context.Context, tx *gorm.DB, item *model.OrderItem) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("order_number = ?", orderNo).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetByOrderNoForUpdate 锁定订单行，退款/审核期间防止并发双重处理
func (r *OrderRepository) GetByOrderNoForUpdate(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error) {
	var order model.Order
	err := forUpdate(tx.WithContext(ctx)).Where("order_number = ?", orderNo).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// CountMemberOrdersSince 统计某用户自指定时刻起的会员订单数（不含已退款）
// 会员商品24小时限购用，必须在持有买家行锁的事务内统计，否则并发结算会双双越过上限
func (r *OrderRepository) CountMemberOrdersSince(ctx context.Context, tx *gorm.DB, userID int64, since time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("user_id = ? AND is_member_order = ? AND created_at >= ? AND refund_status != ?",
			userID, true, since, model.RefundStatusRefunded).
		Count(&count).Error
	return count, err
}

// MarkRefunded 标记订单已退款，条件更新防止双重退款
func (r *OrderRepository) MarkRefunded(ctx context.Context, tx *gorm.DB, orderID int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND refund_status != ?", orderID, model.RefundStatusRefunded).
		Update("refund_status", model.RefundStatusRefunded)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
