package repository

import (
	"context"

	"settlecore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) Create(ctx context.Context, tx *gorm.DB, reward *model.PendingReward) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(reward).Error
}

// GetPendingByIDs 按ID集合取待审核奖励，已处理的行被过滤掉
func (r *RewardRepository) GetPendingByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*model.PendingReward, error) {
	if tx == nil {
		tx = r.db
	}
	var rewards []*model.PendingReward
	err := tx.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, model.RewardStatusPending).
		Find(&rewards).Error
	return rewards, err
}

// MarkApproved 单条置为已批准，pending 之外的状态不允许再变
func (r *RewardRepository) MarkApproved(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.PendingReward{}).
		Where("id = ? AND status = ?", id, model.RewardStatusPending).
		Update("status", model.RewardStatusApproved).Error
}

// MarkRejectedByIDs 批量拒绝，终态，无任何资金副作用
func (r *RewardRepository) MarkRejectedByIDs(ctx context.Context, tx *gorm.DB, ids []int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.PendingReward{}).
		Where("id IN ? AND status = ?", ids, model.RewardStatusPending).
		Update("status", model.RewardStatusRejected).Error
}

// ListByOrderAndType 某订单产生的指定类型奖励（退款追回用）
func (r *RewardRepository) ListByOrderAndType(ctx context.Context, tx *gorm.DB, orderID int64, rewardType string) ([]*model.PendingReward, error) {
	if tx == nil {
		tx = r.db
	}
	var rewards []*model.PendingReward
	err := tx.WithContext(ctx).
		Where("order_id = ? AND reward_type = ?", orderID, rewardType).
		Find(&rewards).Error
	return rewards, err
}

func (r *RewardRepository) ListByStatus(ctx context.Context, status, rewardType string, limit int) ([]*model.PendingReward, error) {
	query := r.db.WithContext(ctx).Where("status = ?", status)
	if rewardType != "" {
		query = query.Where("reward_type = ?", rewardType)
	}
	var rewards []*model.PendingReward
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rewards).Error
	return rewards, err
}

// ==================== 优惠券 ====================

func (r *RewardRepository) CreateCoupon(ctx context.Context, tx *gorm.DB, coupon *model.Coupon) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(coupon).Error
}

func (r *RewardRepository) ListCouponsByUser(ctx context.Context, userID int64, status string) ([]*model.Coupon, error) {
	var coupons []*model.Coupon
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("created_at DESC").
		Find(&coupons).Error
	return coupons, err
}

// CouponStats 未使用优惠券统计
type CouponStats struct {
	Count       int64
	TotalAmount decimal.Decimal
}

func (r *RewardRepository) UnusedCouponStats(ctx context.Context, userID int64) (*CouponStats, error) {
	var row struct {
		Count int64
		Total decimal.NullDecimal
	}
	query := r.db.WithContext(ctx).
		Model(&model.Coupon{}).
		Select("COUNT(*) AS count, SUM(amount) AS total").
		Where("status = ?", model.CouponStatusUnused)
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Scan(&row).Error; err != nil {
		return nil, err
	}
	stats := &CouponStats{Count: row.Count}
	if row.Total.Valid {
		stats.TotalAmount = row.Total.Decimal
	}
	return stats, nil
}
