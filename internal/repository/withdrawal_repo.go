package repository

import (
	"context"
	"errors"
	"time"

	"settlecore/internal/model"

	"gorm.io/gorm"
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, withdrawal *model.Withdrawal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(withdrawal).Error
}

// GetForUpdate 锁定提现记录，审核必须恰好处理一次
func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Withdrawal, error) {
	var withdrawal model.Withdrawal
	err := forUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&withdrawal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

// Resolve 审核落定：仅 pending 状态可被处理
func (r *WithdrawalRepository) Resolve(ctx context.Context, tx *gorm.DB, id int64, status, remark string) error {
	if tx == nil {
		tx = r.db
	}
	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Withdrawal{}).
		Where("id = ? AND status IN ?", id,
			[]string{model.WithdrawalStatusPendingAuto, model.WithdrawalStatusPendingManual}).
		Updates(map[string]interface{}{
			"status":       status,
			"audit_remark": remark,
			"processed_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*model.Withdrawal, error) {
	var withdrawals []*model.Withdrawal
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Find(&withdrawals).Error
	return withdrawals, err
}
