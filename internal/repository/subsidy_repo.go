package repository

import (
	"context"

	"settlecore/internal/model"

	"gorm.io/gorm"
)

type SubsidyRepository struct {
	db *gorm.DB
}

func NewSubsidyRepository(db *gorm.DB) *SubsidyRepository {
	return &SubsidyRepository{db: db}
}

func (r *SubsidyRepository) Create(ctx context.Context, tx *gorm.DB, record *model.WeeklySubsidyRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

// List 查询补贴发放记录，userID 为0时不限用户
func (r *SubsidyRepository) List(ctx context.Context, userID int64, limit int) ([]*model.WeeklySubsidyRecord, error) {
	query := r.db.WithContext(ctx).Model(&model.WeeklySubsidyRecord{})
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	var records []*model.WeeklySubsidyRecord
	err := query.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}
