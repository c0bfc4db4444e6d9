package repository

import (
	"context"

	"settlecore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FlowRepository 流水账本：资金流水 + 积分流水
// 只追加，任何余额变更必须在同一事务内写入恰好一条流水
type FlowRepository struct {
	db *gorm.DB
}

func NewFlowRepository(db *gorm.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

func (r *FlowRepository) CreateAccountFlow(ctx context.Context, tx *gorm.DB, flow *model.AccountFlow) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(flow).Error
}

func (r *FlowRepository) CreatePointsLog(ctx context.Context, tx *gorm.DB, log *model.PointsLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(log).Error
}

func (r *FlowRepository) ListByAccountType(ctx context.Context, accountType string, limit int) ([]*model.AccountFlow, error) {
	var flows []*model.AccountFlow
	err := r.db.WithContext(ctx).
		Where("account_type = ?", accountType).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&flows).Error
	return flows, err
}

func (r *FlowRepository) ListRecent(ctx context.Context, limit int) ([]*model.AccountFlow, error) {
	var flows []*model.AccountFlow
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&flows).Error
	return flows, err
}

// FlowSummary 指定账户某时间段的收支汇总
type FlowSummary struct {
	TotalTransactions int64
	TotalIncome       decimal.Decimal
	TotalExpense      decimal.Decimal
}

func (r *FlowRepository) SummarizeByAccountType(ctx context.Context, accountType string, start, end string) (*FlowSummary, error) {
	var row struct {
		Total   int64
		Income  decimal.NullDecimal
		Expense decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).
		Model(&model.AccountFlow{}).
		Select("COUNT(*) AS total, "+
			"SUM(CASE WHEN flow_type = 'income' THEN change_amount ELSE 0 END) AS income, "+
			"SUM(CASE WHEN flow_type = 'expense' THEN change_amount ELSE 0 END) AS expense").
		Where("account_type = ? AND DATE(created_at) BETWEEN ? AND ?", accountType, start, end).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	summary := &FlowSummary{TotalTransactions: row.Total}
	if row.Income.Valid {
		summary.TotalIncome = row.Income.Decimal
	}
	if row.Expense.Valid {
		summary.TotalExpense = row.Expense.Decimal
	}
	return summary, nil
}

func (r *FlowRepository) ListByAccountTypeBetween(ctx context.Context, accountType string, start, end string) ([]*model.AccountFlow, error) {
	var flows []*model.AccountFlow
	err := r.db.WithContext(ctx).
		Where("account_type = ? AND DATE(created_at) BETWEEN ? AND ?", accountType, start, end).
		Order("created_at DESC, id DESC").
		Find(&flows).Error
	return flows, err
}

func (r *FlowRepository) ListPointsLog(ctx context.Context, userID int64, limit int) ([]*model.PointsLog, error) {
	var logs []*model.PointsLog
	query := r.db.WithContext(ctx).Model(&model.PointsLog{})
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
