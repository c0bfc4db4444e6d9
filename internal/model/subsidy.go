package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WeeklySubsidyRecord 周补贴发放记录
// 每轮发放对每个持有正积分的用户/商家记录一行
type WeeklySubsidyRecord struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64           `gorm:"index;not null" json:"user_id"`
	WeekStart      time.Time       `gorm:"not null;index" json:"week_start"`
	SubsidyAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subsidy_amount"`
	PointsBefore   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"points_before"`
	PointsDeducted decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"points_deducted"`
	CouponID       int64           `gorm:"not null" json:"coupon_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (WeeklySubsidyRecord) TableName() string {
	return "weekly_subsidy_records"
}
