package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WithdrawalStatusPendingAuto   = "pending_auto"   // 小额，自动审核队列
	WithdrawalStatusPendingManual = "pending_manual" // 大额，人工审核
	WithdrawalStatusApproved      = "approved"
	WithdrawalStatusRejected      = "rejected"
)

const (
	WithdrawalTypeUser     = "user"     // 提推广余额
	WithdrawalTypeMerchant = "merchant" // 提商家余额
)

// Withdrawal 提现申请表
// 申请时立即冻结（预扣）余额，审核恰好处理一次：
// 通过后资金视为已出系统，拒绝则原额（税前）退回
type Withdrawal struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64           `gorm:"index;not null" json:"user_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`        // 申请金额（税前）
	TaxAmount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"tax_amount"`    // 个税
	ActualAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"actual_amount"` // 实际到账
	WithdrawalType string          `gorm:"type:varchar(20);not null;default:user" json:"withdrawal_type"`
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	AuditRemark    string          `gorm:"type:varchar(128)" json:"audit_remark"`
	ProcessedAt    *time.Time      `json:"processed_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}
