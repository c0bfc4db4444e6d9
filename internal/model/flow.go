package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FlowTypeIncome  = "income"
	FlowTypeExpense = "expense"
	FlowTypeCoupon  = "coupon"
)

// AccountFlow 资金流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 每一次余额变更必须对应恰好一条流水
// 3. balance_after 必须在同一事务内取得 —— 并发写入下事后补查会拿到错的快照
type AccountFlow struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountType  string          `gorm:"type:varchar(64);index;not null" json:"account_type"`
	RelatedUser  *int64          `gorm:"index" json:"related_user"`                        // 用户余额流水时记录用户ID，池子流水可为空
	ChangeAmount decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"change_amount"` // 正数入账，负数出账
	BalanceAfter decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance_after"`
	FlowType     string          `gorm:"type:varchar(20);not null" json:"flow_type"`
	Remark       string          `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AccountFlow) TableName() string {
	return "account_flow"
}

const (
	PointsTypeMember   = "member"
	PointsTypeMerchant = "merchant"
)

// PointsLog 积分流水表，精度到小数点后4位
type PointsLog struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64           `gorm:"index;not null" json:"user_id"`
	ChangeAmount decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"change_amount"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance_after"`
	PointsType   string          `gorm:"type:varchar(20);not null" json:"points_type"`
	Reason       string          `gorm:"type:varchar(128)" json:"reason"`
	RelatedOrder *int64          `gorm:"index" json:"related_order"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointsLog) TableName() string {
	return "points_log"
}
