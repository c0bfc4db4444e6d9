package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	UserStatusNormal        = 1 // 正常
	UserStatusHonorDirector = 9 // 荣誉董事
)

// 用户余额字段名，余额增减接口只接受这四个字段
const (
	BalanceFieldPoints         = "points"
	BalanceFieldPromotion      = "promotion_balance"
	BalanceFieldMerchantPoints = "merchant_points"
	BalanceFieldMerchant       = "merchant_balance"
)

// User 用户表
// 积分和余额是用户的子账户，任何一次操作都不允许把字段扣成负数：
// 扣减要么先校验（硬失败），要么用条件更新（余额不足时不生效）
type User struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Mobile           string          `gorm:"type:varchar(20);index" json:"mobile"`
	Name             string          `gorm:"type:varchar(64)" json:"name"`
	MemberLevel      int             `gorm:"not null;default:0" json:"member_level"`                              // 会员星级 0-6
	Points           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0.0000" json:"points"`            // 用户积分
	PromotionBalance decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0.0000" json:"promotion_balance"` // 推广余额（可提现）
	MerchantPoints   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0.0000" json:"merchant_points"`   // 商家积分
	MerchantBalance  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0.0000" json:"merchant_balance"`  // 商家余额（可提现）
	Status           int             `gorm:"not null;default:1" json:"status"`
	LevelChangedAt   *time.Time      `json:"level_changed_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
