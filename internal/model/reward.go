package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RewardTypeReferral = "referral" // 推荐奖励：首次购买会员商品时奖励直接推荐人
	RewardTypeTeam     = "team"     // 团队奖励：奖励升级层数对应的上级
)

const (
	RewardStatusPending  = "pending"
	RewardStatusApproved = "approved"
	RewardStatusRejected = "rejected"
)

// PendingReward 待审核奖励表
// 结算时产生，每个 (订单, 接收人, 类型) 至多一条
// pending → approved 发放优惠券后不可再变，pending → rejected 终态无副作用
type PendingReward struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64           `gorm:"index;not null" json:"user_id"` // 奖励接收人
	RewardType string          `gorm:"type:varchar(20);not null" json:"reward_type"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	OrderID    int64           `gorm:"index;not null" json:"order_id"`
	Layer      *int            `json:"layer"` // 仅团队奖励记录层数
	Status     string          `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PendingReward) TableName() string {
	return "pending_rewards"
}

const (
	CouponTypeUser     = "user"
	CouponTypeMerchant = "merchant"
)

const (
	CouponStatusUnused  = "unused"
	CouponStatusUsed    = "used"
	CouponStatusExpired = "expired"
)

// Coupon 优惠券表，奖励审核通过或周补贴发放时产生，核销在本系统之外
type Coupon struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64           `gorm:"index;not null" json:"user_id"`
	CouponType string          `gorm:"type:varchar(20);not null" json:"coupon_type"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	ValidFrom  time.Time       `gorm:"not null" json:"valid_from"`
	ValidTo    time.Time       `gorm:"not null" json:"valid_to"`
	Status     string          `gorm:"type:varchar(20);index;not null;default:unused" json:"status"`
	UsedAt     *time.Time      `json:"used_at"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Coupon) TableName() string {
	return "coupons"
}
