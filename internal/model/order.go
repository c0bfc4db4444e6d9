package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusRefund    = "refund"
)

// 退款状态，独立于订单状态流转
const (
	RefundStatusNone     = ""
	RefundStatusApplied  = "applied"
	RefundStatusSuccess  = "refund_success"
	RefundStatusRejected = "rejected"
	RefundStatusRefunded = "refunded"
)

// Order 订单表
// 结算时一次性写入，之后只有退款/审核流程会改 status 和 refund_status，永不删除
type Order struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_number"`
	UserID         int64           `gorm:"index;not null" json:"user_id"`
	MerchantID     int64           `gorm:"index;not null" json:"merchant_id"`                  // 平台商户ID也是合法值
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_amount"`    // 实付金额 = 原价 - 积分抵扣
	OriginalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"original_amount"` // 原价 = 单价 × 数量
	PointsDiscount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0.0000" json:"points_discount"`
	IsMemberOrder  bool            `gorm:"not null;default:false" json:"is_member_order"`
	Status         string          `gorm:"type:varchar(32);index;not null" json:"status"`
	RefundStatus   string          `gorm:"type:varchar(32);not null;default:''" json:"refund_status"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem 订单明细，结算时随订单写入一行
type OrderItem struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    int64           `gorm:"index;not null" json:"order_id"`
	ProductID  int64           `gorm:"not null" json:"product_id"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_price"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
