package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProductStatusOff = 0
	ProductStatusOn  = 1
)

// Product 商品表
// MerchantID 为平台商户ID时是平台自营商品
type Product struct {
	ID              int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string           `gorm:"type:varchar(128);not null" json:"name"`
	MerchantID      int64            `gorm:"index;not null" json:"merchant_id"`
	Price           *decimal.Decimal `gorm:"type:decimal(18,4)" json:"price"` // 基础价，可能为空（价格以 SKU 为准）
	IsMemberProduct bool             `gorm:"not null;default:false" json:"is_member_product"`
	Status          int              `gorm:"not null;default:1" json:"status"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// ProductSku 商品SKU表，存在时价格优先于商品基础价
type ProductSku struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64           `gorm:"index;not null" json:"product_id"`
	Price     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"price"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (ProductSku) TableName() string {
	return "product_skus"
}
