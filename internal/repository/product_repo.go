package repository

import (
	"context"
	"errors"

	"settlecore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ProductInfo 结算需要的商品快照
type ProductInfo struct {
	ProductID       int64
	MerchantID      int64
	UnitPrice       decimal.Decimal
	IsMemberProduct bool
}

// GetActiveWithPrice 取上架商品及其结算单价
// 价格优先取 SKU，没有 SKU 时落回商品基础价；两者都没有视为商品不可用
func (r *ProductRepository) GetActiveWithPrice(ctx context.Context, productID int64) (*ProductInfo, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", productID, model.ProductStatusOn).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductUnavailable
		}
		return nil, err
	}

	price := product.Price
	var sku model.ProductSku
	err = r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id ASC").
		First(&sku).Error
	if err == nil {
		price = &sku.Price
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if price == nil || price.LessThanOrEqual(decimal.Zero) {
		return nil, ErrProductUnavailable
	}

	return &ProductInfo{
		ProductID:       product.ID,
		MerchantID:      product.MerchantID,
		UnitPrice:       *price,
		IsMemberProduct: product.IsMemberProduct,
	}, nil
}
