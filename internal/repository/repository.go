package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound         = errors.New("用户不存在")
	ErrUserBalanceNotEnough = errors.New("用户余额不足")
	ErrPoolBalanceNotEnough = errors.New("池子余额不足")
	ErrInvalidBalanceField  = errors.New("非法的余额字段")
	ErrOrderNotFound        = errors.New("订单不存在")
	ErrProductUnavailable   = errors.New("商品不存在、已下架或无价格信息")
	ErrWithdrawalNotFound   = errors.New("提现记录不存在")
	ErrReferralExists       = errors.New("用户已存在推荐人")
)

// forUpdate 给查询加行锁
// sqlite（测试环境）不支持 FOR UPDATE，单写锁天然串行，直接跳过
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
