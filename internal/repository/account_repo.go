package repository

import (
	"context"
	"errors"

	"settlecore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 池子账户展示名，首次入账自动建账时使用
var accountNames = map[string]string{
	model.AccountPlatformRevenue: "平台收入池",
	model.AccountPublicWelfare:   "公益基金",
	model.AccountMaintain:        "维护基金",
	model.AccountSubsidy:         "补贴池",
	model.AccountDirector:        "董事池",
	model.AccountShop:            "门店池",
	model.AccountCity:            "城市池",
	model.AccountBranch:          "分部池",
	model.AccountFund:            "储备基金",
	model.AccountCompanyPoints:   "公司积分",
	model.AccountCompanyBalance:  "公司余额",
}

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetBalance 查询池子余额，账户不存在视为0
func (r *AccountRepository) GetBalance(ctx context.Context, tx *gorm.DB, accountType string) (decimal.Decimal, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.FinanceAccount
	err := tx.WithContext(ctx).Where("account_type = ?", accountType).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// ensure 懒建账：首次入账时插入一条零余额记录
func (r *AccountRepository) ensure(ctx context.Context, tx *gorm.DB, accountType string) error {
	name := accountNames[accountType]
	if name == "" {
		name = accountType
	}
	account := &model.FinanceAccount{
		AccountType: accountType,
		AccountName: name,
		Balance:     decimal.Zero,
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_type"}},
			DoNothing: true,
		}).
		Create(account).Error
}

// AddBalance 池子余额原子增减，返回变更后余额
//
// 【关键点】扣减用条件更新，余额不足时不生效并返回 ErrPoolBalanceNotEnough；
// 变更后余额在同一事务内读取 —— UPDATE 持有的行锁保持到提交，
// 不会出现并发写入插队导致流水快照错乱
func (r *AccountRepository) AddBalance(ctx context.Context, tx *gorm.DB, accountType string, delta decimal.Decimal) (decimal.Decimal, error) {
	if tx == nil {
		tx = r.db
	}
	if err := r.ensure(ctx, tx, accountType); err != nil {
		return decimal.Zero, err
	}

	query := tx.WithContext(ctx).
		Model(&model.FinanceAccount{}).
		Where("account_type = ?", accountType)
	if delta.IsNegative() {
		query = query.Where("balance >= ?", delta.Neg())
	}

	result := query.Update("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		return decimal.Zero, ErrPoolBalanceNotEnough
	}

	var account model.FinanceAccount
	err := tx.WithContext(ctx).Where("account_type = ?", accountType).First(&account).Error
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// ListPositive 查询余额为正的池子账户（财务总览用）
func (r *AccountRepository) ListPositive(ctx context.Context) ([]*model.FinanceAccount, error) {
	var accounts []*model.FinanceAccount
	err := r.db.WithContext(ctx).
		Where("balance > 0").
		Order("account_type ASC").
		Find(&accounts).Error
	return accounts, err
}
