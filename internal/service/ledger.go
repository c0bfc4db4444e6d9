package service

import (
	"context"

	"settlecore/internal/model"
	"settlecore/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger 账本：余额变更与流水落账的唯一入口
//
// 【重要】每一次余额变更必须产生恰好一条流水，且 balance_after 取自
// 变更所在事务内的原子更新读回 —— 不允许事务外补查快照
type Ledger struct {
	accountRepo *repository.AccountRepository
	userRepo    *repository.UserRepository
	flowRepo    *repository.FlowRepository
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		accountRepo: repository.NewAccountRepository(db),
		userRepo:    repository.NewUserRepository(db),
		flowRepo:    repository.NewFlowRepository(db),
	}
}

func flowTypeBySign(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return model.FlowTypeExpense
	}
	return model.FlowTypeIncome
}

// AddPool 池子账户增减并记录流水，返回变更后余额
// 扣减在余额不足时返回 repository.ErrPoolBalanceNotEnough
func (l *Ledger) AddPool(ctx context.Context, tx *gorm.DB, accountType string, amount decimal.Decimal, remark string, relatedUser *int64) (decimal.Decimal, error) {
	balanceAfter, err := l.accountRepo.AddBalance(ctx, tx, accountType, amount)
	if err != nil {
		return decimal.Zero, err
	}
	err = l.flowRepo.CreateAccountFlow(ctx, tx, &model.AccountFlow{
		AccountType:  accountType,
		RelatedUser:  relatedUser,
		ChangeAmount: amount,
		BalanceAfter: balanceAfter,
		FlowType:     flowTypeBySign(amount),
		Remark:       remark,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balanceAfter, nil
}

// AddUserBalance 用户余额字段增减并记录资金流水，返回变更后的值
func (l *Ledger) AddUserBalance(ctx context.Context, tx *gorm.DB, userID int64, field string, delta decimal.Decimal, remark string) (decimal.Decimal, error) {
	balanceAfter, err := l.userRepo.AddBalanceField(ctx, tx, userID, field, delta)
	if err != nil {
		return decimal.Zero, err
	}
	err = l.flowRepo.CreateAccountFlow(ctx, tx, &model.AccountFlow{
		AccountType:  field,
		RelatedUser:  &userID,
		ChangeAmount: delta,
		BalanceAfter: balanceAfter,
		FlowType:     flowTypeBySign(delta),
		Remark:       remark,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balanceAfter, nil
}

// TryDeductUserBalance 尽力扣减用户余额：不足时不生效、不报错、不记流水
// 返回是否扣成，退款时的奖励追回走这里
func (l *Ledger) TryDeductUserBalance(ctx context.Context, tx *gorm.DB, userID int64, field string, amount decimal.Decimal, remark string) (bool, error) {
	deducted, balanceAfter, err := l.userRepo.TryDeduct(ctx, tx, userID, field, amount)
	if err != nil || !deducted {
		return false, err
	}
	err = l.flowRepo.CreateAccountFlow(ctx, tx, &model.AccountFlow{
		AccountType:  field,
		RelatedUser:  &userID,
		ChangeAmount: amount.Neg(),
		BalanceAfter: balanceAfter,
		FlowType:     model.FlowTypeExpense,
		Remark:       remark,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddUserPoints 积分增减并写积分流水，返回变更后积分
func (l *Ledger) AddUserPoints(ctx context.Context, tx *gorm.DB, userID int64, field string, delta decimal.Decimal, pointsType, reason string, relatedOrder *int64) (decimal.Decimal, error) {
	balanceAfter, err := l.userRepo.AddBalanceField(ctx, tx, userID, field, delta)
	if err != nil {
		return decimal.Zero, err
	}
	err = l.flowRepo.CreatePointsLog(ctx, tx, &model.PointsLog{
		UserID:       userID,
		ChangeAmount: delta,
		BalanceAfter: balanceAfter,
		PointsType:   pointsType,
		Reason:       reason,
		RelatedOrder: relatedOrder,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balanceAfter, nil
}

// DeductPointsFloored 积分回滚：不够扣时扣到0，写积分流水记录实际变化
func (l *Ledger) DeductPointsFloored(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal, pointsType, reason string, relatedOrder *int64) (decimal.Decimal, error) {
	before, err := l.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	balanceAfter, err := l.userRepo.DeductFloored(ctx, tx, userID, model.BalanceFieldPoints, amount)
	if err != nil {
		return decimal.Zero, err
	}
	err = l.flowRepo.CreatePointsLog(ctx, tx, &model.PointsLog{
		UserID:       userID,
		ChangeAmount: balanceAfter.Sub(before.Points),
		BalanceAfter: balanceAfter,
		PointsType:   pointsType,
		Reason:       reason,
		RelatedOrder: relatedOrder,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balanceAfter, nil
}

// RecordCouponFlow 优惠券发放审计流水，金额恒为0，只为留痕
func (l *Ledger) RecordCouponFlow(ctx context.Context, tx *gorm.DB, userID int64, remark string) error {
	return l.flowRepo.CreateAccountFlow(ctx, tx, &model.AccountFlow{
		AccountType:  "coupon",
		RelatedUser:  &userID,
		ChangeAmount: decimal.Zero,
		BalanceAfter: decimal.Zero,
		FlowType:     model.FlowTypeCoupon,
		Remark:       remark,
	})
}
