package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlecore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 允许增减的余额字段白名单，字段名会被拼进 SQL
var balanceFields = map[string]bool{
	model.BalanceFieldPoints:         true,
	model.BalanceFieldPromotion:      true,
	model.BalanceFieldMerchantPoints: true,
	model.BalanceFieldMerchant:       true,
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var user model.User
	err := tx.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetForUpdate 锁定用户行直到事务提交
// 结算期间必须锁买家行，防止并发重复花积分或升级竞态
func (r *UserRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	var user model.User
	err := forUpdate(tx.WithContext(ctx)).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

// AddBalanceField 用户余额字段原子增减，返回变更后的值
// 扣减（delta 为负）走条件更新，余额不足时不生效并返回 ErrUserBalanceNotEnough
func (r *UserRepository) AddBalanceField(ctx context.Context, tx *gorm.DB, userID int64, field string, delta decimal.Decimal) (decimal.Decimal, error) {
	if !balanceFields[field] {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidBalanceField, field)
	}
	if tx == nil {
		tx = r.db
	}

	query := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID)
	if delta.IsNegative() {
		query = query.Where(field+" >= ?", delta.Neg())
	}

	result := query.Update(field, gorm.Expr(field+" + ?", delta))
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		exists, err := r.existsTx(ctx, tx, userID)
		if err != nil {
			return decimal.Zero, err
		}
		if !exists {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, ErrUserBalanceNotEnough
	}

	return r.readBalanceField(ctx, tx, userID, field)
}

// TryDeduct 尽力扣减：余额不足时不生效也不报错，返回是否扣成
// 退款时的奖励追回用这个（软失败策略，见退款服务）
func (r *UserRepository) TryDeduct(ctx context.Context, tx *gorm.DB, userID int64, field string, amount decimal.Decimal) (bool, decimal.Decimal, error) {
	if !balanceFields[field] {
		return false, decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidBalanceField, field)
	}
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND "+field+" >= ?", userID, amount).
		Update(field, gorm.Expr(field+" - ?", amount))
	if result.Error != nil {
		return false, decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		return false, decimal.Zero, nil
	}

	after, err := r.readBalanceField(ctx, tx, userID, field)
	return true, after, err
}

// DeductFloored 扣减但不允许为负：余额不够时直接清零
// 退款回滚积分用，对应“多扣不了就扣到0”的策略
func (r *UserRepository) DeductFloored(ctx context.Context, tx *gorm.DB, userID int64, field string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !balanceFields[field] {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidBalanceField, field)
	}
	if tx == nil {
		tx = r.db
	}

	expr := fmt.Sprintf("CASE WHEN %s >= ? THEN %s - ? ELSE 0 END", field, field)
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update(field, gorm.Expr(expr, amount, amount))
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	// 字段已经是0时这条UPDATE是空操作，某些驱动按变更行数计会报0行，
	// 不能拿行数推断用户不存在
	if result.RowsAffected == 0 {
		exists, err := r.existsTx(ctx, tx, userID)
		if err != nil {
			return decimal.Zero, err
		}
		if !exists {
			return decimal.Zero, ErrUserNotFound
		}
	}

	return r.readBalanceField(ctx, tx, userID, field)
}

// UpdateLevel 更新会员星级并记录变更时间
func (r *UserRepository) UpdateLevel(ctx context.Context, tx *gorm.DB, userID int64, level int) error {
	if tx == nil {
		tx = r.db
	}
	now := time.Now()
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"member_level":     level,
			"level_changed_at": &now,
		}).Error
}

// DecrementLevelFloored 星级降1，最低降到0
func (r *UserRepository) DecrementLevelFloored(ctx context.Context, tx *gorm.DB, userID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("member_level", gorm.Expr("CASE WHEN member_level > 0 THEN member_level - 1 ELSE 0 END")).Error
}

// PromoteToHonorDirector 标记荣誉董事，已是董事时不生效
func (r *UserRepository) PromoteToHonorDirector(ctx context.Context, tx *gorm.DB, userID int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND status != ?", userID, model.UserStatusHonorDirector).
		Update("status", model.UserStatusHonorDirector)
	return result.RowsAffected > 0, result.Error
}

// ListWithPositivePoints 持有正积分的用户（周补贴用）
func (r *UserRepository) ListWithPositivePoints(ctx context.Context, tx *gorm.DB) ([]*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var users []*model.User
	err := tx.WithContext(ctx).
		Where("points > 0").
		Order("id ASC").
		Find(&users).Error
	return users, err
}

// ListWithPositiveMerchantPoints 持有正商家积分的用户（周补贴用）
func (r *UserRepository) ListWithPositiveMerchantPoints(ctx context.Context, tx *gorm.DB) ([]*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var users []*model.User
	err := tx.WithContext(ctx).
		Where("merchant_points > 0").
		Order("id ASC").
		Find(&users).Error
	return users, err
}

// SumPoints 全体用户积分总和
func (r *UserRepository) SumPoints(ctx context.Context, field string) (decimal.Decimal, error) {
	if !balanceFields[field] {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidBalanceField, field)
	}
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Select("SUM(" + field + ")").
		Where(field + " > 0").
		Scan(&total).Error
	if err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

// ListByLevel 指定星级的用户（荣誉董事审核用）
func (r *UserRepository) ListByLevel(ctx context.Context, level int) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("member_level = ?", level).
		Order("id ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) existsTx(ctx context.Context, tx *gorm.DB, userID int64) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) readBalanceField(ctx context.Context, tx *gorm.DB, userID int64, field string) (decimal.Decimal, error) {
	var value decimal.NullDecimal
	err := tx.WithContext(ctx).
		Model(&model.User{}).
		Select(field).
		Where("id = ?", userID).
		Scan(&value).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !value.Valid {
		return decimal.Zero, nil
	}
	return value.Decimal, nil
}
