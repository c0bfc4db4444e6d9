package repository

import (
	"context"
	"errors"

	"settlecore/internal/model"

	"gorm.io/gorm"
)

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// GetReferrerID 取直接推荐人，没有推荐人时返回 nil
func (r *ReferralRepository) GetReferrerID(ctx context.Context, tx *gorm.DB, userID int64) (*int64, error) {
	if tx == nil {
		tx = r.db
	}
	var edge model.UserReferral
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &edge.ReferrerID, nil
}

// Create 写入推荐关系，已有推荐人时报错（不做幂等插入）
func (r *ReferralRepository) Create(ctx context.Context, tx *gorm.DB, userID, referrerID int64) error {
	if tx == nil {
		tx = r.db
	}
	existing, err := r.GetReferrerID(ctx, tx, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrReferralExists
	}
	return tx.WithContext(ctx).Create(&model.UserReferral{
		UserID:     userID,
		ReferrerID: referrerID,
	}).Error
}

// AncestorAtLayer 沿推荐链精确向上走 n 层
// 链不够长时返回 nil，不退而取最高的祖先
func (r *ReferralRepository) AncestorAtLayer(ctx context.Context, tx *gorm.DB, userID int64, layer int) (*int64, error) {
	if tx == nil {
		tx = r.db
	}
	current := userID
	for i := 0; i < layer; i++ {
		referrer, err := r.GetReferrerID(ctx, tx, current)
		if err != nil {
			return nil, err
		}
		if referrer == nil {
			return nil, nil
		}
		current = *referrer
	}
	return &current, nil
}

// DescendantsWithin 反向边有界广度遍历：某用户 maxLayer 层以内的全部团队成员
// 按 (层数, 用户ID) 排序返回
func (r *ReferralRepository) DescendantsWithin(ctx context.Context, userID int64, maxLayer int) ([]*model.TeamMember, error) {
	var members []*model.TeamMember
	err := r.db.WithContext(ctx).Raw(`
		WITH RECURSIVE team_tree AS (
			SELECT user_id, referrer_id, 1 AS layer FROM user_referrals WHERE referrer_id = ?
			UNION ALL
			SELECT ur.user_id, ur.referrer_id, tt.layer + 1
			FROM user_referrals ur JOIN team_tree tt ON ur.referrer_id = tt.user_id
			WHERE tt.layer < ?
		)
		SELECT tt.user_id, u.name, u.member_level, tt.layer
		FROM team_tree tt JOIN users u ON tt.user_id = u.id
		ORDER BY tt.layer, tt.user_id`,
		userID, maxLayer).Scan(&members).Error
	return members, err
}

// CountDirectAtLevel 直接推荐中达到指定星级的人数
func (r *ReferralRepository) CountDirectAtLevel(ctx context.Context, userID int64, level int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(DISTINCT u.id)
		FROM user_referrals ur JOIN users u ON ur.user_id = u.id
		WHERE ur.referrer_id = ? AND u.member_level = ?`,
		userID, level).Scan(&count).Error
	return count, err
}

// CountTeamAtLevel 指定层数以内团队中达到指定星级的人数
func (r *ReferralRepository) CountTeamAtLevel(ctx context.Context, userID int64, level, maxLayer int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(`
		WITH RECURSIVE team AS (
			SELECT user_id, referrer_id, 1 AS layer FROM user_referrals WHERE referrer_id = ?
			UNION ALL
			SELECT ur.user_id, ur.referrer_id, t.layer + 1
			FROM user_referrals ur JOIN team t ON ur.referrer_id = t.user_id
			WHERE t.layer < ?
		)
		SELECT COUNT(DISTINCT t.user_id)
		FROM team t JOIN users u ON t.user_id = u.id
		WHERE u.member_level = ?`,
		userID, maxLayer, level).Scan(&count).Error
	return count, err
}
