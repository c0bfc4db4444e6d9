package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"settlecore/internal/config"
	"settlecore/internal/model"
	"settlecore/internal/repository"

	"gorm.io/gorm"
)

// ReferralService 推荐关系维护与团队查询
//
// 推荐关系一旦写入不可变更，重复设置是错误而不是幂等成功。
// 关系图只增不改，奖励定位和退款追回都依赖这条性质
type ReferralService struct {
	db           *gorm.DB
	cfg          *config.Config
	userRepo     *repository.UserRepository
	referralRepo *repository.ReferralRepository
}

func NewReferralService(db *gorm.DB, cfg *config.Config) *ReferralService {
	return &ReferralService{
		db:           db,
		cfg:          cfg,
		userRepo:     repository.NewUserRepository(db),
		referralRepo: repository.NewReferralRepository(db),
	}
}

// SetReferrer 绑定推荐人
func (s *ReferralService) SetReferrer(ctx context.Context, userID, referrerID int64) error {
	if userID == referrerID {
		return ErrSelfReferral
	}

	referrer, err := s.userRepo.GetByID(ctx, nil, referrerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("%w: %d", ErrReferrerNotFound, referrerID)
		}
		return fmt.Errorf("查询推荐人失败: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.referralRepo.Create(ctx, tx, userID, referrerID); err != nil {
			if errors.Is(err, repository.ErrReferralExists) {
				return ErrAlreadyHasReferrer
			}
			return fmt.Errorf("写入推荐关系失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("用户%d的推荐人设置为%d（%d星）", userID, referrerID, referrer.MemberLevel)
	return nil
}

// GetReferrer 查询直接推荐人，没有则返回nil
func (s *ReferralService) GetReferrer(ctx context.Context, userID int64) (*model.User, error) {
	referrerID, err := s.referralRepo.GetReferrerID(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("查询推荐关系失败: %w", err)
	}
	if referrerID == nil {
		return nil, nil
	}
	referrer, err := s.userRepo.GetByID(ctx, nil, *referrerID)
	if err != nil {
		return nil, fmt.Errorf("查询推荐人失败: %w", err)
	}
	return referrer, nil
}

// GetTeam 查询用户的下级团队，按层级、用户ID排序
func (s *ReferralService) GetTeam(ctx context.Context, userID int64, maxLayer int) ([]*model.TeamMember, error) {
	if maxLayer <= 0 || maxLayer > s.cfg.Settlement.MaxTeamLayer {
		maxLayer = s.cfg.Settlement.MaxTeamLayer
	}
	return s.referralRepo.DescendantsWithin(ctx, userID, maxLayer)
}
