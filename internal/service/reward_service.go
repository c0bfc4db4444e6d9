package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"settlecore/internal/config"
	"settlecore/internal/model"
	"settlecore/internal/repository"

	"gorm.io/gorm"
)

// RewardService 奖励审核与发放
//
// 奖励在结算时只入待审核队列，不动钱。审核通过后以优惠券形式发放，
// 优惠券是对未来核销的负债，发放时不扣任何池子
type RewardService struct {
	db         *gorm.DB
	cfg        *config.Config
	rewardRepo *repository.RewardRepository
	ledger     *Ledger
}

func NewRewardService(db *gorm.DB, cfg *config.Config) *RewardService {
	return &RewardService{
		db:         db,
		cfg:        cfg,
		rewardRepo: repository.NewRewardRepository(db),
		ledger:     NewLedger(db),
	}
}

// AuditRewards 批量审核待发奖励
// 只处理传入ID中仍处于待审核状态的记录，一条都匹配不到则报错
func (s *RewardService) AuditRewards(ctx context.Context, rewardIDs []int64, approve bool) error {
	if len(rewardIDs) == 0 {
		return ErrEmptyRewardIDs
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rewards, err := s.rewardRepo.GetPendingByIDs(ctx, tx, rewardIDs)
		if err != nil {
			return fmt.Errorf("查询待审核奖励失败: %w", err)
		}
		if len(rewards) == 0 {
			return ErrNoRewardsFound
		}

		if !approve {
			if err := s.rewardRepo.MarkRejectedByIDs(ctx, tx, rewardIDs); err != nil {
				return fmt.Errorf("拒绝奖励失败: %w", err)
			}
			log.Printf("已拒绝 %d 条奖励", len(rewards))
			return nil
		}

		today := time.Now().Truncate(24 * time.Hour)
		validTo := today.AddDate(0, 0, s.cfg.Settlement.CouponValidDays)

		for _, reward := range rewards {
			coupon := &model.Coupon{
				UserID:     reward.UserID,
				CouponType: model.CouponTypeUser,
				Amount:     reward.Amount,
				ValidFrom:  today,
				ValidTo:    validTo,
				Status:     model.CouponStatusUnused,
			}
			if err := s.rewardRepo.CreateCoupon(ctx, tx, coupon); err != nil {
				return fmt.Errorf("发放优惠券失败: %w", err)
			}
			if err := s.rewardRepo.MarkApproved(ctx, tx, reward.ID); err != nil {
				return fmt.Errorf("更新奖励状态失败: %w", err)
			}

			rewardDesc := "推荐"
			if reward.RewardType == model.RewardTypeTeam {
				layer := 0
				if reward.Layer != nil {
					layer = *reward.Layer
				}
				rewardDesc = fmt.Sprintf("团队L%d", layer)
			}
			remark := fmt.Sprintf("%s奖励发放优惠券#%d ¥%s", rewardDesc, coupon.ID, reward.Amount.StringFixed(2))
			if err := s.ledger.RecordCouponFlow(ctx, tx, reward.UserID, remark); err != nil {
				return fmt.Errorf("记录优惠券流水失败: %w", err)
			}
		}
		log.Printf("已批准 %d 条奖励并发放优惠券", len(rewards))
		return nil
	})
	return err
}

// ListRewards 按状态查询奖励，reward_type 为空则不限类型
func (s *RewardService) ListRewards(ctx context.Context, status, rewardType string, limit int) ([]*model.PendingReward, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.rewardRepo.ListByStatus(ctx, status, rewardType, limit)
}

// ListUserCoupons 查询用户的优惠券
func (s *RewardService) ListUserCoupons(ctx context.Context, userID int64, status string) ([]*model.Coupon, error) {
	return s.rewardRepo.ListCouponsByUser(ctx, userID, status)
}
