package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"settlecore/internal/config"
	"settlecore/internal/model"
	"settlecore/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SubsidyService 周补贴发放与荣誉董事晋升
//
// 周补贴把补贴池的价值按积分比例折成优惠券发出去：
// 单积分价值 = 补贴池余额 / 全系统积分总量（用户+商家+公司），有上限。
// 补贴池余额本身不扣减，公司积分只参与定价、从不扣除
type SubsidyService struct {
	db           *gorm.DB
	cfg          *config.Config
	accountRepo  *repository.AccountRepository
	userRepo     *repository.UserRepository
	rewardRepo   *repository.RewardRepository
	referralRepo *repository.ReferralRepository
	subsidyRepo  *repository.SubsidyRepository
}

func NewSubsidyService(db *gorm.DB, cfg *config.Config) *SubsidyService {
	return &SubsidyService{
		db:           db,
		cfg:          cfg,
		accountRepo:  repository.NewAccountRepository(db),
		userRepo:     repository.NewUserRepository(db),
		rewardRepo:   repository.NewRewardRepository(db),
		referralRepo: repository.NewReferralRepository(db),
		subsidyRepo:  repository.NewSubsidyRepository(db),
	}
}

// DistributeWeeklySubsidy 发放周补贴，返回发出的优惠券总额
func (s *SubsidyService) DistributeWeeklySubsidy(ctx context.Context) (decimal.Decimal, error) {
	poolBalance, err := s.accountRepo.GetBalance(ctx, nil, model.AccountSubsidy)
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询补贴池失败: %w", err)
	}
	if !poolBalance.IsPositive() {
		return decimal.Zero, ErrSubsidyPoolEmpty
	}

	userPoints, err := s.userRepo.SumPoints(ctx, model.BalanceFieldPoints)
	if err != nil {
		return decimal.Zero, fmt.Errorf("统计用户积分失败: %w", err)
	}
	merchantPoints, err := s.userRepo.SumPoints(ctx, model.BalanceFieldMerchantPoints)
	if err != nil {
		return decimal.Zero, fmt.Errorf("统计商家积分失败: %w", err)
	}
	companyPoints, err := s.accountRepo.GetBalance(ctx, nil, model.AccountCompanyPoints)
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询公司积分失败: %w", err)
	}

	totalPoints := userPoints.Add(merchantPoints).Add(companyPoints)
	if !totalPoints.IsPositive() {
		return decimal.Zero, ErrNoPointsInSystem
	}

	pointsValue := poolBalance.Div(totalPoints)
	maxValue := decimal.NewFromFloat(s.cfg.Settlement.MaxPointsValue)
	if pointsValue.GreaterThan(maxValue) {
		pointsValue = maxValue
	}
	log.Printf("补贴池: ¥%s | 用户积分: %s | 商家积分: %s | 公司积分: %s（仅参与计算） | 积分值: ¥%s/分",
		poolBalance.StringFixed(4), userPoints.StringFixed(4), merchantPoints.StringFixed(4),
		companyPoints.StringFixed(4), pointsValue.StringFixed(4))

	today := time.Now().Truncate(24 * time.Hour)
	validTo := today.AddDate(0, 0, s.cfg.Settlement.CouponValidDays)
	totalDistributed := decimal.Zero

	err = s.db.Transaction(func(tx *gorm.DB) error {
		users, err := s.userRepo.ListWithPositivePoints(ctx, tx)
		if err != nil {
			return fmt.Errorf("查询持有积分用户失败: %w", err)
		}
		for _, user := range users {
			amount, err := s.subsidizeOne(ctx, tx, user.ID, user.Points,
				model.BalanceFieldPoints, model.CouponTypeUser, pointsValue, today, validTo)
			if err != nil {
				return err
			}
			totalDistributed = totalDistributed.Add(amount)
		}

		merchants, err := s.userRepo.ListWithPositiveMerchantPoints(ctx, tx)
		if err != nil {
			return fmt.Errorf("查询持有积分商家失败: %w", err)
		}
		for _, merchant := range merchants {
			amount, err := s.subsidizeOne(ctx, tx, merchant.ID, merchant.MerchantPoints,
				model.BalanceFieldMerchantPoints, model.CouponTypeMerchant, pointsValue, today, validTo)
			if err != nil {
				return err
			}
			totalDistributed = totalDistributed.Add(amount)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	log.Printf("周补贴完成: 发放¥%s优惠券（补贴池余额不变: ¥%s，公司积分不扣除）",
		totalDistributed.StringFixed(4), poolBalance.StringFixed(4))
	return totalDistributed, nil
}

// subsidizeOne 给单个持分者发券扣分并留档
func (s *SubsidyService) subsidizeOne(ctx context.Context, tx *gorm.DB, userID int64, points decimal.Decimal,
	balanceField, couponType string, pointsValue decimal.Decimal, today, validTo time.Time) (decimal.Decimal, error) {

	subsidyAmount := points.Mul(pointsValue)
	if !subsidyAmount.IsPositive() {
		return decimal.Zero, nil
	}
	// 扣掉的积分恰好对应券面价值
	deductPoints := subsidyAmount.Div(pointsValue)

	coupon := &model.Coupon{
		UserID:     userID,
		CouponType: couponType,
		Amount:     subsidyAmount,
		ValidFrom:  today,
		ValidTo:    validTo,
		Status:     model.CouponStatusUnused,
	}
	if err := s.rewardRepo.CreateCoupon(ctx, tx, coupon); err != nil {
		return decimal.Zero, fmt.Errorf("发放补贴优惠券失败: %w", err)
	}

	if _, err := s.userRepo.AddBalanceField(ctx, tx, userID, balanceField, deductPoints.Neg()); err != nil {
		return decimal.Zero, fmt.Errorf("扣除补贴积分失败: %w", err)
	}

	record := &model.WeeklySubsidyRecord{
		UserID:         userID,
		WeekStart:      today,
		SubsidyAmount:  subsidyAmount,
		PointsBefore:   points,
		PointsDeducted: deductPoints,
		CouponID:       coupon.ID,
	}
	if err := s.subsidyRepo.Create(ctx, tx, record); err != nil {
		return decimal.Zero, fmt.Errorf("写入补贴记录失败: %w", err)
	}

	log.Printf("持分方%d: 优惠券¥%s, 扣积分%s", userID, subsidyAmount.StringFixed(4), deductPoints.StringFixed(4))
	return subsidyAmount, nil
}

// CheckDirectorPromotion 荣誉董事晋升审核，返回晋升人数
// 条件：自身6星，直接推荐6星会员不少于3人，6层内团队6星会员不少于10人
func (s *SubsidyService) CheckDirectorPromotion(ctx context.Context) (int, error) {
	log.Printf("荣誉董事晋升审核")

	sixStarUsers, err := s.userRepo.ListByLevel(ctx, 6)
	if err != nil {
		return 0, fmt.Errorf("查询6星用户失败: %w", err)
	}

	promoted := 0
	for _, user := range sixStarUsers {
		directCount, err := s.referralRepo.CountDirectAtLevel(ctx, user.ID, 6)
		if err != nil {
			return promoted, fmt.Errorf("统计直推人数失败: %w", err)
		}
		teamCount, err := s.referralRepo.CountTeamAtLevel(ctx, user.ID, 6, s.cfg.Settlement.MaxTeamLayer)
		if err != nil {
			return promoted, fmt.Errorf("统计团队人数失败: %w", err)
		}

		if directCount < 3 || teamCount < 10 {
			continue
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			ok, err := s.userRepo.PromoteToHonorDirector(ctx, tx, user.ID)
			if err != nil {
				return err
			}
			if ok {
				promoted++
				log.Printf("用户%d晋升为荣誉董事！（直接:%d, 团队:%d）", user.ID, directCount, teamCount)
			}
			return nil
		})
		if err != nil {
			return promoted, fmt.Errorf("晋升荣誉董事失败: %w", err)
		}
	}

	log.Printf("荣誉董事审核完成: 晋升%d人", promoted)
	return promoted, nil
}
