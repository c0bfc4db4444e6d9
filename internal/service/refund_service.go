package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"settlecore/internal/config"
	"settlecore/internal/infrastructure/lock"
	"settlecore/internal/model"
	"settlecore/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RefundService 退款逆向结算
//
// 对已结算订单做逆向：奖励追回是尽力而为（余额不够就跳过），
// 80%主分成的回收是硬性的（池子或商家余额不够整单失败）。
// 两种策略是刻意区分的，别改成统一口径
type RefundService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	orderRepo    *repository.OrderRepository
	userRepo     *repository.UserRepository
	accountRepo  *repository.AccountRepository
	rewardRepo   *repository.RewardRepository
	referralRepo *repository.ReferralRepository
	outboxRepo   *repository.OutboxRepository
	ledger       *Ledger
}

func NewRefundService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RefundService {
	return &RefundService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		orderRepo:    repository.NewOrderRepository(db),
		userRepo:     repository.NewUserRepository(db),
		accountRepo:  repository.NewAccountRepository(db),
		rewardRepo:   repository.NewRewardRepository(db),
		referralRepo: repository.NewReferralRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		ledger:       NewLedger(db),
	}
}

// RefundOrder 退款，幂等保护：同一订单第二次调用报已退款
func (s *RefundService) RefundOrder(ctx context.Context, orderNo string) error {
	// 按订单维度加锁，防止并发双退
	refundLock := lock.NewRefundLock(s.redisClient, orderNo)
	if err := refundLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer refundLock.Unlock(ctx)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.GetByOrderNoForUpdate(ctx, tx, orderNo)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
			}
			return fmt.Errorf("锁定订单失败: %w", err)
		}
		if order.RefundStatus == model.RefundStatusRefunded {
			return fmt.Errorf("%w: %s", ErrAlreadyRefunded, orderNo)
		}

		if order.IsMemberOrder {
			if err := s.reverseMemberOrder(ctx, tx, order); err != nil {
				return err
			}
		} else {
			if err := s.reverseNormalOrder(ctx, tx, order); err != nil {
				return err
			}
		}

		if err := s.orderRepo.MarkRefunded(ctx, tx, order.ID); err != nil {
			return fmt.Errorf("更新退款状态失败: %w", err)
		}

		return s.enqueueRefundEvent(ctx, tx, order)
	})
	if err != nil {
		return err
	}

	log.Printf("订单退款成功: orderNo=%s", orderNo)
	return nil
}

// reverseMemberOrder 会员订单逆向
// 注意：星级固定回退1、积分固定回退原价，购买数量大于1时不是精确逆操作，
// 这是沿用的业务口径，改动需要产品确认
func (s *RefundService) reverseMemberOrder(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	rewardAmount := order.OriginalAmount.Mul(decimal.NewFromFloat(0.5))

	// 推荐奖励追回，余额不足跳过
	referrerID, err := s.referralRepo.GetReferrerID(ctx, tx, order.UserID)
	if err != nil {
		return fmt.Errorf("查询推荐人失败: %w", err)
	}
	if referrerID != nil {
		ok, err := s.ledger.TryDeductUserBalance(ctx, tx, *referrerID, model.BalanceFieldPromotion,
			rewardAmount, fmt.Sprintf("退款追回推荐奖励 - 订单#%d", order.ID))
		if err != nil {
			return fmt.Errorf("追回推荐奖励失败: %w", err)
		}
		if !ok {
			log.Printf("推荐奖励追回跳过（余额不足）: userID=%d, orderID=%d", *referrerID, order.ID)
		}
	}

	// 团队奖励按当时记录的金额逐个追回
	teamRewards, err := s.rewardRepo.ListByOrderAndType(ctx, tx, order.ID, model.RewardTypeTeam)
	if err != nil {
		return fmt.Errorf("查询团队奖励失败: %w", err)
	}
	for _, reward := range teamRewards {
		ok, err := s.ledger.TryDeductUserBalance(ctx, tx, reward.UserID, model.BalanceFieldPromotion,
			reward.Amount, fmt.Sprintf("退款追回团队奖励 - 订单#%d", order.ID))
		if err != nil {
			return fmt.Errorf("追回团队奖励失败: %w", err)
		}
		if !ok {
			log.Printf("团队奖励追回跳过（余额不足）: userID=%d, orderID=%d", reward.UserID, order.ID)
		}
	}

	// 买家积分和星级回退，下限0
	_, err = s.ledger.DeductPointsFloored(ctx, tx, order.UserID, order.OriginalAmount,
		model.PointsTypeMember, fmt.Sprintf("退款扣回积分 - 订单#%d", order.ID), &order.ID)
	if err != nil {
		return fmt.Errorf("扣回买家积分失败: %w", err)
	}
	if err := s.userRepo.DecrementLevelFloored(ctx, tx, order.UserID); err != nil {
		return fmt.Errorf("回退会员星级失败: %w", err)
	}

	// 平台收入池回收80%，硬性校验
	platformAmount := order.TotalAmount.Mul(s.cfg.Settlement.PlatformShareDec())
	return s.debitPoolHard(ctx, tx, model.AccountPlatformRevenue, platformAmount,
		fmt.Sprintf("退款冲回平台收入 - 订单#%d", order.ID), &order.UserID)
}

// reverseNormalOrder 普通订单逆向，只回收80%主分成
func (s *RefundService) reverseNormalOrder(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	shareAmount := order.TotalAmount.Mul(s.cfg.Settlement.PlatformShareDec())
	remark := fmt.Sprintf("退款冲回销售分成 - 订单#%d", order.ID)

	if order.MerchantID == s.cfg.Settlement.PlatformMerchantID {
		return s.debitPoolHard(ctx, tx, model.AccountPlatformRevenue, shareAmount, remark, &order.UserID)
	}

	_, err := s.ledger.AddUserBalance(ctx, tx, order.MerchantID, model.BalanceFieldMerchant,
		shareAmount.Neg(), remark)
	if err != nil {
		if errors.Is(err, repository.ErrUserBalanceNotEnough) {
			merchant, merr := s.userRepo.GetByID(ctx, tx, order.MerchantID)
			current := decimal.Zero
			if merr == nil {
				current = merchant.MerchantBalance
			}
			return &InsufficientBalanceError{
				Account:  fmt.Sprintf("商家余额(userID=%d)", order.MerchantID),
				Required: shareAmount,
				Current:  current,
			}
		}
		return fmt.Errorf("冲回商家分成失败: %w", err)
	}
	return nil
}

func (s *RefundService) debitPoolHard(ctx context.Context, tx *gorm.DB, accountType string, amount decimal.Decimal, remark string, relatedUser *int64) error {
	_, err := s.ledger.AddPool(ctx, tx, accountType, amount.Neg(), remark, relatedUser)
	if err != nil {
		if errors.Is(err, repository.ErrPoolBalanceNotEnough) {
			current, berr := s.accountRepo.GetBalance(ctx, tx, accountType)
			if berr != nil {
				current = decimal.Zero
			}
			return &InsufficientBalanceError{
				Account:  accountType,
				Required: amount,
				Current:  current,
			}
		}
		return fmt.Errorf("池子 %s 冲回失败: %w", accountType, err)
	}
	return nil
}

func (s *RefundService) enqueueRefundEvent(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	payload, err := json.Marshal(map[string]interface{}{
		"order_no":        order.OrderNumber,
		"user_id":         order.UserID,
		"merchant_id":     order.MerchantID,
		"total_amount":    order.TotalAmount,
		"is_member_order": order.IsMemberOrder,
		"refunded_at":     time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("序列化退款事件失败: %w", err)
	}
	err = s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: order.OrderNumber,
		Topic:      s.cfg.Kafka.Topic.RefundResult,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
	if err != nil {
		return fmt.Errorf("写入退款事件失败: %w", err)
	}
	return nil
}
