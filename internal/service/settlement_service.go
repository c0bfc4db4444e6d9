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

// SettlementService 订单结算引擎
//
// 一次结算把一笔已完成订单拆成一组账务动作：商家/平台分成、各池子沉淀、
// 积分发放、会员升级、待审核奖励入队。全部动作在一个事务里，
// 任何一步失败整体回滚，不允许出现只记了一半的账
type SettlementService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	productRepo  *repository.ProductRepository
	userRepo     *repository.UserRepository
	orderRepo    *repository.OrderRepository
	rewardRepo   *repository.RewardRepository
	referralRepo *repository.ReferralRepository
	outboxRepo   *repository.OutboxRepository
	ledger       *Ledger
}

func NewSettlementService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *SettlementService {
	return &SettlementService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		productRepo:  repository.NewProductRepository(db),
		userRepo:     repository.NewUserRepository(db),
		orderRepo:    repository.NewOrderRepository(db),
		rewardRepo:   repository.NewRewardRepository(db),
		referralRepo: repository.NewReferralRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		ledger:       NewLedger(db),
	}
}

type SettleRequest struct {
	OrderNo     string // 调用方保证唯一
	UserID      int64  // 买家
	ProductID   int64
	Quantity    int
	PointsToUse decimal.Decimal // 仅普通商品可用积分抵扣
}

// SettleOrder 结算订单，返回新订单ID
func (s *SettlementService) SettleOrder(ctx context.Context, req *SettleRequest) (int64, error) {
	if req.Quantity < 1 {
		return 0, fmt.Errorf("购买数量必须大于等于1")
	}
	if req.PointsToUse.IsNegative() {
		return 0, fmt.Errorf("抵扣积分不能为负数")
	}

	product, err := s.productRepo.GetActiveWithPrice(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrProductUnavailable) {
			return 0, fmt.Errorf("%w: %d", ErrProductUnavailable, req.ProductID)
		}
		return 0, fmt.Errorf("查询商品失败: %w", err)
	}

	if product.MerchantID != s.cfg.Settlement.PlatformMerchantID {
		exists, err := s.userRepo.Exists(ctx, product.MerchantID)
		if err != nil {
			return 0, fmt.Errorf("查询商家失败: %w", err)
		}
		if !exists {
			return 0, fmt.Errorf("%w: %d", ErrMerchantNotFound, product.MerchantID)
		}
	}

	// 按买家维度加分布式锁：同一买家的结算串行，不同买家并发
	settleLock := lock.NewSettleLock(s.redisClient, req.UserID, req.OrderNo)
	if err := settleLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return 0, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer settleLock.Unlock(ctx)

	unitPrice := product.UnitPrice
	quantity := decimal.NewFromInt(int64(req.Quantity))
	originalAmount := unitPrice.Mul(quantity)

	var orderID int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 锁买家行，串行化同一用户的积分/升级竞争
		buyer, err := s.userRepo.GetForUpdate(ctx, tx, req.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return fmt.Errorf("%w: %d", ErrBuyerNotFound, req.UserID)
			}
			return fmt.Errorf("锁定买家失败: %w", err)
		}

		// 限购统计在买家行锁之后做，并发结算串行通过这里，不会双双越过上限
		if product.IsMemberProduct {
			since := time.Now().Add(-24 * time.Hour)
			count, err := s.orderRepo.CountMemberOrdersSince(ctx, tx, req.UserID, since)
			if err != nil {
				return fmt.Errorf("查询限购失败: %w", err)
			}
			if count >= int64(s.cfg.Settlement.MaxPurchasePerDay) {
				return fmt.Errorf("%w（最多%d份）", ErrPurchaseLimitExceeded, s.cfg.Settlement.MaxPurchasePerDay)
			}
		}

		pointsDiscount := decimal.Zero
		if !product.IsMemberProduct && req.PointsToUse.IsPositive() {
			pointsDiscount, err = s.applyPointsDiscount(ctx, tx, buyer, req.PointsToUse, originalAmount)
			if err != nil {
				return err
			}
		}
		finalAmount := originalAmount.Sub(pointsDiscount)

		order := &model.Order{
			OrderNumber:    req.OrderNo,
			UserID:         req.UserID,
			MerchantID:     product.MerchantID,
			TotalAmount:    finalAmount,
			OriginalAmount: originalAmount,
			PointsDiscount: pointsDiscount,
			IsMemberOrder:  product.IsMemberProduct,
			Status:         model.OrderStatusCompleted,
		}
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}
		if err := s.orderRepo.CreateItem(ctx, tx, &model.OrderItem{
			OrderID:    order.ID,
			ProductID:  req.ProductID,
			Quantity:   req.Quantity,
			UnitPrice:  unitPrice,
			TotalPrice: originalAmount,
		}); err != nil {
			return fmt.Errorf("创建订单明细失败: %w", err)
		}
		orderID = order.ID

		if product.IsMemberProduct {
			if err := s.settleMemberOrder(ctx, tx, order, buyer, unitPrice, req.Quantity); err != nil {
				return err
			}
		} else {
			if err := s.settleNormalOrder(ctx, tx, order, buyer.MemberLevel, finalAmount); err != nil {
				return err
			}
		}

		return s.enqueueSettleEvent(ctx, tx, order)
	})
	if err != nil {
		return 0, err
	}

	log.Printf("订单结算成功: orderNo=%s, orderID=%d, userID=%d", req.OrderNo, orderID, req.UserID)
	return orderID, nil
}

// applyPointsDiscount 积分抵扣
// 抵扣上限是订单原价的50%；花掉的积分按1:1（积分单位，不是现金价值）
// 计入公司积分池 —— 这是刻意的不对称
func (s *SettlementService) applyPointsDiscount(ctx context.Context, tx *gorm.DB, buyer *model.User, pointsToUse, originalAmount decimal.Decimal) (decimal.Decimal, error) {
	if buyer.Points.LessThan(pointsToUse) {
		return decimal.Zero, fmt.Errorf("%w，当前%s分", ErrPointsInsufficient, buyer.Points.StringFixed(4))
	}

	discountRate := decimal.NewFromFloat(s.cfg.Settlement.PointsDiscountRate)
	maxDiscountPoints := originalAmount.Mul(decimal.NewFromFloat(0.5)).Div(discountRate)
	if pointsToUse.GreaterThan(maxDiscountPoints) {
		return decimal.Zero, fmt.Errorf("%w（最多%s分）", ErrPointsCapExceeded, maxDiscountPoints.StringFixed(4))
	}

	_, err := s.ledger.AddUserPoints(ctx, tx, buyer.ID, model.BalanceFieldPoints, pointsToUse.Neg(),
		model.PointsTypeMember, "积分抵扣支付", nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("扣减积分失败: %w", err)
	}

	_, err = s.ledger.AddPool(ctx, tx, model.AccountCompanyPoints, pointsToUse,
		"积分抵扣转公司积分", &buyer.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("公司积分入账失败: %w", err)
	}

	return pointsToUse.Mul(discountRate), nil
}

// settleMemberOrder 会员商品结算
// 分账基数是 单价×数量（不是实付金额），升级幅度是购买数量（封顶6星）
func (s *SettlementService) settleMemberOrder(ctx context.Context, tx *gorm.DB, order *model.Order, buyer *model.User, unitPrice decimal.Decimal, quantity int) error {
	totalAmount := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))

	if err := s.allocateToPools(ctx, tx, order.ID, totalAmount, nil); err != nil {
		return err
	}

	oldLevel := buyer.MemberLevel
	newLevel := oldLevel + quantity
	if newLevel > 6 {
		newLevel = 6
	}
	if err := s.userRepo.UpdateLevel(ctx, tx, buyer.ID, newLevel); err != nil {
		return fmt.Errorf("更新会员星级失败: %w", err)
	}

	pointsEarned := totalAmount
	_, err := s.ledger.AddUserPoints(ctx, tx, buyer.ID, model.BalanceFieldPoints, pointsEarned,
		model.PointsTypeMember, "购买会员商品获得积分", &order.ID)
	if err != nil {
		return fmt.Errorf("发放积分失败: %w", err)
	}
	log.Printf("用户升级: userID=%d, %d星 → %d星, 获得积分 %s", buyer.ID, oldLevel, newLevel, pointsEarned.StringFixed(4))

	if err := s.createPendingRewards(ctx, tx, order.ID, buyer.ID, oldLevel, newLevel); err != nil {
		return err
	}

	// 公司积分拿池子份额同比例的积分（积分单位）
	companyShare := decimal.NewFromInt(1).Sub(s.cfg.Settlement.PlatformShareDec())
	companyPoints := totalAmount.Mul(companyShare)
	_, err = s.ledger.AddPool(ctx, tx, model.AccountCompanyPoints, companyPoints,
		fmt.Sprintf("订单#%d 公司积分分配", order.ID), nil)
	if err != nil {
		return fmt.Errorf("公司积分分配失败: %w", err)
	}
	return nil
}

// allocateToPools 按配置比例把交易额拆进平台收入池和各用途池
// 比例之和在启动时已校验为1
func (s *SettlementService) allocateToPools(ctx context.Context, tx *gorm.DB, orderID int64, basis decimal.Decimal, relatedUser *int64) error {
	platformRevenue := basis.Mul(s.cfg.Settlement.PlatformShareDec())
	_, err := s.ledger.AddPool(ctx, tx, model.AccountPlatformRevenue, platformRevenue,
		fmt.Sprintf("订单#%d 平台收入", orderID), relatedUser)
	if err != nil {
		return fmt.Errorf("平台收入入账失败: %w", err)
	}

	for accountType := range s.cfg.Settlement.Allocations {
		allocAmount := basis.Mul(s.cfg.Settlement.AllocationDec(accountType))
		_, err := s.ledger.AddPool(ctx, tx, accountType, allocAmount,
			fmt.Sprintf("订单#%d 分配到%s", orderID, accountType), relatedUser)
		if err != nil {
			return fmt.Errorf("池子 %s 入账失败: %w", accountType, err)
		}
	}
	return nil
}

// createPendingRewards 根据升级前后星级入队待审核奖励
//
// 推荐奖励：首次购买会员商品（升级前0星）奖励直接推荐人
// 团队奖励：向上走恰好 newLevel 层找到的上级是候选人，
// 且候选人自己的星级必须不低于 newLevel；0星升1星不产生团队奖励
func (s *SettlementService) createPendingRewards(ctx context.Context, tx *gorm.DB, orderID, buyerID int64, oldLevel, newLevel int) error {
	rewardAmount := decimal.NewFromFloat(s.cfg.Settlement.MemberProductPrice).Mul(decimal.NewFromFloat(0.5))

	if oldLevel == 0 {
		referrerID, err := s.referralRepo.GetReferrerID(ctx, tx, buyerID)
		if err != nil {
			return fmt.Errorf("查询推荐人失败: %w", err)
		}
		if referrerID != nil {
			err = s.rewardRepo.Create(ctx, tx, &model.PendingReward{
				UserID:     *referrerID,
				RewardType: model.RewardTypeReferral,
				Amount:     rewardAmount,
				OrderID:    orderID,
				Status:     model.RewardStatusPending,
			})
			if err != nil {
				return fmt.Errorf("创建推荐奖励失败: %w", err)
			}
			log.Printf("推荐奖励待审核: userID=%d, 金额=%s", *referrerID, rewardAmount.StringFixed(2))
		}
	}

	if oldLevel == 0 && newLevel == 1 {
		return nil
	}

	targetLayer := newLevel
	candidateID, err := s.referralRepo.AncestorAtLayer(ctx, tx, buyerID, targetLayer)
	if err != nil {
		return fmt.Errorf("查询团队上级失败: %w", err)
	}
	if candidateID == nil {
		return nil
	}

	candidate, err := s.userRepo.GetByID(ctx, tx, *candidateID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("查询候选人失败: %w", err)
	}
	if candidate.MemberLevel < targetLayer {
		return nil
	}

	layer := targetLayer
	err = s.rewardRepo.Create(ctx, tx, &model.PendingReward{
		UserID:     *candidateID,
		RewardType: model.RewardTypeTeam,
		Amount:     rewardAmount,
		OrderID:    orderID,
		Layer:      &layer,
		Status:     model.RewardStatusPending,
	})
	if err != nil {
		return fmt.Errorf("创建团队奖励失败: %w", err)
	}
	log.Printf("团队奖励待审核: userID=%d, L%d, 金额=%s", *candidateID, layer, rewardAmount.StringFixed(2))
	return nil
}

// settleNormalOrder 普通商品结算，分账基数是实付金额
// 80%主份额：平台自营沉淀到平台侧池子，第三方商家拿现金；剩余20%折成商家积分
func (s *SettlementService) settleNormalOrder(ctx context.Context, tx *gorm.DB, order *model.Order, buyerLevel int, finalAmount decimal.Decimal) error {
	mainShare := s.cfg.Settlement.PlatformShareDec()
	pointsShare := decimal.NewFromInt(1).Sub(mainShare)

	if order.MerchantID != s.cfg.Settlement.PlatformMerchantID {
		merchantCash := finalAmount.Mul(mainShare)
		_, err := s.ledger.AddUserBalance(ctx, tx, order.MerchantID, model.BalanceFieldMerchant,
			merchantCash, fmt.Sprintf("普通商品收益 - 订单#%d", order.ID))
		if err != nil {
			return fmt.Errorf("商家分成入账失败: %w", err)
		}
		log.Printf("商家到账: merchantID=%d, 金额=%s", order.MerchantID, merchantCash.StringFixed(4))
	} else {
		// 平台自营：80%份额和20%池子份额都沉淀在平台侧
		if err := s.allocateToPools(ctx, tx, order.ID, finalAmount, &order.UserID); err != nil {
			return err
		}
	}

	if buyerLevel >= 1 {
		_, err := s.ledger.AddUserPoints(ctx, tx, order.UserID, model.BalanceFieldPoints, finalAmount,
			model.PointsTypeMember, "购买获得积分", &order.ID)
		if err != nil {
			return fmt.Errorf("发放购买积分失败: %w", err)
		}
	}

	if order.MerchantID != s.cfg.Settlement.PlatformMerchantID {
		merchantPoints := finalAmount.Mul(pointsShare)
		if merchantPoints.IsPositive() {
			_, err := s.ledger.AddUserPoints(ctx, tx, order.MerchantID, model.BalanceFieldMerchantPoints,
				merchantPoints, model.PointsTypeMerchant, "销售获得积分", &order.ID)
			if err != nil {
				return fmt.Errorf("发放商家积分失败: %w", err)
			}
		}
	}
	return nil
}

func (s *SettlementService) enqueueSettleEvent(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	payload, err := json.Marshal(map[string]interface{}{
		"order_no":        order.OrderNumber,
		"user_id":         order.UserID,
		"merchant_id":     order.MerchantID,
		"total_amount":    order.TotalAmount,
		"original_amount": order.OriginalAmount,
		"is_member_order": order.IsMemberOrder,
		"settled_at":      time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("序列化结算事件失败: %w", err)
	}
	err = s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: order.OrderNumber,
		Topic:      s.cfg.Kafka.Topic.SettleResult,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
	if err != nil {
		return fmt.Errorf("写入结算事件失败: %w", err)
	}
	return nil
}
