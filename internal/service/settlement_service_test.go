package service

import (
	"context"
	"testing"

	"settlecore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleMemberOrder_FirstPurchase(t *testing.T) {
	db := setupTestDB(t)
	rdb := setupTestRedis(t)
	cfg := testConfig()
	svc := NewSettlementService(db, rdb, cfg)
	ctx := context.Background()

	buyer := createTestUser(t, db, "买家甲")
	product := createMemberProduct(t, db, 100)

	orderID, err := svc.SettleOrder(ctx, &SettleRequest{
		OrderNo:   "ORD-M-001",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)
	assert.Greater(t, orderID, int64(0))

	// 0星 -> 1星，积分+100
	after := reloadUser(t, db, buyer.ID)
	assert.Equal(t, 1, after.MemberLevel)
	assert.True(t, after.Points.Equal(decimal.NewFromInt(100)),
		"积分应为100，实际 %s", after.Points)
	assert.NotNil(t, after.LevelChangedAt)

	// 平台收入池80，各池子按比例入账
	assert.True(t, poolBalance(t, db, model.AccountPlatformRevenue).Equal(decimal.NewFromInt(80)))
	assert.True(t, poolBalance(t, db, model.AccountSubsidy).Equal(decimal.NewFromInt(12)))
	assert.True(t, poolBalance(t, db, model.AccountPublicWelfare).Equal(decimal.NewFromInt(1)))
	assert.True(t, poolBalance(t, db, model.AccountBranch).Equal(decimal.NewFromFloat(0.5)))

	// 公司积分拿20%份额
	assert.True(t, poolBalance(t, db, model.AccountCompanyPoints).Equal(decimal.NewFromInt(20)))

	// 无推荐人，不产生任何待审核奖励
	var rewardCount int64
	require.NoError(t, db.Model(&model.PendingReward{}).Count(&rewardCount).Error)
	assert.Equal(t, int64(0), rewardCount)

	// 结算事件落在 outbox
	var msg model.OutboxMessage
	require.NoError(t, db.Where("message_key = ?", "ORD-M-001").First(&msg).Error)
	assert.Equal(t, "settle_result", msg.Topic)
}

func TestSettleMemberOrder_PoolConservation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())

	buyer := createTestUser(t, db, "买家乙")
	product := createMemberProduct(t, db, 100)

	_, err := svc.SettleOrder(context.Background(), &SettleRequest{
		OrderNo:   "ORD-M-002",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)

	// 平台份额加各池子份额应恰好等于交易额
	var accounts []model.FinanceAccount
	require.NoError(t, db.Where("account_type != ?", model.AccountCompanyPoints).Find(&accounts).Error)
	total := decimal.Zero
	for _, account := range accounts {
		total = total.Add(account.Balance)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(100)), "分账总额应为100，实际 %s", total)
}

func TestSettleMemberOrder_ReferralReward(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())
	ctx := context.Background()

	referrer := createTestUser(t, db, "推荐人")
	buyer := createTestUser(t, db, "买家丙")
	setReferrer(t, db, buyer.ID, referrer.ID)
	product := createMemberProduct(t, db, 100)

	_, err := svc.SettleOrder(ctx, &SettleRequest{
		OrderNo:   "ORD-M-003",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)

	// 首购产生推荐奖励50，0星升1星不产生团队奖励
	var rewards []model.PendingReward
	require.NoError(t, db.Find(&rewards).Error)
	require.Len(t, rewards, 1)
	assert.Equal(t, referrer.ID, rewards[0].UserID)
	assert.Equal(t, model.RewardTypeReferral, rewards[0].RewardType)
	assert.Equal(t, model.RewardStatusPending, rewards[0].Status)
	assert.True(t, rewards[0].Amount.Equal(decimal.NewFromInt(50)))
}

func TestSettleMemberOrder_TeamReward(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())
	ctx := context.Background()

	// 链条: buyer -> mid -> top
	top := createTestUser(t, db, "顶层")
	mid := createTestUser(t, db, "中层")
	buyer := createTestUser(t, db, "买家丁")
	setReferrer(t, db, mid.ID, top.ID)
	setReferrer(t, db, buyer.ID, mid.ID)

	// 买家已是1星，第二次购买升2星；向上2层是 top，top 星级必须不低于2
	setUserLevel(t, db, buyer.ID, 1)
	setUserLevel(t, db, top.ID, 2)
	product := createMemberProduct(t, db, 100)

	_, err := svc.SettleOrder(ctx, &SettleRequest{
		OrderNo:   "ORD-M-004",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, reloadUser(t, db, buyer.ID).MemberLevel)

	// 非首购不产生推荐奖励，只有 L2 团队奖励
	var rewards []model.PendingReward
	require.NoError(t, db.Find(&rewards).Error)
	require.Len(t, rewards, 1)
	assert.Equal(t, top.ID, rewards[0].UserID)
	assert.Equal(t, model.RewardTypeTeam, rewards[0].RewardType)
	require.NotNil(t, rewards[0].Layer)
	assert.Equal(t, 2, *rewards[0].Layer)
}

func TestSettleMemberOrder_TeamRewardCandidateLevelTooLow(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())

	top := createTestUser(t, db, "低星顶层")
	mid := createTestUser(t, db, "中间层")
	buyer := createTestUser(t, db, "买家戊")
	setReferrer(t, db, mid.ID, top.ID)
	setReferrer(t, db, buyer.ID, mid.ID)
	setUserLevel(t, db, buyer.ID, 1)
	setUserLevel(t, db, top.ID, 1) // 不满足 >= 2

	product := createMemberProduct(t, db, 100)
	_, err := svc.SettleOrder(context.Background(), &SettleRequest{
		OrderNo:   "ORD-M-005",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)

	var rewardCount int64
	require.NoError(t, db.Model(&model.PendingReward{}).Count(&rewardCount).Error)
	assert.Equal(t, int64(0), rewardCount)
}

func TestSettleMemberOrder_PurchaseLimit(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())
	ctx := context.Background()

	buyer := createTestUser(t, db, "买家己")
	product := createMemberProduct(t, db, 100)

	for i := 0; i < 2; i++ {
		_, err := svc.SettleOrder(ctx, &SettleRequest{
			OrderNo:   "ORD-L-00" + string(rune('1'+i)),
			UserID:    buyer.ID,
			ProductID: product.ID,
			Quantity:  1,
		})
		require.NoError(t, err)
	}

	_, err := svc.SettleOrder(ctx, &SettleRequest{
		OrderNo:   "ORD-L-003",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	assert.ErrorIs(t, err, ErrPurchaseLimitExceeded)
}

func TestSettleMemberOrder_LevelCappedAtSix(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())

	buyer := createTestUser(t, db, "买家庚")
	setUserLevel(t, db, buyer.ID, 5)
	product := createMemberProduct(t, db, 100)

	_, err := svc.SettleOrder(context.Background(), &SettleRequest{
		OrderNo:   "ORD-M-006",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  2,
	})
	require.NoError(t, err)

	assert.Equal(t, 6, reloadUser(t, db, buyer.ID).MemberLevel)
}

func TestSettleNormalOrder_MerchantCredit(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())

	merchant := createTestUser(t, db, "商家甲")
	buyer := createTestUser(t, db, "买家辛")
	setUserLevel(t, db, buyer.ID, 1)
	product := createNormalProduct(t, db, merchant.ID, 200)
	// 商家必须是真实商家，撞上平台商户ID会走自营分账
	require.NotEqual(t, testPlatformMerchantID, merchant.ID)

	_, err := svc.SettleOrder(context.Background(), &SettleRequest{
		OrderNo:   "ORD-N-001",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)

	// 商家拿80%现金和20%积分，买家（1星以上）拿全额积分
	merchantAfter := reloadUser(t, db, merchant.ID)
	assert.True(t, merchantAfter.MerchantBalance.Equal(decimal.NewFromInt(160)),
		"商家余额应为160，实际 %s", merchantAfter.MerchantBalance)
	assert.True(t, merchantAfter.MerchantPoints.Equal(decimal.NewFromInt(40)))

	buyerAfter := reloadUser(t, db, buyer.ID)
	assert.True(t, buyerAfter.Points.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 1, buyerAfter.MemberLevel, "普通商品不改变星级")
}

func TestSettleNormalOrder_ZeroLevelBuyerNoPoints(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())

	merchant := createTestUser(t, db, "商家乙")
	buyer := createTestUser(t, db, "买家壬")
	product := createNormalProduct(t, db, merchant.ID, 100)

	_, err := svc.SettleOrder(context.Background(), &SettleRequest{
		OrderNo:   "ORD-N-002",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)

	assert.True(t, reloadUser(t, db, buyer.ID).Points.IsZero())
}

func TestSettleNormalOrder_PlatformMerchant(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())

	buyer := createTestUser(t, db, "买家癸")
	product := createNormalProduct(t, db, testPlatformMerchantID, 100) // 平台自营

	_, err := svc.SettleOrder(context.Background(), &SettleRequest{
		OrderNo:   "ORD-N-003",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)

	// 平台自营时80%和20%池子份额都沉淀在平台侧
	assert.True(t, poolBalance(t, db, model.AccountPlatformRevenue).Equal(decimal.NewFromInt(80)))
	assert.True(t, poolBalance(t, db, model.AccountSubsidy).Equal(decimal.NewFromInt(12)))
}

func TestSettleNormalOrder_PointsDiscount(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())
	ctx := context.Background()

	merchant := createTestUser(t, db, "商家丙")
	buyer := createTestUser(t, db, "积分买家")
	setUserBalance(t, db, buyer.ID, model.BalanceFieldPoints, 3000)
	product := createNormalProduct(t, db, merchant.ID, 100)

	// 抵扣2000分 = ¥20，实付80
	_, err := svc.SettleOrder(ctx, &SettleRequest{
		OrderNo:     "ORD-N-004",
		UserID:      buyer.ID,
		ProductID:   product.ID,
		Quantity:    1,
		PointsToUse: decimal.NewFromInt(2000),
	})
	require.NoError(t, err)

	var order model.Order
	require.NoError(t, db.Where("order_number = ?", "ORD-N-004").First(&order).Error)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(80)))
	assert.True(t, order.PointsDiscount.Equal(decimal.NewFromInt(20)))

	// 扣掉2000分后剩1000，公司积分池1:1入账
	assert.True(t, reloadUser(t, db, buyer.ID).Points.Equal(decimal.NewFromInt(1000)))
	assert.True(t, poolBalance(t, db, model.AccountCompanyPoints).Equal(decimal.NewFromInt(2000)))

	// 商家分成以实付金额为基数
	assert.True(t, reloadUser(t, db, merchant.ID).MerchantBalance.Equal(decimal.NewFromInt(64)))
}

func TestSettleNormalOrder_PointsCapExceeded(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())

	merchant := createTestUser(t, db, "商家丁")
	buyer := createTestUser(t, db, "贪心买家")
	setUserBalance(t, db, buyer.ID, model.BalanceFieldPoints, 10000)
	product := createNormalProduct(t, db, merchant.ID, 100)

	// 上限是 100×0.5/0.01 = 5000 分
	_, err := svc.SettleOrder(context.Background(), &SettleRequest{
		OrderNo:     "ORD-N-005",
		UserID:      buyer.ID,
		ProductID:   product.ID,
		Quantity:    1,
		PointsToUse: decimal.NewFromInt(5001),
	})
	assert.ErrorIs(t, err, ErrPointsCapExceeded)

	// 失败不留任何痕迹
	assert.True(t, reloadUser(t, db, buyer.ID).Points.Equal(decimal.NewFromInt(10000)))
	var orderCount int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(0), orderCount)
}

func TestSettleNormalOrder_PointsInsufficient(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())

	merchant := createTestUser(t, db, "商家戊")
	buyer := createTestUser(t, db, "没分买家")
	product := createNormalProduct(t, db, merchant.ID, 100)

	_, err := svc.SettleOrder(context.Background(), &SettleRequest{
		OrderNo:     "ORD-N-006",
		UserID:      buyer.ID,
		ProductID:   product.ID,
		Quantity:    1,
		PointsToUse: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, ErrPointsInsufficient)
}

func TestSettleOrder_InputValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())
	ctx := context.Background()

	buyer := createTestUser(t, db, "买家验证")

	// 商品不存在
	_, err := svc.SettleOrder(ctx, &SettleRequest{
		OrderNo:   "ORD-V-001",
		UserID:    buyer.ID,
		ProductID: 999,
		Quantity:  1,
	})
	assert.ErrorIs(t, err, ErrProductUnavailable)

	// 下架商品
	offProduct := createNormalProduct(t, db, testPlatformMerchantID, 100)
	require.NoError(t, db.Model(&model.Product{}).
		Where("id = ?", offProduct.ID).
		Update("status", model.ProductStatusOff).Error)
	_, err = svc.SettleOrder(ctx, &SettleRequest{
		OrderNo:   "ORD-V-002",
		UserID:    buyer.ID,
		ProductID: offProduct.ID,
		Quantity:  1,
	})
	assert.ErrorIs(t, err, ErrProductUnavailable)

	// 商家不存在
	ghostProduct := createNormalProduct(t, db, 777, 100)
	_, err = svc.SettleOrder(ctx, &SettleRequest{
		OrderNo:   "ORD-V-003",
		UserID:    buyer.ID,
		ProductID: ghostProduct.ID,
		Quantity:  1,
	})
	assert.ErrorIs(t, err, ErrMerchantNotFound)

	// 买家不存在
	product := createNormalProduct(t, db, testPlatformMerchantID, 100)
	_, err = svc.SettleOrder(ctx, &SettleRequest{
		OrderNo:   "ORD-V-004",
		UserID:    888,
		ProductID: product.ID,
		Quantity:  1,
	})
	assert.ErrorIs(t, err, ErrBuyerNotFound)
}

func TestSettleOrder_SkuPricePreferred(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettlementService(db, setupTestRedis(t), testConfig())

	buyer := createTestUser(t, db, "SKU买家")
	product := createNormalProduct(t, db, testPlatformMerchantID, 100)
	require.NoError(t, db.Create(&model.ProductSku{
		ProductID: product.ID,
		Price:     decimal.NewFromInt(88),
	}).Error)

	_, err := svc.SettleOrder(context.Background(), &SettleRequest{
		OrderNo:   "ORD-S-001",
		UserID:    buyer.ID,
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)

	var order model.Order
	require.NoError(t, db.Where("order_number = ?", "ORD-S-001").First(&order).Error)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(88)),
		"SKU价格应优先于基础价，实际 %s", order.TotalAmount)
}
