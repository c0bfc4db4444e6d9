package service

import (
	"context"
	"testing"

	"settlecore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributeWeeklySubsidy(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSubsidyService(db, testConfig())
	ctx := context.Background()

	holder := createTestUser(t, db, "持分用户")
	setUserBalance(t, db, holder.ID, model.BalanceFieldPoints, 500)
	merchant := createTestUser(t, db, "持分商家")
	setUserBalance(t, db, merchant.ID, model.BalanceFieldMerchantPoints, 300)

	seedPool(t, db, model.AccountSubsidy, 100)
	seedPool(t, db, model.AccountCompanyPoints, 200)

	// 100 / (500+300+200) = 0.1，恰好等于积分值上限
	total, err := svc.DistributeWeeklySubsidy(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(80)), "发放总额应为50+30，实际%s", total)

	// 积分按券面价值扣光
	assert.True(t, reloadUser(t, db, holder.ID).Points.IsZero())
	assert.True(t, reloadUser(t, db, merchant.ID).MerchantPoints.IsZero())

	// 补贴池和公司积分都不扣减
	assert.True(t, poolBalance(t, db, model.AccountSubsidy).Equal(decimal.NewFromInt(100)))
	assert.True(t, poolBalance(t, db, model.AccountCompanyPoints).Equal(decimal.NewFromInt(200)))

	var coupons []model.Coupon
	require.NoError(t, db.Order("user_id ASC").Find(&coupons).Error)
	require.Len(t, coupons, 2)
	assert.Equal(t, model.CouponTypeUser, coupons[0].CouponType)
	assert.True(t, coupons[0].Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, model.CouponTypeMerchant, coupons[1].CouponType)
	assert.True(t, coupons[1].Amount.Equal(decimal.NewFromInt(30)))

	var records []model.WeeklySubsidyRecord
	require.NoError(t, db.Order("user_id ASC").Find(&records).Error)
	require.Len(t, records, 2)
	assert.True(t, records[0].PointsBefore.Equal(decimal.NewFromInt(500)))
	assert.True(t, records[0].PointsDeducted.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, coupons[0].ID, records[0].CouponID)
}

func TestDistributeWeeklySubsidy_ValueCapped(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSubsidyService(db, testConfig())

	holder := createTestUser(t, db, "少量积分")
	setUserBalance(t, db, holder.ID, model.BalanceFieldPoints, 10)

	// 1000 / 10 = 100 远超上限0.1，按上限折算
	seedPool(t, db, model.AccountSubsidy, 1000)

	total, err := svc.DistributeWeeklySubsidy(context.Background())
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(1)), "10积分×0.1=¥1，实际%s", total)
	assert.True(t, reloadUser(t, db, holder.ID).Points.IsZero())
}

func TestDistributeWeeklySubsidy_EmptyPool(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSubsidyService(db, testConfig())

	holder := createTestUser(t, db, "空池持分")
	setUserBalance(t, db, holder.ID, model.BalanceFieldPoints, 100)

	_, err := svc.DistributeWeeklySubsidy(context.Background())
	assert.ErrorIs(t, err, ErrSubsidyPoolEmpty)
	assert.True(t, reloadUser(t, db, holder.ID).Points.Equal(decimal.NewFromInt(100)))
}

func TestDistributeWeeklySubsidy_NoPoints(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSubsidyService(db, testConfig())

	createTestUser(t, db, "零积分")
	seedPool(t, db, model.AccountSubsidy, 100)

	_, err := svc.DistributeWeeklySubsidy(context.Background())
	assert.ErrorIs(t, err, ErrNoPointsInSystem)
}

func TestCheckDirectorPromotion(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSubsidyService(db, testConfig())
	ctx := context.Background()

	candidate := createTestUser(t, db, "候选董事")
	setUserLevel(t, db, candidate.ID, 6)

	// 3个直推6星
	directs := make([]*model.User, 3)
	for i := range directs {
		u := createTestUser(t, db, "直推6星")
		setUserLevel(t, db, u.ID, 6)
		setReferrer(t, db, u.ID, candidate.ID)
		directs[i] = u
	}
	// 第2层再挂7个6星，6层内团队合计10人
	for i := 0; i < 7; i++ {
		u := createTestUser(t, db, "团队6星")
		setUserLevel(t, db, u.ID, 6)
		setReferrer(t, db, u.ID, directs[i%3].ID)
	}

	promoted, err := svc.CheckDirectorPromotion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
	assert.Equal(t, model.UserStatusHonorDirector, reloadUser(t, db, candidate.ID).Status)

	// 再跑一次不会重复晋升
	promoted, err = svc.CheckDirectorPromotion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)
}

func TestCheckDirectorPromotion_NotQualified(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSubsidyService(db, testConfig())

	// 直推够3个但团队只有3人，不够10
	candidate := createTestUser(t, db, "团队不足")
	setUserLevel(t, db, candidate.ID, 6)
	for i := 0; i < 3; i++ {
		u := createTestUser(t, db, "仅直推")
		setUserLevel(t, db, u.ID, 6)
		setReferrer(t, db, u.ID, candidate.ID)
	}

	// 直推只有2个6星
	weak := createTestUser(t, db, "直推不足")
	setUserLevel(t, db, weak.ID, 6)
	for i := 0; i < 2; i++ {
		u := createTestUser(t, db, "两个直推")
		setUserLevel(t, db, u.ID, 6)
		setReferrer(t, db, u.ID, weak.ID)
	}

	promoted, err := svc.CheckDirectorPromotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)
	assert.Equal(t, model.UserStatusNormal, reloadUser(t, db, candidate.ID).Status)
	assert.Equal(t, model.UserStatusNormal, reloadUser(t, db, weak.ID).Status)
}
