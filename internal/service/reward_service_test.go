package service

import (
	"context"
	"testing"

	"settlecore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createPendingReward(t *testing.T, db *gorm.DB, userID int64, rewardType string, amount float64) *model.PendingReward {
	t.Helper()

	reward := &model.PendingReward{
		UserID:     userID,
		RewardType: rewardType,
		Amount:     decimal.NewFromFloat(amount),
		OrderID:    1,
		Status:     model.RewardStatusPending,
	}
	require.NoError(t, db.Create(reward).Error)
	return reward
}

func TestAuditRewards_Approve(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRewardService(db, testConfig())
	ctx := context.Background()

	user := createTestUser(t, db, "领奖人")
	reward := createPendingReward(t, db, user.ID, model.RewardTypeReferral, 50)

	require.NoError(t, svc.AuditRewards(ctx, []int64{reward.ID}, true))

	// 奖励置为已批准
	var after model.PendingReward
	require.NoError(t, db.First(&after, reward.ID).Error)
	assert.Equal(t, model.RewardStatusApproved, after.Status)

	// 发放等额优惠券，有效期30天
	var coupon model.Coupon
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&coupon).Error)
	assert.True(t, coupon.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, model.CouponStatusUnused, coupon.Status)
	assert.Equal(t, 30, int(coupon.ValidTo.Sub(coupon.ValidFrom).Hours()/24))

	// 零金额审计流水
	var flow model.AccountFlow
	require.NoError(t, db.Where("account_type = ? AND related_user = ?", "coupon", user.ID).First(&flow).Error)
	assert.True(t, flow.ChangeAmount.IsZero())
	assert.Equal(t, model.FlowTypeCoupon, flow.FlowType)
}

func TestAuditRewards_Reject(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRewardService(db, testConfig())

	user := createTestUser(t, db, "被拒领奖人")
	r1 := createPendingReward(t, db, user.ID, model.RewardTypeReferral, 50)
	r2 := createPendingReward(t, db, user.ID, model.RewardTypeTeam, 50)

	require.NoError(t, svc.AuditRewards(context.Background(), []int64{r1.ID, r2.ID}, false))

	var rejected int64
	require.NoError(t, db.Model(&model.PendingReward{}).
		Where("status = ?", model.RewardStatusRejected).Count(&rejected).Error)
	assert.Equal(t, int64(2), rejected)

	// 拒绝不发券
	var couponCount int64
	require.NoError(t, db.Model(&model.Coupon{}).Count(&couponCount).Error)
	assert.Equal(t, int64(0), couponCount)
}

func TestAuditRewards_Validation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRewardService(db, testConfig())
	ctx := context.Background()

	err := svc.AuditRewards(ctx, nil, true)
	assert.ErrorIs(t, err, ErrEmptyRewardIDs)

	err = svc.AuditRewards(ctx, []int64{12345}, true)
	assert.ErrorIs(t, err, ErrNoRewardsFound)
}

func TestAuditRewards_AlreadyProcessedSkipped(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRewardService(db, testConfig())
	ctx := context.Background()

	user := createTestUser(t, db, "重复审核")
	reward := createPendingReward(t, db, user.ID, model.RewardTypeReferral, 50)

	require.NoError(t, svc.AuditRewards(ctx, []int64{reward.ID}, true))

	// 同一批ID再审一次：没有待审核记录了
	err := svc.AuditRewards(ctx, []int64{reward.ID}, true)
	assert.ErrorIs(t, err, ErrNoRewardsFound)

	// 不会重复发券
	var couponCount int64
	require.NoError(t, db.Model(&model.Coupon{}).Count(&couponCount).Error)
	assert.Equal(t, int64(1), couponCount)
}
