// Package service 结算核心单元测试
package service

import (
	"fmt"
	"testing"

	"settlecore/internal/config"
	"settlecore/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.FinanceAccount{},
		&model.User{},
		&model.Order{},
		&model.OrderItem{},
		&model.Product{},
		&model.ProductSku{},
		&model.AccountFlow{},
		&model.PointsLog{},
		&model.PendingReward{},
		&model.Coupon{},
		&model.UserReferral{},
		&model.Withdrawal{},
		&model.WeeklySubsidyRecord{},
		&model.OutboxMessage{},
	))

	return db
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// 平台商户ID取一个远大于自增起点的值，避免和测试里创建的真实商家撞号
const testPlatformMerchantID int64 = 9999

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Kafka.Topic.SettleResult = "settle_result"
	cfg.Kafka.Topic.RefundResult = "refund_result"
	cfg.Settlement = config.SettlementConfig{
		PlatformMerchantID: testPlatformMerchantID,
		PlatformShare:      0.80,
		Allocations: map[string]float64{
			model.AccountPublicWelfare: 0.01,
			model.AccountMaintain:      0.01,
			model.AccountSubsidy:       0.12,
			model.AccountDirector:      0.02,
			model.AccountShop:          0.01,
			model.AccountCity:          0.01,
			model.AccountBranch:        0.005,
			model.AccountFund:          0.015,
		},
		MemberProductPrice:   100,
		PointsDiscountRate:   0.01,
		MaxPointsValue:       0.1,
		TaxRate:              0.06,
		ManualAuditThreshold: 5000,
		CouponValidDays:      30,
		MaxPurchasePerDay:    2,
		MaxTeamLayer:         6,
		MaxRetryCount:        3,
	}
	return cfg
}

func createTestUser(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()

	user := &model.User{
		Mobile: fmt.Sprintf("138%08d", len(name)),
		Name:   name,
		Status: model.UserStatusNormal,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createMemberProduct(t *testing.T, db *gorm.DB, price float64) *model.Product {
	t.Helper()

	p := decimal.NewFromFloat(price)
	product := &model.Product{
		Name:            "会员礼包",
		MerchantID:      testPlatformMerchantID,
		Price:           &p,
		IsMemberProduct: true,
		Status:          model.ProductStatusOn,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func createNormalProduct(t *testing.T, db *gorm.DB, merchantID int64, price float64) *model.Product {
	t.Helper()

	p := decimal.NewFromFloat(price)
	product := &model.Product{
		Name:            "普通商品",
		MerchantID:      merchantID,
		Price:           &p,
		IsMemberProduct: false,
		Status:          model.ProductStatusOn,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedPool(t *testing.T, db *gorm.DB, accountType string, balance float64) {
	t.Helper()

	require.NoError(t, db.Create(&model.FinanceAccount{
		AccountType: accountType,
		AccountName: accountType,
		Balance:     decimal.NewFromFloat(balance),
	}).Error)
}

func poolBalance(t *testing.T, db *gorm.DB, accountType string) decimal.Decimal {
	t.Helper()

	var account model.FinanceAccount
	err := db.Where("account_type = ?", accountType).First(&account).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero
	}
	require.NoError(t, err)
	return account.Balance
}

func reloadUser(t *testing.T, db *gorm.DB, userID int64) *model.User {
	t.Helper()

	var user model.User
	require.NoError(t, db.First(&user, userID).Error)
	return &user
}

func setReferrer(t *testing.T, db *gorm.DB, userID, referrerID int64) {
	t.Helper()

	require.NoError(t, db.Create(&model.UserReferral{
		UserID:     userID,
		ReferrerID: referrerID,
	}).Error)
}

func setUserLevel(t *testing.T, db *gorm.DB, userID int64, level int) {
	t.Helper()

	require.NoError(t, db.Model(&model.User{}).
		Where("id = ?", userID).
		Update("member_level", level).Error)
}

func setUserBalance(t *testing.T, db *gorm.DB, userID int64, field string, value float64) {
	t.Helper()

	require.NoError(t, db.Model(&model.User{}).
		Where("id = ?", userID).
		Update(field, decimal.NewFromFloat(value)).Error)
}
