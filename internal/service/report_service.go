package service

import (
	"context"
	"fmt"

	"settlecore/internal/config"
	"settlecore/internal/model"
	"settlecore/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportService 只读报表，对账务数据做简单投影，不含业务逻辑
type ReportService struct {
	db           *gorm.DB
	cfg          *config.Config
	accountRepo  *repository.AccountRepository
	userRepo     *repository.UserRepository
	flowRepo     *repository.FlowRepository
	rewardRepo   *repository.RewardRepository
	referralRepo *repository.ReferralRepository
	orderRepo    *repository.OrderRepository
	subsidyRepo  *repository.SubsidyRepository
}

func NewReportService(db *gorm.DB, cfg *config.Config) *ReportService {
	return &ReportService{
		db:           db,
		cfg:          cfg,
		accountRepo:  repository.NewAccountRepository(db),
		userRepo:     repository.NewUserRepository(db),
		flowRepo:     repository.NewFlowRepository(db),
		rewardRepo:   repository.NewRewardRepository(db),
		referralRepo: repository.NewReferralRepository(db),
		orderRepo:    repository.NewOrderRepository(db),
		subsidyRepo:  repository.NewSubsidyRepository(db),
	}
}

// PoolBalance 单个池子余额
type PoolBalance struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Balance decimal.Decimal `json:"balance"`
}

// FinanceReport 平台资产总览
type FinanceReport struct {
	UserPoints      decimal.Decimal `json:"user_points"`
	UserBalance     decimal.Decimal `json:"user_balance"`
	MerchantPoints  decimal.Decimal `json:"merchant_points"`
	MerchantBalance decimal.Decimal `json:"merchant_balance"`
	PlatformPools   []*PoolBalance  `json:"platform_pools"`
	UnusedCouponNum int64           `json:"unused_coupon_num"`
	UnusedCouponSum decimal.Decimal `json:"unused_coupon_sum"`
}

// GetFinanceReport 全平台资产总览
func (s *ReportService) GetFinanceReport(ctx context.Context) (*FinanceReport, error) {
	report := &FinanceReport{}

	var err error
	if report.UserPoints, err = s.userRepo.SumPoints(ctx, model.BalanceFieldPoints); err != nil {
		return nil, fmt.Errorf("统计用户积分失败: %w", err)
	}
	if report.UserBalance, err = s.userRepo.SumPoints(ctx, model.BalanceFieldPromotion); err != nil {
		return nil, fmt.Errorf("统计用户余额失败: %w", err)
	}
	if report.MerchantPoints, err = s.userRepo.SumPoints(ctx, model.BalanceFieldMerchantPoints); err != nil {
		return nil, fmt.Errorf("统计商家积分失败: %w", err)
	}
	if report.MerchantBalance, err = s.userRepo.SumPoints(ctx, model.BalanceFieldMerchant); err != nil {
		return nil, fmt.Errorf("统计商家余额失败: %w", err)
	}

	accounts, err := s.accountRepo.ListPositive(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询资金池失败: %w", err)
	}
	for _, account := range accounts {
		report.PlatformPools = append(report.PlatformPools, &PoolBalance{
			Name:    account.AccountName,
			Type:    account.AccountType,
			Balance: account.Balance,
		})
	}

	stats, err := s.rewardRepo.UnusedCouponStats(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("统计优惠券失败: %w", err)
	}
	report.UnusedCouponNum = stats.Count
	report.UnusedCouponSum = stats.TotalAmount
	return report, nil
}

// GetAccountBalance 单个池子余额
func (s *ReportService) GetAccountBalance(ctx context.Context, accountType string) (decimal.Decimal, error) {
	return s.accountRepo.GetBalance(ctx, nil, accountType)
}

// GetAccountFlow 池子流水，倒序
func (s *ReportService) GetAccountFlow(ctx context.Context, accountType string, limit int) ([]*model.AccountFlow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if accountType == "" {
		return s.flowRepo.ListRecent(ctx, limit)
	}
	return s.flowRepo.ListByAccountType(ctx, accountType, limit)
}

// AccountReport 指定池子在时间段内的收支汇总和明细
type AccountReport struct {
	Summary *repository.FlowSummary `json:"summary"`
	Details []*model.AccountFlow    `json:"details"`
}

// GetAccountReport 按日期范围出池子对账单，日期格式 2006-01-02
func (s *ReportService) GetAccountReport(ctx context.Context, accountType, startDate, endDate string) (*AccountReport, error) {
	summary, err := s.flowRepo.SummarizeByAccountType(ctx, accountType, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("汇总流水失败: %w", err)
	}
	details, err := s.flowRepo.ListByAccountTypeBetween(ctx, accountType, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("查询流水明细失败: %w", err)
	}
	return &AccountReport{Summary: summary, Details: details}, nil
}

// UserAssetInfo 用户资产快照
type UserAssetInfo struct {
	User            *model.User     `json:"user"`
	ReferrerID      *int64          `json:"referrer_id"`
	UnusedCouponNum int64           `json:"unused_coupon_num"`
	UnusedCouponSum decimal.Decimal `json:"unused_coupon_sum"`
}

// GetUserInfo 用户资产快照，含推荐人和未用优惠券统计
func (s *ReportService) GetUserInfo(ctx context.Context, userID int64) (*UserAssetInfo, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	referrerID, err := s.referralRepo.GetReferrerID(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("查询推荐人失败: %w", err)
	}
	stats, err := s.rewardRepo.UnusedCouponStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("统计优惠券失败: %w", err)
	}
	return &UserAssetInfo{
		User:            user,
		ReferrerID:      referrerID,
		UnusedCouponNum: stats.Count,
		UnusedCouponSum: stats.TotalAmount,
	}, nil
}

// GetPointsLog 积分变动流水
func (s *ReportService) GetPointsLog(ctx context.Context, userID int64, limit int) ([]*model.PointsLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.flowRepo.ListPointsLog(ctx, userID, limit)
}

// GetSubsidyRecords 周补贴发放记录，userID 为0时不限用户
func (s *ReportService) GetSubsidyRecords(ctx context.Context, userID int64, limit int) ([]*model.WeeklySubsidyRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.subsidyRepo.List(ctx, userID, limit)
}

// GetUserOrders 用户订单分页列表
func (s *ReportService) GetUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
}
