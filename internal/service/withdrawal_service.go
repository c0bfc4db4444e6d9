package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"settlecore/internal/config"
	"settlecore/internal/model"
	"settlecore/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WithdrawalService 提现申请与审核
//
// 申请即冻结：余额在申请时立刻扣掉，审核拒绝才退回。
// 个税在申请时就沉淀到公司余额池，拒绝时退回的是税前全额
type WithdrawalService struct {
	db             *gorm.DB
	cfg            *config.Config
	userRepo       *repository.UserRepository
	withdrawalRepo *repository.WithdrawalRepository
	flowRepo       *repository.FlowRepository
	ledger         *Ledger
}

func NewWithdrawalService(db *gorm.DB, cfg *config.Config) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		cfg:            cfg,
		userRepo:       repository.NewUserRepository(db),
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		flowRepo:       repository.NewFlowRepository(db),
		ledger:         NewLedger(db),
	}
}

func balanceFieldForType(withdrawalType string) string {
	if withdrawalType == model.WithdrawalTypeMerchant {
		return model.BalanceFieldMerchant
	}
	return model.BalanceFieldPromotion
}

// ApplyWithdrawal 提现申请，返回提现单ID
func (s *WithdrawalService) ApplyWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, withdrawalType string) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("提现金额必须大于0")
	}
	if withdrawalType != model.WithdrawalTypeUser && withdrawalType != model.WithdrawalTypeMerchant {
		return 0, fmt.Errorf("不支持的提现类型: %s", withdrawalType)
	}

	balanceField := balanceFieldForType(withdrawalType)
	taxAmount := amount.Mul(decimal.NewFromFloat(s.cfg.Settlement.TaxRate))
	actualAmount := amount.Sub(taxAmount)

	status := model.WithdrawalStatusPendingAuto
	if amount.GreaterThan(decimal.NewFromFloat(s.cfg.Settlement.ManualAuditThreshold)) {
		status = model.WithdrawalStatusPendingManual
	}

	var withdrawalID int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		withdrawal := &model.Withdrawal{
			UserID:         userID,
			Amount:         amount,
			TaxAmount:      taxAmount,
			ActualAmount:   actualAmount,
			WithdrawalType: withdrawalType,
			Status:         status,
		}
		if err := s.withdrawalRepo.Create(ctx, tx, withdrawal); err != nil {
			return fmt.Errorf("创建提现单失败: %w", err)
		}
		withdrawalID = withdrawal.ID

		// 冻结：申请即扣减余额
		_, err := s.ledger.AddUserBalance(ctx, tx, userID, balanceField, amount.Neg(),
			fmt.Sprintf("%s_提现申请冻结 #%d", withdrawalType, withdrawalID))
		if err != nil {
			if errors.Is(err, repository.ErrUserBalanceNotEnough) {
				return s.insufficientUserBalance(ctx, tx, userID, balanceField, amount)
			}
			if errors.Is(err, repository.ErrUserNotFound) {
				return fmt.Errorf("%w: %d", ErrBuyerNotFound, userID)
			}
			return fmt.Errorf("冻结提现余额失败: %w", err)
		}

		// 个税在申请时就入公司余额池
		_, err = s.ledger.AddPool(ctx, tx, model.AccountCompanyBalance, taxAmount,
			fmt.Sprintf("%s_提现个税 #%d", withdrawalType, withdrawalID), &userID)
		if err != nil {
			return fmt.Errorf("个税入账失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("提现申请 #%d: ¥%s（税¥%s，实到¥%s，状态%s）",
		withdrawalID, amount.StringFixed(2), taxAmount.StringFixed(2), actualAmount.StringFixed(2), status)
	return withdrawalID, nil
}

// AuditWithdrawal 审核提现
// 通过只记到账流水（打款动作在外部系统），拒绝退回税前全额
func (s *WithdrawalService) AuditWithdrawal(ctx context.Context, withdrawalID int64, approve bool, auditor string) error {
	if auditor == "" {
		auditor = "admin"
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		withdrawal, err := s.withdrawalRepo.GetForUpdate(ctx, tx, withdrawalID)
		if err != nil {
			if errors.Is(err, repository.ErrWithdrawalNotFound) {
				return fmt.Errorf("%w: %d", ErrWithdrawalNotFound, withdrawalID)
			}
			return fmt.Errorf("锁定提现单失败: %w", err)
		}
		if withdrawal.Status != model.WithdrawalStatusPendingAuto &&
			withdrawal.Status != model.WithdrawalStatusPendingManual {
			return fmt.Errorf("%w: %d", ErrWithdrawalProcessed, withdrawalID)
		}

		newStatus := model.WithdrawalStatusApproved
		if !approve {
			newStatus = model.WithdrawalStatusRejected
		}
		if err := s.withdrawalRepo.Resolve(ctx, tx, withdrawalID, newStatus, fmt.Sprintf("%s审核", auditor)); err != nil {
			return fmt.Errorf("更新提现状态失败: %w", err)
		}

		if approve {
			// 实际打款走外部渠道，这里只留审计流水
			err := s.flowRepo.CreateAccountFlow(ctx, tx, &model.AccountFlow{
				AccountType:  "withdrawal",
				RelatedUser:  &withdrawal.UserID,
				ChangeAmount: withdrawal.ActualAmount,
				BalanceAfter: decimal.Zero,
				FlowType:     model.FlowTypeIncome,
				Remark:       fmt.Sprintf("提现到账 #%d", withdrawalID),
			})
			if err != nil {
				return fmt.Errorf("记录到账流水失败: %w", err)
			}
			log.Printf("提现审核通过 #%d，到账¥%s", withdrawalID, withdrawal.ActualAmount.StringFixed(2))
			return nil
		}

		balanceField := balanceFieldForType(withdrawal.WithdrawalType)
		_, err = s.ledger.AddUserBalance(ctx, tx, withdrawal.UserID, balanceField, withdrawal.Amount,
			fmt.Sprintf("提现拒绝退回 #%d", withdrawalID))
		if err != nil {
			return fmt.Errorf("退回提现余额失败: %w", err)
		}
		log.Printf("提现审核拒绝 #%d，退回¥%s", withdrawalID, withdrawal.Amount.StringFixed(2))
		return nil
	})
	return err
}

// ListWithdrawals 按状态查询提现单
func (s *WithdrawalService) ListWithdrawals(ctx context.Context, status string, limit int) ([]*model.Withdrawal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.withdrawalRepo.ListByStatus(ctx, status, limit)
}

func (s *WithdrawalService) insufficientUserBalance(ctx context.Context, tx *gorm.DB, userID int64, field string, required decimal.Decimal) error {
	current := decimal.Zero
	if user, err := s.userRepo.GetByID(ctx, tx, userID); err == nil {
		switch field {
		case model.BalanceFieldPromotion:
			current = user.PromotionBalance
		case model.BalanceFieldMerchant:
			current = user.MerchantBalance
		}
	}
	return &InsufficientBalanceError{
		Account:  fmt.Sprintf("%s(userID=%d)", field, userID),
		Required: required,
		Current:  current,
	}
}
