package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 平台资金池账户类型
// 池子账户不属于任何用户，按固定比例沉淀交易额
const (
	AccountPlatformRevenue = "platform_revenue_pool" // 平台收入池
	AccountPublicWelfare   = "public_welfare"        // 公益基金
	AccountMaintain        = "maintain"              // 维护基金
	AccountSubsidy         = "subsidy_pool"          // 补贴池
	AccountDirector        = "director"              // 董事池
	AccountShop            = "shop"                  // 门店池
	AccountCity            = "city"                  // 城市池
	AccountBranch          = "branch"                // 分部池
	AccountFund            = "fund"                  // 储备基金
	AccountCompanyPoints   = "company_points"        // 公司积分（积分单位，非现金）
	AccountCompanyBalance  = "company_balance"       // 公司余额（提现个税归集）
)

// FinanceAccount 平台资金池账户表
// 余额必须等于该账户全部流水之和，首次入账时自动建账
type FinanceAccount struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountType string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"account_type"`
	AccountName string          `gorm:"type:varchar(64);not null" json:"account_name"`
	Balance     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0.0000" json:"balance"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FinanceAccount) TableName() string {
	return "finance_accounts"
}
