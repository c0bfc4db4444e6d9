package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 业务规则错误：入参形态错误在进事务前拦截，业务违规以具体错误返回，
// 任何一种都不允许留下半截账务状态
var (
	ErrProductUnavailable    = errors.New("商品不存在、已下架或无价格信息")
	ErrMerchantNotFound      = errors.New("商家不存在")
	ErrBuyerNotFound         = errors.New("买家不存在")
	ErrPurchaseLimitExceeded = errors.New("24小时内购买会员商品超过限制")
	ErrPointsInsufficient    = errors.New("积分不足")
	ErrPointsCapExceeded     = errors.New("积分抵扣不能超过订单金额的50%")
	ErrOrderNotFound         = errors.New("订单不存在")
	ErrAlreadyRefunded       = errors.New("订单已退款")
	ErrEmptyRewardIDs        = errors.New("奖励ID列表不能为空")
	ErrNoRewardsFound        = errors.New("未找到待审核的奖励记录")
	ErrWithdrawalNotFound    = errors.New("提现记录不存在")
	ErrWithdrawalProcessed   = errors.New("提现记录已处理")
	ErrReferrerNotFound      = errors.New("推荐人不存在")
	ErrSelfReferral          = errors.New("不能设置自己为推荐人")
	ErrAlreadyHasReferrer    = errors.New("用户已存在推荐人，无法重复设置")
	ErrSubsidyPoolEmpty      = errors.New("补贴池余额不足")
	ErrNoPointsInSystem      = errors.New("总积分为0，无法发放补贴")
)

// InsufficientBalanceError 余额不足
// 带上账户、所需金额和当前余额，调用方能直接展示或决策
type InsufficientBalanceError struct {
	Account  string
	Required decimal.Decimal
	Current  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("余额不足: 账户=%s 需要=%s 当前=%s", e.Account, e.Required, e.Current)
}

// IsInsufficientBalance 判断是否余额不足错误
func IsInsufficientBalance(err error) bool {
	var target *InsufficientBalanceError
	return errors.As(err, &target)
}
