package handler

import (
	"errors"
	"strconv"

	"settlecore/internal/config"
	"settlecore/internal/service"
	"settlecore/pkg/idgen"
	"settlecore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	settlementService *service.SettlementService
	refundService     *service.RefundService
	rewardService     *service.RewardService
	referralService   *service.ReferralService
	withdrawalService *service.WithdrawalService
	subsidyService    *service.SubsidyService
	reportService     *service.ReportService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		settlementService: service.NewSettlementService(db, rdb, cfg),
		refundService:     service.NewRefundService(db, rdb, cfg),
		rewardService:     service.NewRewardService(db, cfg),
		referralService:   service.NewReferralService(db, cfg),
		withdrawalService: service.NewWithdrawalService(db, cfg),
		subsidyService:    service.NewSubsidyService(db, cfg),
		reportService:     service.NewReportService(db, cfg),
	}
}

// writeError 把业务错误翻译成响应码，未识别的按服务器错误处理
func writeError(c *gin.Context, err error) {
	switch {
	case service.IsInsufficientBalance(err):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadyRefunded):
		response.BusinessError(c, response.CodeAlreadyRefunded, err.Error())
	case errors.Is(err, service.ErrPointsInsufficient),
		errors.Is(err, service.ErrPointsCapExceeded):
		response.BusinessError(c, response.CodePointsNotEnough, err.Error())
	case errors.Is(err, service.ErrPurchaseLimitExceeded):
		response.BusinessError(c, response.CodePurchaseLimit, err.Error())
	case errors.Is(err, service.ErrProductUnavailable):
		response.BusinessError(c, response.CodeProductUnavailable, err.Error())
	case errors.Is(err, service.ErrBuyerNotFound),
		errors.Is(err, service.ErrMerchantNotFound):
		response.BusinessError(c, response.CodeUserNotFound, err.Error())
	case errors.Is(err, service.ErrEmptyRewardIDs),
		errors.Is(err, service.ErrNoRewardsFound):
		response.BusinessError(c, response.CodeRewardNotFound, err.Error())
	case errors.Is(err, service.ErrWithdrawalNotFound),
		errors.Is(err, service.ErrWithdrawalProcessed):
		response.BusinessError(c, response.CodeWithdrawalInvalid, err.Error())
	case errors.Is(err, service.ErrReferrerNotFound),
		errors.Is(err, service.ErrSelfReferral),
		errors.Is(err, service.ErrAlreadyHasReferrer):
		response.BusinessError(c, response.CodeReferralInvalid, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return value, true
}

// ============================================================
// 结算相关接口
// ============================================================

// SettleRequest 结算请求
type SettleRequest struct {
	OrderNo     string `json:"order_no"` // 不传则服务端生成
	UserID      int64  `json:"user_id" binding:"required"`
	ProductID   int64  `json:"product_id" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	PointsToUse string `json:"points_to_use"` // 普通商品积分抵扣，十进制字符串
}

// Settle 结算订单
// POST /api/v1/settle/execute
//
// 【关键点】结算是整个系统最核心的操作，需要保证：
// 1. 原子性：订单落库、分账、积分、升级、奖励入队同时成功或同时失败
// 2. 并发安全：同一买家的结算通过分布式锁加行锁串行化
func (h *Handler) Settle(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	pointsToUse := decimal.Zero
	if req.PointsToUse != "" {
		var err error
		pointsToUse, err = decimal.NewFromString(req.PointsToUse)
		if err != nil {
			response.ParamError(c, "points_to_use 参数错误")
			return
		}
	}

	orderNo := req.OrderNo
	if orderNo == "" {
		orderNo = idgen.GenerateOrderNo()
	}

	orderID, err := h.settlementService.SettleOrder(c.Request.Context(), &service.SettleRequest{
		OrderNo:     orderNo,
		UserID:      req.UserID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		PointsToUse: pointsToUse,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_id": orderID,
		"order_no": orderNo,
	})
}

// RefundRequest 退款请求
type RefundRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
}

// Refund 订单退款
// POST /api/v1/refund/execute
func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.refundService.RefundOrder(c.Request.Context(), req.OrderNo); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "退款成功"})
}

// ListOrders 查询用户订单列表
// GET /api/v1/order/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.reportService.GetUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 奖励相关接口
// ============================================================

// AuditRewardsRequest 奖励审核请求
type AuditRewardsRequest struct {
	RewardIDs []int64 `json:"reward_ids" binding:"required"`
	Approve   *bool   `json:"approve" binding:"required"`
}

// AuditRewards 批量审核奖励
// POST /api/v1/reward/audit
func (h *Handler) AuditRewards(c *gin.Context) {
	var req AuditRewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.rewardService.AuditRewards(c.Request.Context(), req.RewardIDs, *req.Approve); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "审核完成"})
}

// ListRewards 按状态查询奖励
// GET /api/v1/reward/list?status=pending&reward_type=team&limit=50
func (h *Handler) ListRewards(c *gin.Context) {
	status := c.DefaultQuery("status", "pending")
	rewardType := c.Query("reward_type")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	rewards, err := h.rewardService.ListRewards(c.Request.Context(), status, rewardType, limit)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": rewards})
}

// ListCoupons 查询用户优惠券
// GET /api/v1/coupon/list?user_id=xxx&status=unused
func (h *Handler) ListCoupons(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	status := c.DefaultQuery("status", "unused")

	coupons, err := h.rewardService.ListUserCoupons(c.Request.Context(), userID, status)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": coupons})
}

// ============================================================
// 提现相关接口
// ============================================================

// ApplyWithdrawalRequest 提现申请请求
type ApplyWithdrawalRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Amount string `json:"amount" binding:"required"`
	Type   string `json:"type" binding:"required"` // user / merchant
}

// ApplyWithdrawal 提现申请
// POST /api/v1/withdrawal/apply
func (h *Handler) ApplyWithdrawal(c *gin.Context) {
	var req ApplyWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		response.ParamError(c, "amount 参数错误")
		return
	}

	withdrawalID, err := h.withdrawalService.ApplyWithdrawal(c.Request.Context(), req.UserID, amount, req.Type)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"withdrawal_id": withdrawalID})
}

// AuditWithdrawalRequest 提现审核请求
type AuditWithdrawalRequest struct {
	WithdrawalID int64  `json:"withdrawal_id" binding:"required"`
	Approve      *bool  `json:"approve" binding:"required"`
	Auditor      string `json:"auditor"`
}

// AuditWithdrawal 提现审核
// POST /api/v1/withdrawal/audit
func (h *Handler) AuditWithdrawal(c *gin.Context) {
	var req AuditWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.withdrawalService.AuditWithdrawal(c.Request.Context(), req.WithdrawalID, *req.Approve, req.Auditor); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "审核完成"})
}

// ListWithdrawals 按状态查询提现单
// GET /api/v1/withdrawal/list?status=pending_manual&limit=50
func (h *Handler) ListWithdrawals(c *gin.Context) {
	status := c.DefaultQuery("status", "pending_manual")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	withdrawals, err := h.withdrawalService.ListWithdrawals(c.Request.Context(), status, limit)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": withdrawals})
}

// ============================================================
// 推荐关系接口
// ============================================================

// SetReferrerRequest 绑定推荐人请求
type SetReferrerRequest struct {
	UserID     int64 `json:"user_id" binding:"required"`
	ReferrerID int64 `json:"referrer_id" binding:"required"`
}

// SetReferrer 绑定推荐人
// POST /api/v1/referral/set
func (h *Handler) SetReferrer(c *gin.Context) {
	var req SetReferrerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.referralService.SetReferrer(c.Request.Context(), req.UserID, req.ReferrerID); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "绑定成功"})
}

// GetReferrer 查询直接推荐人
// GET /api/v1/referral/referrer?user_id=xxx
func (h *Handler) GetReferrer(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	referrer, err := h.referralService.GetReferrer(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if referrer == nil {
		response.Success(c, nil)
		return
	}

	response.Success(c, gin.H{
		"referrer_id":  referrer.ID,
		"name":         referrer.Name,
		"member_level": referrer.MemberLevel,
	})
}

// GetTeam 查询下级团队
// GET /api/v1/referral/team?user_id=xxx&max_layer=6
func (h *Handler) GetTeam(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	maxLayer, _ := strconv.Atoi(c.DefaultQuery("max_layer", "6"))

	team, err := h.referralService.GetTeam(c.Request.Context(), userID, maxLayer)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": team})
}

// ============================================================
// 补贴相关接口
// ============================================================

// RunWeeklySubsidy 手动触发周补贴发放
// POST /api/v1/subsidy/run
func (h *Handler) RunWeeklySubsidy(c *gin.Context) {
	total, err := h.subsidyService.DistributeWeeklySubsidy(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"total_distributed": total})
}

// ListSubsidyRecords 补贴发放记录
// GET /api/v1/subsidy/records?user_id=xxx&limit=50
func (h *Handler) ListSubsidyRecords(c *gin.Context) {
	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := h.reportService.GetSubsidyRecords(c.Request.Context(), userID, limit)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": records})
}

// ============================================================
// 报表接口
// ============================================================

// GetFinanceReport 平台资产总览
// GET /api/v1/report/finance
func (h *Handler) GetFinanceReport(c *gin.Context) {
	report, err := h.reportService.GetFinanceReport(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, report)
}

// GetAccountBalance 查询池子余额
// GET /api/v1/report/account/balance?account_type=public_welfare
func (h *Handler) GetAccountBalance(c *gin.Context) {
	accountType := c.Query("account_type")
	if accountType == "" {
		response.ParamError(c, "account_type 参数不能为空")
		return
	}

	balance, err := h.reportService.GetAccountBalance(c.Request.Context(), accountType)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"account_type": accountType,
		"balance":      balance,
	})
}

// GetAccountFlow 查询池子流水
// GET /api/v1/report/account/flow?account_type=public_welfare&limit=50
func (h *Handler) GetAccountFlow(c *gin.Context) {
	accountType := c.Query("account_type")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	flows, err := h.reportService.GetAccountFlow(c.Request.Context(), accountType, limit)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": flows})
}

// GetAccountReport 池子对账单
// GET /api/v1/report/account/statement?account_type=public_welfare&start_date=2026-01-01&end_date=2026-01-31
func (h *Handler) GetAccountReport(c *gin.Context) {
	accountType := c.Query("account_type")
	startDate := c.Query("start_date")
	endDate := c.Query("end_date")
	if accountType == "" || startDate == "" || endDate == "" {
		response.ParamError(c, "account_type/start_date/end_date 参数不能为空")
		return
	}

	report, err := h.reportService.GetAccountReport(c.Request.Context(), accountType, startDate, endDate)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, report)
}

// GetUserInfo 用户资产快照
// GET /api/v1/user/info?user_id=xxx
func (h *Handler) GetUserInfo(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	info, err := h.reportService.GetUserInfo(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, info)
}

// GetPointsLog 积分流水
// GET /api/v1/user/points/log?user_id=xxx&limit=50
func (h *Handler) GetPointsLog(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.reportService.GetPointsLog(c.Request.Context(), userID, limit)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"list": logs})
}
