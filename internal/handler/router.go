package handler

import (
	"settlecore/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 结算与退款
		settle := api.Group("/settle")
		{
			settle.POST("/execute", h.Settle)
		}
		refund := api.Group("/refund")
		{
			refund.POST("/execute", h.Refund)
		}
		order := api.Group("/order")
		{
			order.GET("/list", h.ListOrders)
		}

		// 奖励与优惠券
		reward := api.Group("/reward")
		{
			reward.POST("/audit", h.AuditRewards)
			reward.GET("/list", h.ListRewards)
		}
		coupon := api.Group("/coupon")
		{
			coupon.GET("/list", h.ListCoupons)
		}

		// 提现
		withdrawal := api.Group("/withdrawal")
		{
			withdrawal.POST("/apply", h.ApplyWithdrawal)
			withdrawal.POST("/audit", h.AuditWithdrawal)
			withdrawal.GET("/list", h.ListWithdrawals)
		}

		// 推荐关系
		referral := api.Group("/referral")
		{
			referral.POST("/set", h.SetReferrer)
			referral.GET("/referrer", h.GetReferrer)
			referral.GET("/team", h.GetTeam)
		}

		// 周补贴
		subsidy := api.Group("/subsidy")
		{
			subsidy.POST("/run", h.RunWeeklySubsidy)
			subsidy.GET("/records", h.ListSubsidyRecords)
		}

		// 报表
		report := api.Group("/report")
		{
			report.GET("/finance", h.GetFinanceReport)
			report.GET("/account/balance", h.GetAccountBalance)
			report.GET("/account/flow", h.GetAccountFlow)
			report.GET("/account/statement", h.GetAccountReport)
		}

		// 用户
		user := api.Group("/user")
		{
			user.GET("/info", h.GetUserInfo)
			user.GET("/points/log", h.GetPointsLog)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
