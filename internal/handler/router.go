package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// API 路由组
	api := r.Group("/api/v1", AuthMiddleware())
	// 封禁中的用户只能查询和付费解封
	banGuard := BanGuardMiddleware(h.banChecker())
	{
		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/ledger", h.ListLedger)
			account.GET("/events", h.ListEvents)
		}

		// 支付回调
		payment := api.Group("/payment")
		{
			payment.POST("/verify-credits", h.VerifyCredits)
			payment.POST("/verify-premium", h.VerifyPremium)
			payment.POST("/verify-unban", h.VerifyUnban)
			payment.GET("/receipt/:payment_id", h.GetReceipt)
		}

		// 帖子相关
		confession := api.Group("/confession", banGuard)
		{
			confession.POST("/quote-post", h.QuotePost)
			confession.POST("/post", h.ChargePost)
			confession.POST("/:id/edit", h.ChargeEdit)
			confession.POST("/:id/react", h.React)
			confession.POST("/:id/react/remove", h.RemoveReactions)
		}

		// 礼物
		gift := api.Group("/gift")
		{
			gift.POST("/send", banGuard, h.SendGift)
			gift.GET("/progress", h.GiftProgress)
		}

		// 加热 / 置顶
		visibility := api.Group("/visibility", banGuard)
		{
			visibility.POST("/boost/:id", h.Boost)
			visibility.POST("/spotlight/:id", h.Spotlight)
			visibility.POST("/premium-boost/:id", h.PremiumBoost)
		}

		api.GET("/ratelimit/status", h.RateLimitStatus)
		api.GET("/premium/status", h.PremiumStatus)

		// 管理后台
		admin := api.Group("/admin", AdminMiddleware())
		{
			admin.POST("/adjust-credits", h.AdjustCredits)
			admin.POST("/ban", h.BanUser)
			admin.GET("/reconcile/:user_id", h.Reconcile)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
