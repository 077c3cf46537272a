package handler

import (
	"cricketledger/internal/config"

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
		// 用户与钱包
		user := api.Group("/user")
		{
			user.POST("/register", h.Register)
		}
		wallet := api.Group("/wallet")
		{
			wallet.GET("/balance", h.GetBalance)
		}

		// 充值回调（先验签，再进业务）
		deposit := api.Group("/deposit")
		deposit.Use(WebhookSignatureMiddleware(cfg.Deposit.WebhookSecret))
		{
			deposit.POST("/notify", h.DepositNotify)
		}

		// 比赛
		contest := api.Group("/contest")
		{
			contest.POST("/join", h.JoinContest)
		}

		// 提现
		withdraw := api.Group("/withdraw")
		{
			withdraw.POST("/request", h.RequestWithdrawal)
		}

		// 管理端
		admin := api.Group("/admin")
		{
			admin.POST("/contest/create", h.CreateContest)
			admin.POST("/contest/open", h.OpenContest)
			admin.POST("/contest/close", h.CloseContest)
			admin.POST("/contest/rank", h.AssignRank)
			admin.POST("/contest/settle", h.SettleContest)
			admin.POST("/contest/cancel", h.CancelContest)
			admin.POST("/withdraw/review", h.ReviewWithdrawal)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
