package handler

import (
	"investsystem/internal/config"

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

	// 管理端路由组，全部要求管理员身份
	admin := r.Group("/api/v1/admin")
	admin.Use(AdminAuthMiddleware())
	{
		// 投资生命周期
		investments := admin.Group("/investments")
		{
			investments.GET("", h.ListInvestments)
			investments.GET("/detail", h.GetInvestment)
			investments.POST("/create", h.CreateInvestments)
			investments.POST("/edit", h.EditInvestment)
			investments.POST("/cancel", h.CancelInvestment)
			investments.POST("/stop", h.StopInvestment)
			investments.POST("/force-pay", h.ForcePayInvestment)
			investments.POST("/catch-up", h.CatchUpInvestment)
			investments.POST("/trigger-payouts", h.TriggerPayouts)
		}

		// 余额与流水
		balance := admin.Group("/balance")
		{
			balance.GET("", h.GetBalance)
			balance.POST("/adjust", h.AdjustBalance)
		}
		admin.GET("/ledger", h.ListLedger)

		// 出入金审核
		deposits := admin.Group("/deposits")
		{
			deposits.GET("", h.ListDeposits)
			deposits.POST("/approve", h.ApproveDeposit)
			deposits.POST("/reject", h.RejectDeposit)
		}
		withdrawals := admin.Group("/withdrawals")
		{
			withdrawals.GET("", h.ListWithdrawals)
			withdrawals.POST("/approve", h.ApproveWithdrawal)
			withdrawals.POST("/reject", h.RejectWithdrawal)
		}

		// 看板
		admin.GET("/stats", h.GetStats)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
