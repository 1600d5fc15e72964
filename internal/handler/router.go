package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, logger *slog.Logger, mode string) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware(logger))
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// API 路由组，全部要求客户身份
	api := r.Group("/api/v1", CustomerMiddleware())
	{
		// 账户相关
		accounts := api.Group("/accounts")
		{
			accounts.POST("", h.OpenAccount)
			accounts.GET("", h.ListAccounts)
			accounts.GET("/:number", h.GetAccount)
			accounts.PUT("/:number", h.UpdateAccount)
			accounts.POST("/:number/close", h.CloseAccount)
		}

		api.GET("/dashboard", h.Dashboard)

		// 账务相关
		trans := api.Group("/transactions")
		{
			trans.POST("/deposit", h.Deposit)
			trans.POST("/withdraw", h.Withdraw)
			trans.POST("/transfer", h.Transfer)
			trans.GET("/statement", h.Statement)
			trans.GET("/history", h.History)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
