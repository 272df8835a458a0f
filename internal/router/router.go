package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"SmsRelay/internal/handler"
	"SmsRelay/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	// 供应商 DLR 回调，鉴权在 handler 内完成（token + 可选 HMAC 签名）
	h.POST("/webhook/dlr", handler.Webhook().HandleDLR)

	v1 := h.Group("/v1")

	// 短信消息路由
	messages := v1.Group("/messages")
	{
		messages.POST("", handler.CreateMessage)
		messages.POST("/compose", handler.ComposeMessages)
		messages.GET("", handler.ListMessages)
		messages.GET("/:id", handler.GetMessage)
		messages.POST("/:id/queue", handler.QueueMessage)
	}

	// 投递看板
	dashboard := v1.Group("/dashboard")
	{
		dashboard.GET("/kpis", handler.GetDashboardKPIs)
	}

	// 配置查询
	settings := v1.Group("/settings")
	{
		settings.GET("/dlr-url", handler.GetDlrURL)
	}
}
