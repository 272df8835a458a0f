package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"SmsRelay/config"
	"SmsRelay/internal/service"
	"SmsRelay/pkg/response"
)

// GetDashboardKPIs 投递看板指标
func GetDashboardKPIs(ctx context.Context, c *app.RequestContext) {
	kpis, err := service.Dashboard().KPIs(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, kpis)
}

// GetDlrURL 返回要配置在供应商后台的 DLR 回调地址
func GetDlrURL(ctx context.Context, c *app.RequestContext) {
	dlrURL := config.Cfg.GetDlrURL()

	response.Success(ctx, c, map[string]interface{}{
		"dlr_url":    dlrURL,
		"configured": dlrURL != "",
	})
}
