package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dbf-pipeline/pkg/api/handler"
	"github.com/LENAX/dbf-pipeline/pkg/api/middleware"
)

// SetupRouter 设置路由
func SetupRouter(ctx context.Context, runner handler.Runner, source handler.EventSource, version string) *gin.Engine {
	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	// 创建handlers
	runHandler := handler.NewRunHandler(ctx, runner, source)
	healthHandler := handler.NewHealthHandler(version, runner)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.GET("", runHandler.List)
			runs.POST("", runHandler.Trigger)
			runs.GET("/:id", runHandler.Get)
			runs.GET("/:id/events", runHandler.Events)
		}
		v1.GET("/plan", runHandler.Plan)
	}

	return router
}
