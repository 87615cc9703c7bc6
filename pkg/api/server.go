// Package api 提供触发运行、查询运行历史和计划的HTTP接口
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dbf-pipeline/pkg/api/handler"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Host         string        // 监听地址
	Port         int           // 监听端口
	Mode         string        // gin模式：debug/release/test
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		Mode:         gin.ReleaseMode,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// APIServer HTTP API服务器
type APIServer struct {
	runner     handler.Runner
	events     handler.EventSource
	mu         sync.Mutex
	httpServer *http.Server
	config     ServerConfig
	version    string
}

// NewAPIServer 创建API服务器，events可以为nil
func NewAPIServer(runner handler.Runner, events handler.EventSource, config ServerConfig, version string) *APIServer {
	defaults := DefaultServerConfig()
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Mode == "" {
		config.Mode = defaults.Mode
	}
	return &APIServer{
		runner:  runner,
		events:  events,
		config:  config,
		version: version,
	}
}

// Start 启动服务器，阻塞直到关闭
// ctx 同时作为异步运行的上下文，取消后运行中的流水线不再调度新任务
func (s *APIServer) Start(ctx context.Context) error {
	gin.SetMode(s.config.Mode)
	router := SetupRouter(ctx, s.runner, s.events, s.version)

	srv := &http.Server{
		Addr:         s.Addr(),
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("🚀 [API] 服务启动: %s", s.Addr())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen failed: %w", err)
	}

	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	log.Println("🛑 [API] 正在关闭服务...")

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("✅ [API] 服务已停止")
	return nil
}

// Addr 获取服务器地址
func (s *APIServer) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
