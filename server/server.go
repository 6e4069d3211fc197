// Package server 通过 HTTP 提供已索引合约事件的查询接口
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/metrics"
	"github.com/weisyn/collection-sdk-go/services/event"
)

// EventReader 事件查询接口，由 event.Service 实现
type EventReader interface {
	Quantity(kind event.Kind) (uint64, error)
	GetEvent(kind event.Kind, index uint64) (*event.Record, error)
}

// Config 服务器配置
type Config struct {
	// Addr HTTP 监听地址
	Addr string

	// GRPCAddr gRPC 健康检查监听地址；为空时不启动
	GRPCAddr string

	// ShutdownTimeout 优雅关闭超时
	ShutdownTimeout time.Duration

	// Logger 日志器（可选）
	Logger client.Logger

	// Metrics 指标（可选）；提供时挂载 /metrics
	Metrics *metrics.Metrics
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server 事件查询服务器
type Server struct {
	config *Config
	events EventReader
	router *chi.Mux
	health *health.Server
}

// New 创建服务器
func New(events EventReader, cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	s := &Server{
		config: cfg,
		events: events,
		router: chi.NewRouter(),
		health: health.NewServer(),
	}
	s.routes()
	return s
}

// Handler HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动 HTTP（及可选的 gRPC 健康检查）服务，ctx 结束时优雅关闭
func (s *Server) Run(ctx context.Context) error {
	// 1. HTTP
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	httpServer := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		s.logInfo("starting server", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 2. gRPC 健康检查
	var grpcServer *grpc.Server
	if s.config.GRPCAddr != "" {
		gln, err := net.Listen("tcp", s.config.GRPCAddr)
		if err != nil {
			_ = httpServer.Close()
			return fmt.Errorf("listen %s: %w", s.config.GRPCAddr, err)
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, s.health)
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		go func() {
			s.logInfo("starting grpc health server", "addr", gln.Addr().String())
			if err := grpcServer.Serve(gln); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	// 3. 等待退出
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	s.logInfo("shutting down server")
	s.health.Shutdown()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown: %w", err)
	}
	return runErr
}

func (s *Server) logInfo(msg string, args ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, args...)
	}
}
