package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/api/handlers"
	"github.com/BaSui01/taskforce/config"
	"github.com/BaSui01/taskforce/internal/server"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("TASKFORCE_CONFIG"), "Path to config file (YAML)")
	addr := fs.String("addr", "", "Listen address (overrides server.addr)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, loader, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting taskforce",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	srv, err := NewServer(ctx, cfg, loader, logger)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		return 1
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("taskforce stopped")
	return 0
}

// Server 工具网关：HTTP 服务 + 共享运行时 + 可选的配置监听
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	app     *app
	http    *server.Manager
	watcher *config.Watcher
}

// NewServer 绑定远端服务并组装路由，尚未监听
func NewServer(ctx context.Context, cfg *config.Config, loader *config.Loader, logger *zap.Logger) (*Server, error) {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, logger: logger, app: a}

	if cfg.Hub.WatchConfig && loader != nil && loader.ConfigPath() != "" {
		w, err := config.NewWatcher(loader, cfg,
			config.WithPollInterval(cfg.Hub.WatchInterval),
			config.WithWatcherLogger(logger))
		if err != nil {
			_ = a.Close(context.Background())
			return nil, fmt.Errorf("create config watcher: %w", err)
		}
		w.OnReload(s.onReload)
		s.watcher = w
	}

	s.http = server.NewManager(s.handler(), cfg.Server, logger)
	return s, nil
}

// handler 构建路由与中间件链
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(Version, s.logger)
	health.RegisterCheck(handlers.NewCheck("mcp_hub", s.app.Check))
	health.Register(mux)

	handlers.NewToolHandler(s.app.tools, s.app.dispatcher, s.logger).Register(mux)

	skipAuth := []string{"/healthz", "/readyz", "/version"}
	if path := s.cfg.Server.MetricsPath; path != "" && s.cfg.Metrics.Enabled {
		mux.Handle("GET "+path, promhttp.HandlerFor(s.app.promReg, promhttp.HandlerOpts{
			ErrorLog:          zap.NewStdLog(s.logger),
			EnableOpenMetrics: true,
		}))
		skipAuth = append(skipAuth, path)
	}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
	}
	if s.cfg.Server.JWTSecret != "" {
		middlewares = append(middlewares, JWTAuth(
			s.cfg.Server.JWTSecret,
			s.cfg.Server.JWTIssuer,
			s.cfg.Server.JWTAudience,
			skipAuth,
			s.logger,
		))
	} else {
		s.logger.Warn("server.jwt_secret not set, tool gateway is unauthenticated")
	}
	middlewares = append(middlewares, Metrics(s.app.metrics))

	return Chain(mux, middlewares...)
}

// onReload 远端服务配置变化时重新绑定 Hub
func (s *Server) onReload(prev, next *config.Config) {
	if !config.ServersChanged(prev, next) {
		return
	}
	s.logger.Info("mcp servers changed, rebinding",
		zap.Int("servers", len(next.MCPServers)))

	ctx := context.Background()
	if next.Hub.BindTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, next.Hub.BindTimeout*2)
		defer cancel()
	}
	if err := s.app.reloadHub(ctx, next); err != nil {
		s.logger.Error("failed to rebind mcp servers", zap.Error(err))
	}
}

// Start 开始监听（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	if err := s.http.Start(); err != nil {
		return err
	}
	if s.watcher != nil {
		go s.watcher.Run(ctx)
	}
	s.logger.Info("tool gateway started",
		zap.String("addr", s.http.Addr()),
		zap.Bool("tls", s.http.TLS()),
		zap.Int("tools", s.app.tools.Len()),
		zap.Bool("watch_config", s.watcher != nil))
	return nil
}

// Run 启动并阻塞到 ctx 结束或服务异常退出，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		_ = s.app.Close(context.Background())
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-s.http.Errors():
	}
	cancel()
	return errors.Join(serveErr, s.Shutdown(context.Background()))
}

// Addr 实际监听地址
func (s *Server) Addr() string { return s.http.Addr() }

// Shutdown 关闭 HTTP 服务、Hub 与遥测
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown")
	return errors.Join(s.http.Shutdown(ctx), s.app.Close(ctx))
}
