package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/agent/protocol/mcp"
	"github.com/BaSui01/taskforce/config"
	"github.com/BaSui01/taskforce/internal/metrics"
	"github.com/BaSui01/taskforce/internal/telemetry"
	"github.com/BaSui01/taskforce/registry"
	"github.com/BaSui01/taskforce/tools"
)

// app 是各子命令共用的运行时：遥测、指标、工具注册表、分发器与 Hub
type app struct {
	logger     *zap.Logger
	telemetry  *telemetry.Providers
	promReg    *prometheus.Registry
	metrics    *metrics.Collector
	tools      *registry.Registry[tools.Provider]
	dispatcher *tools.Dispatcher

	mu  sync.Mutex
	hub *mcp.Hub
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		// 遥测不可用不影响工具调用
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = &telemetry.Providers{}
	}

	a := &app{
		logger:    logger,
		telemetry: providers,
		promReg:   prometheus.NewRegistry(),
		tools:     registry.New[tools.Provider]("tool", logger),
	}
	if cfg.Metrics.Enabled {
		a.promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = metrics.NewCollector(cfg.Metrics.Namespace, a.promReg, logger)
	}

	opts := []tools.DispatcherOption{tools.WithMetrics(a.metrics)}
	for _, target := range sortedTargets(cfg.Dispatcher.RateLimits) {
		opts = append(opts, tools.WithRateLimit(target, cfg.Dispatcher.RateLimits[target]))
	}
	a.dispatcher = tools.NewDispatcher(logger, opts...)

	if err := a.startHub(ctx, cfg); err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) startHub(ctx context.Context, cfg *config.Config) error {
	hub := mcp.NewHub(cfg.MCPServers, a.tools, a.logger, a.metrics,
		mcp.WithStrict(cfg.Hub.Strict),
		mcp.WithBindTimeout(cfg.Hub.BindTimeout))
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	a.mu.Lock()
	a.hub = hub
	a.mu.Unlock()
	return nil
}

// reloadHub 关闭旧 Hub，清空注册表后按新配置重新绑定
func (a *app) reloadHub(ctx context.Context, cfg *config.Config) error {
	a.mu.Lock()
	old := a.hub
	a.hub = nil
	a.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			a.logger.Warn("failed to close previous hub", zap.Error(err))
		}
	}
	a.tools.Reset()
	return a.startHub(ctx, cfg)
}

// Check 就绪检查
func (a *app) Check(ctx context.Context) error {
	a.mu.Lock()
	hub := a.hub
	a.mu.Unlock()
	if hub == nil {
		return errors.New("hub not started")
	}
	return hub.Check(ctx)
}

func (a *app) Close(ctx context.Context) error {
	a.mu.Lock()
	hub := a.hub
	a.hub = nil
	a.mu.Unlock()

	var errs []error
	if hub != nil {
		errs = append(errs, hub.Close())
	}
	errs = append(errs, a.telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}

func sortedTargets(limits map[string]tools.RateLimitConfig) []string {
	targets := make([]string, 0, len(limits))
	for target := range limits {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}
