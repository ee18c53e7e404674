package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/taskforce/internal/metrics"
	"github.com/BaSui01/taskforce/registry"
	"github.com/BaSui01/taskforce/tools"
)

// Hub 按配置为每个远端服务创建传输并绑定工具，注册到工具注册表
type Hub struct {
	servers     map[string]TransportConfig
	registry    *registry.Registry[tools.Provider]
	logger      *zap.Logger
	metrics     *metrics.Collector
	strict      bool
	bindTimeout time.Duration
	transport   []Option

	mu        sync.Mutex
	providers map[string]*RemoteToolProvider
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithStrict 任一服务绑定失败即返回错误
func WithStrict(strict bool) HubOption {
	return func(h *Hub) { h.strict = strict }
}

// WithBindTimeout 单个服务连接与绑定的超时
func WithBindTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.bindTimeout = d }
}

// WithTransportOptions 追加传输构造选项
func WithTransportOptions(opts ...Option) HubOption {
	return func(h *Hub) { h.transport = append(h.transport, opts...) }
}

// NewHub 创建 Hub
func NewHub(servers map[string]TransportConfig, toolRegistry *registry.Registry[tools.Provider], logger *zap.Logger, collector *metrics.Collector, opts ...HubOption) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		servers:     servers,
		registry:    toolRegistry,
		logger:      logger.With(zap.String("component", "mcp_hub")),
		metrics:     collector,
		bindTimeout: time.Minute,
		providers:   make(map[string]*RemoteToolProvider),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start 并发绑定所有未禁用的服务
func (h *Hub) Start(ctx context.Context) error {
	names := make([]string, 0, len(h.servers))
	for name := range h.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		cfg := h.servers[name]
		if cfg.Disabled {
			h.logger.Info("server disabled, skipping", zap.String("server", name))
			continue
		}
		g.Go(func() error {
			provider, err := h.bind(gctx, name, cfg)
			if err != nil {
				h.logger.Error("failed to bind server", zap.String("server", name), zap.Error(err))
				if h.strict {
					return fmt.Errorf("bind %s: %w", name, err)
				}
				return nil
			}
			h.mu.Lock()
			h.providers[name] = provider
			h.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		_ = h.Close()
		return err
	}

	for _, provider := range h.Providers() {
		if h.registry != nil {
			h.registry.Register(provider.Name(), provider)
		}
		h.metrics.SetRemoteTools(provider.Name(), provider.Operations().Len())
	}
	h.logger.Info("hub started",
		zap.Int("configured", len(h.servers)),
		zap.Int("bound", len(h.Providers())))
	return nil
}

func (h *Hub) bind(ctx context.Context, name string, cfg TransportConfig) (*RemoteToolProvider, error) {
	opts := append([]Option{
		WithLogger(h.logger.With(zap.String("server", name))),
		WithMetrics(h.metrics),
	}, h.transport...)

	transport, err := Create(cfg, opts...)
	if err != nil {
		return nil, err
	}

	if h.bindTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.bindTimeout)
		defer cancel()
	}

	if err := transport.Connect(ctx); err != nil {
		_ = transport.Close()
		return nil, err
	}
	provider, err := Bind(ctx, name, transport, h.logger)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return provider, nil
}

// Providers 返回已绑定的服务，按名称排序
func (h *Hub) Providers() []*RemoteToolProvider {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*RemoteToolProvider, 0, len(h.providers))
	for _, p := range h.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Provider 按服务名查找已绑定的服务
func (h *Hub) Provider(name string) (*RemoteToolProvider, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.providers[name]
	return p, ok
}

// Close 关闭所有传输
func (h *Hub) Close() error {
	h.mu.Lock()
	providers := h.providers
	h.providers = make(map[string]*RemoteToolProvider)
	h.mu.Unlock()

	var errs []error
	for name, p := range providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Check 就绪检查：任一已绑定服务的传输断开即报错
func (h *Hub) Check(ctx context.Context) error {
	var down []string
	for _, p := range h.Providers() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.Transport().IsConnected() {
			down = append(down, p.Name())
		}
	}
	if len(down) > 0 {
		return fmt.Errorf("mcp servers not connected: %s", strings.Join(down, ", "))
	}
	return nil
}
