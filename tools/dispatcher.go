package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/taskforce/internal/ctxkeys"
	"github.com/BaSui01/taskforce/internal/metrics"
	"github.com/BaSui01/taskforce/registry"
	"github.com/BaSui01/taskforce/types"
)

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           `yaml:"max_calls" json:"max_calls"`
	Window   time.Duration `yaml:"window" json:"window"`
}

// Dispatcher resolves a provider by name and invokes one of its operations.
// It is the single recovery boundary: Call never returns an error and never
// lets a panic escape.
type Dispatcher struct {
	kind    string
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	mu       sync.Mutex
	limits   map[string]RateLimitConfig
	limiters map[string]*rate.Limiter
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithKind sets the label used in "not found" messages (default "Tool").
func WithKind(kind string) DispatcherOption {
	return func(d *Dispatcher) { d.kind = kind }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithTracer overrides the otel tracer.
func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithRateLimit limits calls to one target.
func WithRateLimit(target string, cfg RateLimitConfig) DispatcherOption {
	return func(d *Dispatcher) {
		d.limits[registry.CanonicalName(target)] = cfg
	}
}

// NewDispatcher 创建分发器
func NewDispatcher(logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		kind:     "Tool",
		logger:   logger.With(zap.String("component", "dispatcher")),
		tracer:   otel.Tracer("github.com/BaSui01/taskforce/tools"),
		limits:   make(map[string]RateLimitConfig),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call dispatches operation on the provider registered as target.
func (d *Dispatcher) Call(ctx context.Context, reg *registry.Registry[Provider], target, operation string, args json.RawMessage) types.Result {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "tools.dispatch", trace.WithAttributes(
		attribute.String("dispatch.target", target),
		attribute.String("dispatch.operation", operation),
	))
	defer span.End()

	fields := []zap.Field{zap.String("target", target), zap.String("operation", operation)}
	if id, ok := ctxkeys.RequestID(ctx); ok {
		span.SetAttributes(attribute.String("request.id", id))
		fields = append(fields, zap.String("request_id", id))
	}

	result := d.call(ctx, reg, target, operation, args)

	status := string(result.Status())
	if result.IsError() {
		span.SetStatus(codes.Error, result.Error())
	}
	elapsed := time.Since(start)
	d.metrics.RecordDispatch(target, operation, status, elapsed)
	d.logger.Debug("dispatched", append(fields, zap.String("status", status), zap.Duration("duration", elapsed))...)
	return result
}

func (d *Dispatcher) call(ctx context.Context, reg *registry.Registry[Provider], target, operation string, args json.RawMessage) types.Result {
	// 1. 解析目标
	var provider Provider
	if reg != nil {
		provider, _ = reg.Lookup(target)
	}
	if provider == nil {
		d.logger.Warn("dispatch target not found", zap.String("target", target))
		return types.NewFailure(fmt.Sprintf("%s %s not found.", d.kind, target))
	}

	// 2. 查分发表
	spec, ok := provider.Operations().Lookup(operation)
	if !ok {
		d.logger.Warn("operation not found",
			zap.String("target", target),
			zap.String("operation", operation))
		return types.NewFailure(fmt.Sprintf("Method %s not found", operation))
	}

	// 3. 参数校验
	if err := spec.Schema.Validate(args); err != nil {
		d.logger.Warn("invalid arguments",
			zap.String("target", target),
			zap.String("operation", operation),
			zap.Error(err))
		return types.NewFailure(fmt.Sprintf("invalid arguments: %s", err.Error()))
	}

	// 4. 速率限制
	if err := d.allow(target); err != nil {
		d.logger.Warn("rate limit exceeded", zap.String("target", target))
		return types.NewFailure(err.Error())
	}

	// 5. 调用
	return d.invoke(ctx, target, spec, args)
}

func (d *Dispatcher) invoke(ctx context.Context, target string, spec OperationSpec, args json.RawMessage) (result types.Result) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			if err, ok := r.(error); ok {
				msg = err.Error()
			}
			d.logger.Error("operation panicked",
				zap.String("target", target),
				zap.String("operation", spec.Name),
				zap.String("panic", msg),
				zap.Stack("stack"))
			result = types.NewFailure(msg)
		}
	}()

	res, err := spec.Handler(ctx, args)
	if err != nil {
		d.logger.Error("operation failed",
			zap.String("target", target),
			zap.String("operation", spec.Name),
			zap.Error(err))
		return types.NewFailure(err.Error())
	}

	// 零值 Result 视为未按约定返回
	if res.Status() == "" {
		return types.NewSuccessRaw(nil)
	}
	return res
}

func (d *Dispatcher) allow(target string) error {
	key := registry.CanonicalName(target)

	d.mu.Lock()
	defer d.mu.Unlock()

	cfg, ok := d.limits[key]
	if !ok || cfg.MaxCalls <= 0 || cfg.Window <= 0 {
		return nil
	}
	limiter, ok := d.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.MaxCalls)), cfg.MaxCalls)
		d.limiters[key] = limiter
	}
	if !limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for %s: %d calls per %s", target, cfg.MaxCalls, cfg.Window)
	}
	return nil
}
