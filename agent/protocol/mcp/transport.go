package mcp

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/internal/metrics"
	"github.com/BaSui01/taskforce/types"
)

// TransportType 传输类型
type TransportType string

const (
	TransportStdio     TransportType = "stdio"
	TransportHTTP      TransportType = "http"
	TransportWebSocket TransportType = "websocket"
)

// Transport 将 JSON-RPC 请求送达远端工具服务
type Transport interface {
	// Connect 建立连接（stdio 为空操作）
	Connect(ctx context.Context) error
	// SendRequest 发送请求并返回解析后的响应
	SendRequest(ctx context.Context, req *Request) (*Response, error)
	// NewRequest 构造带递增 id 的请求
	NewRequest(method string, params any) *Request
	// Close 释放连接
	Close() error
	// IsConnected 连接状态
	IsConnected() bool
	// Type 传输类型
	Type() TransportType
}

// Option 传输构造选项
type Option func(*options)

type options struct {
	logger     *zap.Logger
	metrics    *metrics.Collector
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithHTTPClient 覆盖 HTTP 客户端（测试或自定义 TLS 使用）
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

func buildOptions(opts []Option) options {
	o := options{sleep: sleepContext}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BaseTransport 各传输共享的基础实现，嵌入到具体传输中使用。
// 直接调用 SendRequest / Close 会返回 NOT_IMPLEMENTED。
type BaseTransport struct {
	transportType TransportType
	lastID        atomic.Int64
	metrics       *metrics.Collector
	tracer        trace.Tracer
}

func (b *BaseTransport) init(tt TransportType, c *metrics.Collector) {
	b.transportType = tt
	b.metrics = c
	b.tracer = otel.Tracer("github.com/BaSui01/taskforce/mcp")
}

// NextID 返回单调递增的请求 id（从 1 开始）
func (b *BaseTransport) NextID() int64 {
	return b.lastID.Add(1)
}

// NewRequest 构造 JSON-RPC 请求，params 为 nil 时发送空对象
func (b *BaseTransport) NewRequest(method string, params any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
		ID:      b.NextID(),
	}
}

// Connect 默认无需预先建立连接
func (b *BaseTransport) Connect(context.Context) error { return nil }

// SendRequest 由具体传输实现
func (b *BaseTransport) SendRequest(context.Context, *Request) (*Response, error) {
	return nil, types.NewError(types.ErrNotImplemented,
		fmt.Sprintf("send_request not implemented for %s transport", b.label()))
}

// Close 由具体传输实现
func (b *BaseTransport) Close() error {
	return types.NewError(types.ErrNotImplemented,
		fmt.Sprintf("close not implemented for %s transport", b.label()))
}

// IsConnected 默认未连接
func (b *BaseTransport) IsConnected() bool { return false }

// Type 传输类型
func (b *BaseTransport) Type() TransportType { return b.transportType }

func (b *BaseTransport) label() string {
	if b.transportType == "" {
		return "base"
	}
	return string(b.transportType)
}

func (b *BaseTransport) startSpan(ctx context.Context, req *Request) (context.Context, trace.Span) {
	tracer := b.tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/BaSui01/taskforce/mcp")
	}
	return tracer.Start(ctx, "mcp.send_request", trace.WithAttributes(
		attribute.String("mcp.transport", b.label()),
		attribute.String("rpc.method", req.Method),
		attribute.Int64("rpc.id", req.ID),
	))
}

func (b *BaseTransport) finish(span trace.Span, req *Request, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		if code := types.GetErrorCode(err); code != "" {
			status = string(code)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	b.metrics.RecordTransportRequest(b.label(), req.Method, status, time.Since(start))
}
