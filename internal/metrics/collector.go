// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil Collector 的所有 Record* 方法均为空操作。
type Collector struct {
	// 分发指标
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	// 传输层指标
	transportRequestsTotal   *prometheus.CounterVec
	transportRequestDuration *prometheus.HistogramVec
	transportRetriesTotal    *prometheus.CounterVec

	// 委派指标
	delegationsTotal *prometheus.CounterVec

	// 远程工具
	remoteToolsBound *prometheus.GaugeVec

	// 网关 HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到 reg（nil 时使用独立的新 Registry）
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.dispatchTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total number of dispatched operations",
		},
		[]string{"target", "operation", "status"},
	)

	c.dispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatched operation duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"target", "operation"},
	)

	c.transportRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_requests_total",
			Help:      "Total number of JSON-RPC requests sent over a transport",
		},
		[]string{"transport", "method", "status"},
	)

	c.transportRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transport_request_duration_seconds",
			Help:      "JSON-RPC request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport", "method"},
	)

	c.transportRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_retries_total",
			Help:      "Total number of transport reconnect attempts",
		},
		[]string{"transport"},
	)

	c.delegationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Total number of delegated tasks",
		},
		[]string{"worker", "status"},
	)

	c.remoteToolsBound = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_tools_bound",
			Help:      "Number of remote tools bound per MCP server",
		},
		[]string{"server"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of gateway HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Gateway HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	return c
}

// RecordDispatch 记录一次分发
func (c *Collector) RecordDispatch(target, operation, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dispatchTotal.WithLabelValues(target, operation, status).Inc()
	c.dispatchDuration.WithLabelValues(target, operation).Observe(duration.Seconds())
}

// RecordTransportRequest 记录一次传输层请求
func (c *Collector) RecordTransportRequest(transport, method, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.transportRequestsTotal.WithLabelValues(transport, method, status).Inc()
	c.transportRequestDuration.WithLabelValues(transport, method).Observe(duration.Seconds())
}

// RecordTransportRetry 记录一次重连
func (c *Collector) RecordTransportRetry(transport string) {
	if c == nil {
		return
	}
	c.transportRetriesTotal.WithLabelValues(transport).Inc()
}

// RecordDelegation 记录一次委派
func (c *Collector) RecordDelegation(worker, status string) {
	if c == nil {
		return
	}
	c.delegationsTotal.WithLabelValues(worker, status).Inc()
}

// SetRemoteTools 记录某个 MCP 服务器绑定的工具数
func (c *Collector) SetRemoteTools(server string, count int) {
	if c == nil {
		return
	}
	c.remoteToolsBound.WithLabelValues(server).Set(float64(count))
}

// RecordHTTPRequest 记录一次网关请求，route 应为路由模板而非原始路径
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
