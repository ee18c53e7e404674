// Package telemetry 封装 OpenTelemetry SDK 初始化：启用时通过 OTLP gRPC
// 导出 trace（可选导出指标）并注册为全局 Provider；禁用时保持 noop，
// 不连接任何外部服务。Dispatcher 与各传输层的 span 都经由全局 Provider。
package telemetry
