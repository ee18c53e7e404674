// Package api 定义 taskforce 工具网关的 HTTP 数据类型。
//
// # API Overview
//
// 网关把工具注册表（静态 provider 与已绑定的远端 MCP 服务）暴露为 HTTP：
//   - GET  /v1/tools  列出 provider 及其工具 schema
//   - POST /v1/tools/{provider}/{operation}  以请求体为参数调用一次工具
//   - GET  /healthz, /readyz, /version  健康与版本
//   - GET  /metrics  Prometheus 指标
//
// # Authentication
//
// 配置了 server.jwt_secret 时，/v1/ 下的端点要求 HS256 签名的 Bearer token：
//
//	Authorization: Bearer <jwt>
//
// 所有响应使用统一信封，见 handlers.Response。
package api
