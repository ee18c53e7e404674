// Copyright (c) Taskforce Authors.
// Licensed under the MIT License.

/*
Package handlers 实现工具网关的 HTTP 处理器。

# 核心类型

  - ToolHandler：列出工具、经 tools.Dispatcher 调用工具
  - HealthHandler：/healthz 存活、/readyz 就绪（可插拔 HealthCheck）、/version
  - Response：统一 JSON 信封（success + data + error + timestamp + request_id）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码

types.ErrorCode 到 HTTP 状态码的映射见 StatusForCode。工具自身的失败不是
HTTP 错误：调用成功送达时总是 200，失败信息在 Result 中。
*/
package handlers
