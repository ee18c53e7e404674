// 版权所有 2024 Taskforce Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的分发与传输层指标采集。

# 核心类型

  - Collector：指标收集器，指标注册到调用方注入的 prometheus.Registerer，
    测试中可使用独立 Registry 隔离。

# 主要能力

  - 分发指标：按 target/operation/status 统计次数与耗时。
  - 传输层指标：按 transport/method/status 统计 JSON-RPC 请求，
    以及重连次数。
  - 委派指标：按 worker/status 统计委派次数。
  - 远程工具：每个 MCP 服务器绑定的工具数量 Gauge。
*/
package metrics
