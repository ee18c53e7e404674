// Copyright (c) Taskforce Authors.
// Licensed under the MIT License.

/*
Package main 提供 taskforce 命令行入口。

# 概述

cmd/taskforce 加载 YAML 配置，绑定 mcp_servers 中的全部远端服务，
并提供查看工具、调用工具、校验配置以及启动 HTTP 工具网关等子命令。

# 子命令

  - tools    列出所有已绑定的工具（provider__operation 形式）
  - call     调用一个工具：call <server> <tool> [json]
  - check    校验配置并打印每个服务的传输类型
  - serve    启动工具网关（/v1/tools、/healthz、/readyz、/metrics）
  - version  版本信息

# 网关中间件

Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
RequestLogger，以及配置了 jwt_secret 时的 JWTAuth（HS256）。
hub.watch_config 开启时监听配置文件（fsnotify，轮询兜底），远端服务变更后重新绑定。
*/
package main
