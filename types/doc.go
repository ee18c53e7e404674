// Copyright (c) Taskforce Authors.
// Licensed under the MIT License.

/*
Package types 提供 Taskforce 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 registry、tools、agent、
mcp 等上层模块提供统一的类型契约。

# 核心类型

  - Result：分发边界上的成功/失败二分结果（NewSuccess / NewFailure）
  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - JSONSchema：工具参数 JSON Schema，附带 Validate 参数校验
  - ToolSchema：面向 LLM 的工具声明（name + description + parameters）

# 错误工具链

GetErrorCode / IsErrorCode / IsRetryable 通过 errors.As 解包，
因此经 fmt.Errorf("%w") 包装后的错误依然可识别。
*/
package types
