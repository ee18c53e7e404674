// Copyright 2024 Taskforce Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent 实现 Leader/Worker 委派协议。

# 概述

一次编排会话由一个 ChatRoom 承载：它持有目标、参与者与只追加的消息记录。
Leader 向 Planner 请求步骤，按顺序通过 ChatRoom.Delegate 把每一步交给
对应的 Worker，Worker 拿到完整的消息历史后给出答复，最后由 Planner 汇总。

	Leader ──Plan──▶ []Step
	  │
	  └─Delegate(step)─▶ ChatRoom ──PerformTask(history, task)──▶ Worker
	                        ▲                                       │
	                        └──────────────── reply ◀───────────────┘

# Worker

  - Worker：可被委派任务的命名参与者
  - FuncWorker：以函数实现 Worker
  - ToolWorker：由不透明的 Reasoner 驱动，通过 tools.Dispatcher 调用工具

Worker 注册表是 registry.Registry[Worker]，由调用方在启动时通过
Installer 显式填充。

# 错误处理

委派给不存在的 Worker 返回 NOT_FOUND 错误并终止会话；Worker 自身失败时，
失败信息作为答复写入记录，Leader 把它作为最终答案返回。
*/
package agent
