package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/registry"
)

// Broadcast 发给所有参与者的消息收件人
const Broadcast = "all"

// Message 会话记录中的一条消息
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func (m Message) String() string {
	return fmt.Sprintf("[%s -> %s] %s", m.From, m.To, m.Body)
}

// Worker 可被委派任务的命名参与者
type Worker interface {
	Name() string
	Description() string
	// PerformTask 根据完整的消息历史完成 task 并返回答复
	PerformTask(ctx context.Context, history []Message, task string) (string, error)
}

// NewWorkerRegistry 创建 Worker 注册表
func NewWorkerRegistry(logger *zap.Logger) *registry.Registry[Worker] {
	return registry.New[Worker]("agent", logger)
}

// FuncWorker 以函数实现 Worker
type FuncWorker struct {
	name        string
	description string
	fn          func(ctx context.Context, history []Message, task string) (string, error)
}

// NewFuncWorker 创建 FuncWorker
func NewFuncWorker(name, description string, fn func(ctx context.Context, history []Message, task string) (string, error)) *FuncWorker {
	return &FuncWorker{name: name, description: description, fn: fn}
}

// Name implements Worker.
func (w *FuncWorker) Name() string { return w.name }

// Description implements Worker.
func (w *FuncWorker) Description() string { return w.description }

// PerformTask implements Worker.
func (w *FuncWorker) PerformTask(ctx context.Context, history []Message, task string) (string, error) {
	return w.fn(ctx, history, task)
}
