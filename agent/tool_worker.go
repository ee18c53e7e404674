package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/registry"
	"github.com/BaSui01/taskforce/tools"
	"github.com/BaSui01/taskforce/types"
)

// ToolNameSeparator 连接 provider 与 operation 的限定工具名分隔符
const ToolNameSeparator = "__"

// QualifiedToolName 返回 "<provider>__<operation>"
func QualifiedToolName(provider, operation string) string {
	return provider + ToolNameSeparator + operation
}

// SplitToolName 拆分限定工具名；没有分隔符时 provider 为空
func SplitToolName(name string) (provider, operation string) {
	if i := strings.Index(name, ToolNameSeparator); i >= 0 {
		return name[:i], name[i+len(ToolNameSeparator):]
	}
	return "", name
}

// ToolCaller 执行一次工具调用，结果总是 Result
type ToolCaller func(ctx context.Context, call types.ToolCall) types.Result

// ReasoningRequest 交给 Reasoner 的一轮输入
type ReasoningRequest struct {
	Worker  string
	History []Message
	Task    string
	Tools   []types.ToolSchema
	Call    ToolCaller
}

// Reasoner 不透明的推理循环（通常由 LLM 驱动），可多次调用 req.Call
type Reasoner interface {
	Reason(ctx context.Context, req ReasoningRequest) (string, error)
}

// ReasonerFunc 以函数实现 Reasoner
type ReasonerFunc func(ctx context.Context, req ReasoningRequest) (string, error)

// Reason implements Reasoner.
func (f ReasonerFunc) Reason(ctx context.Context, req ReasoningRequest) (string, error) {
	return f(ctx, req)
}

// ToolWorker 由 Reasoner 驱动、通过 Dispatcher 使用工具的 Worker
type ToolWorker struct {
	name        string
	description string
	reasoner    Reasoner
	tools       *registry.Registry[tools.Provider]
	dispatcher  *tools.Dispatcher
	allowed     map[string]struct{}
	logger      *zap.Logger
}

// ToolWorkerOption configures a ToolWorker.
type ToolWorkerOption func(*ToolWorker)

// WithProviders 限制可用的 provider；默认可用注册表中全部 provider
func WithProviders(names ...string) ToolWorkerOption {
	return func(w *ToolWorker) {
		w.allowed = make(map[string]struct{}, len(names))
		for _, n := range names {
			w.allowed[registry.CanonicalName(n)] = struct{}{}
		}
	}
}

// NewToolWorker 创建 ToolWorker
func NewToolWorker(
	name, description string,
	reasoner Reasoner,
	toolRegistry *registry.Registry[tools.Provider],
	dispatcher *tools.Dispatcher,
	logger *zap.Logger,
	opts ...ToolWorkerOption,
) *ToolWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = tools.NewDispatcher(logger)
	}
	w := &ToolWorker{
		name:        name,
		description: description,
		reasoner:    reasoner,
		tools:       toolRegistry,
		dispatcher:  dispatcher,
		logger:      logger.With(zap.String("component", "tool_worker"), zap.String("worker", name)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements Worker.
func (w *ToolWorker) Name() string { return w.name }

// Description implements Worker.
func (w *ToolWorker) Description() string { return w.description }

// ToolSchemas 列出可用工具，名称为限定名
func (w *ToolWorker) ToolSchemas() []types.ToolSchema {
	if w.tools == nil {
		return nil
	}
	var out []types.ToolSchema
	for _, entry := range w.tools.All() {
		if !w.allows(entry.Name) {
			continue
		}
		for _, schema := range entry.Implementation.Operations().Schemas() {
			schema.Name = QualifiedToolName(entry.Name, schema.Name)
			out = append(out, schema)
		}
	}
	return out
}

// PerformTask implements Worker.
func (w *ToolWorker) PerformTask(ctx context.Context, history []Message, task string) (string, error) {
	if w.reasoner == nil {
		return "", ErrReasonerNotSet
	}
	return w.reasoner.Reason(ctx, ReasoningRequest{
		Worker:  w.name,
		History: history,
		Task:    task,
		Tools:   w.ToolSchemas(),
		Call:    w.callTool,
	})
}

func (w *ToolWorker) callTool(ctx context.Context, call types.ToolCall) types.Result {
	provider, operation := call.Provider, call.Name
	if provider == "" {
		provider, operation = SplitToolName(call.Name)
	}
	if !w.allows(provider) {
		return types.NewFailure(fmt.Sprintf("Tool %s not found.", provider))
	}

	result := w.dispatcher.Call(ctx, w.tools, provider, operation, call.Arguments)
	if result.IsError() {
		w.logger.Debug("tool call failed",
			zap.String("provider", provider),
			zap.String("operation", operation),
			zap.String("error", result.Error()))
	}
	return result
}

func (w *ToolWorker) allows(provider string) bool {
	if w.allowed == nil {
		return true
	}
	_, ok := w.allowed[registry.CanonicalName(provider)]
	return ok
}
