package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/tools"
	"github.com/BaSui01/taskforce/types"
)

// tools/list 翻页上限
const maxListPages = 100

// RemoteToolProvider 把远端服务公布的工具绑定为 tools.Provider。
// 每个工具描述对应分发表中的一个操作，调用时转发为 tools/call 请求。
type RemoteToolProvider struct {
	server      string
	transport   Transport
	descriptors []ToolDefinition
	table       tools.OperationTable
	logger      *zap.Logger
}

// Bind 通过 tools/list 获取远端工具列表（跟随 nextCursor 翻页）并构建分发表
func Bind(ctx context.Context, server string, transport Transport, logger *zap.Logger) (*RemoteToolProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &RemoteToolProvider{
		server:    server,
		transport: transport,
		logger: logger.With(
			zap.String("component", "mcp_binder"),
			zap.String("server", server),
		),
	}

	descriptors, err := p.listTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools from %s: %w", server, err)
	}

	specs := make([]tools.OperationSpec, 0, len(descriptors))
	for _, def := range descriptors {
		if def.Name == "" {
			p.logger.Warn("skipping tool without a name")
			continue
		}
		p.descriptors = append(p.descriptors, def)
		specs = append(specs, p.operation(def))
	}
	p.table = tools.NewOperationTable(specs...)

	p.logger.Info("bound remote tools", zap.Int("count", p.table.Len()))
	return p, nil
}

func (p *RemoteToolProvider) listTools(ctx context.Context) ([]ToolDefinition, error) {
	var (
		all    []ToolDefinition
		cursor string
		seen   = map[string]bool{}
	)
	for page := 0; page < maxListPages; page++ {
		var params any
		if cursor != "" {
			params = ListToolsParams{Cursor: cursor}
		}
		resp, err := p.transport.SendRequest(ctx, p.transport.NewRequest(MethodToolsList, params))
		if err != nil {
			return nil, err
		}

		var result ListToolsResult
		if err := resp.Decode(&result); err != nil {
			return nil, types.NewError(types.ErrRPC, "invalid tools/list result").WithCause(err)
		}
		all = append(all, result.Tools...)

		if result.NextCursor == "" || seen[result.NextCursor] {
			return all, nil
		}
		seen[result.NextCursor] = true
		cursor = result.NextCursor
	}
	p.logger.Warn("tools/list pagination limit reached", zap.Int("pages", maxListPages))
	return all, nil
}

func (p *RemoteToolProvider) operation(def ToolDefinition) tools.OperationSpec {
	schema, err := types.FromMap(def.InputSchema)
	if err != nil {
		p.logger.Warn("unusable input schema, accepting any arguments",
			zap.String("tool", def.Name),
			zap.Error(err))
		schema = types.NewObjectSchema()
	}

	name := def.Name
	return tools.OperationSpec{
		Name:        name,
		Description: def.Description,
		Schema:      schema.EnsureParameter(),
		Handler: func(ctx context.Context, args json.RawMessage) (types.Result, error) {
			resp, err := p.forward(ctx, name, args)
			if err != nil {
				return types.Result{}, err
			}
			return types.NewSuccess(resp), nil
		},
	}
}

// Name implements tools.Provider.
func (p *RemoteToolProvider) Name() string { return p.server }

// Operations implements tools.Provider.
func (p *RemoteToolProvider) Operations() tools.OperationTable { return p.table }

// Descriptors 返回绑定时获取的工具描述
func (p *RemoteToolProvider) Descriptors() []ToolDefinition {
	return append([]ToolDefinition(nil), p.descriptors...)
}

// Transport 返回绑定的传输
func (p *RemoteToolProvider) Transport() Transport { return p.transport }

// Call 按名称调用远端工具，返回原始 JSON-RPC 响应；
// 名称不在分发表中时返回 invalid operation 错误。
func (p *RemoteToolProvider) Call(ctx context.Context, name string, args json.RawMessage) (*Response, error) {
	if _, ok := p.table.Lookup(name); !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("invalid operation: %s", name))
	}
	return p.forward(ctx, name, args)
}

func (p *RemoteToolProvider) forward(ctx context.Context, name string, args json.RawMessage) (*Response, error) {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	req := p.transport.NewRequest(MethodToolsCall, CallToolParams{Name: name, Arguments: args})
	p.logger.Debug("calling remote tool", zap.String("tool", name), zap.Int64("id", req.ID))
	return p.transport.SendRequest(ctx, req)
}

// Close 关闭底层传输
func (p *RemoteToolProvider) Close() error {
	return p.transport.Close()
}
