package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/taskforce/types"
)

// JSONRPCVersion JSON-RPC 协议版本
const JSONRPCVersion = "2.0"

// 标准方法
const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
)

// Request JSON-RPC 请求
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

// Response JSON-RPC 响应
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Decode 将 result 解码到 into
func (r *Response) Decode(into any) error {
	if len(r.Result) == 0 {
		return fmt.Errorf("response has no result")
	}
	return json.Unmarshal(r.Result, into)
}

// RPCError JSON-RPC 错误对象
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("MCP Error (%d): %s", e.Code, e.Message)
}

// ParseResponse 解析 JSON-RPC 响应体。
// 响应携带 error 字段时返回 RPC_ERROR，响应本身仍一并返回。
func ParseResponse(body []byte) (*Response, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, types.NewError(types.ErrRPC, "empty JSON-RPC response")
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewError(types.ErrRPC, "invalid JSON-RPC response").WithCause(err)
	}
	if resp.Error != nil {
		return &resp, types.NewError(types.ErrRPC, resp.Error.Error())
	}
	return &resp, nil
}

// ToolDefinition 远端服务通过 tools/list 公布的工具描述
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// UnmarshalJSON 兼容 inputSchema 与 input_schema 两种写法
func (d *ToolDefinition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name             string         `json:"name"`
		Description      string         `json:"description"`
		InputSchema      map[string]any `json:"inputSchema"`
		InputSchemaSnake map[string]any `json:"input_schema"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Name = raw.Name
	d.Description = raw.Description
	d.InputSchema = raw.InputSchema
	if d.InputSchema == nil {
		d.InputSchema = raw.InputSchemaSnake
	}
	return nil
}

// ListToolsResult tools/list 结果
type ListToolsResult struct {
	Tools      []ToolDefinition `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ListToolsParams tools/list 参数
type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// CallToolParams tools/call 参数
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}
