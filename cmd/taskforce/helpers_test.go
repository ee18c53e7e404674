package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/taskforce/agent/protocol/mcp"
)

// newMCPServer 一个最小的 JSON-RPC 工具服务：search 回显 query
func newMCPServer(t *testing.T, tools ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case mcp.MethodToolsList:
			defs := make([]mcp.ToolDefinition, 0, len(tools))
			for _, name := range tools {
				defs = append(defs, mcp.ToolDefinition{
					Name:        name,
					Description: "remote " + name,
					InputSchema: map[string]any{
						"type":       "object",
						"properties": map[string]any{"query": map[string]any{"type": "string"}},
					},
				})
			}
			result = mcp.ListToolsResult{Tools: defs}
		case mcp.MethodToolsCall:
			var params mcp.CallToolParams
			_ = json.Unmarshal(req.Params, &params)
			var args struct {
				Query string `json:"query"`
			}
			_ = json.Unmarshal(params.Arguments, &args)
			result = map[string]any{"content": []any{
				map[string]any{"type": "text", "text": fmt.Sprintf("%s: %s", params.Name, args.Query)},
			}}
		default:
			result = map[string]any{}
		}

		raw, _ := json.Marshal(result)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: &req.ID, Result: raw})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskforce.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// baseConfig 测试配置：日志写到 stderr，遥测关闭，随机端口
func baseConfig(servers string) string {
	return `
log: {level: error, format: json}
server: {addr: "127.0.0.1:0"}
metrics: {enabled: true, namespace: test}
mcp_servers:
` + servers
}
