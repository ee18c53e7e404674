package api

import "github.com/BaSui01/taskforce/types"

// ProviderInfo 一个 provider 及其工具
type ProviderInfo struct {
	Name  string             `json:"name"`
	Tools []types.ToolSchema `json:"tools"`
}

// ListToolsResponse GET /v1/tools 的数据
type ListToolsResponse struct {
	Providers []ProviderInfo `json:"providers"`
	Total     int            `json:"total"`
}

// CallToolResponse POST /v1/tools/{provider}/{operation} 的数据
type CallToolResponse struct {
	Provider  string       `json:"provider"`
	Operation string       `json:"operation"`
	Result    types.Result `json:"result"`
	// 毫秒
	DurationMS int64 `json:"duration_ms"`
}
