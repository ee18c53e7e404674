// Package mcp 实现 Model Context Protocol 风格的 JSON-RPC 客户端传输层。
//
// 提供 stdio、HTTP/SSE 与 WebSocket 三种传输，TransportFactory 根据配置形状
// 选择传输类型；RemoteToolProvider 将远端 tools/list 公布的工具绑定为
// tools.Provider，Hub 按配置批量绑定并注册到工具注册表。
package mcp
