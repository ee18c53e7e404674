package mcp

import (
	"net/url"
	"strings"

	"github.com/BaSui01/taskforce/types"
)

// DetermineTransportType 根据配置形状推断传输类型：
// 有 url 为 http（ws/wss 为 websocket），否则有 command 或 args 为 stdio。
// 配置中的 transport 字段不参与判断。
func DetermineTransportType(cfg TransportConfig) (TransportType, error) {
	if strings.TrimSpace(cfg.URL) != "" {
		if isWebSocketURL(cfg.URL) {
			return TransportWebSocket, nil
		}
		return TransportHTTP, nil
	}
	if strings.TrimSpace(cfg.Command) != "" || len(cfg.Args) > 0 {
		return TransportStdio, nil
	}
	return "", types.NewConfigurationError("cannot determine transport type")
}

// Create 按推断出的类型构造传输
func Create(cfg TransportConfig, opts ...Option) (Transport, error) {
	tt, err := DetermineTransportType(cfg)
	if err != nil {
		return nil, err
	}
	switch tt {
	case TransportWebSocket:
		return NewWebSocketTransport(cfg, opts...)
	case TransportHTTP:
		return NewHTTPSSETransport(cfg, opts...)
	default:
		return NewStdioTransport(cfg, opts...)
	}
}

// IsValidConfig 与 DetermineTransportType 相同的判定，只返回布尔值
func IsValidConfig(cfg TransportConfig) bool {
	_, err := DetermineTransportType(cfg)
	return err == nil
}

func isWebSocketURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return u.Scheme == "ws" || u.Scheme == "wss"
}
