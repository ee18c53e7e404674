package mcp

import (
	"crypto/tls"
	"time"

	"github.com/BaSui01/taskforce/internal/tlsutil"
	"github.com/BaSui01/taskforce/types"
)

// HTTPMode HTTP 传输获取消息端点的方式
type HTTPMode string

const (
	// ModeDirect 直接使用配置的 URL 作为消息端点
	ModeDirect HTTPMode = "direct"
	// ModeHandshake 通过 SSE endpoint 事件发现消息端点
	ModeHandshake HTTPMode = "handshake"
)

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultEndpointTimeout = 30 * time.Second
)

// TransportConfig 描述一个远端工具服务。
// 传输类型由字段形状推断：有 url 为 HTTP（ws/wss 为 WebSocket），
// 否则 command 或 args 非空为 stdio。
type TransportConfig struct {
	// stdio
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// HTTP / WebSocket
	URL             string            `yaml:"url,omitempty" json:"url,omitempty"`
	Timeout         int               `yaml:"timeout,omitempty" json:"timeout,omitempty"` // seconds
	Headers         map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Reconnect       bool              `yaml:"reconnect,omitempty" json:"reconnect,omitempty"`
	MaxRetries      int               `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	Mode            HTTPMode          `yaml:"mode,omitempty" json:"mode,omitempty"`
	EndpointTimeout int               `yaml:"endpoint_timeout,omitempty" json:"endpoint_timeout,omitempty"` // seconds
	BearerToken     string            `yaml:"bearer_token,omitempty" json:"bearer_token,omitempty"`
	Auth            *JWTAuthConfig    `yaml:"auth,omitempty" json:"auth,omitempty"`
	TLS             *TLSConfig        `yaml:"tls,omitempty" json:"tls,omitempty"`

	// Transport 仅为兼容旧配置保留，类型判定不读取该字段
	Transport string `yaml:"transport,omitempty" json:"transport,omitempty"`
	Disabled  bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// RequestTimeout 返回请求超时，未配置时为 30s
func (c TransportConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.Timeout) * time.Second
}

// EndpointWait 返回等待 endpoint 事件的超时，未配置时为 30s
func (c TransportConfig) EndpointWait() time.Duration {
	if c.EndpointTimeout <= 0 {
		return defaultEndpointTimeout
	}
	return time.Duration(c.EndpointTimeout) * time.Second
}

// TLSConfig 对接自签名证书的服务时使用
type TLSConfig struct {
	// PEM 格式的私有 CA，追加到系统信任池
	CAFile string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	// 覆盖证书校验使用的主机名
	ServerName string `yaml:"server_name,omitempty" json:"server_name,omitempty"`
}

// ClientTLS 构造 HTTP / WebSocket 客户端的 TLS 配置；未配置 tls 时返回 nil（使用默认加固配置）
func (c TransportConfig) ClientTLS() (*tls.Config, error) {
	if c.TLS == nil {
		return nil, nil
	}
	cfg, err := tlsutil.ClientTLSConfig(c.TLS.CAFile, c.TLS.ServerName)
	if err != nil {
		return nil, types.NewConfigurationError("invalid tls settings").WithCause(err)
	}
	return cfg, nil
}
