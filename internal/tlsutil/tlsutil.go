package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientTLSConfig 在默认配置上追加私有 CA 与 SNI 覆盖。
// caFile 中的证书追加到系统信任池之后，两个参数都为空时等同 DefaultTLSConfig。
func ClientTLSConfig(caFile, serverName string) (*tls.Config, error) {
	cfg := DefaultTLSConfig()
	cfg.ServerName = serverName
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no PEM certificates found in %s", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// ServerTLSConfig 加载网关监听用的证书
func ServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("both cert and key files are required")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	cfg := DefaultTLSConfig()
	cfg.Certificates = []tls.Certificate{cert}
	return cfg, nil
}

// SecureTransport returns an http.Transport with TLS hardening.
// A nil tlsCfg means DefaultTLSConfig.
func SecureTransport(tlsCfg *tls.Config) *http.Transport {
	if tlsCfg == nil {
		tlsCfg = DefaultTLSConfig()
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsCfg,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SecureHTTPClient returns an http.Client for JSON-RPC POSTs; timeout bounds
// the whole exchange including reading the body.
func SecureHTTPClient(timeout time.Duration, tlsCfg *tls.Config) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(tlsCfg),
	}
}

// StreamingHTTPClient returns a client for long-lived event streams: no overall
// timeout, but the server must send response headers within 30s.
func StreamingHTTPClient(tlsCfg *tls.Config) *http.Client {
	tr := SecureTransport(tlsCfg)
	tr.ResponseHeaderTimeout = 30 * time.Second
	// 压缩会缓冲事件，延迟 endpoint 事件到达
	tr.DisableCompression = true
	return &http.Client{Transport: tr}
}

// WebSocketHTTPClient 用于 WebSocket 握手：升级只能走 HTTP/1.1，
// 且不能设置 Client.Timeout（由 ctx 控制）。
func WebSocketHTTPClient(tlsCfg *tls.Config) *http.Client {
	tr := SecureTransport(tlsCfg)
	tr.ForceAttemptHTTP2 = false
	tr.TLSClientConfig = tr.TLSClientConfig.Clone()
	tr.TLSClientConfig.NextProtos = []string{"http/1.1"}
	return &http.Client{Transport: tr}
}
