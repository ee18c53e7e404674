// Package tlsutil 提供远端工具传输与工具网关共用的 TLS 设置。
//
// 所有客户端与监听都基于 DefaultTLSConfig（TLS 1.2+，仅 AEAD 密码套件）；
// 对接自签名证书的内网服务时，用 ClientTLSConfig 追加私有 CA 或覆盖 SNI。
package tlsutil
