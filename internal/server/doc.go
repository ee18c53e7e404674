// 版权所有 2024 Taskforce Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理工具网关的 HTTP 服务生命周期。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供非阻塞 Start、
    阻塞 Serve（直到 ctx 结束或服务异常）与带超时的 Shutdown。

监听地址可为 ":0"，实际地址通过 Addr 获得。同时配置 tls_cert_file 与
tls_key_file 时以 HTTPS 监听，证书经 tlsutil.ServerTLSConfig 加载。
*/
package server
