package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/internal/tlsutil"
	"github.com/BaSui01/taskforce/types"
)

// ConnState HTTP 会话状态
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// 事件流断开后的固定重连间隔
const streamRetryDelay = time.Second

// 错误信息中保留的响应体长度
const maxErrorBody = 512

type endpointResult struct {
	url string
	err error
}

// HTTPSSETransport 通过 HTTP POST 发送 JSON-RPC 请求。
//
// direct 模式直接把配置的 URL 当作消息端点；handshake 模式先 GET 事件流，
// 由 endpoint 事件给出消息端点，事件流同时承载 202 Accepted 请求的异步响应。
type HTTPSSETransport struct {
	BaseTransport

	baseURL         *url.URL
	mode            HTTPMode
	timeout         time.Duration
	endpointTimeout time.Duration
	headers         map[string]string
	reconnect       bool
	maxRetries      int
	tokens          TokenSource

	client       *http.Client
	streamClient *http.Client
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *zap.Logger

	connectMu sync.Mutex

	mu           sync.Mutex
	state        ConnState
	endpoint     string
	sessionID    string
	retryCount   int // 仅用于观测，见 RetryCount
	cancelStream context.CancelFunc
	streamDone   chan struct{}
	pending      map[int64]chan *Response
}

// NewHTTPSSETransport 创建 HTTP/SSE 传输
func NewHTTPSSETransport(cfg TransportConfig, opts ...Option) (*HTTPSSETransport, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, types.NewConfigurationError(fmt.Sprintf("invalid url %q", cfg.URL)).WithCause(err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, types.NewConfigurationError(fmt.Sprintf("http transport requires an http(s) url, got %q", cfg.URL))
	}

	mode := cfg.Mode
	switch mode {
	case "":
		mode = ModeDirect
	case ModeDirect, ModeHandshake:
	default:
		return nil, types.NewConfigurationError(fmt.Sprintf("unknown http mode %q", cfg.Mode))
	}
	if cfg.MaxRetries < 0 {
		return nil, types.NewConfigurationError("max_retries must not be negative")
	}

	tokens, err := newTokenSource(cfg)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	timeout := cfg.RequestTimeout()
	client := o.httpClient
	streamClient := o.httpClient
	if client == nil {
		tlsCfg, err := cfg.ClientTLS()
		if err != nil {
			return nil, err
		}
		client = tlsutil.SecureHTTPClient(timeout, tlsCfg)
		streamClient = tlsutil.StreamingHTTPClient(tlsCfg)
	}

	t := &HTTPSSETransport{
		baseURL:         base,
		mode:            mode,
		timeout:         timeout,
		endpointTimeout: cfg.EndpointWait(),
		headers:         cfg.Headers,
		reconnect:       cfg.Reconnect,
		maxRetries:      cfg.MaxRetries,
		tokens:          tokens,
		client:          client,
		streamClient:    streamClient,
		sleep:           o.sleep,
		logger: o.logger.With(
			zap.String("component", "mcp_http_transport"),
			zap.String("url", base.Redacted()),
		),
		state:   StateDisconnected,
		pending: make(map[int64]chan *Response),
	}
	t.init(TransportHTTP, o.metrics)
	return t, nil
}

// IsConnected 会话是否已建立
func (t *HTTPSSETransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateConnected
}

// State 当前会话状态
func (t *HTTPSSETransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SessionID 当前会话 id，未连接时为空
func (t *HTTPSSETransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Endpoint 当前消息端点，未连接时为空
func (t *HTTPSSETransport) Endpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoint
}

// RetryCount 最近一次重连时所在请求已用的重试次数；Close 后归零。
// 重试额度按请求独立计算，并发请求互不影响。
func (t *HTTPSSETransport) RetryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryCount
}

// Mode 端点发现模式
func (t *HTTPSSETransport) Mode() HTTPMode { return t.mode }

// Connect 确定消息端点并分配新的会话 id
func (t *HTTPSSETransport) Connect(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	t.mu.Lock()
	if t.state == StateConnected {
		t.mu.Unlock()
		return nil
	}
	t.state = StateConnecting
	t.mu.Unlock()

	endpoint := t.baseURL.String()
	if t.mode == ModeHandshake {
		var err error
		endpoint, err = t.handshake(ctx)
		if err != nil {
			t.reset(true)
			t.logger.Warn("handshake failed", zap.Error(err))
			return err
		}
	}

	t.mu.Lock()
	if t.mode == ModeHandshake && t.streamDone == nil {
		// 事件流在 endpoint 事件之后立即断开，或期间被 Close
		t.state = StateDisconnected
		t.mu.Unlock()
		return types.NewConnectionError("event stream closed before connect completed", nil)
	}
	t.endpoint = endpoint
	t.sessionID = uuid.NewString()
	t.state = StateConnected
	sessionID := t.sessionID
	t.mu.Unlock()

	t.logger.Debug("connected",
		zap.String("endpoint", endpoint),
		zap.String("session_id", sessionID),
		zap.String("mode", string(t.mode)))
	return nil
}

// Close 停止事件流监听并重置会话
func (t *HTTPSSETransport) Close() error {
	t.reset(false)
	return nil
}

// reset 回到 disconnected；keepRetries 为 true 时保留重试计数（重连路径）
func (t *HTTPSSETransport) reset(keepRetries bool) {
	t.mu.Lock()
	cancel, done := t.cancelStream, t.streamDone
	t.cancelStream, t.streamDone = nil, nil
	t.endpoint = ""
	t.sessionID = ""
	t.state = StateDisconnected
	if !keepRetries {
		t.retryCount = 0
	}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SendRequest 发送请求；连接错误按 2^retry 秒退避重连，最多 max_retries 次
func (t *HTTPSSETransport) SendRequest(ctx context.Context, req *Request) (resp *Response, err error) {
	start := time.Now()
	ctx, span := t.startSpan(ctx, req)
	defer func() { t.finish(span, req, start, err) }()

	// 重试计数是请求的局部状态，其他请求成功不会重置它
	retries := 0
	for {
		resp, err = t.attempt(ctx, req)
		if err == nil || !types.IsErrorCode(err, types.ErrConnection) {
			return resp, err
		}
		if ctx.Err() != nil || !t.reconnect || retries >= t.maxRetries {
			return nil, err
		}

		delay := time.Duration(1<<retries) * time.Second
		retries++
		t.mu.Lock()
		t.retryCount = retries
		t.mu.Unlock()

		t.logger.Warn("connection error, reconnecting",
			zap.Error(err),
			zap.Int("retry", retries),
			zap.Int("max_retries", t.maxRetries),
			zap.Duration("backoff", delay))
		t.metrics.RecordTransportRetry(string(TransportHTTP))

		if sleepErr := t.sleep(ctx, delay); sleepErr != nil {
			return nil, types.NewTimeoutError("reconnect interrupted", sleepErr)
		}
		t.reset(true)
	}
}

func (t *HTTPSSETransport) attempt(ctx context.Context, req *Request) (*Response, error) {
	if !t.IsConnected() {
		if err := t.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return t.post(ctx, req)
}

func (t *HTTPSSETransport) post(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidArguments, "failed to encode request").WithCause(err)
	}

	t.mu.Lock()
	endpoint, sessionID := t.endpoint, t.sessionID
	t.mu.Unlock()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewConnectionError("failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		httpReq.Header.Set("Mcp-Session-Id", sessionID)
	}
	if err := t.applyHeaders(ctx, httpReq); err != nil {
		return nil, err
	}

	// handshake 模式下 202 响应通过事件流返回
	var waiter chan *Response
	if t.mode == ModeHandshake {
		waiter = t.expect(req.ID)
		defer t.forget(req.ID)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyRequestError(err)
	}
	defer httpResp.Body.Close()

	if sid := httpResp.Header.Get("Mcp-Session-Id"); sid != "" && sid != sessionID {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classifyRequestError(err)
	}

	status := httpResp.StatusCode
	switch {
	case status >= 200 && status < 300:
		if len(bytes.TrimSpace(data)) == 0 {
			if waiter != nil {
				return t.await(ctx, req, waiter)
			}
			return nil, types.NewError(types.ErrRPC, fmt.Sprintf("empty response body (HTTP %d)", status))
		}
		if isSSEBody(httpResp.Header.Get("Content-Type"), data) {
			data = sseData(data)
		}
		return ParseResponse(data)
	case status >= 400 && status < 500:
		return nil, types.NewClientError(status, fmt.Sprintf("HTTP %d: %s", status, truncate(data)))
	case status >= 500 && status < 600:
		return nil, types.NewServerError(status, fmt.Sprintf("HTTP %d: %s", status, truncate(data)))
	default:
		return nil, types.NewConnectionError(fmt.Sprintf("unexpected HTTP status %d", status), nil).
			WithHTTPStatus(status)
	}
}

func (t *HTTPSSETransport) applyHeaders(ctx context.Context, req *http.Request) error {
	if t.tokens != nil {
		token, err := t.tokens.Token(ctx)
		if err != nil {
			return types.NewConfigurationError("failed to obtain bearer token").WithCause(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return nil
}

func (t *HTTPSSETransport) expect(id int64) chan *Response {
	ch := make(chan *Response, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return ch
}

func (t *HTTPSSETransport) forget(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *HTTPSSETransport) await(ctx context.Context, req *Request, ch chan *Response) (*Response, error) {
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, types.NewError(types.ErrRPC, resp.Error.Error())
		}
		return resp, nil
	case <-timer.C:
		return nil, types.NewTimeoutError(
			fmt.Sprintf("no response for %s (id %d) after %s", req.Method, req.ID, t.timeout), nil)
	case <-ctx.Done():
		return nil, types.NewTimeoutError(fmt.Sprintf("request %s cancelled", req.Method), ctx.Err())
	}
}

// handshake 启动事件流监听并等待 endpoint 事件
func (t *HTTPSSETransport) handshake(ctx context.Context) (string, error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	results := make(chan endpointResult, 1)
	done := make(chan struct{})

	t.mu.Lock()
	staleCancel, staleDone := t.cancelStream, t.streamDone
	t.cancelStream = cancel
	t.streamDone = done
	t.mu.Unlock()

	// 上一个监听者若仍在运行，先停掉
	if staleCancel != nil {
		staleCancel()
		<-staleDone
	}

	go t.listen(streamCtx, results, done)

	timer := time.NewTimer(t.endpointTimeout)
	defer timer.Stop()

	select {
	case r := <-results:
		return r.url, r.err
	case <-streamCtx.Done():
		// 监听者放弃时先投递结果再取消
		select {
		case r := <-results:
			return r.url, r.err
		default:
		}
		return "", types.NewConnectionError("transport closed while waiting for endpoint event", nil)
	case <-timer.C:
		return "", types.NewTimeoutError(
			fmt.Sprintf("timed out waiting for endpoint event after %s", t.endpointTimeout), nil)
	case <-ctx.Done():
		return "", types.NewTimeoutError("connect cancelled while waiting for endpoint event", ctx.Err())
	}
}

// listen 读取事件流；出错后按固定 1s 间隔重连，最多 max_retries 次
func (t *HTTPSSETransport) listen(ctx context.Context, results chan<- endpointResult, done chan<- struct{}) {
	defer close(done)

	delivered := false
	deliver := func(r endpointResult) {
		if !delivered {
			delivered = true
			results <- r
		}
	}

	retries := 0
	for {
		err := t.readStream(ctx, func(endpoint string) {
			deliver(endpointResult{url: endpoint})
		})
		if ctx.Err() != nil {
			return
		}

		if !t.reconnect || retries >= t.maxRetries {
			t.logger.Warn("event stream closed", zap.Error(err), zap.Int("retries", retries))
			deliver(endpointResult{err: types.NewConnectionError("event stream failed", err)})
			t.abandon(done)
			return
		}

		retries++
		t.logger.Warn("event stream error, retrying",
			zap.Error(err),
			zap.Int("retry", retries),
			zap.Duration("backoff", streamRetryDelay))
		t.metrics.RecordTransportRetry(string(TransportHTTP))
		if t.sleep(ctx, streamRetryDelay) != nil {
			return
		}
	}
}

// abandon 监听者放弃后清理它留下的会话状态；会话已被替换时不做任何事
func (t *HTTPSSETransport) abandon(done chan<- struct{}) {
	t.mu.Lock()
	if t.streamDone != done {
		t.mu.Unlock()
		return
	}
	cancel := t.cancelStream
	t.cancelStream, t.streamDone = nil, nil
	t.endpoint = ""
	t.sessionID = ""
	if t.state == StateConnected {
		t.state = StateDisconnected
	}
	t.mu.Unlock()

	// 只释放 ctx；done 由调用方的 defer 关闭，这里不能等待
	if cancel != nil {
		cancel()
	}
}

func (t *HTTPSSETransport) readStream(ctx context.Context, onEndpoint func(string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if err := t.applyHeaders(ctx, req); err != nil {
		return err
	}

	resp, err := t.streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream: unexpected status %d", resp.StatusCode)
	}

	reader := newSSEReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("event stream closed by server")
			}
			return err
		}

		switch ev.Event {
		case "endpoint":
			endpoint, err := t.resolveEndpoint(ev.Data)
			if err != nil {
				t.logger.Warn("ignoring endpoint event", zap.Error(err))
				continue
			}
			onEndpoint(endpoint)
		case "", "message":
			t.deliverMessage(ev.Data)
		}
	}
}

func (t *HTTPSSETransport) deliverMessage(data string) {
	var resp Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil || resp.ID == nil {
		return
	}
	t.mu.Lock()
	ch := t.pending[*resp.ID]
	t.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- &resp:
	default:
	}
}

// resolveEndpoint 解析 endpoint 事件：{"url": "..."} 或裸 URL，
// 相对地址基于 base URL 解析，且必须与 base URL 同源。
func (t *HTTPSSETransport) resolveEndpoint(data string) (string, error) {
	raw := strings.TrimSpace(data)
	if strings.HasPrefix(raw, "{") {
		var payload struct {
			URL      string `json:"url"`
			Endpoint string `json:"endpoint"`
		}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return "", fmt.Errorf("invalid endpoint payload: %w", err)
		}
		raw = payload.URL
		if raw == "" {
			raw = payload.Endpoint
		}
	}
	if raw == "" {
		return "", fmt.Errorf("endpoint event carries no url")
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint url %q: %w", raw, err)
	}
	resolved := t.baseURL.ResolveReference(ref)
	if resolved.Scheme != t.baseURL.Scheme || resolved.Host != t.baseURL.Host {
		return "", fmt.Errorf("endpoint origin mismatch: %s", resolved.Redacted())
	}
	return resolved.String(), nil
}

func classifyRequestError(err error) error {
	// 调用方取消不是连接故障，不能触发重连
	if errors.Is(err, context.Canceled) {
		return types.NewTimeoutError("HTTP request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTimeoutError("HTTP request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewTimeoutError("HTTP request timed out", err)
	}
	return types.NewConnectionError("HTTP request failed", err)
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
