package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/internal/tlsutil"
	"github.com/BaSui01/taskforce/types"
)

// WSState represents the connection state of a WebSocket transport.
type WSState string

const (
	WSStateDisconnected WSState = "disconnected"
	WSStateConnecting   WSState = "connecting"
	WSStateConnected    WSState = "connected"
	WSStateReconnecting WSState = "reconnecting"
	WSStateFailed       WSState = "failed"
	WSStateClosed       WSState = "closed"
)

const (
	wsReconnectDelay    = time.Second
	wsMaxBackoff        = 30 * time.Second
	wsBackoffMultiplier = 2.0
	wsHeartbeatInterval = 30 * time.Second
)

type wsReply struct {
	resp *Response
	err  error
}

// WebSocketTransport sends JSON-RPC requests over one long-lived WebSocket
// connection and correlates replies by id. A failed dial is retried with
// exponential backoff (1s, x2, capped at 30s) up to max_retries times.
type WebSocketTransport struct {
	BaseTransport

	url        string
	headers    map[string]string
	tokens     TokenSource
	timeout    time.Duration
	reconnect  bool
	maxRetries int
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger

	// Heartbeat interval; zero disables pings.
	HeartbeatInterval time.Duration

	connectMu sync.Mutex

	mu            sync.Mutex
	conn          *websocket.Conn
	state         WSState
	onStateChange func(WSState)
	pending       map[int64]chan wsReply
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewWebSocketTransport creates a WebSocket transport for a ws:// or wss:// URL.
func NewWebSocketTransport(cfg TransportConfig, opts ...Option) (*WebSocketTransport, error) {
	if !isWebSocketURL(cfg.URL) {
		return nil, types.NewConfigurationError(fmt.Sprintf("websocket transport requires a ws(s) url, got %q", cfg.URL))
	}
	if cfg.MaxRetries < 0 {
		return nil, types.NewConfigurationError("max_retries must not be negative")
	}
	tokens, err := newTokenSource(cfg)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	client := o.httpClient
	if client == nil {
		tlsCfg, err := cfg.ClientTLS()
		if err != nil {
			return nil, err
		}
		client = tlsutil.WebSocketHTTPClient(tlsCfg)
	}
	t := &WebSocketTransport{
		url:               cfg.URL,
		headers:           cfg.Headers,
		tokens:            tokens,
		timeout:           cfg.RequestTimeout(),
		reconnect:         cfg.Reconnect,
		maxRetries:        cfg.MaxRetries,
		httpClient:        client,
		sleep:             o.sleep,
		logger:            o.logger.With(zap.String("component", "mcp_ws_transport")),
		HeartbeatInterval: wsHeartbeatInterval,
		state:             WSStateDisconnected,
		pending:           make(map[int64]chan wsReply),
	}
	t.init(TransportWebSocket, o.metrics)
	return t, nil
}

// OnStateChange registers a callback invoked whenever the connection state changes.
func (t *WebSocketTransport) OnStateChange(fn func(WSState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChange = fn
}

// setState updates the internal state and fires the callback (if registered).
// Caller must NOT hold t.mu.
func (t *WebSocketTransport) setState(s WSState) {
	t.mu.Lock()
	t.state = s
	fn := t.onStateChange
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// State returns the current connection state.
func (t *WebSocketTransport) State() WSState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsConnected returns true when the transport has an active connection.
func (t *WebSocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == WSStateConnected && t.conn != nil
}

// Connect dials the server, retrying with backoff when reconnect is enabled.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	if t.IsConnected() {
		return nil
	}
	t.setState(WSStateConnecting)

	delay := wsReconnectDelay
	for attempt := 0; ; attempt++ {
		conn, err := t.dial(ctx)
		if err == nil {
			t.install(conn)
			if attempt > 0 {
				t.logger.Info("reconnected", zap.Int("attempts", attempt))
			}
			return nil
		}

		if !t.reconnect || attempt >= t.maxRetries {
			t.setState(WSStateFailed)
			return types.NewConnectionError("websocket connect failed", err)
		}

		t.logger.Warn("dial failed, retrying",
			zap.Error(err),
			zap.Int("retry", attempt+1),
			zap.Duration("backoff", delay))
		t.metrics.RecordTransportRetry(string(TransportWebSocket))
		t.setState(WSStateReconnecting)

		if sleepErr := t.sleep(ctx, delay); sleepErr != nil {
			t.setState(WSStateDisconnected)
			return types.NewTimeoutError("websocket reconnect interrupted", sleepErr)
		}
		delay = time.Duration(float64(delay) * wsBackoffMultiplier)
		if delay > wsMaxBackoff {
			delay = wsMaxBackoff
		}
	}
}

func (t *WebSocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if t.tokens != nil {
		token, err := t.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range t.headers {
		header.Set(k, v)
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, t.url, &websocket.DialOptions{
		HTTPClient:   t.httpClient,
		HTTPHeader:   header,
		Subprotocols: []string{"mcp"},
	})
	return conn, err
}

func (t *WebSocketTransport) install(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.conn = conn
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()
	t.setState(WSStateConnected)

	go t.readLoop(ctx, conn, done)
	if t.HeartbeatInterval > 0 {
		go t.heartbeat(ctx, conn)
	}
}

// readLoop delivers replies to waiting requests until the connection fails.
func (t *WebSocketTransport) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Warn("read failed", zap.Error(err))
			}
			t.drop(conn, types.NewConnectionError("websocket connection lost", err))
			return
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			t.logger.Warn("discarding malformed message", zap.Error(err))
			continue
		}
		// notifications carry no id
		if resp.ID == nil {
			continue
		}

		t.mu.Lock()
		ch := t.pending[*resp.ID]
		delete(t.pending, *resp.ID)
		t.mu.Unlock()
		if ch != nil {
			ch <- wsReply{resp: &resp}
		}
	}
}

func (t *WebSocketTransport) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(t.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, t.timeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				t.logger.Warn("heartbeat failed", zap.Error(err))
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

// drop fails every in-flight request and marks the transport disconnected.
func (t *WebSocketTransport) drop(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	pending := t.pending
	t.pending = make(map[int64]chan wsReply)
	closed := t.state == WSStateClosed
	t.mu.Unlock()

	for _, ch := range pending {
		ch <- wsReply{err: err}
	}
	if !closed {
		t.setState(WSStateDisconnected)
	}
}

// SendRequest writes the request and waits for the reply with the same id.
func (t *WebSocketTransport) SendRequest(ctx context.Context, req *Request) (resp *Response, err error) {
	start := time.Now()
	ctx, span := t.startSpan(ctx, req)
	defer func() { t.finish(span, req, start, err) }()

	if t.State() == WSStateClosed {
		return nil, types.NewConnectionError("websocket transport is closed", nil)
	}
	if !t.IsConnected() {
		if err := t.Connect(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidArguments, "failed to encode request").WithCause(err)
	}

	ch := make(chan wsReply, 1)
	t.mu.Lock()
	conn := t.conn
	t.pending[req.ID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}()

	if conn == nil {
		return nil, types.NewConnectionError("websocket not connected", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
		return nil, types.NewConnectionError("websocket write failed", err)
	}

	select {
	case reply := <-ch:
		if reply.err != nil {
			return nil, reply.err
		}
		if reply.resp.Error != nil {
			return reply.resp, types.NewError(types.ErrRPC, reply.resp.Error.Error())
		}
		return reply.resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewTimeoutError(fmt.Sprintf("no response for %s (id %d)", req.Method, req.ID), ctx.Err())
		}
		return nil, types.NewTimeoutError(fmt.Sprintf("request %s cancelled", req.Method), ctx.Err())
	}
}

// Close shuts down the connection and its background goroutines.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	t.setState(WSStateClosed)

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "closing"); err != nil {
			t.logger.Debug("close handshake incomplete", zap.Error(err))
		}
	}
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
