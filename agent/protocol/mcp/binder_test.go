package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/registry"
	"github.com/BaSui01/taskforce/tools"
	"github.com/BaSui01/taskforce/types"
)

// fakeTransport 记录请求并由 handler 生成响应
type fakeTransport struct {
	BaseTransport

	mu       sync.Mutex
	requests []*Request
	handler  func(req *Request) (*Response, error)
	closed   bool
}

func newFakeTransport(handler func(req *Request) (*Response, error)) *fakeTransport {
	f := &fakeTransport{handler: handler}
	f.init(TransportStdio, nil)
	return f
}

func (f *fakeTransport) SendRequest(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.handler(req)
}

func (f *fakeTransport) IsConnected() bool { return true }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sent() []*Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Request(nil), f.requests...)
}

func resultOf(id int64, v any) *Response {
	data, _ := json.Marshal(v)
	return &Response{JSONRPC: JSONRPCVersion, ID: &id, Result: data}
}

var wikiTools = ListToolsResult{Tools: []ToolDefinition{
	{
		Name:        "search_pages",
		Description: "Search wiki pages",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []any{"query"},
		},
	},
	{Name: "list_spaces", Description: "List spaces"},
}}

func wikiServer(req *Request) (*Response, error) {
	switch req.Method {
	case MethodToolsList:
		return resultOf(req.ID, wikiTools), nil
	case MethodToolsCall:
		params := req.Params.(CallToolParams)
		return resultOf(req.ID, map[string]any{
			"content": []map[string]string{{"type": "text", "text": "called " + params.Name}},
			"args":    params.Arguments,
		}), nil
	}
	return nil, errors.New("unexpected method " + req.Method)
}

func TestBind(t *testing.T) {
	transport := newFakeTransport(wikiServer)

	provider, err := Bind(context.Background(), "wiki", transport, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "wiki", provider.Name())
	assert.Equal(t, []string{"list_spaces", "search_pages"}, provider.Operations().Names())
	assert.Len(t, provider.Descriptors(), 2)

	schemas := provider.Operations().Schemas()
	require.Len(t, schemas, 2)

	listSpaces, err := types.FromJSON(schemas[0].Parameters)
	require.NoError(t, err)
	assert.Contains(t, listSpaces.Properties, types.PlaceholderProperty)

	search, err := types.FromJSON(schemas[1].Parameters)
	require.NoError(t, err)
	assert.Contains(t, search.Properties, "query")
	assert.Equal(t, "Search wiki pages", schemas[1].Description)
}

func TestBind_FollowsCursor(t *testing.T) {
	transport := newFakeTransport(func(req *Request) (*Response, error) {
		params, _ := req.Params.(ListToolsParams)
		switch params.Cursor {
		case "":
			return resultOf(req.ID, ListToolsResult{Tools: []ToolDefinition{{Name: "a"}}, NextCursor: "p2"}), nil
		case "p2":
			return resultOf(req.ID, ListToolsResult{Tools: []ToolDefinition{{Name: "b"}}}), nil
		}
		return nil, errors.New("unexpected cursor")
	})

	provider, err := Bind(context.Background(), "paged", transport, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, provider.Operations().Names())
	assert.Len(t, transport.sent(), 2)
}

func TestBind_RepeatedCursorStops(t *testing.T) {
	transport := newFakeTransport(func(req *Request) (*Response, error) {
		return resultOf(req.ID, ListToolsResult{Tools: []ToolDefinition{{Name: "a"}}, NextCursor: "same"}), nil
	})

	provider, err := Bind(context.Background(), "loop", transport, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, provider.Operations().Names())
	assert.Len(t, transport.sent(), 2)
}

func TestBind_ListFailure(t *testing.T) {
	transport := newFakeTransport(func(*Request) (*Response, error) {
		return nil, types.NewConnectionError("HTTP request failed", errors.New("refused"))
	})

	_, err := Bind(context.Background(), "down", transport, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrConnection, types.GetErrorCode(err))
}

func TestRemoteToolProvider_Call(t *testing.T) {
	transport := newFakeTransport(wikiServer)
	provider, err := Bind(context.Background(), "wiki", transport, nil)
	require.NoError(t, err)

	resp, err := provider.Call(context.Background(), "search_pages", json.RawMessage(`{"query":"onboarding"}`))
	require.NoError(t, err)

	var out struct {
		Content []struct{ Text string }
		Args    map[string]string
	}
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "called search_pages", out.Content[0].Text)
	assert.Equal(t, "onboarding", out.Args["query"])

	sent := transport.sent()
	last := sent[len(sent)-1]
	assert.Equal(t, MethodToolsCall, last.Method)
	assert.Equal(t, "search_pages", last.Params.(CallToolParams).Name)

	_, err = provider.Call(context.Background(), "delete_everything", nil)
	require.Error(t, err)
	assert.Equal(t, "invalid operation: delete_everything", err.Error())
}

func TestRemoteToolProvider_ThroughDispatcher(t *testing.T) {
	transport := newFakeTransport(wikiServer)
	provider, err := Bind(context.Background(), "wiki", transport, nil)
	require.NoError(t, err)

	reg := registry.New[tools.Provider]("tool", zap.NewNop())
	reg.Register(provider.Name(), provider)
	d := tools.NewDispatcher(zap.NewNop())
	ctx := context.Background()

	res := d.Call(ctx, reg, "wiki", "search_pages", json.RawMessage(`{"query":"x"}`))
	require.True(t, res.IsSuccess(), res.String())

	var raw Response
	require.NoError(t, res.Decode(&raw))
	assert.Equal(t, JSONRPCVersion, raw.JSONRPC)
	assert.NotEmpty(t, raw.Result)

	res = d.Call(ctx, reg, "wiki", "search_pages", json.RawMessage(`{}`))
	require.True(t, res.IsError())
	assert.Contains(t, res.Error(), "missing required field(s): query")

	res = d.Call(ctx, reg, "wiki", "list_spaces", nil)
	assert.True(t, res.IsSuccess(), res.String())

	res = d.Call(ctx, reg, "wiki", "unknown_tool", nil)
	assert.Equal(t, "Method unknown_tool not found", res.Error())
}

func TestRemoteToolProvider_TransportErrorBecomesResult(t *testing.T) {
	transport := newFakeTransport(func(req *Request) (*Response, error) {
		if req.Method == MethodToolsList {
			return resultOf(req.ID, wikiTools), nil
		}
		return nil, types.NewServerError(502, "HTTP 502: bad gateway")
	})
	provider, err := Bind(context.Background(), "wiki", transport, nil)
	require.NoError(t, err)

	reg := registry.New[tools.Provider]("tool", nil)
	reg.Register("wiki", provider)

	res := tools.NewDispatcher(nil).Call(context.Background(), reg, "wiki", "list_spaces", nil)
	require.True(t, res.IsError())
	assert.Equal(t, "HTTP 502: bad gateway", res.Error())
}

func TestBind_UnusableSchema(t *testing.T) {
	transport := newFakeTransport(func(req *Request) (*Response, error) {
		return resultOf(req.ID, ListToolsResult{Tools: []ToolDefinition{{
			Name:        "odd",
			InputSchema: map[string]any{"type": 42},
		}}}), nil
	})

	provider, err := Bind(context.Background(), "odd", transport, nil)
	require.NoError(t, err)
	spec, ok := provider.Operations().Lookup("odd")
	require.True(t, ok)
	assert.Contains(t, spec.Schema.Properties, types.PlaceholderProperty)
}

func TestRemoteToolProvider_Close(t *testing.T) {
	transport := newFakeTransport(wikiServer)
	provider, err := Bind(context.Background(), "wiki", transport, nil)
	require.NoError(t, err)

	require.NoError(t, provider.Close())
	assert.True(t, transport.closed)
}
