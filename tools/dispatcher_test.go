package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/taskforce/internal/metrics"
	"github.com/BaSui01/taskforce/registry"
	"github.com/BaSui01/taskforce/types"
)

func newCalculator() *StaticProvider {
	operands := types.NewObjectSchema().
		AddProperty("a", types.NewNumberSchema()).
		AddProperty("b", types.NewNumberSchema()).
		AddRequired("a", "b")

	return NewProvider("calculator",
		OperationSpec{
			Name:   "add",
			Schema: operands,
			Handler: func(_ context.Context, args json.RawMessage) (types.Result, error) {
				var in struct{ A, B float64 }
				if err := json.Unmarshal(args, &in); err != nil {
					return types.Result{}, err
				}
				return types.NewSuccess(in.A + in.B), nil
			},
		},
		OperationSpec{
			Name:   "divide",
			Schema: operands,
			Handler: func(_ context.Context, args json.RawMessage) (types.Result, error) {
				var in struct{ A, B float64 }
				if err := json.Unmarshal(args, &in); err != nil {
					return types.Result{}, err
				}
				if in.B == 0 {
					return types.NewFailure("division by zero"), nil
				}
				return types.NewSuccess(in.A / in.B), nil
			},
		},
		OperationSpec{
			Name: "fail",
			Handler: func(context.Context, json.RawMessage) (types.Result, error) {
				return types.Result{}, errors.New("backend unavailable")
			},
		},
		OperationSpec{
			Name: "explode",
			Handler: func(context.Context, json.RawMessage) (types.Result, error) {
				panic("kaboom")
			},
		},
		OperationSpec{
			Name: "silent",
			Handler: func(context.Context, json.RawMessage) (types.Result, error) {
				return types.Result{}, nil
			},
		},
	)
}

func newToolRegistry(t *testing.T) *registry.Registry[Provider] {
	t.Helper()
	reg := registry.New[Provider]("tool", zap.NewNop())
	reg.Register("Calculator", newCalculator())
	return reg
}

func TestDispatcher_Call(t *testing.T) {
	reg := newToolRegistry(t)
	d := NewDispatcher(zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name      string
		target    string
		operation string
		args      string
		wantValue string
		wantErr   string
	}{
		{name: "success", target: "calculator", operation: "add", args: `{"a":2,"b":3}`, wantValue: "5"},
		{name: "canonical target", target: "Calculator", operation: "add", args: `{"a":1,"b":1}`, wantValue: "2"},
		{name: "structured failure", target: "calculator", operation: "divide", args: `{"a":1,"b":0}`, wantErr: "division by zero"},
		{name: "unknown target", target: "weather", operation: "add", args: `{}`, wantErr: "Tool weather not found."},
		{name: "unknown operation", target: "calculator", operation: "multiply", args: `{}`, wantErr: "Method multiply not found"},
		{name: "missing field", target: "calculator", operation: "add", args: `{"a":1}`, wantErr: "invalid arguments: $: missing required field(s): b"},
		{name: "wrong type", target: "calculator", operation: "add", args: `{"a":"1","b":2}`, wantErr: "invalid arguments: $.a: expected number"},
		{name: "handler error", target: "calculator", operation: "fail", args: `{}`, wantErr: "backend unavailable"},
		{name: "panic", target: "calculator", operation: "explode", args: `{}`, wantErr: "kaboom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Call(ctx, reg, tt.target, tt.operation, json.RawMessage(tt.args))
			if tt.wantErr != "" {
				require.True(t, res.IsError(), "got %s", res.String())
				assert.Equal(t, tt.wantErr, res.Error())
				return
			}
			require.True(t, res.IsSuccess(), "got %s", res.String())
			assert.JSONEq(t, tt.wantValue, string(res.Value()))
		})
	}
}

func TestDispatcher_ZeroResultBecomesNull(t *testing.T) {
	d := NewDispatcher(nil)
	res := d.Call(context.Background(), newToolRegistry(t), "calculator", "silent", nil)
	require.True(t, res.IsSuccess())
	assert.Equal(t, "null", string(res.Value()))
}

func TestDispatcher_NilRegistry(t *testing.T) {
	d := NewDispatcher(nil, WithKind("Agent"))
	res := d.Call(context.Background(), nil, "researcher", "run", nil)
	require.True(t, res.IsError())
	assert.Equal(t, "Agent researcher not found.", res.Error())
}

func TestDispatcher_RateLimit(t *testing.T) {
	reg := newToolRegistry(t)
	d := NewDispatcher(zap.NewNop(), WithRateLimit("calculator", RateLimitConfig{
		MaxCalls: 2,
		Window:   time.Hour,
	}))
	ctx := context.Background()
	args := json.RawMessage(`{"a":1,"b":2}`)

	assert.True(t, d.Call(ctx, reg, "calculator", "add", args).IsSuccess())
	assert.True(t, d.Call(ctx, reg, "calculator", "add", args).IsSuccess())

	res := d.Call(ctx, reg, "calculator", "add", args)
	require.True(t, res.IsError())
	assert.Contains(t, res.Error(), "rate limit exceeded")
}

func TestDispatcher_RecordsMetrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", promReg, zap.NewNop())
	d := NewDispatcher(zap.NewNop(), WithMetrics(collector))
	reg := newToolRegistry(t)
	ctx := context.Background()

	d.Call(ctx, reg, "calculator", "add", json.RawMessage(`{"a":1,"b":2}`))
	d.Call(ctx, reg, "calculator", "fail", nil)

	count, err := testutil.GatherAndCount(promReg, "test_dispatch_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// 任意操作名、任意参数、任意失败方式都只会得到 Result，不会 panic。
func TestDispatcher_NeverEscapes(t *testing.T) {
	reg := newToolRegistry(t)
	d := NewDispatcher(zap.NewNop())

	rapid.Check(t, func(rt *rapid.T) {
		target := rapid.SampledFrom([]string{"calculator", "Calculator", "missing", ""}).Draw(rt, "target")
		op := rapid.SampledFrom([]string{"add", "divide", "fail", "explode", "silent", "nope"}).Draw(rt, "op")
		args := rapid.SampledFrom([]string{
			"", "{}", "null", "[]", "not json",
			`{"a":1,"b":2}`, `{"a":"x"}`, `{"a":1,"b":0}`,
		}).Draw(rt, "args")

		res := d.Call(context.Background(), reg, target, op, json.RawMessage(args))
		if res.IsSuccess() == res.IsError() {
			rt.Fatalf("result must be exactly one of success or error: %+v", res)
		}
		if res.IsError() && res.Error() == "" {
			rt.Fatalf("error result without message")
		}
	})
}
