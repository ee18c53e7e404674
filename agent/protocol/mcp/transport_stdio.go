package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/types"
)

// 超时取消后等待输出管道关闭的上限
const processWaitDelay = 2 * time.Second

// 子进程默认继承的环境变量，其余变量需通过配置显式传入
var inheritedEnv = []string{"HOME", "LOGNAME", "PATH", "SHELL", "TERM", "USER"}

// StdioTransport 每个请求启动一次子进程：
// 向 stdin 写入一行 JSON 请求，读取 stdout 作为响应，非零退出码视为失败。
type StdioTransport struct {
	BaseTransport

	command string
	args    []string
	env     map[string]string
	timeout time.Duration
	logger  *zap.Logger
}

// NewStdioTransport 创建 stdio 传输。
// command 为空时 args 的第一个元素被提升为命令；两者都为空返回 CONFIGURATION_ERROR。
func NewStdioTransport(cfg TransportConfig, opts ...Option) (*StdioTransport, error) {
	command := strings.TrimSpace(cfg.Command)
	args := append([]string(nil), cfg.Args...)
	if command == "" {
		if len(args) == 0 {
			return nil, types.NewConfigurationError("stdio transport requires a command or args")
		}
		command, args = args[0], args[1:]
	}

	o := buildOptions(opts)
	t := &StdioTransport{
		command: command,
		args:    args,
		env:     cfg.Env,
		timeout: cfg.RequestTimeout(),
		logger: o.logger.With(
			zap.String("component", "mcp_stdio_transport"),
			zap.String("command", command),
		),
	}
	t.init(TransportStdio, o.metrics)
	return t, nil
}

// IsConnected stdio 传输始终视为已连接
func (t *StdioTransport) IsConnected() bool { return true }

// Close 无持久资源
func (t *StdioTransport) Close() error { return nil }

// Command 返回实际执行的命令与参数
func (t *StdioTransport) Command() (string, []string) {
	return t.command, append([]string(nil), t.args...)
}

// SendRequest 启动子进程完成一次请求
func (t *StdioTransport) SendRequest(ctx context.Context, req *Request) (resp *Response, err error) {
	start := time.Now()
	ctx, span := t.startSpan(ctx, req)
	defer func() { t.finish(span, req, start, err) }()

	line, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidArguments, "failed to encode request").WithCause(err)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Env = t.environ()
	cmd.Stdin = bytes.NewReader(append(line, '\n'))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// 超时后杀掉整个进程组；孙进程若仍持有输出管道，最多再等 WaitDelay
	setProcessGroup(cmd)
	cmd.WaitDelay = processWaitDelay

	t.logger.Debug("spawning process", zap.String("method", req.Method), zap.Int64("id", req.ID))

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, types.NewTimeoutError(fmt.Sprintf("stdio request %s timed out", req.Method), ctxErr)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			t.logger.Warn("process exited with error",
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.String("stderr", msg))
			return nil, types.NewExecutionError(
				fmt.Sprintf("command %s exited with status %d: %s", t.command, exitErr.ExitCode(), msg))
		}
		return nil, types.NewExecutionError(fmt.Sprintf("failed to run command %s", t.command)).WithCause(runErr)
	}

	return parseStdioOutput(stdout.Bytes(), req.ID)
}

// environ 安全继承的环境变量 + 配置变量（配置优先）
func (t *StdioTransport) environ() []string {
	merged := make(map[string]string, len(inheritedEnv)+len(t.env))
	for _, key := range inheritedEnv {
		if v, ok := os.LookupEnv(key); ok {
			merged[key] = v
		}
	}
	for k, v := range t.env {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// parseStdioOutput 整体解析 stdout；若输出是多行 JSON 流，
// 取最后一个 id 与请求相同的响应，跳过通知。
func parseStdioOutput(out []byte, id int64) (*Response, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, types.NewExecutionError("command produced no output")
	}
	if json.Valid(out) {
		return ParseResponse(out)
	}

	var match []byte
	for _, line := range bytes.Split(out, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var envelope struct {
			ID *int64 `json:"id"`
		}
		if json.Unmarshal(line, &envelope) != nil || envelope.ID == nil {
			continue
		}
		if *envelope.ID == id {
			match = line
		}
	}
	if match == nil {
		return ParseResponse(out)
	}
	return ParseResponse(match)
}
