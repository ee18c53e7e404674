// =============================================================================
// taskforce 主入口
// =============================================================================
// 使用方法:
//
//	taskforce tools --config taskforce.yaml
//	taskforce call --config taskforce.yaml wiki search_pages '{"query":"go"}'
//	taskforce check --config taskforce.yaml
//	taskforce serve --config taskforce.yaml
//	taskforce version
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/taskforce/agent"
	"github.com/BaSui01/taskforce/agent/protocol/mcp"
	"github.com/BaSui01/taskforce/config"
)

// 构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run 执行子命令并返回退出码
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "tools":
		return runTools(ctx, args[1:], stdout, stderr)
	case "call":
		return runCall(ctx, args[1:], stdout, stderr)
	case "check":
		return runCheck(args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}
}

// commandFlags 解析子命令的公共参数
func commandFlags(name string, args []string, stderr io.Writer) (*flag.FlagSet, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("TASKFORCE_CONFIG"), "Path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	return fs, *configPath, nil
}

func loadConfig(path string) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader().
		WithConfigPath(path).
		WithValidator((*config.Config).Validate)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// =============================================================================
// 🔧 tools / call
// =============================================================================

func runTools(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	_, path, err := commandFlags("tools", args, stderr)
	if err != nil {
		return 2
	}
	cfg, _, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer func() { _ = a.Close(context.Background()) }()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tDESCRIPTION")
	for _, entry := range a.tools.All() {
		for _, schema := range entry.Implementation.Operations().Schemas() {
			fmt.Fprintf(tw, "%s\t%s\n", agent.QualifiedToolName(entry.Name, schema.Name), schema.Description)
		}
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	return 0
}

func runCall(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, path, err := commandFlags("call", args, stderr)
	if err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) < 2 || len(rest) > 3 {
		fmt.Fprintln(stderr, "usage: taskforce call [--config path] <server> <tool> [json-arguments]")
		return 2
	}
	var arguments json.RawMessage
	if len(rest) == 3 {
		if !isJSONObject(rest[2]) {
			fmt.Fprintln(stderr, "arguments must be a JSON object")
			return 2
		}
		arguments = json.RawMessage(rest[2])
	}

	cfg, _, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer func() { _ = a.Close(context.Background()) }()

	result := a.dispatcher.Call(ctx, a.tools, rest[0], rest[1], arguments)
	if result.IsError() {
		fmt.Fprintln(stderr, result.String())
		return 1
	}
	fmt.Fprintln(stdout, result.String())
	return 0
}

func isJSONObject(s string) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil && obj != nil
}

// =============================================================================
// ✅ check
// =============================================================================

func runCheck(args []string, stdout, stderr io.Writer) int {
	_, path, err := commandFlags("check", args, stderr)
	if err != nil {
		return 2
	}
	cfg, _, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tTRANSPORT\tSTATUS")
	for _, name := range cfg.ServerNames() {
		server := cfg.MCPServers[name]
		status := "enabled"
		if server.Disabled {
			status = "disabled"
		}
		// Validate 已保证可判定
		tt, _ := mcp.DetermineTransportType(server)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, tt, status)
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	fmt.Fprintf(stdout, "config OK (%d servers, %d enabled)\n", len(cfg.MCPServers), len(cfg.EnabledServers()))
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "taskforce %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `taskforce - delegate work to tool-using workers over MCP

Usage:
  taskforce <command> [--config path] [arguments]

Commands:
  tools     List every bound tool
  call      Call a tool: call <server> <tool> [json-arguments]
  check     Validate the config and show each server's transport
  serve     Start the HTTP tool gateway
  version   Show version information
  help      Show this help message

The config path may also be set with TASKFORCE_CONFIG. Every config value can
be overridden with TASKFORCE_<SECTION>_<FIELD>, e.g. TASKFORCE_LOG_LEVEL=debug.`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
