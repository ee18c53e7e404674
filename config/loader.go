// =============================================================================
// 📦 taskforce 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("taskforce.yaml").
//	    WithEnvPrefix("TASKFORCE").
//	    WithValidator((*config.Config).Validate).
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/taskforce/agent/protocol/mcp"
	"github.com/BaSui01/taskforce/tools"
	"github.com/BaSui01/taskforce/types"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "TASKFORCE"

// Config 是 taskforce 的完整配置结构
type Config struct {
	// Server 工具网关 HTTP 服务
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Dispatcher 分发器配置
	Dispatcher DispatcherConfig `yaml:"dispatcher" env:"DISPATCHER"`

	// Hub 远端服务绑定
	Hub HubConfig `yaml:"hub" env:"HUB"`

	// MCPServers 服务名 -> 传输配置，只能来自文件
	MCPServers map[string]mcp.TransportConfig `yaml:"mcp_servers" env:"-"`
}

// ServerConfig 网关服务配置
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// HS256 密钥，为空时不校验 JWT
	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer   string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	JWTAudience string `yaml:"jwt_audience" env:"JWT_AUDIENCE"`
	// /metrics 路径，为空时不暴露
	MetricsPath string `yaml:"metrics_path" env:"METRICS_PATH"`
	// 同时配置时以 HTTPS 监听
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率 0-1
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 同时通过 OTLP 推送指标
	ExportMetrics bool `yaml:"export_metrics" env:"EXPORT_METRICS"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// DispatcherConfig 分发器配置
type DispatcherConfig struct {
	// 目标名 -> 限流
	RateLimits map[string]tools.RateLimitConfig `yaml:"rate_limits" env:"-"`
}

// HubConfig 远端服务绑定配置
type HubConfig struct {
	// 任一服务绑定失败即启动失败
	Strict bool `yaml:"strict" env:"STRICT"`
	// 单个服务连接 + 绑定超时
	BindTimeout time.Duration `yaml:"bind_timeout" env:"BIND_TIMEOUT"`
	// serve 模式下监听配置文件并重新绑定
	WatchConfig bool `yaml:"watch_config" env:"WATCH_CONFIG"`
	// 轮询间隔
	WatchInterval time.Duration `yaml:"watch_interval" env:"WATCH_INTERVAL"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath 返回配置文件路径
func (l *Loader) ConfigPath() string { return l.configPath }

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// loadFromFile 文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv 递归设置结构体字段，键为 PREFIX_SECTION_FIELD
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按 "30s" 形式解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// =============================================================================
// 🔍 验证
// =============================================================================

// Validate 验证配置，失败返回 CONFIGURATION_ERROR
func (c *Config) Validate() error {
	var errs []string

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("log format must be json or console, got %q", c.Log.Format))
	}
	if c.Telemetry.Enabled && (c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1) {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, "metrics namespace must not be empty")
	}
	if c.Server.JWTSecret != "" && len(c.Server.JWTSecret) < 32 {
		errs = append(errs, "server jwt_secret must be at least 32 bytes")
	}
	if c.Server.MetricsPath != "" && !strings.HasPrefix(c.Server.MetricsPath, "/") {
		errs = append(errs, fmt.Sprintf("server metrics_path must start with /, got %q", c.Server.MetricsPath))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server tls_cert_file and tls_key_file must be set together")
	}

	for _, name := range sortedKeys(c.Dispatcher.RateLimits) {
		limit := c.Dispatcher.RateLimits[name]
		if limit.MaxCalls <= 0 || limit.Window <= 0 {
			errs = append(errs, fmt.Sprintf("rate limit %q needs positive max_calls and window", name))
		}
	}

	for _, name := range sortedKeys(c.MCPServers) {
		s := c.MCPServers[name]
		if !mcp.IsValidConfig(s) {
			errs = append(errs, fmt.Sprintf("mcp server %q: cannot determine transport type", name))
		}
		if s.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("mcp server %q: max_retries must not be negative", name))
		}
		if s.Mode != "" && s.Mode != mcp.ModeDirect && s.Mode != mcp.ModeHandshake {
			errs = append(errs, fmt.Sprintf("mcp server %q: unknown mode %q", name, s.Mode))
		}
		if _, err := s.ClientTLS(); err != nil {
			errs = append(errs, fmt.Sprintf("mcp server %q: %v", name, err))
		}
	}

	if len(errs) > 0 {
		return types.NewConfigurationError("config validation errors: " + strings.Join(errs, "; "))
	}
	return nil
}

// ServerNames 全部远端服务名（含禁用），已排序
func (c *Config) ServerNames() []string {
	return sortedKeys(c.MCPServers)
}

// EnabledServers 返回未禁用的服务名，按名称排序
func (c *Config) EnabledServers() []string {
	var names []string
	for _, name := range sortedKeys(c.MCPServers) {
		if !c.MCPServers[name].Disabled {
			names = append(names, name)
		}
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
