// 配置文件变更监听：fsnotify 监听所在目录，按修改时间判定变更，
// 变更后重新加载并回调。fsnotify 不可用时退回轮询。
package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// 编辑器保存通常产生多个事件，合并后只检查一次
const notifyDebounce = 50 * time.Millisecond

// ReloadFunc 配置重载回调
type ReloadFunc func(oldConfig, newConfig *Config)

// Watcher 监听 Loader 的配置文件。重新加载失败（解析或验证）时保留当前配置。
type Watcher struct {
	loader   *Loader
	interval time.Duration
	polling  bool
	logger   *zap.Logger

	// Run 确定监听方式后关闭
	started   chan struct{}
	notifying bool

	mu        sync.Mutex
	current   *Config
	lastMod   time.Time
	callbacks []ReloadFunc
}

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPolling 只轮询，不使用 fsnotify
func WithPolling() WatcherOption {
	return func(w *Watcher) {
		w.polling = true
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher 创建监听器，current 为已加载的配置
func NewWatcher(loader *Loader, current *Config, opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || loader.configPath == "" {
		return nil, errors.New("config watcher requires a config path")
	}
	w := &Watcher{
		loader:   loader,
		interval: 2 * time.Second,
		logger:   zap.NewNop(),
		started:  make(chan struct{}),
		current:  current,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"), zap.String("path", loader.configPath))

	if info, err := os.Stat(loader.configPath); err == nil {
		w.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return w, nil
}

// OnReload 注册重载回调
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Current 当前生效的配置
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run 监听文件变更直到 ctx 结束。使用 fsnotify 时 interval 轮询仍作为兜底，
// 覆盖网络文件系统等收不到事件的情况。Run 只能调用一次。
func (w *Watcher) Run(ctx context.Context) {
	var fsw *fsnotify.Watcher
	if !w.polling {
		var err error
		if fsw, err = w.notifier(); err != nil {
			w.logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
		}
	}
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fsw != nil {
		defer fsw.Close()
		events, errs = fsw.Events, fsw.Errors
		w.notifying = true
	}
	close(w.started)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(notifyDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	w.logger.Info("config watcher started",
		zap.Duration("interval", w.interval),
		zap.Bool("fsnotify", fsw != nil))
	base := filepath.Base(w.loader.configPath)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return
		case event, ok := <-events:
			if !ok {
				w.logger.Warn("fsnotify closed, falling back to polling")
				events, errs = nil, nil
				continue
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
				debounce.Reset(notifyDebounce)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("fsnotify error", zap.Error(err))
		case <-debounce.C:
			w.check()
		case <-ticker.C:
			w.check()
		}
	}
}

// notifier 监听配置文件所在目录，原子替换（rename）写入的文件也能收到事件
func (w *Watcher) notifier() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(w.loader.configPath)); err != nil {
		fsw.Close()
		return nil, err
	}
	return fsw, nil
}

func (w *Watcher) check() {
	if _, err := w.Check(); err != nil {
		w.logger.Warn("config reload rejected, keeping current config", zap.Error(err))
	}
}

// Check 检查一次文件，修改时间变化时重新加载。返回是否应用了新配置。
func (w *Watcher) Check() (bool, error) {
	info, err := os.Stat(w.loader.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	w.mu.Lock()
	if info.ModTime().Equal(w.lastMod) {
		w.mu.Unlock()
		return false, nil
	}
	// 失败的版本也记下，避免每次轮询重复报错
	w.lastMod = info.ModTime()
	w.mu.Unlock()

	next, err := w.loader.Load()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	callbacks := append([]ReloadFunc(nil), w.callbacks...)
	w.mu.Unlock()

	w.logger.Info("config reloaded", zap.Bool("servers_changed", ServersChanged(prev, next)))
	for _, cb := range callbacks {
		cb(prev, next)
	}
	return true, nil
}

// ServersChanged 两份配置的远端服务或 Hub 设置是否不同
func ServersChanged(a, b *Config) bool {
	if a == nil || b == nil {
		return a != b
	}
	return !reflect.DeepEqual(a.MCPServers, b.MCPServers) || a.Hub.Strict != b.Hub.Strict
}
