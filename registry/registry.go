package registry

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

// Entry 注册表条目
type Entry[T any] struct {
	Name           string
	Implementation T
}

// Installer 在启动阶段向注册表写入条目
type Installer[T any] func(r *Registry[T])

// Registry 名称 -> 实现 的注册表，名称统一规范化为小写下划线形式
type Registry[T any] struct {
	kind    string
	mu      sync.RWMutex
	entries map[string]T
	logger  *zap.Logger
}

// New 创建注册表，kind 用于日志（如 "agent"、"tool"）
func New[T any](kind string, logger *zap.Logger) *Registry[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry[T]{
		kind:    kind,
		entries: make(map[string]T),
		logger:  logger.With(zap.String("component", "registry"), zap.String("kind", kind)),
	}
}

// Kind 返回注册表类别
func (r *Registry[T]) Kind() string { return r.kind }

// Register 插入或替换条目，返回规范化后的名称
func (r *Registry[T]) Register(name string, impl T) string {
	key := CanonicalName(name)

	r.mu.Lock()
	_, replaced := r.entries[key]
	r.entries[key] = impl
	r.mu.Unlock()

	if replaced {
		r.logger.Debug("entry replaced", zap.String("name", key))
	} else {
		r.logger.Debug("entry registered", zap.String("name", key))
	}
	return key
}

// Lookup 按名称查找；不存在时返回 false
func (r *Registry[T]) Lookup(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.entries[CanonicalName(name)]
	return impl, ok
}

// Has 是否存在
func (r *Registry[T]) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// All 返回按名称排序的全部条目
func (r *Registry[T]) All() []Entry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry[T], 0, len(r.entries))
	for name, impl := range r.entries {
		out = append(out, Entry[T]{Name: name, Implementation: impl})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names 返回排序后的名称列表
func (r *Registry[T]) Names() []string {
	entries := r.All()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Len 条目数量
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Install 依次执行 installer
func (r *Registry[T]) Install(installers ...Installer[T]) {
	for _, install := range installers {
		if install != nil {
			install(r)
		}
	}
	r.logger.Info("registry installed", zap.Int("entries", r.Len()))
}

// Reset 清空注册表（用于测试隔离）
func (r *Registry[T]) Reset() {
	r.mu.Lock()
	r.entries = make(map[string]T)
	r.mu.Unlock()
}

// CanonicalName 将类型短名规范化为小写下划线形式：
// "IssueSearchTool" -> "issue_search_tool"，"HTTPFetcher" -> "http_fetcher"，
// "wiki-pages" -> "wiki_pages"。
func CanonicalName(name string) string {
	runes := []rune(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(runes) + 4)

	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.' || r == '_':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}

	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '_' })
	return strings.Join(parts, "_")
}
