package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/internal/metrics"
	"github.com/BaSui01/taskforce/registry"
	"github.com/BaSui01/taskforce/types"
)

// ChatRoom 一次编排会话的共享记录：只追加，消息创建后不再修改
type ChatRoom struct {
	goal    string
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu           sync.RWMutex
	participants map[string]Worker
	messages     []Message
}

// RoomOption configures a ChatRoom.
type RoomOption func(*ChatRoom)

// WithRoomMetrics 记录委派指标
func WithRoomMetrics(c *metrics.Collector) RoomOption {
	return func(r *ChatRoom) { r.metrics = c }
}

// NewChatRoom 创建会话并发布目标消息
func NewChatRoom(goal string, logger *zap.Logger, opts ...RoomOption) *ChatRoom {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &ChatRoom{
		goal:         goal,
		logger:       logger.With(zap.String("component", "chatroom")),
		now:          time.Now,
		participants: make(map[string]Worker),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Post("user", Broadcast, "Goal: "+goal)
	return r
}

// Goal 会话目标
func (r *ChatRoom) Goal() string { return r.goal }

// AddParticipant 加入参与者，同名参与者被替换
func (r *ChatRoom) AddParticipant(w Worker) {
	key := registry.CanonicalName(w.Name())
	r.mu.Lock()
	r.participants[key] = w
	r.mu.Unlock()
	r.logger.Debug("participant joined", zap.String("worker", key))
}

// Participants 返回参与者名称（规范化后），按名称排序
func (r *ChatRoom) Participants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.participants))
	for name := range r.participants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Post 追加一条消息
func (r *ChatRoom) Post(from, to, body string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Body:      body,
		Timestamp: r.now(),
	}
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()

	r.logger.Info("message posted",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("body", body))
	return msg
}

// Delegate 发布任务，把完整历史交给 to 对应的 Worker，并发布其答复。
// to 不存在时返回 NOT_FOUND；Worker 失败时发布 "Error: <msg>" 并返回该错误。
func (r *ChatRoom) Delegate(ctx context.Context, from, to, task string) (string, error) {
	r.Post(from, to, task)

	r.mu.RLock()
	w, ok := r.participants[registry.CanonicalName(to)]
	r.mu.RUnlock()
	if !ok {
		r.metrics.RecordDelegation(to, "not_found")
		return "", types.NewNotFoundError(fmt.Sprintf("Agent not found: %s", to))
	}

	reply, err := w.PerformTask(ctx, r.Messages(), task)
	if err != nil {
		r.logger.Warn("worker failed", zap.String("worker", to), zap.Error(err))
		r.Post(to, from, "Error: "+err.Error())
		r.metrics.RecordDelegation(to, "error")
		return "", err
	}

	r.Post(to, from, reply)
	r.metrics.RecordDelegation(to, "success")
	return reply, nil
}

// Messages 返回消息记录的副本
func (r *ChatRoom) Messages() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Message(nil), r.messages...)
}

// Len 消息数量
func (r *ChatRoom) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

// Transcript 以文本形式渲染消息记录，每条一行
func (r *ChatRoom) Transcript() string {
	msgs := r.Messages()
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.String()
	}
	return strings.Join(lines, "\n")
}
