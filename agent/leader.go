package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/internal/metrics"
	"github.com/BaSui01/taskforce/registry"
	"github.com/BaSui01/taskforce/types"
)

// Step 计划中的一步：交给哪个 Worker 做什么
type Step struct {
	Worker string `json:"worker"`
	Task   string `json:"task"`
}

// WorkerInfo Planner 可见的 Worker 描述
type WorkerInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Planner 不透明的规划器：分解目标并汇总结果
type Planner interface {
	Plan(ctx context.Context, goal string, workers []WorkerInfo) ([]Step, error)
	Synthesize(ctx context.Context, goal string, history []Message) (string, error)
}

// Outcome 一次会话的结果
type Outcome struct {
	Answer string
	// Failed 为 true 时 Answer 是某个 Worker 的错误信息
	Failed bool
	Room   *ChatRoom
}

// Leader 分解目标、按顺序委派并汇总最终答案
type Leader struct {
	name     string
	workers  *registry.Registry[Worker]
	planner  Planner
	maxSteps int
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// LeaderOption configures a Leader.
type LeaderOption func(*Leader)

// WithLeaderName 设置 Leader 在记录中的名字，默认 "leader"
func WithLeaderName(name string) LeaderOption {
	return func(l *Leader) { l.name = name }
}

// WithMaxSteps 限制单次会话执行的步骤数，0 表示不限
func WithMaxSteps(n int) LeaderOption {
	return func(l *Leader) { l.maxSteps = n }
}

// WithLeaderMetrics 记录委派指标
func WithLeaderMetrics(c *metrics.Collector) LeaderOption {
	return func(l *Leader) { l.metrics = c }
}

// NewLeader 创建 Leader
func NewLeader(workers *registry.Registry[Worker], planner Planner, logger *zap.Logger, opts ...LeaderOption) *Leader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Leader{
		name:    "leader",
		workers: workers,
		planner: planner,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logger.With(zap.String("component", "leader"), zap.String("leader", l.name))
	return l
}

// Name implements Worker.
func (l *Leader) Name() string { return l.name }

// Description implements Worker.
func (l *Leader) Description() string {
	return "Decomposes a goal and delegates the steps to workers"
}

// PerformTask 把 task 当作目标运行一次会话，使 Leader 可以作为下级 Worker 使用
func (l *Leader) PerformTask(ctx context.Context, _ []Message, task string) (string, error) {
	out, err := l.Run(ctx, task)
	if err != nil {
		return "", err
	}
	if out.Failed {
		return "", errors.New(out.Answer)
	}
	return out.Answer, nil
}

// Run 执行一次完整会话。委派给不存在的 Worker 时返回 NOT_FOUND 错误；
// Worker 失败时其错误信息作为最终答案返回。
func (l *Leader) Run(ctx context.Context, goal string) (*Outcome, error) {
	if l.planner == nil {
		return nil, ErrPlannerNotSet
	}

	room := NewChatRoom(goal, l.logger, WithRoomMetrics(l.metrics))
	var infos []WorkerInfo
	if l.workers != nil {
		for _, entry := range l.workers.All() {
			room.AddParticipant(entry.Implementation)
			infos = append(infos, WorkerInfo{
				Name:        entry.Name,
				Description: entry.Implementation.Description(),
			})
		}
	}

	steps, err := l.planner.Plan(ctx, goal, infos)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	if len(steps) == 0 {
		return nil, ErrEmptyPlan
	}
	if l.maxSteps > 0 && len(steps) > l.maxSteps {
		l.logger.Warn("plan truncated",
			zap.Int("steps", len(steps)),
			zap.Int("max_steps", l.maxSteps))
		steps = steps[:l.maxSteps]
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.logger.Info("delegating",
			zap.Int("step", i+1),
			zap.String("worker", step.Worker))

		if _, err := room.Delegate(ctx, l.name, step.Worker, step.Task); err != nil {
			if types.IsErrorCode(err, types.ErrNotFound) {
				return &Outcome{Room: room}, err
			}
			answer := err.Error()
			room.Post(l.name, "user", answer)
			return &Outcome{Answer: answer, Failed: true, Room: room}, nil
		}
	}

	answer, err := l.planner.Synthesize(ctx, goal, room.Messages())
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	room.Post(l.name, "user", answer)
	return &Outcome{Answer: answer, Room: room}, nil
}
