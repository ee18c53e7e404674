package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/taskforce/types"
)

type scriptedPlanner struct {
	steps    []Step
	planErr  error
	workers  []WorkerInfo
	answered []Message
}

func (p *scriptedPlanner) Plan(ctx context.Context, goal string, workers []WorkerInfo) ([]Step, error) {
	p.workers = workers
	return p.steps, p.planErr
}

func (p *scriptedPlanner) Synthesize(ctx context.Context, goal string, history []Message) (string, error) {
	p.answered = history
	return "final: " + history[len(history)-1].Body, nil
}

func TestLeader_Run(t *testing.T) {
	logger := zaptest.NewLogger(t)
	workers := NewWorkerRegistry(logger)
	workers.Register("Researcher", echoWorker("Researcher", "notes"))
	workers.Register("Writer", NewFuncWorker("Writer", "writes prose", func(ctx context.Context, history []Message, task string) (string, error) {
		return "draft based on " + history[len(history)-2].Body, nil
	}))

	planner := &scriptedPlanner{steps: []Step{
		{Worker: "researcher", Task: "research"},
		{Worker: "writer", Task: "write"},
	}}
	leader := NewLeader(workers, planner, logger)

	out, err := leader.Run(context.Background(), "blog post")
	require.NoError(t, err)
	assert.False(t, out.Failed)
	assert.Equal(t, "final: draft based on notes", out.Answer)

	assert.Equal(t, []WorkerInfo{
		{Name: "researcher", Description: "replies with a fixed answer"},
		{Name: "writer", Description: "writes prose"},
	}, planner.workers)

	// goal + 2 x (task, reply) + final answer
	msgs := out.Room.Messages()
	require.Len(t, msgs, 6)
	assert.Len(t, planner.answered, 5)
	assert.Equal(t, "leader", msgs[5].From)
	assert.Equal(t, "user", msgs[5].To)
}

func TestLeader_WorkerFailureBecomesAnswer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	workers := NewWorkerRegistry(logger)
	workers.Register("worker", NewFuncWorker("worker", "", func(ctx context.Context, history []Message, task string) (string, error) {
		return "", errors.New("quota exhausted")
	}))
	planner := &scriptedPlanner{steps: []Step{{Worker: "worker", Task: "a"}, {Worker: "worker", Task: "b"}}}

	out, err := NewLeader(workers, planner, logger).Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.True(t, out.Failed)
	assert.Equal(t, "quota exhausted", out.Answer)
	assert.Nil(t, planner.answered)
}

func TestLeader_UnknownWorker(t *testing.T) {
	logger := zaptest.NewLogger(t)
	planner := &scriptedPlanner{steps: []Step{{Worker: "ghost", Task: "haunt"}}}

	out, err := NewLeader(NewWorkerRegistry(logger), planner, logger).Run(context.Background(), "goal")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	assert.Contains(t, err.Error(), "Agent not found: ghost")
	require.NotNil(t, out)
	assert.Equal(t, 2, out.Room.Len())
}

func TestLeader_PlanErrors(t *testing.T) {
	logger := zaptest.NewLogger(t)
	workers := NewWorkerRegistry(logger)

	_, err := NewLeader(workers, nil, logger).Run(context.Background(), "goal")
	assert.ErrorIs(t, err, ErrPlannerNotSet)

	_, err = NewLeader(workers, &scriptedPlanner{}, logger).Run(context.Background(), "goal")
	assert.ErrorIs(t, err, ErrEmptyPlan)

	boom := errors.New("boom")
	_, err = NewLeader(workers, &scriptedPlanner{planErr: boom}, logger).Run(context.Background(), "goal")
	assert.ErrorIs(t, err, boom)
}

func TestLeader_MaxSteps(t *testing.T) {
	logger := zaptest.NewLogger(t)
	workers := NewWorkerRegistry(logger)
	calls := 0
	workers.Register("worker", NewFuncWorker("worker", "", func(ctx context.Context, history []Message, task string) (string, error) {
		calls++
		return task, nil
	}))
	planner := &scriptedPlanner{steps: []Step{{"worker", "1"}, {"worker", "2"}, {"worker", "3"}}}

	out, err := NewLeader(workers, planner, logger, WithMaxSteps(2)).Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "final: 2", out.Answer)
}

func TestLeader_AsWorker(t *testing.T) {
	logger := zaptest.NewLogger(t)
	inner := NewWorkerRegistry(logger)
	inner.Register("worker", echoWorker("worker", "leaf result"))
	sub := NewLeader(inner, &scriptedPlanner{steps: []Step{{"worker", "x"}}}, logger, WithLeaderName("sub_leader"))

	outer := NewWorkerRegistry(logger)
	outer.Register(sub.Name(), sub)
	top := NewLeader(outer, &scriptedPlanner{steps: []Step{{"sub_leader", "nested goal"}}}, logger)

	out, err := top.Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, "final: final: leaf result", out.Answer)
}
