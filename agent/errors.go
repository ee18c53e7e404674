package agent

import "errors"

var (
	// ErrPlannerNotSet Planner 未设置
	ErrPlannerNotSet = errors.New("planner not set")

	// ErrReasonerNotSet Reasoner 未设置
	ErrReasonerNotSet = errors.New("reasoner not set")

	// ErrEmptyPlan Planner 未给出任何步骤
	ErrEmptyPlan = errors.New("planner returned no steps")
)
