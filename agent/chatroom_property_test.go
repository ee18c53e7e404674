package agent

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// 任意委派序列下：记录只追加、顺序保持、消息 id 唯一，
// 且每个 Worker 看到的是截至其任务为止的完整历史。
func TestChatRoom_TranscriptProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		room := NewChatRoom("ship the release", zap.NewNop())

		seen := map[string]int{}
		for _, name := range []string{"planner", "coder", "reviewer"} {
			room.AddParticipant(NewFuncWorker(name, "records history length",
				func(_ context.Context, history []Message, task string) (string, error) {
					seen[name] = len(history)
					if history[len(history)-1].Body != task {
						rt.Fatalf("last history entry is not the task")
					}
					return name + " done", nil
				}))
		}

		steps := rapid.IntRange(0, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			to := rapid.SampledFrom([]string{"planner", "coder", "reviewer"}).Draw(rt, "to")
			before := room.Len()
			if _, err := room.Delegate(context.Background(), "leader", to, "step"); err != nil {
				rt.Fatalf("delegate: %v", err)
			}
			if seen[to] != before+1 {
				rt.Fatalf("%s saw %d messages, want %d", to, seen[to], before+1)
			}
		}

		msgs := room.Messages()
		if len(msgs) != 1+2*steps {
			rt.Fatalf("transcript has %d messages, want %d", len(msgs), 1+2*steps)
		}
		if msgs[0].From != "user" || msgs[0].Body != "Goal: ship the release" {
			rt.Fatalf("bootstrap message changed: %+v", msgs[0])
		}
		ids := map[string]bool{}
		for i, m := range msgs {
			if ids[m.ID] {
				rt.Fatalf("duplicate message id %s", m.ID)
			}
			ids[m.ID] = true
			if i > 0 && m.Timestamp.Before(msgs[i-1].Timestamp) {
				rt.Fatalf("message %d is older than its predecessor", i)
			}
		}
	})
}
