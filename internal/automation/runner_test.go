package automation

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingExecutor struct {
	mu    sync.Mutex
	calls int
}

func (e *recordingExecutor) Execute(_ context.Context, _ *StateObject) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return nil
}

func (e *recordingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestActionRunner_FiresExecutorsOnRisingEdge(t *testing.T) {
	ex := &recordingExecutor{}
	runner := NewEdgeActionRunner("test-rule", nil, nil, 0, []Executor{ex}, nil, nil, nil)

	runner.Run(&StateObject{ID: "a", Attributes: map[string]any{}})
	if ex.count() != 1 {
		t.Fatalf("expected 1 executor call, got %d", ex.count())
	}
}

func TestActionRunner_ConditionsGateFiring(t *testing.T) {
	ex := &recordingExecutor{}
	conds := map[string]string{"armed": "==true"}
	runner := NewEdgeActionRunner("test-rule", conds, nil, 0, []Executor{ex}, nil, nil, nil)

	runner.Run(&StateObject{ID: "a", Attributes: map[string]any{"armed": false}})
	if ex.count() != 0 {
		t.Fatalf("expected no fire while condition is false, got %d", ex.count())
	}

	runner.Run(&StateObject{ID: "a", Attributes: map[string]any{"armed": true}})
	if ex.count() != 1 {
		t.Fatalf("expected a fire once condition becomes true, got %d", ex.count())
	}
}

func TestActionRunner_CooldownDropsRepeatFires(t *testing.T) {
	ex := &recordingExecutor{}
	runner := NewEdgeActionRunner("test-rule", nil, nil, time.Minute, []Executor{ex}, nil, nil, nil)

	now := time.Unix(0, 0)
	runner.nowFunc = func() time.Time { return now }

	runner.Run(&StateObject{ID: "a", Attributes: map[string]any{}})
	runner.Trigger.(*EdgeTrigger).Evaluate("a", false)
	runner.Run(&StateObject{ID: "a", Attributes: map[string]any{}})

	if ex.count() != 1 {
		t.Fatalf("expected second fire within cooldown to be dropped, got %d calls", ex.count())
	}

	now = now.Add(2 * time.Minute)
	runner.Trigger.(*EdgeTrigger).Evaluate("a", false)
	runner.Run(&StateObject{ID: "a", Attributes: map[string]any{}})

	if ex.count() != 2 {
		t.Fatalf("expected fire after cooldown elapsed, got %d calls", ex.count())
	}
}

func TestActionRunner_ExecutorErrorDoesNotAbortRemaining(t *testing.T) {
	first := &recordingExecutor{}
	erroring := &erroringExecutor{}
	last := &recordingExecutor{}

	runner := NewEdgeActionRunner("test-rule", nil, nil, 0, []Executor{first, erroring, last}, nil, nil, nil)
	runner.Run(&StateObject{ID: "a", Attributes: map[string]any{}})

	if first.count() != 1 || last.count() != 1 {
		t.Fatalf("expected all executors to run despite a middle failure: first=%d last=%d", first.count(), last.count())
	}
}

type erroringExecutor struct{}

func (e *erroringExecutor) Execute(_ context.Context, _ *StateObject) error {
	return errExecutorFailed
}

var errExecutorFailed = &testError{"executor failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
