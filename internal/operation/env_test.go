package operation

import (
	"context"
	"testing"
	"time"
)

func TestContextEnvSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	env := NewContextEnv(ctx, nil, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if env.Sleep(5 * time.Second) {
		t.Fatal("Sleep returned true after cancellation")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly after cancellation")
	}
	if !env.IsCancelled() {
		t.Error("IsCancelled() = false after cancel")
	}
}

func TestContextEnvProgressListener(t *testing.T) {
	var seen []Progress
	env := NewContextEnv(context.Background(), nil, func(p Progress) {
		seen = append(seen, p)
	})

	env.SetProgressRange(8)
	env.SetProgressPosition(3)
	env.SetText("Declaring")

	got := env.Progress()
	if got.Range != 8 || got.Position != 3 || got.Text != "Declaring" {
		t.Errorf("Progress() = %+v", got)
	}
	if len(seen) != 3 {
		t.Errorf("listener called %d times, want 3", len(seen))
	}
}

func TestWithContextCancelledByParent(t *testing.T) {
	parentCtx, cancelParent := context.WithCancel(context.Background())
	parent := NewContextEnv(parentCtx, nil, nil)
	child := WithContext(context.Background(), parent)

	if child.IsCancelled() {
		t.Fatal("child cancelled before parent")
	}

	cancelParent()
	if !child.IsCancelled() {
		t.Error("child not cancelled after parent")
	}
	if child.Sleep(time.Second) {
		t.Error("child Sleep returned true after parent cancel")
	}
}

func TestWithContextForwardsProgress(t *testing.T) {
	parent := NewNullEnv()
	ctx, cancel := context.WithCancel(context.Background())
	child := WithContext(ctx, parent)

	child.SetProgressRange(4)
	child.SetProgressPosition(2)
	if p := parent.Progress(); p.Range != 4 || p.Position != 2 {
		t.Errorf("parent progress = %+v", p)
	}

	cancel()
	if !child.IsCancelled() {
		t.Error("child not cancelled by its own context")
	}
	if parent.IsCancelled() {
		t.Error("cancelling the child must not cancel the parent")
	}
}
