package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-newsletter-backend/internal/services"
)

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []uint
	fail  map[uint]bool
}

func (f *fakeBroadcaster) SendToAllSubscribers(_ context.Context, id uint) services.BroadcastResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.fail[id] {
		return services.BroadcastResult{SubjectID: id, Error: "no topic"}
	}
	return services.BroadcastResult{SubjectID: id, Success: true, SequenceNumber: 1}
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRunOnce_SequentialAndFailureTolerant(t *testing.T) {
	b := &fakeBroadcaster{fail: map[uint]bool{2: true}}
	s := &Scheduler{Broadcaster: b, Subjects: []uint{1, 2, 3}}

	res := s.RunOnce(context.Background())
	if len(res) != 3 || !res[0].Success || res[1].Success || !res[2].Success {
		t.Fatalf("unexpected results %+v", res)
	}
	if b.calls[0] != 1 || b.calls[1] != 2 || b.calls[2] != 3 {
		t.Fatalf("subjects not processed in order: %v", b.calls)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	b := &fakeBroadcaster{}
	s := &Scheduler{Broadcaster: b, Subjects: []uint{1}, Interval: 10 * time.Millisecond, RunOnStart: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for b.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if b.count() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", b.count())
	}
}

func TestRun_DisabledReturnsImmediately(t *testing.T) {
	s := &Scheduler{Broadcaster: &fakeBroadcaster{}}
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("disabled scheduler must return")
	}
}

func TestTick_SkipsWhileRunning(t *testing.T) {
	b := &fakeBroadcaster{}
	s := &Scheduler{Broadcaster: b, Subjects: []uint{1}}
	s.running.Lock()
	s.tick(context.Background())
	s.running.Unlock()
	if b.count() != 0 {
		t.Fatalf("tick must skip while a run holds the lock")
	}
}
