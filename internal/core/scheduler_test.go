package core

import (
	"context"
	"testing"
	"time"

	"github.com/seaward/sluice/internal/entity"
)

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestSchedulerRunsDueImports(t *testing.T) {
	fs := newFakeStore(testKind())
	spec := testSpec()
	spec.Schedule = time.Hour // due immediately on startup, then hourly
	svc := newTestService(t, fs, &staticFetcher{payload: fiveLines}, spec, testKind())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.StartScheduler(ctx, SchedulerConfig{CheckInterval: 10 * time.Millisecond})

	if !waitFor(t, 5*time.Second, func() bool { return fs.entityCount() == 5 }) {
		t.Fatalf("scheduled import never ran, entity count = %d", fs.entityCount())
	}
}

func TestSchedulerIgnoresManualSources(t *testing.T) {
	fs := newFakeStore(testKind())
	spec := testSpec() // Schedule zero: manual only
	svc := newTestService(t, fs, &staticFetcher{payload: fiveLines}, spec, testKind())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.StartScheduler(ctx, SchedulerConfig{CheckInterval: 5 * time.Millisecond})

	time.Sleep(50 * time.Millisecond)
	if n := fs.entityCount(); n != 0 {
		t.Errorf("entity count = %d, manual source must not import on schedule", n)
	}
}

func TestSchedulerRunsExpirePasses(t *testing.T) {
	fs := newFakeStore(testKind())
	spec := testSpec()
	spec.ExpireAfter = time.Hour
	svc := newTestService(t, fs, &staticFetcher{payload: fiveLines}, spec, testKind())

	old := fs.seedEntity("article", "news", "fp", time.Now().Add(-2*time.Hour), map[string][]entity.Tuple{
		"guid": {{entity.ValueColumn: "stale"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.StartScheduler(ctx, SchedulerConfig{
		CheckInterval:  5 * time.Millisecond,
		ExpireInterval: 20 * time.Millisecond,
	})

	if !waitFor(t, 5*time.Second, func() bool {
		_, err := fs.Load(context.Background(), "article", old)
		return err != nil
	}) {
		t.Error("expire pass never removed the stale entity")
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	fs := newFakeStore(testKind())
	svc := newTestService(t, fs, &staticFetcher{payload: fiveLines}, testSpec(), testKind())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartScheduler(ctx, SchedulerConfig{CheckInterval: 5 * time.Millisecond})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
