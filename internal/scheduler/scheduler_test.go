package scheduler

import (
	"sync"
	"testing"
	"time"
)

func TestAddJob(t *testing.T) {
	var mu sync.Mutex
	var calls int

	sched := New(nil)
	err := sched.AddJob("duplicate-check", "@every 1s", func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}

	// Start cron and wait for it to fire
	sched.cron.Start()
	time.Sleep(1500 * time.Millisecond)
	sched.cron.Stop()

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Error("expected at least one call")
	}
}

func TestAddJobReplacesByName(t *testing.T) {
	sched := New(nil)
	if err := sched.AddJob("report", "0 7 * * *", func() {}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := sched.AddJob("report", "0 8 * * *", func() {}); err != nil {
		t.Fatalf("AddJob replace: %v", err)
	}
	if sched.JobCount() != 1 {
		t.Errorf("JobCount after replace = %d", sched.JobCount())
	}
}

func TestRemoveJob(t *testing.T) {
	sched := New(nil)
	if err := sched.AddJob("monitor", "@every 15m", func() {}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	sched.RemoveJob("monitor")
	if sched.JobCount() != 0 {
		t.Errorf("JobCount after remove = %d", sched.JobCount())
	}
}

func TestInvalidSchedule(t *testing.T) {
	sched := New(nil)
	err := sched.AddJob("check", "invalid-cron", func() {})
	if err == nil {
		t.Error("expected error for invalid schedule")
	}
}
