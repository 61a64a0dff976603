package taskman

import (
	"testing"
	"time"
)

func TestLoopRunsInRegistrationOrder(t *testing.T) {
	useFakeClock(t)
	mgr := NewManager("ordered")
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		task := NewTask(name, func(any) { order = append(order, name) })
		task.SetManager(mgr)
	}
	if n := mgr.Loop(); n != 3 {
		t.Fatalf("Loop = %d, want 3", n)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("execution order = %v, want [a b c]", order)
	}
}

func TestLoopCountsOnlyExecutedTasks(t *testing.T) {
	clk := useFakeClock(t)
	mgr := NewManager("mixed")

	fast := NewTask("fast", func(any) {})
	fast.SetInterval(time.Second)
	fast.SetManager(mgr)

	slow := NewTask("slow", func(any) {})
	slow.SetInterval(3 * time.Second)
	slow.SetManager(mgr)

	// t=0: both have the first-run sentinel.
	if n := mgr.Loop(); n != 2 {
		t.Fatalf("pass at t=0: %d, want 2", n)
	}
	// t=1000: only the 1s task is due.
	clk.Advance(time.Second)
	if n := mgr.Loop(); n != 1 {
		t.Fatalf("pass at t=1s: %d, want 1", n)
	}
	// t=3000: both are due again.
	clk.Advance(2 * time.Second)
	if n := mgr.Loop(); n != 2 {
		t.Fatalf("pass at t=3s: %d, want 2", n)
	}
}

func TestPauseResumeBroadcast(t *testing.T) {
	useFakeClock(t)
	mgr := NewManager("broadcast")
	runs := 0
	for i := 0; i < 3; i++ {
		task := NewTask("t", func(any) { runs++ })
		task.SetManager(mgr)
	}
	mgr.Pause()
	if n := mgr.Loop(); n != 0 {
		t.Fatalf("paused manager executed %d tasks", n)
	}
	mgr.Resume()
	if n := mgr.Loop(); n != 3 {
		t.Fatalf("resumed manager executed %d tasks, want 3", n)
	}
	if runs != 3 {
		t.Fatalf("runs = %d, want 3", runs)
	}
}

func TestDoubleRegistrationPanics(t *testing.T) {
	useFakeClock(t)
	m1 := NewManager("one")
	m2 := NewManager("two")
	task := NewTask("shared", func(any) {})
	task.SetManager(m1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double registration")
		}
	}()
	task.SetManager(m2)
}

func TestReRegisterAfterDetach(t *testing.T) {
	useFakeClock(t)
	m1 := NewManager("one")
	m2 := NewManager("two")
	task := NewTask("mobile", func(any) {})
	task.SetManager(m1)
	task.SetManager(nil)
	if m1.Size() != 0 {
		t.Fatalf("m1 size = %d after detach", m1.Size())
	}
	task.SetManager(m2)
	if m2.Size() != 1 {
		t.Fatalf("m2 size = %d, want 1", m2.Size())
	}
}

func TestFixedManagerCapacityPanics(t *testing.T) {
	useFakeClock(t)
	mgr := NewFixedManager("small", 2)
	NewTask("a", func(any) {}).SetManager(mgr)
	NewTask("b", func(any) {}).SetManager(mgr)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when exceeding capacity")
		}
	}()
	NewTask("c", func(any) {}).SetManager(mgr)
}

func TestManagerCloseDetachesTasks(t *testing.T) {
	useFakeClock(t)
	mgr := NewManager("closing")
	task := NewTask("survivor", func(any) {})
	task.SetManager(mgr)
	mgr.Close()
	if task.IsManaged() {
		t.Fatal("task still managed after manager Close")
	}
	// The task survives and still runs directly.
	if !task.TryRun() {
		t.Fatal("detached task no longer runnable")
	}
}

func TestTaskCloseDeregisters(t *testing.T) {
	useFakeClock(t)
	mgr := NewManager("holder")
	task := NewTask("leaver", func(any) {})
	task.SetManager(mgr)
	task.Close()
	if mgr.Size() != 0 {
		t.Fatalf("manager size = %d after task Close", mgr.Size())
	}
}

func TestManagerProfiling(t *testing.T) {
	clk := useFakeClock(t)
	mgr := NewManager("profiled")
	task := NewTask("work", func(any) { clk.Advance(2 * time.Millisecond) })
	task.SetManager(mgr)

	mgr.EnableProfiling(10, time.Millisecond)
	if !task.IsProfiled() {
		t.Fatal("EnableProfiling did not reach the task")
	}
	mgr.Loop()

	snap, ok := mgr.StatsSnapshot()
	if !ok {
		t.Fatal("manager histogram missing")
	}
	if snap.Count != 1 {
		t.Fatalf("manager pass count = %d, want 1", snap.Count)
	}

	// A pass executing nothing records nothing.
	if n := mgr.Loop(); n != 0 {
		t.Fatalf("unexpected executions: %d", n)
	}
	snap, _ = mgr.StatsSnapshot()
	if snap.Count != 1 {
		t.Fatalf("idle pass was recorded, count = %d", snap.Count)
	}

	mgr.DisableProfiling()
	if task.IsProfiled() {
		t.Fatal("DisableProfiling did not reach the task")
	}
	if _, ok := mgr.StatsSnapshot(); ok {
		t.Fatal("manager histogram survived DisableProfiling")
	}
}

func TestManagerSnapshot(t *testing.T) {
	clk := useFakeClock(t)
	mgr := NewManager("exported")
	task := NewTask("visible", func(any) { clk.Advance(time.Millisecond) })
	task.SetInterval(5 * time.Second)
	task.SetManager(mgr)
	mgr.EnableProfiling(8, time.Millisecond)
	mgr.Loop()

	snap := mgr.Snapshot()
	if snap.Name != "exported" {
		t.Fatalf("name = %q", snap.Name)
	}
	if snap.Stats == nil || snap.Stats.Count != 1 {
		t.Fatal("manager stats missing from snapshot")
	}
	if len(snap.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(snap.Tasks))
	}
	ts := snap.Tasks[0]
	if ts.Name != "visible" || ts.Type != "forever" || ts.Paused || !ts.Enabled {
		t.Fatalf("task snapshot = %+v", ts)
	}
	if ts.Interval != 5*time.Second {
		t.Fatalf("interval = %v, want 5s", ts.Interval)
	}
	if ts.Stats == nil || ts.Stats.Count != 1 {
		t.Fatal("task stats missing from snapshot")
	}
}
