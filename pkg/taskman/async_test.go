package taskman

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingWatchdog is the test double suggested by the injected-collaborator
// design: it just records calls.
type recordingWatchdog struct {
	mu           sync.Mutex
	registered   []string
	deregistered []string
	resets       int
	timeout      time.Duration
	panicOn      bool
}

func (w *recordingWatchdog) Register(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.registered = append(w.registered, name)
	return nil
}

func (w *recordingWatchdog) Deregister(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deregistered = append(w.deregistered, name)
	return nil
}

func (w *recordingWatchdog) Reset(string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resets++
	return nil
}

func (w *recordingWatchdog) Configure(timeout time.Duration, panicOn bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = timeout
	w.panicOn = panicOn
	return nil
}

func (w *recordingWatchdog) snapshot() (reg, dereg int, resets int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.registered), len(w.deregistered), w.resets
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAsyncManagerRunsAndStops(t *testing.T) {
	var count atomic.Int64
	mgr := NewManager("bg")
	task := NewTask("counter", func(any) { count.Add(1) })
	task.SetInterval(time.Millisecond)
	task.SetManager(mgr)

	wd := &recordingWatchdog{}
	if !mgr.AsyncStart(AsyncOptions{IdleDelay: time.Millisecond, Watchdog: wd}) {
		t.Fatal("AsyncStart = false")
	}
	// Second start fails without disturbing the running one.
	if mgr.AsyncStart(AsyncOptions{}) {
		t.Fatal("second AsyncStart = true, want false")
	}

	waitFor(t, "task executions", func() bool { return count.Load() >= 5 })

	reg, _, resets := wd.snapshot()
	if reg != 1 {
		t.Fatalf("watchdog registrations = %d, want 1", reg)
	}
	if resets == 0 {
		t.Fatal("watchdog never reset")
	}

	mgr.AsyncStop()
	waitFor(t, "watchdog deregistration", func() bool {
		_, dereg, _ := wd.snapshot()
		return dereg == 1
	})

	// The runner is gone: the counter settles.
	settled := count.Load()
	time.Sleep(20 * time.Millisecond)
	if count.Load() != settled {
		t.Fatalf("task still executing after AsyncStop: %d -> %d", settled, count.Load())
	}

	// Stopping again is a no-op.
	mgr.AsyncStop()
}

func TestAsyncStopWhenNeverStarted(t *testing.T) {
	mgr := NewManager("idle")
	mgr.AsyncStop() // must not panic or block
}

func TestAsyncRestartAfterStop(t *testing.T) {
	var count atomic.Int64
	mgr := NewManager("restartable")
	task := NewTask("counter", func(any) { count.Add(1) })
	task.SetManager(mgr)

	if !mgr.AsyncStart(AsyncOptions{IdleDelay: time.Millisecond}) {
		t.Fatal("first AsyncStart = false")
	}
	waitFor(t, "first executions", func() bool { return count.Load() > 0 })
	mgr.AsyncStop()

	before := count.Load()
	if !mgr.AsyncStart(AsyncOptions{IdleDelay: time.Millisecond}) {
		t.Fatal("restart AsyncStart = false")
	}
	waitFor(t, "executions after restart", func() bool { return count.Load() > before })
	mgr.AsyncStop()
}

func TestAsyncSingleTask(t *testing.T) {
	var count atomic.Int64
	task := NewTask("solo", func(any) { count.Add(1) })
	task.SetInterval(time.Millisecond)

	wd := &recordingWatchdog{}
	if !task.AsyncStart(AsyncOptions{IdleDelay: time.Millisecond, Watchdog: wd}) {
		t.Fatal("AsyncStart = false")
	}
	if task.AsyncStart(AsyncOptions{}) {
		t.Fatal("second AsyncStart = true, want false")
	}
	waitFor(t, "solo executions", func() bool { return count.Load() >= 3 })
	task.AsyncStop()
	waitFor(t, "solo deregistration", func() bool {
		_, dereg, _ := wd.snapshot()
		return dereg == 1
	})
	task.AsyncStop() // no-op
}

func TestAsyncIdleDelaySleepsWhenNothingExecutes(t *testing.T) {
	var passes atomic.Int64
	mgr := NewManager("sleepy")
	task := NewTask("never", func(any) { passes.Add(1) })
	task.SetEnabled(false)
	task.SetManager(mgr)

	mgr.AsyncStart(AsyncOptions{IdleDelay: 5 * time.Millisecond})
	time.Sleep(30 * time.Millisecond)
	mgr.AsyncStop()

	if passes.Load() != 0 {
		t.Fatalf("disabled task executed %d times", passes.Load())
	}
}

func TestNopWatchdog(t *testing.T) {
	t.Parallel()
	var wd Watchdog = NopWatchdog{}
	if err := wd.Configure(time.Minute, true); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := wd.Register("x"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := wd.Reset("x"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := wd.Deregister("x"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
}
