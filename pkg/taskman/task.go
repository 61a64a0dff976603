package taskman

import (
	"sync"
	"time"

	"taskloop/pkg/binstats"
	"taskloop/pkg/logx"
)

// timeNow is swapped by tests for deterministic scheduling.
var timeNow = time.Now

// Type selects the scheduling mode of a task.
type Type int

const (
	// Forever tasks run at their interval for as long as they are enabled
	// and not paused.
	Forever Type = iota
	// Once tasks start paused, run a single time when resumed, then pause
	// themselves again.
	Once
)

func (t Type) String() string {
	if t == Once {
		return "once"
	}
	return "forever"
}

// Func is a task's unit of work. It receives the opaque data attached with
// SetData and is invoked synchronously by the driver loop.
type Func func(data any)

// Predicate gates a task's eligibility. It is evaluated on every check.
type Predicate func() bool

// IntervalSupplier yields the current minimum spacing between two
// executions. It is evaluated on every eligibility check.
type IntervalSupplier func() time.Duration

// DoneCallback is invoked right after a task executed, strictly after all of
// the task's internal state updates, so it observes post-execution state and
// may safely call Resume on this or another task.
type DoneCallback func(t *Task, elapsed time.Duration)

// AlwaysTrue and AlwaysFalse are ready-made enablement predicates.
var (
	AlwaysTrue  Predicate = func() bool { return true }
	AlwaysFalse Predicate = func() bool { return false }
)

// Task is a named, independently schedulable unit of work.
//
// All methods are safe to call while another goroutine drives the task; the
// user callables (run function, predicate, supplier, done callback) are
// always invoked without internal locks held.
type Task struct {
	name string
	fn   Func

	mu       sync.Mutex
	typ      Type
	manager  *Manager
	stats    *binstats.Stats
	enabled  Predicate        // nil means unconditionally enabled
	interval IntervalSupplier // nil means run on every pass
	onDone   DoneCallback
	running  bool
	paused   bool
	lastEnd  time.Time // zero means eligible on the next check
	data     any

	async *asyncRunner
	log   logx.Logger
}

// NewTask creates a Forever task. A nil fn is a programming error and
// panics.
func NewTask(name string, fn Func) *Task {
	if fn == nil {
		panic("taskman: task " + name + " has no run function")
	}
	return &Task{name: name, fn: fn, log: logx.Nop()}
}

// SetLogger attaches a logger used for debug-level scheduling events.
func (t *Task) SetLogger(log logx.Logger) {
	t.mu.Lock()
	t.log = log
	t.mu.Unlock()
}

// ---- information ----

func (t *Task) Name() string { return t.name }

func (t *Task) Type() Type {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typ
}

// Interval returns the current interval, evaluating the supplier if one is
// set. Zero means the task runs on every pass.
func (t *Task) Interval() time.Duration {
	t.mu.Lock()
	supplier := t.interval
	t.mu.Unlock()
	if supplier == nil {
		return 0
	}
	return supplier()
}

// RemainingTime returns how long until the task becomes eligible again, or
// zero when it is due now.
func (t *Task) RemainingTime() time.Duration {
	t.mu.Lock()
	supplier := t.interval
	lastEnd := t.lastEnd
	t.mu.Unlock()
	if supplier == nil || lastEnd.IsZero() {
		return 0
	}
	itvl := supplier()
	if itvl <= 0 {
		return 0
	}
	if rem := itvl - timeNow().Sub(lastEnd); rem > 0 {
		return rem
	}
	return 0
}

// IsEnabled evaluates the enablement predicate. Tasks without a predicate
// are enabled.
func (t *Task) IsEnabled() bool {
	t.mu.Lock()
	pred := t.enabled
	t.mu.Unlock()
	return pred == nil || pred()
}

func (t *Task) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// IsRunning reports whether the task is currently inside its run function.
func (t *Task) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) IsEarlyRunRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEnd.IsZero()
}

func (t *Task) IsManaged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager != nil
}

func (t *Task) IsProfiled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats != nil
}

// LastRun returns when the task last completed, or the zero time if it never
// ran (or an early run was requested).
func (t *Task) LastRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEnd
}

// ShouldRun reports whether the task would execute on the next TryRun.
func (t *Task) ShouldRun() bool {
	paused, pred, supplier, lastEnd := t.schedState()
	if paused {
		return false
	}
	if pred != nil && !pred() {
		return false
	}
	if lastEnd.IsZero() || supplier == nil {
		return true
	}
	itvl := supplier()
	return itvl <= 0 || timeNow().Sub(lastEnd) >= itvl
}

func (t *Task) schedState() (paused bool, pred Predicate, supplier IntervalSupplier, lastEnd time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused, t.enabled, t.interval, t.lastEnd
}

// ---- creation ----

// SetType changes the task type. Once starts paused, runs a single time when
// resumed, and pauses again. Forever clears the pause flag the type switch
// may have set.
func (t *Task) SetType(typ Type) {
	t.mu.Lock()
	t.typ = typ
	t.paused = typ == Once
	t.mu.Unlock()
}

// SetEnabled switches between unconditional enablement and unconditional
// disablement, replacing any predicate.
func (t *Task) SetEnabled(enabled bool) {
	t.mu.Lock()
	if enabled {
		t.enabled = nil
	} else {
		t.enabled = AlwaysFalse
	}
	t.mu.Unlock()
}

// SetEnabledWhen gates the task on a predicate evaluated on every
// eligibility check.
func (t *Task) SetEnabledWhen(pred Predicate) {
	t.mu.Lock()
	t.enabled = pred
	t.mu.Unlock()
}

// SetInterval sets a fixed interval. Zero removes throttling.
func (t *Task) SetInterval(interval time.Duration) {
	t.mu.Lock()
	if interval <= 0 {
		t.interval = nil
	} else {
		t.interval = func() time.Duration { return interval }
	}
	t.mu.Unlock()
}

// SetIntervalSupplier makes the interval dynamic.
func (t *Task) SetIntervalSupplier(supplier IntervalSupplier) {
	t.mu.Lock()
	t.interval = supplier
	t.mu.Unlock()
}

// SetCallback installs the completion callback.
func (t *Task) SetCallback(cb DoneCallback) {
	t.mu.Lock()
	t.onDone = cb
	t.mu.Unlock()
}

// SetData attaches opaque data handed to the run function.
func (t *Task) SetData(data any) {
	t.mu.Lock()
	t.data = data
	t.mu.Unlock()
}

func (t *Task) Data() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// SetManager registers the task with a manager, in registration order. A
// task belongs to at most one manager: registering a managed task with a
// second manager is a programming error and panics. Passing nil detaches the
// task from its current manager.
func (t *Task) SetManager(m *Manager) {
	t.mu.Lock()
	if m == t.manager {
		t.mu.Unlock()
		return
	}
	if m != nil && t.manager != nil {
		t.mu.Unlock()
		panic("taskman: task " + t.name + " is already registered with a manager")
	}
	old := t.manager
	t.manager = m
	t.mu.Unlock()

	if old != nil {
		old.removeTask(t)
	}
	if m != nil {
		m.addTask(t)
	}
}

// Close detaches the task from its manager and stops its async runner, if
// any. The task itself stays usable for direct TryRun/ForceRun calls.
func (t *Task) Close() {
	t.AsyncStop()
	t.SetManager(nil)
}

// ---- management ----

// Pause prevents the task from running regardless of enablement or
// interval.
func (t *Task) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

// Resume clears the pause flag.
func (t *Task) Resume() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
}

// ResumeAfter clears the pause flag and, when delay is non-zero, makes delay
// the new steady-state interval and stamps the last completion to now, so
// the next run happens exactly delay in the future. This is the usual way to
// trigger a deferred one-shot on a Once task.
func (t *Task) ResumeAfter(delay time.Duration) {
	t.mu.Lock()
	t.paused = false
	if delay > 0 {
		t.interval = func() time.Duration { return delay }
		t.lastEnd = timeNow()
	}
	t.mu.Unlock()
}

// TryRun executes the task if it is eligible and returns whether it
// executed. This is the only entry point the driver loop uses; an
// ineligible task is left untouched.
func (t *Task) TryRun() bool {
	paused, pred, supplier, lastEnd := t.schedState()
	if paused {
		return false
	}
	if pred != nil && !pred() {
		return false
	}
	if lastEnd.IsZero() || supplier == nil {
		t.run(timeNow())
		return true
	}
	itvl := supplier()
	now := timeNow()
	if itvl <= 0 || now.Sub(lastEnd) >= itvl {
		t.run(now)
		return true
	}
	return false
}

// ForceRun executes the task unconditionally, bypassing eligibility.
func (t *Task) ForceRun() {
	t.run(timeNow())
}

// RequestEarlyRun makes the very next eligibility check succeed regardless
// of the configured interval.
func (t *Task) RequestEarlyRun() {
	t.mu.Lock()
	t.lastEnd = time.Time{}
	t.mu.Unlock()
}

// run executes the unit of work and updates scheduling state. The callback
// fires last, outside the lock, after every internal update.
func (t *Task) run(start time.Time) {
	t.mu.Lock()
	fn := t.fn
	data := t.data
	t.running = true
	t.mu.Unlock()

	fn(data)

	end := timeNow()
	elapsed := end.Sub(start)

	t.mu.Lock()
	t.running = false
	t.lastEnd = end
	if t.typ == Once {
		t.paused = true
	}
	if t.stats != nil {
		t.stats.Record(elapsed)
	}
	cb := t.onDone
	t.mu.Unlock()

	if cb != nil {
		cb(t, elapsed)
	}
}

// ---- stats ----

// EnableProfiling attaches a latency histogram with the given bin count and
// bucketing unit. Enabling an already-profiled task keeps the existing
// histogram (and its accumulated data) and returns false.
func (t *Task) EnableProfiling(binCount int, unit time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats != nil {
		return false
	}
	t.stats = binstats.New(binCount, unit)
	t.log.Debug("profiling enabled", logx.String("task", t.name))
	return true
}

// DisableProfiling drops the histogram. Returns false when profiling was
// not enabled.
func (t *Task) DisableProfiling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats == nil {
		return false
	}
	t.stats = nil
	t.log.Debug("profiling disabled", logx.String("task", t.name))
	return true
}

// Stats returns the histogram, or nil when profiling is off. The histogram
// itself is not synchronized: callers sharing the task with an async runner
// should use StatsSnapshot or StatsIfUpdated instead.
func (t *Task) Stats() *binstats.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// StatsSnapshot returns a copy of the histogram state, or ok=false when
// profiling is off.
func (t *Task) StatsSnapshot() (binstats.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats == nil {
		return binstats.Snapshot{}, false
	}
	return t.stats.Snapshot(), true
}

// StatsIfUpdated returns a snapshot and clears the histogram's updated flag,
// or ok=false when profiling is off or nothing was recorded since the last
// call. Diagnostic renderers use it to skip unchanged output.
func (t *Task) StatsIfUpdated() (binstats.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats == nil || !t.stats.Updated() {
		return binstats.Snapshot{}, false
	}
	snap := t.stats.Snapshot()
	t.stats.MarkProcessed()
	return snap, true
}
