package taskman

import (
	"runtime"
	"sync"
	"time"

	"taskloop/pkg/binstats"
	"taskloop/pkg/logx"
)

// Manager holds tasks in registration order and drives one scheduling pass
// per Loop call. It does not own task lifetimes: tasks detach themselves via
// Close/SetManager(nil), and closing a manager leaves its tasks intact.
type Manager struct {
	name string

	mu       sync.Mutex
	tasks    []*Task
	capacity int // 0 means unbounded
	stats    *binstats.Stats

	async *asyncRunner
	log   logx.Logger
}

// NewManager creates a manager with no capacity bound.
func NewManager(name string) *Manager {
	return &Manager{name: name, log: logx.Nop()}
}

// NewFixedManager creates a capacity-bounded manager. Registering more than
// capacity tasks is a programming error and panics: a full slot table
// signals a static configuration mistake, not a runtime condition.
func NewFixedManager(name string, capacity int) *Manager {
	if capacity <= 0 {
		panic("taskman: manager " + name + " needs a positive capacity")
	}
	m := NewManager(name)
	m.capacity = capacity
	return m
}

// SetLogger attaches a logger used for debug-level scheduling events.
func (m *Manager) SetLogger(log logx.Logger) {
	m.mu.Lock()
	m.log = log
	m.mu.Unlock()
}

func (m *Manager) Name() string { return m.name }

// Size returns the number of registered tasks.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Tasks returns the registered tasks in registration order.
func (m *Manager) Tasks() []*Task {
	return m.snapshotTasks()
}

// Loop drives one pass: every registered task gets exactly one TryRun, in
// registration order, with a cooperative yield after each task that
// executed. Returns the number of tasks that executed. When manager-level
// profiling is on and at least one task executed, the whole-pass duration is
// recorded.
//
// Do not call Loop while an async runner drives this manager; the runner
// calls it.
func (m *Manager) Loop() int {
	tasks := m.snapshotTasks()

	start := timeNow()
	executed := 0
	for _, t := range tasks {
		if t.TryRun() {
			executed++
			runtime.Gosched()
		}
	}

	if executed > 0 {
		elapsed := timeNow().Sub(start)
		m.mu.Lock()
		if m.stats != nil {
			m.stats.Record(elapsed)
		}
		m.mu.Unlock()
	}
	return executed
}

// Pause pauses every registered task, in registration order.
func (m *Manager) Pause() {
	for _, t := range m.snapshotTasks() {
		t.Pause()
	}
}

// Resume resumes every registered task, in registration order.
func (m *Manager) Resume() {
	for _, t := range m.snapshotTasks() {
		t.Resume()
	}
}

// EnableProfiling attaches a histogram to every registered task and creates
// the manager-level whole-pass histogram. Tasks already profiled keep their
// histogram.
func (m *Manager) EnableProfiling(binCount int, unit time.Duration) {
	for _, t := range m.snapshotTasks() {
		t.EnableProfiling(binCount, unit)
	}
	m.mu.Lock()
	if m.stats == nil {
		m.stats = binstats.New(binCount, unit)
	}
	m.mu.Unlock()
}

// DisableProfiling drops every task histogram and the manager-level one.
func (m *Manager) DisableProfiling() {
	for _, t := range m.snapshotTasks() {
		t.DisableProfiling()
	}
	m.mu.Lock()
	m.stats = nil
	m.mu.Unlock()
}

// StatsSnapshot returns a copy of the manager-level histogram, or ok=false
// when manager profiling is off.
func (m *Manager) StatsSnapshot() (binstats.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats == nil {
		return binstats.Snapshot{}, false
	}
	return m.stats.Snapshot(), true
}

// StatsIfUpdated returns a manager-level histogram snapshot and clears its
// updated flag, or ok=false when profiling is off or nothing changed.
func (m *Manager) StatsIfUpdated() (binstats.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats == nil || !m.stats.Updated() {
		return binstats.Snapshot{}, false
	}
	snap := m.stats.Snapshot()
	m.stats.MarkProcessed()
	return snap, true
}

// Close stops the async runner and detaches all remaining tasks. The tasks
// survive; they just lose their manager reference.
func (m *Manager) Close() {
	m.AsyncStop()
	for _, t := range m.snapshotTasks() {
		t.SetManager(nil)
	}
}

func (m *Manager) snapshotTasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]*Task, len(m.tasks))
	copy(tasks, m.tasks)
	return tasks
}

// addTask and removeTask are called by Task.SetManager only, never by hosts.

func (m *Manager) addTask(t *Task) {
	m.mu.Lock()
	if m.capacity > 0 && len(m.tasks) >= m.capacity {
		m.mu.Unlock()
		panic("taskman: manager " + m.name + " is full: increase its capacity")
	}
	m.tasks = append(m.tasks, t)
	log := m.log
	m.mu.Unlock()
	log.Debug("task registered", logx.String("manager", m.name), logx.String("task", t.Name()))
}

func (m *Manager) removeTask(t *Task) {
	m.mu.Lock()
	for i, cur := range m.tasks {
		if cur == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			break
		}
	}
	log := m.log
	m.mu.Unlock()
	log.Debug("task deregistered", logx.String("manager", m.name), logx.String("task", t.Name()))
}
