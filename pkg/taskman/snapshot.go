package taskman

import (
	"time"

	"taskloop/pkg/binstats"
)

// TaskSnapshot is the exported view of a task, consumed by serialization
// and diagnostics collaborators.
type TaskSnapshot struct {
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	Paused   bool               `json:"paused"`
	Enabled  bool               `json:"enabled"`
	Interval time.Duration      `json:"interval"`
	Stats    *binstats.Snapshot `json:"stats,omitempty"`
}

// ManagerSnapshot is the exported view of a manager and its tasks.
type ManagerSnapshot struct {
	Name  string             `json:"name"`
	Stats *binstats.Snapshot `json:"stats,omitempty"`
	Tasks []TaskSnapshot     `json:"tasks"`
}

// Snapshot exports the task's current scheduling state. The enablement
// predicate and interval supplier are evaluated outside internal locks.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	snap := TaskSnapshot{
		Name:   t.name,
		Type:   t.typ.String(),
		Paused: t.paused,
	}
	pred := t.enabled
	supplier := t.interval
	if t.stats != nil {
		s := t.stats.Snapshot()
		snap.Stats = &s
	}
	t.mu.Unlock()

	snap.Enabled = pred == nil || pred()
	if supplier != nil {
		snap.Interval = supplier()
	}
	return snap
}

// Snapshot exports the manager's state including every registered task, in
// registration order.
func (m *Manager) Snapshot() ManagerSnapshot {
	snap := ManagerSnapshot{Name: m.name}
	if s, ok := m.StatsSnapshot(); ok {
		snap.Stats = &s
	}
	tasks := m.snapshotTasks()
	snap.Tasks = make([]TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		snap.Tasks = append(snap.Tasks, t.Snapshot())
	}
	return snap
}
