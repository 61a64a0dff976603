package taskman

import (
	"context"
	"runtime"
	"time"

	"taskloop/pkg/logx"
)

// AsyncOptions tunes a background runner.
//
// Goroutines have no stack size, priority or core affinity knobs; the
// runner's only tunables are its idle behavior and watchdog enrollment.
type AsyncOptions struct {
	// IdleDelay is how long the runner sleeps after a pass that executed
	// nothing. Zero yields to the runtime instead of sleeping.
	IdleDelay time.Duration
	// Watchdog, when non-nil, enrolls the runner with a liveness watchdog
	// which it resets once per iteration.
	Watchdog Watchdog
}

type asyncRunner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// drive repeatedly executes pass until the runner is stopped. When a pass
// executes nothing it sleeps IdleDelay (or yields when zero) before trying
// again.
func (r *asyncRunner) drive(ctx context.Context, name string, pass func() bool, opts AsyncOptions, log logx.Logger) {
	defer close(r.done)

	wd := opts.Watchdog
	if wd != nil {
		if err := wd.Register(name); err != nil {
			log.Warn("watchdog enrollment failed, running unsupervised",
				logx.String("runner", name), logx.Err(err))
			wd = nil
		} else {
			defer func() { _ = wd.Deregister(name) }()
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if wd != nil {
			_ = wd.Reset(name)
		}
		if pass() {
			continue
		}
		if opts.IdleDelay <= 0 {
			runtime.Gosched()
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(opts.IdleDelay):
		}
	}
}

// stop cancels the runner without waiting for it. Cancellation is observed
// at the runner's suspension points only: an in-flight task execution
// finishes before the goroutine exits.
func (r *asyncRunner) stop() {
	r.cancel()
}

func startRunner(name string, pass func() bool, opts AsyncOptions, log logx.Logger) *asyncRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &asyncRunner{cancel: cancel, done: make(chan struct{})}
	go r.drive(ctx, name, pass, opts, log)
	return r
}

// AsyncStart spawns a background goroutine that repeatedly drives Loop.
// Returns false without side effects when the manager is already driven
// asynchronously. A false return leaves the manager in direct (synchronous)
// mode; the caller decides whether that is fatal.
func (m *Manager) AsyncStart(opts AsyncOptions) bool {
	m.mu.Lock()
	if m.async != nil {
		m.mu.Unlock()
		return false
	}
	log := m.log
	r := startRunner(m.name, func() bool { return m.Loop() > 0 }, opts, log)
	m.async = r
	m.mu.Unlock()
	log.Debug("async runner started", logx.String("manager", m.name))
	return true
}

// AsyncStop cancels the background runner immediately and returns without
// waiting for it. Stopping a manager that was never started is a no-op.
func (m *Manager) AsyncStop() {
	m.mu.Lock()
	r := m.async
	m.async = nil
	log := m.log
	m.mu.Unlock()
	if r == nil {
		return
	}
	r.stop()
	log.Debug("async runner stopped", logx.String("manager", m.name))
}

// AsyncStart spawns a background goroutine that repeatedly drives TryRun on
// this single task, without a manager. Semantics match Manager.AsyncStart.
func (t *Task) AsyncStart(opts AsyncOptions) bool {
	t.mu.Lock()
	if t.async != nil {
		t.mu.Unlock()
		return false
	}
	log := t.log
	r := startRunner(t.name, t.TryRun, opts, log)
	t.async = r
	t.mu.Unlock()
	log.Debug("async runner started", logx.String("task", t.name))
	return true
}

// AsyncStop cancels the task's background runner; a no-op when not started.
func (t *Task) AsyncStop() {
	t.mu.Lock()
	r := t.async
	t.async = nil
	log := t.log
	t.mu.Unlock()
	if r == nil {
		return
	}
	r.stop()
	log.Debug("async runner stopped", logx.String("task", t.name))
}
