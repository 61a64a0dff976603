// Package taskman implements a cooperative task scheduler.
//
// # Overview
//
// A Task is a named unit of work with its own timing and enablement state:
// a run function, a type (Forever or Once), an interval (fixed or supplied
// dynamically), an optional enablement predicate, a pause flag and an
// optional latency histogram. A Manager holds tasks in registration order
// and drives one scheduling pass per Loop() call.
//
// Scheduling is cooperative, not preemptive. Tasks are expected to be short,
// non-blocking, and to return control promptly. Within one manager, tasks
// always execute strictly sequentially, in registration order; the driver
// yields to the runtime after each task that executed.
//
// # Driving a manager
//
// Either the host calls Loop() itself:
//
//	mgr := taskman.NewManager("main")
//	t := taskman.NewTask("poll", poll)
//	t.SetInterval(time.Second)
//	t.SetManager(mgr)
//	for {
//		if mgr.Loop() == 0 {
//			time.Sleep(10 * time.Millisecond)
//		}
//	}
//
// or the manager drives itself from a background goroutine:
//
//	mgr.AsyncStart(taskman.AsyncOptions{IdleDelay: 10 * time.Millisecond})
//	defer mgr.AsyncStop()
//
// Two different managers may run truly concurrently; taskman provides no
// synchronization between them. Data shared across tasks of different
// managers is the caller's responsibility to protect.
//
// # Eligibility
//
// A task runs on a pass when it is not paused, its enablement predicate (if
// any) holds, and either it never completed before or the time since its
// last completion reached its current interval. An interval of zero means
// "run on every pass".
//
// # Liveness supervision
//
// An async runner can be enrolled with a Watchdog collaborator; the runner
// resets the watchdog once per iteration. A runner stuck inside a task that
// never returns stops resetting, and the watchdog takes whatever fatal
// action it was configured with. The watchdog is an injected interface, not
// part of the scheduler's own state; see the internal/watchdog package for a
// systemd-backed implementation.
package taskman
