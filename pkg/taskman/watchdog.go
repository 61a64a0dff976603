package taskman

import "time"

// Watchdog is the liveness supervisor async runners enroll with. It is an
// injected collaborator: the scheduler only registers, resets and
// deregisters; what happens when a runner stops resetting (typically a
// forced restart) is entirely the implementation's business.
//
// Configure is process-wide, not manager-scoped, and idempotent:
// reconfiguring updates the existing settings.
type Watchdog interface {
	Register(name string) error
	Deregister(name string) error
	Reset(name string) error
	Configure(timeout time.Duration, panicOnTimeout bool) error
}

// NopWatchdog ignores everything. Useful as a default and in tests.
type NopWatchdog struct{}

var _ Watchdog = NopWatchdog{}

func (NopWatchdog) Register(string) error               { return nil }
func (NopWatchdog) Deregister(string) error             { return nil }
func (NopWatchdog) Reset(string) error                  { return nil }
func (NopWatchdog) Configure(time.Duration, bool) error { return nil }
