// Package watchdog backs taskman's liveness supervision with the systemd
// service watchdog.
//
// systemd arms the watchdog from the unit file (WatchdogSec=) and kills the
// service when it stops receiving WATCHDOG=1 notifications; the kill action
// (restart, core dump, ...) is also unit configuration. One process holds
// one watchdog, but several async runners may enroll: a notification is
// only sent while every enrolled runner has reset recently. A single hung
// runner therefore starves the watchdog and brings the whole process down,
// which is what a liveness supervisor is for.
package watchdog

import (
	"errors"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskloop/pkg/logx"
	"taskloop/pkg/taskman"
)

var _ taskman.Watchdog = (*Systemd)(nil)

type Systemd struct {
	log logx.Logger

	mu             sync.Mutex
	enrolled       map[string]time.Time // runner -> last reset
	window         time.Duration        // staleness window; 0 disables the check
	panicOnTimeout bool

	// notify is swapped by tests.
	notify func() error
}

func NewSystemd(log logx.Logger) *Systemd {
	return &Systemd{
		log:      log,
		enrolled: map[string]time.Time{},
		notify: func() error {
			_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			return err
		},
	}
}

// Configure validates that the service manager armed a watchdog and sets
// the process-wide staleness window. It is idempotent: reconfiguring
// updates the existing settings. A zero timeout adopts the interval systemd
// announces.
//
// Note that sd_notify cannot change the unit's WatchdogSec at runtime; a
// requested timeout longer than the armed one only narrows what this
// process tolerates, never what systemd enforces.
func (s *Systemd) Configure(timeout time.Duration, panicOnTimeout bool) error {
	armed, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if armed == 0 {
		return errors.New("watchdog: not armed by the service manager (set WatchdogSec= in the unit)")
	}
	if timeout <= 0 {
		timeout = armed
	}
	if timeout > armed {
		s.log.Warn("requested watchdog timeout exceeds the armed one; systemd will fire first",
			logx.Duration("requested", timeout), logx.Duration("armed", armed))
	}

	s.mu.Lock()
	s.window = timeout
	s.panicOnTimeout = panicOnTimeout
	s.mu.Unlock()

	s.log.Info("watchdog configured",
		logx.Duration("timeout", timeout), logx.Bool("panic", panicOnTimeout))
	return nil
}

func (s *Systemd) Register(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrolled[name]; ok {
		return errors.New("watchdog: " + name + " is already registered")
	}
	s.enrolled[name] = time.Now()
	return nil
}

func (s *Systemd) Deregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrolled[name]; !ok {
		return errors.New("watchdog: " + name + " is not registered")
	}
	delete(s.enrolled, name)
	return nil
}

// Reset records progress for the named runner and, when every enrolled
// runner made progress within the window, notifies the service manager.
func (s *Systemd) Reset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrolled[name]; !ok {
		return errors.New("watchdog: " + name + " is not registered")
	}
	now := time.Now()
	s.enrolled[name] = now

	if s.window > 0 {
		for peer, last := range s.enrolled {
			if now.Sub(last) > s.window {
				// A sibling runner looks stuck. Withhold the notification
				// and let systemd's watchdog fire.
				s.log.Error("async runner stopped resetting the watchdog",
					logx.String("runner", peer), logx.Duration("stale", now.Sub(last)))
				return nil
			}
		}
	}
	return s.notify()
}
