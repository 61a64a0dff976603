// Package crontrig drives taskman tasks from wall-clock schedules.
//
// The scheduler core only understands intervals ("at least this long since
// the last completion"). crontrig bridges cron expressions onto that model:
// the installed supplier computes, from the task's last completion, how long
// the task must wait for the next cron activation. A task whose manager is
// pumped at least once per activation window therefore fires at each
// activation.
//
// Accepted specs:
//   - cron expressions: "*/5 * * * *" (min hour dom mon dow)
//   - cron descriptors: "@hourly", "@daily", "@every 55m"
//   - Go durations: "55m", "2h30m" (plain fixed interval)
package crontrig

import (
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"

	"taskloop/pkg/taskman"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Bind installs a schedule on the task. Duration specs become a fixed
// interval; cron specs become a dynamic interval supplier anchored on the
// task's last completion.
func Bind(t *taskman.Task, spec string) error {
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return fmt.Errorf("crontrig: interval %q must be positive", spec)
		}
		t.SetInterval(d)
		return nil
	}

	sched, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("crontrig: parse %q: %w", spec, err)
	}
	t.SetIntervalSupplier(supplier(t, sched))
	return nil
}

func supplier(t *taskman.Task, sched cron.Schedule) taskman.IntervalSupplier {
	return func() time.Duration {
		last := t.LastRun()
		if last.IsZero() {
			// Never ran (or early run requested): the core runs the task
			// immediately in that state, so the value is moot.
			return 0
		}
		return sched.Next(last).Sub(last)
	}
}
