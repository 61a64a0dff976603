package crontrig

import (
	"testing"
	"time"

	"taskloop/pkg/taskman"
)

func TestBindDurationSpec(t *testing.T) {
	t.Parallel()
	task := taskman.NewTask("interval", func(any) {})
	if err := Bind(task, "45s"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if got := task.Interval(); got != 45*time.Second {
		t.Fatalf("interval = %v, want 45s", got)
	}
}

func TestBindCronSpec(t *testing.T) {
	t.Parallel()
	task := taskman.NewTask("cron", func(any) {})
	if err := Bind(task, "*/5 * * * *"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	// Never ran: the supplier defers to the core's first-run rule.
	if got := task.Interval(); got != 0 {
		t.Fatalf("interval before first run = %v, want 0", got)
	}
	// After a run, the interval points at the next activation after the
	// last completion: strictly positive, at most one activation period.
	task.ForceRun()
	got := task.Interval()
	if got <= 0 || got > 5*time.Minute {
		t.Fatalf("interval after run = %v, want (0, 5m]", got)
	}
}

func TestBindDescriptorSpec(t *testing.T) {
	t.Parallel()
	task := taskman.NewTask("every", func(any) {})
	if err := Bind(task, "@every 90s"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	task.ForceRun()
	// @every schedules have second granularity: the next activation is 90s
	// after the last completion, rounded down to a whole second.
	got := task.Interval()
	if got <= 89*time.Second || got > 90*time.Second {
		t.Fatalf("interval = %v, want (89s, 90s]", got)
	}
}

func TestBindInvalidSpec(t *testing.T) {
	t.Parallel()
	task := taskman.NewTask("bad", func(any) {})
	if err := Bind(task, "not-a-schedule"); err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if err := Bind(task, "-5s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
