package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskloop/internal/config"
	"taskloop/internal/history"
	"taskloop/internal/report"
	"taskloop/pkg/binstats"
	"taskloop/pkg/logx"
	"taskloop/pkg/taskman"
	"taskloop/pkg/taskman/crontrig"
)

// actionTimeout bounds the store access of a single action run.
const actionTimeout = 10 * time.Second

func (a *App) buildManagers(cfg *config.Config) ([]*managerUnit, error) {
	units := make([]*managerUnit, 0, len(cfg.Managers))
	for _, mc := range cfg.Managers {
		u, err := a.buildManager(mc)
		if err != nil {
			for _, built := range units {
				built.mgr.Close()
			}
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

func (a *App) buildManager(mc config.ManagerConfig) (*managerUnit, error) {
	var mgr *taskman.Manager
	if mc.Capacity > 0 {
		mgr = taskman.NewFixedManager(mc.Name, mc.Capacity)
	} else {
		mgr = taskman.NewManager(mc.Name)
	}
	mgr.SetLogger(a.log.With(logx.String("manager", mc.Name)))

	for _, tc := range mc.Tasks {
		if err := a.buildTask(mgr, tc); err != nil {
			mgr.Close()
			return nil, fmt.Errorf("managers[%s].tasks[%s]: %w", mc.Name, tc.Name, err)
		}
	}

	if mc.Profiling != nil && mc.Profiling.Bins > 0 {
		unit, err := config.ParseUnit(mc.Profiling.Unit)
		if err != nil {
			mgr.Close()
			return nil, err
		}
		mgr.EnableProfiling(mc.Profiling.Bins, unit)
	}

	idle, err := config.ParseDurationField("async.idle_delay", mc.Async.IdleDelay)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	opts := taskman.AsyncOptions{IdleDelay: idle}
	if mc.Async.Watchdog {
		opts.Watchdog = a.wd
	}
	return &managerUnit{mgr: mgr, opts: opts}, nil
}

func (a *App) buildTask(mgr *taskman.Manager, tc config.TaskConfig) error {
	fn, err := a.action(mgr, tc.Action)
	if err != nil {
		return err
	}

	t := taskman.NewTask(tc.Name, fn)
	t.SetLogger(a.log.With(logx.String("manager", mgr.Name()), logx.String("task", tc.Name)))
	if normalized(tc.Type) == "once" {
		t.SetType(taskman.Once)
	}
	if tc.Schedule != "" {
		if err := crontrig.Bind(t, tc.Schedule); err != nil {
			return err
		}
	}
	if tc.Enabled != nil && !*tc.Enabled {
		t.SetEnabled(false)
	}
	t.SetCallback(a.recordRun(mgr.Name()))
	t.SetManager(mgr)
	return nil
}

// recordRun appends a completed run to the history store.
func (a *App) recordRun(manager string) taskman.DoneCallback {
	return func(t *taskman.Task, elapsed time.Duration) {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := a.store.AppendRun(ctx, history.RunEntry{
			At:      time.Now(),
			Manager: manager,
			Task:    t.Name(),
			Elapsed: elapsed,
		})
		if err != nil && !errors.Is(err, history.ErrDisabled) {
			a.log.Error("recording run", logx.String("task", t.Name()), logx.Err(err))
		}
	}
}

// action resolves a built-in action name to the function the task runs.
func (a *App) action(mgr *taskman.Manager, name string) (taskman.Func, error) {
	log := a.log.With(logx.String("manager", mgr.Name()))
	switch normalized(name) {
	case "heartbeat":
		return func(any) {
			log.Info("heartbeat")
		}, nil

	case "report":
		rep := report.New(log.With(logx.String("comp", "report")), 1)
		return func(any) {
			rep.Report(mgr)
		}, nil

	case "snapshot":
		return func(any) {
			a.snapshotHistograms(mgr, log)
		}, nil

	case "prune":
		return func(any) {
			if a.retention <= 0 {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			n, err := a.store.PruneBefore(ctx, time.Now().Add(-a.retention))
			if err != nil && !errors.Is(err, history.ErrDisabled) {
				log.Error("pruning history", logx.Err(err))
			} else if n > 0 {
				log.Info("history pruned", logx.Int64("rows", n))
			}
		}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", name)
	}
}

// snapshotHistograms persists the current latency histograms of a manager
// and its profiled tasks.
func (a *App) snapshotHistograms(mgr *taskman.Manager, log logx.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	now := time.Now()

	persist := func(owner string, stats binstats.Snapshot) {
		err := a.store.AppendSnapshot(ctx, history.SnapshotEntry{
			At:    now,
			Owner: owner,
			Stats: stats,
		})
		if err != nil && !errors.Is(err, history.ErrDisabled) {
			log.Error("recording snapshot", logx.String("owner", owner), logx.Err(err))
		}
	}

	for _, t := range mgr.Tasks() {
		if stats, ok := t.StatsSnapshot(); ok {
			persist(mgr.Name()+"/"+t.Name(), stats)
		}
	}
	if stats, ok := mgr.StatsSnapshot(); ok {
		persist(mgr.Name(), stats)
	}
}
