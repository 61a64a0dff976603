// Package app assembles the taskloopd daemon from its parts: configuration,
// logging, the run-history store, the scheduler managers and their async
// runners.
package app

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"taskloop/internal/config"
	"taskloop/internal/history"
	"taskloop/internal/watchdog"
	"taskloop/pkg/logx"
	"taskloop/pkg/taskman"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store     history.Store
	retention time.Duration

	wd       taskman.Watchdog
	managers []*managerUnit

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// managerUnit pairs a built manager with the async options its config asked
// for, so Start can launch it.
type managerUnit struct {
	mgr  *taskman.Manager
	opts taskman.AsyncOptions
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := history.Open(history.Config{
		Driver: cfg.History.Driver,
		Path:   cfg.History.Path,
	}, log.With(logx.String("comp", "history")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	retention, err := config.ParseDurationField("history.retention", cfg.History.Retention)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	var wd taskman.Watchdog = taskman.NopWatchdog{}
	if cfg.Watchdog.Enabled {
		sd := watchdog.NewSystemd(log.With(logx.String("comp", "watchdog")))
		timeout, _ := config.ParseDurationField("watchdog.timeout", cfg.Watchdog.Timeout)
		if err := sd.Configure(timeout, cfg.Watchdog.Panic); err != nil {
			// Running outside systemd is a degraded mode, not a fatal one.
			log.Warn("liveness watchdog unavailable", logx.Err(err))
		} else {
			wd = sd
		}
	}

	a := &App{
		cfgm:      cfgm,
		logs:      logs,
		log:       log,
		store:     store,
		retention: retention,
		wd:        wd,
	}
	if a.managers, err = a.buildManagers(cfg); err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

// Start launches every configured manager on its own async runner and
// begins watching the configuration file.
func (a *App) Start(ctx context.Context) error {
	for _, u := range a.managers {
		if !u.mgr.AsyncStart(u.opts) {
			a.log.Warn("manager already running", logx.String("manager", u.mgr.Name()))
		}
	}
	a.log.Info("started", logx.Int("managers", len(a.managers)))

	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	go a.watchConfig(wctx)
	return nil
}

// Stop shuts the runners down, flushes the history store and closes the
// log sinks. The context bounds how long Stop waits for the config watcher.
func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
	}
	for _, u := range a.managers {
		u.mgr.Close()
	}
	if err := a.store.Close(); err != nil {
		a.log.Error("closing history store", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

// watchConfig follows file edits and SIGHUP. Only the logging section is
// applied live; scheduler topology is fixed at startup, so any other change
// just asks for a restart.
func (a *App) watchConfig(ctx context.Context) {
	defer close(a.watchDone)

	updates := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(updates)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	go func() {
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("config watcher failed", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := a.cfgm.Load()
			if err != nil {
				a.log.Warn("config reload rejected", logx.Err(err))
				continue
			}
			a.applyLogging(cfg)
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.applyLogging(cfg)
		}
	}
}

func (a *App) applyLogging(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.log.Info("configuration reloaded; logging applied, scheduler changes need a restart",
		logx.String("level", cfg.Logging.Level))
}

func normalized(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
