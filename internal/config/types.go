// Package config loads, validates and hot-reloads the taskloopd
// configuration file (JSON or YAML).
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Watchdog WatchdogConfig  `json:"watchdog"`
	History  HistoryConfig   `json:"history"`
	Managers []ManagerConfig `json:"managers"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// WatchdogConfig configures the process-wide liveness watchdog.
type WatchdogConfig struct {
	Enabled bool   `json:"enabled"`
	Timeout string `json:"timeout"` // duration string, e.g. "30s"
	Panic   bool   `json:"panic"`
}

// HistoryConfig configures the run-history store.
type HistoryConfig struct {
	Driver    string `json:"driver"` // "sqlite" or "none"/""
	Path      string `json:"path"`
	Retention string `json:"retention"` // prune entries older than this
}

type ManagerConfig struct {
	Name      string           `json:"name"`
	Capacity  int              `json:"capacity"` // 0 means unbounded
	Profiling *ProfilingConfig `json:"profiling"`
	Async     AsyncConfig      `json:"async"`
	Tasks     []TaskConfig     `json:"tasks"`
}

// ProfilingConfig enables latency histograms on a manager and its tasks.
type ProfilingConfig struct {
	Bins int    `json:"bins"`
	Unit string `json:"unit"` // "us", "ms" or "s"
}

type AsyncConfig struct {
	IdleDelay string `json:"idle_delay"`
	Watchdog  bool   `json:"watchdog"`
}

type TaskConfig struct {
	Name     string `json:"name"`
	Type     string `json:"type"`     // "forever" (default) or "once"
	Schedule string `json:"schedule"` // duration or cron spec; empty means every pass
	Enabled  *bool  `json:"enabled"`  // nil means enabled
	Action   string `json:"action"`   // built-in action name
}

// ParseUnit maps a histogram unit label onto its divider.
func ParseUnit(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ms":
		return time.Millisecond, nil
	case "us", "µs":
		return time.Microsecond, nil
	case "s":
		return time.Second, nil
	default:
		return 0, fmt.Errorf("unknown histogram unit %q (want us, ms or s)", s)
	}
}

// Validate checks everything that can be checked without touching the
// schedule specs (those are validated when tasks are built).
func (c *Config) Validate() error {
	if _, err := ParseDurationField("watchdog.timeout", c.Watchdog.Timeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
	case "", "none", "sqlite":
	default:
		return fmt.Errorf("history.driver: unknown driver %q", c.History.Driver)
	}
	if _, err := ParseDurationField("history.retention", c.History.Retention); err != nil {
		return err
	}

	seen := map[string]bool{}
	for i, mc := range c.Managers {
		where := fmt.Sprintf("managers[%d]", i)
		name := strings.TrimSpace(mc.Name)
		if name == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		if seen[name] {
			return fmt.Errorf("%s: duplicate manager name %q", where, name)
		}
		seen[name] = true
		if mc.Capacity < 0 {
			return fmt.Errorf("%s: capacity must be >= 0", where)
		}
		if mc.Capacity > 0 && len(mc.Tasks) > mc.Capacity {
			return fmt.Errorf("%s: %d tasks exceed capacity %d", where, len(mc.Tasks), mc.Capacity)
		}
		if mc.Profiling != nil {
			if mc.Profiling.Bins < 0 {
				return fmt.Errorf("%s.profiling: bins must be >= 0", where)
			}
			if _, err := ParseUnit(mc.Profiling.Unit); err != nil {
				return fmt.Errorf("%s.profiling: %w", where, err)
			}
		}
		if _, err := ParseDurationField(where+".async.idle_delay", mc.Async.IdleDelay); err != nil {
			return err
		}
		for j, tc := range mc.Tasks {
			tw := fmt.Sprintf("%s.tasks[%d]", where, j)
			if strings.TrimSpace(tc.Name) == "" {
				return fmt.Errorf("%s: name is required", tw)
			}
			switch strings.ToLower(strings.TrimSpace(tc.Type)) {
			case "", "forever", "once":
			default:
				return fmt.Errorf("%s: unknown type %q", tw, tc.Type)
			}
			if strings.TrimSpace(tc.Action) == "" {
				return fmt.Errorf("%s: action is required", tw)
			}
		}
	}
	return nil
}
