// Package report renders scheduler latency histograms as log lines.
//
// The scheduler core only exposes histogram snapshots; this is the logging
// collaborator that turns them into text. Output is gated two ways: a
// histogram that saw no new samples since its last rendering is skipped
// (the dirty flag), and a rate limiter caps how often a full report may be
// emitted so a hot loop cannot flood the log.
package report

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"taskloop/pkg/binstats"
	"taskloop/pkg/logx"
	"taskloop/pkg/taskman"
)

type Reporter struct {
	log logx.Logger
	lim *rate.Limiter
}

// New creates a reporter emitting at most maxPerSec reports per second
// (with a burst of one). maxPerSec <= 0 means unlimited.
func New(log logx.Logger, maxPerSec float64) *Reporter {
	var lim *rate.Limiter
	if maxPerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(maxPerSec), 1)
	}
	return &Reporter{log: log, lim: lim}
}

// Report logs one line per profiled task (and the manager itself) whose
// histogram changed since the last report. Returns the number of lines
// emitted; zero when nothing changed or the rate limit struck.
func (r *Reporter) Report(m *taskman.Manager) int {
	if r.lim != nil && !r.lim.Allow() {
		return 0
	}
	emitted := 0
	for _, t := range m.Tasks() {
		if snap, ok := t.StatsIfUpdated(); ok {
			r.log.Info(Line(t.Name(), snap), logx.String("manager", m.Name()))
			emitted++
		}
	}
	if snap, ok := m.StatsIfUpdated(); ok {
		r.log.Info(Line(m.Name(), snap), logx.String("manager", m.Name()))
		emitted++
	}
	return emitted
}

// Line formats a histogram as a single table-style row:
//
//	| heartbeat |     3 < 2^1 ms |     1 < 2^2 ms | ... |    0 >= 2^9 ms | count: 4
func Line(name string, snap binstats.Snapshot) string {
	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(name)
	unit := unitLabel(snap.UnitDivider)
	for i, n := range snap.Bins {
		if i < len(snap.Bins)-1 {
			fmt.Fprintf(&b, " | %5d < 2^%d %s", n, i+1, unit)
		} else {
			fmt.Fprintf(&b, " | %5d >= 2^%d %s", n, i, unit)
		}
	}
	fmt.Fprintf(&b, " | count: %d", snap.Count)
	return b.String()
}

func unitLabel(divider time.Duration) string {
	switch divider {
	case time.Microsecond:
		return "us"
	case time.Millisecond:
		return "ms"
	case time.Second:
		return "s"
	default:
		return "ns"
	}
}
