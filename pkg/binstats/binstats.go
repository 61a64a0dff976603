// Package binstats provides a small logarithmic latency histogram.
//
// Samples are recorded into power-of-two bins. With binCount = 16:
//
//	bin 0  : 0 <= v < 2^1 (exception for the lower bound)
//	bin 1  : 2^1 <= v < 2^2
//	bin 2  : 2^2 <= v < 2^3
//	...
//	bin 15 : 2^15 <= v (exception for the upper bound)
//
// where v is the sample divided by the unit divider. The divider selects the
// bucketing unit (time.Millisecond, time.Microsecond, ...) so that the bins
// stay meaningful for the expected range of durations.
package binstats

import (
	"math"
	"math/bits"
	"time"
)

// Stats accumulates duration samples into log2 bins.
//
// Bin counters saturate at their maximum instead of wrapping. The total
// counter resets the whole histogram when it would otherwise overflow; a
// degenerate but well-defined policy for very long-running processes.
//
// Stats is not safe for concurrent use; the owning task or manager
// serializes access to it.
type Stats struct {
	binCount int
	divider  time.Duration
	bins     []uint16
	count    uint32
	updated  bool
}

// Snapshot is a point-in-time copy of a Stats, safe to hand to renderers and
// exporters.
type Snapshot struct {
	UnitDivider time.Duration `json:"unit_divider"`
	Count       uint32        `json:"count"`
	Bins        []uint16      `json:"bins"`
}

// New creates a histogram with binCount bins bucketing in units of divider.
// A divider <= 0 means nanoseconds. binCount == 0 is legal: only the total
// sample counter is maintained.
func New(binCount int, divider time.Duration) *Stats {
	if binCount < 0 {
		binCount = 0
	}
	if divider <= 0 {
		divider = 1
	}
	return &Stats{
		binCount: binCount,
		divider:  divider,
		bins:     make([]uint16, binCount),
	}
}

// BinCount returns the number of bins.
func (s *Stats) BinCount() int { return s.binCount }

// UnitDivider returns the bucketing unit.
func (s *Stats) UnitDivider() time.Duration { return s.divider }

// Count returns the total number of recorded samples.
func (s *Stats) Count() uint32 { return s.count }

// Bin returns the counter of a single bin, or 0 when out of range.
func (s *Stats) Bin(index int) uint16 {
	if index < 0 || index >= s.binCount {
		return 0
	}
	return s.bins[index]
}

// Updated reports whether samples were recorded since the last
// MarkProcessed. Renderers use it to skip unchanged histograms.
func (s *Stats) Updated() bool { return s.updated }

// MarkProcessed clears the updated flag.
func (s *Stats) MarkProcessed() { s.updated = false }

// Clear resets all bins and the total counter.
func (s *Stats) Clear() {
	s.count = 0
	for i := range s.bins {
		s.bins[i] = 0
	}
}

// Record adds one sample. Negative durations count as zero.
func (s *Stats) Record(elapsed time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	if s.count == math.MaxUint32 {
		s.Clear()
	}
	s.count++
	s.updated = true
	if s.binCount == 0 {
		return
	}
	v := uint64(elapsed / s.divider)
	bin := 0
	if v > 0 {
		bin = bits.Len64(v) - 1
	}
	if bin > s.binCount-1 {
		bin = s.binCount - 1
	}
	if s.bins[bin] < math.MaxUint16 {
		s.bins[bin]++
	}
}

// Snapshot copies the current state.
func (s *Stats) Snapshot() Snapshot {
	bins := make([]uint16, len(s.bins))
	copy(bins, s.bins)
	return Snapshot{
		UnitDivider: s.divider,
		Count:       s.count,
		Bins:        bins,
	}
}
