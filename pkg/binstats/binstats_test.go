package binstats

import (
	"math"
	"testing"
	"time"
)

func TestBinIndexing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		elapsed time.Duration
		bin     int
	}{
		{name: "zero", elapsed: 0, bin: 0},
		{name: "below unit", elapsed: 900 * time.Microsecond, bin: 0},
		{name: "one unit", elapsed: time.Millisecond, bin: 0},
		{name: "just under 2", elapsed: 1999 * time.Microsecond, bin: 0},
		{name: "two units", elapsed: 2 * time.Millisecond, bin: 1},
		{name: "three units", elapsed: 3 * time.Millisecond, bin: 1},
		{name: "four units", elapsed: 4 * time.Millisecond, bin: 2},
		{name: "five hundred", elapsed: 500 * time.Millisecond, bin: 8},
		{name: "clamped to top", elapsed: time.Hour, bin: 9},
		{name: "negative", elapsed: -time.Second, bin: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(10, time.Millisecond)
			s.Record(tt.elapsed)
			if got := s.Bin(tt.bin); got != 1 {
				t.Fatalf("bin %d = %d, want 1 (bins=%v)", tt.bin, got, s.Snapshot().Bins)
			}
			if s.Count() != 1 {
				t.Fatalf("count = %d, want 1", s.Count())
			}
		})
	}
}

func TestBinIndexMonotonic(t *testing.T) {
	t.Parallel()
	s := New(16, time.Microsecond)
	prev := 0
	for v := time.Duration(1); v < 100*time.Millisecond; v *= 3 {
		s.Clear()
		s.Record(v)
		cur := -1
		for i := 0; i < s.BinCount(); i++ {
			if s.Bin(i) == 1 {
				cur = i
				break
			}
		}
		if cur < prev {
			t.Fatalf("bin index decreased from %d to %d at sample %v", prev, cur, v)
		}
		prev = cur
	}
}

func TestZeroBins(t *testing.T) {
	t.Parallel()
	s := New(0, time.Millisecond)
	s.Record(time.Second)
	s.Record(time.Second)
	if s.Count() != 2 {
		t.Fatalf("count = %d, want 2", s.Count())
	}
	if got := s.Bin(0); got != 0 {
		t.Fatalf("Bin(0) = %d on binless stats", got)
	}
}

func TestBinSaturation(t *testing.T) {
	t.Parallel()
	s := New(4, time.Millisecond)
	s.bins[0] = math.MaxUint16 - 1
	s.Record(0)
	if s.bins[0] != math.MaxUint16 {
		t.Fatalf("bin 0 = %d, want %d", s.bins[0], math.MaxUint16)
	}
	s.Record(0)
	if s.bins[0] != math.MaxUint16 {
		t.Fatalf("bin 0 wrapped: %d", s.bins[0])
	}
	if s.Count() != math.MaxUint16+1 {
		t.Fatalf("count = %d, want %d", s.Count(), math.MaxUint16+1)
	}
}

func TestCountOverflowResets(t *testing.T) {
	t.Parallel()
	s := New(4, time.Millisecond)
	s.count = math.MaxUint32 - 1
	s.bins[2] = 123
	s.Record(0)
	if s.Count() != math.MaxUint32 {
		t.Fatalf("count = %d, want max", s.Count())
	}
	// The next sample would overflow the total counter: everything resets
	// and the sample lands in a fresh histogram.
	s.Record(0)
	if s.Count() != 1 {
		t.Fatalf("count after reset = %d, want 1", s.Count())
	}
	if s.Bin(2) != 0 {
		t.Fatalf("bin 2 survived the reset: %d", s.Bin(2))
	}
	if s.Bin(0) != 1 {
		t.Fatalf("bin 0 = %d, want 1", s.Bin(0))
	}
}

func TestUpdatedFlag(t *testing.T) {
	t.Parallel()
	s := New(4, time.Millisecond)
	if s.Updated() {
		t.Fatal("fresh stats marked updated")
	}
	s.Record(time.Millisecond)
	if !s.Updated() {
		t.Fatal("Record did not set updated")
	}
	s.MarkProcessed()
	if s.Updated() {
		t.Fatal("MarkProcessed did not clear updated")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	s := New(4, time.Millisecond)
	s.Record(2 * time.Millisecond)
	snap := s.Snapshot()
	s.Record(2 * time.Millisecond)
	if snap.Bins[1] != 1 {
		t.Fatalf("snapshot bins = %v, want [0 1 0 0]", snap.Bins)
	}
	if snap.Count != 1 {
		t.Fatalf("snapshot count = %d, want 1", snap.Count)
	}
	if snap.UnitDivider != time.Millisecond {
		t.Fatalf("snapshot divider = %v", snap.UnitDivider)
	}
}
