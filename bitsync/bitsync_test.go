// RTLWMBUS - An rtl-sdr receiver for Wireless M-Bus meters in the 868MHz SRD band.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package bitsync

import (
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type recorder struct {
	bits      []Bit
	resets    int
	receiving bool
}

func (r *recorder) Push(b Bit)      { r.bits = append(r.bits, b) }
func (r *recorder) Reset()          { r.resets++ }
func (r *recorder) Receiving() bool { return r.receiving }

func (r *recorder) values() (v []uint8) {
	for _, b := range r.bits {
		v = append(v, b.Value)
	}
	return v
}

type run struct {
	level uint8
	n     int
}

func feed(s Synchronizer, runs ...run) {
	for _, r := range runs {
		dphi := -0.1
		if r.level == 1 {
			dphi = 0.1
		}
		for i := 0; i < r.n; i++ {
			s.Process(dphi, 10)
		}
	}
}

// Passes raw bits straight through so run lengths are exact.
var identity = NewDeglitch(1, 1)

func TestAccessCodeTolerance(t *testing.T) {
	strict := AccessCode{Code: 0x543D, Bits: 16}
	loose := AccessCode{Code: 0x543D, Bits: 16, Errors: 1}

	assert.True(t, strict.Match(0x543D))
	assert.True(t, strict.Match(0xFFFF543D), "bits above the code width are ignored")

	for bit := uint(0); bit < 16; bit++ {
		window := uint32(0x543D) ^ 1<<bit
		assert.False(t, strict.Match(window), "bit %d", bit)
		assert.True(t, loose.Match(window), "bit %d", bit)
	}

	assert.False(t, loose.Match(0x543D^0x0003))
}

func TestDeglitchRule(t *testing.T) {
	d := NewDeglitch(7, 3)

	for raw := uint32(0); raw < 1<<10; raw++ {
		var want uint8
		if bits.OnesCount32(raw&0x7F) >= 3 {
			want = 1
		}
		if got := d.Level(raw); got != want {
			t.Fatalf("raw %010b: expected %d got %d\n", raw, want, got)
		}
	}
}

func TestDeglitchSkew(t *testing.T) {
	for _, tc := range []struct{ taps, threshold int }{
		{7, 3}, {6, 3}, {7, 4}, {5, 2}, {1, 1},
	} {
		d := NewDeglitch(tc.taps, tc.threshold)

		// Measure the deglitched length of a 16 sample run of ones.
		var raw uint32
		ones := 0
		for n := 0; n < 64; n++ {
			var bit uint32
			if n >= 16 && n < 32 {
				bit = 1
			}
			raw = raw<<1 | bit
			ones += int(d.Level(raw))
		}

		assert.Equal(t, 16+d.Skew(), ones, "taps %d threshold %d", tc.taps, tc.threshold)
	}

	assert.Equal(t, 2, NewDeglitch(7, 3).Skew())
	assert.Equal(t, 1, NewDeglitch(6, 3).Skew())
	assert.Zero(t, identity.Skew())
}

func newRunLength(deglitch Deglitch, spb float64, sink Sink) *RunLength {
	return NewRunLength(RunLengthConfig{
		SamplesPerBit: spb,
		Deglitch:      deglitch,
		AccessCode:    AccessCode{Code: 0x3, Bits: 4},
		Tracking:      PIControl,
	}, sink)
}

func TestRunLengthExactPeriods(t *testing.T) {
	rec := &recorder{}
	rl := newRunLength(identity, 8, rec)

	feed(rl, run{0, 24}, run{1, 16}, run{0, 8}, run{1, 4}, run{0, 8}, run{1, 1})

	assert.Equal(t, []uint8{0, 0, 0, 1, 1, 0, 0}, rec.values())
	assert.Equal(t, 1, rec.resets, "the four sample run resets the synchronizer")

	for idx, b := range rec.bits {
		assert.Equal(t, idx == 4, b.Preamble, "bit %d", idx)
		assert.Equal(t, 10.0, b.RSSI)
	}
}

func TestRunLengthShortRun(t *testing.T) {
	for n := 1; n < minRun; n++ {
		rec := &recorder{}
		rl := newRunLength(identity, 8, rec)

		feed(rl, run{0, 16}, run{1, n}, run{0, 1})

		// Only the leading zeros are emitted, the short run is dropped.
		assert.Equal(t, []uint8{0, 0}, rec.values(), "run of %d", n)
		assert.Equal(t, 1, rec.resets, "run of %d", n)
	}
}

func TestRunLengthSpansProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chips := rapid.SliceOfN(rapid.IntRange(1, 6), 1, 64).Draw(t, "chips")

		rec := &recorder{}
		rl := newRunLength(identity, 8, rec)

		runs := []run{{0, 16}}
		expected := []uint8{0, 0}

		level := uint8(1)
		for _, k := range chips {
			runs = append(runs, run{level, 8 * k})
			for i := 0; i < k; i++ {
				expected = append(expected, level)
			}
			level ^= 1
		}
		runs = append(runs, run{level, 8})

		feed(rl, runs...)

		if rec.resets != 0 {
			t.Fatalf("unexpected reset")
		}
		if len(rec.bits) != len(expected) {
			t.Fatalf("expected %d bits got %d", len(expected), len(rec.bits))
		}
		for idx, v := range rec.values() {
			if v != expected[idx] {
				t.Fatalf("bit %d: expected %d got %d", idx, expected[idx], v)
			}
		}
	})
}

func TestRunLengthT1Deglitch(t *testing.T) {
	rec := &recorder{}
	rl := newRunLength(NewDeglitch(7, 3), 8, rec)

	chips := []int{1, 2, 1, 3, 4, 1, 1, 2}

	// The deglitch filter stretches ones by two samples and shortens zeros
	// by two, which the synchronizer takes back out.
	runs := []run{{0, 40}}
	expected := []uint8{0, 0, 0, 0, 0}

	level := uint8(1)
	for _, k := range chips {
		runs = append(runs, run{level, 8 * k})
		for i := 0; i < k; i++ {
			expected = append(expected, level)
		}
		level ^= 1
	}
	runs = append(runs, run{level, 16})

	feed(rl, runs...)

	assert.Zero(t, rec.resets)
	assert.Equal(t, expected, rec.values())
}

func TestRunLengthDeglitchNRZ(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chips := rapid.SliceOfN(rapid.Uint8Range(0, 1), 100, 3000).Draw(t, "chips")

		rec := &recorder{}
		rl := newRunLength(NewDeglitch(7, 3), 8, rec)

		// The leading run has no preceding edge, settle it before tracking.
		feed(rl, run{0, 40}, run{1, 8})
		rec.receiving = true

		levels := append([]uint8{0}, chips...)
		levels = append(levels, 1-levels[len(levels)-1])

		lo, hi := rl.BitLength(), rl.BitLength()
		for _, r := range chipRuns(levels, 8) {
			feed(rl, r)
			lo = math.Min(lo, rl.BitLength())
			hi = math.Max(hi, rl.BitLength())
		}
		feed(rl, run{1 - levels[len(levels)-1], 16})

		if rec.resets != 0 {
			t.Fatalf("unexpected reset")
		}
		if lo < 7.9 || hi > 8.1 {
			t.Fatalf("bit length drifted: [%.3f, %.3f]", lo, hi)
		}

		expected := append([]uint8{0, 0, 0, 0, 0, 1}, levels...)
		if got := rec.values(); !assert.ObjectsAreEqual(expected, got) {
			t.Fatalf("expected %d bits got %d", len(expected), len(got))
		}
	})
}

// chipRuns converts chip levels to sample runs with a fractional number of
// samples per chip.
func chipRuns(levels []uint8, spb float64) (runs []run) {
	for c, level := range levels {
		n := int(math.Round(float64(c+1)*spb)) - int(math.Round(float64(c)*spb))
		if len(runs) > 0 && runs[len(runs)-1].level == level {
			runs[len(runs)-1].n += n
			continue
		}
		runs = append(runs, run{level, n})
	}
	return runs
}

func TestRunLengthTracksSlowClock(t *testing.T) {
	const spb = 9.2

	rec := &recorder{receiving: true}
	rl := newRunLength(identity, 8, rec)

	var levels []uint8
	for i := 0; i < 800; i++ {
		levels = append(levels, uint8(i&1))
	}

	feed(rl, chipRuns(levels, spb)...)
	require.Zero(t, rec.resets)
	assert.InDelta(t, spb, rl.BitLength(), 0.5)

	// Runs of four chips are one bit too long without tracking.
	rec.bits = rec.bits[:0]
	levels = []uint8{0, 0, 0, 0, 1, 1, 1, 1, 0, 0, 0, 0, 1}
	feed(rl, chipRuns(levels, spb)...)

	// The first bit closes the last single chip run of the preamble.
	assert.Equal(t, []uint8{1, 0, 0, 0, 0, 1, 1, 1, 1, 0, 0, 0, 0}, rec.values())
}

func TestLevelAverageResetsOnDrift(t *testing.T) {
	rec := &recorder{}
	rl := NewRunLength(RunLengthConfig{
		SamplesPerBit: 24,
		Deglitch:      identity,
		AccessCode:    AccessCode{Code: 0x3, Bits: 4},
		Tracking:      LevelAverage,
	}, rec)

	feed(rl, run{0, 24})

	for _, n := range []int{13, 11, 10, 9, 8} {
		feed(rl, run{1, n}, run{0, n})
	}
	require.Zero(t, rec.resets)

	// The average for ones falls below half the nominal bit length.
	feed(rl, run{1, 7}, run{0, 1})
	assert.Equal(t, 1, rec.resets)
	assert.Equal(t, 24.0, rl.BitLength())
}

type clockStub struct {
	values []float64
	idx    int
}

func (c *clockStub) Filter(float64) float64 {
	v := c.values[c.idx%len(c.values)]
	c.idx++
	return v
}

func (c *clockStub) Reset() {}

func TestTime2SamplesAfterEdge(t *testing.T) {
	rec := &recorder{}
	tr := NewTime2(Time2Config{
		ClockFilter: &clockStub{values: []float64{-1, -1, 1, 1, 1, 1}},
		Lock:        2,
		AccessCode:  AccessCode{Code: 0x5, Bits: 3},
	}, rec)

	// Rising edges at 2, 8, 14, ..., bits are sampled two samples later.
	var expected []uint8
	for n := 0; n < 60; n++ {
		dphi := -1.0
		if n%12 == 4 {
			dphi = 1
		}
		if n%6 == 4 {
			expected = append(expected, uint8(1-(n/6)%2))
		}
		tr.Process(dphi, float64(n))
	}

	assert.Equal(t, expected, rec.values())
	for idx, b := range rec.bits {
		assert.Equal(t, float64(4+6*idx), b.RSSI)
		// 101 completes at the third bit and every second bit after it.
		assert.Equal(t, idx >= 2 && idx%2 == 0, b.Preamble, "bit %d", idx)
	}
}

func TestTime2Reset(t *testing.T) {
	rec := &recorder{}
	tr := NewTime2(Time2Config{
		ClockFilter: &clockStub{values: []float64{-1}},
		Lock:        2,
	}, rec)

	// A clock that never rises never samples.
	for n := 0; n < 10; n++ {
		tr.Process(1, 1)
	}
	assert.Empty(t, rec.bits)

	tr.Reset()
	assert.Equal(t, 1, rec.resets)
}

func TestRSSINormalisation(t *testing.T) {
	acc := NewRSSI(2, true)
	single := NewRSSI(2, false)

	var a, s float64
	for n := 0; n < 64; n++ {
		a = acc.Update(complex(12, 16))
		s = single.Update(complex(12, 16))
	}

	assert.InDelta(t, 10, a, 1e-9)
	assert.InDelta(t, 20, s, 1e-9)
}

func BenchmarkRunLength(b *testing.B) {
	rl := newRunLength(NewDeglitch(7, 3), 8, &recorder{})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		dphi := -0.1
		if i&8 != 0 {
			dphi = 0.1
		}
		rl.Process(dphi, 10)
	}
}
