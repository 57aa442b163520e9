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

package demod

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExactAngle(t *testing.T) {
	assert.InDelta(t, 0.25, ExactAngle(1, 1), 1e-12)
	assert.InDelta(t, 1, ExactAngle(-1, 0), 1e-12)
	assert.InDelta(t, -0.5, ExactAngle(0, -1), 1e-12)
}

func TestApproximationsTrackExact(t *testing.T) {
	tolerance := map[string]float64{
		Approx:  0.005,
		Approx2: 0.003,
	}

	for name, tol := range tolerance {
		angle, err := NewAngle(name)
		require.NoError(t, err)

		for deg := -179.5; deg < 180; deg += 0.5 {
			rad := deg * math.Pi / 180
			x, y := math.Cos(rad), math.Sin(rad)

			for _, mag := range []float64{1e-3, 1, 1e3} {
				want := ExactAngle(x*mag, y*mag)
				got := angle(x*mag, y*mag)
				if math.Abs(want-got) > tol {
					t.Fatalf("%s: %0.1f degrees: exact %0.5f got %0.5f\n", name, deg, want, got)
				}
			}
		}
	}
}

func TestAnglesAgreeInSign(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float64Range(-1e4, 1e4).Draw(t, "x")
		y := rapid.Float64Range(-1e4, 1e4).Draw(t, "y")

		exact := ExactAngle(x, y)
		if y == 0 || math.Abs(exact) < 1e-3 {
			return
		}

		for _, name := range AngleNames {
			angle, _ := NewAngle(name)
			got := angle(x, y)

			// Bits are decided on dphi >= 0.
			if (got >= 0) != (exact >= 0) {
				t.Fatalf("%s: exact %g got %g", name, exact, got)
			}
			if name != Inaccurate && (got < -1 || got > 1) {
				t.Fatalf("%s: out of range: %g", name, got)
			}
		}
	})
}

func TestApprox2Axes(t *testing.T) {
	assert.Equal(t, 0.5, Approx2Angle(0, 2))
	assert.Equal(t, -0.5, Approx2Angle(0, -2))
	assert.Equal(t, 0.0, Approx2Angle(0, 0))
	assert.Equal(t, 1.0, Approx2Angle(-1, 0))
}

func TestUnknownAngle(t *testing.T) {
	_, err := NewAngle("cordic")
	assert.Error(t, err)
	assert.True(t, SignOnly(Inaccurate))
	assert.False(t, SignOnly(Exact))
}

func TestDiscriminatorRotation(t *testing.T) {
	const omega = 2 * math.Pi * 50e3 / 800e3

	d := NewDiscriminator(ExactAngle)
	d.Discriminate(1)

	for n := 1; n < 64; n++ {
		s := cmplx.Rect(40, omega*float64(n))
		assert.InDelta(t, omega/math.Pi, d.Discriminate(s), 1e-9)
	}

	// Negative rotation.
	d.Reset()
	d.Discriminate(1)
	assert.InDelta(t, -omega/math.Pi, d.Discriminate(cmplx.Rect(1, -omega)), 1e-9)
}

func TestDCBlocker(t *testing.T) {
	b := DCBlocker{K: DCBlockPole}

	assert.Equal(t, DCBlockPole, b.Filter(1))

	var y float64
	for n := 0; n < 20000; n++ {
		y = b.Filter(1)
	}
	assert.Less(t, math.Abs(y), 0.01)
}

func TestDemodulatorSettles(t *testing.T) {
	const omega = 2 * math.Pi * 50e3 / 800e3

	for _, dc := range []bool{false, true} {
		d := NewDemodulator(ExactAngle, dc)

		var dphi float64
		for n := 0; n < 16; n++ {
			dphi = d.Demodulate(cmplx.Rect(10, omega*float64(n)))
		}

		if dc {
			// The blocker is slow, a constant tone is barely attenuated
			// after a few samples.
			assert.InDelta(t, 0.125, dphi, 0.01)
		} else {
			assert.InDelta(t, 0.125, dphi, 1e-9)
		}
	}
}

func BenchmarkDiscriminator(b *testing.B) {
	for _, name := range AngleNames {
		angle, _ := NewAngle(name)
		b.Run(name, func(b *testing.B) {
			d := NewDiscriminator(angle)
			s := cmplx.Rect(1, 0.3)
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				d.Discriminate(s)
				s *= complex(math.Cos(0.3), math.Sin(0.3))
			}
		})
	}
}
