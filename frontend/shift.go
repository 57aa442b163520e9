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

package frontend

import "math"

// Frequency resolution of the shift lookup tables.
const shiftResolution = 1e3

// Shifter mixes a complex input with +shift and -shift at once. Both
// products share the same four real multiplies, only the signs of the
// final sums differ.
type Shifter struct {
	cos  []float64
	nsin []float64

	step int
	idx  int
}

// NewShifter rounds shift to the nearest multiple of 1kHz.
func NewShifter(sampleRate, shift float64) *Shifter {
	n := int(sampleRate / shiftResolution)

	s := &Shifter{
		cos:  make([]float64, n),
		nsin: make([]float64, n),
		step: int(math.Round(shift/shiftResolution)) % n,
	}

	for idx := range s.cos {
		sin, cos := math.Sincos(2 * math.Pi * float64(idx) / float64(n))
		s.cos[idx] = cos
		s.nsin[idx] = -sin
	}

	return s
}

// Mix returns the input shifted down by the shift frequency and shifted up
// by it.
func (s *Shifter) Mix(i, q float64) (down, up complex128) {
	c, z := s.cos[s.idx], s.nsin[s.idx]

	s.idx += s.step
	if s.idx >= len(s.cos) {
		s.idx -= len(s.cos)
	}

	ix, qx := i*c, q*c
	iz, qz := i*z, q*z

	down = complex(ix-qz, qx+iz)
	up = complex(ix+qz, qx-iz)

	return
}
