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

package filter

import "math"

// BandPass designs a single biquad band-pass with 0dB gain at f0 and the
// given quality factor.
func BandPass(sampleRate, f0, q float64) *IIR {
	w0 := 2 * math.Pi * f0 / sampleRate
	sin, cos := math.Sincos(w0)
	alpha := sin / (2 * q)

	a0 := 1 + alpha

	return NewIIR(1, Biquad{
		B: [3]float64{alpha / a0, 0, -alpha / a0},
		A: [3]float64{1, -2 * cos / a0, (1 - alpha) / a0},
	})
}

// PolyphaseSplit distributes the taps of a prototype low-pass across
// phases. Phase p of the result filters the p-th sample of each cycle,
// which lines up with prototype taps p+1, p+1+phases, ... counted from the
// end of the cycle. Short rows are zero padded.
func PolyphaseSplit(b []float64, phases int) [][]float64 {
	rows := (len(b) + phases - 1) / phases

	out := make([][]float64, phases)
	for p := range out {
		out[p] = make([]float64, rows)
	}

	for k, v := range b {
		// The last sample of a cycle sees tap 0, so tap k belongs to the
		// phase that is k samples earlier in the cycle.
		p := (phases - 1 - k%phases) % phases
		out[p][k/phases] = v
	}

	return out
}
