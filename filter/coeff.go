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

// LowPass1600k is a 23 tap Butterworth-derived low-pass for 1.6MS/s with a
// 160kHz passband edge and 200kHz stopband edge. Unity gain at DC.
var LowPass1600k = []float64{
	0.000140535927, 1.102280392e-05, 0.0001309279731, 0.001356012537,
	0.00551787474, 0.01499414005, 0.03160167988, 0.05525973093,
	0.08315031015, 0.1099887688, 0.1295143636, 0.1366692652,
	0.1295143636, 0.1099887688, 0.08315031015, 0.05525973093,
	0.03160167988, 0.01499414005, 0.00551787474, 0.001356012537,
	0.0001309279731, 1.102280392e-05, 0.000140535927,
}

// PostFilter800k is the low-pass applied to demodulated samples at 800kS/s,
// 100kHz passband.
var PostFilter800k = []float64{
	0.04421550009, 0.4557844999, 0.4557844999, 0.04421550009,
}

// SinglePole1600k is the alpha of a one pole low-pass at 1.6MS/s with a
// -3dB point near 56kHz.
const SinglePole1600k = 0.80259

// T1ClockGain and T1ClockSections describe a 6th order Chebyshev type I
// band-pass at 800kS/s, 98kHz to 102kHz passband and 90kHz/110kHz stopband
// edges. It recovers the 100kHz chip clock from the squared discriminator
// output.
const T1ClockGain = 1.874981046e-06

var T1ClockSections = []Biquad{
	{B: [3]float64{1, 1.999994649, 0.9999946492}, A: [3]float64{1, -1.387139203, 0.9921518712}},
	{B: [3]float64{1, -1.99999482, 0.9999948196}, A: [3]float64{1, -1.403492665, 0.9845934971}},
	{B: [3]float64{1, 1.703868036e-07, -1.000010531}, A: [3]float64{1, -1.430055639, 0.9923856172}},
}

func NewT1ClockFilter() *IIR {
	return NewIIR(T1ClockGain, T1ClockSections...)
}
