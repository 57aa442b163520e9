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

// MovingAverage keeps an integer running sum so each update is exact and
// costs one subtraction and one addition regardless of length.
type MovingAverage struct {
	hist []int
	idx  int
	sum  int
}

func NewMovingAverage(length int) *MovingAverage {
	if length < 1 {
		panic("filter: moving average length must be positive")
	}
	return &MovingAverage{hist: make([]int, length)}
}

func (m *MovingAverage) Filter(x int) float64 {
	m.sum += x - m.hist[m.idx]
	m.hist[m.idx] = x

	m.idx++
	if m.idx == len(m.hist) {
		m.idx = 0
	}

	return float64(m.sum) / float64(len(m.hist))
}

func (m *MovingAverage) Reset() {
	for i := range m.hist {
		m.hist[i] = 0
	}
	m.idx = 0
	m.sum = 0
}

// MovingAverageF is the floating point counterpart of MovingAverage, for
// inputs that are no longer integral (after frequency shifting). Rounding
// error accumulates in the running sum, so it is recomputed every time the
// history wraps.
type MovingAverageF struct {
	hist []float64
	idx  int
	sum  float64
}

func NewMovingAverageF(length int) *MovingAverageF {
	if length < 1 {
		panic("filter: moving average length must be positive")
	}
	return &MovingAverageF{hist: make([]float64, length)}
}

func (m *MovingAverageF) Filter(x float64) float64 {
	m.sum += x - m.hist[m.idx]
	m.hist[m.idx] = x

	m.idx++
	if m.idx == len(m.hist) {
		m.idx = 0

		m.sum = 0
		for _, v := range m.hist {
			m.sum += v
		}
	}

	return m.sum / float64(len(m.hist))
}

func (m *MovingAverageF) Reset() {
	for i := range m.hist {
		m.hist[i] = 0
	}
	m.idx = 0
	m.sum = 0
}
