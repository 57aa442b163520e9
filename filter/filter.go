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

// Package filter implements the sample-at-a-time filters used by the
// receive chain. Every filter owns its coefficients and history; nothing is
// shared between instances, so one instance is needed per channel.
package filter

// A Filter consumes one sample and returns one filtered sample.
type Filter interface {
	Filter(x float64) float64
	Reset()
}

// FIR is a direct form FIR filter over a circular history.
type FIR struct {
	b    []float64
	hist []float64
	idx  int
}

// NewFIR copies b, the caller may reuse it.
func NewFIR(b []float64) *FIR {
	if len(b) == 0 {
		panic("filter: fir requires at least one coefficient")
	}

	coeffs := make([]float64, len(b))
	copy(coeffs, b)

	return &FIR{b: coeffs, hist: make([]float64, len(b))}
}

// Filter pushes x into the history, overwriting the oldest sample, and
// returns sum(b[k] * x[n-k]).
func (f *FIR) Filter(x float64) (y float64) {
	f.hist[f.idx] = x

	j := f.idx
	for _, b := range f.b {
		y += b * f.hist[j]
		if j == 0 {
			j = len(f.hist)
		}
		j--
	}

	f.idx++
	if f.idx == len(f.hist) {
		f.idx = 0
	}

	return y
}

func (f *FIR) Reset() {
	for i := range f.hist {
		f.hist[i] = 0
	}
	f.idx = 0
}

// Biquad holds the coefficients of one second order section, normalised so
// that A[0] == 1.
type Biquad struct {
	B [3]float64
	A [3]float64
}

// IIR is a cascade of direct form II biquads followed by a scalar gain.
type IIR struct {
	gain     float64
	sections []Biquad
	hist     [][3]float64
}

func NewIIR(gain float64, sections ...Biquad) *IIR {
	if len(sections) == 0 {
		panic("filter: iir requires at least one section")
	}

	s := make([]Biquad, len(sections))
	copy(s, sections)

	return &IIR{
		gain:     gain,
		sections: s,
		hist:     make([][3]float64, len(s)),
	}
}

func (f *IIR) Filter(x float64) float64 {
	for i := range f.sections {
		s := &f.sections[i]
		h := &f.hist[i]

		h[0] = x - (s.A[1]*h[1] + s.A[2]*h[2])
		x = s.B[0]*h[0] + s.B[1]*h[1] + s.B[2]*h[2]

		h[2] = h[1]
		h[1] = h[0]
	}

	return x * f.gain
}

func (f *IIR) Reset() {
	for i := range f.hist {
		f.hist[i] = [3]float64{}
	}
}

// Sections returns the number of biquads in the cascade.
func (f *IIR) Sections() int {
	return len(f.sections)
}

// PPF is a polyphase decimating filter. Each input sample is routed to the
// next phase's sub-filter and the phase outputs are summed. The sum is
// complete once every phase has seen a sample, and restarts on the sample
// after that.
type PPF struct {
	phases []*FIR
	phase  int
	sum    float64
}

// NewPPF builds one FIR per row of b. Row i filters the i-th sample of
// every cycle.
func NewPPF(b [][]float64) *PPF {
	if len(b) == 0 {
		panic("filter: ppf requires at least one phase")
	}

	p := &PPF{phases: make([]*FIR, len(b))}
	for i, row := range b {
		p.phases[i] = NewFIR(row)
	}

	return p
}

func (p *PPF) Filter(x float64) float64 {
	if p.phase == len(p.phases) {
		p.phase = 0
		p.sum = 0
	}

	p.sum += p.phases[p.phase].Filter(x)
	p.phase++

	return p.sum
}

func (p *PPF) Reset() {
	for _, f := range p.phases {
		f.Reset()
	}
	p.phase = 0
	p.sum = 0
}

// SinglePole is a one pole low-pass: y = alpha*(y-x) + x.
type SinglePole struct {
	Alpha float64
	y     float64
}

func (s *SinglePole) Filter(x float64) float64 {
	s.y = s.Alpha*(s.y-x) + x
	return s.y
}

func (s *SinglePole) Reset() {
	s.y = 0
}
