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

const fixedFracBits = 16

// Fixed is a saturating Q16.16 number. All arithmetic clamps to the int32
// range instead of wrapping.
type Fixed int32

const (
	FixedOne Fixed = 1 << fixedFracBits
	FixedMax Fixed = math.MaxInt32
	FixedMin Fixed = math.MinInt32
)

func saturate(v int64) Fixed {
	switch {
	case v > math.MaxInt32:
		return FixedMax
	case v < math.MinInt32:
		return FixedMin
	}
	return Fixed(v)
}

func FixedFromFloat(f float64) Fixed {
	v := math.Round(f * (1 << fixedFracBits))
	switch {
	case v >= math.MaxInt32:
		return FixedMax
	case v <= math.MinInt32:
		return FixedMin
	}
	return Fixed(v)
}

func FixedFromInt(i int) Fixed {
	return saturate(int64(i) << fixedFracBits)
}

func (a Fixed) Add(b Fixed) Fixed {
	return saturate(int64(a) + int64(b))
}

func (a Fixed) Sub(b Fixed) Fixed {
	return saturate(int64(a) - int64(b))
}

func (a Fixed) Mul(b Fixed) Fixed {
	return saturate((int64(a) * int64(b)) >> fixedFracBits)
}

func (a Fixed) Float() float64 {
	return float64(a) / (1 << fixedFracBits)
}

// FIRFixed mirrors FIR in fixed point.
type FIRFixed struct {
	b    []Fixed
	hist []Fixed
	idx  int
}

func NewFIRFixed(b []float64) *FIRFixed {
	if len(b) == 0 {
		panic("filter: fir requires at least one coefficient")
	}

	f := &FIRFixed{
		b:    make([]Fixed, len(b)),
		hist: make([]Fixed, len(b)),
	}
	for i, v := range b {
		f.b[i] = FixedFromFloat(v)
	}

	return f
}

func (f *FIRFixed) Filter(x Fixed) (y Fixed) {
	f.hist[f.idx] = x

	j := f.idx
	for _, b := range f.b {
		y = y.Add(b.Mul(f.hist[j]))
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

func (f *FIRFixed) Reset() {
	for i := range f.hist {
		f.hist[i] = 0
	}
	f.idx = 0
}

// PPFFixed mirrors PPF in fixed point.
type PPFFixed struct {
	phases []*FIRFixed
	phase  int
	sum    Fixed
}

func NewPPFFixed(b [][]float64) *PPFFixed {
	if len(b) == 0 {
		panic("filter: ppf requires at least one phase")
	}

	p := &PPFFixed{phases: make([]*FIRFixed, len(b))}
	for i, row := range b {
		p.phases[i] = NewFIRFixed(row)
	}

	return p
}

func (p *PPFFixed) Filter(x Fixed) Fixed {
	if p.phase == len(p.phases) {
		p.phase = 0
		p.sum = 0
	}

	p.sum = p.sum.Add(p.phases[p.phase].Filter(x))
	p.phase++

	return p.sum
}

func (p *PPFFixed) Reset() {
	for _, f := range p.phases {
		f.Reset()
	}
	p.phase = 0
	p.sum = 0
}
