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

// Package demod implements the polar discriminator FM demodulator.
package demod

import (
	"math/cmplx"

	"github.com/bemasher/rtlwmbus/filter"
)

// Discriminator outputs the phase difference between consecutive samples
// as a fraction of pi.
type Discriminator struct {
	angle AngleFunc
	prev  complex128
}

func NewDiscriminator(angle AngleFunc) *Discriminator {
	return &Discriminator{angle: angle}
}

func (d *Discriminator) Discriminate(s complex128) float64 {
	y := s * cmplx.Conj(d.prev)
	d.prev = s
	return d.angle(real(y), imag(y))
}

func (d *Discriminator) Reset() {
	d.prev = 0
}

// Pole of the demodulated signal DC blocker.
const DCBlockPole = 0.9995

// DCBlocker is a single pole high-pass: y[n] = k*(x[n]-x[n-1]) + k*y[n-1].
type DCBlocker struct {
	K      float64
	x1, y1 float64
}

func (b *DCBlocker) Filter(x float64) float64 {
	y := b.K*(x-b.x1) + b.K*b.y1
	b.x1 = x
	b.y1 = y
	return y
}

func (b *DCBlocker) Reset() {
	b.x1 = 0
	b.y1 = 0
}

// Demodulator chains the discriminator, the post-filter and an optional DC
// blocker.
type Demodulator struct {
	disc *Discriminator
	post filter.Filter
	dc   filter.Filter
}

func NewDemodulator(angle AngleFunc, dcRemoval bool) *Demodulator {
	d := &Demodulator{
		disc: NewDiscriminator(angle),
		post: filter.NewFIR(filter.PostFilter800k),
	}
	if dcRemoval {
		d.dc = &DCBlocker{K: DCBlockPole}
	}
	return d
}

func (d *Demodulator) Demodulate(s complex128) float64 {
	dphi := d.post.Filter(d.disc.Discriminate(s))
	if d.dc != nil {
		dphi = d.dc.Filter(dphi)
	}
	return dphi
}

func (d *Demodulator) Reset() {
	d.disc.Reset()
	d.post.Reset()
	if d.dc != nil {
		d.dc.Reset()
	}
}
