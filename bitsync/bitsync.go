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

// Package bitsync recovers the bit clock from demodulated samples. Two
// synchronizers are provided: a band-pass clock recovery sampling at a fixed
// offset from each clock edge, and a self-clocking run-length algorithm.
// Both push decided bits into a Sink.
package bitsync

import (
	"math/bits"
	"math/cmplx"

	"github.com/bemasher/rtlwmbus/filter"
)

// Bit is one decided symbol.
type Bit struct {
	Value uint8

	// Preamble is set when the access code ends at this bit.
	Preamble bool

	RSSI float64
}

// A Sink consumes decided bits, usually a frame decoder.
type Sink interface {
	Push(Bit)
	Reset()

	// Receiving reports whether the sink is inside a frame.
	Receiving() bool
}

// A Synchronizer turns demodulated samples into bits.
type Synchronizer interface {
	Process(dphi, rssi float64)
	Reset()
}

// AccessCode is matched against the most recent Bits decided bits with up
// to Errors bit errors.
type AccessCode struct {
	Code   uint32
	Bits   uint
	Errors int
}

func (ac AccessCode) Mask() uint32 {
	return uint32(1)<<ac.Bits - 1
}

func (ac AccessCode) Match(window uint32) bool {
	return bits.OnesCount32((window&ac.Mask())^ac.Code) <= ac.Errors
}

type correlator struct {
	code   AccessCode
	window uint32
}

func (c *correlator) shift(bit uint8) bool {
	c.window = c.window<<1 | uint32(bit)
	return c.code.Match(c.window)
}

// Deglitch maps the most recent raw bits to a stable level through a
// lookup table.
type Deglitch struct {
	table []uint8
	mask  uint32
	skew  int
}

// NewDeglitch builds a table over taps raw bits whose output is 1 when at
// least threshold of them are set.
func NewDeglitch(taps, threshold int) Deglitch {
	d := Deglitch{
		table: make([]uint8, 1<<uint(taps)),
		mask:  uint32(1)<<uint(taps) - 1,

		// Rising edges pass after threshold-1 samples, falling edges after
		// taps-threshold.
		skew: taps - 2*threshold + 1,
	}

	for idx := range d.table {
		if bits.OnesCount32(uint32(idx)) >= threshold {
			d.table[idx] = 1
		}
	}

	return d
}

func (d Deglitch) Level(raw uint32) uint8 {
	return d.table[raw&d.mask]
}

// Skew is the number of samples the table adds to a run of ones and takes
// from a run of zeros, for runs at least as long as the table.
func (d Deglitch) Skew() int {
	return d.skew
}

// Single pole coefficient applied to new magnitude samples.
const RSSIAlpha = 0.6789

// RSSI smooths the baseband magnitude. When the front end sums several
// filtered samples per output the magnitude is scaled back by the number of
// samples summed.
type RSSI struct {
	lp    filter.SinglePole
	scale float64
}

func NewRSSI(decimation int, accumulates bool) *RSSI {
	r := &RSSI{
		lp:    filter.SinglePole{Alpha: 1 - RSSIAlpha},
		scale: 1,
	}
	if accumulates {
		r.scale = float64(decimation)
	}
	return r
}

func (r *RSSI) Update(s complex128) float64 {
	return r.lp.Filter(cmplx.Abs(s)) / r.scale
}

func (r *RSSI) Reset() {
	r.lp.Reset()
}
