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

import "github.com/bemasher/rtlwmbus/filter"

type Time2Config struct {
	// ClockFilter is a band-pass centred on the chip rate.
	ClockFilter filter.Filter

	// Lock is the number of samples after a rising clock edge at which the
	// data bit is sampled.
	Lock int

	AccessCode AccessCode
}

// Time2 squares the demodulated signal, band-pass filters it around the
// chip rate and slices the result into a clock. Each rising edge arms a
// counter and the bit is sampled when it expires.
type Time2 struct {
	bp        filter.Filter
	threshold int
	sink      Sink
	corr      correlator

	clock bool
	lock  int
}

func NewTime2(cfg Time2Config, sink Sink) *Time2 {
	t := &Time2{
		bp:        cfg.ClockFilter,
		threshold: cfg.Lock,
		sink:      sink,
		corr:      correlator{code: cfg.AccessCode},
	}
	t.restart()
	return t
}

func (t *Time2) restart() {
	t.bp.Reset()
	t.clock = false
	// Disarmed until the first rising edge.
	t.lock = t.threshold + 1
	t.corr.window = 0
}

func (t *Time2) Reset() {
	t.restart()
	t.sink.Reset()
}

func (t *Time2) Process(dphi, rssi float64) {
	clock := t.bp.Filter(dphi*dphi) >= 0

	switch {
	case clock && !t.clock:
		t.lock = 1
	case clock == t.clock && t.lock < t.threshold:
		t.lock++
	case t.lock == t.threshold:
		t.lock++

		var bit uint8
		if dphi >= 0 {
			bit = 1
		}

		t.sink.Push(Bit{
			Value:    bit,
			Preamble: t.corr.shift(bit),
			RSSI:     rssi,
		})
	}

	t.clock = clock
}
