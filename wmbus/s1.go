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

package wmbus

import (
	"github.com/bemasher/rtlwmbus/bitsync"
	"github.com/bemasher/rtlwmbus/crc"
)

// Chips per byte of a Manchester coded field.
const s1FieldWidth = 16

// S1Decoder assembles Manchester coded S1 frames. An invalid chip pair
// abandons the frame.
type S1Decoder struct {
	receiver

	state state
	count int
	chip  uint8
	raw   uint8
}

var _ bitsync.Sink = (*S1Decoder)(nil)

func NewS1Decoder(algorithm string, emit func(Telegram)) *S1Decoder {
	return &S1Decoder{receiver: newReceiver(algorithm, emit)}
}

func (d *S1Decoder) Reset() {
	d.clear()
	d.state = stateIdle
	d.count = 0
	d.chip = 0
	d.raw = 0
}

func (d *S1Decoder) Receiving() bool {
	return d.state != stateIdle
}

func (d *S1Decoder) Push(b bitsync.Bit) {
	d.step(b)

	switch d.state {
	case stateIdle:
	case stateDone:
		d.emit(d.telegram(S1, crc.FormatA, b.RSSI))
		d.Reset()
	default:
		if b.RSSI < d.Threshold {
			d.Reset()
		}
	}
}

// S1 frames have one state for the L-field and one for data bytes, each
// spanning 16 chips.
func (d *S1Decoder) step(b bitsync.Bit) {
	if d.state == stateIdle {
		if b.Preamble {
			d.state = stateLengthLow
			d.count = 0
		}
		return
	}

	if d.count == 0 {
		d.raw = 0
		if d.state == stateLengthLow {
			d.rssiPre = b.RSSI
		}
	}

	d.count++
	if d.count&1 == 1 {
		d.chip = b.Value & 1
		return
	}

	v := manchester[d.chip<<1|b.Value&1]
	if v == invalid {
		d.Reset()
		return
	}
	d.raw = d.raw<<1 | v

	if d.count < s1FieldWidth {
		return
	}
	d.count = 0

	switch d.state {
	case stateLengthLow:
		d.begin(d.raw, FrameLength(d.raw))
		d.state = stateDataLow
	case stateDataLow:
		if !d.frame.append(d.raw) {
			d.Reset()
			return
		}
		if d.complete() {
			d.state = stateDone
		}
	}
}
