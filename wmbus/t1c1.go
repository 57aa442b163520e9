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
	"time"

	"github.com/bemasher/rtlwmbus/bitsync"
	"github.com/bemasher/rtlwmbus/crc"
)

// CaptureThreshold is the signal strength below which a frame in progress is
// assumed to have collided with another and is abandoned.
const CaptureThreshold = 5

type state int

const (
	stateIdle state = iota
	stateLengthHigh
	stateLengthLow
	stateDataHigh
	stateDataLow
	stateC1Trailer
	stateC1Length
	stateC1Data
	stateDone
)

// Bits per field in each state.
var fieldWidth = [...]int{
	stateLengthHigh: 6,
	stateLengthLow:  6,
	stateDataHigh:   6,
	stateDataLow:    6,
	stateC1Trailer:  4,
	stateC1Length:   8,
	stateC1Data:     8,
}

// receiver holds what is common to the frame decoders.
type receiver struct {
	algorithm string
	emit      func(Telegram)

	// Threshold overrides CaptureThreshold.
	Threshold float64

	// Now stamps completed frames, defaults to time.Now.
	Now func() time.Time

	frame   frameBuffer
	total   int
	rssiPre float64
	stamp   time.Time
}

func newReceiver(algorithm string, emit func(Telegram)) receiver {
	return receiver{
		algorithm: algorithm,
		emit:      emit,
		Threshold: CaptureThreshold,
		Now:       time.Now,
	}
}

func (r *receiver) clear() {
	r.frame.reset()
	r.total = 0
	r.rssiPre = 0
	r.stamp = time.Time{}
}

// begin starts a frame with its L-field and expected length.
func (r *receiver) begin(l uint8, total int) {
	r.frame.reset()
	r.frame.append(l)
	r.total = total
}

// complete reports whether the frame has reached its declared length.
func (r *receiver) complete() bool {
	if r.frame.Len() < r.total {
		return false
	}
	r.stamp = r.Now().UTC()
	return true
}

func (r *receiver) telegram(mode Mode, format crc.Format, rssiEnd float64) Telegram {
	frame := r.frame.bytes()
	if len(frame) > r.total {
		frame = frame[:r.total]
	}

	return Telegram{
		Mode:         mode,
		Frame:        format,
		Algorithm:    r.algorithm,
		CRCOk:        format.Check(frame),
		SymbolOK:     true,
		Time:         r.stamp,
		RSSIPreamble: r.rssiPre,
		RSSIEnd:      rssiEnd,
		Serial:       crc.Serial(frame),
		Payload:      format.Strip(frame),
	}
}

// T1C1Decoder assembles T1 frames, 3-out-of-6 coded, and C1 frames, NRZ
// coded with a format announcing sync word.
type T1C1Decoder struct {
	receiver

	state  state
	count  int
	raw    uint32
	mode   uint32
	nibble uint8

	symbolErr bool
	c1        bool
	format    crc.Format
}

var _ bitsync.Sink = (*T1C1Decoder)(nil)

func NewT1C1Decoder(algorithm string, emit func(Telegram)) *T1C1Decoder {
	return &T1C1Decoder{receiver: newReceiver(algorithm, emit)}
}

func (d *T1C1Decoder) Reset() {
	d.clear()
	d.state = stateIdle
	d.count = 0
	d.raw = 0
	d.mode = 0
	d.nibble = 0
	d.symbolErr = false
	d.c1 = false
	d.format = crc.FormatA
}

func (d *T1C1Decoder) Receiving() bool {
	return d.state != stateIdle
}

func (d *T1C1Decoder) Push(b bitsync.Bit) {
	d.step(b)

	switch d.state {
	case stateIdle:
	case stateDone:
		mode := T1
		if d.c1 {
			mode = C1
		}

		t := d.telegram(mode, d.format, b.RSSI)
		t.SymbolOK = !d.symbolErr
		d.emit(t)
		d.Reset()
	default:
		if b.RSSI < d.Threshold {
			d.Reset()
		}
	}
}

func (d *T1C1Decoder) step(b bitsync.Bit) {
	if d.state == stateIdle {
		if b.Preamble {
			d.state = stateLengthHigh
			d.count = 0
		}
		return
	}

	if d.count == 0 {
		d.raw = 0
		if d.state == stateLengthHigh {
			d.rssiPre = b.RSSI
		}
	}

	d.raw = d.raw<<1 | uint32(b.Value&1)
	d.count++
	if d.count < fieldWidth[d.state] {
		return
	}
	d.count = 0

	switch d.state {
	case stateLengthHigh:
		d.mode = d.raw
		d.nibble = highNibble[d.raw]
		d.symbolErr = false
		d.c1 = false
		d.state = stateLengthLow

	case stateLengthLow:
		d.mode = d.mode<<6 | d.raw
		low := lowNibble[d.raw]

		if d.nibble == invalid || low == invalid {
			switch d.mode {
			case C1ModeA:
				d.format = crc.FormatA
				d.state = stateC1Trailer
			case C1ModeB:
				d.format = crc.FormatB
				d.state = stateC1Trailer
			default:
				d.Reset()
			}
			return
		}

		l := d.nibble | low
		d.format = crc.FormatA
		d.begin(l, FrameLength(l))
		d.state = stateDataHigh

	case stateDataHigh:
		d.nibble = highNibble[d.raw]
		if d.nibble == invalid {
			d.symbolErr = true
		}
		d.state = stateDataLow

	case stateDataLow:
		low := lowNibble[d.raw]
		if low == invalid {
			d.symbolErr = true
		}
		d.push(d.nibble|low, stateDataHigh)

	case stateC1Trailer:
		d.mode = d.mode<<4 | d.raw
		if d.raw != C1Trailer {
			d.Reset()
			return
		}
		d.c1 = true
		d.state = stateC1Length

	case stateC1Length:
		l := uint8(d.raw)
		total := FrameLength(l)
		if d.format == crc.FormatB {
			total = int(l) + 1
		}
		d.begin(l, total)
		d.state = stateC1Data

	case stateC1Data:
		d.push(uint8(d.raw), stateC1Data)
	}
}

// push appends a data byte and either continues in next or finishes the
// frame.
func (d *T1C1Decoder) push(v uint8, next state) {
	if !d.frame.append(v) {
		d.Reset()
		return
	}

	if d.complete() {
		d.state = stateDone
		return
	}
	d.state = next
}
