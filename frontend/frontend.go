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

// Package frontend conditions raw u8 I/Q samples: DC offset removal, an
// optional symmetric frequency shift for dual channel reception and a
// decimating low-pass filter per channel.
package frontend

import (
	"github.com/pkg/errors"

	"github.com/bemasher/rtlwmbus/filter"
)

// Decimated output rate, independent of the input rate.
const OutputRate = 800e3

// Low-pass strategies.
const (
	MovingAverage  = "mavg"
	FIR            = "fir"
	Polyphase      = "ppf"
	FIRFixed       = "firfp"
	PolyphaseFixed = "ppffp"
)

// LowPassNames lists accepted values for Config.LowPass.
var LowPassNames = []string{MovingAverage, FIR, Polyphase, FIRFixed, PolyphaseFixed}

// Moving average taps per unit of decimation, 12 taps at 1.6MS/s.
const movingAverageTaps = 6

type Config struct {
	Decimation int
	DCOffset   float64
	LowPass    string

	// Shift enables dual channel reception when non-zero. Channel 0 is
	// shifted down by Shift, channel 1 up by Shift.
	Shift float64
}

func (cfg Config) SampleRate() float64 {
	return OutputRate * float64(cfg.Decimation)
}

// Accumulates reports whether outputs are the sum of Decimation filtered
// samples rather than a single filtered sample.
func (cfg Config) Accumulates() bool {
	return cfg.LowPass == MovingAverage
}

func (cfg Config) Validate() error {
	if cfg.Decimation < 1 || cfg.Decimation > 16 {
		return errors.Errorf("decimation out of range [1, 16]: %d", cfg.Decimation)
	}

	if cfg.DCOffset != 127 && cfg.DCOffset != 127.5 {
		return errors.Errorf("dc offset must be 127 or 127.5: %g", cfg.DCOffset)
	}

	switch cfg.LowPass {
	case MovingAverage:
	case FIR, Polyphase, FIRFixed, PolyphaseFixed:
		// Coefficients are designed for 1.6MS/s.
		if cfg.Decimation != 2 {
			return errors.Errorf("low-pass %q requires decimation 2: %d", cfg.LowPass, cfg.Decimation)
		}
	default:
		return errors.Errorf("unknown low-pass: %q", cfg.LowPass)
	}

	if cfg.Shift < 0 || cfg.Shift >= cfg.SampleRate()/2 {
		return errors.Errorf("shift out of range [0, %g): %g", cfg.SampleRate()/2, cfg.Shift)
	}

	return nil
}

type lowPass interface {
	filter(x float64) float64
}

// Input samples are integral, or half-integral with a 127.5 offset, so the
// integer moving average is fed doubled samples when needed and its output
// scaled back.
type intAverage struct {
	*filter.MovingAverage
	scale float64
}

func (m intAverage) filter(x float64) float64 {
	return m.Filter(int(x*m.scale)) / m.scale
}

type floatFilter struct {
	filter.Filter
}

func (f floatFilter) filter(x float64) float64 {
	return f.Filter.Filter(x)
}

type fixedFIR struct {
	*filter.FIRFixed
}

func (f fixedFIR) filter(x float64) float64 {
	return f.Filter(filter.FixedFromFloat(x)).Float()
}

type fixedPPF struct {
	*filter.PPFFixed
}

func (f fixedPPF) filter(x float64) float64 {
	return f.Filter(filter.FixedFromFloat(x)).Float()
}

func newLowPass(cfg Config) lowPass {
	switch cfg.LowPass {
	case FIR:
		return floatFilter{filter.NewFIR(filter.LowPass1600k)}
	case Polyphase:
		return floatFilter{filter.NewPPF(filter.PolyphaseSplit(filter.LowPass1600k, cfg.Decimation))}
	case FIRFixed:
		return fixedFIR{filter.NewFIRFixed(filter.LowPass1600k)}
	case PolyphaseFixed:
		return fixedPPF{filter.NewPPFFixed(filter.PolyphaseSplit(filter.LowPass1600k, cfg.Decimation))}
	}

	taps := movingAverageTaps * cfg.Decimation
	if cfg.Shift != 0 {
		return floatFilter{filter.NewMovingAverageF(taps)}
	}

	scale := 1.0
	if cfg.DCOffset != float64(int(cfg.DCOffset)) {
		scale = 2
	}

	return intAverage{filter.NewMovingAverage(taps), scale}
}

type channel struct {
	i, q lowPass
	acc  complex128
	out  []complex128
}

func (ch *channel) push(i, q float64, accumulate bool) {
	s := complex(ch.i.filter(i), ch.q.filter(q))
	if accumulate {
		ch.acc += s
	} else {
		ch.acc = s
	}
}

func (ch *channel) emit(accumulate bool) {
	ch.out = append(ch.out, ch.acc)
	if accumulate {
		ch.acc = 0
	}
}

// FrontEnd converts blocks of interleaved u8 I/Q into decimated complex
// basebands, one per channel.
type FrontEnd struct {
	cfg        Config
	accumulate bool

	shifter  *Shifter
	channels []*channel

	// Samples pushed since the last output. Carried across blocks.
	count int
}

func New(cfg Config) (*FrontEnd, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "frontend")
	}

	fe := &FrontEnd{
		cfg:        cfg,
		accumulate: cfg.Accumulates(),
	}

	n := 1
	if cfg.Shift != 0 {
		fe.shifter = NewShifter(cfg.SampleRate(), cfg.Shift)
		n = 2
	}

	for idx := 0; idx < n; idx++ {
		fe.channels = append(fe.channels, &channel{
			i: newLowPass(cfg),
			q: newLowPass(cfg),
		})
	}

	return fe, nil
}

func (fe *FrontEnd) Cfg() Config {
	return fe.cfg
}

// Channels returns 1, or 2 when shifting.
func (fe *FrontEnd) Channels() int {
	return len(fe.channels)
}

// Process consumes a block of interleaved I/Q bytes. The returned slices
// are owned by the front end and overwritten by the next call.
func (fe *FrontEnd) Process(block []byte) [][]complex128 {
	for _, ch := range fe.channels {
		ch.out = ch.out[:0]
	}

	out := make([][]complex128, len(fe.channels))

	for idx := 0; idx+1 < len(block); idx += 2 {
		i := float64(block[idx]) - fe.cfg.DCOffset
		q := float64(block[idx+1]) - fe.cfg.DCOffset

		if fe.shifter != nil {
			down, up := fe.shifter.Mix(i, q)
			fe.channels[0].push(real(down), imag(down), fe.accumulate)
			fe.channels[1].push(real(up), imag(up), fe.accumulate)
		} else {
			fe.channels[0].push(i, q, fe.accumulate)
		}

		fe.count++
		if fe.count == fe.cfg.Decimation {
			fe.count = 0
			for _, ch := range fe.channels {
				ch.emit(fe.accumulate)
			}
		}
	}

	for idx, ch := range fe.channels {
		out[idx] = ch.out
	}

	return out
}
