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
	"github.com/bemasher/rtlwmbus/filter"
	"github.com/bemasher/rtlwmbus/frontend"
	"github.com/bemasher/rtlwmbus/protocol"
)

// Access codes ending at the first bit of the length field.
var (
	T1C1AccessCode = bitsync.AccessCode{Code: 0x543D, Bits: 16}
	S1AccessCode   = bitsync.AccessCode{Code: 0x547696, Bits: 24}
)

// S1 clock recovery band-pass quality factor.
const s1ClockQ = 4

func init() {
	protocol.RegisterParser("t1c1", NewT1C1Parser)
	protocol.RegisterParser("s1", NewS1Parser)
}

type T1C1Parser struct {
	cfg protocol.PacketConfig
}

func NewT1C1Parser() protocol.Parser {
	return T1C1Parser{protocol.PacketConfig{
		Protocol:          "t1c1",
		CenterFreq:        868950000,
		ChipRate:          100e3,
		AccessCode:        T1C1AccessCode,
		DeglitchTaps:      7,
		DeglitchThreshold: 3,
		Tracking:          bitsync.PIControl,
		ClockLock:         2,
		ClockFilter: func() filter.Filter {
			return filter.NewT1ClockFilter()
		},
	}}
}

func (p T1C1Parser) Cfg() protocol.PacketConfig {
	return p.cfg
}

func (p T1C1Parser) NewDecoder(algorithm string, threshold float64, emit func(protocol.Message)) bitsync.Sink {
	d := NewT1C1Decoder(algorithm, func(t Telegram) { emit(t) })
	d.Threshold = threshold
	return d
}

type S1Parser struct {
	cfg protocol.PacketConfig
}

func NewS1Parser() protocol.Parser {
	return S1Parser{protocol.PacketConfig{
		Protocol:          "s1",
		CenterFreq:        868300000,
		ChipRate:          32768,
		AccessCode:        S1AccessCode,
		DeglitchTaps:      6,
		DeglitchThreshold: 3,
		Tracking:          bitsync.LevelAverage,
		ClockLock:         6,
		ClockFilter: func() filter.Filter {
			return filter.BandPass(frontend.OutputRate, 32768, s1ClockQ)
		},
	}}
}

func (p S1Parser) Cfg() protocol.PacketConfig {
	return p.cfg
}

func (p S1Parser) NewDecoder(algorithm string, threshold float64, emit func(protocol.Message)) bitsync.Sink {
	d := NewS1Decoder(algorithm, func(t Telegram) { emit(t) })
	d.Threshold = threshold
	return d
}
