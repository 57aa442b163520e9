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

package protocol

import (
	"math"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bemasher/rtlwmbus/bitsync"
	"github.com/bemasher/rtlwmbus/demod"
	"github.com/bemasher/rtlwmbus/filter"
	"github.com/bemasher/rtlwmbus/frontend"
)

// Bit synchronizer tags carried by decoded messages.
const (
	RunLengthTag = "rla"
	Time2Tag     = "t2a"
)

// PacketConfig specifies packet-specific radio configuration.
type PacketConfig struct {
	Protocol   string
	CenterFreq uint32
	ChipRate   float64

	AccessCode bitsync.AccessCode

	// Run-length synchronizer.
	DeglitchTaps, DeglitchThreshold int
	Tracking                        bitsync.Tracking

	// Time-2 synchronizer.
	ClockLock   int
	ClockFilter func() filter.Filter
}

// SamplesPerChip at the decimated rate.
func (cfg PacketConfig) SamplesPerChip() float64 {
	return frontend.OutputRate / cfg.ChipRate
}

// Config selects protocols and the processing applied to them.
type Config struct {
	// FrontEnd.Shift is replaced in dual mode by half the distance between
	// both center frequencies.
	FrontEnd frontend.Config

	Angle     string
	DCRemoval bool

	RunLength bool
	Time2     bool

	Protocols []string

	// Dual receives two protocols on different frequencies at once, one
	// per front end channel.
	Dual bool

	// Threshold is the signal strength below which frames are abandoned.
	Threshold float64

	// AccessErrors overrides the tolerated access code bit errors per
	// protocol.
	AccessErrors map[string]int
}

func (cfg Config) Validate() error {
	if err := cfg.FrontEnd.Validate(); err != nil {
		return err
	}

	if _, err := demod.NewAngle(cfg.Angle); err != nil {
		return err
	}

	if len(cfg.Protocols) == 0 {
		return errors.New("no protocol enabled")
	}

	seen := map[string]bool{}
	for _, name := range cfg.Protocols {
		if _, err := NewParser(name); err != nil {
			return err
		}
		if seen[name] {
			return errors.Errorf("protocol given twice: %q", name)
		}
		seen[name] = true
	}

	if !cfg.RunLength && !cfg.Time2 {
		return errors.New("no bit synchronizer enabled")
	}

	if cfg.Dual && len(cfg.Protocols) != 2 {
		return errors.Errorf("dual mode requires two protocols: %s", strings.Join(cfg.Protocols, ","))
	}

	// A single channel is tuned to one protocol's frequency.
	if !cfg.Dual && len(cfg.Protocols) > 1 {
		return errors.Errorf("protocols on separate frequencies require dual mode: %s", strings.Join(cfg.Protocols, ","))
	}

	if cfg.Time2 && demod.SignOnly(cfg.Angle) {
		return errors.Errorf("angle strategy %q cannot drive time-2 clock recovery", cfg.Angle)
	}

	if cfg.Threshold < 0 {
		return errors.Errorf("negative capture threshold: %g", cfg.Threshold)
	}

	for name, n := range cfg.AccessErrors {
		if n < 0 {
			return errors.Errorf("negative access code errors for %q: %d", name, n)
		}
	}

	return nil
}

// stage is one bit synchronizer and the frame decoder it feeds.
type stage struct {
	algorithm string
	sync      bitsync.Synchronizer
	msgs      []Message
}

func (s *stage) collect(msg Message) {
	s.msgs = append(s.msgs, msg)
}

// chain demodulates one front end channel for one protocol.
type chain struct {
	cfg     PacketConfig
	channel int

	demod  *demod.Demodulator
	rssi   *bitsync.RSSI
	stages []*stage
}

func (ch *chain) run(samples []complex128, wg *sync.WaitGroup) {
	defer wg.Done()

	for _, s := range samples {
		dphi := ch.demod.Demodulate(s)
		rssi := ch.rssi.Update(s)
		for _, st := range ch.stages {
			st.sync.Process(dphi, rssi)
		}
	}
}

// Decoder runs the front end and every protocol chain over sample blocks.
type Decoder struct {
	Cfg Config
	wg  *sync.WaitGroup

	fe         *frontend.FrontEnd
	chains     []*chain
	centerFreq uint32
}

func NewDecoder(cfg Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	var pkts []PacketConfig
	var ps []Parser
	for _, name := range cfg.Protocols {
		p, _ := NewParser(name)
		ps = append(ps, p)
		pkts = append(pkts, p.Cfg())
	}

	d := &Decoder{
		Cfg:        cfg,
		wg:         new(sync.WaitGroup),
		centerFreq: pkts[0].CenterFreq,
	}

	channels := make([]int, len(pkts))
	feCfg := cfg.FrontEnd
	if cfg.Dual {
		f0, f1 := float64(pkts[0].CenterFreq), float64(pkts[1].CenterFreq)
		if f0 == f1 {
			return nil, errors.Errorf("dual mode protocols share a center frequency: %d", pkts[0].CenterFreq)
		}

		// Channel 0 is shifted down and carries the upper frequency.
		if f0 > f1 {
			channels[1] = 1
		} else {
			channels[0] = 1
		}

		d.centerFreq = uint32((f0 + f1) / 2)
		feCfg.Shift = math.Abs(f1-f0) / 2
	}

	var err error
	if d.fe, err = frontend.New(feCfg); err != nil {
		return nil, err
	}
	d.Cfg.FrontEnd = feCfg

	angle, _ := demod.NewAngle(cfg.Angle)

	for idx, p := range ps {
		pkt := pkts[idx]

		code := pkt.AccessCode
		if n, ok := cfg.AccessErrors[pkt.Protocol]; ok {
			code.Errors = n
		}

		ch := &chain{
			cfg:     pkt,
			channel: channels[idx],
			demod:   demod.NewDemodulator(angle, cfg.DCRemoval),
			rssi:    bitsync.NewRSSI(feCfg.Decimation, feCfg.Accumulates()),
		}

		if cfg.RunLength {
			st := &stage{algorithm: RunLengthTag}
			st.sync = bitsync.NewRunLength(bitsync.RunLengthConfig{
				SamplesPerBit: pkt.SamplesPerChip(),
				Deglitch:      bitsync.NewDeglitch(pkt.DeglitchTaps, pkt.DeglitchThreshold),
				AccessCode:    code,
				Tracking:      pkt.Tracking,
			}, p.NewDecoder(RunLengthTag, cfg.Threshold, st.collect))
			ch.stages = append(ch.stages, st)
		}

		if cfg.Time2 {
			st := &stage{algorithm: Time2Tag}
			st.sync = bitsync.NewTime2(bitsync.Time2Config{
				ClockFilter: pkt.ClockFilter(),
				Lock:        pkt.ClockLock,
				AccessCode:  code,
			}, p.NewDecoder(Time2Tag, cfg.Threshold, st.collect))
			ch.stages = append(ch.stages, st)
		}

		d.chains = append(d.chains, ch)
	}

	return d, nil
}

// CenterFreq to tune to, between both protocols in dual mode.
func (d *Decoder) CenterFreq() uint32 {
	return d.centerFreq
}

// SampleRate of the input stream.
func (d *Decoder) SampleRate() uint32 {
	return uint32(d.Cfg.FrontEnd.SampleRate())
}

func (d *Decoder) Log() {
	log.WithFields(log.Fields{
		"CenterFreq": d.centerFreq,
		"SampleRate": d.SampleRate(),
		"Decimation": d.Cfg.FrontEnd.Decimation,
		"LowPass":    d.Cfg.FrontEnd.LowPass,
		"DCOffset":   d.Cfg.FrontEnd.DCOffset,
		"Shift":      d.Cfg.FrontEnd.Shift,
		"Angle":      d.Cfg.Angle,
		"DCRemoval":  d.Cfg.DCRemoval,
		"Threshold":  d.Cfg.Threshold,
	}).Info("decoder")

	for _, ch := range d.chains {
		var algorithms []string
		for _, st := range ch.stages {
			algorithms = append(algorithms, st.algorithm)
		}

		log.WithFields(log.Fields{
			"Protocol":       ch.cfg.Protocol,
			"Channel":        ch.channel,
			"CenterFreq":     ch.cfg.CenterFreq,
			"ChipRate":       ch.cfg.ChipRate,
			"SamplesPerChip": ch.cfg.SamplesPerChip(),
			"AccessCode":     ch.cfg.AccessCode.Code,
			"Synchronizers":  strings.Join(algorithms, ","),
		}).Info("chain")
	}
}

// Decode accepts a sample block and returns a channel of messages. Messages
// are delivered in chain order once every chain has consumed the block.
func (d *Decoder) Decode(input []byte) chan Message {
	channels := d.fe.Process(input)

	d.wg.Add(len(d.chains))
	for _, ch := range d.chains {
		go ch.run(channels[ch.channel], d.wg)
	}

	msgCh := make(chan Message)

	go func() {
		d.wg.Wait()
		for _, ch := range d.chains {
			for _, st := range ch.stages {
				for _, msg := range st.msgs {
					msgCh <- msg
				}
				st.msgs = st.msgs[:0]
			}
		}
		close(msgCh)
	}()

	return msgCh
}

// Reset returns every chain to its initial state.
func (d *Decoder) Reset() {
	for _, ch := range d.chains {
		ch.demod.Reset()
		ch.rssi.Reset()
		for _, st := range ch.stages {
			st.sync.Reset()
		}
	}
}
