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

// Run lengths and bit lengths are kept in 1/256ths of a sample.
const runScale = 256

// Runs shorter than this many samples are noise.
const minRun = 5

// Gains of the bit length controller.
const (
	Kp = 16
	Ki = 8
)

// Tracking selects how the run-length synchronizer adapts its bit length.
type Tracking int

const (
	// PIControl adjusts a single bit length from the residual of each run
	// while the sink is inside a frame.
	PIControl Tracking = iota

	// LevelAverage keeps a running average bit length per level.
	LevelAverage
)

func (t Tracking) String() string {
	switch t {
	case PIControl:
		return "pi"
	case LevelAverage:
		return "level"
	}
	return "unknown"
}

type RunLengthConfig struct {
	SamplesPerBit float64
	Deglitch      Deglitch
	AccessCode    AccessCode
	Tracking      Tracking
}

// RunLength infers symbol boundaries from the length of runs of equal
// deglitched level.
type RunLength struct {
	cfg  RunLengthConfig
	sink Sink
	corr correlator

	nominal int

	raw   uint32
	level uint8
	run   int

	bitLength int
	integral  int
	average   [2]int
}

func NewRunLength(cfg RunLengthConfig, sink Sink) *RunLength {
	rl := &RunLength{
		cfg:     cfg,
		sink:    sink,
		corr:    correlator{code: cfg.AccessCode},
		nominal: int(cfg.SamplesPerBit*runScale + 0.5),
	}
	rl.restart()
	return rl
}

func (rl *RunLength) restart() {
	rl.run = 0
	rl.bitLength = rl.nominal
	rl.integral = 0
	rl.average = [2]int{rl.nominal, rl.nominal}
	rl.corr.window = 0
}

// Reset clears the timing estimate and resets the sink. The deglitch
// history is kept.
func (rl *RunLength) Reset() {
	rl.restart()
	rl.sink.Reset()
}

// BitLength returns the current bit length estimate in samples.
func (rl *RunLength) BitLength() float64 {
	if rl.cfg.Tracking == LevelAverage {
		return float64(rl.average[0]+rl.average[1]) / (2 * runScale)
	}
	return float64(rl.bitLength) / runScale
}

func (rl *RunLength) Process(dphi, rssi float64) {
	var bit uint32
	if dphi >= 0 {
		bit = 1
	}

	rl.raw = rl.raw<<1 | bit
	level := rl.cfg.Deglitch.Level(rl.raw)

	if level == rl.level {
		rl.run++
		return
	}

	if !rl.split(rssi) {
		rl.Reset()
	}

	rl.level = level
	rl.run = 1
}

// split divides the finished run into bits of the current level. It
// returns false if the run is implausible or the estimate has diverged.
func (rl *RunLength) split(rssi float64) bool {
	if rl.run < minRun {
		return false
	}

	bitLength := rl.bitLength
	if rl.cfg.Tracking == LevelAverage {
		bitLength = rl.average[rl.level]
	}

	// Undo the deglitch delay so both levels measure the same bit length.
	length := rl.run + rl.cfg.Deglitch.Skew()
	if rl.level == 1 {
		length = rl.run - rl.cfg.Deglitch.Skew()
	}

	run := length * runScale
	half := bitLength / 2
	if run <= half {
		return false
	}

	n := 0
	for ; run > half; n++ {
		run -= bitLength
		rl.sink.Push(Bit{
			Value:    rl.level,
			Preamble: rl.corr.shift(rl.level),
			RSSI:     rssi,
		})
	}

	switch rl.cfg.Tracking {
	case PIControl:
		if !rl.sink.Receiving() {
			return true
		}
		rl.integral += run
		rl.bitLength += (run + rl.integral/Ki) / (Kp * n)
		bitLength = rl.bitLength
	case LevelAverage:
		avg := &rl.average[rl.level]
		*avg = (3*(*avg) + length*runScale/n) / 4
		bitLength = *avg
	}

	return bitLength >= rl.nominal/2 && bitLength <= rl.nominal*3/2
}
