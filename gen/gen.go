package gen

import (
	"crypto/rand"
	"fmt"
	"math"

	"github.com/bemasher/rtlwmbus/crc"
	"github.com/bemasher/rtlwmbus/wmbus"
)

// NewRandTelegram returns an L-field followed by l random bytes, without CRC
// fields. The C-field is SND_NR.
func NewRandTelegram(l uint8) (data []byte, err error) {
	data = make([]byte, int(l)+1)
	_, err = rand.Read(data)
	if err != nil {
		return nil, err
	}

	data[0] = l
	if l > 0 {
		data[1] = 0x44
	}

	return
}

// ManchesterLUT maps a nibble to its Manchester code, a one sent as 01 and a
// zero as 10.
type ManchesterLUT [16]byte

func NewManchesterLUT() ManchesterLUT {
	return ManchesterLUT{
		170, 169, 166, 165, 154, 153, 150, 149, 106, 105, 102, 101, 90, 89, 86, 85,
	}
}

func (lut ManchesterLUT) Encode(data []byte) (manchester []byte) {
	manchester = make([]byte, len(data)<<1)

	for idx := range data {
		manchester[idx<<1] = lut[data[idx]>>4]
		manchester[idx<<1+1] = lut[data[idx]&0x0F]
	}

	return
}

func UnpackBits(data []byte) []byte {
	bits := make([]byte, len(data)<<3)

	for idx, b := range data {
		offset := idx << 3
		for bit := 7; bit >= 0; bit-- {
			bits[offset+(7-bit)] = (b >> uint8(bit)) & 0x01
		}
	}

	return bits
}

// Encode3of6 returns the chips of data, two 6 chip code words per byte.
func Encode3of6(data []byte) []byte {
	chips := make([]byte, 0, len(data)*12)

	for _, b := range data {
		for _, word := range [2]uint8{wmbus.Encode3of6(b >> 4), wmbus.Encode3of6(b)} {
			for bit := 5; bit >= 0; bit-- {
				chips = append(chips, (word>>uint(bit))&1)
			}
		}
	}

	return chips
}

// Alternating returns pairs of 01 chips.
func Alternating(pairs int) []byte {
	chips := make([]byte, pairs<<1)
	for idx := 1; idx < len(chips); idx += 2 {
		chips[idx] = 1
	}
	return chips
}

// Preamble lengths in chip pairs.
const (
	T1PreamblePairs = 19
	C1PreamblePairs = 16
	S1PreamblePairs = 15
)

var (
	t1c1Sync  = []byte{0, 0, 0, 0, 1, 1, 1, 1, 0, 1}
	s1Sync    = []byte{0, 0, 0, 1, 1, 1, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0}
	postamble = Alternating(2)
)

func join(parts ...[]byte) (chips []byte) {
	for _, p := range parts {
		chips = append(chips, p...)
	}
	return
}

// T1Chips returns a complete T1 transmission of frame, CRC fields included.
func T1Chips(frame []byte) []byte {
	return join(Alternating(T1PreamblePairs), t1c1Sync, Encode3of6(frame), postamble)
}

// C1Chips returns a complete C1 transmission of frame in the given format.
func C1Chips(format crc.Format, frame []byte) []byte {
	mode := uint16(wmbus.C1ModeA)
	if format == crc.FormatB {
		mode = wmbus.C1ModeB
	}
	header := []byte{byte(mode >> 4), byte(mode<<4) | wmbus.C1Trailer}

	return join(Alternating(C1PreamblePairs), t1c1Sync, UnpackBits(header), UnpackBits(frame), postamble)
}

// S1Chips returns a complete S1 transmission of frame.
func S1Chips(frame []byte) []byte {
	return join(Alternating(S1PreamblePairs), s1Sync, UnpackBits(NewManchesterLUT().Encode(frame)), postamble)
}

type ModulatorConfig struct {
	SampleRate float64
	ChipRate   float64

	// Deviation is the frequency of a one chip relative to Offset. A zero
	// chip is sent at Offset - Deviation.
	Deviation float64
	Offset    float64

	// Amplitude in u8 units, at most 127.5.
	Amplitude float64
}

// Modulator produces continuous phase FSK as interleaved u8 I/Q.
type Modulator struct {
	ModulatorConfig
	phase float64
}

func NewModulator(cfg ModulatorConfig) *Modulator {
	return &Modulator{ModulatorConfig: cfg}
}

func (m *Modulator) tone(f64 []float64, freq func(idx int) float64) {
	for idx := 0; idx < len(f64); idx += 2 {
		m.phase += 2 * math.Pi * freq(idx>>1) / m.SampleRate
		m.phase = math.Mod(m.phase, 2*math.Pi)

		sin, cos := math.Sincos(m.phase)
		f64[idx] = cos * m.Amplitude / 127.5
		f64[idx+1] = sin * m.Amplitude / 127.5
	}
}

// Chips modulates chips, each lasting SampleRate/ChipRate samples.
func (m *Modulator) Chips(chips []byte) []byte {
	samples := int(math.Ceil(float64(len(chips)) * m.SampleRate / m.ChipRate))

	f64 := make([]float64, samples<<1)
	m.tone(f64, func(idx int) float64 {
		chip := int(float64(idx) * m.ChipRate / m.SampleRate)
		if chip >= len(chips) {
			chip = len(chips) - 1
		}
		if chips[chip] == 1 {
			return m.Offset + m.Deviation
		}
		return m.Offset - m.Deviation
	})

	u8 := make([]byte, len(f64))
	F64toU8(f64, u8)
	return u8
}

// Carrier returns unmodulated samples at Offset.
func (m *Modulator) Carrier(samples int) []byte {
	f64 := make([]float64, samples<<1)
	m.tone(f64, func(int) float64 { return m.Offset })

	u8 := make([]byte, len(f64))
	F64toU8(f64, u8)
	return u8
}

// PadBlocks appends carrier until signal is a whole number of blocks.
func (m *Modulator) PadBlocks(signal []byte, blockSize int) []byte {
	if rem := len(signal) % blockSize; rem != 0 {
		signal = append(signal, m.Carrier((blockSize-rem)>>1)...)
	}
	return signal
}

func F64toU8(f64 []float64, u8 []byte) {
	if len(f64) != len(u8) {
		panic(fmt.Errorf("arrays must have same dimensions: %d != %d", len(f64), len(u8)))
	}

	for idx, val := range f64 {
		u8[idx] = uint8(val*127.5 + 127.5)
	}
}
