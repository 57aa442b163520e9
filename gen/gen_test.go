package gen

import (
	"bytes"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/rtlwmbus/bitsync"
	"github.com/bemasher/rtlwmbus/crc"
	"github.com/bemasher/rtlwmbus/frontend"
	"github.com/bemasher/rtlwmbus/protocol"
	"github.com/bemasher/rtlwmbus/wmbus"
)

const blockSize = 4096

var telegram = []byte{
	0x2C, 0x44, 0x2D, 0x2C, 0x78, 0x56, 0x34, 0x12, 0x1B, 0x16,
	0x8D, 0x20, 0x6D, 0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD,
	0xEF, 0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, 0x01,
	0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45,
	0x67, 0x89, 0xAB, 0xCD, 0xEF,
}

func TestNewRandTelegram(t *testing.T) {
	for l := 0; l < 256; l += 17 {
		data, err := NewRandTelegram(uint8(l))
		require.NoError(t, err)
		require.Len(t, data, l+1)
		assert.Equal(t, byte(l), data[0])
	}
}

func TestManchesterLUT(t *testing.T) {
	lut := NewManchesterLUT()

	recv := lut.Encode([]byte{0x00})
	expt := []byte{0xAA, 0xAA}
	if !bytes.Equal(recv, expt) {
		t.Fatalf("Expected %02X got %02X\n", expt, recv)
	}

	recv = lut.Encode([]byte{0xF9, 0x53})
	expt = []byte{0x55, 0x69, 0x99, 0xA5}
	if !bytes.Equal(recv, expt) {
		t.Fatalf("Expected %02X got %02X\n", expt, recv)
	}
}

func TestUnpackBits(t *testing.T) {
	assert.Equal(t, []byte{1, 1, 1, 1, 1, 0, 0, 1, 0, 1, 0, 1, 0, 0, 1, 1}, UnpackBits([]byte{0xF9, 0x53}))
}

func TestEncode3of6(t *testing.T) {
	chips := Encode3of6([]byte{0x2C})
	assert.Equal(t, []byte{0, 0, 1, 1, 1, 0, 1, 1, 0, 1, 0, 0}, chips)
}

// feed pushes chips into sink, flagging the chip the access code ends on.
func feed(sink bitsync.Sink, code bitsync.AccessCode, chips []byte) {
	var window uint32
	for _, chip := range chips {
		window = window<<1 | uint32(chip)
		sink.Push(bitsync.Bit{Value: chip, Preamble: code.Match(window), RSSI: 50})
	}
}

type capture []wmbus.Telegram

func (c *capture) emit(t wmbus.Telegram) {
	*c = append(*c, t)
}

func TestChips(t *testing.T) {
	frameA := crc.FormatA.Build(telegram)

	dataB := append([]byte{}, telegram...)
	dataB[0] = byte(len(dataB) + 1)
	frameB := crc.FormatB.Build(dataB)

	for _, tc := range []struct {
		name  string
		chips []byte
		s1    bool
		mode  wmbus.Mode
		frame crc.Format
	}{
		{"T1", T1Chips(frameA), false, wmbus.T1, crc.FormatA},
		{"C1A", C1Chips(crc.FormatA, frameA), false, wmbus.C1, crc.FormatA},
		{"C1B", C1Chips(crc.FormatB, frameB), false, wmbus.C1, crc.FormatB},
		{"S1", S1Chips(frameA), true, wmbus.S1, crc.FormatA},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var c capture
			if tc.s1 {
				feed(wmbus.NewS1Decoder("", c.emit), wmbus.S1AccessCode, tc.chips)
			} else {
				feed(wmbus.NewT1C1Decoder("", c.emit), wmbus.T1C1AccessCode, tc.chips)
			}

			require.Len(t, c, 1)
			assert.Equal(t, tc.mode, c[0].Mode)
			assert.Equal(t, tc.frame, c[0].Frame)
			assert.True(t, c[0].CRCOk)
			assert.Equal(t, uint32(0x12345678), c[0].Serial)
		})
	}
}

var t1Modulation = ModulatorConfig{
	SampleRate: 1.6e6,
	ChipRate:   100e3,
	Deviation:  50e3,
	Amplitude:  100,
}

func TestModulator(t *testing.T) {
	mod := NewModulator(t1Modulation)

	chips := []byte{1, 1, 1, 1, 0, 0, 0, 0}
	signal := mod.Chips(chips)
	require.Len(t, signal, len(chips)*16*2)

	sample := func(idx int) complex128 {
		return complex(float64(signal[idx<<1])-127.5, float64(signal[idx<<1+1])-127.5)
	}

	step := 2 * math.Pi * t1Modulation.Deviation / t1Modulation.SampleRate
	for idx := 1; idx < len(signal)>>1; idx++ {
		dphi := cmplx.Phase(sample(idx) * cmplx.Conj(sample(idx-1)))

		expected := step
		if chips[idx/16] == 0 {
			expected = -step
		}
		if math.Abs(dphi-expected) > 0.05 {
			t.Fatalf("sample %d: expected %f got %f\n", idx, expected, dphi)
		}
	}

	padded := mod.PadBlocks(signal, blockSize)
	assert.Len(t, padded, blockSize)
	assert.Equal(t, signal, padded[:len(signal)])
}

func decodeIQ(t *testing.T, name, algorithm string, signal []byte) (telegrams []wmbus.Telegram) {
	d, err := protocol.NewDecoder(protocol.Config{
		FrontEnd: frontend.Config{
			Decimation: 2,
			DCOffset:   127.5,
			LowPass:    frontend.MovingAverage,
		},
		Angle:     "exact",
		RunLength: algorithm == protocol.RunLengthTag,
		Time2:     algorithm == protocol.Time2Tag,
		Protocols: []string{name},
		Threshold: wmbus.CaptureThreshold,
	})
	require.NoError(t, err)

	for idx := 0; idx < len(signal); idx += blockSize {
		for msg := range d.Decode(signal[idx : idx+blockSize]) {
			telegrams = append(telegrams, msg.(wmbus.Telegram))
		}
	}
	return
}

func valid(telegrams []wmbus.Telegram) (ok []wmbus.Telegram) {
	for _, t := range telegrams {
		if t.CRCOk {
			ok = append(ok, t)
		}
	}
	return
}

func TestIQ(t *testing.T) {
	dataB := append([]byte{}, telegram...)
	dataB[0] = byte(len(dataB) + 1)

	s1Modulation := t1Modulation
	s1Modulation.ChipRate = 32768

	for _, tc := range []struct {
		name     string
		protocol string
		mod      ModulatorConfig
		chips    []byte
		mode     wmbus.Mode
		frame    crc.Format
		payload  []byte
	}{
		{"T1", "t1c1", t1Modulation, T1Chips(crc.FormatA.Build(telegram)), wmbus.T1, crc.FormatA, telegram},
		{"C1A", "t1c1", t1Modulation, C1Chips(crc.FormatA, crc.FormatA.Build(telegram)), wmbus.C1, crc.FormatA, telegram},
		{"C1B", "t1c1", t1Modulation, C1Chips(crc.FormatB, crc.FormatB.Build(dataB)), wmbus.C1, crc.FormatB, dataB},
		{"S1", "s1", s1Modulation, S1Chips(crc.FormatA.Build(telegram)), wmbus.S1, crc.FormatA, telegram},
	} {
		mod := NewModulator(tc.mod)

		signal := mod.Carrier(256)
		signal = append(signal, mod.Chips(tc.chips)...)
		signal = append(signal, mod.Carrier(256)...)
		signal = mod.PadBlocks(signal, blockSize)

		for _, algorithm := range []string{protocol.RunLengthTag, protocol.Time2Tag} {
			t.Run(tc.name+"/"+algorithm, func(t *testing.T) {
				telegrams := valid(decodeIQ(t, tc.protocol, algorithm, signal))
				require.Len(t, telegrams, 1)

				tlg := telegrams[0]
				assert.Equal(t, tc.mode, tlg.Mode)
				assert.Equal(t, tc.frame, tlg.Frame)
				assert.Equal(t, algorithm, tlg.Algorithm)
				assert.True(t, tlg.SymbolOK)
				assert.Equal(t, uint32(0x12345678), tlg.Serial)
				assert.Equal(t, wmbus.Payload(tc.payload), tlg.Payload)
				assert.Greater(t, tlg.RSSIPreamble, float64(wmbus.CaptureThreshold))
			})
		}
	}
}

func BenchmarkDecodeT1(b *testing.B) {
	mod := NewModulator(t1Modulation)
	signal := mod.PadBlocks(mod.Chips(T1Chips(crc.FormatA.Build(telegram))), blockSize)

	d, err := protocol.NewDecoder(protocol.Config{
		FrontEnd:  frontend.Config{Decimation: 2, DCOffset: 127.5, LowPass: frontend.MovingAverage},
		Angle:     "exact",
		RunLength: true,
		Time2:     true,
		Protocols: []string{"t1c1"},
		Threshold: wmbus.CaptureThreshold,
	})
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(signal)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for idx := 0; idx < len(signal); idx += blockSize {
			for range d.Decode(signal[idx : idx+blockSize]) {
			}
		}
	}
}
