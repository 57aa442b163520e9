package crc

import (
	"encoding/binary"
	"testing"

	crand "crypto/rand"
	mrand "math/rand"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	Trials = 512
)

var crcs = []CRC{
	NewCRC("IBM", 0, 0x8005, 0),
	NewCRC("CCITT", 0xFFFF, 0x1021, 0),
	NewCRC("EN13757", 0, 0x3D65, 0xFFFF),
}

func TestIdentity(t *testing.T) {
	for _, crc := range crcs {
		t.Logf("%+v\n", crc)
		for trial := 0; trial < Trials; trial++ {
			length := mrand.Intn(32)&0xFE + 8

			buf := make([]byte, length)
			crand.Read(buf[:length-2])

			intermediate := crc.Checksum(buf[:length-2])
			binary.BigEndian.PutUint16(buf[length-2:], intermediate)

			check := crc.Checksum(buf)
			if check != crc.Residue {
				t.Fatalf("%s failed: %02X %04X %04X\n", crc.Name, buf, intermediate, check)
			}
		}
	}
}

func TestCheckValue(t *testing.T) {
	assert.Equal(t, uint16(0xC2B7), WMBus.Checksum([]byte("123456789")))
	assert.Equal(t, uint16(0x3D65), NewTable(0x3D65)[1])
}

func TestBlockLayout(t *testing.T) {
	data := make([]byte, 27)
	frame := FormatA.Build(data)

	// 10+2, 16+2, 1+2
	require.Len(t, frame, 33)
	assert.Equal(t, WMBus.Checksum(data[:10]), binary.BigEndian.Uint16(frame[10:12]))
	assert.Equal(t, WMBus.Checksum(data[10:26]), binary.BigEndian.Uint16(frame[28:30]))
	assert.Equal(t, WMBus.Checksum(data[26:]), binary.BigEndian.Uint16(frame[31:33]))

	frame = FormatB.Build(make([]byte, 130))
	require.Len(t, frame, 134)
	assert.Equal(t, WMBus.Checksum(make([]byte, 126)), binary.BigEndian.Uint16(frame[126:128]))
}

func TestRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		format := Format(rapid.IntRange(0, 1).Draw(t, "format"))
		data := rapid.SliceOfN(rapid.Byte(), 1, 300).Draw(t, "data")
		if format == FormatB {
			data[0] = byte(len(data) - 1)
		}

		frame := format.Build(data)
		if !format.Check(frame) {
			t.Fatalf("valid frame failed check: %02X", frame)
		}
		if stripped := format.Strip(frame); string(stripped) != string(data) {
			t.Fatalf("strip: expected %02X got %02X", data, stripped)
		}

		bit := rapid.IntRange(0, len(frame)*8-1).Draw(t, "bit")
		frame[bit>>3] ^= 1 << uint(bit&7)
		if format.Check(frame) {
			t.Fatalf("corrupt frame passed check: bit %d", bit)
		}
	})
}

func TestShortBlocks(t *testing.T) {
	assert.False(t, FormatA.Check(nil))
	assert.False(t, FormatA.Check([]byte{0x00}))

	// 12 valid bytes followed by a single dangling byte.
	frame := append(FormatA.Build(make([]byte, 10)), 0x00)
	assert.False(t, FormatA.Check(frame))
	assert.Len(t, FormatA.Strip(frame), 10)
}

func TestSerial(t *testing.T) {
	frame := []byte{0x2C, 0x44, 0x2D, 0x2C, 0x78, 0x56, 0x34, 0x12, 0x1B, 0x16}
	assert.Equal(t, uint32(0x12345678), Serial(frame))

	// Missing bytes are zero.
	assert.Equal(t, uint32(0xBBAA), Serial([]byte{0, 0, 0, 0, 0xAA, 0xBB}))
	assert.Zero(t, Serial([]byte{1, 2, 3}))
}

func BenchmarkCheck(b *testing.B) {
	frame := FormatA.Build(make([]byte, 256))
	b.SetBytes(int64(len(frame)))
	for i := 0; i < b.N; i++ {
		FormatA.Check(frame)
	}
}
