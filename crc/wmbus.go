package crc

import "encoding/binary"

// WMBus is the complemented CRC-16 protecting every wM-Bus block.
var WMBus = NewCRC("EN13757", 0, 0x3D65, 0xFFFF)

// Format selects the block layout of a frame.
type Format int

const (
	// FormatA frames carry a CRC after the first 10 bytes and after every
	// 16 bytes that follow.
	FormatA Format = iota

	// FormatB frames carry a CRC after every 126 bytes.
	FormatB
)

const (
	firstBlockA = 12
	blockA      = 18
	blockB      = 128
)

func (f Format) String() string {
	if f == FormatB {
		return "B"
	}
	return "A"
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f Format) blockSizes() (first, rest int) {
	if f == FormatB {
		return blockB, blockB
	}
	return firstBlockA, blockA
}

// split calls fn with each block of frame, including its CRC. The final
// block may be short.
func (f Format) split(frame []byte, fn func(block []byte) bool) bool {
	size, rest := f.blockSizes()
	for len(frame) > 0 {
		if size > len(frame) {
			size = len(frame)
		}
		if !fn(frame[:size]) {
			return false
		}
		frame = frame[size:]
		size = rest
	}
	return true
}

// Check reports whether every block of frame carries a valid CRC. A block
// shorter than two bytes cannot and fails the check, as does an empty
// frame.
func (f Format) Check(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}

	return f.split(frame, func(block []byte) bool {
		n := len(block) - 2
		if n < 0 {
			return false
		}
		return WMBus.Checksum(block[:n]) == binary.BigEndian.Uint16(block[n:])
	})
}

// Strip returns frame without its CRC fields. Format B frames have their
// length field rewritten to match.
func (f Format) Strip(frame []byte) []byte {
	out := make([]byte, 0, len(frame))

	f.split(frame, func(block []byte) bool {
		if n := len(block) - 2; n > 0 {
			out = append(out, block[:n]...)
		}
		return true
	})

	if f == FormatB && len(out) > 0 {
		out[0] = byte(len(out) - 1)
	}

	return out
}

// Build inserts CRC fields into data, the inverse of Strip.
func (f Format) Build(data []byte) []byte {
	first, rest := f.blockSizes()
	size := first - 2

	out := make([]byte, 0, len(data)+len(data)/8+2)
	for len(data) > 0 {
		if size > len(data) {
			size = len(data)
		}
		out = append(out, data[:size]...)
		out = binary.BigEndian.AppendUint16(out, WMBus.Checksum(data[:size]))

		data = data[size:]
		size = rest - 2
	}

	return out
}

// Serial returns the little-endian identification number at bytes 4 to 7
// of a received frame. Bytes past the end of the frame read as zero.
func Serial(frame []byte) uint32 {
	var id [4]byte
	if len(frame) > 4 {
		copy(id[:], frame[4:])
	}
	return binary.LittleEndian.Uint32(id[:])
}
