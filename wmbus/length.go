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

import "fmt"

// MaxFrameLength is the longest frame, L = 255 with every CRC field.
const MaxFrameLength = 290

// Frame lengths in bytes, including the length field and every CRC, indexed
// by the L-field of a format A frame.
var lengthTable [256]uint16

func init() {
	for l := range lengthTable {
		n := l + 1
		blocks := 1
		if n > 10 {
			blocks += (n - 10 + 15) / 16
		}

		length := n + 2*blocks
		if length > MaxFrameLength {
			panic(fmt.Sprintf("wmbus: frame length %d exceeds %d (L=%d)", length, MaxFrameLength, l))
		}
		lengthTable[l] = uint16(length)
	}
}

// FrameLength returns the on-air length of a format A frame with L-field l.
func FrameLength(l uint8) int {
	return int(lengthTable[l])
}

// frameBuffer accumulates frame bytes and refuses to grow past
// MaxFrameLength.
type frameBuffer struct {
	buf [MaxFrameLength]byte
	n   int
}

func (b *frameBuffer) append(v byte) bool {
	if b.n == len(b.buf) {
		return false
	}
	b.buf[b.n] = v
	b.n++
	return true
}

func (b *frameBuffer) Len() int {
	return b.n
}

func (b *frameBuffer) bytes() []byte {
	return b.buf[:b.n]
}

func (b *frameBuffer) reset() {
	b.n = 0
}
