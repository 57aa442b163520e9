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

// Package wmbus decodes Wireless M-Bus frames from synchronized bits.
package wmbus

// Marks an invalid code word in the decode tables.
const invalid = 0xFF

// 3-out-of-6 code word for each nibble value.
var codeWords = [16]uint8{
	0x16, 0x0D, 0x0E, 0x0B, 0x1C, 0x19, 0x1A, 0x13,
	0x2C, 0x25, 0x26, 0x23, 0x34, 0x31, 0x32, 0x29,
}

// Decode tables indexed by a received 6 chip word. The high table yields the
// nibble in the upper half of a byte, the low table in the lower half.
var (
	highNibble [64]uint8
	lowNibble  [64]uint8
)

func init() {
	for idx := range highNibble {
		highNibble[idx] = invalid
		lowNibble[idx] = invalid
	}

	for nibble, word := range codeWords {
		highNibble[word] = uint8(nibble) << 4
		lowNibble[word] = uint8(nibble)
	}
}

// Encode3of6 returns the code word for the low nibble of v.
func Encode3of6(v uint8) uint8 {
	return codeWords[v&0x0F]
}

// Decode3of6 returns the nibble encoded by word.
func Decode3of6(word uint8) (nibble uint8, ok bool) {
	nibble = lowNibble[word&0x3F]
	return nibble, nibble != invalid
}

// Manchester pairs indexed by first<<1 | second. 01 is a one, 10 a zero.
var manchester = [4]uint8{invalid, 1, 0, invalid}

// C1 frames begin with a sync word that is not valid 3-out-of-6. Its last 12
// chips are read as the length field and identify the frame format, followed
// by a four chip trailer.
const (
	C1ModeA   = 0x54C // 0b010101001100
	C1ModeB   = 0x543 // 0b010101000011
	C1Trailer = 0xD   // 0b1101
)
