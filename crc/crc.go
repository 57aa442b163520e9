package crc

import (
	"encoding/binary"
	"fmt"
)

// CRC is an MSB-first table driven CRC-16.
type CRC struct {
	Name   string
	Init   uint16
	Poly   uint16
	XorOut uint16

	// Residue is the checksum of any error free codeword: the data followed
	// by its big-endian checksum.
	Residue uint16

	tbl Table
}

func NewCRC(name string, init, poly, xorOut uint16) (crc CRC) {
	crc.Name = name
	crc.Init = init
	crc.Poly = poly
	crc.XorOut = xorOut
	crc.tbl = NewTable(crc.Poly)

	var empty [2]byte
	binary.BigEndian.PutUint16(empty[:], crc.Checksum(nil))
	crc.Residue = crc.Checksum(empty[:])

	return
}

func (crc CRC) String() string {
	return fmt.Sprintf("{Name:%s Init:0x%04X Poly:0x%04X XorOut:0x%04X Residue:0x%04X}",
		crc.Name, crc.Init, crc.Poly, crc.XorOut, crc.Residue,
	)
}

func (crc CRC) Checksum(data []byte) uint16 {
	return Checksum(crc.Init, data, crc.tbl) ^ crc.XorOut
}

type Table [256]uint16

func NewTable(poly uint16) (table Table) {
	for tIdx := range table {
		crc := uint16(tIdx) << 8
		for bIdx := 0; bIdx < 8; bIdx++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc = crc << 1
			}
		}
		table[tIdx] = crc
	}
	return table
}

func Checksum(init uint16, data []byte, table Table) (crc uint16) {
	crc = init
	for _, v := range data {
		crc = crc<<8 ^ table[crc>>8^uint16(v)]
	}
	return
}
