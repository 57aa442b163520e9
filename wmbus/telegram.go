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
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/bemasher/rtlwmbus/crc"
)

type Mode int

const (
	T1 Mode = iota
	C1
	S1
)

func (m Mode) String() string {
	switch m {
	case T1:
		return "T1"
	case C1:
		return "C1"
	case S1:
		return "S1"
	}
	return "unknown"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Payload is a frame with its CRC fields removed.
type Payload []byte

func (p Payload) String() string {
	return "0x" + hex.EncodeToString(p)
}

func (p Payload) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

var stampFormat *strftime.Strftime

func init() {
	var err error
	stampFormat, err = strftime.New("%Y-%m-%d %H:%M:%S")
	if err != nil {
		panic(err)
	}
}

// Telegram is a completed frame.
type Telegram struct {
	Mode  Mode       `json:"mode" xml:",attr"`
	Frame crc.Format `json:"frame" xml:",attr"`

	// Algorithm names the bit synchronizer that produced the frame.
	Algorithm string `json:"algorithm" xml:",attr"`

	CRCOk    bool      `json:"crc_ok"`
	SymbolOK bool      `json:"symbol_ok"`
	Time     time.Time `json:"time"`

	// Signal strength at the first bit of the length field and at the last
	// bit of the frame.
	RSSIPreamble float64 `json:"rssi_preamble"`
	RSSIEnd      float64 `json:"rssi_end"`

	Serial  uint32  `json:"serial"`
	Payload Payload `json:"payload"`
}

// Timestamp formats Time with microsecond resolution.
func (t Telegram) Timestamp() string {
	return stampFormat.FormatString(t.Time) + fmt.Sprintf(".%06d", t.Time.Nanosecond()/1000)
}

func (t Telegram) MsgType() string {
	return t.Mode.String()
}

func (t Telegram) MeterID() uint32 {
	return t.Serial
}

func (t Telegram) ChecksumOK() bool {
	return t.CRCOk
}

func (t Telegram) String() string {
	return fmt.Sprintf("{Mode:%s Frame:%s Algorithm:%s CRC:%t Symbols:%t Time:%s RSSI:%.1f/%.1f Serial:%08X Payload:%s}",
		t.Mode, t.Frame, t.Algorithm, t.CRCOk, t.SymbolOK, t.Timestamp(),
		t.RSSIPreamble, t.RSSIEnd, t.Serial, t.Payload,
	)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Record returns the fields of a receiver output line, without the
// algorithm tag.
func (t Telegram) Record() (r []string) {
	r = append(r, t.Mode.String())
	r = append(r, flag(t.CRCOk))
	r = append(r, flag(t.SymbolOK))
	r = append(r, t.Timestamp())
	r = append(r, strconv.FormatUint(uint64(t.RSSIPreamble), 10))
	r = append(r, strconv.FormatUint(uint64(t.RSSIEnd), 10))
	r = append(r, fmt.Sprintf("%08X", t.Serial))
	r = append(r, t.Payload.String())
	return
}
