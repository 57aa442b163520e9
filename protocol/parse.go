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
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/bemasher/rtlwmbus/bitsync"
	"github.com/bemasher/rtlwmbus/csv"
)

var (
	parserMutex sync.Mutex
	parsers     = make(map[string]NewParserFunc)
)

type NewParserFunc func() Parser

// Given a name and a parser, register a parser for use.
// Later used by underscore importing each parser package:
//
//	import _ "github.com/bemasher/rtlwmbus/wmbus"
func RegisterParser(name string, parserFn NewParserFunc) {
	parserMutex.Lock()
	defer parserMutex.Unlock()

	if parserFn == nil {
		panic("parser: new parser func is nil")
	}
	if _, dup := parsers[name]; dup {
		panic(fmt.Sprintf("parser: parser already registered (%s)", name))
	}
	parsers[name] = parserFn
}

// Given a name, lookup the parser and make a new one.
func NewParser(name string) (Parser, error) {
	parserMutex.Lock()
	defer parserMutex.Unlock()

	if parserFn, exists := parsers[name]; exists {
		return parserFn(), nil
	}
	return nil, fmt.Errorf("invalid protocol: %q", name)
}

// Parsers returns the names of all registered parsers.
func Parsers() (names []string) {
	parserMutex.Lock()
	defer parserMutex.Unlock()

	for name := range parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// A Parser describes a protocol and builds frame decoders for it. Decoders
// call emit once per completed frame.
type Parser interface {
	Cfg() PacketConfig
	NewDecoder(algorithm string, threshold float64, emit func(Message)) bitsync.Sink
}

type Message interface {
	csv.Recorder
	MsgType() string
	MeterID() uint32
	ChecksumOK() bool
}

// A LogMessage associates a message with an offset and length into a binary
// sample file.
type LogMessage struct {
	Offset int64 `xml:",attr"`
	Length int   `xml:",attr"`
	Message
}

func (msg LogMessage) String() string {
	return fmt.Sprintf("{Offset:%d Length:%d %s:%s}",
		msg.Offset, msg.Length, msg.MsgType(), msg.Message,
	)
}

func (msg LogMessage) Record() (r []string) {
	r = append(r, strconv.FormatInt(msg.Offset, 10))
	r = append(r, strconv.FormatInt(int64(msg.Length), 10))
	r = append(r, msg.Message.Record()...)
	return r
}

// A FilterChain takes a list of filters and applies them iteratively to
// messages sent through the chain.
type FilterChain []MessageFilter

func (fc *FilterChain) Add(filter MessageFilter) {
	*fc = append(*fc, filter)
}

func (fc FilterChain) Match(msg Message) bool {
	if len(fc) == 0 {
		return true
	}

	for _, filter := range fc {
		if !filter.Filter(msg) {
			return false
		}
	}

	return true
}

type MessageFilter interface {
	Filter(Message) bool
}

// ChecksumFilter passes only messages with a valid checksum.
type ChecksumFilter struct{}

func (ChecksumFilter) Filter(msg Message) bool {
	return msg.ChecksumOK()
}
