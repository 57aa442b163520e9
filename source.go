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

package main

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// SourceRTLTCP selects samples streamed from an rtl_tcp server.
const SourceRTLTCP = "rtltcp"

// OpenSource opens a sample file, decompressing it if named *.zst. The name
// "-" reads from stdin.
func OpenSource(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "open source")
	}

	if !strings.HasSuffix(name, ".zst") {
		return f, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "zstd source")
	}

	return zstdFile{dec.IOReadCloser(), f}, nil
}

type zstdFile struct {
	io.ReadCloser
	f *os.File
}

func (z zstdFile) Close() error {
	z.ReadCloser.Close()
	return z.f.Close()
}
