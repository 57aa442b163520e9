package csv

import (
	"encoding/csv"
	"io"

	"golang.org/x/xerrors"
)

// Produces a list of fields making up a record.
type Recorder interface {
	Record() []string
}

// An Encoder writes delimited records to an output stream.
type Encoder struct {
	w *csv.Writer
}

// NewEncoder returns a new encoder that writes to w, separating fields with
// comma.
func NewEncoder(w io.Writer, comma rune) *Encoder {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	return &Encoder{w: cw}
}

// Encode writes a record representing v to the stream followed by a newline
// character. Value given must implement the Recorder interface.
func (enc *Encoder) Encode(v interface{}) (err error) {
	defer func() {
		if r, ok := recover().(error); ok {
			err = xerrors.Errorf("recovered: %w", r)
		}
	}()

	if err = enc.w.Write(v.(Recorder).Record()); err != nil {
		return xerrors.Errorf("write record: %w", err)
	}
	enc.w.Flush()

	return enc.w.Error()
}
