// Package telemetry encodes sensor and actuator replies for the wire.
//
// A reply is a run of little-endian IEEE-754 float64 values, one per reading,
// with no header or delimiter. An empty reply is zero bytes.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// RecordSize is the encoded size of one reading.
const RecordSize = 8

var ErrTruncated = errors.New("telemetry length is not a multiple of 8")

// Encode packs readings into 8*len(readings) bytes.
func Encode(readings []float64) []byte {
	return AppendEncode(make([]byte, 0, RecordSize*len(readings)), readings)
}

// AppendEncode appends the encoding of readings to dst.
func AppendEncode(dst []byte, readings []float64) []byte {
	for _, r := range readings {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(r))
	}
	return dst
}

// Decode unpacks a reply produced by Encode.
func Decode(b []byte) ([]float64, error) {
	if len(b)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrTruncated, len(b))
	}
	readings := make([]float64, len(b)/RecordSize)
	for i := range readings {
		readings[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*RecordSize:]))
	}
	return readings, nil
}

// Write encodes readings onto w in a single call.
func Write(w io.Writer, readings []float64) error {
	buf := Encode(readings)
	n, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("write telemetry: %w", io.ErrShortWrite)
	}
	return nil
}

// ReadAll reads r until EOF and decodes everything received.
func ReadAll(r io.Reader) ([]float64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read telemetry: %w", err)
	}
	return Decode(b)
}
