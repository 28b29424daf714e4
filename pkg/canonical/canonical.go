// Package canonical provides deterministic serialization of numeric request
// payloads for fingerprinting.
//
// Key requirements:
// - Floats formatted to exactly 9 decimal places
// - Stable field ordering
// - Identical bytes for identical requests across processes
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// F9 formats a float64 to exactly 9 decimal places.
//
// Fixed-precision formatting keeps fingerprints stable against
// floating-point formatting drift.
func F9(x float64) string {
	return strconv.FormatFloat(x, 'f', 9, 64)
}

// Round9 rounds a float64 to 9 decimal places.
func Round9(x float64) float64 {
	const factor = 1e9
	if x < 0 {
		return float64(int64(x*factor-0.5)) / factor
	}
	return float64(int64(x*factor+0.5)) / factor
}

// Digest accumulates labeled fields into a canonical byte stream and
// produces a sha256 fingerprint.
type Digest struct {
	buf []byte
}

// NewDigest creates an empty digest.
func NewDigest() *Digest {
	return &Digest{buf: make([]byte, 0, 256)}
}

// String appends a labeled string field.
func (d *Digest) String(label, v string) *Digest {
	d.buf = append(d.buf, label...)
	d.buf = append(d.buf, '=')
	d.buf = append(d.buf, v...)
	d.buf = append(d.buf, ';')
	return d
}

// Float appends a labeled float field at 9-decimal precision.
func (d *Digest) Float(label string, v float64) *Digest {
	return d.String(label, F9(v))
}

// Floats appends a labeled float vector, comma-separated, 9-decimal.
func (d *Digest) Floats(label string, v []float64) *Digest {
	d.buf = append(d.buf, label...)
	d.buf = append(d.buf, '=')
	for i, x := range v {
		if i > 0 {
			d.buf = append(d.buf, ',')
		}
		d.buf = append(d.buf, F9(x)...)
	}
	d.buf = append(d.buf, ';')
	return d
}

// Ints appends a labeled int vector.
func (d *Digest) Ints(label string, v []int) *Digest {
	d.buf = append(d.buf, label...)
	d.buf = append(d.buf, '=')
	for i, x := range v {
		if i > 0 {
			d.buf = append(d.buf, ',')
		}
		d.buf = strconv.AppendInt(d.buf, int64(x), 10)
	}
	d.buf = append(d.buf, ';')
	return d
}

// Sum returns the hex-encoded sha256 of the accumulated stream.
func (d *Digest) Sum() string {
	h := sha256.Sum256(d.buf)
	return hex.EncodeToString(h[:])
}
