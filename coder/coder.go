// Package coder implements the binary arithmetic (range) coder of
// component C5: a 32-bit low/high range, driven one bit at a time by a
// 12-bit prediction from the predictor array, with byte-at-a-time
// renormalization once low and high's top byte agree.
package coder

import (
	"io"

	"github.com/t7a/zpaq/bitio"
	"github.com/t7a/zpaq/errs"
)

// Encoder holds the low/high range state and emits renormalized bytes
// to w as they settle.
type Encoder struct {
	w    *bitio.Writer
	low  uint32
	high uint32
}

// NewEncoder returns an Encoder writing its output bytes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bitio.NewWriter(w), low: 0, high: 0xFFFFFFFF}
}

// mid computes the split point of [low, high] at probability p (a
// 12-bit value, probability the bit is 1), with the multiplication
// done in 64-bit intermediates so the 32-bit range arithmetic never
// overflows, per the coder's exact integer contract.
func mid(low, high uint32, p int) uint32 {
	span := uint64(high - low)
	return low + uint32((span>>16)*uint64(p)) + uint32(((span&0xFFFF)*uint64(p))>>16)
}

// EncodeBit codes one bit given its 12-bit prediction (probability the
// bit is 1, in [1, 4094]).
func (e *Encoder) EncodeBit(p int, bit int) error {
	m := mid(e.low, e.high, p)
	if bit == 1 {
		e.high = m
	} else {
		e.low = m + 1
	}
	return e.renorm()
}

// renorm shifts out any leading bytes low and high now agree on.
func (e *Encoder) renorm() error {
	for (e.low^e.high)&0xFF000000 == 0 {
		if err := e.emit(byte(e.low >> 24)); err != nil {
			return err
		}
		e.low <<= 8
		e.high = e.high<<8 | 0xFF
	}
	return nil
}

func (e *Encoder) emit(b byte) error {
	return e.w.WriteByte(b)
}

// Flush writes enough bytes to disambiguate the final range and
// finishes the underlying stream. Exactly one of low's top bytes is
// emitted per iteration until the range has been fully pinned down.
func (e *Encoder) Flush() error {
	for i := 0; i < 4; i++ {
		if err := e.emit(byte(e.low >> 24)); err != nil {
			return err
		}
		e.low <<= 8
	}
	return nil
}

// Decoder mirrors Encoder, tracking low, high, and the 32-bit window
// of already-read bytes.
type Decoder struct {
	r    *bitio.Reader
	low  uint32
	high uint32
	code uint32
}

// NewDecoder returns a Decoder reading its input bytes from r. It
// primes code with the first four bytes of the stream, per the
// standard range-coder initialization.
func NewDecoder(r io.Reader) (*Decoder, error) {
	d := &Decoder{r: bitio.NewReader(r), low: 0, high: 0xFFFFFFFF}
	for i := 0; i < 4; i++ {
		b, err := d.nextByte()
		if err != nil {
			return nil, err
		}
		d.code = d.code<<8 | uint32(b)
	}
	return d, nil
}

func (d *Decoder) nextByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, errs.Wrap(errs.Truncated, "arithmetic coder input", err)
	}
	return b, nil
}

// DecodeBit returns the next bit given its 12-bit prediction, which
// MUST be identical to the prediction the encoder used — the
// predictor's determinism is what makes this possible without storing
// the model.
func (d *Decoder) DecodeBit(p int) (int, error) {
	m := mid(d.low, d.high, p)
	var bit int
	if d.code <= m {
		bit = 1
		d.high = m
	} else {
		bit = 0
		d.low = m + 1
	}
	if err := d.renorm(); err != nil {
		return 0, err
	}
	return bit, nil
}

func (d *Decoder) renorm() error {
	for (d.low^d.high)&0xFF000000 == 0 {
		b, err := d.nextByte()
		if err != nil {
			return err
		}
		d.low <<= 8
		d.high = d.high<<8 | 0xFF
		d.code = d.code<<8 | uint32(b)
	}
	if d.low > d.high {
		return errs.New(errs.CoderRange, "decoder range inverted")
	}
	return nil
}
