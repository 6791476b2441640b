// Package codec composes components C3 (ZPAQL VM), C4 (predictor
// array), and C5 (arithmetic coder) into the stream codec of component
// C6: encoding and decoding one segment's payload bytes against a
// model described by a block header.
package codec

import (
	"bytes"

	"github.com/t7a/zpaq/errs"
	"github.com/t7a/zpaq/predictor"
	"github.com/t7a/zpaq/zpaql"
)

// Model is the decoded form of a block header's program section: the
// memory-size header vector, the component descriptors driving the
// predictor array, and the raw hcomp (and optional pcomp) bytecode.
type Model struct {
	HH, HM byte // hcomp memory sizes, as bit widths
	PH, PM byte // pcomp memory sizes, as bit widths (zero if no pcomp)
	Comps  []predictor.Desc
	HComp  []byte
	PComp  []byte // empty if this model has no post-processor
}

// HasPComp reports whether this model declares a post-processing
// program.
func (m Model) HasPComp() bool { return len(m.PComp) > 0 }

// IsStore reports whether this model is method 0: store-only, no
// predictor components and no hcomp program, per spec section 4.6's
// "Preset 0 is a store-only (identity) model with no arithmetic coding
// bytes, only framing."
func (m Model) IsStore() bool { return len(m.Comps) == 0 && len(m.HComp) == 0 }

// EncodeHeader serializes the header vector, component descriptors,
// COMP-END, and the hcomp bytes, matching original_source/src/zpaq.rs's
// block-header byte layout: hh, hm, ph, pm, n_components, then one
// descriptor per component, a zero COMP-END byte, then the hcomp
// program length as hsize (u16 LE), then the hcomp opcode stream
// itself. hsize delimits the program rather than a trailing sentinel
// byte, since the opcode stream legitimately contains interior zero
// bytes (Hash(1,0)'s src-register operand, Imm8 zero operands, and
// the HALT opcode itself are all 0x00).
func (m Model) EncodeHeader() ([]byte, error) {
	if len(m.Comps) > 255 {
		return nil, errs.New(errs.BadHeader, "too many components: %d", len(m.Comps))
	}
	if len(m.HComp) > 0xFFFF {
		return nil, errs.New(errs.BadHeader, "hcomp program too long: %d bytes", len(m.HComp))
	}
	var buf bytes.Buffer
	buf.WriteByte(m.HH)
	buf.WriteByte(m.HM)
	buf.WriteByte(m.PH)
	buf.WriteByte(m.PM)
	buf.WriteByte(byte(len(m.Comps)))
	for _, d := range m.Comps {
		enc, err := d.Encode()
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}
	buf.WriteByte(0) // COMP-END
	hsize := uint16(len(m.HComp))
	buf.WriteByte(byte(hsize))
	buf.WriteByte(byte(hsize >> 8))
	buf.Write(m.HComp)
	return buf.Bytes(), nil
}

// DecodeHeader parses a header vector built by EncodeHeader out of
// buf, returning the Model (without PComp, which is carried
// separately as a leading marker byte in the segment payload per spec
// section 3) and the number of bytes consumed.
func DecodeHeader(buf []byte) (Model, int, error) {
	if len(buf) < 5 {
		return Model{}, 0, errs.New(errs.Truncated, "block header shorter than header vector")
	}
	m := Model{HH: buf[0], HM: buf[1], PH: buf[2], PM: buf[3]}
	nComp := int(buf[4])
	pos := 5
	for i := 0; i < nComp; i++ {
		d, n, err := predictor.DecodeDesc(buf[pos:])
		if err != nil {
			return Model{}, 0, err
		}
		m.Comps = append(m.Comps, d)
		pos += n
	}
	if pos >= len(buf) || buf[pos] != 0 {
		return Model{}, 0, errs.New(errs.BadHeader, "missing COMP-END sentinel")
	}
	pos++
	if pos+2 > len(buf) {
		return Model{}, 0, errs.New(errs.Truncated, "block header shorter than hsize field")
	}
	hsize := int(buf[pos]) | int(buf[pos+1])<<8
	pos += 2
	if pos+hsize > len(buf) {
		return Model{}, 0, errs.New(errs.Truncated, "block header shorter than declared hcomp length")
	}
	m.HComp = append([]byte(nil), buf[pos:pos+hsize]...)
	pos += hsize
	return m, pos, nil
}

// buildChain constructs a fresh predictor chain from the model's
// component descriptors, used once per segment since predictor state
// is ephemeral (spec section 3's "Predictor state... discarded at
// segment end").
func (m Model) buildChain() (*predictor.Chain, error) {
	chain := predictor.NewChain()
	for _, d := range m.Comps {
		if err := chain.Add(d); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

func (m Model) newHCompMachine() (*zpaql.Machine, error) {
	return zpaql.New(m.HComp, m.HH, m.HM)
}

func (m Model) newPCompMachine() (*zpaql.Machine, error) {
	if !m.HasPComp() {
		return nil, nil
	}
	return zpaql.New(m.PComp, m.PH, m.PM)
}
