package predictor

import (
	"fmt"

	"github.com/t7a/zpaq/errs"
)

// Kind tags one of the nine component kinds spec section 3 names.
// The numeric order matches original_source's COMP_SIZE table
// ({0,2,3,2,3,4,6,6,3,5}), which this module treats as the normative
// on-wire component ordering and per-kind descriptor length
// (including the leading type-tag byte).
type Kind byte

const (
	_ Kind = iota
	KindConst
	KindCM
	KindICM
	KindMatch
	KindAvg
	KindMix2
	KindMix
	KindISSE
	KindSSE
	numKinds
)

// compSize is original_source's COMP_SIZE table: total encoded bytes
// per component descriptor, type-tag byte included.
var compSize = [10]int{0, 2, 3, 2, 3, 4, 6, 6, 3, 5}

func (k Kind) String() string {
	switch k {
	case KindConst:
		return "CONST"
	case KindCM:
		return "CM"
	case KindICM:
		return "ICM"
	case KindMatch:
		return "MATCH"
	case KindAvg:
		return "AVG"
	case KindMix2:
		return "MIX2"
	case KindMix:
		return "MIX"
	case KindISSE:
		return "ISSE"
	case KindSSE:
		return "SSE"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Desc is one component descriptor. Only the fields relevant to Kind
// are meaningful; unused fields are zero.
type Desc struct {
	Kind Kind

	// CONST
	C byte

	// CM, ICM, MATCH, MIX2, MIX, ISSE, SSE
	S byte // table size, bits (2^S entries)

	// CM
	Limit byte

	// MATCH
	BufBits byte

	// AVG, MIX2, MIX, ISSE, SSE: input component indices
	I, J byte

	// AVG
	W byte // weight of input I, out of 256; J gets 256-W

	// MIX2, MIX
	Rate byte
	Mask byte

	// MIX
	Count byte // number of chained inputs starting at I
}

func (d Desc) String() string {
	switch d.Kind {
	case KindConst:
		return fmt.Sprintf("CONST(%d)", d.C)
	case KindCM:
		return fmt.Sprintf("CM(s=%d,limit=%d)", d.S, d.Limit)
	case KindICM:
		return fmt.Sprintf("ICM(s=%d)", d.S)
	case KindMatch:
		return fmt.Sprintf("MATCH(s=%d,bufbits=%d)", d.S, d.BufBits)
	case KindAvg:
		return fmt.Sprintf("AVG(i=%d,j=%d,w=%d)", d.I, d.J, d.W)
	case KindMix2:
		return fmt.Sprintf("MIX2(s=%d,i=%d,j=%d,rate=%d)", d.S, d.I, d.J, d.Rate)
	case KindMix:
		return fmt.Sprintf("MIX(s=%d,i=%d,count=%d,rate=%d)", d.S, d.I, d.Count, d.Rate)
	case KindISSE:
		return fmt.Sprintf("ISSE(s=%d,j=%d)", d.S, d.J)
	case KindSSE:
		return fmt.Sprintf("SSE(s=%d,j=%d,limit=%d)", d.S, d.J, d.Limit)
	default:
		return "?"
	}
}

// Encode writes the descriptor in its fixed-size wire form, type-tag
// byte first, total length compSize[Kind].
func (d Desc) Encode() ([]byte, error) {
	if int(d.Kind) <= 0 || int(d.Kind) >= len(compSize) || compSize[d.Kind] == 0 {
		return nil, errs.New(errs.BadHeader, "invalid component kind %d", d.Kind)
	}
	buf := make([]byte, compSize[d.Kind])
	buf[0] = byte(d.Kind)
	switch d.Kind {
	case KindConst:
		buf[1] = d.C
	case KindCM:
		buf[1], buf[2] = d.S, d.Limit
	case KindICM:
		buf[1] = d.S
	case KindMatch:
		buf[1], buf[2] = d.S, d.BufBits
	case KindAvg:
		buf[1], buf[2], buf[3] = d.I, d.J, d.W
	case KindMix2:
		buf[1], buf[2], buf[3], buf[4], buf[5] = d.S, d.I, d.J, d.Rate, d.Mask
	case KindMix:
		buf[1], buf[2], buf[3], buf[4], buf[5] = d.S, d.I, d.Count, d.Rate, d.Mask
	case KindISSE:
		buf[1], buf[2] = d.S, d.J
	case KindSSE:
		buf[1], buf[2], buf[3] = d.S, d.J, d.Limit
	}
	return buf, nil
}

// DecodeDesc reads one descriptor starting at buf[0], returning it and
// the number of bytes consumed.
func DecodeDesc(buf []byte) (Desc, int, error) {
	if len(buf) == 0 {
		return Desc{}, 0, errs.New(errs.Truncated, "empty component descriptor")
	}
	kind := Kind(buf[0])
	if int(kind) <= 0 || int(kind) >= len(compSize) || compSize[kind] == 0 {
		return Desc{}, 0, errs.New(errs.BadHeader, "invalid component type %d", buf[0])
	}
	n := compSize[kind]
	if len(buf) < n {
		return Desc{}, 0, errs.New(errs.Truncated, "component descriptor overflows header")
	}
	d := Desc{Kind: kind}
	switch kind {
	case KindConst:
		d.C = buf[1]
	case KindCM:
		d.S, d.Limit = buf[1], buf[2]
	case KindICM:
		d.S = buf[1]
	case KindMatch:
		d.S, d.BufBits = buf[1], buf[2]
	case KindAvg:
		d.I, d.J, d.W = buf[1], buf[2], buf[3]
	case KindMix2:
		d.S, d.I, d.J, d.Rate, d.Mask = buf[1], buf[2], buf[3], buf[4], buf[5]
	case KindMix:
		d.S, d.I, d.Count, d.Rate, d.Mask = buf[1], buf[2], buf[3], buf[4], buf[5]
	case KindISSE:
		d.S, d.J = buf[1], buf[2]
	case KindSSE:
		d.S, d.J, d.Limit = buf[1], buf[2], buf[3]
	}
	return d, n, nil
}
