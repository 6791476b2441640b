package codec

import (
	"github.com/t7a/zpaq/predictor"
	"github.com/t7a/zpaq/zpaql"
)

// Preset is one of the six fixed method presets spec section 4.6
// names. Its on-disk bytes are part of the interoperability contract,
// so Presets is built once at init as data, not recomputed per call.
type Preset struct {
	Method byte
	Model  Model
}

// Presets holds method 0 (store, no model at all) through method 5
// (the richest chain this module ships), indexed by method number.
var Presets [6]Preset

func init() {
	Presets[0] = Preset{Method: 0, Model: Model{}} // store: no hcomp, no predictor

	Presets[1] = Preset{Method: 1, Model: buildModel(16, 20,
		predictor.Desc{Kind: predictor.KindCM, S: 16, Limit: 255},
		orderNContextProgram(1),
	)}

	Presets[2] = Preset{Method: 2, Model: buildModel(18, 22,
		predictor.Desc{Kind: predictor.KindICM, S: 18},
		orderNContextProgram(2),
	)}

	Presets[3] = Preset{Method: 3, Model: buildModel(20, 22,
		predictor.Desc{Kind: predictor.KindICM, S: 20},
		orderNContextProgram(3),
	)}

	Presets[4] = Preset{Method: 4, Model: multiOrderModel(20, 22)}

	Presets[5] = Preset{Method: 5, Model: matchPlusOrderModel(22, 24)}
}

// orderNContextProgram assembles an hcomp program computing an
// order-n byte context (1 <= order <= 4) in H[0], the context the
// chain's single component reads for methods 1-3: the last `order`
// bytes seen, which the predictor hashes itself.
func orderNContextProgram(order int) []byte {
	b := zpaql.NewBuilder()
	// R1 is not reset between Run calls: shifting it left a byte and
	// or-ing in R0 (the byte hcomp.Run was invoked with) keeps the last
	// four bytes seen, newest lowest. R4 is R1 shifted left again so
	// that only the newest `order` bytes remain.
	b.Imm8(3, 8)
	b.Shl(1, 3)
	b.Or(1, 0)
	b.Imm8(3, byte(32-8*order))
	b.Mov(4, 1)
	b.Shl(4, 3)
	b.StH(2, 4) // H[R2] = R4; R2 is never written, so this is H[0]
	return b.Build()
}

func buildModel(hh, hm byte, comp predictor.Desc, hcomp []byte) Model {
	return Model{HH: hh, HM: hm, Comps: []predictor.Desc{comp}, HComp: hcomp}
}

// multiOrderModel wires three CM/ICM components of increasing order
// into a MIX, exercising the chain's later-components-reference-
// earlier-ones wiring for method 4.
func multiOrderModel(hh, hm byte) Model {
	b := zpaql.NewBuilder()
	// R1 keeps the last four bytes seen, as in orderNContextProgram.
	b.Imm8(3, 8)
	b.Shl(1, 3)
	b.Or(1, 0)
	for k := 0; k < 3; k++ {
		b.Imm8(2, byte(k))
		b.Imm8(3, byte(24-8*k))
		b.Mov(4, 1)
		b.Shl(4, 3)
		b.StH(2, 4) // H[k] = order-(k+1) context
	}
	prog := b.Build()

	comps := []predictor.Desc{
		{Kind: predictor.KindCM, S: 16, Limit: 255},
		{Kind: predictor.KindICM, S: 18},
		{Kind: predictor.KindICM, S: 20},
		{Kind: predictor.KindMix, S: 8, I: 0, Count: 3, Rate: 7, Mask: 0xFF},
	}
	return Model{HH: hh, HM: hm, Comps: comps, HComp: prog}
}

// matchPlusOrderModel adds a MATCH component alongside an order-2
// context map, combined through an SSE stage, for method 5 — the
// richest preset this module ships.
func matchPlusOrderModel(hh, hm byte) Model {
	b := zpaql.NewBuilder()
	// R1 keeps the last four bytes seen, as in orderNContextProgram.
	b.Imm8(3, 8)
	b.Shl(1, 3)
	b.Or(1, 0)
	for k := 0; k < 2; k++ {
		b.Imm8(2, byte(k))
		b.Imm8(3, byte(24-8*k))
		b.Mov(4, 1)
		b.Shl(4, 3)
		// H[0]: order-1 context, feeds MATCH's hash table;
		// H[1]: order-2 context, feeds the ICM.
		b.StH(2, 4)
	}
	prog := b.Build()

	comps := []predictor.Desc{
		{Kind: predictor.KindMatch, S: 20, BufBits: 22},
		{Kind: predictor.KindICM, S: 20},
		{Kind: predictor.KindMix2, S: 12, I: 0, J: 1, Rate: 7, Mask: 0xFF},
		{Kind: predictor.KindSSE, S: 10, J: 2, Limit: 255},
	}
	return Model{HH: hh, HM: hm, Comps: comps, HComp: prog}
}
