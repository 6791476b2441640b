// Package predictor implements the context-mixing predictor array of
// component C4: the nine component kinds spec section 4.4 names
// (CONST, CM, ICM, MATCH, AVG, MIX2, MIX, ISSE, SSE), arranged in a
// chain where a component may reference any earlier component's
// output by index, never a later one (spec section 9's "arena of
// components indexed by position").
//
// All arithmetic here is fixed-point integer: predictions are 12-bit
// unsigned in [0, 4095], and the only place a float appears anywhere
// in this package is building the logistic tables once in tables.go.
package predictor

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/t7a/zpaq/errs"
)

// Component is one predictor stage. Predict must be a pure function
// of the component's internal state and ctx (no hidden global state),
// so two Chains built from the same bytecode and fed the same byte
// stream produce bit-for-bit identical predictions — spec section
// 8's cross-platform determinism property depends on this.
type Component interface {
	// Predict returns a 12-bit probability that the next bit is 1,
	// given the context and any earlier components' outputs.
	Predict(ctx *Context) int
	// Update adjusts internal state after the true bit is known.
	Update(ctx *Context, bit int)
}

// Context is threaded through one bit decision. H holds the current
// byte's per-component context words, written by the hcomp program
// (one word per component, addressed by component index, per this
// module's VM wiring convention documented in zpaql). Outputs and
// Stretched accumulate as each component in the chain runs, so a
// later component can read an earlier one's result.
type Context struct {
	H          []uint32
	PartialByte byte // bits of the current byte decided so far, MSB first, no sentinel bit (BitPos tells how many)
	BitPos      int  // 0..7: which bit (MSB=0) is about to be predicted
	Outputs     []int
	Stretched   []int
}

// contextFor folds a component's declared H-slot with the partial
// byte decoded so far, so that predictions legitimately vary bit by
// bit instead of only byte by byte. The fold uses xxhash rather than
// an ad hoc multiplicative constant so that nearby H values, partial
// bytes, and bit positions scatter evenly across a component's table
// instead of clustering the way a naive linear mix would.
func (c *Context) contextFor(slot int) uint32 {
	var base uint32
	if slot >= 0 && slot < len(c.H) {
		base = c.H[slot]
	}
	var buf [6]byte
	binary.LittleEndian.PutUint32(buf[0:4], base)
	buf[4] = c.PartialByte
	buf[5] = byte(c.BitPos)
	return uint32(xxhash.Sum64(buf[:]))
}

// record stores component i's prediction for later components to
// reference, and returns it.
func (c *Context) record(i int, p int) int {
	p = clampProb(p)
	for len(c.Outputs) <= i {
		c.Outputs = append(c.Outputs, 2048)
		c.Stretched = append(c.Stretched, 0)
	}
	c.Outputs[i] = p
	c.Stretched[i] = stretch(p)
	return p
}

// Chain is an ordered arena of components, built from a block's COMP
// descriptor list.
type Chain struct {
	components []Component
	descs      []Desc
}

// NewChain builds an empty chain ready to have components appended in
// program order; index i of the chain corresponds to H-slot i.
func NewChain() *Chain { return &Chain{} }

// Add appends a component built from desc, validating that any
// component it references by index is strictly earlier in the chain
// (spec section 9's "components reference only earlier outputs").
func (c *Chain) Add(desc Desc) error {
	comp, err := build(desc, len(c.components))
	if err != nil {
		return err
	}
	c.components = append(c.components, comp)
	c.descs = append(c.descs, desc)
	return nil
}

func (c *Chain) Len() int { return len(c.components) }

// PredictBit runs every component in order and returns the final
// component's 12-bit prediction — the one fed to the arithmetic
// coder, per spec section 3's "the final component's prediction is
// the one fed to the coder".
func (c *Chain) PredictBit(h []uint32, partialByte byte, bitPos int) (int, *Context) {
	ctx := &Context{H: h, PartialByte: partialByte, BitPos: bitPos}
	p := 2048
	for i, comp := range c.components {
		p = comp.Predict(ctx)
		ctx.record(i, p)
	}
	return clampProb(p), ctx
}

// UpdateBit feeds the observed bit back through every component in
// the same order predictions were made, using the Context captured by
// the matching PredictBit call.
func (c *Chain) UpdateBit(ctx *Context, bit int) {
	for _, comp := range c.components {
		comp.Update(ctx, bit)
	}
}

// Describe returns a short human-readable summary of each component's
// kind and wiring, used by tests to assert the chain is wired the way
// its descriptors said it should be.
func (c *Chain) Describe() []string {
	out := make([]string, len(c.descs))
	for i, d := range c.descs {
		out[i] = d.String()
	}
	return out
}

func build(d Desc, index int) (Component, error) {
	switch d.Kind {
	case KindConst:
		return newConst(d)
	case KindCM:
		return newCM(d, index)
	case KindICM:
		return newICM(d, index)
	case KindMatch:
		return newMatch(d, index)
	case KindAvg:
		return newAvg(d, index)
	case KindMix2:
		return newMix2(d, index)
	case KindMix:
		return newMix(d, index)
	case KindISSE:
		return newISSE(d, index)
	case KindSSE:
		return newSSE(d, index)
	default:
		return nil, errs.New(errs.BadHeader, "unknown component kind %d", d.Kind)
	}
}
