package codec

import (
	"bytes"

	"github.com/t7a/zpaq/coder"
	"github.com/t7a/zpaq/zpaql"
)

// byteSink collects bytes written via a ZPAQL Machine's OUT
// instruction, used as the pcomp post-processing output.
type byteSink struct {
	buf bytes.Buffer
}

func (s *byteSink) WriteByte(b byte) error {
	s.buf.WriteByte(b)
	return nil
}

// Encode codes data against model, returning the opaque coded payload
// bytes a segment's trailer-less body carries. hcomp is run once per
// byte on the byte just coded, so the context words it leaves in H
// drive predictions for the following byte — the same contract the
// decoder observes in reverse.
func Encode(model Model, data []byte) ([]byte, error) {
	if model.IsStore() {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	chain, err := model.buildChain()
	if err != nil {
		return nil, err
	}
	hcomp, err := model.newHCompMachine()
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	enc := coder.NewEncoder(&out)

	var prev byte
	for i, b := range data {
		if i > 0 {
			if err := hcomp.Run(prev); err != nil {
				return nil, err
			}
		}
		ctxWords := hcompContexts(hcomp, chain.Len())
		var partial byte
		for bit := 0; bit < 8; bit++ {
			bitVal := int((b >> (7 - uint(bit))) & 1)
			p, ctx := chain.PredictBit(ctxWords, partial, bit)
			if err := enc.EncodeBit(p, bitVal); err != nil {
				return nil, err
			}
			chain.UpdateBit(ctx, bitVal)
			partial = partial<<1 | byte(bitVal)
		}
		prev = b
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decode inverts Encode, producing n original bytes from payload.
// When model declares a pcomp program, each decoded raw byte is fed
// through it and the sink's accumulated bytes are returned instead of
// the raw ones, per spec section 4.3's post-processing contract.
func Decode(model Model, payload []byte, n int) ([]byte, error) {
	if model.IsStore() {
		out := make([]byte, n)
		copy(out, payload)
		return out, nil
	}
	chain, err := model.buildChain()
	if err != nil {
		return nil, err
	}
	hcomp, err := model.newHCompMachine()
	if err != nil {
		return nil, err
	}
	pcomp, err := model.newPCompMachine()
	if err != nil {
		return nil, err
	}
	var sink *byteSink
	if pcomp != nil {
		sink = &byteSink{}
		pcomp.SetSink(sink)
	}

	dec, err := coder.NewDecoder(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 0, n)
	var prev byte
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := hcomp.Run(prev); err != nil {
				return nil, err
			}
		}
		ctxWords := hcompContexts(hcomp, chain.Len())
		var partial byte
		for bit := 0; bit < 8; bit++ {
			p, ctx := chain.PredictBit(ctxWords, partial, bit)
			bitVal, err := dec.DecodeBit(p)
			if err != nil {
				return nil, err
			}
			chain.UpdateBit(ctx, bitVal)
			partial = partial<<1 | byte(bitVal)
		}
		raw = append(raw, partial)
		prev = partial
		if pcomp != nil {
			if err := pcomp.Run(partial); err != nil {
				return nil, err
			}
		}
	}
	if pcomp != nil {
		return sink.buf.Bytes(), nil
	}
	return raw, nil
}

// hcompContexts copies the leading words of hcomp's H memory, one per
// predictor component, into the slice the chain's PredictBit expects.
// hcomp's own program is responsible for writing meaningful values
// there; components beyond H's length simply read zero.
func hcompContexts(hcomp *zpaql.Machine, n int) []uint32 {
	out := make([]uint32, n)
	copy(out, hcomp.H)
	return out
}
