package predictor

// matchComponent implements MATCH(s, bufbits): a hash table of size
// 2^s mapping an order-minhash context to the most recent buffer
// position that context was seen at, plus a ring buffer of size
// 2^bufbits holding the decoded byte stream so far. While a match is
// active, the component predicts a strong bias toward the bit the
// matched position's next byte would produce; the bias strengthens
// with match length, capped so a long match never reaches a fully
// saturated 0/4095 probability. Grounded on spec section 4.4's MATCH
// row ("state: pointer into history + match length, update: extend or
// drop the match, predict strongly toward the matched bit").
type matchComponent struct {
	slot     int
	hashMask uint32
	bufMask  uint32
	table    []int32 // hash -> buffer position of byte *after* the context, or -1
	buf      []byte
	pos      int // next write position in buf (also current stream length mod buflen)
	matchPtr int // buffer position of the predicted next byte, or -1 if no active match
	matchLen int
}

func newMatch(d Desc, index int) (Component, error) {
	hashSize := uint32(1) << d.S
	bufSize := uint32(1) << d.BufBits
	table := make([]int32, hashSize)
	for i := range table {
		table[i] = -1
	}
	return &matchComponent{
		slot:     index,
		hashMask: hashSize - 1,
		bufMask:  bufSize - 1,
		table:    table,
		buf:      make([]byte, bufSize),
		matchPtr: -1,
	}, nil
}

func (c *matchComponent) hashIndex(ctx *Context) uint32 {
	return ctx.contextFor(c.slot) & c.hashMask
}

// predictedByte returns the byte the active match predicts comes
// next, and whether a match is active at all.
func (c *matchComponent) predictedByte() (byte, bool) {
	if c.matchPtr < 0 {
		return 0, false
	}
	return c.buf[c.matchPtr&int(c.bufMask)], true
}

func (c *matchComponent) Predict(ctx *Context) int {
	b, ok := c.predictedByte()
	if !ok {
		return 2048
	}
	// Only the bits of b not yet contradicted by PartialByte are
	// informative; once the partial byte diverges from b the match is
	// already dead (Update will drop it before the next byte starts).
	predictedBit := int((b >> (7 - uint(ctx.BitPos))) & 1)
	strength := c.matchLen
	if strength > 28 {
		strength = 28
	}
	// Strength 0 gives a prediction 32 away from neutral; each
	// additional matched byte adds 70 more, saturating well short
	// of the 1/4095 extremes so a single bad match can still recover.
	delta := 32 + strength*70
	if delta > 2040 {
		delta = 2040
	}
	if predictedBit == 1 {
		return clampProb(2048 + delta)
	}
	return clampProb(2048 - delta)
}

func (c *matchComponent) Update(ctx *Context, bit int) {
	if ctx.BitPos != 7 {
		// Mid-byte: only the prediction varies; match state updates
		// once per completed byte, when the real byte is known.
		return
	}
	full := ctx.PartialByte<<1 | byte(bit)
	c.advance(ctx, full)
}

// advance is called once per completed byte, with full the just
// decoded byte value.
func (c *matchComponent) advance(ctx *Context, full byte) {
	if b, ok := c.predictedByte(); ok && b == full {
		c.matchPtr++
		c.matchLen++
	} else {
		c.matchPtr = -1
		c.matchLen = 0
	}

	h := c.hashIndex(ctx)
	c.buf[c.pos&int(c.bufMask)] = full
	c.pos++
	if c.matchPtr < 0 {
		if cand := c.table[h]; cand >= 0 {
			c.matchPtr = int(cand)
			c.matchLen = 1
		}
	}
	c.table[h] = int32(c.pos)
}
