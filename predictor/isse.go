package predictor

// isseComponent implements ISSE(s, j): an ICM whose bit-history state
// additionally indexes a 2-weight mixer blending the ICM's own
// stretched prediction with input j's stretched prediction, per spec
// section 4.4's ISSE row ("state: ICM bit history, prediction: mix of
// own stretched estimate and input j, update: both the ICM state and
// the per-state weight pair").
type isseComponent struct {
	slot  int
	j     int
	mask  uint32
	state []byte
	sm    *stateMap
	// weights[state] blends [icmStretch, inputStretch], fixed point
	// scaled by mixWeightScale, indexed by bit-history state so the
	// mixer specializes per history the way the component's state
	// itself does.
	weights [256][2]int32
}

func newISSE(d Desc, index int) (Component, error) {
	size := uint32(1) << d.S
	c := &isseComponent{
		slot:  index,
		j:     int(d.J),
		mask:  size - 1,
		state: make([]byte, size),
		sm:    newStateMap(),
	}
	for i := range c.weights {
		c.weights[i] = [2]int32{mixWeightScale, 0}
	}
	return c, nil
}

func (c *isseComponent) index(ctx *Context) uint32 {
	return ctx.contextFor(c.slot) & c.mask
}

func (c *isseComponent) predictWith(s byte, ctx *Context) (int, int, int) {
	icmP := c.sm.predict(s)
	icmStretch := stretch(icmP)
	inStretch := stretchedAt(ctx, c.j)
	w := c.weights[s]
	sum := int64(w[0])*int64(icmStretch) + int64(w[1])*int64(inStretch)
	return clampProb(squash(int(sum / mixWeightScale))), icmStretch, inStretch
}

func (c *isseComponent) Predict(ctx *Context) int {
	i := c.index(ctx)
	s := c.state[i]
	p, _, _ := c.predictWith(s, ctx)
	return p
}

func (c *isseComponent) Update(ctx *Context, bit int) {
	i := c.index(ctx)
	s := c.state[i]
	p, icmStretch, inStretch := c.predictWith(s, ctx)

	target := 0
	if bit == 1 {
		target = 4095
	}
	err := int64(target - p)
	w := &c.weights[s]
	w[0] += int32((err * int64(icmStretch)) >> 16)
	w[1] += int32((err * int64(inStretch)) >> 16)

	c.sm.update(s, bit)
	c.state[i] = bitHistoryNext[s][bit]
}
