package predictor

// cmCell is one context-map slot: a probability and the number of
// observations folded into it so far, capped at the component's
// declared limit.
type cmCell struct {
	p     uint16
	count uint16
}

// cmComponent implements CM(s, limit): a direct context map of
// 2^s (prediction, count) cells, with prediction moved toward the
// observed bit by a step of 1/(count+1) each update, and count capped
// at limit. Initial state is the neutral prediction 2048, count 0,
// per spec section 4.4's "Initial state" note.
type cmComponent struct {
	slot  int
	mask  uint32
	limit uint16
	table []cmCell
}

func newCM(d Desc, index int) (Component, error) {
	size := uint32(1) << d.S
	table := make([]cmCell, size)
	for i := range table {
		table[i] = cmCell{p: 2048, count: 0}
	}
	return &cmComponent{slot: index, mask: size - 1, limit: uint16(d.Limit), table: table}, nil
}

func (c *cmComponent) index(ctx *Context) uint32 {
	return ctx.contextFor(c.slot) & c.mask
}

func (c *cmComponent) Predict(ctx *Context) int {
	cell := &c.table[c.index(ctx)]
	return int(cell.p)
}

func (c *cmComponent) Update(ctx *Context, bit int) {
	cell := &c.table[c.index(ctx)]
	target := 0
	if bit == 1 {
		target = 4095
	}
	step := int(cell.p) + (target-int(cell.p))/(int(cell.count)+1)
	cell.p = uint16(clampProb(step))
	if cell.count < c.limit {
		cell.count++
	}
}
