package predictor

// mix2Component implements MIX2(s, i, j, rate, mask): a per-context
// 2-weight logistic mixer of inputs i and j, per spec section 4.4's
// MIX2 row ("state: one weight pair per context, prediction: squash
// of the weighted sum of stretched inputs, update: gradient step
// scaled by rate").
type mix2Component struct {
	i, j     int
	rate     int
	ctxMask  uint32
	slot     int
	weights  [][2]int32 // fixed-point, scaled by 1<<16
}

const mixWeightScale = 1 << 16

func newMix2(d Desc, index int) (Component, error) {
	size := uint32(1) << d.S
	weights := make([][2]int32, size)
	for k := range weights {
		weights[k] = [2]int32{mixWeightScale / 2, mixWeightScale / 2}
	}
	return &mix2Component{
		i: int(d.I), j: int(d.J), rate: int(d.Rate),
		ctxMask: size - 1, slot: index, weights: weights,
	}, nil
}

func (c *mix2Component) ctxIndex(ctx *Context) uint32 {
	return ctx.contextFor(c.slot) & c.ctxMask
}

func (c *mix2Component) Predict(ctx *Context) int {
	w := c.weights[c.ctxIndex(ctx)]
	si := stretchedAt(ctx, c.i)
	sj := stretchedAt(ctx, c.j)
	sum := int64(w[0])*int64(si) + int64(w[1])*int64(sj)
	return clampProb(squash(int(sum / mixWeightScale)))
}

func (c *mix2Component) Update(ctx *Context, bit int) {
	idx := c.ctxIndex(ctx)
	w := &c.weights[idx]
	si := stretchedAt(ctx, c.i)
	sj := stretchedAt(ctx, c.j)
	sum := int64(w[0])*int64(si) + int64(w[1])*int64(sj)
	p := clampProb(squash(int(sum / mixWeightScale)))
	target := 0
	if bit == 1 {
		target = 4095
	}
	err := int64(target - p)
	rate := int64(c.rate + 1)
	w[0] += int32((rate * err * int64(si)) >> 16)
	w[1] += int32((rate * err * int64(sj)) >> 16)
}

// mixComponent implements MIX(s, i, count, rate, mask): the same
// per-context logistic mixer generalized to `count` chained inputs
// starting at component index i, per spec section 4.4's MIX row.
type mixComponent struct {
	first, count int
	rate         int
	ctxMask      uint32
	slot         int
	weights      [][]int32
}

func newMix(d Desc, index int) (Component, error) {
	size := uint32(1) << d.S
	n := int(d.Count)
	if n < 1 {
		n = 1
	}
	weights := make([][]int32, size)
	init := int32(mixWeightScale / n)
	for k := range weights {
		row := make([]int32, n)
		for x := range row {
			row[x] = init
		}
		weights[k] = row
	}
	return &mixComponent{
		first: int(d.I), count: n, rate: int(d.Rate),
		ctxMask: size - 1, slot: index, weights: weights,
	}, nil
}

func (c *mixComponent) ctxIndex(ctx *Context) uint32 {
	return ctx.contextFor(c.slot) & c.ctxMask
}

func (c *mixComponent) predictWith(w []int32, ctx *Context) (int, []int) {
	stretched := make([]int, c.count)
	var sum int64
	for k := 0; k < c.count; k++ {
		s := stretchedAt(ctx, c.first+k)
		stretched[k] = s
		sum += int64(w[k]) * int64(s)
	}
	return clampProb(squash(int(sum / mixWeightScale))), stretched
}

func (c *mixComponent) Predict(ctx *Context) int {
	w := c.weights[c.ctxIndex(ctx)]
	p, _ := c.predictWith(w, ctx)
	return p
}

func (c *mixComponent) Update(ctx *Context, bit int) {
	w := c.weights[c.ctxIndex(ctx)]
	p, stretched := c.predictWith(w, ctx)
	target := 0
	if bit == 1 {
		target = 4095
	}
	err := int64(target - p)
	rate := int64(c.rate + 1)
	for k := 0; k < c.count; k++ {
		w[k] += int32((rate * err * int64(stretched[k])) >> 16)
	}
}
