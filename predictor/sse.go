package predictor

// sseBuckets is the number of quantization buckets spanning the
// stretch domain from -2047 up, adjacent buckets 127 stretch units
// apart (4094/32 rounded down, so the top bucket sits at 2017) —
// matching the granularity spec section 4.4's
// SSE row describes for "adaptive probability map, interpolated
// between neighboring buckets of the quantized input".
const sseBuckets = 33
const sseBucketStep = (2 * stretchMax) / (sseBuckets - 1)

// sseComponent implements SSE(s, j, limit): a context-indexed table of
// sseBuckets adaptive probability cells spanning input j's stretch
// range, predicting by linearly interpolating between the two cells
// bracketing the current stretched input and updating both bracketing
// cells toward the observed bit.
type sseComponent struct {
	slot  int
	j     int
	mask  uint32
	limit uint16
	table [][sseBuckets]cmCell
}

func newSSE(d Desc, index int) (Component, error) {
	size := uint32(1) << d.S
	table := make([][sseBuckets]cmCell, size)
	for ctxIdx := range table {
		for b := 0; b < sseBuckets; b++ {
			stretchVal := -stretchMax + b*sseBucketStep
			table[ctxIdx][b] = cmCell{p: uint16(clampProb(squash(stretchVal))), count: 0}
		}
	}
	return &sseComponent{slot: index, j: int(d.J), mask: size - 1, limit: uint16(d.Limit), table: table}, nil
}

func (c *sseComponent) index(ctx *Context) uint32 {
	return ctx.contextFor(c.slot) & c.mask
}

// bucket returns the lower bracketing bucket index and the
// interpolation weight (0..sseBucketStep) toward the upper bucket.
func (c *sseComponent) bucket(s int) (int, int) {
	if s < -stretchMax {
		s = -stretchMax
	}
	if s > stretchMax {
		s = stretchMax
	}
	offset := s + stretchMax
	lo := offset / sseBucketStep
	if lo >= sseBuckets-1 {
		lo = sseBuckets - 2
	}
	frac := offset - lo*sseBucketStep
	return lo, frac
}

func (c *sseComponent) Predict(ctx *Context) int {
	row := &c.table[c.index(ctx)]
	lo, frac := c.bucket(stretchedAt(ctx, c.j))
	pLo := int(row[lo].p)
	pHi := int(row[lo+1].p)
	p := pLo + (pHi-pLo)*frac/sseBucketStep
	return clampProb(p)
}

func (c *sseComponent) Update(ctx *Context, bit int) {
	row := &c.table[c.index(ctx)]
	lo, _ := c.bucket(stretchedAt(ctx, c.j))
	target := 0
	if bit == 1 {
		target = 4095
	}
	for _, b := range [2]int{lo, lo + 1} {
		cell := &row[b]
		step := int(cell.p) + (target-int(cell.p))/(int(cell.count)+1)
		cell.p = uint16(clampProb(step))
		if cell.count < c.limit {
			cell.count++
		}
	}
}
