package predictor

// avgComponent implements AVG(i, j, w): a stateless weighted mean of
// two earlier components' probabilities, taken directly in the
// probability domain rather than the stretch domain, per spec section
// 4.4's AVG row ("prediction: linear blend of inputs i and j by fixed
// weight w, no adaptation").
type avgComponent struct {
	i, j int
	w    int // weight of input i, out of 256
}

func newAvg(d Desc, index int) (Component, error) {
	return &avgComponent{i: int(d.I), j: int(d.J), w: int(d.W)}, nil
}

func (c *avgComponent) Predict(ctx *Context) int {
	pi := outputAt(ctx, c.i)
	pj := outputAt(ctx, c.j)
	p := (pi*c.w + pj*(256-c.w)) / 256
	return clampProb(p)
}

func (c *avgComponent) Update(ctx *Context, bit int) {}

// outputAt reads an earlier component's recorded probability,
// defaulting to the neutral prediction if the index is out of range
// (which should not happen for a validated chain, but Predict must
// never panic on malformed input it is handed before validation runs).
func outputAt(ctx *Context, i int) int {
	if i < 0 || i >= len(ctx.Outputs) {
		return 2048
	}
	return ctx.Outputs[i]
}

func stretchedAt(ctx *Context, i int) int {
	if i < 0 || i >= len(ctx.Stretched) {
		return 0
	}
	return ctx.Stretched[i]
}
