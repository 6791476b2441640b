package predictor

// constComponent always predicts a fixed probability derived from its
// declared byte, per spec's CONST row: "state: none, prediction:
// fixed, update: none".
type constComponent struct {
	p int
}

func newConst(d Desc) (Component, error) {
	// Map the declared byte linearly onto the 12-bit probability
	// range: C*16+8, the middle of the C'th of 256 equal slices.
	return &constComponent{p: clampProb(int(d.C)*16 + 8)}, nil
}

func (c *constComponent) Predict(ctx *Context) int { return c.p }
func (c *constComponent) Update(ctx *Context, bit int) {}
