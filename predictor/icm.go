package predictor

// bitHistoryNext is the fixed 256-entry bit-history state transition
// table spec section 4.4 calls for ("history transitions via fixed
// 256-entry state table"). Each state packs two saturating nibble
// counters (n1 in the high nibble, n0 in the low nibble, each capped
// at 15); observing a bit increments its counter and, once the
// opposite counter exceeds 2, ages it by halving — a standard
// nonstationary counter discipline that keeps the state responsive to
// recent bits instead of averaging over the component's whole
// lifetime. Built once at init so every ICM instance shares it.
var bitHistoryNext [256][2]byte

func init() {
	for state := 0; state < 256; state++ {
		n1 := state >> 4
		n0 := state & 0xf
		for _, bit := range []int{0, 1} {
			nn0, nn1 := n0, n1
			if bit == 1 {
				if nn0 > 2 {
					nn0 /= 2
				}
				if nn1 < 15 {
					nn1++
				}
			} else {
				if nn1 > 2 {
					nn1 /= 2
				}
				if nn0 < 15 {
					nn0++
				}
			}
			bitHistoryNext[state][bit] = byte(nn1<<4 | nn0)
		}
	}
}

// stateMap is a shared probability-per-state table, adaptive the same
// way a CM cell is: moved toward the observed bit with a step of
// 1/(count+1), count capped at 1023 so a long-lived state keeps
// adapting only slowly.
type stateMap struct {
	cells [256]cmCell
}

func newStateMap() *stateMap {
	sm := &stateMap{}
	for i := range sm.cells {
		sm.cells[i] = cmCell{p: 2048, count: 0}
	}
	return sm
}

func (sm *stateMap) predict(state byte) int { return int(sm.cells[state].p) }

func (sm *stateMap) update(state byte, bit int) {
	cell := &sm.cells[state]
	target := 0
	if bit == 1 {
		target = 4095
	}
	p := int(cell.p) + (target-int(cell.p))/(int(cell.count)+1)
	cell.p = uint16(clampProb(p))
	if cell.count < 1023 {
		cell.count++
	}
}

// icmComponent implements ICM(s): a hashed bit-history table of 2^s
// states feeding the shared stateMap.
type icmComponent struct {
	slot  int
	mask  uint32
	state []byte
	sm    *stateMap
}

func newICM(d Desc, index int) (Component, error) {
	size := uint32(1) << d.S
	return &icmComponent{
		slot:  index,
		mask:  size - 1,
		state: make([]byte, size),
		sm:    newStateMap(),
	}, nil
}

func (c *icmComponent) index(ctx *Context) uint32 {
	return ctx.contextFor(c.slot) & c.mask
}

func (c *icmComponent) Predict(ctx *Context) int {
	i := c.index(ctx)
	return c.sm.predict(c.state[i])
}

func (c *icmComponent) Update(ctx *Context, bit int) {
	i := c.index(ctx)
	s := c.state[i]
	c.sm.update(s, bit)
	c.state[i] = bitHistoryNext[s][bit]
}
