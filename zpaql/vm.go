// Package zpaql implements the ZPAQL virtual machine (component C3):
// a small register machine whose bytecode is embedded in every block
// header and executed by both the encoder and the decoder so that
// decoding never depends on knowing which model produced an archive.
//
// Two programs may run inside one archive: hcomp, which derives
// predictor context inputs from the byte stream, and the optional
// pcomp, which post-processes decoded bytes. Both share this same
// Machine type; only their memory and program differ.
package zpaql

import (
	"github.com/t7a/zpaq/errs"
)

// DefaultStepLimit is the configurable instruction-count ceiling spec
// section 4.3 recommends (2^26) to turn a runaway program into a
// VmRuntime error instead of an infinite loop.
const DefaultStepLimit = 1 << 26

// Sink receives bytes emitted by the pcomp program's OUT instruction.
type Sink interface {
	WriteByte(b byte) error
}

// Machine is a ZPAQL register machine. Its H and M memories persist
// across repeated Run calls within one segment; only the program
// counter and step budget reset per call, matching the execution
// contract in spec section 4.3: hcomp is invoked once per byte and
// must see the cumulative effect of every prior invocation.
type Machine struct {
	R [32]uint32
	H []uint32 // size 1<<hh, addressed by hashed contexts
	M []byte   // size 1<<hm, general scratch memory

	Program []byte
	Limit   uint64 // 0 means DefaultStepLimit

	pc       int
	steps    uint64
	sink     Sink
	pcJumped bool
}

// New builds a Machine with memories sized 2^hbits and 2^mbits, as
// declared by a block's header fields (hh/hm for hcomp, ph/pm for
// pcomp). Bit widths above 32 are rejected per spec section 3's
// invariant that memory sizes are bit-widths <= 32.
func New(program []byte, hbits, mbits byte) (*Machine, error) {
	if hbits > 32 || mbits > 32 {
		return nil, errs.New(errs.BadHeader, "memory bit width out of range: hh=%d hm=%d", hbits, mbits)
	}
	return &Machine{
		Program: program,
		H:       make([]uint32, 1<<hbits),
		M:       make([]byte, 1<<mbits),
	}, nil
}

// SetSink installs the byte sink used by the OUT instruction. Only
// pcomp machines need one; hcomp machines never execute OUT (doing so
// is a VmRuntime error, since hcomp has no post-processed stream).
func (m *Machine) SetSink(s Sink) { m.sink = s }

func (m *Machine) stepLimit() uint64 {
	if m.Limit == 0 {
		return DefaultStepLimit
	}
	return m.Limit
}

// Run executes the program once from the start, with R[0] preset to
// c (the codec passes the byte it has just encoded, or just decoded —
// the two sides observe identical context streams only if
// they feed Run the same byte, which is the crux of spec section
// 4.6's codec contract). Run returns once the program reaches a HALT
// instruction or falls off the end of the byte slice; running past
// the end of Program is treated the same as reaching HALT, matching
// the Program being "terminated by END" in the wire format (section 3).
func (m *Machine) Run(c byte) error {
	m.R[0] = uint32(c)
	m.pc = 0
	m.steps = 0
	limit := m.stepLimit()

	for {
		if m.pc >= len(m.Program) {
			return nil
		}
		op := Op(m.Program[m.pc])
		if op == opHalt {
			return nil
		}
		n := instrLen(op)
		if n == 0 || m.pc+n > len(m.Program) {
			return errs.New(errs.VmRuntime, "illegal opcode 0x%02x at pc=%d", byte(op), m.pc)
		}

		if err := m.exec(op, m.Program[m.pc+1:m.pc+n], m.pc+n); err != nil {
			return err
		}

		m.steps++
		if m.steps > limit {
			return errs.New(errs.VmRuntime, "instruction limit exceeded (%d)", limit)
		}

		// Branch instructions set m.pc themselves and signal it via
		// pcJumped; everything else just falls through to the next
		// instruction.
		if !m.pcJumped {
			m.pc += n
		}
		m.pcJumped = false
	}
}

func (m *Machine) reg(i byte) *uint32 {
	return &m.R[i&31]
}

// exec runs one decoded instruction. next is the address of the
// instruction following this one, used as the base for branch
// offsets so jt/jf/jmp are PC-relative to the next instruction, the
// conventional branch-displacement convention.
func (m *Machine) exec(op Op, args []byte, next int) error {
	switch op {
	case opAdd:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d += *s
	case opSub:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d -= *s
	case opMul:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d *= *s
	case opDiv:
		d, s := m.reg(args[0]), m.reg(args[1])
		if *s == 0 {
			*d = 0 // divide-by-zero yields zero, per spec section 4.3/9
		} else {
			*d /= *s
		}
	case opMod:
		d, s := m.reg(args[0]), m.reg(args[1])
		if *s == 0 {
			*d = 0
		} else {
			*d %= *s
		}
	case opAnd:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d &= *s
	case opOr:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d |= *s
	case opXor:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d ^= *s
	case opShl:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d <<= (*s & 31)
	case opShr:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d >>= (*s & 31)
	case opNot:
		d := m.reg(args[0])
		*d = ^*d
	case opNeg:
		d := m.reg(args[0])
		*d = -*d
	case opMov:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d = *s
	case opSwap:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d, *s = *s, *d
	case opLt:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d = boolReg(*d < *s)
	case opGt:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d = boolReg(*d > *s)
	case opEq:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d = boolReg(*d == *s)
	case opImm8:
		d := m.reg(args[0])
		*d = uint32(args[1])
	case opImm16:
		d := m.reg(args[0])
		*d = uint32(args[1])<<8 | uint32(args[2])
	case opLdH:
		d, s := m.reg(args[0]), m.reg(args[1])
		if len(m.H) == 0 {
			return errs.New(errs.VmRuntime, "ldh: H memory has zero size")
		}
		*d = m.H[*s%uint32(len(m.H))]
	case opStH:
		d, s := m.reg(args[0]), m.reg(args[1])
		if len(m.H) == 0 {
			return errs.New(errs.VmRuntime, "sth: H memory has zero size")
		}
		m.H[*d%uint32(len(m.H))] = *s
	case opLdM:
		d, s := m.reg(args[0]), m.reg(args[1])
		if len(m.M) == 0 {
			return errs.New(errs.VmRuntime, "ldm: M memory has zero size")
		}
		*d = uint32(m.M[*s%uint32(len(m.M))])
	case opStM:
		d, s := m.reg(args[0]), m.reg(args[1])
		if len(m.M) == 0 {
			return errs.New(errs.VmRuntime, "stm: M memory has zero size")
		}
		m.M[*d%uint32(len(m.M))] = byte(*s)
	case opJt:
		r := m.reg(args[0])
		if *r != 0 {
			m.jump(next, args[1])
		}
	case opJf:
		r := m.reg(args[0])
		if *r == 0 {
			m.jump(next, args[1])
		}
	case opJmp:
		m.jump(next, args[0])
	case opHash:
		d, s := m.reg(args[0]), m.reg(args[1])
		*d = (*d + *s + 1) * 0x9e3779b1
	case opOut:
		if m.sink == nil {
			return errs.New(errs.VmRuntime, "out: no sink installed (not a pcomp machine)")
		}
		s := m.reg(args[0])
		if err := m.sink.WriteByte(byte(*s)); err != nil {
			return errs.Wrap(errs.IO, "out", err)
		}
	default:
		return errs.New(errs.VmRuntime, "illegal opcode %d", byte(op))
	}
	return nil
}

// jump sets pc to next plus a signed 8-bit offset, and marks that Run
// should not also advance pc by the jump instruction's own length.
func (m *Machine) jump(next int, offsetByte byte) {
	offset := int(int8(offsetByte))
	m.pc = next + offset
	if m.pc < 0 {
		m.pc = 0
	}
	m.pcJumped = true
}

func boolReg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
