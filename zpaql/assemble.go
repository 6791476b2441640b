package zpaql

import "github.com/t7a/zpaq/errs"

// Builder assembles a ZPAQL program byte-by-byte. It exists so the
// codec's method presets (spec section 4.6) can be expressed as Go
// code instead of hand-written byte literals, while still producing
// the exact same wire bytes every time — the presets are data, not
// logic, once Build is called.
type Builder struct {
	buf []byte
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) reg2(op Op, dst, src byte) *Builder {
	b.buf = append(b.buf, byte(op), dst, src)
	return b
}

func (b *Builder) reg1(op Op, dst byte) *Builder {
	b.buf = append(b.buf, byte(op), dst)
	return b
}

func (b *Builder) Add(dst, src byte) *Builder  { return b.reg2(opAdd, dst, src) }
func (b *Builder) Sub(dst, src byte) *Builder  { return b.reg2(opSub, dst, src) }
func (b *Builder) Mul(dst, src byte) *Builder  { return b.reg2(opMul, dst, src) }
func (b *Builder) Div(dst, src byte) *Builder  { return b.reg2(opDiv, dst, src) }
func (b *Builder) Mod(dst, src byte) *Builder  { return b.reg2(opMod, dst, src) }
func (b *Builder) And(dst, src byte) *Builder  { return b.reg2(opAnd, dst, src) }
func (b *Builder) Or(dst, src byte) *Builder   { return b.reg2(opOr, dst, src) }
func (b *Builder) Xor(dst, src byte) *Builder  { return b.reg2(opXor, dst, src) }
func (b *Builder) Shl(dst, src byte) *Builder  { return b.reg2(opShl, dst, src) }
func (b *Builder) Shr(dst, src byte) *Builder  { return b.reg2(opShr, dst, src) }
func (b *Builder) Not(dst byte) *Builder       { return b.reg1(opNot, dst) }
func (b *Builder) Neg(dst byte) *Builder       { return b.reg1(opNeg, dst) }
func (b *Builder) Mov(dst, src byte) *Builder  { return b.reg2(opMov, dst, src) }
func (b *Builder) Swap(dst, src byte) *Builder { return b.reg2(opSwap, dst, src) }
func (b *Builder) Lt(dst, src byte) *Builder   { return b.reg2(opLt, dst, src) }
func (b *Builder) Gt(dst, src byte) *Builder   { return b.reg2(opGt, dst, src) }
func (b *Builder) Eq(dst, src byte) *Builder   { return b.reg2(opEq, dst, src) }
func (b *Builder) LdH(dst, src byte) *Builder  { return b.reg2(opLdH, dst, src) }
func (b *Builder) StH(dst, src byte) *Builder  { return b.reg2(opStH, dst, src) }
func (b *Builder) LdM(dst, src byte) *Builder  { return b.reg2(opLdM, dst, src) }
func (b *Builder) StM(dst, src byte) *Builder  { return b.reg2(opStM, dst, src) }
func (b *Builder) Hash(dst, src byte) *Builder { return b.reg2(opHash, dst, src) }
func (b *Builder) Out(src byte) *Builder       { return b.reg1(opOut, src) }

func (b *Builder) Imm8(dst byte, v byte) *Builder {
	b.buf = append(b.buf, byte(opImm8), dst, v)
	return b
}

func (b *Builder) Imm16(dst byte, v uint16) *Builder {
	b.buf = append(b.buf, byte(opImm16), dst, byte(v>>8), byte(v))
	return b
}

// Jt/Jf/Jmp offsets are relative to the instruction following the
// branch, matching the VM's interpretation in vm.go.
func (b *Builder) Jt(reg byte, offset int8) *Builder {
	b.buf = append(b.buf, byte(opJt), reg, byte(offset))
	return b
}

func (b *Builder) Jf(reg byte, offset int8) *Builder {
	b.buf = append(b.buf, byte(opJf), reg, byte(offset))
	return b
}

func (b *Builder) Jmp(offset int8) *Builder {
	b.buf = append(b.buf, byte(opJmp), byte(offset))
	return b
}

func (b *Builder) Halt() *Builder {
	b.buf = append(b.buf, byte(opHalt))
	return b
}

// Len reports the number of bytes emitted so far, useful for
// computing branch offsets while assembling.
func (b *Builder) Len() int { return len(b.buf) }

// Build returns the assembled, HALT-terminated program.
func (b *Builder) Build() []byte {
	if len(b.buf) == 0 || Op(b.buf[len(b.buf)-1]) != opHalt {
		b.Halt()
	}
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// Validate walks prog and returns an error if it decodes to anything
// other than a well-formed, HALT-terminated instruction sequence.
// Nothing in the read path calls it: the container framer and the
// codec load hcomp bytes as they are, and Machine.Run reports an
// illegal or truncated instruction as a VmRuntime error when it
// reaches one.
func Validate(prog []byte) error {
	i := 0
	for i < len(prog) {
		op := Op(prog[i])
		if op == opHalt {
			return nil
		}
		n := instrLen(op)
		if n == 0 {
			return errs.New(errs.BadHeader, "illegal opcode 0x%02x at offset %d", byte(op), i)
		}
		if i+n > len(prog) {
			return errs.New(errs.BadHeader, "truncated instruction at offset %d", i)
		}
		i += n
	}
	return errs.New(errs.BadHeader, "program missing HALT terminator")
}
