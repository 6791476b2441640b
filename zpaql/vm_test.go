package zpaql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArithmetic(t *testing.T) {
	prog := NewBuilder().
		Imm8(1, 10).
		Imm8(2, 3).
		Add(1, 2). // r1 = 13
		Build()
	m, err := New(prog, 4, 4)
	require.NoError(t, err)
	require.NoError(t, m.Run(0))
	require.EqualValues(t, 13, m.R[1])
}

func TestDivideByZeroYieldsZero(t *testing.T) {
	prog := NewBuilder().
		Imm8(1, 42).
		Imm8(2, 0).
		Div(1, 2).
		Build()
	m, err := New(prog, 4, 4)
	require.NoError(t, err)
	require.NoError(t, m.Run(0))
	require.EqualValues(t, 0, m.R[1])
}

func TestBranchSkipsInstruction(t *testing.T) {
	// r1 = 1; if r1 != 0 jump past the next imm8; r2 should stay 0.
	b := NewBuilder().Imm8(1, 1)
	// jt r1, +3  -- skip the following 3-byte imm8 instruction
	b.Jt(1, 3)
	b.Imm8(2, 99)
	prog := b.Build()
	m, err := New(prog, 4, 4)
	require.NoError(t, err)
	require.NoError(t, m.Run(0))
	require.EqualValues(t, 0, m.R[2])
}

func TestMemoryRoundTrip(t *testing.T) {
	prog := NewBuilder().
		Imm8(1, 0).  // address 0
		Imm8(2, 77). // value
		StM(1, 2).
		Imm8(3, 0).
		LdM(4, 3).
		Build()
	m, err := New(prog, 4, 4)
	require.NoError(t, err)
	require.NoError(t, m.Run(0))
	require.EqualValues(t, 77, m.R[4])
}

func TestHMemoryIs32Bit(t *testing.T) {
	prog := NewBuilder().
		Imm16(1, 70000%65536). // placeholder, overwritten below
		Build()
	_ = prog
	b := NewBuilder()
	b.Imm8(1, 0)
	b.Imm16(2, 300)
	b.Mul(2, 2) // r2 = 90000, too wide for a byte or a 16-bit cell
	b.StH(1, 2)
	b.Imm8(3, 0)
	b.LdH(4, 3)
	prog = b.Build()
	m, err := New(prog, 2, 2)
	require.NoError(t, err)
	require.NoError(t, m.Run(0))
	require.EqualValues(t, 90000, m.R[4])
}

func TestRunSetsR0ToCurrentByte(t *testing.T) {
	prog := NewBuilder().Mov(1, 0).Build()
	m, err := New(prog, 2, 2)
	require.NoError(t, err)
	require.NoError(t, m.Run(200))
	require.EqualValues(t, 200, m.R[1])
}

func TestStepLimitTrips(t *testing.T) {
	// jmp -2 never terminates; the builder must emit the jmp at an
	// offset such that it loops on itself.
	b := NewBuilder()
	b.Jmp(-2)
	prog := b.Build()
	// strip the auto-appended HALT so the loop really is infinite
	prog = prog[:2]
	m, err := New(prog, 2, 2)
	require.NoError(t, err)
	m.Limit = 1000
	err = m.Run(0)
	require.Error(t, err)
}

func TestValidateRejectsIllegalOpcode(t *testing.T) {
	err := Validate([]byte{0xfe})
	require.Error(t, err)
}

func TestValidateAcceptsBuiltProgram(t *testing.T) {
	prog := NewBuilder().Imm8(1, 5).Build()
	require.NoError(t, Validate(prog))
}

func TestDisassembleProducesOneLinePerInstruction(t *testing.T) {
	prog := NewBuilder().Imm8(1, 5).Add(1, 1).Build()
	text := Disassemble(prog)
	require.Contains(t, text, "imm8")
	require.Contains(t, text, "add")
	require.Contains(t, text, "halt")
}

func TestHashIsDeterministic(t *testing.T) {
	prog := NewBuilder().
		Imm8(1, 7).
		Imm8(2, 3).
		Hash(1, 2).
		Build()
	m1, _ := New(prog, 2, 2)
	m2, _ := New(prog, 2, 2)
	require.NoError(t, m1.Run(0))
	require.NoError(t, m2.Run(0))
	require.Equal(t, m1.R[1], m2.R[1])
	require.NotZero(t, m1.R[1])
}
