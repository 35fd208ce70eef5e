package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstructionEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Instruction{
		{Opcode: PUSH, Operand: 42},
		{Opcode: HALT, Operand: 0},
		{Opcode: JMP, Operand: 0xABCDEF & operandMask},
		{Opcode: V_DOT, Operand: 7},
	}
	for _, want := range cases {
		word := want.Encode()
		got := DecodeInstruction(word)
		assert.Equal(t, want.Opcode, got.Opcode)
		assert.Equal(t, want.Operand, got.Operand)
	}
}

func TestOpcodeStringRoundTripsThroughName(t *testing.T) {
	for _, op := range []Opcode{PUSH, ADD, V_NORM, IRET} {
		name := op.String()
		got, ok := OpcodeFromName(name)
		assert.True(t, ok)
		assert.Equal(t, op, got)
	}
}

func TestUnknownOpcodeStringsAndCycles(t *testing.T) {
	unknown := Opcode(0xFE)
	assert.Contains(t, unknown.String(), "UNKNOWN_")
	assert.Equal(t, 1, unknown.Cycles())
}

func TestIsVectorOp(t *testing.T) {
	assert.True(t, V_LOAD.IsVectorOp())
	assert.True(t, V_SET.IsVectorOp())
	assert.False(t, PUSH.IsVectorOp())
	assert.False(t, HALT.IsVectorOp())
}

// TestCycleTableMatchesSpec pins the per-opcode cycle costs to the
// authoritative table (spec §6) so a future edit can't silently drift.
func TestCycleTableMatchesSpec(t *testing.T) {
	want := map[Opcode]int{
		NOP: 1, PUSH: 2, POP: 1, DUP: 2, SWAP: 2, DROP: 1,
		ADD: 3, SUB: 3, MUL: 4, DIV: 6, MOD: 6, NEG: 2,
		LOAD: 4, STORE: 4, LOAD_I: 4, LOADB: 4, STOREB: 4,
		HALT: 1, INT: 8, IRET: 6,
		V_DOT: 8, V_NORM: 10, V_SUM: 4, V_AVG: 6, V_MAX: 4, V_MIN: 4,
	}
	for op, cycles := range want {
		assert.Equalf(t, cycles, op.Cycles(), "opcode %s", op)
	}
}

func TestInstructionStringOmitsZeroOperand(t *testing.T) {
	assert.Equal(t, "HALT", Instruction{Opcode: HALT}.String())
	assert.Equal(t, "PUSH 42", Instruction{Opcode: PUSH, Operand: 42}.String())
}
