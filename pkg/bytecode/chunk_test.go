package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkWrite(t *testing.T) {
	c := NewChunk()

	c.Write(byte(OpNil), 1)
	c.Write(byte(OpPop), 1)
	c.Write(byte(OpReturn), 2)

	require.Equal(t, 3, c.Count())
	require.Equal(t, []byte{byte(OpNil), byte(OpPop), byte(OpReturn)}, c.Code)

	// The line sidecar tracks one entry per code byte.
	require.Equal(t, []int{1, 1, 2}, c.Lines)
}

func TestChunkAddConstant(t *testing.T) {
	c := NewChunk()

	require.Equal(t, 0, c.AddConstant(NumberVal(1.2)))
	require.Equal(t, 1, c.AddConstant(NumberVal(3.4)))

	require.True(t, c.Constants[0].Equals(NumberVal(1.2)))
	require.True(t, c.Constants[1].Equals(NumberVal(3.4)))
}

func TestOpcodeNames(t *testing.T) {
	tests := []struct {
		op       Opcode
		expected string
	}{
		{OpConstant, "OP_CONSTANT"},
		{OpGetLocal, "OP_GET_LOCAL"},
		{OpDefineGlobal, "OP_DEFINE_GLOBAL"},
		{OpJumpIfFalse, "OP_JUMP_IF_FALSE"},
		{OpLoop, "OP_LOOP"},
		{OpReturn, "OP_RETURN"},
		{Opcode(255), "OP_UNKNOWN"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, tt.op.String())
	}
}
