package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeABC(t *testing.T) {
	buf := make([]byte, Size)
	PutABC(buf, ADD, 1, 2, 3)
	assert.Equal(t, ADD, At(buf, 0))
	assert.Equal(t, byte(1), A(buf, 0))
	assert.Equal(t, byte(2), B(buf, 0))
	assert.Equal(t, byte(3), C(buf, 0))
}

func TestEncodeDecodeRel16RoundTrips(t *testing.T) {
	buf := make([]byte, Size)
	PutARel(buf, JIF, 5, 1234)
	assert.Equal(t, JIF, At(buf, 0))
	assert.Equal(t, byte(5), A(buf, 0))
	assert.EqualValues(t, 1234, Rel16(buf, 0))
}

func TestSetOpPreservesOperandBytes(t *testing.T) {
	buf := make([]byte, Size)
	PutABC(buf, ADD, 7, 8, 9)
	SetOp(buf, 0, ADD_INT)
	assert.Equal(t, ADD_INT, At(buf, 0))
	assert.Equal(t, byte(7), A(buf, 0))
	assert.Equal(t, byte(8), B(buf, 0))
	assert.Equal(t, byte(9), C(buf, 0))
}

func TestDeoptMapsSpecializedToGeneric(t *testing.T) {
	generic, ok := Deopt(ADD_INT)
	assert.True(t, ok)
	assert.Equal(t, ADD, generic)

	generic, ok = Deopt(GEQ_DOUBLE)
	assert.True(t, ok)
	assert.Equal(t, GEQ, generic)

	_, ok = Deopt(ADD)
	assert.False(t, ok)
}

func TestJumpTargetForwardAndBackward(t *testing.T) {
	// forward jump of 2 instructions from pc=0
	assert.Equal(t, 12, JumpTarget(0, 2, true))
	// backward jump of 2 instructions from pc=12
	assert.Equal(t, 8, JumpTarget(12, 2, false))
}
