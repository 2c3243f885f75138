package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOwner struct{ released []Ref }

func (f *fakeOwner) Release(obj Ref) { f.released = append(f.released, obj) }

func TestRefcountLifecycle(t *testing.T) {
	owner := &fakeOwner{}
	s := NewString(owner, "hi")
	require.EqualValues(t, 1, s.Header().RC())

	v := FromStr(s)
	Ref_(v)
	assert.EqualValues(t, 2, s.Header().RC())

	Deref(v)
	assert.EqualValues(t, 1, s.Header().RC())
	assert.Empty(t, owner.released)

	Deref(v)
	assert.EqualValues(t, 0, s.Header().RC())
	assert.Len(t, owner.released, 1)
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, IsTruthy(None()))
	assert.False(t, IsTruthy(Bool_(false)))
	assert.False(t, IsTruthy(Int(0)))
	assert.True(t, IsTruthy(Bool_(true)))
	assert.True(t, IsTruthy(Int(1)))
	assert.True(t, IsTruthy(Double(0)))
}

func TestArithInt(t *testing.T) {
	owner := &fakeOwner{}
	assert.Equal(t, Int(7), Add(owner, Int(1), Int(6)))
	assert.Equal(t, Int(-5), Sub(Int(1), Int(6)))
	assert.Equal(t, Int(6), Mul(Int(2), Int(3)))
	assert.Equal(t, Double(2), Div(Int(4), Int(2)))
	assert.Equal(t, Int(1), Mod(Int(7), Int(2)))
}

func TestModDeoptimizesOnDouble(t *testing.T) {
	assert.True(t, Mod(Int(7), Double(2)).IsError())
}

func TestStringConcat(t *testing.T) {
	owner := &fakeOwner{}
	a := FromStr(NewString(owner, "foo"))
	b := FromStr(NewString(owner, "bar"))
	got := Add(owner, a, b)
	require.Equal(t, TagStr, got.Tag)
	assert.Equal(t, "foobar", got.String())
}

func TestEqualityAcrossTypes(t *testing.T) {
	assert.True(t, IsTruthy(Eq(Int(1), Double(1.0))))
	assert.True(t, IsTruthy(Neq(Int(1), Bool_(true))))
}

func TestIncompatBinOpIsError(t *testing.T) {
	owner := &fakeOwner{}
	a := FromStr(NewString(owner, "x"))
	assert.True(t, Sub(a, Int(1)).IsError())
}
