package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chm8d/aulang/value"
)

type frameRoot struct{ vals []value.Value }

func (f *frameRoot) LiveValues(out []value.Value) []value.Value {
	return append(out, f.vals...)
}

func TestFreeOnZeroRefcount(t *testing.T) {
	h := New(false)
	s := h.NewString("hi")
	require.Equal(t, 1, h.ObjectCount())
	value.Deref(value.FromStr(s))
	assert.Equal(t, 0, h.ObjectCount())
}

func TestArrayDelReleasesElements(t *testing.T) {
	h := New(false)
	inner := h.NewString("x")
	arr := h.NewArray(1)
	arr.Push(value.FromStr(inner))
	assert.EqualValues(t, 2, inner.Header().RC())
	// Drop the allocation's own reference; the array now holds the only one.
	value.Deref(value.FromStr(inner))

	value.Deref(value.FromStruct(arr))
	assert.Equal(t, 0, h.ObjectCount())
}

func TestCollectReclaimsUnreachableCycle(t *testing.T) {
	h := New(true)
	a := h.NewArray(1)
	b := h.NewArray(1)
	// Build a cycle: a[0] = b, b[0] = a. Each holds the other's refcount
	// at 1 even after the frame root drops its reference, so pure RC can
	// never reach zero; only the tracing collector reclaims it.
	a.Push(value.FromStruct(b))
	b.Push(value.FromStruct(a))

	root := &frameRoot{} // nothing reachable from any live frame anymore
	h.AddRoot(root)

	require.Equal(t, 2, h.ObjectCount())
	h.Collect()
	assert.Equal(t, 0, h.ObjectCount())
}
