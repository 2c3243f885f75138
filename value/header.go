package value

import "math"

// MaxRC is the saturation point for a Header's refcount. Reaching it is a
// panic condition: the object graph has grown past what a 32-bit counter
// can track, which in practice only happens under a refcounting bug.
const MaxRC = math.MaxUint32

// Owner is the minimal surface a heap needs to expose so that Header can
// hand itself back for collection when its refcount drops to zero.
// Defined here (not in package heap) so value has no import on heap —
// heap imports value and implements Owner on its Heap type instead.
type Owner interface {
	// Release is called exactly once, when a Header's refcount reaches
	// zero. obj is the Ref whose Header this is.
	Release(obj Ref)
}

// Header is embedded at the front of every heap-allocated object
// (String, every Struct kind, FnValue): { rc, vdata, marked } from
// spec.md §3, with "vdata" realized here as the owning heap (the
// nearest Go analogue of a vtable pointer back to the allocator, since
// per-kind behavior is already dispatched through the Struct interface).
type Header struct {
	rc      uint32
	marked  bool
	owner   Owner
}

// NewHeader creates a fresh header with rc=1 (the allocation itself is
// the first reference) owned by owner.
func NewHeader(owner Owner) Header {
	return Header{rc: 1, owner: owner}
}

func (h *Header) RC() uint32 { return h.rc }

func (h *Header) Incr() {
	if h.rc == MaxRC {
		panic("value: refcount overflow")
	}
	h.rc++
}

// Decr decrements the refcount and, on reaching zero, hands obj back to
// the owning heap for release. obj must be the same Ref this Header is
// embedded in (callers pass it through since Header cannot see its
// enclosing struct).
func (h *Header) Decr(obj Ref) {
	if h.rc == 0 {
		panic("value: double-deref of already-dead object")
	}
	h.rc--
	if h.rc == 0 && h.owner != nil {
		h.owner.Release(obj)
	}
}

func (h *Header) Marked() bool   { return h.marked }
func (h *Header) SetMark(m bool) { h.marked = m }
