// Package heap implements the allocator and optional mark-and-sweep
// collector backing value.Ref objects (spec.md §4.1).
//
// Two pools are distinguished, per spec.md: an "object pool" of
// collectible, headered allocations (String/Struct/FnValue — anything
// reachable as a value.Ref), and a "data pool" that only counts bytes
// reserved through AllocData. Only the object pool participates in GC.
// The constant pool's string bytes are not allocated here; they live in
// program.ProgramData.DataBuf.
package heap

import (
	"github.com/chm8d/aulang/logx"
	"github.com/chm8d/aulang/value"
)

// Root is anything the collector can ask for its live value.Values — a
// Frame, in vm's vocabulary. Declared here (not imported from vm) so
// heap has no dependency on vm; vm.Frame implements it.
type Root interface {
	// LiveValues appends every value.Value this root currently holds
	// (registers, locals, self, retval, bound args in flight) to out and
	// returns the result.
	LiveValues(out []value.Value) []value.Value
}

// Heap owns the object pool: every value.Ref allocated through it is
// tracked in an intrusive list so the collector can sweep it. GC can be
// disabled entirely (pure refcounting, free-on-zero) or left on as a
// backstop for reference cycles that refcounting alone cannot reclaim.
type Heap struct {
	objects   map[value.Ref]struct{}
	dataBytes int64 // data-pool accounting only; not collected
	objBytes  int64

	gcEnabled bool
	threshold int64 // collect when objBytes exceeds this
	growth    float64

	roots []Root
}

const defaultThreshold = 1 << 20 // 1 MiB of tracked object headers
const growthFactor = 1.5

// New creates an empty heap. gcEnabled selects the mark-and-sweep
// backstop; with it false, Release always frees immediately (pure
// refcounting discipline — see DESIGN.md's "delayed-RC" decision).
func New(gcEnabled bool) *Heap {
	return &Heap{
		objects:   make(map[value.Ref]struct{}),
		gcEnabled: gcEnabled,
		threshold: defaultThreshold,
		growth:    growthFactor,
	}
}

// AddRoot registers a frame (or any Root) the collector must scan. Roots
// are removed via RemoveRoot when a frame returns.
func (h *Heap) AddRoot(r Root) { h.roots = append(h.roots, r) }

func (h *Heap) RemoveRoot(r Root) {
	for i := len(h.roots) - 1; i >= 0; i-- {
		if h.roots[i] == r {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// Track registers a newly allocated object in the object pool and
// triggers a collection if the pool has grown past threshold.
func (h *Heap) Track(obj value.Ref, size int64) {
	h.objects[obj] = struct{}{}
	h.objBytes += size
	if h.gcEnabled && h.objBytes > h.threshold {
		h.Collect()
		if h.objBytes > h.threshold {
			h.threshold = int64(float64(h.threshold) * h.growth)
		}
	}
}

// Release implements value.Owner: called when an object's refcount
// reaches zero. With GC disabled this frees immediately; with it
// enabled, unreachable-but-refcount-zero objects are still common (the
// ordinary RC-hits-zero path), so we free immediately here too — the
// collector's job is cycles that refcounting can never bring to zero on
// its own, not zero-count objects, which this path already handles.
func (h *Heap) Release(obj value.Ref) {
	h.free(obj)
}

func (h *Heap) free(obj value.Ref) {
	if _, ok := h.objects[obj]; !ok {
		return
	}
	delete(h.objects, obj)
	switch o := obj.(type) {
	case interface{ Del() }:
		o.Del()
	}
}

// Collect runs a mark-and-sweep pass over every registered root and
// reclaims every unmarked object. Ordinary (non-cyclic) garbage never
// reaches this sweep at all — Release already freed it the moment its
// refcount hit zero. What survives to be unmarked here is exactly a
// reference cycle: each member's refcount is held up by the others, so
// only reachability from a root (not refcount) can tell it apart from
// live data. With GC disabled this is a no-op; callers may still invoke
// it explicitly (e.g. at module-unload) without checking the flag
// themselves.
func (h *Heap) Collect() {
	if !h.gcEnabled {
		return
	}
	for obj := range h.objects {
		obj.Header().SetMark(false)
	}
	var live []value.Value
	for _, r := range h.roots {
		live = r.LiveValues(live[:0])
		for _, v := range live {
			h.mark(v)
		}
	}
	reclaimed := 0
	for obj := range h.objects {
		if !obj.Header().Marked() {
			h.free(obj)
			reclaimed++
		}
	}
	if reclaimed > 0 {
		logx.Debugf("gc: reclaimed %d cyclic object(s), %d still tracked", reclaimed, len(h.objects))
	}
}

func (h *Heap) mark(v value.Value) {
	if !v.IsHeap() || v.Ref == nil {
		return
	}
	hdr := v.Ref.Header()
	if hdr.Marked() {
		return
	}
	hdr.SetMark(true)
	switch o := v.Ref.(type) {
	case *value.Array:
		for _, e := range o.Elements {
			h.mark(e)
		}
	case *value.Tuple:
		for _, e := range o.Elements {
			h.mark(e)
		}
	case *value.ClassInstance:
		for _, e := range o.Field {
			h.mark(e)
		}
	case *value.FnValue:
		for _, e := range o.Bound {
			h.mark(e)
		}
	}
}

// ObjectCount reports the number of live tracked objects (for tests and
// diagnostics).
func (h *Heap) ObjectCount() int { return len(h.objects) }

// AllocData reserves size bytes in the (uncollected) data pool and
// returns the running total. No package in this module calls it.
func (h *Heap) AllocData(size int64) int64 {
	h.dataBytes += size
	return h.dataBytes
}

func (h *Heap) DataBytes() int64 { return h.dataBytes }
func (h *Heap) ObjBytes() int64  { return h.objBytes }
