package heap

import "github.com/chm8d/aulang/value"

// The constructors below pair a value package allocation with Heap
// bookkeeping (Track), so callers never construct a heap object without
// registering it — mirroring spec.md §4.1's "an allocator records every
// reference-counted object ... in an intrusive linked list".

func (h *Heap) NewString(data string) *value.String {
	s := value.NewString(h, data)
	h.Track(s, int64(len(data))+16)
	return s
}

func (h *Heap) NewArray(cap int32) *value.Array {
	a := value.NewArray(h, cap)
	h.Track(a, int64(cap)*24+16)
	return a
}

func (h *Heap) NewTuple(length int32) *value.Tuple {
	t := value.NewTuple(h, length)
	h.Track(t, int64(length)*24+16)
	return t
}

func (h *Heap) NewClassInstance(iface *value.ClassInterface) *value.ClassInstance {
	c := value.NewClassInstance(h, iface)
	h.Track(c, int64(len(iface.Fields))*24+16)
	return c
}

func (h *Heap) NewBytecodeFn(target interface{}, numArgs int32) *value.FnValue {
	f := value.NewBytecodeFn(h, target, numArgs)
	h.Track(f, 32)
	return f
}

func (h *Heap) NewNativeFn(fn value.NativeFunc, numArgs int32) *value.FnValue {
	f := value.NewNativeFn(h, fn, numArgs)
	h.Track(f, 32)
	return f
}

func (h *Heap) NewAOTFn(target interface{}, numArgs int32) *value.FnValue {
	f := value.NewAOTFn(h, target, numArgs)
	h.Track(f, 32)
	return f
}
