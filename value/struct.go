package value

import (
	"fmt"
	"strings"
)

// Struct is the small vtable every collection/instance kind implements,
// per spec.md §4.1. It embeds Ref (Header access) plus the four
// operations the VM drives collections and class instances through.
type Struct interface {
	Ref
	// Del releases every Value this struct holds (called once, from the
	// owning heap, when the struct's own refcount reaches zero).
	Del()
	IdxGet(idx Value) (Value, bool)
	IdxSet(idx Value, v Value) bool
	Len() int32
	String() string
}

// ---- Array: growable vector of values -------------------------------

type Array struct {
	hdr      Header
	Elements []Value
}

func NewArray(owner Owner, cap int32) *Array {
	if cap < 0 {
		cap = 0
	}
	return &Array{hdr: NewHeader(owner), Elements: make([]Value, 0, cap)}
}

func (a *Array) Header() *Header { return &a.hdr }

func (a *Array) Push(v Value) {
	Ref_(v)
	a.Elements = append(a.Elements, v)
}

func (a *Array) Del() {
	for _, v := range a.Elements {
		Deref(v)
	}
	a.Elements = nil
}

func (a *Array) Len() int32 { return int32(len(a.Elements)) }

func (a *Array) IdxGet(idx Value) (Value, bool) {
	i, ok := intIndex(idx)
	if !ok || i < 0 || int(i) >= len(a.Elements) {
		return Value{}, false
	}
	return a.Elements[i], true
}

func (a *Array) IdxSet(idx Value, v Value) bool {
	i, ok := intIndex(idx)
	if !ok || i < 0 || int(i) >= len(a.Elements) {
		return false
	}
	old := a.Elements[i]
	Ref_(v)
	a.Elements[i] = v
	Deref(old)
	return true
}

func (a *Array) String() string {
	parts := make([]string, len(a.Elements))
	for i, v := range a.Elements {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ---- Tuple: fixed-length indexable -----------------------------------

type Tuple struct {
	hdr      Header
	Elements []Value
}

func NewTuple(owner Owner, length int32) *Tuple {
	if length < 0 {
		length = 0
	}
	elems := make([]Value, length)
	for i := range elems {
		elems[i] = None()
	}
	return &Tuple{hdr: NewHeader(owner), Elements: elems}
}

func (t *Tuple) Header() *Header { return &t.hdr }

func (t *Tuple) Del() {
	for _, v := range t.Elements {
		Deref(v)
	}
	t.Elements = nil
}

func (t *Tuple) Len() int32 { return int32(len(t.Elements)) }

func (t *Tuple) IdxGet(idx Value) (Value, bool) {
	i, ok := intIndex(idx)
	if !ok || i < 0 || int(i) >= len(t.Elements) {
		return Value{}, false
	}
	return t.Elements[i], true
}

func (t *Tuple) IdxSet(idx Value, v Value) bool {
	i, ok := intIndex(idx)
	if !ok || i < 0 || int(i) >= len(t.Elements) {
		return false
	}
	old := t.Elements[i]
	Ref_(v)
	t.Elements[i] = v
	Deref(old)
	return true
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.Elements))
	for i, v := range t.Elements {
		parts[i] = v.String()
	}
	return "#[" + strings.Join(parts, ", ") + "]"
}

// ---- ClassInstance: inline array of fields addressed by property index --

// ClassInterface is the immutable description of a class: name, a
// visibility flag, and the field name -> index map. Instances hold a
// shared pointer to one; it outlives every instance and is shared by
// reference across modules that import the class (spec.md §3).
type ClassInterface struct {
	Name     string
	Exported bool
	FieldMap map[string]int32
	Fields   []string // index -> name, for diagnostics
}

func NewClassInterface(name string, exported bool, fields []string) *ClassInterface {
	fm := make(map[string]int32, len(fields))
	for i, f := range fields {
		fm[f] = int32(i)
	}
	return &ClassInterface{Name: name, Exported: exported, FieldMap: fm, Fields: fields}
}

type ClassInstance struct {
	hdr   Header
	Iface *ClassInterface
	Field []Value
}

func NewClassInstance(owner Owner, iface *ClassInterface) *ClassInstance {
	fields := make([]Value, len(iface.Fields))
	for i := range fields {
		fields[i] = None()
	}
	return &ClassInstance{hdr: NewHeader(owner), Iface: iface, Field: fields}
}

func (c *ClassInstance) Header() *Header { return &c.hdr }

func (c *ClassInstance) Del() {
	for _, v := range c.Field {
		Deref(v)
	}
	c.Field = nil
}

func (c *ClassInstance) Len() int32 { return int32(len(c.Field)) }

// IdxGet/IdxSet on a class instance address fields by the same integer
// index FieldGet/FieldSet do; they exist so ClassInstance also satisfies
// Struct, which lets IDX_SET_STATIC double as the constructor-block
// field initializer (compiler/expr.go's parseNewExpr) without a
// class-specific opcode of its own.
func (c *ClassInstance) IdxGet(idx Value) (Value, bool) {
	i, ok := intIndex(idx)
	if !ok || i < 0 || int(i) >= len(c.Field) {
		return Value{}, false
	}
	return c.Field[i], true
}

func (c *ClassInstance) IdxSet(idx Value, v Value) bool {
	i, ok := intIndex(idx)
	if !ok || i < 0 || int(i) >= len(c.Field) {
		return false
	}
	old := c.Field[i]
	Ref_(v)
	c.Field[i] = v
	Deref(old)
	return true
}

func (c *ClassInstance) String() string {
	return fmt.Sprintf("<%s instance>", c.Iface.Name)
}

// FieldGet/FieldSet are the direct, index-stable accessors the VM's
// CLASS_GET_INNER/CLASS_SET_INNER opcodes use.
func (c *ClassInstance) FieldGet(idx int32) Value {
	if idx < 0 || int(idx) >= len(c.Field) {
		return None()
	}
	return c.Field[idx]
}

func (c *ClassInstance) FieldSet(idx int32, v Value) {
	if idx < 0 || int(idx) >= len(c.Field) {
		return
	}
	old := c.Field[idx]
	Ref_(v)
	c.Field[idx] = v
	Deref(old)
}

func intIndex(idx Value) (int32, bool) {
	if idx.Tag != TagInt {
		return 0, false
	}
	return idx.Int, true
}
