// Package value implements the tagged runtime value and the
// reference-counted handles it carries for heap-allocated data.
package value

import (
	"fmt"
	"math"
)

// Tag identifies which variant a Value holds.
type Tag byte

const (
	TagNone Tag = iota
	TagBool
	TagInt
	TagDouble
	TagStr
	TagStruct
	TagFn
	// TagError is a non-storable sentinel: it signals an arithmetic or
	// call failure to its immediate caller and must never survive past
	// the end of a bytecode instruction.
	TagError
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagBool:
		return "bool"
	case TagInt:
		return "int"
	case TagDouble:
		return "double"
	case TagStr:
		return "str"
	case TagStruct:
		return "struct"
	case TagFn:
		return "fn"
	case TagError:
		return "error"
	default:
		return "unknown"
	}
}

// Ref is satisfied by every heap-allocated payload a Value can point at:
// String, a Struct implementation, and FnValue. It is the minimal surface
// the refcounting machinery needs.
type Ref interface {
	Header() *Header
}

// Value is the fixed-width tagged runtime value. The first four variants
// (None/Bool/Int/Double) are inline; Str/Struct/Fn hold a refcounted
// handle in Ref. Error is a sentinel and carries no payload.
type Value struct {
	Tag    Tag
	Bool   bool
	Int    int32
	Double float64
	Ref    Ref
}

func None() Value                { return Value{Tag: TagNone} }
func Bool_(b bool) Value         { return Value{Tag: TagBool, Bool: b} }
func Int(i int32) Value          { return Value{Tag: TagInt, Int: i} }
func Double(f float64) Value     { return Value{Tag: TagDouble, Double: f} }
func FromStr(s *String) Value    { return Value{Tag: TagStr, Ref: s} }
func FromStruct(s Struct) Value  { return Value{Tag: TagStruct, Ref: s} }
func FromFn(f *FnValue) Value    { return Value{Tag: TagFn, Ref: f} }
func ErrorSentinel() Value       { return Value{Tag: TagError} }
func (v Value) IsError() bool    { return v.Tag == TagError }
func (v Value) IsHeap() bool     { return v.Tag == TagStr || v.Tag == TagStruct || v.Tag == TagFn }

// AsStruct returns v.Ref as a Struct, or nil if v does not hold one.
func (v Value) AsStruct() Struct {
	if v.Tag != TagStruct {
		return nil
	}
	s, _ := v.Ref.(Struct)
	return s
}

func (v Value) AsStr() *String {
	if v.Tag != TagStr {
		return nil
	}
	s, _ := v.Ref.(*String)
	return s
}

func (v Value) AsFn() *FnValue {
	if v.Tag != TagFn {
		return nil
	}
	f, _ := v.Ref.(*FnValue)
	return f
}

// Ref_ increments the refcount of v's handle, if it has one. Safe to call
// on inline values (no-op).
func Ref_(v Value) {
	if v.IsHeap() && v.Ref != nil {
		v.Ref.Header().Incr()
	}
}

// Deref decrements the refcount of v's handle. When the count reaches
// zero the owning heap frees the object immediately, whether or not its
// GC is enabled (see heap.Heap.Release). Deref is a no-op on inline
// values.
func Deref(v Value) {
	if !v.IsHeap() || v.Ref == nil {
		return
	}
	v.Ref.Header().Decr(v.Ref)
}

// IsTruthy implements the language's truthiness rule: false for None,
// Bool(false), Int(0); true otherwise (including Double(0), which the
// source behavior treats as truthy — only Int zero is falsy).
func IsTruthy(v Value) bool {
	switch v.Tag {
	case TagNone:
		return false
	case TagBool:
		return v.Bool
	case TagInt:
		return v.Int != 0
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Tag {
	case TagNone:
		return "none"
	case TagBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case TagInt:
		return fmt.Sprintf("%d", v.Int)
	case TagDouble:
		return formatDouble(v.Double)
	case TagStr:
		if s := v.AsStr(); s != nil {
			return s.Data
		}
		return ""
	case TagStruct:
		if s := v.AsStruct(); s != nil {
			return s.String()
		}
		return "<struct>"
	case TagFn:
		return "<fn>"
	default:
		return "<error>"
	}
}

func formatDouble(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%.1f", f)
	}
	return fmt.Sprintf("%g", f)
}
