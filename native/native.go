// Package native is the host side of the engine's native-call ABI
// (spec.md §6): a handful of demo natives plus the print primitives the
// compiler's desugared Print statement calls through. The standard
// library proper is explicitly out of scope — these exist to prove the
// ABI, not to be one.
package native

import (
	"io"

	"github.com/chm8d/aulang/value"
	"github.com/chm8d/aulang/vm"
)

// RegisterAll binds every native this package provides onto t by
// symbol name, the shape compiler-emitted Native function-table entries
// resolve against lazily on first call (vm/call.go's invokeNative).
func RegisterAll(t *vm.Thread) {
	t.RegisterNative("print_val", printVal)
	t.RegisterNative("print_sep", printSep)
	t.RegisterNative("print_nl", printNl)
	t.RegisterNative("len", lenFn)
	t.RegisterNative("push", pushFn)
}

// printVal writes args[0]'s canonical rendering with no trailing
// newline — the compiler's Print statement emits one PUSH_ARG+CALL to
// print_val per comma-separated expression, a print_sep call between
// each pair, and a single print_nl call at the end (spec.md's "comma
// print separates with space" example, §4.2).
func printVal(tl interface{}, args []value.Value) value.Value {
	th, ok := tl.(*vm.Thread)
	if !ok || len(args) != 1 {
		return value.ErrorSentinel()
	}
	io.WriteString(th.Stdout, args[0].String())
	return value.None()
}

func printSep(tl interface{}, args []value.Value) value.Value {
	th, ok := tl.(*vm.Thread)
	if !ok {
		return value.ErrorSentinel()
	}
	io.WriteString(th.Stdout, " ")
	return value.None()
}

func printNl(tl interface{}, args []value.Value) value.Value {
	th, ok := tl.(*vm.Thread)
	if !ok {
		return value.ErrorSentinel()
	}
	io.WriteString(th.Stdout, "\n")
	return value.None()
}

// lenFn reports the element count of an Array/Tuple or the byte length
// of a Str; any other tag is an Error (spec.md has no implicit
// coercion for length).
func lenFn(tl interface{}, args []value.Value) value.Value {
	if len(args) != 1 {
		return value.ErrorSentinel()
	}
	v := args[0]
	switch v.Tag {
	case value.TagStr:
		return value.Int(v.AsStr().Len())
	case value.TagStruct:
		if s := v.AsStruct(); s != nil {
			return value.Int(s.Len())
		}
	}
	return value.ErrorSentinel()
}

// pushFn appends args[1] to the Array in args[0] and returns the array
// back, so `push(a, x)` chains the way the language's other collection
// calls do.
func pushFn(tl interface{}, args []value.Value) value.Value {
	if len(args) != 2 {
		return value.ErrorSentinel()
	}
	arr, ok := args[0].AsStruct().(*value.Array)
	if !ok {
		return value.ErrorSentinel()
	}
	arr.Push(args[1])
	return args[0]
}
