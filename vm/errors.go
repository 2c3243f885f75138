package vm

import (
	"fmt"

	"github.com/chm8d/aulang/value"
)

// RuntimeErrorKind enumerates spec.md §7's RuntimeError taxonomy: every
// operation that returns Error at the bytecode level (bad bin-op types,
// bad call shape, bad index, indexing a non-collection) plus the source
// language's own `raise`, all of which the running program can in
// principle recover from. Grounded on the teacher's category-sentinel
// split in errors.go (ErrInvalidOperandType, ErrDivisionByZero,
// ErrClassNotFound, ErrFunctionNotFound, ...) collapsed here into one
// enum with a Kind field rather than one sentinel per condition.
type RuntimeErrorKind byte

const (
	IncompatBinOp RuntimeErrorKind = iota
	IncompatCall
	IndexingNonCollection
	InvalidIndex
	StackOverflow
	UnknownImportTarget
	CircularImport
	ArityMismatchOnImport
	// Raised tags a value an explicit `raise` statement produced; it has
	// no operation-specific shape of its own. (A native callee's error
	// sentinel is reported as IncompatCall instead.)
	Raised
)

var runtimeErrorKindNames = [...]string{
	"IncompatBinOp", "IncompatCall", "IndexingNonCollection", "InvalidIndex",
	"StackOverflow", "UnknownImportTarget", "CircularImport", "ArityMismatchOnImport",
	"Raised",
}

func (k RuntimeErrorKind) String() string {
	if int(k) < len(runtimeErrorKindNames) {
		return runtimeErrorKindNames[k]
	}
	return "Unknown"
}

// RuntimeError wraps a value the program itself raised or an operation
// failed to compute (spec.md §7): scripts can recover from these in
// principle, though this module does not yet expose a catch construct,
// so today every RuntimeError unwinds the whole thread.
type RuntimeError struct {
	Kind  RuntimeErrorKind
	Value value.Value
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error (%s): %s", e.Kind, e.Value.String())
}

// FatalErrorKind enumerates spec.md §7's Fatal taxonomy: conditions the
// running program cannot itself cause or recover from.
type FatalErrorKind byte

const (
	UnknownOpcode FatalErrorKind = iota
	OutOfMemory
	InvariantViolation
)

var fatalErrorKindNames = [...]string{"UnknownOpcode", "OutOfMemory", "InvariantViolation"}

func (k FatalErrorKind) String() string {
	if int(k) < len(fatalErrorKindNames) {
		return fatalErrorKindNames[k]
	}
	return "Unknown"
}

// FatalError covers everything the running program cannot itself cause
// or handle: malformed bytecode, a corrupt function table, an allocator
// failure.
type FatalError struct {
	Kind FatalErrorKind
	Msg  string
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal (%s): %s", e.Kind, e.Msg) }

func fatalf(kind FatalErrorKind, format string, args ...interface{}) error {
	return &FatalError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
