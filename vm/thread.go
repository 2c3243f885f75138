// Package vm is the threaded-dispatch bytecode interpreter: frame
// execution, multi-dispatch calls, lazy module linking, and the
// self-modifying opcode specialization/deoptimization spec.md §4.4
// describes. Go has no computed-goto, so the dispatch loop below is an
// ordinary switch rather than the function-pointer jump table a
// from-scratch design might reach for — see DESIGN.md.
package vm

import (
	"io"
	"os"

	"github.com/chm8d/aulang/heap"
	"github.com/chm8d/aulang/program"
	"github.com/chm8d/aulang/resolver"
	"github.com/chm8d/aulang/value"
)

// MaxCallDepth bounds recursion; exceeding it is a RuntimeError of kind
// StackOverflow rather than a Go stack overflow.
const MaxCallDepth = 2048

// Thread is one execution context: a program, a heap, a call stack, the
// pending-argument stack PUSH_ARG writes to, and the native/module
// linking state built up lazily as the program runs.
type Thread struct {
	Prog  *program.Program
	Heap  *heap.Heap
	Stdout io.Writer

	Resolver resolver.Resolver

	frames   []*Frame
	argStack []value.Value

	natives map[string]value.NativeFunc

	// constCache/constMade are the single flat thread-local constant
	// cache spec.md §4.3/§4.5 describes: every linked module reserves a
	// contiguous range starting at its own ProgramData.TLConstantStart,
	// so LOAD_CONST/SET_CONST addressing is "rel_c + tl_constant_start"
	// regardless of which module's bytecode is currently executing.
	constCache []value.Value
	constMade  []bool

	linked        map[*program.ProgramData]map[int32]bool // [data][ImportedModules idx]
	loadedByPath  map[string]*program.Program              // memoizes resolver.Resolve+Parse by import path
	importPending map[string]bool                          // circular-import guard
}

// NewThread creates a thread ready to run prog. gcEnabled selects the
// mark-and-sweep backstop over pure refcounting (spec.md §4.1).
func NewThread(prog *program.Program, gcEnabled bool, res resolver.Resolver) *Thread {
	t := &Thread{
		Prog:          prog,
		Heap:          heap.New(gcEnabled),
		Stdout:        os.Stdout,
		Resolver:      res,
		natives:       make(map[string]value.NativeFunc),
		linked:        make(map[*program.ProgramData]map[int32]bool),
		loadedByPath:  make(map[string]*program.Program),
		importPending: make(map[string]bool),
	}
	t.registerModuleConsts(prog.Data)
	t.Heap.AddRoot(t)
	return t
}

// registerModuleConsts reserves data's slice of the thread's flat
// constant cache, recording the base offset on data.TLConstantStart
// (spec.md §4.5 step 5: "assign program.data.tl_constant_start =
// thread.const_len, grow const_cache by data_val.len"). Called once per
// module: here for the entry program, and from linkModule the first time
// each imported module is parsed.
func (t *Thread) registerModuleConsts(data *program.ProgramData) {
	data.TLConstantStart = len(t.constCache)
	t.constCache = append(t.constCache, make([]value.Value, len(data.DataVal))...)
	t.constMade = append(t.constMade, make([]bool, len(data.DataVal))...)
}

// RegisterNative binds symbol to fn; package native's functions are
// wired in this way instead of being hardcoded into the compiler, so
// the VM's native surface stays a pure host-side registration concern
// (spec.md §6's extern_fn ABI).
func (t *Thread) RegisterNative(symbol string, fn value.NativeFunc) {
	t.natives[symbol] = fn
}

// LiveValues implements heap.Root for the values in flight on the
// pending-argument stack between a PUSH_ARG and the CALL that drains it.
func (t *Thread) LiveValues(out []value.Value) []value.Value {
	return append(out, t.argStack...)
}

// Run executes Program.Main to completion.
func (t *Thread) Run() error {
	main := t.Prog.Main
	f := newFrame(t.Prog.Data, main.Code, main.NumRegisters, main.NumLocals, -1, nil)
	_, err := t.runFrame(f)
	return err
}

func (t *Thread) runFrame(f *Frame) (value.Value, error) {
	if len(t.frames) >= MaxCallDepth {
		return value.None(), &RuntimeError{Kind: StackOverflow, Value: value.ErrorSentinel()}
	}
	t.frames = append(t.frames, f)
	t.Heap.AddRoot(f)
	defer func() {
		t.Heap.RemoveRoot(f)
		t.frames = t.frames[:len(t.frames)-1]
	}()

	if err := t.execFrame(f); err != nil {
		// Unwind: release every local this frame owns even though it
		// never reached RET (spec.md §7's single unwind point). Each
		// nested runFrame call does the same on its own way out, so a
		// deep call stack releases top-down as the error propagates.
		f.teardown()
		return value.None(), err
	}
	return f.teardown(), nil
}

// materializeConst implements LOAD_CONST's resolution rule (spec.md
// §4.5): abs_c = rel_c + tl_constant_start; if the cache slot is already
// latched, return it; otherwise materialize data_val[rel_c] (allocating
// a heap string for a string placeholder) and latch it for next time.
func (t *Thread) materializeConst(data *program.ProgramData, relIdx int32) value.Value {
	abs := data.TLConstantStart + int(relIdx)
	if t.constMade[abs] {
		return t.constCache[abs]
	}
	entry := data.DataVal[relIdx]
	var v value.Value
	if entry.IsString {
		s := string(data.DataBuf[entry.BufIdx : entry.BufIdx+entry.BufLen])
		v = value.FromStr(t.Heap.NewString(s))
	} else {
		v = entry.RealValue
	}
	t.constCache[abs] = v
	t.constMade[abs] = true
	return v
}

// setConst implements SET_CONST: latch v into the same cache slot
// LOAD_CONST reads, but only on the first encounter — a const
// declaration's initializer runs exactly once even if its enclosing
// frame somehow executes again.
func (t *Thread) setConst(data *program.ProgramData, relIdx int32, v value.Value) {
	abs := data.TLConstantStart + int(relIdx)
	if t.constMade[abs] {
		return
	}
	value.Ref_(v)
	t.constCache[abs] = v
	t.constMade[abs] = true
}

func (t *Thread) raise(kind RuntimeErrorKind, v value.Value) error {
	return &RuntimeError{Kind: kind, Value: v}
}

func (t *Thread) fatal(kind FatalErrorKind, format string, args ...interface{}) error {
	return fatalf(kind, format, args...)
}
