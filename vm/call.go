package vm

import (
	"github.com/chm8d/aulang/program"
	"github.com/chm8d/aulang/value"
)

// fnTarget pairs a program.Function with the ProgramData it was compiled
// against. A first-class function value (LOAD_FUNC) carries one of these
// as its Target instead of a bare *program.Function, because by the time
// CALL_FUNC_VALUE invokes it the value may have been passed into a frame
// running a different module's bytecode — the function still needs its
// own module's constant pool and class table, not the caller's.
type fnTarget struct {
	data *program.ProgramData
	fn   *program.Function
}

// drainArgs pops the last n values pushed by PUSH_ARG, in push order.
func (t *Thread) drainArgs(n int32) []value.Value {
	total := len(t.argStack)
	start := total - int(n)
	args := make([]value.Value, n)
	copy(args, t.argStack[start:])
	t.argStack = t.argStack[:start]
	return args
}

// callByIndex invokes data.Fns[fnIdx] — the shape every CALL-family
// opcode resolves to once it has looked up a function table index.
func (t *Thread) callByIndex(data *program.ProgramData, fnIdx uint16, argv []value.Value) (value.Value, error) {
	if int(fnIdx) >= len(data.Fns) {
		return value.None(), t.fatal(InvariantViolation, "call to out-of-range function index %d", fnIdx)
	}
	return t.invoke(data, data.Fns[fnIdx], argv)
}

// invoke dispatches on fn.Kind, the single place every call path (direct,
// dispatch, imported, first-class) eventually funnels through.
func (t *Thread) invoke(data *program.ProgramData, fn *program.Function, argv []value.Value) (value.Value, error) {
	switch fn.Kind {
	case program.FnBytecode:
		return t.invokeBytecode(data, fn, argv)
	case program.FnNative:
		return t.invokeNative(fn, argv)
	case program.FnDispatch:
		return t.invokeDispatch(data, fn, argv)
	case program.FnImported:
		return t.invokeImported(data, fn, argv)
	default:
		return value.None(), t.fatal(InvariantViolation, "call to unresolved function %q", fn.Name)
	}
}

func (t *Thread) invokeBytecode(data *program.ProgramData, fn *program.Function, argv []value.Value) (value.Value, error) {
	bc := fn.Bytecode
	if int32(len(argv)) != bc.NumArgs {
		return value.None(), t.fatal(InvariantViolation, "wrong argument count calling %q: got %d want %d", fn.Name, len(argv), bc.NumArgs)
	}
	f := newFrame(data, bc.Code, bc.NumRegisters, bc.NumLocals, bc.ClassIdx, fn)
	for i, a := range argv {
		f.setLocal(int32(i), a)
	}
	return t.runFrame(f)
}

// invokeNative resolves fn.Symbol against the thread's native table the
// first time fn is called and caches the binding on fn.NativeFunc —
// package native's functions register themselves by name before Run, so
// every symbol a program actually calls is present by the time this runs.
func (t *Thread) invokeNative(fn *program.Function, argv []value.Value) (value.Value, error) {
	native := fn.NativeFunc
	if native == nil {
		var ok bool
		native, ok = t.natives[fn.Symbol]
		if !ok {
			return value.None(), t.fatal(InvariantViolation, "unresolved native function %q", fn.Symbol)
		}
		fn.NativeFunc = native
	}
	result := native(t, argv)
	if result.IsError() {
		return value.None(), t.raise(IncompatCall, result)
	}
	return result, nil
}

// invokeDispatch picks the Instances entry whose ClassIdx matches
// argument 0's class, falling back to FallbackFn when no instance
// matches (or argument 0 is not a class instance at all).
func (t *Thread) invokeDispatch(data *program.ProgramData, fn *program.Function, argv []value.Value) (value.Value, error) {
	if len(argv) == 0 {
		return value.None(), t.fatal(InvariantViolation, "dispatch call to %q requires a receiver argument", fn.Name)
	}
	if inst, ok := argv[0].AsStruct().(*value.ClassInstance); ok {
		if classIdx, ok := data.ClassMap[inst.Iface.Name]; ok {
			for _, di := range fn.Instances {
				if di.ClassIdx == classIdx {
					return t.callByIndex(data, uint16(di.FunctionIdx), argv)
				}
			}
		}
	}
	if fn.FallbackFn >= 0 {
		return t.callByIndex(data, uint16(fn.FallbackFn), argv)
	}
	// spec.md §4.3: a dispatch call with no matching instance and no
	// fallback raises rather than aborting the process.
	return value.None(), t.raise(IncompatCall, value.ErrorSentinel())
}

// invokeImported links the owning module on first use (spec.md §4.5 lazy
// linking), then calls straight through into the imported function's own
// module — its own data, not the importer's, since its constant/class
// indices are meaningless against the importer's tables.
func (t *Thread) invokeImported(data *program.ProgramData, fn *program.Function, argv []value.Value) (value.Value, error) {
	if fn.FnCached == nil {
		if err := t.linkModule(data, fn.ModuleIdx); err != nil {
			return value.None(), err
		}
	}
	if fn.FnCached == nil {
		return value.None(), t.raise(UnknownImportTarget, value.ErrorSentinel())
	}
	return t.invoke(fn.ProgramDataCached, fn.FnCached, argv)
}

// invokeFnValue calls a first-class function value, combining its bound
// arguments (BIND_ARG_TO_FUNC) with the unbound ones CALL_FUNC_VALUE
// supplies.
func (t *Thread) invokeFnValue(fv *value.FnValue, unbound []value.Value) (value.Value, error) {
	argv, ok := fv.Combined(unbound)
	if !ok {
		return value.None(), t.raise(IncompatCall, value.ErrorSentinel())
	}
	if fv.Kind == value.FnNative {
		result := fv.Native(t, argv)
		if result.IsError() {
			return value.None(), t.raise(IncompatCall, result)
		}
		return result, nil
	}
	ft, ok := fv.Target.(*fnTarget)
	if !ok {
		return value.None(), t.fatal(InvariantViolation, "function value has no resolvable target")
	}
	return t.invoke(ft.data, ft.fn, argv)
}

// functionArity is how many arguments CALL must drain off the argument
// stack before invoking data.Fns[fnIdx] — CALL itself carries no count,
// so the callee's own declared arity is the source of truth (spec.md
// §4.3's CALL shape is deliberately just "dst, fn_idx"). A dispatch
// entry's instances are required to share one arity; this reads it off
// whichever instance (or fallback) happens to be first, rather than
// cross-checking every instance, the same "trust the compiler" stance
// CALL1 already takes for its single-argument shortcut.
func functionArity(data *program.ProgramData, fn *program.Function) int32 {
	switch fn.Kind {
	case program.FnBytecode:
		return fn.Bytecode.NumArgs
	case program.FnDispatch:
		if len(fn.Instances) > 0 {
			return functionArity(data, data.Fns[fn.Instances[0].FunctionIdx])
		}
		if fn.FallbackFn >= 0 {
			return functionArity(data, data.Fns[fn.FallbackFn])
		}
		return 0
	case program.FnImported:
		if fn.FnCached != nil {
			return functionArity(fn.ProgramDataCached, fn.FnCached)
		}
		return fn.NumArgs
	default:
		return fn.NumArgs
	}
}

// makeFnValue builds the first-class function value LOAD_FUNC produces
// for data.Fns[fnIdx], tracked on the heap like any other allocation.
func (t *Thread) makeFnValue(data *program.ProgramData, fnIdx uint16) *value.FnValue {
	fn := data.Fns[fnIdx]
	if fn.Kind == program.FnNative {
		native := fn.NativeFunc
		if native == nil {
			native = t.natives[fn.Symbol]
		}
		return t.Heap.NewNativeFn(native, fn.NumArgs)
	}
	arity := fn.NumArgs
	if fn.Kind == program.FnBytecode {
		arity = fn.Bytecode.NumArgs
	}
	return t.Heap.NewBytecodeFn(&fnTarget{data: data, fn: fn}, arity)
}
