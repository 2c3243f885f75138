package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chm8d/aulang/opcode"
	"github.com/chm8d/aulang/program"
)

// findOp reports whether code contains an instruction with the given
// opcode, scanning in fixed 4-byte strides.
func findOp(code []byte, op opcode.Op) bool {
	for pc := 0; pc+opcode.Size <= len(code); pc += opcode.Size {
		if opcode.Op(code[pc]) == op {
			return true
		}
	}
	return false
}

func findFn(prog *program.Program, name string) *program.Function {
	for _, fn := range prog.Data.Fns {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

func TestPushThenCall1Peephole(t *testing.T) {
	// A single-argument call site rewrites its PUSH_ARG in place into
	// CALL1 (emitCallSite), so the plain CALL opcode never appears for
	// this call and no standalone PUSH_ARG survives it either.
	prog, err := Parse(`
		func id(x) { return x; }
		let r = id(5);
	`)
	require.NoError(t, err)
	assert.True(t, findOp(prog.Main.Code, opcode.CALL1), "expected CALL1 in: %v", prog.Main.Code)
	assert.False(t, findOp(prog.Main.Code, opcode.PUSH_ARG), "PUSH_ARG should have been rewritten away")
}

func TestMultiArgCallDoesNotCollapseToCall1(t *testing.T) {
	prog, err := Parse(`
		func add(a, b) { return a + b; }
		let r = add(1, 2);
	`)
	require.NoError(t, err)
	assert.True(t, findOp(prog.Main.Code, opcode.CALL), "expected plain CALL for a 2-arg call site")
	assert.True(t, findOp(prog.Main.Code, opcode.PUSH_ARG), "2-arg calls still push each argument")
}

func TestLoadThenReturnPeephole(t *testing.T) {
	// `return x` for a parameter x compiles through MOV_LOCAL_REG+RET,
	// then tryCollapseReturn rewrites that pair in place into RET_LOCAL.
	prog, err := Parse(`func f(x) { return x; }`)
	require.NoError(t, err)
	fn := findFn(prog, "f")
	require.NotNil(t, fn)
	require.Equal(t, program.FnBytecode, fn.Kind)
	assert.True(t, findOp(fn.Bytecode.Code, opcode.RET_LOCAL))
	assert.False(t, findOp(fn.Bytecode.Code, opcode.RET), "plain RET should have been collapsed away")
}

func TestReturnOfComputedExpressionDoesNotCollapse(t *testing.T) {
	// `return x + 1` ends in ADD, not a bare MOV_LOCAL_REG, so the
	// peephole's pattern match fails and a plain RET is emitted.
	prog, err := Parse(`func f(x) { return x + 1; }`)
	require.NoError(t, err)
	fn := findFn(prog, "f")
	require.NotNil(t, fn)
	assert.True(t, findOp(fn.Bytecode.Code, opcode.RET))
	assert.False(t, findOp(fn.Bytecode.Code, opcode.RET_LOCAL))
}

func TestConstDeclEmitsSetConstThenUseEmitsLoadConst(t *testing.T) {
	prog, err := Parse(`
		const LIMIT = 5 * 2;
		func overLimit(n) { return n > LIMIT; }
	`)
	require.NoError(t, err)
	assert.True(t, findOp(prog.Main.Code, opcode.SET_CONST), "const decl should latch via SET_CONST")
	fn := findFn(prog, "overLimit")
	require.NotNil(t, fn)
	assert.True(t, findOp(fn.Bytecode.Code, opcode.LOAD_CONST), "reading LIMIT from another function should emit LOAD_CONST")
}

func TestClassMethodReceiverOccupiesSlotZero(t *testing.T) {
	// compileFuncBody must declare "self" before the explicit parameters
	// and count it in NumArgs, matching LOAD_SELF's locals[0] contract.
	prog, err := Parse(`
		struct A { x }
		func (self: A) f(y) { return y; }
	`)
	require.NoError(t, err)
	fn := findFn(prog, "f")
	require.NotNil(t, fn)
	assert.Equal(t, int32(2), fn.Bytecode.NumArgs, "receiver + one declared parameter")
	assert.True(t, findOp(fn.Bytecode.Code, opcode.LOAD_SELF))
}

func TestDuplicateArgNameIsParseError(t *testing.T) {
	_, err := Parse(`func f(x, x) { return x; }`)
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, ErrDuplicateArg, pe.Kind)
}

func TestDuplicateConstNameIsParseError(t *testing.T) {
	_, err := Parse(`const X = 1; const X = 2;`)
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, ErrDuplicateConst, pe.Kind)
}

func TestDuplicateStructFieldIsParseError(t *testing.T) {
	_, err := Parse(`struct A { x, x }`)
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, ErrDuplicateProp, pe.Kind)
}

func TestDuplicateImportAliasIsParseError(t *testing.T) {
	_, err := Parse(`import "./a.au" as m; import "./b.au" as m;`)
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, ErrDuplicateModule, pe.Kind)
}

func TestRedefiningPlainFunctionIsParseError(t *testing.T) {
	// Two non-receiver definitions of the same name aren't a dispatch
	// merge candidate (that requires at least one HasClass side): a
	// second plain "f" is a genuine redefinition.
	_, err := Parse(`
		func f(x) { return x; }
		func f(y) { return y; }
	`)
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, ErrDuplicateClass, pe.Kind)
}

func TestUnknownFunctionLeavesPlaceholderUnresolved(t *testing.T) {
	_, err := Parse(`func caller() { return neverDefined(); }`)
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, ErrUnknownFunction, pe.Kind)
}

// TestRegisterPoolExhaustionIsBytecodeGenError exercises the 256-register
// ceiling: parseArrayLiteral holds every element's register live (marked
// reserved, not merely the operand-stack top) until the whole literal is
// built, so a 257-element array literal must exhaust the pool on the
// 257th element before any of them are released.
func TestRegisterPoolExhaustionIsBytecodeGenError(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("let a = [")
	for i := 0; i < AuRegs+1; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("1")
	}
	sb.WriteString("];")

	_, err := Parse(sb.String())
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, ErrBytecodeGen, pe.Kind)
}

// TestArrayLiteralPreservesElementOrder is a regression test for a bug
// where parseArrayLiteral freed each element's register immediately
// after compiling it, letting register reuse across later elements
// clobber an earlier element's value before ARRAY_PUSH ever read it.
// It asserts the fix (elements stay reserved until pushed) by counting
// distinct ARRAY_PUSH source registers rather than running the VM.
func TestArrayLiteralPreservesElementOrder(t *testing.T) {
	prog, err := Parse(`let a = [1, 2, 3, 4, 5];`)
	require.NoError(t, err)
	code := prog.Main.Code
	seen := map[byte]bool{}
	count := 0
	for pc := 0; pc+opcode.Size <= len(code); pc += opcode.Size {
		if opcode.Op(code[pc]) == opcode.ARRAY_PUSH {
			count++
			seen[opcode.B(code, pc)] = true
		}
	}
	assert.Equal(t, 5, count)
	assert.Len(t, seen, 5, "each ARRAY_PUSH should read a distinct register holding its own element")
}

func TestTupleLiteralPreservesElementOrder(t *testing.T) {
	prog, err := Parse(`let t = #[1, 2, 3];`)
	require.NoError(t, err)
	code := prog.Main.Code
	seen := map[byte]bool{}
	count := 0
	for pc := 0; pc+opcode.Size <= len(code); pc += opcode.Size {
		if opcode.Op(code[pc]) == opcode.IDX_SET_STATIC {
			count++
			seen[opcode.C(code, pc)] = true
		}
	}
	assert.Equal(t, 3, count)
	assert.Len(t, seen, 3)
}

// TestIntLiteralBoundaryUsesMovU16 and its negative counterpart exercise
// spec.md §8's exact boundary: -32767/32768 fit the biased MOV_U16
// operand, -32768/32769 don't and fall into the constant pool.
func TestIntLiteralBoundaryUsesMovU16(t *testing.T) {
	prog, err := Parse(`print 32768;`)
	require.NoError(t, err)
	assert.True(t, findOp(prog.Main.Code, opcode.MOV_U16))
	assert.False(t, findOp(prog.Main.Code, opcode.LOAD_CONST))
}

func TestIntLiteralJustOverBoundaryUsesConstantPool(t *testing.T) {
	prog, err := Parse(`print 32769;`)
	require.NoError(t, err)
	assert.False(t, findOp(prog.Main.Code, opcode.MOV_U16))
	assert.True(t, findOp(prog.Main.Code, opcode.LOAD_CONST))
}

func TestNegativeIntLiteralBoundaryUsesMovU16(t *testing.T) {
	prog, err := Parse(`print -32767;`)
	require.NoError(t, err)
	assert.True(t, findOp(prog.Main.Code, opcode.MOV_U16))
	assert.False(t, findOp(prog.Main.Code, opcode.LOAD_CONST))
}

func TestNegativeIntLiteralJustUnderBoundaryUsesConstantPool(t *testing.T) {
	prog, err := Parse(`print -32768;`)
	require.NoError(t, err)
	assert.False(t, findOp(prog.Main.Code, opcode.MOV_U16))
	assert.True(t, findOp(prog.Main.Code, opcode.LOAD_CONST))
}

// TestUnaryMinusOnNonLiteralStillUsesRuntimeSubtraction documents that
// the constant-folding path in parseUnary only applies when a literal
// sits directly under the minus; `-x` for a variable x still negates via
// a runtime 0-x SUB.
func TestUnaryMinusOnNonLiteralStillUsesRuntimeSubtraction(t *testing.T) {
	prog, err := Parse(`func f(x) { return -x; }`)
	require.NoError(t, err)
	fn := findFn(prog, "f")
	require.NotNil(t, fn)
	assert.True(t, findOp(fn.Bytecode.Code, opcode.SUB))
}

func TestForwardReferenceResolvesToSameFunctionIndex(t *testing.T) {
	// main() calls fib() before fib is declared: resolveOrForwardFn must
	// hand back a Placeholder now and have declareOrMergeFunction fill
	// the same slot in once fib's real definition is parsed.
	prog, err := Parse(`
		func main() { return fib(1); }
		func fib(n) { return n; }
	`)
	require.NoError(t, err)
	for _, fn := range prog.Data.Fns {
		assert.NotEqual(t, program.FnPlaceholder, fn.Kind, "leftover placeholder: %s", fn.Name)
	}
}
