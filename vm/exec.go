package vm

import (
	"github.com/chm8d/aulang/opcode"
	"github.com/chm8d/aulang/value"
)

// execFrame runs f's bytecode to completion, leaving the result in
// f.retVal. It returns only on RET/RET_LOCAL/RET_NULL (nil error) or a
// RuntimeError/FatalError partway through — there is no other exit.
func (t *Thread) execFrame(f *Frame) error {
	code := f.code
	for {
		if f.pc >= len(code) {
			return t.fatal(InvariantViolation, "fell off the end of a function body")
		}
		op := opcode.At(code, f.pc)

		switch op {
		case opcode.LOAD_SELF:
			f.self = f.locals[0]
			f.pc += opcode.Size

		case opcode.MOV_U16:
			// The uint16 operand is biased by 32767 at emit time
			// (compiler/emit_ops.go) so it can carry spec.md §8's signed
			// [-32767, 32768] literal range.
			dst := opcode.A(code, f.pc)
			f.regs[dst] = value.Int(int32(opcode.Imm16(code, f.pc)) - 32767)
			f.pc += opcode.Size

		case opcode.MOV_BOOL:
			dst := opcode.A(code, f.pc)
			f.regs[dst] = value.Bool_(opcode.Imm16(code, f.pc) != 0)
			f.pc += opcode.Size

		case opcode.LOAD_CONST:
			dst := opcode.A(code, f.pc)
			f.regs[dst] = t.materializeConst(f.data, int32(opcode.Imm16(code, f.pc)))
			f.pc += opcode.Size

		case opcode.MOV_REG_LOCAL:
			reg := opcode.A(code, f.pc)
			local := opcode.Imm16(code, f.pc)
			f.setLocal(int32(local), f.regs[reg])
			f.pc += opcode.Size

		case opcode.MOV_LOCAL_REG:
			dst := opcode.A(code, f.pc)
			local := opcode.Imm16(code, f.pc)
			f.regs[dst] = f.locals[local]
			f.pc += opcode.Size

		case opcode.MOV_REG_REG:
			dst := opcode.A(code, f.pc)
			src := opcode.B(code, f.pc)
			f.regs[dst] = f.regs[src]
			f.pc += opcode.Size

		case opcode.LOAD_NIL:
			dst := opcode.A(code, f.pc)
			f.regs[dst] = value.None()
			f.pc += opcode.Size

		case opcode.SET_CONST:
			reg := opcode.A(code, f.pc)
			t.setConst(f.data, int32(opcode.Imm16(code, f.pc)), f.regs[reg])
			f.pc += opcode.Size

		case opcode.ADD, opcode.SUB, opcode.MUL, opcode.DIV, opcode.MOD,
			opcode.EQ, opcode.NEQ, opcode.LT, opcode.GT, opcode.LEQ, opcode.GEQ:
			if err := t.execGenericBinary(f, op); err != nil {
				return err
			}
			f.pc += opcode.Size

		case opcode.ADD_INT, opcode.SUB_INT, opcode.MUL_INT, opcode.DIV_INT, opcode.MOD_INT,
			opcode.EQ_INT, opcode.NEQ_INT, opcode.LT_INT, opcode.GT_INT, opcode.LEQ_INT, opcode.GEQ_INT:
			if err := t.execSpecializedBinary(f, op, value.TagInt); err != nil {
				return err
			}
			f.pc += opcode.Size

		case opcode.ADD_DOUBLE, opcode.SUB_DOUBLE, opcode.MUL_DOUBLE, opcode.DIV_DOUBLE,
			opcode.EQ_DOUBLE, opcode.NEQ_DOUBLE, opcode.LT_DOUBLE, opcode.GT_DOUBLE, opcode.LEQ_DOUBLE, opcode.GEQ_DOUBLE:
			if err := t.execSpecializedBinary(f, op, value.TagDouble); err != nil {
				return err
			}
			f.pc += opcode.Size

		case opcode.ADD_ASG, opcode.SUB_ASG, opcode.MUL_ASG, opcode.DIV_ASG, opcode.MOD_ASG:
			reg := opcode.A(code, f.pc)
			local := opcode.Imm16(code, f.pc)
			genOp := opcode.ADD + (op - opcode.ADD_ASG)
			result := binaryOp(t, genOp, f.locals[local], f.regs[reg])
			if result.IsError() {
				return t.raise(IncompatBinOp, result)
			}
			f.setLocal(int32(local), result)
			f.pc += opcode.Size

		case opcode.NOT:
			dst := opcode.A(code, f.pc)
			src := opcode.B(code, f.pc)
			f.regs[dst] = value.Not(f.regs[src])
			f.pc += opcode.Size

		case opcode.JIF, opcode.JNIF:
			reg := opcode.A(code, f.pc)
			rel := opcode.Rel16(code, f.pc)
			cond := value.IsTruthy(f.regs[reg])
			if f.regs[reg].Tag == value.TagBool {
				if op == opcode.JIF {
					opcode.SetOp(code, f.pc, opcode.JIF_BOOL)
				} else {
					opcode.SetOp(code, f.pc, opcode.JNIF_BOOL)
				}
			}
			if op == opcode.JNIF {
				cond = !cond
			}
			if cond {
				f.pc = opcode.JumpTarget(f.pc, rel, true)
			} else {
				f.pc += opcode.Size
			}

		case opcode.JIF_BOOL, opcode.JNIF_BOOL:
			reg := opcode.A(code, f.pc)
			rel := opcode.Rel16(code, f.pc)
			if f.regs[reg].Tag != value.TagBool {
				genOp, _ := opcode.Deopt(op)
				opcode.SetOp(code, f.pc, genOp)
			}
			cond := value.IsTruthy(f.regs[reg])
			if op == opcode.JNIF_BOOL {
				cond = !cond
			}
			if cond {
				f.pc = opcode.JumpTarget(f.pc, rel, true)
			} else {
				f.pc += opcode.Size
			}

		case opcode.JREL:
			rel := opcode.Rel16(code, f.pc)
			f.pc = opcode.JumpTarget(f.pc, rel, true)

		case opcode.JRELB:
			rel := int16(opcode.Imm16(code, f.pc))
			f.pc = opcode.JumpTarget(f.pc, rel, false)

		case opcode.PUSH_ARG:
			reg := opcode.A(code, f.pc)
			t.argStack = append(t.argStack, f.regs[reg])
			f.pc += opcode.Size

		case opcode.CALL:
			dst := opcode.A(code, f.pc)
			fnIdx := opcode.Imm16(code, f.pc)
			fn := f.data.Fns[fnIdx]
			argv := t.drainArgs(functionArity(f.data, fn))
			result, err := t.invoke(f.data, fn, argv)
			if err != nil {
				return err
			}
			f.regs[dst] = result
			f.pc += opcode.Size

		case opcode.CALL1:
			reg := opcode.A(code, f.pc)
			fnIdx := opcode.Imm16(code, f.pc)
			result, err := t.callByIndex(f.data, fnIdx, []value.Value{f.regs[reg]})
			if err != nil {
				return err
			}
			f.regs[reg] = result
			f.pc += opcode.Size

		case opcode.LOAD_FUNC:
			dst := opcode.A(code, f.pc)
			fnIdx := opcode.Imm16(code, f.pc)
			fv := t.makeFnValue(f.data, fnIdx)
			f.regs[dst] = value.FromFn(fv)
			f.pc += opcode.Size

		case opcode.BIND_ARG_TO_FUNC:
			fnReg := opcode.A(code, f.pc)
			argReg := opcode.B(code, f.pc)
			fv := f.regs[fnReg].AsFn()
			if fv == nil {
				return t.fatal(InvariantViolation, "BIND_ARG_TO_FUNC on a non-function value")
			}
			fv.AddArg(f.regs[argReg])
			f.pc += opcode.Size

		case opcode.CALL_FUNC_VALUE:
			fnReg := opcode.A(code, f.pc)
			numArgs := opcode.B(code, f.pc)
			dst := opcode.C(code, f.pc)
			fv := f.regs[fnReg].AsFn()
			if fv == nil {
				return t.raise(IncompatCall, value.ErrorSentinel())
			}
			unbound := t.drainArgs(int32(numArgs))
			result, err := t.invokeFnValue(fv, unbound)
			if err != nil {
				return err
			}
			f.regs[dst] = result
			f.pc += opcode.Size

		case opcode.RET:
			reg := opcode.A(code, f.pc)
			f.retVal = f.regs[reg]
			return nil

		case opcode.RET_LOCAL:
			local := opcode.Rel16(code, f.pc)
			f.retVal = f.locals[local]
			return nil

		case opcode.RET_NULL:
			f.retVal = value.None()
			return nil

		case opcode.RAISE:
			reg := opcode.A(code, f.pc)
			return t.raise(Raised, f.regs[reg])

		case opcode.ARRAY_NEW:
			dst := opcode.A(code, f.pc)
			cap := opcode.Imm16(code, f.pc)
			f.regs[dst] = value.FromStruct(t.Heap.NewArray(int32(cap)))
			f.pc += opcode.Size

		case opcode.ARRAY_PUSH:
			arrReg := opcode.A(code, f.pc)
			valReg := opcode.B(code, f.pc)
			arr, ok := f.regs[arrReg].AsStruct().(*value.Array)
			if !ok {
				return t.fatal(InvariantViolation, "ARRAY_PUSH on a non-array value")
			}
			arr.Push(f.regs[valReg])
			f.pc += opcode.Size

		case opcode.IDX_GET:
			col := opcode.A(code, f.pc)
			idx := opcode.B(code, f.pc)
			dst := opcode.C(code, f.pc)
			s := f.regs[col].AsStruct()
			if s == nil {
				return t.raise(IndexingNonCollection, f.regs[col])
			}
			v, ok := s.IdxGet(f.regs[idx])
			if !ok {
				return t.raise(InvalidIndex, value.ErrorSentinel())
			}
			f.regs[dst] = v
			f.pc += opcode.Size

		case opcode.IDX_SET:
			col := opcode.A(code, f.pc)
			idx := opcode.B(code, f.pc)
			val := opcode.C(code, f.pc)
			s := f.regs[col].AsStruct()
			if s == nil {
				return t.raise(IndexingNonCollection, f.regs[col])
			}
			if !s.IdxSet(f.regs[idx], f.regs[val]) {
				return t.raise(InvalidIndex, value.ErrorSentinel())
			}
			f.pc += opcode.Size

		case opcode.TUPLE_NEW:
			dst := opcode.A(code, f.pc)
			length := opcode.Imm16(code, f.pc)
			f.regs[dst] = value.FromStruct(t.Heap.NewTuple(int32(length)))
			f.pc += opcode.Size

		case opcode.IDX_SET_STATIC:
			col := opcode.A(code, f.pc)
			imm := opcode.B(code, f.pc)
			val := opcode.C(code, f.pc)
			s := f.regs[col].AsStruct()
			if s == nil {
				return t.raise(IndexingNonCollection, f.regs[col])
			}
			if !s.IdxSet(value.Int(int32(imm)), f.regs[val]) {
				return t.raise(InvalidIndex, value.ErrorSentinel())
			}
			f.pc += opcode.Size

		case opcode.CLASS_NEW:
			dst := opcode.A(code, f.pc)
			classIdx := opcode.Imm16(code, f.pc)
			iface := f.data.Classes[classIdx]
			f.regs[dst] = value.FromStruct(t.Heap.NewClassInstance(iface))
			f.pc += opcode.Size

		case opcode.CLASS_GET_INNER:
			dst := opcode.A(code, f.pc)
			fieldIdx := opcode.Imm16(code, f.pc)
			inst, ok := f.self.AsStruct().(*value.ClassInstance)
			if !ok {
				return t.fatal(InvariantViolation, "CLASS_GET_INNER outside a method body")
			}
			f.regs[dst] = inst.FieldGet(int32(fieldIdx))
			f.pc += opcode.Size

		case opcode.CLASS_SET_INNER:
			src := opcode.A(code, f.pc)
			fieldIdx := opcode.Imm16(code, f.pc)
			inst, ok := f.self.AsStruct().(*value.ClassInstance)
			if !ok {
				return t.fatal(InvariantViolation, "CLASS_SET_INNER outside a method body")
			}
			inst.FieldSet(int32(fieldIdx), f.regs[src])
			f.pc += opcode.Size

		case opcode.IMPORT:
			importIdx := opcode.Imm16(code, f.pc)
			imp := f.data.Imports[importIdx]
			if imp.ModuleIdx >= 0 {
				if err := t.linkModule(f.data, imp.ModuleIdx); err != nil {
					return err
				}
			}
			f.pc += opcode.Size

		case opcode.NOP:
			f.pc += opcode.Size

		default:
			return t.fatal(UnknownOpcode, "unhandled opcode %s at pc %d", op, f.pc)
		}
	}
}

// execGenericBinary evaluates a not-yet-specialized arithmetic/compare
// opcode and, when both operands share a concrete numeric type, rewrites
// it in place to the matching specialized opcode (spec.md §4.4).
func (t *Thread) execGenericBinary(f *Frame, op opcode.Op) error {
	code := f.code
	a, b, c := opcode.A(code, f.pc), opcode.B(code, f.pc), opcode.C(code, f.pc)
	lhs, rhs := f.regs[a], f.regs[b]
	result := binaryOp(t, op, lhs, rhs)
	if result.IsError() {
		return t.raise(IncompatBinOp, result)
	}
	f.regs[c] = result
	switch {
	case lhs.Tag == value.TagInt && rhs.Tag == value.TagInt:
		opcode.SetOp(code, f.pc, op+(opcode.ADD_INT-opcode.ADD))
	case lhs.Tag == value.TagDouble && rhs.Tag == value.TagDouble && op <= opcode.DIV:
		opcode.SetOp(code, f.pc, op+(opcode.ADD_DOUBLE-opcode.ADD))
	case lhs.Tag == value.TagDouble && rhs.Tag == value.TagDouble && op >= opcode.EQ:
		opcode.SetOp(code, f.pc, op+(opcode.EQ_DOUBLE-opcode.EQ))
	}
	return nil
}

// execSpecializedBinary evaluates a specialized opcode, deoptimizing it
// back to the generic form in place the moment either operand no longer
// matches wantTag (spec.md §8 invariant: every specialized opcode must
// deoptimize on tag mismatch rather than compute a wrong answer).
func (t *Thread) execSpecializedBinary(f *Frame, op opcode.Op, wantTag value.Tag) error {
	code := f.code
	a, b, c := opcode.A(code, f.pc), opcode.B(code, f.pc), opcode.C(code, f.pc)
	lhs, rhs := f.regs[a], f.regs[b]
	genOp, _ := opcode.Deopt(op)
	if lhs.Tag != wantTag || rhs.Tag != wantTag {
		opcode.SetOp(code, f.pc, genOp)
	}
	result := binaryOp(t, genOp, lhs, rhs)
	if result.IsError() {
		return t.raise(IncompatBinOp, result)
	}
	f.regs[c] = result
	return nil
}

// binaryOp maps a generic opcode to the value package function
// implementing it. Always called with a generic (non-specialized) op —
// callers deoptimize first.
func binaryOp(t *Thread, op opcode.Op, a, b value.Value) value.Value {
	switch op {
	case opcode.ADD:
		return value.Add(t.Heap, a, b)
	case opcode.SUB:
		return value.Sub(a, b)
	case opcode.MUL:
		return value.Mul(a, b)
	case opcode.DIV:
		return value.Div(a, b)
	case opcode.MOD:
		return value.Mod(a, b)
	case opcode.EQ:
		return value.Eq(a, b)
	case opcode.NEQ:
		return value.Neq(a, b)
	case opcode.LT:
		return value.Lt(a, b)
	case opcode.GT:
		return value.Gt(a, b)
	case opcode.LEQ:
		return value.Leq(a, b)
	case opcode.GEQ:
		return value.Geq(a, b)
	default:
		return value.ErrorSentinel()
	}
}
