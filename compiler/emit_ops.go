package compiler

import "github.com/chm8d/aulang/opcode"

// One small wrapper per opcode shape, so parser.go reads as grammar,
// not byte-twiddling. Operand orderings follow spec.md §4.3's naming.

// emitMovU16 emits MOV_U16 for n, a value in [-32767, 32768] (spec.md
// §4.3/§8): the signed range is biased onto the opcode's uint16 operand
// by adding 32767 at encode time, so the VM's decode is the inverse
// subtraction regardless of whether n itself is negative.
func (f *funcCtx) emitMovU16(reg byte, n int32) {
	f.emitARel(opcode.MOV_U16, reg, int16(uint16(n+32767)))
}
func (f *funcCtx) emitMovBool(reg byte, b bool) {
	v := uint16(0)
	if b {
		v = 1
	}
	f.emitARel(opcode.MOV_BOOL, reg, int16(v))
}
func (f *funcCtx) emitLoadConst(reg byte, cidx uint16) { f.emitARel(opcode.LOAD_CONST, reg, int16(cidx)) }
func (f *funcCtx) emitLoadNil(reg byte)                { f.emitABC(opcode.LOAD_NIL, reg, 0, 0) }
func (f *funcCtx) emitLoadSelf()                       { f.emitABC(opcode.LOAD_SELF, 0, 0, 0) }

// emitMovRegLocal returns the pc of the emitted instruction so the
// load-then-return peephole can find and rewrite it.
func (f *funcCtx) emitMovRegLocal(reg byte, local uint16) int {
	return f.emitARel(opcode.MOV_REG_LOCAL, reg, int16(local))
}
func (f *funcCtx) emitMovLocalReg(dstReg byte, local uint16) {
	f.emitARel(opcode.MOV_LOCAL_REG, dstReg, int16(local))
}
func (f *funcCtx) emitMov(dst, src byte) { f.emitABC(opcode.MOV_REG_REG, dst, src, 0) }
func (f *funcCtx) emitSetConst(reg byte, absConst uint16) {
	f.emitARel(opcode.SET_CONST, reg, int16(absConst))
}

func (f *funcCtx) emitBin(op opcode.Op, lhs, rhs, dst byte) { f.emitABC(op, lhs, rhs, dst) }
func (f *funcCtx) emitAsg(op opcode.Op, reg byte, local uint16) {
	f.emitARel(op, reg, int16(local))
}
func (f *funcCtx) emitNot(dst, src byte) { f.emitABC(opcode.NOT, dst, src, 0) }

func (f *funcCtx) emitJIf(reg byte) int   { return f.emitARel(opcode.JIF, reg, 0) }
func (f *funcCtx) emitJNIf(reg byte) int  { return f.emitARel(opcode.JNIF, reg, 0) }
func (f *funcCtx) emitJRel() int          { return f.emitImm16(opcode.JREL, 0) }
func (f *funcCtx) emitJRelB(rel int16) int { return f.emitImm16(opcode.JRELB, uint16(rel)) }

func (f *funcCtx) emitPushArg(reg byte) int { return f.emitABC(opcode.PUSH_ARG, reg, 0, 0) }
func (f *funcCtx) emitCall(dst byte, fnIdx uint16) { f.emitARel(opcode.CALL, dst, int16(fnIdx)) }
func (f *funcCtx) emitCall1(reg byte, fnIdx uint16) {
	f.emitARel(opcode.CALL1, reg, int16(fnIdx))
}
func (f *funcCtx) emitLoadFunc(dst byte, fnIdx uint16) { f.emitARel(opcode.LOAD_FUNC, dst, int16(fnIdx)) }
func (f *funcCtx) emitBindArg(fnReg, argReg byte)      { f.emitABC(opcode.BIND_ARG_TO_FUNC, fnReg, argReg, 0) }
func (f *funcCtx) emitCallFuncValue(fnReg, numArgs, dst byte) {
	f.emitABC(opcode.CALL_FUNC_VALUE, fnReg, numArgs, dst)
}
func (f *funcCtx) emitRet(reg byte)         { f.emitABC(opcode.RET, reg, 0, 0) }
func (f *funcCtx) emitRetLocal(local uint16) { f.emitARel(opcode.RET_LOCAL, 0, int16(local)) }
func (f *funcCtx) emitRetNull()             { f.emitABC(opcode.RET_NULL, 0, 0, 0) }
func (f *funcCtx) emitRaise(reg byte)       { f.emitABC(opcode.RAISE, reg, 0, 0) }

func (f *funcCtx) emitArrayNew(dst byte, cap uint16) { f.emitARel(opcode.ARRAY_NEW, dst, int16(cap)) }
func (f *funcCtx) emitArrayPush(arr, val byte)       { f.emitABC(opcode.ARRAY_PUSH, arr, val, 0) }
func (f *funcCtx) emitIdxGet(col, idx, dst byte)     { f.emitABC(opcode.IDX_GET, col, idx, dst) }
func (f *funcCtx) emitIdxSet(col, idx, val byte)     { f.emitABC(opcode.IDX_SET, col, idx, val) }
func (f *funcCtx) emitTupleNew(dst byte, length uint16) {
	f.emitARel(opcode.TUPLE_NEW, dst, int16(length))
}
func (f *funcCtx) emitIdxSetStatic(col, imm8idx, val byte) {
	f.emitABC(opcode.IDX_SET_STATIC, col, imm8idx, val)
}

func (f *funcCtx) emitClassNew(dst byte, classIdx uint16) {
	f.emitARel(opcode.CLASS_NEW, dst, int16(classIdx))
}
func (f *funcCtx) emitClassGetInner(dst byte, fieldIdx uint16) {
	f.emitARel(opcode.CLASS_GET_INNER, dst, int16(fieldIdx))
}
func (f *funcCtx) emitClassSetInner(src byte, fieldIdx uint16) {
	f.emitARel(opcode.CLASS_SET_INNER, src, int16(fieldIdx))
}

func (f *funcCtx) emitImport(importIdx uint16) { f.emitImm16(opcode.IMPORT, importIdx) }
func (f *funcCtx) emitNop()                    { f.emitABC(opcode.NOP, 0, 0, 0) }
