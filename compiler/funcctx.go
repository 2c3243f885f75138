package compiler

import (
	"github.com/chm8d/aulang/opcode"
	"github.com/chm8d/aulang/program"
)

// funcCtx is the code-generation context for a single function body (or
// the top-level "main" sequence). Exactly one is active at a time —
// au has no nested function literals, so these are never stacked.
type funcCtx struct {
	code   []byte
	regs   regAllocator
	locals *localAllocator

	funcIdx  int32 // index into prog.Fns, or -1 for Program.Main
	classIdx int32 // -1 unless this is a HasClass method

	// lastStmtReturned lets the if/else codegen skip the trailing JREL
	// when the branch body's last statement already returned.
	lastStmtReturned bool

	// peephole state: remember the last emitted instruction's shape so
	// the two optimizations in spec.md §4.3 can recognize their pattern.
	lastOp       opcode.Op
	lastOpPC     int
	havePrevInst bool
}

func newFuncCtx(funcIdx, classIdx int32) *funcCtx {
	return &funcCtx{locals: newLocalAllocator(), funcIdx: funcIdx, classIdx: classIdx}
}

// emit appends a 4-byte instruction and records it as the most recent
// one for peephole recognition.
func (f *funcCtx) emit(buf [opcode.Size]byte) int {
	pc := len(f.code)
	f.code = append(f.code, buf[:]...)
	f.havePrevInst = true
	f.lastOp = opcode.Op(buf[0])
	f.lastOpPC = pc
	return pc
}

func (f *funcCtx) emitABC(op opcode.Op, a, b, c byte) int {
	var buf [opcode.Size]byte
	opcode.PutABC(buf[:], op, a, b, c)
	return f.emit(buf)
}

func (f *funcCtx) emitARel(op opcode.Op, a byte, rel int16) int {
	var buf [opcode.Size]byte
	opcode.PutARel(buf[:], op, a, rel)
	return f.emit(buf)
}

func (f *funcCtx) emitImm16(op opcode.Op, imm uint16) int {
	var buf [opcode.Size]byte
	opcode.PutImm16(buf[:], op, imm)
	return f.emit(buf)
}

// patchRel backpatches the rel16 field of the instruction at pc once its
// jump target is known, enforcing the 65535-instruction-slot bound.
func (f *funcCtx) patchRel(pc int, target int) error {
	rel := (target - (pc + opcode.Size)) / opcode.Size
	if rel < 0 {
		rel = -rel
	}
	if rel > 65535 {
		return newErr(ErrBytecodeGen, pc)
	}
	opcode.PutARel(f.code[pc:pc+opcode.Size], opcode.Op(f.code[pc]), f.code[pc+1], int16(rel))
	return nil
}

func (f *funcCtx) here() int { return len(f.code) }

func (f *funcCtx) newReg() (byte, error) {
	r, ok := f.regs.newReg()
	if !ok {
		return 0, newErr(ErrBytecodeGen, f.here())
	}
	return r, nil
}

func (f *funcCtx) storage(numArgs int32) *program.BytecodeStorage {
	return &program.BytecodeStorage{
		Code:         f.code,
		NumArgs:      numArgs,
		NumLocals:    int32(f.locals.maxSlot),
		NumRegisters: f.regs.highWater,
		NumValues:    int32(f.locals.maxSlot) + f.regs.highWater,
		ClassIdx:     f.classIdx,
		FuncIdx:      f.funcIdx,
	}
}

// endsInReturn reports whether the instruction just emitted is one of
// the RET family, used by if/else codegen to elide a dead JREL.
func (f *funcCtx) endsInReturn() bool {
	if !f.havePrevInst {
		return false
	}
	switch f.lastOp {
	case opcode.RET, opcode.RET_LOCAL, opcode.RET_NULL, opcode.RAISE:
		return true
	default:
		return false
	}
}
