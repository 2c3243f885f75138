package opcode

import "encoding/binary"

// Size is the fixed width of every instruction, in bytes (spec.md §4.3).
const Size = 4

// Instructions are encoded little-endian and read through safe byte
// accessors rather than unaligned native-endian loads — resolving the
// portability caveat spec.md §9 flags ("pick one and note it").

// PutABC encodes [op][a][b][c].
func PutABC(buf []byte, op Op, a, b, c byte) {
	buf[0] = byte(op)
	buf[1] = a
	buf[2] = b
	buf[3] = c
}

// PutARel encodes [op][a][rel16].
func PutARel(buf []byte, op Op, a byte, rel int16) {
	buf[0] = byte(op)
	buf[1] = a
	binary.LittleEndian.PutUint16(buf[2:4], uint16(rel))
}

// PutImm16 encodes [op][_][imm16].
func PutImm16(buf []byte, op Op, imm uint16) {
	buf[0] = byte(op)
	buf[1] = 0
	binary.LittleEndian.PutUint16(buf[2:4], imm)
}

func At(bc []byte, pc int) Op { return Op(bc[pc]) }

func A(bc []byte, pc int) byte { return bc[pc+1] }
func B(bc []byte, pc int) byte { return bc[pc+2] }
func C(bc []byte, pc int) byte { return bc[pc+3] }

func Rel16(bc []byte, pc int) int16 {
	return int16(binary.LittleEndian.Uint16(bc[pc+2 : pc+4]))
}

func Imm16(bc []byte, pc int) uint16 {
	return binary.LittleEndian.Uint16(bc[pc+2 : pc+4])
}

// SetOp rewrites only the opcode byte in place — the operation
// opcode-specialization and deoptimization perform. Per spec.md §9 the
// operand byte layout must stay invariant between a generic opcode and
// its specialized variant, which every PutABC/PutARel/PutImm16 caller in
// this module already respects by construction (operand bytes are never
// touched here).
func SetOp(bc []byte, pc int, op Op) {
	bc[pc] = byte(op)
}

// JumpTarget resolves a relative jump: rel16 counts 4-byte instruction
// slots from the instruction immediately after the jump (spec.md §4.3).
// forward is true for JREL/JIF/JNIF (add), false for JRELB (subtract).
func JumpTarget(pc int, rel int16, forward bool) int {
	next := pc + Size
	if forward {
		return next + int(rel)*Size
	}
	return next - int(rel)*Size
}
