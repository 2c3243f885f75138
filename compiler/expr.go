package compiler

import (
	"strconv"

	"github.com/chm8d/aulang/lexer"
	"github.com/chm8d/aulang/opcode"
	"github.com/chm8d/aulang/program"
	"github.com/chm8d/aulang/value"
)

// parseExpr is the precedence-climbing entry point. Every level below
// leaves its result as the new top of f.ctx.regs' operand stack.
func (p *Parser) parseExpr() { p.parseLogicalOr() }

func (p *Parser) parseLogicalOr() {
	p.parseLogicalAnd()
	for p.at(lexer.OR_OR) {
		p.advance()
		r := p.ctx.regs.popReg()
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		p.ctx.emitMov(dst, r)
		jifPC := p.ctx.emitJIf(dst) // truthy lhs short-circuits to true
		p.parseLogicalAnd()
		rhs := p.ctx.regs.popReg()
		p.ctx.emitMov(dst, rhs)
		if err := p.ctx.patchRel(jifPC, p.ctx.here()); err != nil {
			panic(err)
		}
		// Both paths land here; a double NOT turns dst into a Bool.
		p.ctx.emitNot(dst, dst)
		p.ctx.emitNot(dst, dst)
	}
}

func (p *Parser) parseLogicalAnd() {
	p.parseEquality()
	for p.at(lexer.AND_AND) {
		p.advance()
		r := p.ctx.regs.popReg()
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		p.ctx.emitMov(dst, r)
		jnifPC := p.ctx.emitJNIf(dst) // falsy lhs short-circuits to false
		p.parseEquality()
		rhs := p.ctx.regs.popReg()
		p.ctx.emitMov(dst, rhs)
		if err := p.ctx.patchRel(jnifPC, p.ctx.here()); err != nil {
			panic(err)
		}
		// Both paths land here; a double NOT turns dst into a Bool.
		p.ctx.emitNot(dst, dst)
		p.ctx.emitNot(dst, dst)
	}
}

func (p *Parser) parseEquality() {
	p.parseComparison()
	for p.at(lexer.EQ) || p.at(lexer.NEQ) {
		op := p.cur.Type
		p.advance()
		p.parseComparison()
		p.emitBinFromStack(cmpOpFor(op))
	}
}

func (p *Parser) parseComparison() {
	p.parseAddSub()
	for p.at(lexer.LT) || p.at(lexer.GT) || p.at(lexer.LEQ) || p.at(lexer.GEQ) {
		op := p.cur.Type
		p.advance()
		p.parseAddSub()
		p.emitBinFromStack(cmpOpFor(op))
	}
}

func (p *Parser) parseAddSub() {
	p.parseMulDiv()
	for p.at(lexer.PLUS) || p.at(lexer.MINUS) {
		op := p.cur.Type
		p.advance()
		p.parseMulDiv()
		if op == lexer.PLUS {
			p.emitBinFromStack(opcode.ADD)
		} else {
			p.emitBinFromStack(opcode.SUB)
		}
	}
}

func (p *Parser) parseMulDiv() {
	p.parseUnary()
	for p.at(lexer.STAR) || p.at(lexer.SLASH) || p.at(lexer.PERCENT) {
		op := p.cur.Type
		p.advance()
		p.parseUnary()
		var bop opcode.Op
		switch op {
		case lexer.STAR:
			bop = opcode.MUL
		case lexer.SLASH:
			bop = opcode.DIV
		default:
			bop = opcode.MOD
		}
		p.emitBinFromStack(bop)
	}
}

// emitBinFromStack pops rhs then lhs (in that order — rhs was pushed
// last) and emits op(lhs, rhs) -> a fresh dst register.
func (p *Parser) emitBinFromStack(op opcode.Op) {
	rhs := p.ctx.regs.popReg()
	lhs := p.ctx.regs.popReg()
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	p.ctx.emitBin(op, lhs, rhs, dst)
}

func cmpOpFor(tt lexer.TokenType) opcode.Op {
	switch tt {
	case lexer.EQ:
		return opcode.EQ
	case lexer.NEQ:
		return opcode.NEQ
	case lexer.LT:
		return opcode.LT
	case lexer.GT:
		return opcode.GT
	case lexer.LEQ:
		return opcode.LEQ
	default:
		return opcode.GEQ
	}
}

func isAssignOp(tt lexer.TokenType) bool {
	switch tt {
	case lexer.ASSIGN, lexer.PLUS_ASSIGN, lexer.MINUS_ASSIGN, lexer.STAR_ASSIGN, lexer.SLASH_ASSIGN, lexer.PERCENT_ASSIGN:
		return true
	}
	return false
}

func asgOpFor(tt lexer.TokenType) opcode.Op {
	switch tt {
	case lexer.PLUS_ASSIGN:
		return opcode.ADD_ASG
	case lexer.MINUS_ASSIGN:
		return opcode.SUB_ASG
	case lexer.STAR_ASSIGN:
		return opcode.MUL_ASG
	case lexer.SLASH_ASSIGN:
		return opcode.DIV_ASG
	default:
		return opcode.MOD_ASG
	}
}

func (p *Parser) parseUnary() {
	switch p.cur.Type {
	case lexer.BANG:
		p.advance()
		p.parseUnary()
		src := p.ctx.regs.popReg()
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		p.ctx.emitNot(dst, src)
	case lexer.MINUS:
		p.advance()
		// A literal directly under a unary minus is constant-folded into
		// the negative value itself, rather than compiled as a runtime
		// 0-x subtraction: this is what lets -32767/32768 reach the same
		// boundary decision (MOV_U16 vs. the constant pool) spec.md §8
		// gives for positive literals.
		if p.at(lexer.INT) {
			p.parseIntLiteralNegated()
			return
		}
		p.parseUnary()
		src := p.ctx.regs.popReg()
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		zero, err2 := p.ctx.newReg()
		if err2 != nil {
			panic(err2)
		}
		p.ctx.emitMovU16(zero, 0)
		p.ctx.emitBin(opcode.SUB, zero, src, dst)
		p.ctx.regs.popReg() // discard zero; dst is the unary result
	default:
		p.parsePostfix()
	}
}

// parsePostfix handles chained index reads after a primary expression.
// Assignment through an index (`a[i] = v`) is recognized earlier, in
// parseAssignOrExpr, before this path is taken — see tryIndexAssign.
func (p *Parser) parsePostfix() {
	p.parsePrimary()
	for p.at(lexer.LBRACKET) {
		p.advance()
		p.parseExpr()
		idxReg := p.ctx.regs.popReg()
		p.expect(lexer.RBRACKET)
		colReg := p.ctx.regs.popReg()
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		p.ctx.emitIdxGet(colReg, idxReg, dst)
	}
}

func (p *Parser) parsePrimary() {
	switch p.cur.Type {
	case lexer.INT:
		p.parseIntLiteral()
	case lexer.DOUBLE:
		p.parseDoubleLiteral()
	case lexer.STRING:
		p.parseStringLiteral()
	case lexer.TRUE:
		p.advance()
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		p.ctx.emitMovBool(dst, true)
	case lexer.FALSE:
		p.advance()
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		p.ctx.emitMovBool(dst, false)
	case lexer.AT:
		p.parseAtField()
	case lexer.NEW:
		p.parseNewExpr()
	case lexer.LBRACKET:
		p.parseArrayLiteral()
	case lexer.HASH_LBRACKET:
		p.parseTupleLiteral()
	case lexer.LPAREN:
		p.advance()
		p.parseExpr()
		p.expect(lexer.RPAREN)
	case lexer.IDENT:
		p.parseIdentExpr()
	default:
		p.fail(ErrUnexpectedToken)
	}
}

func (p *Parser) parseIntLiteral() {
	tok := p.cur
	p.advance()
	n, _ := strconv.ParseInt(tok.Lit, 10, 64)
	p.emitIntConst(n)
}

// parseIntLiteralNegated handles the literal under a unary minus
// (`-32767`), folding the sign in before the MOV_U16/constant-pool
// boundary check runs, instead of negating at runtime.
func (p *Parser) parseIntLiteralNegated() {
	tok := p.cur
	p.advance()
	n, _ := strconv.ParseInt(tok.Lit, 10, 64)
	p.emitIntConst(-n)
}

// emitIntConst implements spec.md §8's literal boundary: n in
// [-32767, 32768] emits MOV_U16; everything else enters the constant
// pool via LOAD_CONST.
func (p *Parser) emitIntConst(n int64) {
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	if n >= -32767 && n <= 32768 {
		p.ctx.emitMovU16(dst, int32(n))
		return
	}
	cidx := p.prog.AddScalarConst(value.Int(int32(n)))
	p.ctx.emitLoadConst(dst, uint16(cidx))
}

func (p *Parser) parseDoubleLiteral() {
	tok := p.cur
	p.advance()
	f, _ := strconv.ParseFloat(tok.Lit, 64)
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	cidx := p.prog.AddScalarConst(value.Double(f))
	p.ctx.emitLoadConst(dst, uint16(cidx))
}

func (p *Parser) parseStringLiteral() {
	tok := p.cur
	p.advance()
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	cidx := p.prog.AddStringConst(tok.Lit)
	p.ctx.emitLoadConst(dst, uint16(cidx))
}

// resolveSelfField consumes `@ident` and returns the receiver field
// index, or panics ClassScopeOnly if used outside a HasClass method.
func (p *Parser) resolveSelfField() uint16 {
	atPos := p.cur.Pos
	if p.currentClassIdx < 0 {
		panic(newErr(ErrClassScopeOnly, atPos))
	}
	p.advance()
	fieldTok := p.expect(lexer.IDENT)
	iface := p.prog.Classes[p.currentClassIdx]
	fieldIdx, ok := iface.FieldMap[fieldTok.Lit]
	if !ok {
		panic(newErr(ErrUnknownVar, fieldTok.Pos))
	}
	return uint16(fieldIdx)
}

// parseAtField handles `@field` both as a read and — when followed by
// `=` — as a write to the current method's receiver.
func (p *Parser) parseAtField() {
	fieldIdx := p.resolveSelfField()
	if p.at(lexer.ASSIGN) {
		p.advance()
		p.parseExpr()
		reg := p.ctx.regs.popReg()
		p.ctx.emitClassSetInner(reg, fieldIdx)
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		p.ctx.emitMov(dst, reg)
		return
	}
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	p.ctx.emitClassGetInner(dst, fieldIdx)
}

func (p *Parser) parseNewExpr() {
	p.advance()
	nameTok := p.expect(lexer.IDENT)
	classIdx, ok := p.prog.ClassMap[nameTok.Lit]
	if !ok {
		panic(newErr(ErrUnknownClass, nameTok.Pos))
	}
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	p.ctx.emitClassNew(dst, uint16(classIdx))
	if p.at(lexer.LBRACE) {
		p.advance()
		iface := p.prog.Classes[classIdx]
		for !p.at(lexer.RBRACE) {
			fieldTok := p.expect(lexer.IDENT)
			p.expect(lexer.COLON)
			p.parseExpr()
			valReg := p.ctx.regs.popReg()
			fieldIdx, ok := iface.FieldMap[fieldTok.Lit]
			if !ok {
				panic(newErr(ErrUnknownVar, fieldTok.Pos))
			}
			p.ctx.emitIdxSetStatic(dst, byte(fieldIdx), valReg)
			if p.at(lexer.COMMA) {
				p.advance()
			}
		}
		p.expect(lexer.RBRACE)
	}
}

func (p *Parser) parseArrayLiteral() {
	p.advance() // [
	elems := make([]byte, 0, 4)
	for !p.at(lexer.RBRACKET) {
		p.parseExpr()
		r := p.ctx.regs.popReg()
		p.ctx.regs.inUse[r] = true // held for the ARRAY_PUSH loop below, not released yet
		elems = append(elems, r)
		if p.at(lexer.COMMA) {
			p.advance()
		}
	}
	p.expect(lexer.RBRACKET)
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	p.ctx.emitArrayNew(dst, uint16(len(elems)))
	for _, r := range elems {
		p.ctx.emitArrayPush(dst, r)
		p.ctx.regs.release(r)
	}
}

func (p *Parser) parseTupleLiteral() {
	p.advance() // #[
	elems := make([]byte, 0, 4)
	for !p.at(lexer.RBRACKET) {
		p.parseExpr()
		r := p.ctx.regs.popReg()
		p.ctx.regs.inUse[r] = true // held for the IDX_SET_STATIC loop below, not released yet
		elems = append(elems, r)
		if p.at(lexer.COMMA) {
			p.advance()
		}
	}
	p.expect(lexer.RBRACKET)
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	p.ctx.emitTupleNew(dst, uint16(len(elems)))
	for i, r := range elems {
		if i < 256 {
			p.ctx.emitIdxSetStatic(dst, byte(i), r)
		}
		p.ctx.regs.release(r)
	}
}

func (p *Parser) parseIdentExpr() {
	nameTok := p.cur
	p.advance()
	if p.at(lexer.COLONCOLON) {
		p.advance()
		fnTok := p.expect(lexer.IDENT)
		p.expect(lexer.LPAREN)
		n := p.parseArgList()
		fnIdx := p.resolveImportedFn(nameTok.Lit, fnTok.Lit, fnTok.Pos, n)
		p.emitCallSite(uint16(fnIdx), n)
		return
	}
	// A local shadows a same-named function, and a local call dispatches
	// through the function value it holds (CALL_FUNC_VALUE) rather than
	// the named-function call site a bare identifier would use.
	if slot, ok := p.ctx.locals.resolve(nameTok.Lit); ok {
		if p.at(lexer.LPAREN) {
			p.advance()
			n := p.parseArgList()
			p.emitCallThroughLocal(slot, n)
			return
		}
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		p.ctx.emitMovLocalReg(dst, slot)
		return
	}
	if p.at(lexer.LPAREN) {
		p.advance()
		n := p.parseArgList()
		fnIdx := p.resolveOrForwardFn(nameTok.Lit, nameTok.Pos)
		p.emitCallSite(uint16(fnIdx), n)
		return
	}
	if relIdx, ok := p.constNames[nameTok.Lit]; ok {
		dst, err := p.ctx.newReg()
		if err != nil {
			panic(err)
		}
		p.ctx.emitLoadConst(dst, uint16(relIdx))
		return
	}
	// Not a local, not a call, not a const: a bare function name used as
	// a first-class value (spec.md's function-value closures).
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	fnIdx := p.resolveOrForwardFn(nameTok.Lit, nameTok.Pos)
	p.ctx.emitLoadFunc(dst, uint16(fnIdx))
}

// emitCallThroughLocal compiles a call whose callee is a function value
// sitting in a local variable rather than a statically-known function
// index: load the value, then CALL_FUNC_VALUE against the n already-
// pushed arguments (spec.md's `call_vm` with zero bound args, since this
// syntax never binds any ahead of the call).
func (p *Parser) emitCallThroughLocal(slot uint16, argCount int) {
	fnReg, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	p.ctx.emitMovLocalReg(fnReg, slot)
	p.ctx.emitCallFuncValue(fnReg, byte(argCount), fnReg)
}

// parseArgList parses zero or more comma-separated argument expressions
// up to a closing ')' (already past the opening paren), pushing each
// with PUSH_ARG, and returns how many were pushed.
func (p *Parser) parseArgList() int {
	n := 0
	for !p.at(lexer.RPAREN) {
		p.parseExpr()
		reg := p.ctx.regs.popReg()
		p.ctx.emitPushArg(reg)
		n++
		if p.at(lexer.COMMA) {
			p.advance()
		}
	}
	p.expect(lexer.RPAREN)
	return n
}

// emitCallSite applies the push-then-call-1 peephole of spec.md §4.3:
// a single-argument call rewrites the immediately preceding PUSH_ARG in
// place into CALL1, which reuses that same register as both the sole
// argument and the result.
func (p *Parser) emitCallSite(fnIdx uint16, argCount int) {
	if argCount == 1 && p.ctx.havePrevInst && p.ctx.lastOp == opcode.PUSH_ARG {
		pushPC := p.ctx.lastOpPC
		argReg := opcode.A(p.ctx.code, pushPC)
		opcode.PutARel(p.ctx.code[pushPC:pushPC+opcode.Size], opcode.CALL1, argReg, int16(fnIdx))
		p.ctx.lastOp = opcode.CALL1
		p.ctx.regs.inUse[argReg] = true
		p.ctx.regs.stack = append(p.ctx.regs.stack, argReg)
		return
	}
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	p.ctx.emitCall(dst, fnIdx)
}

func (p *Parser) resolveOrForwardFn(name string, pos int) int32 {
	if idx, ok := p.prog.FnMap[name]; ok {
		return idx
	}
	fn := &program.Function{Kind: program.FnPlaceholder, Name: name, NameToken: pos}
	idx := p.prog.AddFunction(fn)
	p.prog.FnMap[name] = idx
	return idx
}

// resolveImportedFn materializes (or reuses) an Imported-kind Function
// stub for `alias::name`; the real binding happens at link time when
// the IMPORT opcode first executes (spec.md §4.5). argCount is the call
// site's own pushed-argument count, latched onto the stub's NumArgs so
// linkModule can check it against the exported function's real arity.
func (p *Parser) resolveImportedFn(alias, name string, pos int, argCount int) int32 {
	modIdx, ok := p.prog.ImportedModuleMap[alias]
	if !ok {
		panic(newErr(ErrUnknownModule, pos))
	}
	im := &p.prog.ImportedModules[modIdx]
	if idx, ok := im.FnMap[name]; ok {
		return idx
	}
	fn := &program.Function{Kind: program.FnImported, Name: name, ModuleIdx: modIdx, FnCached: nil, NumArgs: int32(argCount)}
	idx := p.prog.AddFunction(fn)
	im.FnMap[name] = idx
	return idx
}
