// Package compiler is the single-pass recursive-descent parser and code
// generator of spec.md §4.3: it consumes tokens from package lexer and
// emits 4-byte bytecode directly — there is no intermediate AST.
package compiler

import (
	"strconv"

	"github.com/chm8d/aulang/lexer"
	"github.com/chm8d/aulang/opcode"
	"github.com/chm8d/aulang/program"
	"github.com/chm8d/aulang/value"
)

// Parser holds all compile-time state for one module: the lexer, the
// one-token lookahead spec.md §4.3 requires, the ProgramData being
// populated, and whichever funcCtx is currently emitting (main, or the
// body of whatever func/method declaration is in progress).
type Parser struct {
	lx   *lexer.Lexer
	cur  lexer.Token
	peek lexer.Token

	prog *program.ProgramData
	ctx  *funcCtx // active emission target

	currentClassIdx int32 // -1 unless compiling a HasClass method body

	// Internal native function indices for the `print` statement's
	// desugaring; never reachable by name from user source.
	printValFn int32
	printSepFn int32
	printNlFn  int32

	// constNames maps a `const` declaration's name to its slot in the
	// thread-local constant cache (program.ProgramData.DataVal, addressed
	// relative to TLConstantStart). Consts are thread-global rather than
	// frame-local, so every function body — not just the one the const
	// was declared in — resolves a matching identifier here, once it is
	// neither one of that body's locals nor a call.
	constNames map[string]int32
}

// Parse implements the "Parser entry point" of spec.md §6:
// parse(src, len) -> Program | ParseError.
func Parse(src string) (prog *program.Program, err error) {
	p := &Parser{prog: program.NewProgramData(), currentClassIdx: -1, constNames: make(map[string]int32)}
	p.lx = lexer.New(src)
	p.cur = p.lx.NextToken()
	p.peek = p.lx.NextToken()

	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*ParseError); ok {
				err = pe
				return
			}
			panic(r)
		}
	}()

	mainCtx := newFuncCtx(-1, -1)
	p.ctx = mainCtx
	p.registerBuiltins()

	for p.cur.Type != lexer.EOF {
		p.parseTopLevel()
	}

	if !mainCtx.endsInReturn() {
		mainCtx.emitRetNull()
	}

	if err := p.checkUnresolved(); err != nil {
		return nil, err
	}

	return &program.Program{Main: mainCtx.storage(0), Data: p.prog}, nil
}

// registerBuiltins seeds the three native entry points `print` desugars
// to. They carry Kind: FnNative with a nil NativeFunc — package vm binds
// the real Go function by Symbol name the first time each one is called,
// looking it up among the natives registered on the thread, the same
// mechanism any host-registered native uses (spec.md §5).
func (p *Parser) registerBuiltins() {
	p.printValFn = p.prog.AddFunction(&program.Function{Kind: program.FnNative, Name: "$print_val", NumArgs: 1, Symbol: "print_val"})
	p.printSepFn = p.prog.AddFunction(&program.Function{Kind: program.FnNative, Name: "$print_sep", NumArgs: 0, Symbol: "print_sep"})
	p.printNlFn = p.prog.AddFunction(&program.Function{Kind: program.FnNative, Name: "$print_nl", NumArgs: 0, Symbol: "print_nl"})
}

func (p *Parser) checkUnresolved() error {
	for _, fn := range p.prog.Fns {
		if fn.Kind == program.FnPlaceholder {
			return &ParseError{Kind: ErrUnknownFunction, Pos: fn.NameToken, Got: fn.Name}
		}
	}
	return nil
}

// ---- token plumbing ---------------------------------------------------

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lx.NextToken()
}

func (p *Parser) at(tt lexer.TokenType) bool { return p.cur.Type == tt }

func (p *Parser) expect(tt lexer.TokenType) lexer.Token {
	if p.cur.Type != tt {
		panic(&ParseError{Kind: ErrUnexpectedToken, Pos: p.cur.Pos, Got: p.cur.Lit, Expected: tokenName(tt)})
	}
	tok := p.cur
	p.advance()
	return tok
}

func tokenName(tt lexer.TokenType) string {
	return strconv.Itoa(int(tt))
}

func (p *Parser) fail(kind ErrKind) {
	panic(&ParseError{Kind: kind, Pos: p.cur.Pos, Got: p.cur.Lit})
}

// ---- top level ---------------------------------------------------------

func (p *Parser) parseTopLevel() {
	switch p.cur.Type {
	case lexer.FUNC:
		p.parseFuncDecl(false)
	case lexer.STRUCT:
		p.parseClassDecl(false)
	case lexer.IMPORT:
		p.parseImport()
	case lexer.EXPORT:
		p.advance()
		switch p.cur.Type {
		case lexer.FUNC:
			p.parseFuncDecl(true)
		case lexer.STRUCT:
			p.parseClassDecl(true)
		case lexer.CONST:
			p.parseConstDecl(true)
			p.expect(lexer.SEMI)
		default:
			p.fail(ErrExpectGlobalScope)
		}
	default:
		p.parseStatement()
	}
}

// ---- declarations --------------------------------------------------

func (p *Parser) parseImport() {
	p.advance()
	pathTok := p.expect(lexer.STRING)
	alias := ""
	if p.at(lexer.AS) {
		p.advance()
		alias = p.expect(lexer.IDENT).Lit
	}
	if p.at(lexer.SEMI) {
		p.advance() // the trailing ';' is optional
	}
	moduleIdx := int32(-1)
	if alias != "" {
		if _, dup := p.prog.ImportedModuleMap[alias]; dup {
			panic(newErr(ErrDuplicateModule, pathTok.Pos))
		}
		moduleIdx = int32(len(p.prog.ImportedModules))
		p.prog.ImportedModules = append(p.prog.ImportedModules, program.ImportedModule{
			FnMap: make(map[string]int32), ClassMap: make(map[string]int32),
			ConstMap: make(map[string]int32), StdlibIdx: -1,
		})
		p.prog.ImportedModuleMap[alias] = moduleIdx
	}
	importIdx := int32(len(p.prog.Imports))
	p.prog.Imports = append(p.prog.Imports, program.Import{Path: pathTok.Lit, ModuleIdx: moduleIdx})
	p.ctx.emitImport(uint16(importIdx))
}

func (p *Parser) parseClassDecl(exported bool) {
	p.advance()
	nameTok := p.expect(lexer.IDENT)
	if _, dup := p.prog.ClassMap[nameTok.Lit]; dup {
		panic(newErr(ErrDuplicateClass, nameTok.Pos))
	}
	var fields []string
	if p.at(lexer.LBRACE) {
		p.advance()
		seen := map[string]bool{}
		for !p.at(lexer.RBRACE) {
			f := p.expect(lexer.IDENT)
			if seen[f.Lit] {
				panic(newErr(ErrDuplicateProp, f.Pos))
			}
			seen[f.Lit] = true
			fields = append(fields, f.Lit)
			if p.at(lexer.COMMA) {
				p.advance()
			}
		}
		p.expect(lexer.RBRACE)
	} else {
		p.expect(lexer.SEMI)
	}
	iface := value.NewClassInterface(nameTok.Lit, exported, fields)
	p.prog.AddClass(iface)
}

// parseConstDecl compiles `const NAME = expr`. Unlike a `let`, a const's
// value lives in the thread-local constant cache, not a frame's locals —
// every function in the module (and, for an exported const, every
// importer) reads it with LOAD_CONST, so it is visible outside the
// top-level block it was declared in. SET_CONST latches the computed
// value into that cache the one time this declaration's code runs
// (spec.md §4.5).
func (p *Parser) parseConstDecl(exported bool) {
	p.advance()
	nameTok := p.expect(lexer.IDENT)
	if _, dup := p.constNames[nameTok.Lit]; dup {
		panic(newErr(ErrDuplicateConst, nameTok.Pos))
	}
	p.expect(lexer.ASSIGN)
	p.parseExpr()
	relIdx := p.prog.AddScalarConst(value.None())
	reg := p.ctx.regs.popReg()
	p.ctx.emitSetConst(reg, uint16(relIdx))
	p.constNames[nameTok.Lit] = relIdx
	if exported {
		if _, dup := p.prog.ExportedConsts[nameTok.Lit]; dup {
			panic(newErr(ErrDuplicateConst, nameTok.Pos))
		}
		p.prog.ExportedConsts[nameTok.Lit] = relIdx
	}
}

// funcSig is the parsed head of a `func` declaration.
type funcSig struct {
	name       string
	args       []string
	hasClass   bool
	classIdx   int32
	exported   bool
}

func (p *Parser) parseFuncDecl(exported bool) {
	p.advance() // 'func'
	sig := funcSig{exported: exported, classIdx: -1}

	if p.at(lexer.LPAREN) {
		p.advance()
		p.expect(lexer.IDENT) // 'self' binding name, conventionally "self"
		p.expect(lexer.COLON)
		classTok := p.expect(lexer.IDENT)
		className := classTok.Lit
		if p.at(lexer.COLONCOLON) {
			p.advance()
			// mod::Class — only the name after `::` is used, looked up in
			// this module's own class table below; a class that exists only
			// in the imported module is not found and is an ErrUnknownClass.
			className = p.expect(lexer.IDENT).Lit
		}
		p.expect(lexer.RPAREN)
		idx, ok := p.prog.ClassMap[className]
		if !ok {
			panic(newErr(ErrUnknownClass, classTok.Pos))
		}
		sig.hasClass = true
		sig.classIdx = idx
	}

	nameTok := p.expect(lexer.IDENT)
	sig.name = nameTok.Lit
	p.expect(lexer.LPAREN)
	for !p.at(lexer.RPAREN) {
		argTok := p.expect(lexer.IDENT)
		for _, a := range sig.args {
			if a == argTok.Lit {
				panic(newErr(ErrDuplicateArg, argTok.Pos))
			}
		}
		sig.args = append(sig.args, argTok.Lit)
		if p.at(lexer.COMMA) {
			p.advance()
		}
	}
	p.expect(lexer.RPAREN)

	fnIdx := p.declareOrMergeFunction(sig, nameTok.Pos)
	p.compileFuncBody(sig, fnIdx)
}

// declareOrMergeFunction implements spec.md §4.3's multi-dispatch merge
// rule: identical names may coexist iff at least one carries HasClass;
// they merge into a Dispatch entry. Visibility and arity of the merged
// variants are not compared.
func (p *Parser) declareOrMergeFunction(sig funcSig, pos int) int32 {
	existingIdx, exists := p.prog.FnMap[sig.name]
	if !exists {
		fn := &program.Function{Kind: program.FnPlaceholder, Name: sig.name, NameToken: pos}
		if sig.exported {
			fn.Flags |= program.FlagExported
		}
		idx := p.prog.AddFunction(fn)
		p.prog.FnMap[sig.name] = idx
		return idx
	}

	existing := p.prog.Fns[existingIdx]
	if existing.Kind == program.FnPlaceholder {
		return existingIdx // first real definition of a forward-referenced name
	}
	if !sig.hasClass && !existing.Flags.Has(program.FlagHasClass) && existing.Kind != program.FnDispatch {
		// two plain (non-receiver) definitions of the same name: not a
		// dispatch merge candidate, so this is a genuine redefinition.
		panic(newErr(ErrDuplicateClass, pos))
	}

	// Build (or extend) a Dispatch entry.
	var disp *program.Function
	var newBodyIdx int32
	if existing.Kind == program.FnDispatch {
		disp = existing
	} else {
		// existing is a concrete HasClass Bytecode function: move it
		// aside and replace the slot with a fresh Dispatch entry.
		disp = &program.Function{Kind: program.FnDispatch, Name: sig.name, Flags: existing.Flags, FallbackFn: -1}
		movedIdx := p.prog.AddFunction(existing)
		if existing.Flags.Has(program.FlagHasClass) {
			disp.Instances = append(disp.Instances, program.DispatchInstance{FunctionIdx: movedIdx, ClassIdx: existing.Bytecode.ClassIdx})
		} else {
			disp.FallbackFn = movedIdx
		}
		p.prog.Fns[existingIdx] = disp
	}
	bodyFn := &program.Function{Kind: program.FnPlaceholder, Name: sig.name}
	newBodyIdx = p.prog.AddFunction(bodyFn)
	if sig.hasClass {
		disp.Instances = append(disp.Instances, program.DispatchInstance{FunctionIdx: newBodyIdx, ClassIdx: sig.classIdx})
	} else {
		disp.FallbackFn = newBodyIdx
	}
	return newBodyIdx
}

func (p *Parser) compileFuncBody(sig funcSig, fnIdx int32) {
	outerCtx := p.ctx
	outerClassIdx := p.currentClassIdx

	fctx := newFuncCtx(fnIdx, sig.classIdx)
	p.ctx = fctx
	if sig.hasClass {
		p.currentClassIdx = sig.classIdx
		// The receiver occupies argument 0 / local slot 0, ahead of the
		// function's own declared parameters (spec.md: "LOAD_SELF binds
		// frame.self from locals[0]; emitted exactly once at the top of
		// every HasClass function").
		fctx.locals.declare("self")
	}

	for _, argName := range sig.args {
		fctx.locals.declare(argName)
	}
	if sig.hasClass {
		fctx.emitLoadSelf()
	}

	p.expect(lexer.LBRACE)
	p.parseBlockBody()
	p.expect(lexer.RBRACE)

	if !fctx.endsInReturn() {
		fctx.emitRetNull()
	}

	flags := program.FnFlag(0)
	if sig.exported {
		flags |= program.FlagExported
	}
	numArgs := int32(len(sig.args))
	if sig.hasClass {
		flags |= program.FlagHasClass
		numArgs++
	}
	p.prog.Fns[fnIdx] = &program.Function{
		Kind:     program.FnBytecode,
		Name:     sig.name,
		Flags:    flags,
		Bytecode: fctx.storage(numArgs),
	}

	p.ctx = outerCtx
	p.currentClassIdx = outerClassIdx
}

// ---- statements ------------------------------------------------------

func (p *Parser) parseBlock() {
	p.expect(lexer.LBRACE)
	p.ctx.locals.pushScope()
	p.parseBlockBody()
	p.ctx.locals.popScope()
	p.expect(lexer.RBRACE)
}

func (p *Parser) parseBlockBody() {
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		p.parseStatement()
	}
}

func (p *Parser) parseStatement() {
	start := p.cur.Pos
	bcStart := p.ctx.here()
	switch p.cur.Type {
	case lexer.LET:
		p.advance()
		nameTok := p.expect(lexer.IDENT)
		p.expect(lexer.ASSIGN)
		p.parseExpr()
		slot, ok := p.ctx.locals.declare(nameTok.Lit)
		if !ok {
			panic(newErr(ErrBytecodeGen, nameTok.Pos))
		}
		reg := p.ctx.regs.popReg()
		pc := p.ctx.emitMovRegLocal(reg, slot)
		_ = pc
		p.expect(lexer.SEMI)
	case lexer.CONST:
		p.parseConstDecl(false)
		p.expect(lexer.SEMI)
	case lexer.IF:
		p.parseIf()
	case lexer.WHILE:
		p.parseWhile()
	case lexer.PRINT:
		p.parsePrint()
	case lexer.RETURN:
		p.advance()
		p.parseReturnTail()
	case lexer.RAISE:
		p.advance()
		p.parseExpr()
		p.ctx.emitRaise(p.ctx.regs.popReg())
		p.expect(lexer.SEMI)
	case lexer.LBRACE:
		p.parseBlock()
	default:
		p.parseExprStatement()
	}
	p.recordSourceMap(bcStart, start)
}

func (p *Parser) recordSourceMap(bcStart, start int) {
	p.prog.SourceMap = append(p.prog.SourceMap, program.SourceMapEntry{
		BCFrom: bcStart, BCTo: p.ctx.here(), SourceStart: start, FuncIdx: p.ctx.funcIdx,
	})
}

func (p *Parser) parseReturnTail() {
	if p.at(lexer.SEMI) {
		p.ctx.emitRetNull()
		p.advance()
		return
	}
	// Peephole #1 (load-then-return): `return x` for a local x compiles
	// first to MOV_LOCAL_REG r,L; RET r like any other expression, and
	// tryCollapseReturn below rewrites that pair into a single RET_LOCAL.
	p.parseExpr()
	reg := p.ctx.regs.popReg()
	if local, ok := p.tryCollapseReturn(reg); ok {
		opcode.PutARel(p.ctx.code[p.ctx.lastOpPC:p.ctx.lastOpPC+opcode.Size], opcode.RET_LOCAL, 0, int16(local))
		p.ctx.lastOp = opcode.RET_LOCAL
	} else {
		p.ctx.emitRet(reg)
	}
	p.expect(lexer.SEMI)
}

// tryCollapseReturn implements peephole #1 precisely as spec.md §4.3
// describes it: the last-emitted instruction is MOV_LOCAL_REG r,L (a
// local loaded into the register we're about to return) and nothing
// else was emitted in between.
func (p *Parser) tryCollapseReturn(reg byte) (uint16, bool) {
	if !p.ctx.havePrevInst || p.ctx.lastOp != opcode.MOV_LOCAL_REG {
		return 0, false
	}
	pc := p.ctx.lastOpPC
	if opcode.A(p.ctx.code, pc) != reg {
		return 0, false
	}
	return uint16(opcode.Rel16(p.ctx.code, pc)), true
}

func (p *Parser) parseExprStatement() {
	p.parseAssignOrExpr()
	p.expect(lexer.SEMI)
}

// parseAssignOrExpr recognizes the handful of assignable lvalue shapes
// (a bare local, a compound assignment, a single-level index write, or
// a receiver field write) before falling back to a plain expression
// evaluated for its side effects (almost always a call). Chained
// lvalues like `a[0][1] = x` are not supported — only the outermost
// accessor on a bare local is assignable; anything deeper is read-only.
func (p *Parser) parseAssignOrExpr() {
	if p.at(lexer.AT) {
		p.parseAtField()
		p.ctx.regs.popReg()
		return
	}
	if p.at(lexer.IDENT) {
		name := p.cur.Lit
		namePos := p.cur.Pos
		switch p.peek.Type {
		case lexer.ASSIGN, lexer.PLUS_ASSIGN, lexer.MINUS_ASSIGN, lexer.STAR_ASSIGN, lexer.SLASH_ASSIGN, lexer.PERCENT_ASSIGN:
			opTok := p.peek.Type
			p.advance()
			p.advance()
			p.parseExpr()
			reg := p.ctx.regs.popReg()
			slot, ok := p.ctx.locals.resolve(name)
			if !ok {
				panic(newErr(ErrUnknownVar, namePos))
			}
			if opTok == lexer.ASSIGN {
				p.ctx.emitMovRegLocal(reg, slot)
			} else {
				p.ctx.emitAsg(asgOpFor(opTok), reg, slot)
			}
			return
		case lexer.LBRACKET:
			p.tryIndexAssign(name, namePos)
			return
		}
	}
	p.parseExpr()
	p.ctx.regs.popReg()
}

// tryIndexAssign compiles `name[idx] = val` (or, if no `=` follows the
// `]`, the equivalent read `name[idx]` as a statement with its value
// discarded).
func (p *Parser) tryIndexAssign(name string, namePos int) {
	slot, ok := p.ctx.locals.resolve(name)
	if !ok {
		panic(newErr(ErrUnknownVar, namePos))
	}
	p.advance() // name
	p.advance() // [
	baseReg, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	p.ctx.emitMovLocalReg(baseReg, slot)
	p.parseExpr()
	p.expect(lexer.RBRACKET)
	if p.at(lexer.ASSIGN) {
		p.advance()
		// The index stays on the operand stack while the value is parsed,
		// so the value expression cannot be given the index's register.
		p.parseExpr()
		valReg := p.ctx.regs.popReg()
		idxReg := p.ctx.regs.popReg()
		p.ctx.emitIdxSet(baseReg, idxReg, valReg)
		p.ctx.regs.popReg() // baseReg
		return
	}
	idxReg := p.ctx.regs.popReg()
	dst, err := p.ctx.newReg()
	if err != nil {
		panic(err)
	}
	p.ctx.emitIdxGet(baseReg, idxReg, dst)
	p.ctx.regs.popReg() // dst
	// baseReg sits beneath dst on the stack; now pop it too.
	p.ctx.regs.popReg()
}

func (p *Parser) parsePrint() {
	p.advance()
	first := true
	for {
		if !first {
			p.emitPrintSep()
		}
		first = false
		p.parseExpr()
		reg := p.ctx.regs.popReg()
		p.emitPrintOne(reg)
		if p.at(lexer.COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.emitPrintNl()
	p.expect(lexer.SEMI)
}

// emitPrintOne/emitPrintSep/emitPrintNl call the three native entry
// points registerBuiltins seeded, each through the same PUSH_ARG+CALL
// path (and thus the same push-then-call-1 peephole) as any other call.
func (p *Parser) emitPrintOne(reg byte) {
	p.ctx.emitPushArg(reg)
	p.emitCallSite(uint16(p.printValFn), 1)
	p.ctx.regs.popReg()
}

func (p *Parser) emitPrintSep() {
	p.emitCallSite(uint16(p.printSepFn), 0)
	p.ctx.regs.popReg()
}

func (p *Parser) emitPrintNl() {
	p.emitCallSite(uint16(p.printNlFn), 0)
	p.ctx.regs.popReg()
}

func (p *Parser) parseIf() {
	p.advance()
	p.parseExpr()
	condReg := p.ctx.regs.popReg()
	jnifPC := p.ctx.emitJNIf(condReg)
	p.parseBlock()
	bodyEndsReturn := p.ctx.endsInReturn()

	if p.at(lexer.ELSE) {
		p.advance()
		var jrelPC int
		if !bodyEndsReturn {
			jrelPC = p.ctx.emitJRel()
		}
		_ = p.ctx.patchRel(jnifPC, p.ctx.here())
		if p.at(lexer.IF) {
			p.parseIf()
		} else {
			p.parseBlock()
		}
		if !bodyEndsReturn {
			_ = p.ctx.patchRel(jrelPC, p.ctx.here())
		}
	} else {
		_ = p.ctx.patchRel(jnifPC, p.ctx.here())
	}
}

func (p *Parser) parseWhile() {
	p.advance()
	condStart := p.ctx.here()
	p.parseExpr()
	condReg := p.ctx.regs.popReg()
	jnifPC := p.ctx.emitJNIf(condReg)
	p.parseBlock()
	backRel := (p.ctx.here() + opcode.Size - condStart) / opcode.Size
	p.ctx.emitJRelB(int16(backRel))
	_ = p.ctx.patchRel(jnifPC, p.ctx.here())
}
