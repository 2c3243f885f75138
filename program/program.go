// Package program holds the in-memory containers for a compiled
// program: the function table, class interface table, constant pool,
// import table, module table, and source map (spec.md §3/§4.2).
//
// Indexes are stable during execution: cross-references between
// functions use integer indices, never pointers, because the parser
// appends to these tables while it still has functions left to resolve
// (forward references, spec.md §4.2).
package program

import "github.com/chm8d/aulang/value"

// FnFlag is a bitset of per-function flags (spec.md §3).
type FnFlag byte

const (
	FlagExported FnFlag = 1 << iota
	FlagHasClass
	FlagMayFail
)

func (f FnFlag) Has(bit FnFlag) bool { return f&bit != 0 }

// BytecodeStorage is the mutable bytecode buffer owned by a Bytecode
// function (or Program.Main). Its bytes are rewritten in place by the
// VM for opcode specialization/deoptimization — the only mutation a
// ProgramData undergoes after parsing besides cache fills (spec.md §3
// Lifecycle).
type BytecodeStorage struct {
	Code            []byte
	NumArgs         int32
	NumLocals       int32
	NumRegisters    int32
	NumValues       int32 // NumLocals + NumRegisters, for frame sizing
	ClassIdx        int32 // -1 if not a method
	SourceMapStart  int
	FuncIdx         int32
}

// FnKind distinguishes which Function variant is populated.
type FnKind byte

const (
	FnPlaceholder FnKind = iota
	FnBytecode
	FnNative
	FnImported
	FnDispatch
)

// DispatchInstance is one entry of a multi-dispatch table: the function
// to call when argument 0 is an instance of ClassIdx.
type DispatchInstance struct {
	FunctionIdx          int32
	ClassIdx             int32
	ClassInterfaceCache  *value.ClassInterface
}

// Function is the tagged union of spec.md §3. Exactly one of the
// per-kind fields is meaningful, selected by Kind.
type Function struct {
	Kind  FnKind
	Name  string
	Flags FnFlag

	// Bytecode
	Bytecode *BytecodeStorage
	// ClassInterfaceCache is not filled by any package in this module; it
	// (like DispatchInstance.ClassInterfaceCache) stays nil, and dispatch
	// matches a receiver's class by name through ProgramData.ClassMap.
	ClassInterfaceCache *value.ClassInterface

	// Native
	NumArgs    int32
	NativeFunc value.NativeFunc
	Symbol     string

	// Imported
	ModuleIdx        int32
	FnCached         *Function
	ProgramDataCached *ProgramData

	// Dispatch
	Instances   []DispatchInstance
	FallbackFn  int32 // -1 if none

	// Placeholder
	NameToken int // lexer position of the forward reference, for diagnostics
}

// ClassMap/FieldMap indices, ConstEntry, source map entries, imports.

type ConstEntry struct {
	RealValue value.Value // materialized once (scalars) or a placeholder (strings)
	IsString  bool
	BufIdx    uint32
	BufLen    uint32
}

type Import struct {
	Path      string
	ModuleIdx int32 // -1 if the import binds no name (NO_MODULE)
}

type ImportedModule struct {
	FnMap      map[string]int32 // function name -> index of its Imported-kind stub in ProgramData.Fns
	ClassMap   map[string]int32
	ConstMap   map[string]int32
	StdlibIdx  int32 // -1 unless this alias resolves to a native module
}

type SourceMapEntry struct {
	BCFrom      int
	BCTo        int
	SourceStart int
	FuncIdx     int32
}

// ProgramData is the shared, (mostly) immutable-after-parse body of a
// compiled module. See spec.md §3 Lifecycle for exactly which fields
// remain mutable after parsing completes.
type ProgramData struct {
	Fns    []*Function
	FnMap  map[string]int32
	FnNames []string

	Classes  []*value.ClassInterface // entries may be nil (reserved for external imports not yet linked)
	ClassMap map[string]int32

	DataVal []ConstEntry
	DataBuf []byte

	TLConstantStart int

	Imports             []Import
	ImportedModules      []ImportedModule
	ImportedModuleMap    map[string]int32

	SourceMap []SourceMapEntry

	ExportedConsts map[string]int32

	File string
	Cwd  string
}

func NewProgramData() *ProgramData {
	return &ProgramData{
		FnMap:             make(map[string]int32),
		ClassMap:          make(map[string]int32),
		ImportedModuleMap: make(map[string]int32),
		ExportedConsts:    make(map[string]int32),
	}
}

// Program is the top-level compiled unit: an entry-point bytecode body
// plus the ProgramData it was compiled against.
type Program struct {
	Main *BytecodeStorage
	Data *ProgramData
}

// AddFunction appends fn and records its name, returning the new index.
func (p *ProgramData) AddFunction(fn *Function) int32 {
	idx := int32(len(p.Fns))
	p.Fns = append(p.Fns, fn)
	p.FnNames = append(p.FnNames, fn.Name)
	return idx
}

// ReserveClass allocates a class-table slot without a definition yet —
// used when an import references a class whose interface will be
// patched in on link (spec.md §4.5 "assert the local classes[i] slot is
// empty, copy the exported ClassInterface handle").
func (p *ProgramData) ReserveClass(name string) int32 {
	idx := int32(len(p.Classes))
	p.Classes = append(p.Classes, nil)
	p.ClassMap[name] = idx
	return idx
}

func (p *ProgramData) AddClass(iface *value.ClassInterface) int32 {
	idx := int32(len(p.Classes))
	p.Classes = append(p.Classes, iface)
	p.ClassMap[iface.Name] = idx
	return idx
}

// AddStringConst appends raw bytes to the data buffer and records a
// constant-pool entry for them, returning the constant index.
func (p *ProgramData) AddStringConst(s string) int32 {
	bufIdx := uint32(len(p.DataBuf))
	p.DataBuf = append(p.DataBuf, s...)
	idx := int32(len(p.DataVal))
	p.DataVal = append(p.DataVal, ConstEntry{IsString: true, BufIdx: bufIdx, BufLen: uint32(len(s))})
	return idx
}

func (p *ProgramData) AddScalarConst(v value.Value) int32 {
	idx := int32(len(p.DataVal))
	p.DataVal = append(p.DataVal, ConstEntry{RealValue: v})
	return idx
}
