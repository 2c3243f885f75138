package vm

import (
	"github.com/chm8d/aulang/compiler"
	"github.com/chm8d/aulang/logx"
	"github.com/chm8d/aulang/program"
	"github.com/chm8d/aulang/value"
)

// linkModule resolves, parses (on first use), and links the module at
// data.ImportedModules[modIdx] into data's Fns/Classes tables (spec.md
// §4.5: "assert the local slot is empty, copy the exported handle").
// Idempotent — a second call for an already-linked module is a no-op, so
// both the IMPORT opcode (eager, at the import statement) and a call to
// one of its functions before IMPORT has run (the lazy fallback) can
// safely both trigger it.
func (t *Thread) linkModule(data *program.ProgramData, modIdx int32) error {
	if modIdx < 0 || int(modIdx) >= len(data.ImportedModules) {
		return t.fatal(InvariantViolation, "invalid imported-module index %d", modIdx)
	}

	linked := t.linked[data]
	if linked == nil {
		linked = make(map[int32]bool)
		t.linked[data] = linked
	}
	if linked[modIdx] {
		return nil
	}

	path := ""
	for _, imp := range data.Imports {
		if imp.ModuleIdx == modIdx {
			path = imp.Path
			break
		}
	}
	if path == "" {
		return t.fatal(InvariantViolation, "imported module %d has no matching import statement", modIdx)
	}

	sub, ok := t.loadedByPath[path]
	if !ok {
		if t.importPending[path] {
			return t.raise(CircularImport, value.ErrorSentinel())
		}
		src, dir, err := t.Resolver.Resolve(path, data.Cwd)
		if err != nil {
			return t.raise(UnknownImportTarget, value.ErrorSentinel())
		}

		// The path stays pending until its module-level statements have
		// run, so an import cycle reached from them is a CircularImport.
		t.importPending[path] = true
		defer delete(t.importPending, path)
		parsed, perr := compiler.Parse(src)
		if perr != nil {
			// A module that fails to parse can never export anything, so
			// this collapses into the same "nothing there to import" shape
			// as an unresolvable path (see DESIGN.md).
			return t.raise(UnknownImportTarget, value.ErrorSentinel())
		}
		parsed.Data.Cwd = dir
		parsed.Data.File = path
		t.registerModuleConsts(parsed.Data)

		// Module-level statements (top-level lets, const declarations with
		// side effects) run exactly once, the first time anything imports
		// this path, before any of its exported functions become callable.
		mf := newFrame(parsed.Data, parsed.Main.Code, parsed.Main.NumRegisters, parsed.Main.NumLocals, -1, nil)
		if _, err := t.runFrame(mf); err != nil {
			return err
		}

		t.loadedByPath[path] = parsed
		sub = parsed
		logx.Infof("loaded module %q (%d function(s) defined)", path, len(parsed.Data.Fns))
	}

	im := &data.ImportedModules[modIdx]
	for name, localIdx := range im.FnMap {
		subIdx, ok := sub.Data.FnMap[name]
		if !ok {
			continue
		}
		subFn := sub.Data.Fns[subIdx]
		if !subFn.Flags.Has(program.FlagExported) {
			continue
		}
		stub := data.Fns[localIdx]
		// spec.md §4.5: linking requires matching name, Exported, and
		// equal arity. A call-site's pushed-argument count was latched
		// onto the stub's NumArgs when it was first referenced.
		if want := functionArity(sub.Data, subFn); stub.NumArgs != want {
			return t.raise(ArityMismatchOnImport, value.ErrorSentinel())
		}
		stub.FnCached = subFn
		stub.ProgramDataCached = sub.Data
	}
	for name, localIdx := range im.ClassMap {
		subIdx, ok := sub.Data.ClassMap[name]
		if !ok {
			continue
		}
		iface := sub.Data.Classes[subIdx]
		if iface != nil && iface.Exported && data.Classes[localIdx] == nil {
			data.Classes[localIdx] = iface
		}
	}

	linked[modIdx] = true
	return nil
}
