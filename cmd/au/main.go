// Command au runs a single .au source file. The full CLI (REPL, flags
// for bytecode dumps, a composer-style package manager) is out of
// scope for this engine — this is the thinnest driver that exercises
// it end to end: read file, parse, run, report errors.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chm8d/aulang/compiler"
	"github.com/chm8d/aulang/native"
	"github.com/chm8d/aulang/resolver"
	"github.com/chm8d/aulang/vm"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.au>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	prog, err := compiler.Parse(string(src))
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	prog.Data.File = path
	prog.Data.Cwd = filepath.Dir(path)

	t := vm.NewThread(prog, true, resolver.NewFileResolver())
	native.RegisterAll(t)

	if err := t.Run(); err != nil {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}
