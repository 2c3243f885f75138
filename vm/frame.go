package vm

import (
	"github.com/chm8d/aulang/program"
	"github.com/chm8d/aulang/value"
)

// Frame is one activation record: the fixed register file and local
// slot table of a single Bytecode function call (or Program.Main). It
// implements heap.Root so the collector can scan it for live
// references while the frame sits on the call stack.
type Frame struct {
	fn       *program.Function // nil for Program.Main
	data     *program.ProgramData // the module this frame's code/consts/classes belong to
	code     []byte
	pc       int
	regs     []value.Value
	locals   []value.Value
	self     value.Value
	classIdx int32
	retVal   value.Value
}

func newFrame(data *program.ProgramData, code []byte, numRegs, numLocals, classIdx int32, fn *program.Function) *Frame {
	return &Frame{
		fn:       fn,
		data:     data,
		code:     code,
		classIdx: classIdx,
		regs:     make([]value.Value, numRegs),
		locals:   make([]value.Value, numLocals),
	}
}

// LiveValues implements heap.Root: every register, local, and the bound
// receiver are roots while this frame is on the call stack.
func (f *Frame) LiveValues(out []value.Value) []value.Value {
	out = append(out, f.regs...)
	out = append(out, f.locals...)
	if f.self.Tag == value.TagStruct {
		out = append(out, f.self)
	}
	out = append(out, f.retVal)
	return out
}

// setLocal is the only place a local slot's owned reference changes, so
// it is the only place that needs to Ref_/Deref around the write.
func (f *Frame) setLocal(idx int32, v value.Value) {
	old := f.locals[idx]
	value.Ref_(v)
	f.locals[idx] = v
	value.Deref(old)
}

// teardown releases every local the frame owned. retVal is protected
// with an extra Ref_ first so returning one of the frame's own locals
// (the common `return x` shape) survives the Deref loop below it.
func (f *Frame) teardown() value.Value {
	value.Ref_(f.retVal)
	for _, l := range f.locals {
		value.Deref(l)
	}
	return f.retVal
}

func (f *Frame) classInterface() *value.ClassInterface {
	if f.classIdx < 0 || int(f.classIdx) >= len(f.data.Classes) {
		return nil
	}
	return f.data.Classes[f.classIdx]
}
