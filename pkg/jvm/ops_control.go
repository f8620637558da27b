package jvm

import (
	"github.com/fluxorio/jvm/pkg/bytecode"
)

// cond evaluates the i-th condition of the eq, ne, lt, ge, gt, le sequence
// shared by the if and if_icmp groups.
func cond(i int, a, b int32) bool {
	switch i {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}

func registerBranches() {
	for op := bytecode.Ifeq; op <= bytecode.Ifle; op++ {
		dispatch[op] = opIfZero
	}
	for op := bytecode.IfIcmpeq; op <= bytecode.IfIcmple; op++ {
		dispatch[op] = opIfIntCompare
	}
	dispatch[bytecode.IfAcmpeq] = opIfRefCompare
	dispatch[bytecode.IfAcmpne] = opIfRefCompare
	dispatch[bytecode.Ifnull] = opIfNull
	dispatch[bytecode.Ifnonnull] = opIfNull
	dispatch[bytecode.Goto] = opGoto
	dispatch[bytecode.GotoW] = opGoto
	dispatch[bytecode.Jsr] = opJsr
	dispatch[bytecode.JsrW] = opJsr
	dispatch[bytecode.Ret] = opRet
}

func opIfZero(_ *VM, f *Frame, in *bytecode.Instruction) error {
	v, err := f.Stack.PopInt()
	if err != nil {
		return err
	}
	if cond(int(in.Op-bytecode.Ifeq), v, 0) {
		f.jump(in.Target())
	}
	return nil
}

func opIfIntCompare(_ *VM, f *Frame, in *bytecode.Instruction) error {
	m := f.Stack.mark()
	b, err := f.Stack.PopInt()
	if err != nil {
		return err
	}
	a, err := f.Stack.PopInt()
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	if cond(int(in.Op-bytecode.IfIcmpeq), a, b) {
		f.jump(in.Target())
	}
	return nil
}

// References compare by handle identity, generation included.
func opIfRefCompare(_ *VM, f *Frame, in *bytecode.Instruction) error {
	m := f.Stack.mark()
	b, err := f.Stack.Pop(KindReference)
	if err != nil {
		return err
	}
	a, err := f.Stack.Pop(KindReference)
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	if (a.Bits == b.Bits) == (in.Op == bytecode.IfAcmpeq) {
		f.jump(in.Target())
	}
	return nil
}

func opIfNull(_ *VM, f *Frame, in *bytecode.Instruction) error {
	v, err := f.Stack.Pop(KindReference)
	if err != nil {
		return err
	}
	if v.IsNull() == (in.Op == bytecode.Ifnull) {
		f.jump(in.Target())
	}
	return nil
}

func opGoto(_ *VM, f *Frame, in *bytecode.Instruction) error {
	f.jump(in.Target())
	return nil
}

func opJsr(_ *VM, f *Frame, in *bytecode.Instruction) error {
	if err := f.Stack.Push(ReturnAddress(in.PC + in.Length)); err != nil {
		return err
	}
	f.jump(in.Target())
	return nil
}

func opRet(_ *VM, f *Frame, in *bytecode.Instruction) error {
	v, err := f.Locals.Get(in.Index, KindReturnAddress)
	if err != nil {
		return err
	}
	f.jump(v.AsReturnAddress())
	return nil
}

// opSwitch covers tableswitch and lookupswitch. Offsets are relative to the
// switch opcode.
func opSwitch(_ *VM, f *Frame, in *bytecode.Instruction) error {
	key, err := f.Stack.PopInt()
	if err != nil {
		return err
	}
	f.jump(in.PC + int(in.Switch.Target(key)))
	return nil
}

// opReturn checks the returned kind against the method descriptor, so an
// ireturn from a method declared to return long is a CategoryMismatch.
func opReturn(_ *VM, f *Frame, in *bytecode.Instruction) error {
	ret := f.Method.Signature.Return
	want := kindOf(ret.Base, ret.Dimensions)
	got := kindOfType(in.Info().Type)
	if want != got {
		return mismatch(want, got)
	}
	result := Void
	if got != KindVoid {
		v, err := f.Stack.Pop(got)
		if err != nil {
			return err
		}
		if ret.Dimensions == 0 {
			v = narrowInt(ret.Base, v)
		}
		result = v
	}
	f.returned = true
	f.result = result
	return nil
}
