package jvm

import (
	"github.com/fluxorio/jvm/pkg/bytecode"
)

// opLoad covers the typed loads, their _n forms and wide variants.
func opLoad(_ *VM, f *Frame, in *bytecode.Instruction) error {
	v, err := f.Locals.Get(in.Index, kindOfType(in.Info().Type))
	if err != nil {
		return err
	}
	return f.Stack.Push(v)
}

// opStore covers the typed stores. astore also accepts the return address
// pushed by jsr.
func opStore(_ *VM, f *Frame, in *bytecode.Instruction) error {
	m := f.Stack.mark()
	var (
		v   Value
		err error
	)
	if kind := kindOfType(in.Info().Type); kind == KindReference {
		v, err = f.Stack.PopStorable()
	} else {
		v, err = f.Stack.Pop(kind)
	}
	if err != nil {
		return err
	}
	if err := f.Locals.Set(in.Index, v); err != nil {
		f.Stack.reset(m)
		return err
	}
	return nil
}

func opIinc(_ *VM, f *Frame, in *bytecode.Instruction) error {
	v, err := f.Locals.Get(in.Index, KindInt)
	if err != nil {
		return err
	}
	return f.Locals.Set(in.Index, Int(v.AsInt()+in.Const))
}
