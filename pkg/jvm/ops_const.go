package jvm

import (
	"fmt"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
)

func registerConstants() {
	dispatch[bytecode.AconstNull] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
		return f.Stack.Push(Null())
	}
	for op := bytecode.IconstM1; op <= bytecode.Iconst5; op++ {
		dispatch[op] = opIconst
	}
	dispatch[bytecode.Bipush] = opIconst
	dispatch[bytecode.Sipush] = opIconst
	dispatch[bytecode.Lconst0] = opLconst
	dispatch[bytecode.Lconst1] = opLconst
	for op := bytecode.Fconst0; op <= bytecode.Fconst2; op++ {
		dispatch[op] = opFconst
	}
	dispatch[bytecode.Dconst0] = opDconst
	dispatch[bytecode.Dconst1] = opDconst
	dispatch[bytecode.Ldc] = opLdc
	dispatch[bytecode.LdcW] = opLdc
	dispatch[bytecode.Ldc2W] = opLdc2
}

// The short forms, bipush and sipush all carry their value in Const.
func opIconst(_ *VM, f *Frame, in *bytecode.Instruction) error {
	return f.Stack.PushInt(in.Const)
}

func opLconst(_ *VM, f *Frame, in *bytecode.Instruction) error {
	return f.Stack.PushLong(int64(in.Const))
}

func opFconst(_ *VM, f *Frame, in *bytecode.Instruction) error {
	return f.Stack.PushFloat(float32(in.Const))
}

func opDconst(_ *VM, f *Frame, in *bytecode.Instruction) error {
	return f.Stack.PushDouble(float64(in.Const))
}

// opLdc pushes an int, float, String or Class constant.
func opLdc(vm *VM, f *Frame, in *bytecode.Instruction) error {
	if err := f.Stack.ensure(1); err != nil {
		return err
	}
	cp := f.Class.File.ConstantPool
	idx := uint16(in.Index)
	switch tag := cp.TagAt(idx); tag {
	case classfile.TagInteger:
		v, err := cp.Integer(idx)
		if err != nil {
			return err
		}
		return f.Stack.PushInt(v)
	case classfile.TagFloat:
		e, err := cp.Get(idx, classfile.TagFloat)
		if err != nil {
			return err
		}
		return f.Stack.Push(FloatBits(e.(*classfile.FloatInfo).Bits))
	case classfile.TagString:
		s, err := cp.StringConstant(idx)
		if err != nil {
			return err
		}
		ref, err := vm.internString(s)
		if err != nil {
			return err
		}
		return f.Stack.PushRef(ref)
	case classfile.TagClass:
		name, err := cp.ClassName(idx)
		if err != nil {
			return err
		}
		ref, err := vm.classMirror(name)
		if err != nil {
			return err
		}
		return f.Stack.PushRef(ref)
	case classfile.TagMethodType, classfile.TagMethodHandle, classfile.TagDynamic:
		return fmt.Errorf("%w: %s of a %s constant", ErrUnsupported, in.Op, tag)
	}
	_, err := cp.Get(idx, classfile.TagInteger)
	return err
}

// opLdc2 pushes a long or double constant, keeping the double's exact bits.
func opLdc2(_ *VM, f *Frame, in *bytecode.Instruction) error {
	cp := f.Class.File.ConstantPool
	idx := uint16(in.Index)
	if cp.TagAt(idx) == classfile.TagDouble {
		e, err := cp.Get(idx, classfile.TagDouble)
		if err != nil {
			return err
		}
		return f.Stack.Push(DoubleBits(e.(*classfile.DoubleInfo).Bits))
	}
	v, err := cp.Long(idx)
	if err != nil {
		return err
	}
	return f.Stack.PushLong(v)
}
