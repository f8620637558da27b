package jvm

import (
	"fmt"

	"github.com/fluxorio/jvm/pkg/bytecode"
)

// arrayAccepts reports whether an xaload or xastore of element type t may
// operate on an array of kind k. baload and bastore serve boolean arrays
// too.
func arrayAccepts(t bytecode.Type, k ObjectKind) bool {
	switch t {
	case bytecode.TypeInt:
		return k == KindIntArray
	case bytecode.TypeLong:
		return k == KindLongArray
	case bytecode.TypeFloat:
		return k == KindFloatArray
	case bytecode.TypeDouble:
		return k == KindDoubleArray
	case bytecode.TypeRef:
		return k == KindReferenceArray
	case bytecode.TypeByte:
		return k == KindByteArray || k == KindBooleanArray
	case bytecode.TypeChar:
		return k == KindCharArray
	case bytecode.TypeShort:
		return k == KindShortArray
	}
	return false
}

// popArray pops an array reference and resolves it for an access by in.
func (vm *VM) popArray(f *Frame, in *bytecode.Instruction) (*Object, error) {
	ref, err := f.Stack.PopRef()
	if err != nil {
		return nil, err
	}
	obj, err := vm.heap.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if !arrayAccepts(in.Info().Type, obj.Kind) {
		return nil, fmt.Errorf("%s on %s", in.Op, obj.Class)
	}
	return obj, nil
}

func opArrayLoad(vm *VM, f *Frame, in *bytecode.Instruction) error {
	m := f.Stack.mark()
	idx, err := f.Stack.PopInt()
	if err != nil {
		return err
	}
	arr, err := vm.popArray(f, in)
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	v, err := arr.Load(idx)
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	return f.Stack.Push(v)
}

func opArrayStore(vm *VM, f *Frame, in *bytecode.Instruction) error {
	m := f.Stack.mark()
	v, err := f.Stack.Pop(kindOfType(in.Info().Type))
	if err != nil {
		return err
	}
	idx, err := f.Stack.PopInt()
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	arr, err := vm.popArray(f, in)
	if err == nil && in.Op == bytecode.Aastore {
		err = vm.checkArrayStore(arr, v)
	}
	if err == nil {
		err = arr.Store(idx, v)
	}
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	return nil
}

// checkArrayStore rejects storing a reference whose runtime type is not
// assignable to the array's component type.
func (vm *VM) checkArrayStore(arr *Object, v Value) error {
	if v.IsNull() {
		return nil
	}
	val, err := vm.heap.Lookup(v.AsRef())
	if err != nil {
		return err
	}
	from, to := objectDescriptor(val), arr.Class[1:]
	ok, err := vm.isAssignable(from, to)
	if err != nil {
		return err
	}
	if !ok {
		return &ClassCastError{From: from, To: to}
	}
	return nil
}
