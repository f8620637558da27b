package jvm

import (
	"fmt"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
)

// opInvoke handles invokestatic, invokespecial, invokevirtual and
// invokeinterface. Resolution and the receiver check happen before any
// argument is popped.
func opInvoke(vm *VM, f *Frame, in *bytecode.Instruction) error {
	if in.Op == bytecode.Invokedynamic {
		return fmt.Errorf("%w: invokedynamic", ErrUnsupported)
	}
	cp := f.Class.File.ConstantPool
	var (
		ref classfile.MemberRef
		err error
	)
	if in.Op == bytecode.Invokeinterface {
		ref, err = cp.MemberRef(uint16(in.Index), classfile.TagInterfaceMethodref)
	} else {
		ref, err = cp.MethodRef(uint16(in.Index))
	}
	if err != nil {
		return err
	}
	md, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return err
	}
	named, err := vm.loadClass(ref.Class)
	if err != nil {
		return err
	}

	static := in.Op == bytecode.Invokestatic
	kinds := make([]Kind, 0, len(md.Params)+1)
	if !static {
		kinds = append(kinds, KindReference)
	}
	for _, p := range md.Params {
		kinds = append(kinds, kindOf(p.Base, p.Dimensions))
	}

	owner, m, err := vm.resolveMethod(f, in, named, ref, md)
	if err != nil {
		return err
	}
	if static {
		if err := vm.initialize(owner); err != nil {
			return err
		}
	}

	args, err := f.Stack.PopArgs(kinds)
	if err != nil {
		return err
	}
	result, err := vm.invoke(owner, m, args)
	if err != nil {
		return err
	}
	if result.Kind == KindVoid {
		return nil
	}
	return f.Stack.Push(result)
}

// resolveMethod picks the method to run. Static and special calls bind to
// the named class; virtual and interface calls select on the receiver's
// runtime class.
func (vm *VM) resolveMethod(f *Frame, in *bytecode.Instruction, named *Class, ref classfile.MemberRef, md classfile.MethodDescriptor) (*Class, *classfile.MethodInfo, error) {
	notFound := &LinkError{Member: "method", Class: ref.Class, Name: ref.Name, Descriptor: ref.Descriptor}

	if in.Op == bytecode.Invokestatic {
		owner, m := named.FindMethod(ref.Name, ref.Descriptor)
		if m == nil {
			return nil, nil, notFound
		}
		if !m.IsStatic() {
			return nil, nil, fmt.Errorf("invokestatic on instance method %s", ref)
		}
		return owner, m, nil
	}

	recv, err := f.Stack.PeekAt(md.ArgSlots())
	if err != nil {
		return nil, nil, err
	}
	if recv.Kind != KindReference {
		return nil, nil, mismatch(KindReference, recv.Kind)
	}
	obj, err := vm.heap.Lookup(recv.AsRef())
	if err != nil {
		return nil, nil, err
	}

	target := named
	if in.Op != bytecode.Invokespecial {
		if target, err = vm.loadClass(runtimeClassName(obj)); err != nil {
			return nil, nil, err
		}
	}
	owner, m := target.FindMethod(ref.Name, ref.Descriptor)
	if m == nil {
		return nil, nil, notFound
	}
	if m.IsStatic() {
		return nil, nil, fmt.Errorf("%s on static method %s", in.Op, ref)
	}
	return owner, m, nil
}
