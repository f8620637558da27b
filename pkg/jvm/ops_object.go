package jvm

import (
	"fmt"
	"strings"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
)

func registerObjects() {
	dispatch[bytecode.New] = opNew
	dispatch[bytecode.Newarray] = opNewarray
	dispatch[bytecode.Anewarray] = opAnewarray
	dispatch[bytecode.Multianewarray] = opMultianewarray
	dispatch[bytecode.Arraylength] = opArraylength
	dispatch[bytecode.Athrow] = opAthrow
	dispatch[bytecode.Checkcast] = opCheckcast
	dispatch[bytecode.Instanceof] = opInstanceof
}

// javaName renders a binary class name the way exception messages do.
func javaName(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

func opNew(vm *VM, f *Frame, in *bytecode.Instruction) error {
	name, err := f.Class.File.ConstantPool.ClassName(uint16(in.Index))
	if err != nil {
		return err
	}
	c, err := vm.loadClass(name)
	if err != nil {
		return err
	}
	if c.IsInterface() || c.File.AccessFlags.Has(classfile.AccAbstract) {
		return fmt.Errorf("cannot instantiate %s", javaName(name))
	}
	if err := vm.initialize(c); err != nil {
		return err
	}
	if err := f.Stack.ensure(1); err != nil {
		return err
	}
	var ref Reference
	if c.Name == "java/lang/String" {
		ref, err = vm.heap.NewString("")
	} else {
		ref, err = vm.heap.NewInstance(c.Name, c.instanceFields())
	}
	if err != nil {
		return err
	}
	return f.Stack.PushRef(ref)
}

// popCount pops an array length and runs alloc with it, restoring the
// length when the allocation fails.
func popCount(f *Frame, alloc func(n int32) (Reference, error)) error {
	m := f.Stack.mark()
	n, err := f.Stack.PopInt()
	if err != nil {
		return err
	}
	ref, err := alloc(n)
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	return f.Stack.PushRef(ref)
}

func opNewarray(vm *VM, f *Frame, in *bytecode.Instruction) error {
	kind, ok := ArrayKindForType(in.Index)
	if !ok {
		return fmt.Errorf("newarray: invalid array type %d", in.Index)
	}
	return popCount(f, func(n int32) (Reference, error) {
		return vm.heap.NewArray(kind, n)
	})
}

// opAnewarray records the component type without loading it.
func opAnewarray(vm *VM, f *Frame, in *bytecode.Instruction) error {
	component, err := f.Class.File.ConstantPool.ClassName(uint16(in.Index))
	if err != nil {
		return err
	}
	return popCount(f, func(n int32) (Reference, error) {
		return vm.heap.NewReferenceArray(component, n)
	})
}

func opMultianewarray(vm *VM, f *Frame, in *bytecode.Instruction) error {
	desc, err := f.Class.File.ConstantPool.ClassName(uint16(in.Index))
	if err != nil {
		return err
	}
	t, err := classfile.ParseFieldType(desc)
	if err != nil {
		return err
	}
	if in.Count < 1 || in.Count > t.Dimensions {
		return fmt.Errorf("multianewarray: %d dimensions for %s", in.Count, desc)
	}
	kinds := make([]Kind, in.Count)
	for i := range kinds {
		kinds[i] = KindInt
	}
	m := f.Stack.mark()
	counts, err := f.Stack.PopArgs(kinds)
	if err != nil {
		return err
	}
	dims := make([]int32, len(counts))
	for i, c := range counts {
		dims[i] = c.AsInt()
	}
	ref, err := vm.heap.NewMultiArray(desc, dims)
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	return f.Stack.PushRef(ref)
}

func opArraylength(vm *VM, f *Frame, _ *bytecode.Instruction) error {
	m := f.Stack.mark()
	ref, err := f.Stack.PopRef()
	if err != nil {
		return err
	}
	obj, err := vm.heap.Lookup(ref)
	if err == nil && !obj.Kind.IsArray() {
		err = fmt.Errorf("arraylength on %s", obj.Class)
	}
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	return f.Stack.PushInt(int32(obj.Len()))
}

// opAthrow completes the method abruptly. There is no handler search: the
// ThrowError travels to the caller of Invoke and the thrown object stays on
// the heap.
func opAthrow(vm *VM, f *Frame, _ *bytecode.Instruction) error {
	v, err := f.Stack.PeekAt(0)
	if err != nil {
		return err
	}
	obj, err := vm.object(v)
	if err != nil {
		return err
	}
	te := &ThrowError{Ref: v.AsRef(), Class: javaName(obj.Class)}
	if msg, ok := obj.Field(detailMessage); ok && !msg.IsNull() {
		if te.Message, err = vm.stringOf(msg); err != nil {
			return err
		}
	}
	return te
}

func opCheckcast(vm *VM, f *Frame, in *bytecode.Instruction) error {
	target, err := f.Class.File.ConstantPool.ClassName(uint16(in.Index))
	if err != nil {
		return err
	}
	v, err := f.Stack.PeekAt(0)
	if err != nil {
		return err
	}
	if v.Kind != KindReference {
		return mismatch(KindReference, v.Kind)
	}
	if v.IsNull() {
		return nil
	}
	obj, err := vm.heap.Lookup(v.AsRef())
	if err != nil {
		return err
	}
	ok, err := vm.instanceOf(obj, target)
	if err != nil {
		return err
	}
	if !ok {
		return &ClassCastError{From: javaName(obj.Class), To: javaName(target)}
	}
	return nil
}

func opInstanceof(vm *VM, f *Frame, in *bytecode.Instruction) error {
	target, err := f.Class.File.ConstantPool.ClassName(uint16(in.Index))
	if err != nil {
		return err
	}
	m := f.Stack.mark()
	v, err := f.Stack.Pop(KindReference)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return f.Stack.PushInt(0)
	}
	obj, err := vm.heap.Lookup(v.AsRef())
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	ok, err := vm.instanceOf(obj, target)
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	return f.Stack.Push(Bool(ok))
}

// Monitors are null-checked no-ops: a VM runs one thread.
func opMonitor(vm *VM, f *Frame, _ *bytecode.Instruction) error {
	v, err := f.Stack.PeekAt(0)
	if err != nil {
		return err
	}
	if _, err := vm.object(v); err != nil {
		return err
	}
	_, err = f.Stack.Pop(KindReference)
	return err
}

// resolveField resolves the Fieldref operand of in to the declaring class
// and field.
func (vm *VM) resolveField(f *Frame, in *bytecode.Instruction) (*Class, *classfile.FieldInfo, error) {
	ref, err := f.Class.File.ConstantPool.MemberRef(uint16(in.Index), classfile.TagFieldref)
	if err != nil {
		return nil, nil, err
	}
	c, err := vm.loadClass(ref.Class)
	if err != nil {
		return nil, nil, err
	}
	owner, field := c.FindField(ref.Name, ref.Descriptor)
	if field == nil {
		return nil, nil, &LinkError{Member: "field", Class: ref.Class, Name: ref.Name, Descriptor: ref.Descriptor}
	}
	static := in.Op == bytecode.Getstatic || in.Op == bytecode.Putstatic
	if field.IsStatic() != static {
		return nil, nil, fmt.Errorf("%s on %s field %s.%s", in.Op, staticWord(field.IsStatic()), owner.Name, field.Name)
	}
	return owner, field, nil
}

func staticWord(static bool) string {
	if static {
		return "static"
	}
	return "instance"
}

func opField(vm *VM, f *Frame, in *bytecode.Instruction) error {
	owner, field, err := vm.resolveField(f, in)
	if err != nil {
		return err
	}
	key := memberKey(field.Name, field.Descriptor)
	kind := kindOf(field.Type.Base, field.Type.Dimensions)

	switch in.Op {
	case bytecode.Getstatic:
		if err := vm.initialize(owner); err != nil {
			return err
		}
		return f.Stack.Push(owner.statics[key])

	case bytecode.Putstatic:
		if err := vm.initialize(owner); err != nil {
			return err
		}
		v, err := f.Stack.Pop(kind)
		if err != nil {
			return err
		}
		owner.statics[key] = storeNarrow(field.Type, v)
		return nil

	case bytecode.Getfield:
		m := f.Stack.mark()
		ref, err := f.Stack.PopRef()
		if err != nil {
			return err
		}
		obj, err := vm.heap.Lookup(ref)
		if err != nil {
			f.Stack.reset(m)
			return err
		}
		v, ok := obj.Field(key)
		if !ok {
			f.Stack.reset(m)
			return &LinkError{Member: "field", Class: obj.Class, Name: field.Name, Descriptor: field.Descriptor}
		}
		if err := f.Stack.ensure(v.Category()); err != nil {
			f.Stack.reset(m)
			return err
		}
		return f.Stack.Push(v)
	}

	m := f.Stack.mark()
	v, err := f.Stack.Pop(kind)
	if err != nil {
		return err
	}
	ref, err := f.Stack.PopRef()
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	obj, err := vm.heap.Lookup(ref)
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	if _, ok := obj.Field(key); !ok {
		f.Stack.reset(m)
		return &LinkError{Member: "field", Class: obj.Class, Name: field.Name, Descriptor: field.Descriptor}
	}
	obj.SetField(key, storeNarrow(field.Type, v))
	return nil
}

func storeNarrow(t classfile.FieldType, v Value) Value {
	if t.Dimensions > 0 {
		return v
	}
	return narrowInt(t.Base, v)
}
