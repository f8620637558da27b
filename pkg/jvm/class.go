package jvm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/jvm/pkg/classfile"
)

type classState uint8

const (
	classLinked classState = iota
	classInitializing
	classInitialized
	classFailed
)

// Class sources, as reported in logs and metrics.
const (
	SourceDefined   = "defined"
	SourceRegistry  = "registry"
	SourceBootstrap = "bootstrap"
)

// Class is a linked runtime class.
type Class struct {
	Name       string
	File       *classfile.ClassFile
	Super      *Class
	Interfaces []*Class
	Source     string

	statics map[string]Value
	state   classState
	initErr error
}

func (c *Class) IsInterface() bool { return c.File.IsInterface() }

// IsSubclassOf reports whether c is t, extends t or implements t.
func (c *Class) IsSubclassOf(t *Class) bool {
	for k := c; k != nil; k = k.Super {
		if k == t {
			return true
		}
		for _, i := range k.Interfaces {
			if i.IsSubclassOf(t) {
				return true
			}
		}
	}
	return false
}

// FindMethod looks name:descriptor up in c and its superclasses, then in
// the superinterfaces, where a default method wins over an abstract one.
func (c *Class) FindMethod(name, descriptor string) (*Class, *classfile.MethodInfo) {
	for k := c; k != nil; k = k.Super {
		if m := k.File.FindMethod(name, descriptor); m != nil {
			return k, m
		}
	}
	var absOwner *Class
	var abs *classfile.MethodInfo
	for k := c; k != nil; k = k.Super {
		for _, i := range k.Interfaces {
			owner, m := i.FindMethod(name, descriptor)
			if m == nil {
				continue
			}
			if !m.IsAbstract() {
				return owner, m
			}
			if abs == nil {
				absOwner, abs = owner, m
			}
		}
	}
	return absOwner, abs
}

// FindField looks a field up in c, its superinterfaces and then its
// superclasses.
func (c *Class) FindField(name, descriptor string) (*Class, *classfile.FieldInfo) {
	for k := c; k != nil; k = k.Super {
		if f := k.File.FindField(name, descriptor); f != nil {
			return k, f
		}
		for _, i := range k.Interfaces {
			if owner, f := i.FindField(name, descriptor); f != nil {
				return owner, f
			}
		}
	}
	return nil, nil
}

// instanceFields returns the default value of every instance field declared
// by c and its superclasses.
func (c *Class) instanceFields() map[string]Value {
	fields := make(map[string]Value)
	for k := c; k != nil; k = k.Super {
		for _, f := range k.File.Fields {
			if f.IsStatic() {
				continue
			}
			fields[memberKey(f.Name, f.Descriptor)] = zeroValue(f.Type.Base, f.Type.Dimensions)
		}
	}
	return fields
}

// Static returns the current value of a static field declared by c.
func (c *Class) Static(name, descriptor string) (Value, bool) {
	v, ok := c.statics[memberKey(name, descriptor)]
	return v, ok
}

func memberKey(name, descriptor string) string {
	return name + ":" + descriptor
}

func (c *Class) String() string {
	return c.Name
}

// findClassFile locates name among the classes defined on the VM, the
// registry and finally the bootstrap classes.
func (vm *VM) findClassFile(name string) (*classfile.ClassFile, string, error) {
	if cf, ok := vm.defined[name]; ok {
		return cf, SourceDefined, nil
	}
	if vm.registry != nil {
		cf, err := vm.registry.Lookup(name)
		if err == nil {
			return cf, SourceRegistry, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, SourceRegistry, err
		}
	}
	if cf, err := vm.bootstrapClass(name); cf != nil || err != nil {
		return cf, SourceBootstrap, err
	}
	return nil, "", fmt.Errorf("%w: %s", ErrClassNotFound, name)
}

// loadClass returns the linked class name, loading it and its supertypes on
// first use.
func (vm *VM) loadClass(name string) (*Class, error) {
	if c, ok := vm.classes[name]; ok {
		return c, nil
	}
	if strings.HasPrefix(name, "[") {
		return nil, fmt.Errorf("%w: array class %s has no class file", ErrClassNotFound, name)
	}
	if vm.linking[name] {
		return nil, fmt.Errorf("class circularity: %s", name)
	}

	_, span := vm.tracer.Start(vm.spanCtx(), "jvm.load_class",
		trace.WithAttributes(attribute.String("jvm.class", name)))
	defer span.End()

	start := time.Now()
	cf, source, err := vm.findClassFile(name)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrClassNotFound) {
			status = "not_found"
		}
		vm.metrics.RecordClassLoad(sourceLabel(source), status, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("jvm.source", source))

	vm.linking[name] = true
	defer delete(vm.linking, name)

	c := &Class{Name: name, File: cf, Source: source}
	if super := cf.SuperName(); super != "" {
		if c.Super, err = vm.loadClass(super); err != nil {
			err = fmt.Errorf("superclass of %s: %w", name, err)
		}
	}
	for _, iname := range cf.InterfaceNames() {
		if err != nil {
			break
		}
		var i *Class
		if i, err = vm.loadClass(iname); err != nil {
			err = fmt.Errorf("interface of %s: %w", name, err)
			break
		}
		c.Interfaces = append(c.Interfaces, i)
	}
	if err != nil {
		vm.metrics.RecordClassLoad(source, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	vm.classes[name] = c
	vm.metrics.RecordClassLoad(source, "ok", time.Since(start))
	vm.logger.Debugf("Loaded class %s from %s (version %d.%d)", name, source, cf.MajorVersion, cf.MinorVersion)
	return c, nil
}

func sourceLabel(source string) string {
	if source == "" {
		return "none"
	}
	return source
}

// initialize runs static initialisation once: superclass first, then
// ConstantValue seeding, then <clinit>. A class whose initialisation is in
// progress on the current call stack is treated as initialised.
func (vm *VM) initialize(c *Class) error {
	switch c.state {
	case classInitialized, classInitializing:
		return nil
	case classFailed:
		return c.initErr
	}
	c.state = classInitializing

	fail := func(err error) error {
		c.state = classFailed
		c.initErr = fmt.Errorf("initializing %s: %w", c.Name, err)
		return c.initErr
	}

	if c.Super != nil {
		if err := vm.initialize(c.Super); err != nil {
			return fail(err)
		}
	}

	c.statics = make(map[string]Value)
	for _, f := range c.File.Fields {
		if !f.IsStatic() {
			continue
		}
		v := zeroValue(f.Type.Base, f.Type.Dimensions)
		if cv := f.ConstantValue(); cv != nil {
			var err error
			if v, err = vm.constantValue(c.File.ConstantPool, f.Type, cv.ValueIndex); err != nil {
				return fail(err)
			}
		}
		c.statics[memberKey(f.Name, f.Descriptor)] = v
	}

	if c.Source == SourceBootstrap {
		if hook := bootstrapInit(c.Name); hook != nil {
			if err := hook(vm, c); err != nil {
				return fail(err)
			}
		}
	}

	if m := c.File.FindMethod("<clinit>", "()V"); m != nil {
		if _, err := vm.invoke(c, m, nil); err != nil {
			return fail(err)
		}
	}
	c.state = classInitialized
	return nil
}

func (vm *VM) constantValue(cp *classfile.ConstantPool, t classfile.FieldType, index uint16) (Value, error) {
	if t.Dimensions > 0 {
		return Value{}, fmt.Errorf("ConstantValue on array field %s", t)
	}
	switch t.Base {
	case 'J':
		v, err := cp.Long(index)
		return Long(v), err
	case 'F':
		e, err := cp.Get(index, classfile.TagFloat)
		if err != nil {
			return Value{}, err
		}
		return FloatBits(e.(*classfile.FloatInfo).Bits), nil
	case 'D':
		e, err := cp.Get(index, classfile.TagDouble)
		if err != nil {
			return Value{}, err
		}
		return DoubleBits(e.(*classfile.DoubleInfo).Bits), nil
	case 'L':
		s, err := cp.StringConstant(index)
		if err != nil {
			return Value{}, err
		}
		ref, err := vm.internString(s)
		return Ref(ref), err
	}
	v, err := cp.Integer(index)
	return narrowInt(t.Base, Int(v)), err
}

// narrowInt applies the implicit conversion of a store to a boolean, byte,
// char or short field.
func narrowInt(base byte, v Value) Value {
	switch base {
	case 'Z':
		return Int(v.AsInt() & 1)
	case 'B':
		return Int(int32(int8(v.AsInt())))
	case 'C':
		return Int(int32(uint16(v.AsInt())))
	case 'S':
		return Int(int32(int16(v.AsInt())))
	}
	return v
}

// runtimeClassName is the class used for virtual dispatch on obj.
func runtimeClassName(obj *Object) string {
	switch {
	case obj.Kind == KindString:
		return "java/lang/String"
	case obj.Kind.IsArray():
		return "java/lang/Object"
	}
	return obj.Class
}

// objectDescriptor is the field descriptor of obj's runtime type.
func objectDescriptor(obj *Object) string {
	if obj.Kind.IsArray() {
		return obj.Class
	}
	return "L" + runtimeClassName(obj) + ";"
}

// isAssignable reports whether a value of descriptor from can be stored
// where descriptor to is expected.
func (vm *VM) isAssignable(from, to string) (bool, error) {
	if from == to {
		return true, nil
	}
	switch {
	case to == "Ljava/lang/Object;":
		return from[0] == 'L' || from[0] == '[', nil
	case from[0] == '[' && to[0] == '[':
		fe, te := from[1:], to[1:]
		if (fe[0] == 'L' || fe[0] == '[') && (te[0] == 'L' || te[0] == '[') {
			return vm.isAssignable(fe, te)
		}
		return false, nil
	case from[0] == '[':
		switch to {
		case "Ljava/lang/Cloneable;", "Ljava/io/Serializable;":
			return true, nil
		}
		return false, nil
	case from[0] == 'L' && to[0] == 'L':
		fc, err := vm.loadClass(from[1 : len(from)-1])
		if err != nil {
			return false, err
		}
		tc, err := vm.loadClass(to[1 : len(to)-1])
		if err != nil {
			return false, err
		}
		return fc.IsSubclassOf(tc), nil
	}
	return false, nil
}

// instanceOf reports whether obj is an instance of the class or array type
// named by a constant-pool Class entry.
func (vm *VM) instanceOf(obj *Object, target string) (bool, error) {
	return vm.isAssignable(objectDescriptor(obj), componentDescriptor(target))
}
