// Package classfile reads, validates and writes compiled class files.
//
// A ClassFile is immutable once Parse returns and may be shared freely. All
// symbolic data stays in the ConstantPool; the Name and Descriptor fields on
// members are resolved copies kept for convenience.
package classfile

import "fmt"

// Magic is the class-file signature.
const Magic uint32 = 0xCAFEBABE

// ClassFile is the decoded form of a .class file.
type ClassFile struct {
	Magic        uint32
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool *ConstantPool
	AccessFlags  AccessFlags
	ThisClass    uint16
	SuperClass   uint16 // 0 only for java/lang/Object
	Interfaces   []uint16
	Fields       []*FieldInfo
	Methods      []*MethodInfo
	Attributes   []Attribute

	name       string
	superName  string
	interfaces []string
	parsedWith *options // version range Parse accepted, nil for built classes
}

// FieldInfo is one entry of the fields table.
type FieldInfo struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute

	Name       string
	Descriptor string
	Type       FieldType
}

// MethodInfo is one entry of the methods table.
type MethodInfo struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute

	Name       string
	Descriptor string
	Signature  MethodDescriptor
}

// Name returns the binary name of the class, e.g. java/lang/String.
func (cf *ClassFile) Name() string { return cf.name }

// SuperName returns the binary name of the superclass, empty for java/lang/Object.
func (cf *ClassFile) SuperName() string { return cf.superName }

// InterfaceNames returns the binary names of the direct superinterfaces.
func (cf *ClassFile) InterfaceNames() []string { return cf.interfaces }

func (cf *ClassFile) IsInterface() bool { return cf.AccessFlags.Has(AccInterface) }

// FindMethod looks up a method declared by this class.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for _, m := range cf.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// FindField looks up a field declared by this class.
func (cf *ClassFile) FindField(name, descriptor string) *FieldInfo {
	for _, f := range cf.Fields {
		if f.Name == name && f.Descriptor == descriptor {
			return f
		}
	}
	return nil
}

// SourceFile returns the SourceFile attribute value, if any.
func (cf *ClassFile) SourceFile() string {
	for _, a := range cf.Attributes {
		if sf, ok := a.(*SourceFileAttribute); ok {
			return sf.FileName
		}
	}
	return ""
}

func (cf *ClassFile) String() string {
	return fmt.Sprintf("class %s (version %d.%d, %d fields, %d methods)",
		cf.name, cf.MajorVersion, cf.MinorVersion, len(cf.Fields), len(cf.Methods))
}

// ConstantValue returns the field's ConstantValue attribute, or nil.
func (f *FieldInfo) ConstantValue() *ConstantValueAttribute {
	for _, a := range f.Attributes {
		if cv, ok := a.(*ConstantValueAttribute); ok {
			return cv
		}
	}
	return nil
}

func (f *FieldInfo) IsStatic() bool { return f.AccessFlags.Has(AccStatic) }

// Code returns the method's Code attribute, or nil for abstract and native methods.
func (m *MethodInfo) Code() *CodeAttribute {
	for _, a := range m.Attributes {
		if c, ok := a.(*CodeAttribute); ok {
			return c
		}
	}
	return nil
}

func (m *MethodInfo) IsStatic() bool   { return m.AccessFlags.Has(AccStatic) }
func (m *MethodInfo) IsNative() bool   { return m.AccessFlags.Has(AccNative) }
func (m *MethodInfo) IsAbstract() bool { return m.AccessFlags.Has(AccAbstract) }

func (m *MethodInfo) String() string {
	return m.Name + m.Descriptor
}

// Bytes serialises the class file in the big-endian on-disk format.
func (cf *ClassFile) Bytes() ([]byte, error) {
	w := &writer{}
	w.u4(cf.Magic)
	w.u2(cf.MinorVersion)
	w.u2(cf.MajorVersion)
	cf.ConstantPool.writeTo(w)
	w.u2(uint16(cf.AccessFlags))
	w.u2(cf.ThisClass)
	w.u2(cf.SuperClass)
	w.u2(uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		w.u2(i)
	}

	w.u2(uint16(len(cf.Fields)))
	for _, f := range cf.Fields {
		w.u2(uint16(f.AccessFlags))
		w.u2(f.NameIndex)
		w.u2(f.DescriptorIndex)
		if err := writeAttributes(w, cf.ConstantPool, f.Attributes); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
	}

	w.u2(uint16(len(cf.Methods)))
	for _, m := range cf.Methods {
		w.u2(uint16(m.AccessFlags))
		w.u2(m.NameIndex)
		w.u2(m.DescriptorIndex)
		if err := writeAttributes(w, cf.ConstantPool, m.Attributes); err != nil {
			return nil, fmt.Errorf("method %s: %w", m, err)
		}
	}

	if err := writeAttributes(w, cf.ConstantPool, cf.Attributes); err != nil {
		return nil, err
	}
	return w.buf, nil
}
