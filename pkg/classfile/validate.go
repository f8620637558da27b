package classfile

import (
	"fmt"
)

// validate runs the cross-reference checks that need the whole class: pool
// entries against each other, access-flag rules and member descriptors.
func validate(cf *ClassFile) *LoadError {
	if lerr := validatePool(cf.ConstantPool); lerr != nil {
		return lerr
	}
	cp := cf.ConstantPool

	if reserved := cf.AccessFlags.Reserved(ClassFlags); reserved != 0 {
		return loadErr(ReservedClassAccessFlags, "access_flags", -1, fmt.Errorf("bits %s", reserved))
	}
	if err := checkClassFlags(cf.AccessFlags); err != nil {
		return loadErr(InvalidAccessFlags, "access_flags", -1, err)
	}

	name, err := cp.ClassName(cf.ThisClass)
	if err != nil {
		return loadErr(InvalidThisClass, "this_class", -1, err)
	}
	if cf.SuperClass == 0 {
		if name != "java/lang/Object" {
			return loadErr(InvalidSuperClass, "super_class", -1, fmt.Errorf("only java/lang/Object may omit a superclass"))
		}
	} else if _, err := cp.ClassName(cf.SuperClass); err != nil {
		return loadErr(InvalidSuperClass, "super_class", -1, err)
	}
	for i, idx := range cf.Interfaces {
		if _, err := cp.ClassName(idx); err != nil {
			return loadErr(InvalidInterface, fmt.Sprintf("interfaces[%d]", i), -1, err)
		}
	}

	inInterface := cf.AccessFlags.Has(AccInterface)
	for i, f := range cf.Fields {
		if lerr := validateField(cp, f, inInterface); lerr != nil {
			lerr.Location = fmt.Sprintf("fields[%d]", i)
			return lerr
		}
	}
	for i, m := range cf.Methods {
		if lerr := validateMethod(cp, m, inInterface, cf.MajorVersion); lerr != nil {
			lerr.Location = fmt.Sprintf("methods[%d]", i)
			return lerr
		}
	}
	return nil
}

// validatePool checks that every symbolic reference in the pool lands on an
// entry of the right kind.
func validatePool(cp *ConstantPool) *LoadError {
	var lerr *LoadError
	fail := func(status Status, index uint16, err error) {
		if lerr == nil {
			lerr = loadErr(status, fmt.Sprintf("constant_pool[%d]", index), -1, err)
		}
	}

	cp.Each(func(index uint16, e Entry) {
		switch v := e.(type) {
		case *ClassInfo:
			name, err := cp.Utf8(v.NameIndex)
			if err != nil {
				fail(InvalidName, index, err)
			} else if !validClassEntryName(name) {
				fail(InvalidName, index, fmt.Errorf("class name %q", name))
			}
		case *StringInfo:
			if _, err := cp.Utf8(v.StringIndex); err != nil {
				fail(InvalidStringIndex, index, err)
			}
		case *RefInfo:
			if _, err := cp.Get(v.ClassIndex, TagClass); err != nil {
				fail(InvalidClassIndex, index, err)
				return
			}
			name, desc, err := cp.NameAndType(v.NameAndTypeIndex)
			if err != nil {
				fail(InvalidNameAndType, index, err)
				return
			}
			if v.Kind == TagFieldref {
				if !validUnqualifiedName(name) {
					fail(InvalidName, index, fmt.Errorf("field name %q", name))
				} else if _, err := ParseFieldType(desc); err != nil {
					fail(InvalidFieldDescriptor, index, err)
				}
				return
			}
			if !validMethodName(name) || name == "<clinit>" {
				fail(InvalidName, index, fmt.Errorf("method name %q", name))
			} else if md, err := ParseMethodDescriptor(desc); err != nil {
				fail(InvalidMethodDescriptor, index, err)
			} else if name == "<init>" && !md.Return.IsVoid() {
				fail(InvalidMethodDescriptor, index, fmt.Errorf("<init> must return void"))
			}
		case *NameAndTypeInfo:
			if _, err := cp.Utf8(v.NameIndex); err != nil {
				fail(InvalidName, index, err)
			} else if _, err := cp.Utf8(v.DescriptorIndex); err != nil {
				fail(InvalidNameAndType, index, err)
			}
		case *MethodHandleInfo:
			switch cp.TagAt(v.ReferenceIndex) {
			case TagFieldref, TagMethodref, TagInterfaceMethodref:
			default:
				fail(InvalidConstantPoolIndex, index, fmt.Errorf("method handle target #%d", v.ReferenceIndex))
			}
		case *MethodTypeInfo:
			desc, err := cp.Utf8(v.DescriptorIndex)
			if err != nil {
				fail(InvalidConstantPoolIndex, index, err)
			} else if _, err := ParseMethodDescriptor(desc); err != nil {
				fail(InvalidMethodDescriptor, index, err)
			}
		case *DynamicInfo:
			if _, err := cp.Get(v.NameAndTypeIndex, TagNameAndType); err != nil {
				fail(InvalidNameAndType, index, err)
			}
		}
	})
	return lerr
}

func validateField(cp *ConstantPool, f *FieldInfo, inInterface bool) *LoadError {
	if reserved := f.AccessFlags.Reserved(FieldFlags); reserved != 0 {
		return loadErr(ReservedFieldAccessFlags, "", -1, fmt.Errorf("bits %s", reserved))
	}
	if err := checkFieldFlags(f.AccessFlags, inInterface); err != nil {
		return loadErr(InvalidAccessFlags, "", -1, err)
	}
	name, err := cp.Utf8(f.NameIndex)
	if err != nil || !validUnqualifiedName(name) {
		return loadErr(InvalidName, "", -1, fmt.Errorf("field name #%d", f.NameIndex))
	}
	desc, err := cp.Utf8(f.DescriptorIndex)
	if err != nil {
		return loadErr(InvalidFieldDescriptor, "", -1, err)
	}
	ft, err := ParseFieldType(desc)
	if err != nil {
		return loadErr(InvalidFieldDescriptor, "", -1, err)
	}

	if cv := f.ConstantValue(); cv != nil {
		if !constantMatches(cp.TagAt(cv.ValueIndex), ft) {
			return loadErr(InvalidConstantValue, "", -1,
				fmt.Errorf("%s constant for field of type %s", cp.TagAt(cv.ValueIndex), desc))
		}
	}
	return nil
}

// constantMatches reports whether a ConstantValue of the given tag can
// initialise a field of type t.
func constantMatches(tag ConstantTag, t FieldType) bool {
	if t.Dimensions > 0 {
		return false
	}
	switch t.Base {
	case 'B', 'C', 'I', 'S', 'Z':
		return tag == TagInteger
	case 'F':
		return tag == TagFloat
	case 'J':
		return tag == TagLong
	case 'D':
		return tag == TagDouble
	case 'L':
		return tag == TagString && t.ClassName == "java/lang/String"
	}
	return false
}

func validateMethod(cp *ConstantPool, m *MethodInfo, inInterface bool, major uint16) *LoadError {
	name, err := cp.Utf8(m.NameIndex)
	if err != nil || !validMethodName(name) {
		return loadErr(InvalidName, "", -1, fmt.Errorf("method name #%d", m.NameIndex))
	}
	if reserved := m.AccessFlags.Reserved(MethodFlags); reserved != 0 {
		return loadErr(ReservedMethodAccessFlags, "", -1, fmt.Errorf("bits %s", reserved))
	}
	if err := checkMethodFlags(m.AccessFlags, name, inInterface, major); err != nil {
		return loadErr(InvalidAccessFlags, "", -1, err)
	}
	desc, err := cp.Utf8(m.DescriptorIndex)
	if err != nil {
		return loadErr(InvalidMethodDescriptor, "", -1, err)
	}
	md, err := ParseMethodDescriptor(desc)
	if err != nil {
		return loadErr(InvalidMethodDescriptor, "", -1, err)
	}
	if (name == "<init>" || name == "<clinit>") && !md.Return.IsVoid() {
		return loadErr(InvalidMethodDescriptor, "", -1, fmt.Errorf("%s must return void", name))
	}

	codes := 0
	for _, a := range m.Attributes {
		if _, ok := a.(*CodeAttribute); ok {
			codes++
		}
	}
	bodyless := m.AccessFlags&(AccNative|AccAbstract) != 0
	switch {
	case bodyless && codes != 0:
		return loadErr(MissingCode, "", -1, fmt.Errorf("native or abstract method %s has a Code attribute", name))
	case !bodyless && codes != 1:
		return loadErr(MissingCode, "", -1, fmt.Errorf("method %s has %d Code attributes", name, codes))
	}
	return nil
}
