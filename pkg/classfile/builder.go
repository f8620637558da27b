package classfile

import (
	"fmt"
	"math"

	"github.com/fluxorio/jvm/pkg/mutf8"
)

// Builder assembles a class file in memory. Pool entries are interned, so
// asking for the same constant twice returns the same index.
//
//	b := classfile.NewBuilder("demo/Adder", "java/lang/Object")
//	b.Method(classfile.AccPublic|classfile.AccStatic, "add", "(II)I", 2, 2, code)
//	data, err := b.Bytes()
type Builder struct {
	cf   *ClassFile
	keys map[string]uint16
}

// NewBuilder starts a public class with the given binary name and superclass.
// An empty superName is only valid for java/lang/Object.
func NewBuilder(name, superName string) *Builder {
	b := &Builder{
		cf: &ClassFile{
			Magic:        Magic,
			MajorVersion: MaxSupportedMajor,
			ConstantPool: NewConstantPool(),
			AccessFlags:  AccPublic | AccSuper,
		},
		keys: make(map[string]uint16),
	}
	b.cf.ThisClass = b.Class(name)
	if superName != "" {
		b.cf.SuperClass = b.Class(superName)
	}
	return b
}

// Version sets the class-file version.
func (b *Builder) Version(major, minor uint16) *Builder {
	b.cf.MajorVersion = major
	b.cf.MinorVersion = minor
	return b
}

// Access replaces the class access flags.
func (b *Builder) Access(flags AccessFlags) *Builder {
	b.cf.AccessFlags = flags
	return b
}

// Implements adds a direct superinterface.
func (b *Builder) Implements(name string) *Builder {
	b.cf.Interfaces = append(b.cf.Interfaces, b.Class(name))
	return b
}

func (b *Builder) intern(key string, e Entry) uint16 {
	if idx, ok := b.keys[key]; ok {
		return idx
	}
	idx := b.cf.ConstantPool.Add(e)
	b.keys[key] = idx
	return idx
}

func (b *Builder) Utf8(s string) uint16 {
	return b.intern("utf8:"+s, &Utf8Info{Raw: mutf8.Encode(s), Value: s})
}

func (b *Builder) Class(name string) uint16 {
	return b.intern("class:"+name, &ClassInfo{NameIndex: b.Utf8(name)})
}

func (b *Builder) StringConst(s string) uint16 {
	return b.intern("string:"+s, &StringInfo{StringIndex: b.Utf8(s)})
}

func (b *Builder) Integer(v int32) uint16 {
	return b.intern(fmt.Sprintf("int:%d", v), &IntegerInfo{Value: v})
}

func (b *Builder) Float(v float32) uint16 {
	bits := math.Float32bits(v)
	return b.intern(fmt.Sprintf("float:%08x", bits), &FloatInfo{Bits: bits})
}

func (b *Builder) Long(v int64) uint16 {
	return b.intern(fmt.Sprintf("long:%d", v), &LongInfo{Value: v})
}

func (b *Builder) Double(v float64) uint16 {
	bits := math.Float64bits(v)
	return b.intern(fmt.Sprintf("double:%016x", bits), &DoubleInfo{Bits: bits})
}

func (b *Builder) NameAndType(name, descriptor string) uint16 {
	return b.intern("nat:"+name+":"+descriptor, &NameAndTypeInfo{
		NameIndex:       b.Utf8(name),
		DescriptorIndex: b.Utf8(descriptor),
	})
}

func (b *Builder) ref(kind ConstantTag, class, name, descriptor string) uint16 {
	key := fmt.Sprintf("ref%d:%s.%s:%s", kind, class, name, descriptor)
	return b.intern(key, &RefInfo{
		Kind:             kind,
		ClassIndex:       b.Class(class),
		NameAndTypeIndex: b.NameAndType(name, descriptor),
	})
}

func (b *Builder) Fieldref(class, name, descriptor string) uint16 {
	return b.ref(TagFieldref, class, name, descriptor)
}

func (b *Builder) Methodref(class, name, descriptor string) uint16 {
	return b.ref(TagMethodref, class, name, descriptor)
}

func (b *Builder) InterfaceMethodref(class, name, descriptor string) uint16 {
	return b.ref(TagInterfaceMethodref, class, name, descriptor)
}

// Field declares a field.
func (b *Builder) Field(flags AccessFlags, name, descriptor string) *Builder {
	b.cf.Fields = append(b.cf.Fields, &FieldInfo{
		AccessFlags:     flags,
		NameIndex:       b.Utf8(name),
		DescriptorIndex: b.Utf8(descriptor),
		Name:            name,
		Descriptor:      descriptor,
	})
	return b
}

// ConstantField declares a static field initialised from the pool entry at
// valueIndex.
func (b *Builder) ConstantField(flags AccessFlags, name, descriptor string, valueIndex uint16) *Builder {
	b.Utf8("ConstantValue")
	b.Field(flags, name, descriptor)
	f := b.cf.Fields[len(b.cf.Fields)-1]
	f.Attributes = append(f.Attributes, &ConstantValueAttribute{ValueIndex: valueIndex})
	return b
}

// Method declares a method with a body.
func (b *Builder) Method(flags AccessFlags, name, descriptor string, maxStack, maxLocals uint16, code []byte) *Builder {
	return b.MethodWithCode(flags, name, descriptor, &CodeAttribute{
		MaxStack:  maxStack,
		MaxLocals: maxLocals,
		Code:      code,
	})
}

// MethodWithCode declares a method with a prepared Code attribute, for
// callers that need an exception table or nested attributes.
func (b *Builder) MethodWithCode(flags AccessFlags, name, descriptor string, code *CodeAttribute) *Builder {
	b.Utf8("Code")
	for _, a := range code.Attributes {
		b.Utf8(a.Name())
	}
	b.cf.Methods = append(b.cf.Methods, &MethodInfo{
		AccessFlags:     flags,
		NameIndex:       b.Utf8(name),
		DescriptorIndex: b.Utf8(descriptor),
		Attributes:      []Attribute{code},
		Name:            name,
		Descriptor:      descriptor,
	})
	return b
}

// LineNumbers attaches a LineNumberTable to the most recently declared method.
func (b *Builder) LineNumbers(lines ...LineNumber) *Builder {
	if len(b.cf.Methods) == 0 {
		return b
	}
	code := b.cf.Methods[len(b.cf.Methods)-1].Code()
	if code == nil {
		return b
	}
	b.Utf8("LineNumberTable")
	code.Attributes = append(code.Attributes, &LineNumberTableAttribute{Lines: lines})
	return b
}

// BodylessMethod declares an abstract or native method.
func (b *Builder) BodylessMethod(flags AccessFlags, name, descriptor string) *Builder {
	b.cf.Methods = append(b.cf.Methods, &MethodInfo{
		AccessFlags:     flags,
		NameIndex:       b.Utf8(name),
		DescriptorIndex: b.Utf8(descriptor),
		Name:            name,
		Descriptor:      descriptor,
	})
	return b
}

// SourceFile records the SourceFile attribute.
func (b *Builder) SourceFile(name string) *Builder {
	b.Utf8("SourceFile")
	b.cf.Attributes = append(b.cf.Attributes, &SourceFileAttribute{SourceFileIndex: b.Utf8(name), FileName: name})
	return b
}

// ClassFile returns the class under construction without validating it.
func (b *Builder) ClassFile() *ClassFile {
	return b.cf
}

// Build validates the class and returns it with all names resolved.
func (b *Builder) Build() (*ClassFile, error) {
	if lerr := validate(b.cf); lerr != nil {
		return nil, lerr
	}
	link(b.cf)
	return b.cf, nil
}

// Bytes validates the class and serialises it.
func (b *Builder) Bytes() ([]byte, error) {
	cf, err := b.Build()
	if err != nil {
		return nil, err
	}
	return cf.Bytes()
}

// MustBytes is Bytes for fixtures; it panics on error.
func (b *Builder) MustBytes() []byte {
	data, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return data
}
