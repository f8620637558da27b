package classfile

import (
	"fmt"
	"io"
)

// Supported class-file major versions (JDK 1.1 through Java 8).
const (
	MinSupportedMajor uint16 = 45
	MaxSupportedMajor uint16 = 52
)

type options struct {
	minMajor uint16
	maxMajor uint16
}

func defaultOptions() options {
	return options{minMajor: MinSupportedMajor, maxMajor: MaxSupportedMajor}
}

// Option configures Parse.
type Option func(*options)

// WithVersionRange overrides the accepted major version range.
func WithVersionRange(min, max uint16) Option {
	return func(o *options) {
		o.minMajor = min
		o.maxMajor = max
	}
}

// ParseReader reads the whole stream and parses it as a class file.
func ParseReader(rd io.Reader, opts ...Option) (*ClassFile, error) {
	b, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("classfile: read: %w", err)
	}
	return Parse(b, opts...)
}

// Parse decodes and validates a class file. On failure the error is a
// *LoadError naming the offending structure.
func Parse(b []byte, opts ...Option) (*ClassFile, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := newReader(b)
	cf := &ClassFile{parsedWith: &o}
	var err error

	if cf.Magic, err = r.u4(); err != nil {
		return nil, at(err, "magic")
	}
	if cf.Magic != Magic {
		return nil, loadErr(BadMagic, "magic", 0, fmt.Errorf("got 0x%08X", cf.Magic))
	}
	if cf.MinorVersion, err = r.u2(); err != nil {
		return nil, at(err, "minor_version")
	}
	if cf.MajorVersion, err = r.u2(); err != nil {
		return nil, at(err, "major_version")
	}
	if cf.MajorVersion < o.minMajor || cf.MajorVersion > o.maxMajor {
		return nil, loadErr(UnsupportedMajorVersion, "major_version", 6,
			fmt.Errorf("%d.%d not in [%d, %d]", cf.MajorVersion, cf.MinorVersion, o.minMajor, o.maxMajor))
	}

	if cf.ConstantPool, err = readConstantPool(r); err != nil {
		return nil, err
	}

	flags, err := r.u2()
	if err != nil {
		return nil, at(err, "access_flags")
	}
	cf.AccessFlags = AccessFlags(flags)
	if cf.ThisClass, err = r.u2(); err != nil {
		return nil, at(err, "this_class")
	}
	if cf.SuperClass, err = r.u2(); err != nil {
		return nil, at(err, "super_class")
	}

	n, err := r.u2()
	if err != nil {
		return nil, at(err, "interfaces_count")
	}
	cf.Interfaces = make([]uint16, n)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], err = r.u2(); err != nil {
			return nil, at(err, "interfaces[%d]", i)
		}
	}

	if n, err = r.u2(); err != nil {
		return nil, at(err, "fields_count")
	}
	cf.Fields = make([]*FieldInfo, 0, n)
	for i := 0; i < int(n); i++ {
		f := &FieldInfo{}
		loc := fmt.Sprintf("fields[%d]", i)
		if f.AccessFlags, f.NameIndex, f.DescriptorIndex, err = readMemberHeader(r); err != nil {
			return nil, at(err, "%s", loc)
		}
		if f.Attributes, err = readAttributes(r, cf.ConstantPool, loc); err != nil {
			return nil, err
		}
		cf.Fields = append(cf.Fields, f)
	}

	if n, err = r.u2(); err != nil {
		return nil, at(err, "methods_count")
	}
	cf.Methods = make([]*MethodInfo, 0, n)
	for i := 0; i < int(n); i++ {
		m := &MethodInfo{}
		loc := fmt.Sprintf("methods[%d]", i)
		if m.AccessFlags, m.NameIndex, m.DescriptorIndex, err = readMemberHeader(r); err != nil {
			return nil, at(err, "%s", loc)
		}
		if m.Attributes, err = readAttributes(r, cf.ConstantPool, loc); err != nil {
			return nil, err
		}
		cf.Methods = append(cf.Methods, m)
	}

	if cf.Attributes, err = readAttributes(r, cf.ConstantPool, "class"); err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, loadErr(TrailingData, "", r.pos(), fmt.Errorf("%d extra bytes", r.remaining()))
	}

	if lerr := validate(cf); lerr != nil {
		return nil, lerr
	}
	link(cf)
	return cf, nil
}

func readMemberHeader(r *reader) (AccessFlags, uint16, uint16, error) {
	flags, err := r.u2()
	if err != nil {
		return 0, 0, 0, err
	}
	name, err := r.u2()
	if err != nil {
		return 0, 0, 0, err
	}
	desc, err := r.u2()
	if err != nil {
		return 0, 0, 0, err
	}
	return AccessFlags(flags), name, desc, nil
}

// link fills in the resolved names. It runs only after validate succeeded, so
// every lookup is known to resolve.
func link(cf *ClassFile) {
	cp := cf.ConstantPool
	cf.name, _ = cp.ClassName(cf.ThisClass)
	if cf.SuperClass != 0 {
		cf.superName, _ = cp.ClassName(cf.SuperClass)
	}
	cf.interfaces = make([]string, 0, len(cf.Interfaces))
	for _, idx := range cf.Interfaces {
		name, _ := cp.ClassName(idx)
		cf.interfaces = append(cf.interfaces, name)
	}
	for _, f := range cf.Fields {
		f.Name, _ = cp.Utf8(f.NameIndex)
		f.Descriptor, _ = cp.Utf8(f.DescriptorIndex)
		f.Type, _ = ParseFieldType(f.Descriptor)
	}
	for _, m := range cf.Methods {
		m.Name, _ = cp.Utf8(m.NameIndex)
		m.Descriptor, _ = cp.Utf8(m.DescriptorIndex)
		m.Signature, _ = ParseMethodDescriptor(m.Descriptor)
	}
}
