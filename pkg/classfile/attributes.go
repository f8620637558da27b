package classfile

import (
	"fmt"
)

// Attribute is one entry of an attributes table.
type Attribute interface {
	Name() string
	appendInfo(w *writer, cp *ConstantPool) error
}

type ConstantValueAttribute struct {
	ValueIndex uint16
}

type SourceFileAttribute struct {
	SourceFileIndex uint16
	FileName        string
}

type InnerClass struct {
	InnerClassIndex  uint16
	OuterClassIndex  uint16 // 0 when not a member
	InnerNameIndex   uint16 // 0 when anonymous
	InnerAccessFlags AccessFlags
}

type InnerClassesAttribute struct {
	Classes []InnerClass
}

// ExceptionHandler is one row of a Code attribute's exception table.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16 // 0 catches everything
}

type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionHandler
	Attributes     []Attribute
}

type LineNumber struct {
	StartPC uint16
	Line    uint16
}

type LineNumberTableAttribute struct {
	Lines []LineNumber
}

type LocalVariable struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

type LocalVariableTableAttribute struct {
	Vars []LocalVariable
}

type ExceptionsAttribute struct {
	ExceptionIndexes []uint16
}

type DeprecatedAttribute struct{}

type SyntheticAttribute struct{}

type SignatureAttribute struct {
	SignatureIndex uint16
}

// UnknownAttribute keeps attributes this package does not interpret.
type UnknownAttribute struct {
	AttrName string
	Info     []byte
}

func (*ConstantValueAttribute) Name() string      { return "ConstantValue" }
func (*SourceFileAttribute) Name() string         { return "SourceFile" }
func (*InnerClassesAttribute) Name() string       { return "InnerClasses" }
func (*CodeAttribute) Name() string               { return "Code" }
func (*LineNumberTableAttribute) Name() string    { return "LineNumberTable" }
func (*LocalVariableTableAttribute) Name() string { return "LocalVariableTable" }
func (*ExceptionsAttribute) Name() string         { return "Exceptions" }
func (*DeprecatedAttribute) Name() string         { return "Deprecated" }
func (*SyntheticAttribute) Name() string          { return "Synthetic" }
func (*SignatureAttribute) Name() string          { return "Signature" }
func (a *UnknownAttribute) Name() string          { return a.AttrName }

// LineNumber maps a pc to a source line, or 0 when there is no table.
func (c *CodeAttribute) LineNumber(pc int) int {
	line := 0
	best := -1
	for _, a := range c.Attributes {
		t, ok := a.(*LineNumberTableAttribute)
		if !ok {
			continue
		}
		for _, ln := range t.Lines {
			if int(ln.StartPC) <= pc && int(ln.StartPC) > best {
				best = int(ln.StartPC)
				line = int(ln.Line)
			}
		}
	}
	return line
}

type attributeParser func(r *reader, cp *ConstantPool) (Attribute, error)

var attributeParsers map[string]attributeParser

func init() {
	attributeParsers = map[string]attributeParser{
		"ConstantValue":      parseConstantValue,
		"SourceFile":         parseSourceFile,
		"InnerClasses":       parseInnerClasses,
		"Code":               parseCode,
		"LineNumberTable":    parseLineNumberTable,
		"LocalVariableTable": parseLocalVariableTable,
		"Exceptions":         parseExceptions,
		"Deprecated":         func(*reader, *ConstantPool) (Attribute, error) { return &DeprecatedAttribute{}, nil },
		"Synthetic":          func(*reader, *ConstantPool) (Attribute, error) { return &SyntheticAttribute{}, nil },
		"Signature":          parseSignature,
	}
}

// readAttributes reads an attributes_count followed by the attributes. Every
// parser must consume exactly attribute_length bytes.
func readAttributes(r *reader, cp *ConstantPool, loc string) ([]Attribute, error) {
	count, err := r.u2()
	if err != nil {
		return nil, at(err, "%s.attributes_count", loc)
	}
	attrs := make([]Attribute, 0, count)
	for i := 0; i < int(count); i++ {
		off := r.pos()
		nameIndex, err := r.u2()
		if err != nil {
			return nil, at(err, "%s.attributes[%d]", loc, i)
		}
		name, err := cp.Utf8(nameIndex)
		if err != nil {
			return nil, loadErr(InvalidConstantPoolIndex, fmt.Sprintf("%s.attributes[%d]", loc, i), off, err)
		}
		where := fmt.Sprintf("%s.attributes[%s]", loc, name)

		length, err := r.u4()
		if err != nil {
			return nil, at(err, "%s", where)
		}
		body, err := r.sub(int(length))
		if err != nil {
			return nil, at(err, "%s", where)
		}

		parse, ok := attributeParsers[name]
		if !ok {
			info, _ := body.bytes(body.remaining())
			attrs = append(attrs, &UnknownAttribute{AttrName: name, Info: info})
			continue
		}
		attr, err := parse(body, cp)
		if err != nil {
			// The body is bounded by attribute_length, so running off its
			// end is a length mismatch rather than a truncated file.
			if lerr, ok := err.(*LoadError); ok && lerr.Status == TruncatedFile {
				lerr.Status = AttributeLengthMismatch
			}
			return nil, at(err, "%s", where)
		}
		if body.remaining() != 0 {
			return nil, loadErr(AttributeLengthMismatch, where, off,
				fmt.Errorf("%d bytes left unread of %d", body.remaining(), length))
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func parseConstantValue(r *reader, cp *ConstantPool) (Attribute, error) {
	off := r.pos()
	idx, err := r.u2()
	if err != nil {
		return nil, err
	}
	switch cp.TagAt(idx) {
	case TagInteger, TagFloat, TagLong, TagDouble, TagString:
		return &ConstantValueAttribute{ValueIndex: idx}, nil
	}
	return nil, loadErr(InvalidConstantValue, "", off, fmt.Errorf("index %d is %s", idx, cp.TagAt(idx)))
}

func parseSourceFile(r *reader, cp *ConstantPool) (Attribute, error) {
	off := r.pos()
	idx, err := r.u2()
	if err != nil {
		return nil, err
	}
	name, err := cp.Utf8(idx)
	if err != nil {
		return nil, loadErr(InvalidSourceFile, "", off, err)
	}
	return &SourceFileAttribute{SourceFileIndex: idx, FileName: name}, nil
}

func parseInnerClasses(r *reader, cp *ConstantPool) (Attribute, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	a := &InnerClassesAttribute{Classes: make([]InnerClass, 0, count)}
	for i := 0; i < int(count); i++ {
		off := r.pos()
		var ic InnerClass
		var flags uint16
		for _, p := range []*uint16{&ic.InnerClassIndex, &ic.OuterClassIndex, &ic.InnerNameIndex, &flags} {
			if *p, err = r.u2(); err != nil {
				return nil, err
			}
		}
		ic.InnerAccessFlags = AccessFlags(flags)

		bad := cp.TagAt(ic.InnerClassIndex) != TagClass ||
			(ic.OuterClassIndex != 0 && cp.TagAt(ic.OuterClassIndex) != TagClass) ||
			(ic.InnerNameIndex != 0 && cp.TagAt(ic.InnerNameIndex) != TagUtf8)
		if bad {
			return nil, loadErr(InvalidInnerClasses, "", off, fmt.Errorf("entry %d", i))
		}
		if reserved := ic.InnerAccessFlags.Reserved(InnerClassFlags); reserved != 0 {
			return nil, loadErr(InvalidInnerClasses, "", off, fmt.Errorf("entry %d: reserved flags %s", i, reserved))
		}
		a.Classes = append(a.Classes, ic)
	}
	return a, nil
}

func parseCode(r *reader, cp *ConstantPool) (Attribute, error) {
	c := &CodeAttribute{}
	var err error
	if c.MaxStack, err = r.u2(); err != nil {
		return nil, err
	}
	if c.MaxLocals, err = r.u2(); err != nil {
		return nil, err
	}
	off := r.pos()
	n, err := r.u4()
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= 65536 {
		return nil, loadErr(InvalidCodeLength, "", off, fmt.Errorf("code_length %d", n))
	}
	if c.Code, err = r.bytes(int(n)); err != nil {
		return nil, err
	}

	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	c.ExceptionTable = make([]ExceptionHandler, 0, count)
	for i := 0; i < int(count); i++ {
		off := r.pos()
		var h ExceptionHandler
		for _, p := range []*uint16{&h.StartPC, &h.EndPC, &h.HandlerPC, &h.CatchType} {
			if *p, err = r.u2(); err != nil {
				return nil, err
			}
		}
		if h.CatchType != 0 && cp.TagAt(h.CatchType) != TagClass {
			return nil, loadErr(InvalidExceptionClass, "", off, fmt.Errorf("handler %d catch_type %d", i, h.CatchType))
		}
		if h.StartPC >= h.EndPC || int(h.EndPC) > len(c.Code) || int(h.HandlerPC) >= len(c.Code) {
			return nil, loadErr(Corrupt, "", off, fmt.Errorf("handler %d has an invalid pc range", i))
		}
		c.ExceptionTable = append(c.ExceptionTable, h)
	}

	if c.Attributes, err = readAttributes(r, cp, "Code"); err != nil {
		return nil, err
	}
	return c, nil
}

func parseLineNumberTable(r *reader, _ *ConstantPool) (Attribute, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	a := &LineNumberTableAttribute{Lines: make([]LineNumber, 0, count)}
	for i := 0; i < int(count); i++ {
		var ln LineNumber
		if ln.StartPC, err = r.u2(); err != nil {
			return nil, err
		}
		if ln.Line, err = r.u2(); err != nil {
			return nil, err
		}
		a.Lines = append(a.Lines, ln)
	}
	return a, nil
}

func parseLocalVariableTable(r *reader, cp *ConstantPool) (Attribute, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	a := &LocalVariableTableAttribute{Vars: make([]LocalVariable, 0, count)}
	for i := 0; i < int(count); i++ {
		off := r.pos()
		var v LocalVariable
		for _, p := range []*uint16{&v.StartPC, &v.Length, &v.NameIndex, &v.DescriptorIndex, &v.Index} {
			if *p, err = r.u2(); err != nil {
				return nil, err
			}
		}
		if cp.TagAt(v.NameIndex) != TagUtf8 || cp.TagAt(v.DescriptorIndex) != TagUtf8 {
			return nil, loadErr(InvalidConstantPoolIndex, "", off, fmt.Errorf("local variable %d", i))
		}
		a.Vars = append(a.Vars, v)
	}
	return a, nil
}

func parseExceptions(r *reader, cp *ConstantPool) (Attribute, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	a := &ExceptionsAttribute{ExceptionIndexes: make([]uint16, 0, count)}
	for i := 0; i < int(count); i++ {
		off := r.pos()
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		if cp.TagAt(idx) != TagClass {
			return nil, loadErr(InvalidExceptionClass, "", off, fmt.Errorf("index %d", idx))
		}
		a.ExceptionIndexes = append(a.ExceptionIndexes, idx)
	}
	return a, nil
}

func parseSignature(r *reader, cp *ConstantPool) (Attribute, error) {
	off := r.pos()
	idx, err := r.u2()
	if err != nil {
		return nil, err
	}
	if cp.TagAt(idx) != TagUtf8 {
		return nil, loadErr(InvalidConstantPoolIndex, "", off, fmt.Errorf("signature index %d", idx))
	}
	return &SignatureAttribute{SignatureIndex: idx}, nil
}

// appendInfo writes the attribute body, without the name and length header.

func (a *ConstantValueAttribute) appendInfo(w *writer, _ *ConstantPool) error {
	w.u2(a.ValueIndex)
	return nil
}

func (a *SourceFileAttribute) appendInfo(w *writer, _ *ConstantPool) error {
	w.u2(a.SourceFileIndex)
	return nil
}

func (a *InnerClassesAttribute) appendInfo(w *writer, _ *ConstantPool) error {
	w.u2(uint16(len(a.Classes)))
	for _, ic := range a.Classes {
		w.u2(ic.InnerClassIndex)
		w.u2(ic.OuterClassIndex)
		w.u2(ic.InnerNameIndex)
		w.u2(uint16(ic.InnerAccessFlags))
	}
	return nil
}

func (a *LineNumberTableAttribute) appendInfo(w *writer, _ *ConstantPool) error {
	w.u2(uint16(len(a.Lines)))
	for _, ln := range a.Lines {
		w.u2(ln.StartPC)
		w.u2(ln.Line)
	}
	return nil
}

func (a *LocalVariableTableAttribute) appendInfo(w *writer, _ *ConstantPool) error {
	w.u2(uint16(len(a.Vars)))
	for _, v := range a.Vars {
		w.u2(v.StartPC)
		w.u2(v.Length)
		w.u2(v.NameIndex)
		w.u2(v.DescriptorIndex)
		w.u2(v.Index)
	}
	return nil
}

func (a *ExceptionsAttribute) appendInfo(w *writer, _ *ConstantPool) error {
	w.u2(uint16(len(a.ExceptionIndexes)))
	for _, idx := range a.ExceptionIndexes {
		w.u2(idx)
	}
	return nil
}

func (*DeprecatedAttribute) appendInfo(*writer, *ConstantPool) error { return nil }
func (*SyntheticAttribute) appendInfo(*writer, *ConstantPool) error  { return nil }

func (a *SignatureAttribute) appendInfo(w *writer, _ *ConstantPool) error {
	w.u2(a.SignatureIndex)
	return nil
}

func (a *UnknownAttribute) appendInfo(w *writer, _ *ConstantPool) error {
	w.raw(a.Info)
	return nil
}

func (a *CodeAttribute) appendInfo(w *writer, cp *ConstantPool) error {
	w.u2(a.MaxStack)
	w.u2(a.MaxLocals)
	w.u4(uint32(len(a.Code)))
	w.raw(a.Code)
	w.u2(uint16(len(a.ExceptionTable)))
	for _, h := range a.ExceptionTable {
		w.u2(h.StartPC)
		w.u2(h.EndPC)
		w.u2(h.HandlerPC)
		w.u2(h.CatchType)
	}
	return writeAttributes(w, cp, a.Attributes)
}

// writeAttributes writes a complete attributes table. Attribute names must
// already be present in the pool.
func writeAttributes(w *writer, cp *ConstantPool, attrs []Attribute) error {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		nameIndex := cp.findUtf8(a.Name())
		if nameIndex == 0 {
			return fmt.Errorf("attribute name %q not in constant pool", a.Name())
		}
		body := &writer{}
		if err := a.appendInfo(body, cp); err != nil {
			return err
		}
		w.u2(nameIndex)
		w.u4(uint32(len(body.buf)))
		w.raw(body.buf)
	}
	return nil
}
