package classfile

import (
	"fmt"
	"math"

	"github.com/fluxorio/jvm/pkg/mutf8"
)

// Entry is one constant-pool item.
type Entry interface {
	Tag() ConstantTag
}

// Utf8Info keeps both the encoded bytes and the decoded text.
type Utf8Info struct {
	Raw   []byte
	Value string
}

type IntegerInfo struct{ Value int32 }

// FloatInfo stores the raw IEEE bits so NaN payloads survive.
type FloatInfo struct{ Bits uint32 }

type LongInfo struct{ Value int64 }

// DoubleInfo stores the raw IEEE bits so NaN payloads survive.
type DoubleInfo struct{ Bits uint64 }

type ClassInfo struct{ NameIndex uint16 }

type StringInfo struct{ StringIndex uint16 }

// RefInfo is a Fieldref, Methodref or InterfaceMethodref, told apart by Kind.
type RefInfo struct {
	Kind             ConstantTag
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type NameAndTypeInfo struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

type MethodHandleInfo struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

type MethodTypeInfo struct{ DescriptorIndex uint16 }

// DynamicInfo is a Dynamic or InvokeDynamic entry, told apart by Kind.
type DynamicInfo struct {
	Kind                     ConstantTag
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (*Utf8Info) Tag() ConstantTag         { return TagUtf8 }
func (*IntegerInfo) Tag() ConstantTag      { return TagInteger }
func (*FloatInfo) Tag() ConstantTag        { return TagFloat }
func (*LongInfo) Tag() ConstantTag         { return TagLong }
func (*DoubleInfo) Tag() ConstantTag       { return TagDouble }
func (*ClassInfo) Tag() ConstantTag        { return TagClass }
func (*StringInfo) Tag() ConstantTag       { return TagString }
func (e *RefInfo) Tag() ConstantTag        { return e.Kind }
func (*NameAndTypeInfo) Tag() ConstantTag  { return TagNameAndType }
func (*MethodHandleInfo) Tag() ConstantTag { return TagMethodHandle }
func (*MethodTypeInfo) Tag() ConstantTag   { return TagMethodType }
func (e *DynamicInfo) Tag() ConstantTag    { return e.Kind }

func (e *FloatInfo) Value() float32  { return math.Float32frombits(e.Bits) }
func (e *DoubleInfo) Value() float64 { return math.Float64frombits(e.Bits) }

// ConstantPool is the 1-indexed table of class constants. Index 0 and the slot
// following every Long or Double entry hold no entry.
type ConstantPool struct {
	entries []Entry
}

// NewConstantPool returns an empty pool ready for appending.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: []Entry{nil}}
}

// Count is the constant_pool_count as written in the class file.
func (cp *ConstantPool) Count() int {
	return len(cp.entries)
}

// Add appends an entry and returns its index. Long and Double entries reserve
// the following slot.
func (cp *ConstantPool) Add(e Entry) uint16 {
	idx := uint16(len(cp.entries))
	cp.entries = append(cp.entries, e)
	if e.Tag().Wide() {
		cp.entries = append(cp.entries, nil)
	}
	return idx
}

// Entry returns the live entry at index regardless of its kind.
func (cp *ConstantPool) Entry(index uint16) (Entry, error) {
	if int(index) <= 0 || int(index) >= len(cp.entries) || cp.entries[index] == nil {
		return nil, &ResolutionError{Index: index, Kind: IndexOutOfRange}
	}
	return cp.entries[index], nil
}

// Get returns the entry at index if it carries the expected tag.
func (cp *ConstantPool) Get(index uint16, expected ConstantTag) (Entry, error) {
	e, err := cp.Entry(index)
	if err != nil {
		err.(*ResolutionError).Expected = expected
		return nil, err
	}
	if e.Tag() != expected {
		return nil, &ResolutionError{Index: index, Expected: expected, Actual: e.Tag(), Kind: TagMismatch}
	}
	return e, nil
}

// TagAt returns the tag of the entry at index, TagNone for dead or invalid slots.
func (cp *ConstantPool) TagAt(index uint16) ConstantTag {
	e, err := cp.Entry(index)
	if err != nil {
		return TagNone
	}
	return e.Tag()
}

// Each calls fn for every live entry in index order.
func (cp *ConstantPool) Each(fn func(index uint16, e Entry)) {
	for i := 1; i < len(cp.entries); i++ {
		if cp.entries[i] != nil {
			fn(uint16(i), cp.entries[i])
		}
	}
}

func (cp *ConstantPool) Utf8(index uint16) (string, error) {
	e, err := cp.Get(index, TagUtf8)
	if err != nil {
		return "", err
	}
	return e.(*Utf8Info).Value, nil
}

// Utf8Bytes returns the undecoded bytes of a Utf8 entry.
func (cp *ConstantPool) Utf8Bytes(index uint16) ([]byte, error) {
	e, err := cp.Get(index, TagUtf8)
	if err != nil {
		return nil, err
	}
	return e.(*Utf8Info).Raw, nil
}

// ClassName resolves a Class entry to its binary name.
func (cp *ConstantPool) ClassName(index uint16) (string, error) {
	e, err := cp.Get(index, TagClass)
	if err != nil {
		return "", err
	}
	return cp.Utf8(e.(*ClassInfo).NameIndex)
}

func (cp *ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	e, err := cp.Get(index, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	nt := e.(*NameAndTypeInfo)
	if name, err = cp.Utf8(nt.NameIndex); err != nil {
		return "", "", err
	}
	if descriptor, err = cp.Utf8(nt.DescriptorIndex); err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// MemberRef is a resolved Fieldref, Methodref or InterfaceMethodref.
type MemberRef struct {
	Class      string
	Name       string
	Descriptor string
}

func (m MemberRef) String() string {
	return m.Class + "." + m.Name + ":" + m.Descriptor
}

// MemberRef resolves a field or method reference. expected must be one of
// TagFieldref, TagMethodref or TagInterfaceMethodref.
func (cp *ConstantPool) MemberRef(index uint16, expected ConstantTag) (MemberRef, error) {
	e, err := cp.Get(index, expected)
	if err != nil {
		return MemberRef{}, err
	}
	ref := e.(*RefInfo)
	class, err := cp.ClassName(ref.ClassIndex)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := cp.NameAndType(ref.NameAndTypeIndex)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Class: class, Name: name, Descriptor: desc}, nil
}

// MethodRef resolves either a Methodref or an InterfaceMethodref.
func (cp *ConstantPool) MethodRef(index uint16) (MemberRef, error) {
	if cp.TagAt(index) == TagInterfaceMethodref {
		return cp.MemberRef(index, TagInterfaceMethodref)
	}
	return cp.MemberRef(index, TagMethodref)
}

func (cp *ConstantPool) Integer(index uint16) (int32, error) {
	e, err := cp.Get(index, TagInteger)
	if err != nil {
		return 0, err
	}
	return e.(*IntegerInfo).Value, nil
}

func (cp *ConstantPool) Float(index uint16) (float32, error) {
	e, err := cp.Get(index, TagFloat)
	if err != nil {
		return 0, err
	}
	return e.(*FloatInfo).Value(), nil
}

func (cp *ConstantPool) Long(index uint16) (int64, error) {
	e, err := cp.Get(index, TagLong)
	if err != nil {
		return 0, err
	}
	return e.(*LongInfo).Value, nil
}

func (cp *ConstantPool) Double(index uint16) (float64, error) {
	e, err := cp.Get(index, TagDouble)
	if err != nil {
		return 0, err
	}
	return e.(*DoubleInfo).Value(), nil
}

// StringConstant resolves a String entry to its text.
func (cp *ConstantPool) StringConstant(index uint16) (string, error) {
	e, err := cp.Get(index, TagString)
	if err != nil {
		return "", err
	}
	return cp.Utf8(e.(*StringInfo).StringIndex)
}

// findUtf8 returns the index of a Utf8 entry with the given text, or 0.
func (cp *ConstantPool) findUtf8(s string) uint16 {
	for i, e := range cp.entries {
		if u, ok := e.(*Utf8Info); ok && u.Value == s {
			return uint16(i)
		}
	}
	return 0
}

// LoadConstantPool reads a constant_pool_count followed by the pool entries.
func LoadConstantPool(raw []byte) (*ConstantPool, error) {
	return readConstantPool(newReader(raw))
}

func readConstantPool(r *reader) (*ConstantPool, error) {
	start := r.pos()
	count, err := r.u2()
	if err != nil {
		return nil, at(err, "constant_pool_count")
	}
	if count == 0 {
		return nil, loadErr(InvalidConstantPoolCount, "constant_pool_count", start, nil)
	}

	cp := &ConstantPool{entries: make([]Entry, 1, count)}
	for len(cp.entries) < int(count) {
		idx := len(cp.entries)
		e, err := readEntry(r, count)
		if err != nil {
			return nil, at(err, "constant_pool[%d]", idx)
		}
		cp.entries = append(cp.entries, e)
		if e.Tag().Wide() {
			if len(cp.entries) >= int(count) {
				return nil, loadErr(InvalidConstantPoolCount, fmt.Sprintf("constant_pool[%d]", idx), r.pos(), nil)
			}
			cp.entries = append(cp.entries, nil)
		}
	}
	return cp, nil
}

func readEntry(r *reader, count uint16) (Entry, error) {
	off := r.pos()
	tag, err := r.u1()
	if err != nil {
		return nil, err
	}

	// Symbolic references must point inside the pool.
	index := func() (uint16, error) {
		pos := r.pos()
		v, err := r.u2()
		if err != nil {
			return 0, err
		}
		if v == 0 || v >= count {
			return 0, loadErr(InvalidConstantPoolIndex, "", pos, fmt.Errorf("index %d outside [1,%d)", v, count))
		}
		return v, nil
	}

	switch ConstantTag(tag) {
	case TagUtf8:
		n, err := r.u2()
		if err != nil {
			return nil, err
		}
		raw, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		s, err := mutf8.Decode(raw)
		if err != nil {
			return nil, loadErr(InvalidUTF8, "", off, err)
		}
		return &Utf8Info{Raw: raw, Value: s}, nil
	case TagInteger:
		v, err := r.u4()
		return &IntegerInfo{Value: int32(v)}, err
	case TagFloat:
		v, err := r.u4()
		return &FloatInfo{Bits: v}, err
	case TagLong:
		v, err := r.u8()
		return &LongInfo{Value: int64(v)}, err
	case TagDouble:
		v, err := r.u8()
		return &DoubleInfo{Bits: v}, err
	case TagClass:
		v, err := index()
		return &ClassInfo{NameIndex: v}, err
	case TagString:
		v, err := index()
		return &StringInfo{StringIndex: v}, err
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		c, err := index()
		if err != nil {
			return nil, err
		}
		nt, err := index()
		return &RefInfo{Kind: ConstantTag(tag), ClassIndex: c, NameAndTypeIndex: nt}, err
	case TagNameAndType:
		n, err := index()
		if err != nil {
			return nil, err
		}
		d, err := index()
		return &NameAndTypeInfo{NameIndex: n, DescriptorIndex: d}, err
	case TagMethodHandle:
		kind, err := r.u1()
		if err != nil {
			return nil, err
		}
		if kind < 1 || kind > 9 {
			return nil, loadErr(Corrupt, "", off, fmt.Errorf("method handle kind %d", kind))
		}
		ref, err := index()
		return &MethodHandleInfo{ReferenceKind: kind, ReferenceIndex: ref}, err
	case TagMethodType:
		d, err := index()
		return &MethodTypeInfo{DescriptorIndex: d}, err
	case TagDynamic, TagInvokeDynamic:
		bsm, err := r.u2()
		if err != nil {
			return nil, err
		}
		nt, err := index()
		return &DynamicInfo{Kind: ConstantTag(tag), BootstrapMethodAttrIndex: bsm, NameAndTypeIndex: nt}, err
	default:
		return nil, loadErr(UnknownConstantPoolTag, "", off, fmt.Errorf("tag %d", tag))
	}
}

func (cp *ConstantPool) writeTo(w *writer) {
	w.u2(uint16(len(cp.entries)))
	for _, e := range cp.entries {
		if e == nil {
			continue
		}
		w.u1(uint8(e.Tag()))
		switch v := e.(type) {
		case *Utf8Info:
			w.u2(uint16(len(v.Raw)))
			w.raw(v.Raw)
		case *IntegerInfo:
			w.u4(uint32(v.Value))
		case *FloatInfo:
			w.u4(v.Bits)
		case *LongInfo:
			w.u8(uint64(v.Value))
		case *DoubleInfo:
			w.u8(v.Bits)
		case *ClassInfo:
			w.u2(v.NameIndex)
		case *StringInfo:
			w.u2(v.StringIndex)
		case *RefInfo:
			w.u2(v.ClassIndex)
			w.u2(v.NameAndTypeIndex)
		case *NameAndTypeInfo:
			w.u2(v.NameIndex)
			w.u2(v.DescriptorIndex)
		case *MethodHandleInfo:
			w.u1(v.ReferenceKind)
			w.u2(v.ReferenceIndex)
		case *MethodTypeInfo:
			w.u2(v.DescriptorIndex)
		case *DynamicInfo:
			w.u2(v.BootstrapMethodAttrIndex)
			w.u2(v.NameAndTypeIndex)
		}
	}
}
