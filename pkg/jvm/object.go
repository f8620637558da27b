package jvm

import (
	"fmt"
	"strings"
)

// ObjectKind is what a heap slot holds.
type ObjectKind uint8

const (
	KindInstance ObjectKind = iota
	KindString
	KindBooleanArray
	KindCharArray
	KindFloatArray
	KindDoubleArray
	KindByteArray
	KindShortArray
	KindIntArray
	KindLongArray
	KindReferenceArray
)

var objectKindNames = [...]string{
	KindInstance:       "instance",
	KindString:         "string",
	KindBooleanArray:   "boolean[]",
	KindCharArray:      "char[]",
	KindFloatArray:     "float[]",
	KindDoubleArray:    "double[]",
	KindByteArray:      "byte[]",
	KindShortArray:     "short[]",
	KindIntArray:       "int[]",
	KindLongArray:      "long[]",
	KindReferenceArray: "reference[]",
}

func (k ObjectKind) String() string {
	if int(k) < len(objectKindNames) {
		return objectKindNames[k]
	}
	return fmt.Sprintf("ObjectKind(%d)", int(k))
}

// IsArray reports whether k is one of the array kinds.
func (k ObjectKind) IsArray() bool {
	return k >= KindBooleanArray && k <= KindReferenceArray
}

// ArrayKindForType maps a newarray atype operand (4 boolean through 11 long)
// to its array kind.
func ArrayKindForType(atype int) (ObjectKind, bool) {
	if atype < 4 || atype > 11 {
		return 0, false
	}
	return KindBooleanArray + ObjectKind(atype-4), true
}

var arrayDescriptors = map[ObjectKind]string{
	KindBooleanArray: "[Z",
	KindCharArray:    "[C",
	KindFloatArray:   "[F",
	KindDoubleArray:  "[D",
	KindByteArray:    "[B",
	KindShortArray:   "[S",
	KindIntArray:     "[I",
	KindLongArray:    "[J",
}

func (k ObjectKind) descriptor() string {
	if d, ok := arrayDescriptors[k]; ok {
		return d
	}
	return "[Ljava/lang/Object;"
}

func arrayKindForDescriptor(elem string) (ObjectKind, bool) {
	if len(elem) != 1 {
		return 0, false
	}
	for k, d := range arrayDescriptors {
		if d[1] == elem[0] {
			return k, true
		}
	}
	return 0, false
}

// componentDescriptor turns a class name or array descriptor into a field
// descriptor.
func componentDescriptor(component string) string {
	if strings.HasPrefix(component, "[") {
		return component
	}
	return "L" + component + ";"
}

// elemKind is the value kind stored in an array of kind k.
func (k ObjectKind) elemKind() Kind {
	switch k {
	case KindLongArray:
		return KindLong
	case KindFloatArray:
		return KindFloat
	case KindDoubleArray:
		return KindDouble
	case KindReferenceArray:
		return KindReference
	}
	return KindInt
}

func (k ObjectKind) zero() Value {
	switch k.elemKind() {
	case KindLong:
		return Long(0)
	case KindFloat:
		return Float(0)
	case KindDouble:
		return Double(0)
	case KindReference:
		return Null()
	}
	return Int(0)
}

// Object is a heap object: a class instance, a string or an array.
type Object struct {
	Kind ObjectKind
	// Class is the binary class name, or the array descriptor for arrays.
	Class  string
	Fields map[string]Value // keyed by name:descriptor
	Elems  []Value
	Str    string
	// Native holds host state for objects implemented outside bytecode,
	// such as a StringBuilder's buffer.
	Native any
}

// Len is the array length.
func (o *Object) Len() int {
	return len(o.Elems)
}

func (o *Object) checkIndex(i int32) error {
	if i < 0 || int(i) >= len(o.Elems) {
		return &BoundsError{Kind: ArrayIndexOutOfBounds, Index: i, Length: len(o.Elems)}
	}
	return nil
}

// Load reads element i.
func (o *Object) Load(i int32) (Value, error) {
	if !o.Kind.IsArray() {
		return Value{}, fmt.Errorf("%s is not an array", o.Class)
	}
	if err := o.checkIndex(i); err != nil {
		return Value{}, err
	}
	return o.Elems[i], nil
}

// Store writes element i, narrowing ints to the element width.
func (o *Object) Store(i int32, v Value) error {
	if !o.Kind.IsArray() {
		return fmt.Errorf("%s is not an array", o.Class)
	}
	if v.Kind != o.Kind.elemKind() {
		return mismatch(o.Kind.elemKind(), v.Kind)
	}
	if err := o.checkIndex(i); err != nil {
		return err
	}
	o.Elems[i] = narrow(o.Kind, v)
	return nil
}

func narrow(k ObjectKind, v Value) Value {
	switch k {
	case KindBooleanArray:
		return Int(v.AsInt() & 1)
	case KindByteArray:
		return Int(int32(int8(v.AsInt())))
	case KindCharArray:
		return Int(int32(uint16(v.AsInt())))
	case KindShortArray:
		return Int(int32(int16(v.AsInt())))
	}
	return v
}

// Field reads an instance field by name:descriptor key.
func (o *Object) Field(key string) (Value, bool) {
	v, ok := o.Fields[key]
	return v, ok
}

// SetField writes an instance field.
func (o *Object) SetField(key string, v Value) {
	if o.Fields == nil {
		o.Fields = make(map[string]Value)
	}
	o.Fields[key] = v
}

func (o *Object) String() string {
	switch {
	case o.Kind == KindString:
		return fmt.Sprintf("%q", o.Str)
	case o.Kind.IsArray():
		return fmt.Sprintf("%s[%d]", o.Class, len(o.Elems))
	}
	return o.Class
}
