package jvm

import (
	"fmt"
	"math"
)

// Kind is the runtime type tag of a Value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindReference
	KindReturnAddress
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindReference:
		return "reference"
	case KindReturnAddress:
		return "returnAddress"
	default:
		return "unknown"
	}
}

// Category is the number of stack and local slots a value of this kind takes.
func (k Kind) Category() int {
	switch k {
	case KindLong, KindDouble:
		return 2
	case KindVoid:
		return 0
	}
	return 1
}

// Value is a tagged runtime value. Floating-point values keep their raw bit
// pattern so NaN payloads survive every move.
type Value struct {
	Kind Kind
	Bits uint64
}

// Void is the result of a method returning void.
var Void = Value{}

func Int(v int32) Value { return Value{Kind: KindInt, Bits: uint64(uint32(v))} }

func Long(v int64) Value { return Value{Kind: KindLong, Bits: uint64(v)} }

func Float(v float32) Value { return FloatBits(math.Float32bits(v)) }

func FloatBits(b uint32) Value { return Value{Kind: KindFloat, Bits: uint64(b)} }

func Double(v float64) Value { return DoubleBits(math.Float64bits(v)) }

func DoubleBits(b uint64) Value { return Value{Kind: KindDouble, Bits: b} }

// Bool encodes a boolean the way the instruction set does, as int 0 or 1.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

func Ref(r Reference) Value { return Value{Kind: KindReference, Bits: r.bits()} }

func Null() Value { return Value{Kind: KindReference} }

func ReturnAddress(pc int) Value { return Value{Kind: KindReturnAddress, Bits: uint64(pc)} }

func (v Value) AsInt() int32         { return int32(uint32(v.Bits)) }
func (v Value) AsLong() int64        { return int64(v.Bits) }
func (v Value) AsFloat() float32     { return math.Float32frombits(uint32(v.Bits)) }
func (v Value) AsDouble() float64    { return math.Float64frombits(v.Bits) }
func (v Value) AsRef() Reference     { return referenceFromBits(v.Bits) }
func (v Value) AsReturnAddress() int { return int(v.Bits) }

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool {
	return v.Kind == KindReference && v.Bits == 0
}

// Category is the slot width of v.
func (v Value) Category() int {
	return v.Kind.Category()
}

func (v Value) String() string {
	switch v.Kind {
	case KindVoid:
		return "void"
	case KindInt:
		return fmt.Sprintf("%d", v.AsInt())
	case KindLong:
		return fmt.Sprintf("%dL", v.AsLong())
	case KindFloat:
		return formatFloat(float64(v.AsFloat()), 32) + "f"
	case KindDouble:
		return formatFloat(v.AsDouble(), 64)
	case KindReference:
		return v.AsRef().String()
	case KindReturnAddress:
		return fmt.Sprintf("ret@%d", v.Bits)
	}
	return fmt.Sprintf("Value{%d, %#x}", v.Kind, v.Bits)
}

// zeroValue is the default value of a field or array element whose
// descriptor starts with base.
func zeroValue(base byte, dims int) Value {
	if dims > 0 {
		return Null()
	}
	switch base {
	case 'J':
		return Long(0)
	case 'F':
		return Float(0)
	case 'D':
		return Double(0)
	case 'L', '[':
		return Null()
	}
	return Int(0)
}

// kindOf maps a descriptor base character to the value kind it is held as.
func kindOf(base byte, dims int) Kind {
	if dims > 0 {
		return KindReference
	}
	switch base {
	case 'J':
		return KindLong
	case 'F':
		return KindFloat
	case 'D':
		return KindDouble
	case 'L', '[':
		return KindReference
	case 'V':
		return KindVoid
	}
	return KindInt
}
