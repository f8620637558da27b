package jvm

import (
	"math"

	"github.com/fluxorio/jvm/pkg/bytecode"
)

// Float to integer conversions saturate and map NaN to zero.
func toInt32(x float64) int32 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt32:
		return math.MaxInt32
	case x <= math.MinInt32:
		return math.MinInt32
	}
	return int32(x)
}

func toInt64(x float64) int64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt64:
		return math.MaxInt64
	case x <= math.MinInt64:
		return math.MinInt64
	}
	return int64(x)
}

type conversion struct {
	from Kind
	fn   func(Value) Value
}

var conversions = map[bytecode.Opcode]conversion{
	bytecode.I2l: {KindInt, func(v Value) Value { return Long(int64(v.AsInt())) }},
	bytecode.I2f: {KindInt, func(v Value) Value { return Float(float32(v.AsInt())) }},
	bytecode.I2d: {KindInt, func(v Value) Value { return Double(float64(v.AsInt())) }},
	bytecode.L2i: {KindLong, func(v Value) Value { return Int(int32(v.AsLong())) }},
	bytecode.L2f: {KindLong, func(v Value) Value { return Float(float32(v.AsLong())) }},
	bytecode.L2d: {KindLong, func(v Value) Value { return Double(float64(v.AsLong())) }},
	bytecode.F2i: {KindFloat, func(v Value) Value { return Int(toInt32(float64(v.AsFloat()))) }},
	bytecode.F2l: {KindFloat, func(v Value) Value { return Long(toInt64(float64(v.AsFloat()))) }},
	bytecode.F2d: {KindFloat, func(v Value) Value { return Double(float64(v.AsFloat())) }},
	bytecode.D2i: {KindDouble, func(v Value) Value { return Int(toInt32(v.AsDouble())) }},
	bytecode.D2l: {KindDouble, func(v Value) Value { return Long(toInt64(v.AsDouble())) }},
	bytecode.D2f: {KindDouble, func(v Value) Value { return Float(float32(v.AsDouble())) }},
	bytecode.I2b: {KindInt, func(v Value) Value { return Int(int32(int8(v.AsInt()))) }},
	bytecode.I2c: {KindInt, func(v Value) Value { return Int(int32(uint16(v.AsInt()))) }},
	bytecode.I2s: {KindInt, func(v Value) Value { return Int(int32(int16(v.AsInt()))) }},
}

func registerConversions() {
	for op := range conversions {
		dispatch[op] = opConvert
	}
}

// opConvert is atomic without a mark: the result of a widening conversion
// fits in the slots its operand freed only when the result is not wider, so
// room is checked first.
func opConvert(_ *VM, f *Frame, in *bytecode.Instruction) error {
	c := conversions[in.Op]
	v, err := f.Stack.Pop(c.from)
	if err != nil {
		return err
	}
	r := c.fn(v)
	if err := f.Stack.ensure(r.Category()); err != nil {
		f.Stack.Push(v)
		return err
	}
	return f.Stack.Push(r)
}

func registerComparisons() {
	dispatch[bytecode.Lcmp] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
		return compare(f, KindLong, func(a, b Value) int32 {
			return cmp3(a.AsLong() < b.AsLong(), a.AsLong() > b.AsLong())
		})
	}
	for _, op := range []bytecode.Opcode{bytecode.Fcmpl, bytecode.Fcmpg} {
		nan := nanResult(op == bytecode.Fcmpg)
		dispatch[op] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
			return compare(f, KindFloat, func(a, b Value) int32 {
				x, y := a.AsFloat(), b.AsFloat()
				if x != x || y != y {
					return nan
				}
				return cmp3(x < y, x > y)
			})
		}
	}
	for _, op := range []bytecode.Opcode{bytecode.Dcmpl, bytecode.Dcmpg} {
		nan := nanResult(op == bytecode.Dcmpg)
		dispatch[op] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
			return compare(f, KindDouble, func(a, b Value) int32 {
				x, y := a.AsDouble(), b.AsDouble()
				if math.IsNaN(x) || math.IsNaN(y) {
					return nan
				}
				return cmp3(x < y, x > y)
			})
		}
	}
}

// nanResult is what the g and l comparison variants push for an unordered
// pair.
func nanResult(g bool) int32 {
	if g {
		return 1
	}
	return -1
}

func cmp3(less, greater bool) int32 {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func compare(f *Frame, kind Kind, fn func(a, b Value) int32) error {
	return binary(f, kind, func(a, b Value) (Value, error) {
		return Int(fn(a, b)), nil
	})
}
