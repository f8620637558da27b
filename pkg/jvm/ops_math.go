package jvm

import (
	"math"

	"github.com/fluxorio/jvm/pkg/bytecode"
)

// binary pops b then a of the given kind and pushes op(a, b). The operands
// are restored when op fails.
func binary(f *Frame, kind Kind, op func(a, b Value) (Value, error)) error {
	m := f.Stack.mark()
	b, err := f.Stack.Pop(kind)
	if err != nil {
		return err
	}
	a, err := f.Stack.Pop(kind)
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	r, err := op(a, b)
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	return f.Stack.Push(r)
}

func unary(f *Frame, kind Kind, op func(a Value) Value) error {
	a, err := f.Stack.Pop(kind)
	if err != nil {
		return err
	}
	return f.Stack.Push(op(a))
}

func intOp(fn func(a, b int32) int32) func(a, b Value) (Value, error) {
	return func(a, b Value) (Value, error) { return Int(fn(a.AsInt(), b.AsInt())), nil }
}

func longOp(fn func(a, b int64) int64) func(a, b Value) (Value, error) {
	return func(a, b Value) (Value, error) { return Long(fn(a.AsLong(), b.AsLong())), nil }
}

func floatOp(fn func(a, b float32) float32) func(a, b Value) (Value, error) {
	return func(a, b Value) (Value, error) { return Float(fn(a.AsFloat(), b.AsFloat())), nil }
}

func doubleOp(fn func(a, b float64) float64) func(a, b Value) (Value, error) {
	return func(a, b Value) (Value, error) { return Double(fn(a.AsDouble(), b.AsDouble())), nil }
}

func registerMath() {
	arith := map[bytecode.Opcode]struct {
		kind Kind
		op   func(a, b Value) (Value, error)
	}{
		bytecode.Iadd: {KindInt, intOp(func(a, b int32) int32 { return a + b })},
		bytecode.Isub: {KindInt, intOp(func(a, b int32) int32 { return a - b })},
		bytecode.Imul: {KindInt, intOp(func(a, b int32) int32 { return a * b })},
		bytecode.Iand: {KindInt, intOp(func(a, b int32) int32 { return a & b })},
		bytecode.Ior:  {KindInt, intOp(func(a, b int32) int32 { return a | b })},
		bytecode.Ixor: {KindInt, intOp(func(a, b int32) int32 { return a ^ b })},
		bytecode.Ishl: {KindInt, intOp(func(a, b int32) int32 { return a << (b & 31) })},
		bytecode.Ishr: {KindInt, intOp(func(a, b int32) int32 { return a >> (b & 31) })},
		bytecode.Iushr: {KindInt, intOp(func(a, b int32) int32 {
			return int32(uint32(a) >> (b & 31))
		})},
		bytecode.Ladd: {KindLong, longOp(func(a, b int64) int64 { return a + b })},
		bytecode.Lsub: {KindLong, longOp(func(a, b int64) int64 { return a - b })},
		bytecode.Lmul: {KindLong, longOp(func(a, b int64) int64 { return a * b })},
		bytecode.Land: {KindLong, longOp(func(a, b int64) int64 { return a & b })},
		bytecode.Lor:  {KindLong, longOp(func(a, b int64) int64 { return a | b })},
		bytecode.Lxor: {KindLong, longOp(func(a, b int64) int64 { return a ^ b })},
		bytecode.Fadd: {KindFloat, floatOp(func(a, b float32) float32 { return a + b })},
		bytecode.Fsub: {KindFloat, floatOp(func(a, b float32) float32 { return a - b })},
		bytecode.Fmul: {KindFloat, floatOp(func(a, b float32) float32 { return a * b })},
		bytecode.Fdiv: {KindFloat, floatOp(func(a, b float32) float32 { return a / b })},
		bytecode.Frem: {KindFloat, floatOp(func(a, b float32) float32 {
			return float32(math.Mod(float64(a), float64(b)))
		})},
		bytecode.Dadd: {KindDouble, doubleOp(func(a, b float64) float64 { return a + b })},
		bytecode.Dsub: {KindDouble, doubleOp(func(a, b float64) float64 { return a - b })},
		bytecode.Dmul: {KindDouble, doubleOp(func(a, b float64) float64 { return a * b })},
		bytecode.Ddiv: {KindDouble, doubleOp(func(a, b float64) float64 { return a / b })},
		bytecode.Drem: {KindDouble, doubleOp(math.Mod)},
	}
	for op, a := range arith {
		a := a
		dispatch[op] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
			return binary(f, a.kind, a.op)
		}
	}

	dispatch[bytecode.Idiv] = opIntDivide
	dispatch[bytecode.Irem] = opIntDivide
	dispatch[bytecode.Ldiv] = opLongDivide
	dispatch[bytecode.Lrem] = opLongDivide
	dispatch[bytecode.Lshl] = opLongShift
	dispatch[bytecode.Lshr] = opLongShift
	dispatch[bytecode.Lushr] = opLongShift
	dispatch[bytecode.Iinc] = opIinc

	dispatch[bytecode.Ineg] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
		return unary(f, KindInt, func(a Value) Value { return Int(-a.AsInt()) })
	}
	dispatch[bytecode.Lneg] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
		return unary(f, KindLong, func(a Value) Value { return Long(-a.AsLong()) })
	}
	// Negation flips the sign bit only, so NaN payloads survive.
	dispatch[bytecode.Fneg] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
		return unary(f, KindFloat, func(a Value) Value { return FloatBits(uint32(a.Bits) ^ 1<<31) })
	}
	dispatch[bytecode.Dneg] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
		return unary(f, KindDouble, func(a Value) Value { return DoubleBits(a.Bits ^ 1<<63) })
	}
}

// Integer division truncates toward zero and wraps MinInt32 / -1, matching
// Go's own semantics. Only a zero divisor needs handling.
func opIntDivide(_ *VM, f *Frame, in *bytecode.Instruction) error {
	return binary(f, KindInt, func(a, b Value) (Value, error) {
		x, y := a.AsInt(), b.AsInt()
		if y == 0 {
			return Value{}, &ArithmeticError{Op: in.Op}
		}
		if in.Op == bytecode.Irem {
			return Int(x % y), nil
		}
		return Int(x / y), nil
	})
}

func opLongDivide(_ *VM, f *Frame, in *bytecode.Instruction) error {
	return binary(f, KindLong, func(a, b Value) (Value, error) {
		x, y := a.AsLong(), b.AsLong()
		if y == 0 {
			return Value{}, &ArithmeticError{Op: in.Op}
		}
		if in.Op == bytecode.Lrem {
			return Long(x % y), nil
		}
		return Long(x / y), nil
	})
}

// opLongShift shifts a long by an int count masked to six bits.
func opLongShift(_ *VM, f *Frame, in *bytecode.Instruction) error {
	m := f.Stack.mark()
	s, err := f.Stack.PopInt()
	if err != nil {
		return err
	}
	v, err := f.Stack.PopLong()
	if err != nil {
		f.Stack.reset(m)
		return err
	}
	s &= 63
	switch in.Op {
	case bytecode.Lshl:
		v <<= s
	case bytecode.Lshr:
		v >>= s
	default:
		v = int64(uint64(v) >> s)
	}
	return f.Stack.PushLong(v)
}
