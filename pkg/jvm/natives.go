package jvm

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/fluxorio/jvm/pkg/classfile"
)

// NativeFunc implements a native method. args holds the receiver first for
// instance methods, then the declared parameters.
type NativeFunc func(vm *VM, args []Value) (Value, error)

// NativeKey is the lookup key of a native method, e.g.
// "java/lang/Math.abs:(I)I".
func NativeKey(class, name, descriptor string) string {
	return class + "." + name + ":" + descriptor
}

func (vm *VM) callNative(c *Class, m *classfile.MethodInfo, args []Value) (Value, error) {
	key := NativeKey(c.Name, m.Name, m.Descriptor)
	fn, ok := vm.natives[key]
	if !ok {
		return Void, fmt.Errorf("%w: native method %s", ErrUnsupported, key)
	}
	v, err := fn(vm, args)
	if err != nil {
		return Void, err
	}
	ret := m.Signature.Return
	if want := kindOf(ret.Base, ret.Dimensions); v.Kind != want {
		return Void, fmt.Errorf("native %s: %w", key, mismatch(want, v.Kind))
	}
	return v, nil
}

func defaultNatives() map[string]NativeFunc {
	n := make(map[string]NativeFunc)
	reg := func(class, name, descriptor string, fn NativeFunc) {
		n[NativeKey(class, name, descriptor)] = fn
	}

	reg("java/lang/Object", "hashCode", "()I", identityHash)
	reg("java/lang/Object", "equals", "(Ljava/lang/Object;)Z", refEquals)
	reg("java/lang/Object", "toString", "()Ljava/lang/String;", objectToString)
	reg("java/lang/Object", "getClass", "()Ljava/lang/Class;", getClass)
	reg("java/lang/Class", "getName", "()Ljava/lang/String;", classGetName)

	reg("java/lang/String", "length", "()I", stringLength)
	reg("java/lang/String", "charAt", "(I)C", stringCharAt)
	reg("java/lang/String", "isEmpty", "()Z", stringIsEmpty)
	reg("java/lang/String", "equals", "(Ljava/lang/Object;)Z", stringEquals)
	reg("java/lang/String", "hashCode", "()I", stringHashCode)
	reg("java/lang/String", "concat", "(Ljava/lang/String;)Ljava/lang/String;", stringConcat)
	reg("java/lang/String", "toString", "()Ljava/lang/String;", self)

	reg("java/lang/StringBuilder", "length", "()I", builderLength)
	reg("java/lang/StringBuilder", "toString", "()Ljava/lang/String;", builderToString)

	reg("java/lang/System", "currentTimeMillis", "()J", currentTimeMillis)
	reg("java/lang/System", "nanoTime", "()J", nanoTime)
	reg("java/lang/System", "identityHashCode", "(Ljava/lang/Object;)I", identityHash)
	reg("java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", arraycopy)

	reg("java/io/PrintStream", "println", "()V", printNewline)
	reg("java/io/PrintStream", "flush", "()V", func(*VM, []Value) (Value, error) { return Void, nil })
	for _, d := range printDescriptors {
		param := d[1 : len(d)-2]
		reg("java/io/PrintStream", "println", d, printer(param, true))
		reg("java/io/PrintStream", "print", d, printer(param, false))
		if param != "[C" {
			reg("java/lang/String", "valueOf", "("+param+")Ljava/lang/String;", valueOf(param))
			reg("java/lang/StringBuilder", "append", "("+param+")Ljava/lang/StringBuilder;", builderAppend(param))
		}
	}

	reg("java/lang/Math", "abs", "(I)I", func(_ *VM, a []Value) (Value, error) {
		if x := a[0].AsInt(); x < 0 {
			return Int(-x), nil
		}
		return a[0], nil
	})
	reg("java/lang/Math", "abs", "(J)J", func(_ *VM, a []Value) (Value, error) {
		if x := a[0].AsLong(); x < 0 {
			return Long(-x), nil
		}
		return a[0], nil
	})
	reg("java/lang/Math", "abs", "(F)F", func(_ *VM, a []Value) (Value, error) {
		return FloatBits(uint32(a[0].Bits) &^ (1 << 31)), nil
	})
	reg("java/lang/Math", "abs", "(D)D", func(_ *VM, a []Value) (Value, error) {
		return DoubleBits(a[0].Bits &^ (1 << 63)), nil
	})
	reg("java/lang/Math", "max", "(II)I", func(_ *VM, a []Value) (Value, error) {
		return Int(max(a[0].AsInt(), a[1].AsInt())), nil
	})
	reg("java/lang/Math", "min", "(II)I", func(_ *VM, a []Value) (Value, error) {
		return Int(min(a[0].AsInt(), a[1].AsInt())), nil
	})
	reg("java/lang/Math", "max", "(JJ)J", func(_ *VM, a []Value) (Value, error) {
		return Long(max(a[0].AsLong(), a[1].AsLong())), nil
	})
	reg("java/lang/Math", "min", "(JJ)J", func(_ *VM, a []Value) (Value, error) {
		return Long(min(a[0].AsLong(), a[1].AsLong())), nil
	})
	reg("java/lang/Math", "max", "(DD)D", func(_ *VM, a []Value) (Value, error) {
		return Double(math.Max(a[0].AsDouble(), a[1].AsDouble())), nil
	})
	reg("java/lang/Math", "min", "(DD)D", func(_ *VM, a []Value) (Value, error) {
		return Double(math.Min(a[0].AsDouble(), a[1].AsDouble())), nil
	})
	reg("java/lang/Math", "sqrt", "(D)D", func(_ *VM, a []Value) (Value, error) {
		return Double(math.Sqrt(a[0].AsDouble())), nil
	})
	reg("java/lang/Math", "pow", "(DD)D", func(_ *VM, a []Value) (Value, error) {
		return Double(math.Pow(a[0].AsDouble(), a[1].AsDouble())), nil
	})
	return n
}

// WithNative registers or replaces a native method implementation.
func WithNative(class, name, descriptor string, fn NativeFunc) Option {
	return func(vm *VM) {
		vm.natives[NativeKey(class, name, descriptor)] = fn
	}
}

// WithOutput sets where System.out and System.err write.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(vm *VM) {
		if stdout != nil {
			vm.stdout = stdout
		}
		if stderr != nil {
			vm.stderr = stderr
		}
	}
}

func (vm *VM) object(v Value) (*Object, error) {
	if v.Kind != KindReference {
		return nil, mismatch(KindReference, v.Kind)
	}
	return vm.heap.Lookup(v.AsRef())
}

// stringOf returns the contents of a java/lang/String reference.
func (vm *VM) stringOf(v Value) (string, error) {
	obj, err := vm.object(v)
	if err != nil {
		return "", err
	}
	if obj.Kind != KindString {
		return "", &ClassCastError{From: obj.Class, To: "java/lang/String"}
	}
	return obj.Str, nil
}

func (vm *VM) newString(s string) (Value, error) {
	ref, err := vm.heap.NewString(s)
	return Ref(ref), err
}

// display renders v the way print and string concatenation do. Objects
// with a bytecode toString are asked for it.
func (vm *VM) display(v Value, param string) (string, error) {
	switch param {
	case "Z":
		return strconv.FormatBool(v.AsInt() != 0), nil
	case "C":
		return string(utf16.Decode([]uint16{uint16(v.AsInt())})), nil
	case "I":
		return strconv.FormatInt(int64(v.AsInt()), 10), nil
	case "J":
		return strconv.FormatInt(v.AsLong(), 10), nil
	case "F":
		return formatFloat(float64(v.AsFloat()), 32), nil
	case "D":
		return formatFloat(v.AsDouble(), 64), nil
	}
	if v.IsNull() {
		return "null", nil
	}
	obj, err := vm.object(v)
	if err != nil {
		return "", err
	}
	switch {
	case obj.Kind == KindString:
		return obj.Str, nil
	case obj.Kind == KindCharArray && param == "[C":
		units := make([]uint16, len(obj.Elems))
		for i, e := range obj.Elems {
			units[i] = uint16(e.AsInt())
		}
		return string(utf16.Decode(units)), nil
	case obj.Kind.IsArray():
		return fmt.Sprintf("%s@%x", obj.Class, uint32(identity(v.AsRef()))), nil
	}
	if sb, ok := obj.Native.(*strings.Builder); ok {
		return sb.String(), nil
	}
	c, err := vm.loadClass(obj.Class)
	if err != nil {
		return "", err
	}
	owner, m := c.FindMethod("toString", "()Ljava/lang/String;")
	if m == nil || m.IsNative() {
		return vm.defaultToString(obj, v.AsRef())
	}
	s, err := vm.invoke(owner, m, []Value{v})
	if err != nil {
		return "", err
	}
	if s.IsNull() {
		return "null", nil
	}
	return vm.stringOf(s)
}

// defaultToString is Object.toString, extended to show a throwable's message.
func (vm *VM) defaultToString(obj *Object, ref Reference) (string, error) {
	name := strings.ReplaceAll(obj.Class, "/", ".")
	if msg, ok := obj.Field(detailMessage); ok {
		if msg.IsNull() {
			return name, nil
		}
		s, err := vm.stringOf(msg)
		if err != nil {
			return "", err
		}
		return name + ": " + s, nil
	}
	return fmt.Sprintf("%s@%x", name, uint32(identity(ref))), nil
}

func identity(ref Reference) int32 {
	return int32(ref.Index*0x9E3779B1 ^ ref.Gen)
}

func identityHash(_ *VM, args []Value) (Value, error) {
	if args[0].IsNull() {
		return Int(0), nil
	}
	return Int(identity(args[0].AsRef())), nil
}

func refEquals(_ *VM, args []Value) (Value, error) {
	return Bool(args[0].Bits == args[1].Bits), nil
}

func self(_ *VM, args []Value) (Value, error) {
	return args[0], nil
}

func objectToString(vm *VM, args []Value) (Value, error) {
	obj, err := vm.object(args[0])
	if err != nil {
		return Void, err
	}
	s, err := vm.defaultToString(obj, args[0].AsRef())
	if err != nil {
		return Void, err
	}
	return vm.newString(s)
}

func getClass(vm *VM, args []Value) (Value, error) {
	obj, err := vm.object(args[0])
	if err != nil {
		return Void, err
	}
	name := obj.Class
	if !obj.Kind.IsArray() {
		name = runtimeClassName(obj)
	}
	ref, err := vm.classMirror(name)
	return Ref(ref), err
}

func classGetName(vm *VM, args []Value) (Value, error) {
	obj, err := vm.object(args[0])
	if err != nil {
		return Void, err
	}
	ref, err := vm.internString(strings.ReplaceAll(obj.Str, "/", "."))
	return Ref(ref), err
}

func stringLength(vm *VM, args []Value) (Value, error) {
	s, err := vm.stringOf(args[0])
	if err != nil {
		return Void, err
	}
	return Int(int32(len(utf16.Encode([]rune(s))))), nil
}

func stringCharAt(vm *VM, args []Value) (Value, error) {
	s, err := vm.stringOf(args[0])
	if err != nil {
		return Void, err
	}
	units := utf16.Encode([]rune(s))
	i := args[1].AsInt()
	if i < 0 || int(i) >= len(units) {
		return Void, &BoundsError{Kind: ArrayIndexOutOfBounds, Index: i, Length: len(units)}
	}
	return Int(int32(units[i])), nil
}

func stringIsEmpty(vm *VM, args []Value) (Value, error) {
	s, err := vm.stringOf(args[0])
	return Bool(s == ""), err
}

func stringEquals(vm *VM, args []Value) (Value, error) {
	s, err := vm.stringOf(args[0])
	if err != nil {
		return Void, err
	}
	if args[1].IsNull() {
		return Bool(false), nil
	}
	other, err := vm.object(args[1])
	if err != nil {
		return Void, err
	}
	return Bool(other.Kind == KindString && other.Str == s), nil
}

func stringHashCode(vm *VM, args []Value) (Value, error) {
	s, err := vm.stringOf(args[0])
	if err != nil {
		return Void, err
	}
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return Int(h), nil
}

func stringConcat(vm *VM, args []Value) (Value, error) {
	s, err := vm.stringOf(args[0])
	if err != nil {
		return Void, err
	}
	if args[1].IsNull() {
		return Void, &ResourceError{Kind: NullReference}
	}
	t, err := vm.stringOf(args[1])
	if err != nil {
		return Void, err
	}
	return vm.newString(s + t)
}

func valueOf(param string) NativeFunc {
	return func(vm *VM, args []Value) (Value, error) {
		s, err := vm.display(args[0], param)
		if err != nil {
			return Void, err
		}
		return vm.newString(s)
	}
}

func builder(vm *VM, v Value) (*strings.Builder, error) {
	obj, err := vm.object(v)
	if err != nil {
		return nil, err
	}
	sb, ok := obj.Native.(*strings.Builder)
	if !ok {
		sb = &strings.Builder{}
		obj.Native = sb
	}
	return sb, nil
}

func builderAppend(param string) NativeFunc {
	return func(vm *VM, args []Value) (Value, error) {
		sb, err := builder(vm, args[0])
		if err != nil {
			return Void, err
		}
		s, err := vm.display(args[1], param)
		if err != nil {
			return Void, err
		}
		sb.WriteString(s)
		return args[0], nil
	}
}

func builderLength(vm *VM, args []Value) (Value, error) {
	sb, err := builder(vm, args[0])
	if err != nil {
		return Void, err
	}
	return Int(int32(len(utf16.Encode([]rune(sb.String()))))), nil
}

func builderToString(vm *VM, args []Value) (Value, error) {
	sb, err := builder(vm, args[0])
	if err != nil {
		return Void, err
	}
	return vm.newString(sb.String())
}

func currentTimeMillis(*VM, []Value) (Value, error) {
	return Long(time.Now().UnixMilli()), nil
}

func nanoTime(vm *VM, _ []Value) (Value, error) {
	return Long(int64(time.Since(vm.started))), nil
}

func arraycopy(vm *VM, args []Value) (Value, error) {
	src, err := vm.object(args[0])
	if err != nil {
		return Void, err
	}
	dst, err := vm.object(args[2])
	if err != nil {
		return Void, err
	}
	if !src.Kind.IsArray() || !dst.Kind.IsArray() || src.Kind != dst.Kind {
		return Void, &ClassCastError{From: src.Class, To: dst.Class}
	}
	srcPos, dstPos, n := args[1].AsInt(), args[3].AsInt(), args[4].AsInt()
	switch {
	case n < 0:
		return Void, &BoundsError{Kind: ArrayIndexOutOfBounds, Index: n, Length: src.Len()}
	case srcPos < 0 || int(srcPos)+int(n) > src.Len():
		return Void, &BoundsError{Kind: ArrayIndexOutOfBounds, Index: srcPos + n, Length: src.Len()}
	case dstPos < 0 || int(dstPos)+int(n) > dst.Len():
		return Void, &BoundsError{Kind: ArrayIndexOutOfBounds, Index: dstPos + n, Length: dst.Len()}
	}
	if src.Kind == KindReferenceArray && src.Class != dst.Class {
		for _, e := range src.Elems[srcPos : srcPos+n] {
			if e.IsNull() {
				continue
			}
			obj, err := vm.object(e)
			if err != nil {
				return Void, err
			}
			ok, err := vm.isAssignable(objectDescriptor(obj), dst.Class[1:])
			if err != nil {
				return Void, err
			}
			if !ok {
				return Void, &ClassCastError{From: obj.Class, To: dst.Class[1:]}
			}
		}
	}
	copy(dst.Elems[dstPos:dstPos+n], src.Elems[srcPos:srcPos+n])
	return Void, nil
}

// stream returns the writer behind a PrintStream receiver.
func (vm *VM) stream(recv Value) (io.Writer, error) {
	obj, err := vm.object(recv)
	if err != nil {
		return nil, err
	}
	if fd, _ := obj.Field("fd:I"); fd.AsInt() == 2 {
		return vm.stderr, nil
	}
	return vm.stdout, nil
}

func printNewline(vm *VM, args []Value) (Value, error) {
	w, err := vm.stream(args[0])
	if err != nil {
		return Void, err
	}
	_, err = io.WriteString(w, "\n")
	return Void, err
}

func printer(param string, newline bool) NativeFunc {
	return func(vm *VM, args []Value) (Value, error) {
		w, err := vm.stream(args[0])
		if err != nil {
			return Void, err
		}
		s, err := vm.display(args[1], param)
		if err != nil {
			return Void, err
		}
		if newline {
			s += "\n"
		}
		_, err = io.WriteString(w, s)
		return Void, err
	}
}

// formatFloat renders x like Java's Float.toString and Double.toString:
// plain notation in [1e-3, 1e7), computerized scientific notation outside,
// and always at least one fractional digit.
func formatFloat(x float64, bitSize int) string {
	switch {
	case math.IsNaN(x):
		return "NaN"
	case math.IsInf(x, 1):
		return "Infinity"
	case math.IsInf(x, -1):
		return "-Infinity"
	case x == 0:
		if math.Signbit(x) {
			return "-0.0"
		}
		return "0.0"
	}
	abs := math.Abs(x)
	if abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(x, 'f', -1, bitSize)
		if !strings.ContainsRune(s, '.') {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(x, 'E', -1, bitSize)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.ContainsRune(mant, '.') {
		mant += ".0"
	}
	e, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(e)
}
