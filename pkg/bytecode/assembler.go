package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Assembler emits a method body. Branch targets are labels; forward
// references are patched when Bytes is called.
//
//	code, err := bytecode.NewAssembler().
//		Iload(0).Jump(Ifeq, "zero").
//		Iconst(1).Op(Ireturn).
//		Label("zero").Iconst(0).Op(Ireturn).
//		Bytes()
type Assembler struct {
	code   []byte
	labels map[string]int
	fixups []fixup
	err    error
}

type fixup struct {
	at    int // where the offset is written
	base  int // pc the offset is relative to
	label string
	wide  bool
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

// PC is the offset of the next emitted byte.
func (a *Assembler) PC() int {
	return len(a.code)
}

func (a *Assembler) fail(format string, args ...any) *Assembler {
	if a.err == nil {
		a.err = fmt.Errorf("assembler: "+format, args...)
	}
	return a
}

// Label defines a label at the current position.
func (a *Assembler) Label(name string) *Assembler {
	if _, dup := a.labels[name]; dup {
		return a.fail("label %q defined twice", name)
	}
	a.labels[name] = len(a.code)
	return a
}

// Op emits an opcode with no operands.
func (a *Assembler) Op(op Opcode) *Assembler {
	if info := table[op]; info.Width != 0 {
		return a.fail("%s takes %d operand bytes", op, info.Width)
	}
	a.code = append(a.code, byte(op))
	return a
}

// Raw appends bytes verbatim.
func (a *Assembler) Raw(b ...byte) *Assembler {
	a.code = append(a.code, b...)
	return a
}

// U1 emits an opcode with a one-byte operand.
func (a *Assembler) U1(op Opcode, v uint8) *Assembler {
	a.code = append(a.code, byte(op), v)
	return a
}

// U2 emits an opcode with a two-byte operand.
func (a *Assembler) U2(op Opcode, v uint16) *Assembler {
	a.code = append(a.code, byte(op))
	a.code = binary.BigEndian.AppendUint16(a.code, v)
	return a
}

// Jump emits a branch to label. goto_w and jsr_w get a 32-bit offset.
func (a *Assembler) Jump(op Opcode, label string) *Assembler {
	if table[op].Family != FamilyBranch || op == Ret {
		return a.fail("%s is not a branch", op)
	}
	pc := len(a.code)
	a.code = append(a.code, byte(op))
	wide := op == GotoW || op == JsrW
	a.fixups = append(a.fixups, fixup{at: len(a.code), base: pc, label: label, wide: wide})
	if wide {
		a.code = append(a.code, 0, 0, 0, 0)
	} else {
		a.code = append(a.code, 0, 0)
	}
	return a
}

// Iconst pushes an int constant with the shortest encoding that fits.
func (a *Assembler) Iconst(v int32) *Assembler {
	switch {
	case v >= -1 && v <= 5:
		return a.Op(Opcode(int32(Iconst0) + v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return a.U1(Bipush, uint8(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return a.U2(Sipush, uint16(int16(v)))
	}
	return a.fail("iconst %d needs a pool constant", v)
}

// Ldc loads pool entry index, using ldc_w when the index needs two bytes.
func (a *Assembler) Ldc(index uint16) *Assembler {
	if index <= math.MaxUint8 {
		return a.U1(Ldc, uint8(index))
	}
	return a.U2(LdcW, index)
}

// Ldc2 loads a long or double pool entry.
func (a *Assembler) Ldc2(index uint16) *Assembler {
	return a.U2(Ldc2W, index)
}

// local emits a load or store with the shortest form for the index.
func (a *Assembler) local(long, short Opcode, index int) *Assembler {
	switch {
	case index < 0 || index > math.MaxUint16:
		return a.fail("local index %d out of range", index)
	case index < 4:
		return a.Op(short + Opcode(index))
	case index <= math.MaxUint8:
		return a.U1(long, uint8(index))
	}
	a.code = append(a.code, byte(Wide))
	return a.U2(long, uint16(index))
}

func (a *Assembler) Iload(n int) *Assembler  { return a.local(Iload, Iload0, n) }
func (a *Assembler) Lload(n int) *Assembler  { return a.local(Lload, Lload0, n) }
func (a *Assembler) Fload(n int) *Assembler  { return a.local(Fload, Fload0, n) }
func (a *Assembler) Dload(n int) *Assembler  { return a.local(Dload, Dload0, n) }
func (a *Assembler) Aload(n int) *Assembler  { return a.local(Aload, Aload0, n) }
func (a *Assembler) Istore(n int) *Assembler { return a.local(Istore, Istore0, n) }
func (a *Assembler) Lstore(n int) *Assembler { return a.local(Lstore, Lstore0, n) }
func (a *Assembler) Fstore(n int) *Assembler { return a.local(Fstore, Fstore0, n) }
func (a *Assembler) Dstore(n int) *Assembler { return a.local(Dstore, Dstore0, n) }
func (a *Assembler) Astore(n int) *Assembler { return a.local(Astore, Astore0, n) }

// Iinc adds delta to an int local, widening when needed.
func (a *Assembler) Iinc(index int, delta int) *Assembler {
	if index <= math.MaxUint8 && delta >= math.MinInt8 && delta <= math.MaxInt8 {
		a.code = append(a.code, byte(Iinc), uint8(index), uint8(int8(delta)))
		return a
	}
	if index > math.MaxUint16 || delta < math.MinInt16 || delta > math.MaxInt16 {
		return a.fail("iinc %d %d out of range", index, delta)
	}
	a.code = append(a.code, byte(Wide), byte(Iinc))
	a.code = binary.BigEndian.AppendUint16(a.code, uint16(index))
	a.code = binary.BigEndian.AppendUint16(a.code, uint16(int16(delta)))
	return a
}

// Invoke emits an invocation. invokeinterface derives its count byte from
// argSlots, which must include the receiver.
func (a *Assembler) Invoke(op Opcode, index uint16, argSlots ...int) *Assembler {
	switch op {
	case Invokevirtual, Invokespecial, Invokestatic:
		return a.U2(op, index)
	case Invokeinterface:
		count := 1
		if len(argSlots) > 0 {
			count = argSlots[0]
		}
		a.U2(op, index)
		a.code = append(a.code, uint8(count), 0)
		return a
	case Invokedynamic:
		a.U2(op, index)
		a.code = append(a.code, 0, 0)
		return a
	}
	return a.fail("%s is not an invocation", op)
}

// Newarray allocates a primitive array; atype is 4 (boolean) to 11 (long).
func (a *Assembler) Newarray(atype uint8) *Assembler { return a.U1(Newarray, atype) }

// Multianewarray allocates a multi-dimensional array.
func (a *Assembler) Multianewarray(index uint16, dims uint8) *Assembler {
	a.U2(Multianewarray, index)
	a.code = append(a.code, dims)
	return a
}

func (a *Assembler) pad() {
	for len(a.code)%4 != 0 {
		a.code = append(a.code, 0)
	}
}

func (a *Assembler) switchTarget(base int, label string) {
	a.fixups = append(a.fixups, fixup{at: len(a.code), base: base, label: label, wide: true})
	a.code = append(a.code, 0, 0, 0, 0)
}

// TableSwitch emits a tableswitch whose keys run from low upwards, one per target.
func (a *Assembler) TableSwitch(low int32, def string, targets ...string) *Assembler {
	if len(targets) == 0 {
		return a.fail("tableswitch needs at least one target")
	}
	pc := len(a.code)
	a.code = append(a.code, byte(Tableswitch))
	a.pad()
	a.switchTarget(pc, def)
	high := int64(low) + int64(len(targets)) - 1
	if high > math.MaxInt32 {
		return a.fail("tableswitch range overflows")
	}
	a.code = binary.BigEndian.AppendUint32(a.code, uint32(low))
	a.code = binary.BigEndian.AppendUint32(a.code, uint32(int32(high)))
	for _, t := range targets {
		a.switchTarget(pc, t)
	}
	return a
}

// LookupSwitch emits a lookupswitch. keys must be ascending.
func (a *Assembler) LookupSwitch(def string, keys []int32, targets []string) *Assembler {
	if len(keys) != len(targets) {
		return a.fail("lookupswitch has %d keys and %d targets", len(keys), len(targets))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			return a.fail("lookupswitch keys must be ascending")
		}
	}
	pc := len(a.code)
	a.code = append(a.code, byte(Lookupswitch))
	a.pad()
	a.switchTarget(pc, def)
	a.code = binary.BigEndian.AppendUint32(a.code, uint32(len(keys)))
	for i, k := range keys {
		a.code = binary.BigEndian.AppendUint32(a.code, uint32(k))
		a.switchTarget(pc, targets[i])
	}
	return a
}

// Bytes resolves labels and returns the code.
func (a *Assembler) Bytes() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("assembler: undefined label %q", f.label)
		}
		off := target - f.base
		if f.wide {
			binary.BigEndian.PutUint32(a.code[f.at:], uint32(int32(off)))
			continue
		}
		if off < math.MinInt16 || off > math.MaxInt16 {
			return nil, fmt.Errorf("assembler: branch to %q out of 16-bit range", f.label)
		}
		binary.BigEndian.PutUint16(a.code[f.at:], uint16(int16(off)))
	}
	out := make([]byte, len(a.code))
	copy(out, a.code)
	return out, nil
}

// MustBytes is Bytes for fixtures; it panics on error.
func (a *Assembler) MustBytes() []byte {
	code, err := a.Bytes()
	if err != nil {
		panic(err)
	}
	return code
}

var (
	byNameOnce sync.Once
	byName     map[string]Opcode
)

// opcodeByName looks up a mnemonic. The index is built on first use, after
// the opcode table has been filled.
func opcodeByName(name string) (Opcode, bool) {
	byNameOnce.Do(func() {
		byName = make(map[string]Opcode, len(table))
		for op, info := range table {
			if info.Family != FamilyReserved {
				byName[info.Name] = Opcode(op)
			}
		}
	})
	op, ok := byName[name]
	return op, ok
}

// ParseAssembly assembles a textual method body. Each line holds one
// instruction or a "label:" definition; ';' starts a comment. Branches and
// switch targets name labels, other operands are integers and pool indexes
// may be written as #n.
//
//	iload_0
//	ifeq zero
//	iconst_1
//	ireturn
//	zero:
//	iconst_0
//	ireturn
func ParseAssembly(source string) ([]byte, error) {
	a := NewAssembler()
	for n, line := range strings.Split(source, "\n") {
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			a.Label(strings.TrimSuffix(line, ":"))
			continue
		}
		if err := a.parseLine(strings.Fields(line)); err != nil {
			return nil, fmt.Errorf("assembler: line %d: %w", n+1, err)
		}
		if a.err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, a.err)
		}
	}
	return a.Bytes()
}

func (a *Assembler) parseLine(parts []string) error {
	op, ok := opcodeByName(strings.ToLower(parts[0]))
	if !ok {
		return fmt.Errorf("unknown instruction %q", parts[0])
	}
	args := parts[1:]
	ints := func(n int) ([]int64, error) {
		if len(args) != n {
			return nil, fmt.Errorf("%s takes %d operands, got %d", op, n, len(args))
		}
		out := make([]int64, n)
		for i, s := range args {
			v, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad operand %q", op, s)
			}
			out[i] = v
		}
		return out, nil
	}
	info := table[op]

	switch {
	case op == Tableswitch:
		// tableswitch <low> <default> <target>...
		if len(args) < 3 {
			return fmt.Errorf("tableswitch needs low, default and targets")
		}
		low, err := strconv.ParseInt(args[0], 0, 32)
		if err != nil {
			return fmt.Errorf("tableswitch: bad low %q", args[0])
		}
		a.TableSwitch(int32(low), args[1], args[2:]...)
	case op == Lookupswitch:
		// lookupswitch <default> <key>:<target>...
		if len(args) < 1 {
			return fmt.Errorf("lookupswitch needs a default")
		}
		var keys []int32
		var targets []string
		for _, p := range args[1:] {
			k, t, ok := strings.Cut(p, ":")
			v, err := strconv.ParseInt(k, 0, 32)
			if !ok || err != nil {
				return fmt.Errorf("lookupswitch: bad pair %q", p)
			}
			keys = append(keys, int32(v))
			targets = append(targets, t)
		}
		a.LookupSwitch(args[0], keys, targets)
	case info.Family == FamilyBranch && op != Ret:
		if len(args) != 1 {
			return fmt.Errorf("%s takes a label", op)
		}
		a.Jump(op, args[0])
	case op == Iinc:
		v, err := ints(2)
		if err != nil {
			return err
		}
		a.Iinc(int(v[0]), int(v[1]))
	case op == Invokeinterface || op == Multianewarray:
		v, err := ints(2)
		if err != nil {
			return err
		}
		a.U2(op, uint16(v[0]))
		a.code = append(a.code, uint8(v[1]))
		if op == Invokeinterface {
			a.code = append(a.code, 0)
		}
	case op == Invokedynamic:
		v, err := ints(1)
		if err != nil {
			return err
		}
		a.Invoke(op, uint16(v[0]))
	case info.Width == 0:
		if len(args) != 0 {
			return fmt.Errorf("%s takes no operands", op)
		}
		a.Op(op)
	case info.Family == FamilyLoad || info.Family == FamilyStore || op == Ret:
		v, err := ints(1)
		if err != nil {
			return err
		}
		if v[0] > math.MaxUint8 {
			a.code = append(a.code, byte(Wide))
			a.U2(op, uint16(v[0]))
		} else {
			a.U1(op, uint8(v[0]))
		}
	case info.Width == 1:
		v, err := ints(1)
		if err != nil {
			return err
		}
		a.U1(op, uint8(v[0]))
	case info.Width == 2:
		v, err := ints(1)
		if err != nil {
			return err
		}
		a.U2(op, uint16(v[0]))
	default:
		return fmt.Errorf("cannot assemble %s", op)
	}
	return nil
}
