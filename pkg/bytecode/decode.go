package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTruncated means an instruction's operands run past the end of the code.
	ErrTruncated = errors.New("truncated instruction")
	// ErrReservedOpcode means the byte is not an executable opcode.
	ErrReservedOpcode = errors.New("reserved opcode")
	// ErrInvalidWide means wide prefixes an opcode it cannot widen.
	ErrInvalidWide = errors.New("invalid wide instruction")
	// ErrInvalidSwitch means a switch table is malformed.
	ErrInvalidSwitch = errors.New("invalid switch table")
)

// SwitchTable holds the decoded jump table of tableswitch and lookupswitch.
// Offsets are relative to the switch opcode.
type SwitchTable struct {
	Default int32
	Low     int32   // tableswitch only
	High    int32   // tableswitch only
	Keys    []int32 // lookupswitch only, sorted ascending
	Offsets []int32
}

// Target returns the branch offset chosen for key.
func (s *SwitchTable) Target(key int32) int32 {
	if s.Keys == nil {
		if key < s.Low || key > s.High {
			return s.Default
		}
		return s.Offsets[int64(key)-int64(s.Low)]
	}
	lo, hi := 0, len(s.Keys)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch {
		case s.Keys[mid] == key:
			return s.Offsets[mid]
		case s.Keys[mid] < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return s.Default
}

// Instruction is one decoded instruction.
type Instruction struct {
	PC     int
	Op     Opcode
	Length int  // total encoded bytes, including any wide prefix
	Wide   bool // operands were widened by a wide prefix

	// Index is the local variable index, pool index or newarray atype.
	Index int
	// Const is the immediate value: bipush/sipush value, iinc delta,
	// the implicit value of a short constant form, or a branch offset.
	Const int32
	// Count is the invokeinterface argument count or multianewarray dimensions.
	Count int

	Switch *SwitchTable
}

// Info returns the opcode metadata.
func (in Instruction) Info() Info {
	return table[in.Op]
}

// Target is the absolute branch target of a branch instruction.
func (in Instruction) Target() int {
	return in.PC + int(in.Const)
}

func (in Instruction) String() string {
	info := table[in.Op]
	var sb strings.Builder
	fmt.Fprintf(&sb, "%4d: ", in.PC)
	if in.Wide {
		sb.WriteString("wide ")
	}
	sb.WriteString(info.Name)

	switch {
	case info.Short:
	case in.Op == Bipush || in.Op == Sipush:
		fmt.Fprintf(&sb, " %d", in.Const)
	case in.Op == Iinc:
		fmt.Fprintf(&sb, " %d %d", in.Index, in.Const)
	case info.Family == FamilyBranch && in.Op != Ret:
		fmt.Fprintf(&sb, " %d", in.Target())
	case in.Op == Tableswitch:
		fmt.Fprintf(&sb, " [%d..%d] default %d", in.Switch.Low, in.Switch.High, in.PC+int(in.Switch.Default))
	case in.Op == Lookupswitch:
		fmt.Fprintf(&sb, " %d keys default %d", len(in.Switch.Keys), in.PC+int(in.Switch.Default))
	case in.Op == Invokeinterface || in.Op == Multianewarray:
		fmt.Fprintf(&sb, " #%d %d", in.Index, in.Count)
	case info.Family == FamilyConstant || info.Family == FamilyField ||
		info.Family == FamilyInvoke || in.Op == New || in.Op == Anewarray ||
		in.Op == Checkcast || in.Op == Instanceof:
		fmt.Fprintf(&sb, " #%d", in.Index)
	case info.Width > 0:
		fmt.Fprintf(&sb, " %d", in.Index)
	}
	return sb.String()
}

type codeReader struct {
	code []byte
	pc   int // opcode position, for errors
	off  int
}

func (r *codeReader) need(n int) error {
	if r.off+n > len(r.code) {
		return fmt.Errorf("bytecode: %s at pc %d: %w", Opcode(r.code[r.pc]), r.pc, ErrTruncated)
	}
	return nil
}

func (r *codeReader) u1() uint8 {
	v := r.code[r.off]
	r.off++
	return v
}

func (r *codeReader) u2() uint16 {
	v := binary.BigEndian.Uint16(r.code[r.off:])
	r.off += 2
	return v
}

func (r *codeReader) s4() int32 {
	v := int32(binary.BigEndian.Uint32(r.code[r.off:]))
	r.off += 4
	return v
}

// Decode decodes the instruction starting at pc.
func Decode(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, fmt.Errorf("bytecode: pc %d outside code of length %d: %w", pc, len(code), ErrTruncated)
	}
	op := Opcode(code[pc])
	info := table[op]
	in := Instruction{PC: pc, Op: op}
	r := &codeReader{code: code, pc: pc, off: pc + 1}

	if info.Family == FamilyReserved {
		return in, fmt.Errorf("bytecode: byte 0x%02x at pc %d: %w", byte(op), pc, ErrReservedOpcode)
	}

	switch {
	case op == Wide:
		return decodeWide(r)
	case op == Tableswitch || op == Lookupswitch:
		sw, err := decodeSwitch(r, op)
		if err != nil {
			return in, err
		}
		in.Switch = sw
		in.Length = r.off - pc
		return in, nil
	}

	if err := r.need(info.Width); err != nil {
		return in, err
	}
	if info.Short {
		in.Index = info.Implicit
		in.Const = int32(info.Implicit)
	}

	switch {
	case op == Bipush:
		in.Const = int32(int8(r.u1()))
	case op == Sipush:
		in.Const = int32(int16(r.u2()))
	case op == Iinc:
		in.Index = int(r.u1())
		in.Const = int32(int8(r.u1()))
	case op == GotoW || op == JsrW:
		in.Const = r.s4()
	case info.Family == FamilyBranch && op != Ret:
		in.Const = int32(int16(r.u2()))
	case op == Invokeinterface:
		in.Index = int(r.u2())
		in.Count = int(r.u1())
		r.u1()
	case op == Invokedynamic:
		in.Index = int(r.u2())
		r.u2()
	case op == Multianewarray:
		in.Index = int(r.u2())
		in.Count = int(r.u1())
	case info.Width == 1:
		in.Index = int(r.u1())
	case info.Width == 2:
		in.Index = int(r.u2())
	}
	in.Length = 1 + info.Width
	return in, nil
}

func decodeWide(r *codeReader) (Instruction, error) {
	in := Instruction{PC: r.pc, Wide: true}
	if err := r.need(3); err != nil {
		return in, err
	}
	in.Op = Opcode(r.u1())
	fam := table[in.Op].Family
	switch {
	case in.Op == Iinc:
		if err := r.need(4); err != nil {
			return in, err
		}
		in.Index = int(r.u2())
		in.Const = int32(int16(r.u2()))
	case in.Op == Ret, fam == FamilyLoad && !table[in.Op].Short, fam == FamilyStore && !table[in.Op].Short:
		in.Index = int(r.u2())
	default:
		return in, fmt.Errorf("bytecode: wide %s at pc %d: %w", in.Op, r.pc, ErrInvalidWide)
	}
	in.Length = r.off - r.pc
	return in, nil
}

func decodeSwitch(r *codeReader, op Opcode) (*SwitchTable, error) {
	// Operands start at the next multiple of four from the start of the code.
	pad := (4 - r.off%4) % 4
	if err := r.need(pad + 12); err != nil {
		return nil, err
	}
	r.off += pad
	sw := &SwitchTable{Default: r.s4()}

	if op == Tableswitch {
		sw.Low = r.s4()
		sw.High = r.s4()
		if sw.Low > sw.High {
			return nil, fmt.Errorf("bytecode: tableswitch at pc %d low %d > high %d: %w", r.pc, sw.Low, sw.High, ErrInvalidSwitch)
		}
		n := int64(sw.High) - int64(sw.Low) + 1
		if n > int64(len(r.code)) {
			return nil, fmt.Errorf("bytecode: tableswitch at pc %d: %w", r.pc, ErrTruncated)
		}
		if err := r.need(int(n) * 4); err != nil {
			return nil, err
		}
		sw.Offsets = make([]int32, n)
		for i := range sw.Offsets {
			sw.Offsets[i] = r.s4()
		}
		return sw, nil
	}

	npairs := r.s4()
	if npairs < 0 {
		return nil, fmt.Errorf("bytecode: lookupswitch at pc %d has %d pairs: %w", r.pc, npairs, ErrInvalidSwitch)
	}
	if int64(npairs) > int64(len(r.code)) {
		return nil, fmt.Errorf("bytecode: lookupswitch at pc %d: %w", r.pc, ErrTruncated)
	}
	if err := r.need(int(npairs) * 8); err != nil {
		return nil, err
	}
	sw.Keys = make([]int32, npairs)
	sw.Offsets = make([]int32, npairs)
	for i := range sw.Keys {
		sw.Keys[i] = r.s4()
		sw.Offsets[i] = r.s4()
		if i > 0 && sw.Keys[i] <= sw.Keys[i-1] {
			return nil, fmt.Errorf("bytecode: lookupswitch at pc %d keys not sorted: %w", r.pc, ErrInvalidSwitch)
		}
	}
	return sw, nil
}

// Disassemble decodes every instruction in code.
func Disassemble(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		in, err := Decode(code, pc)
		if err != nil {
			return out, err
		}
		out = append(out, in)
		pc += in.Length
	}
	return out, nil
}
