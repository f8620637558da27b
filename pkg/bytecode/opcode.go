// Package bytecode describes the instruction set: one metadata entry per
// opcode byte, an instruction decoder and a small assembler.
package bytecode

import "fmt"

// Opcode is a bytecode instruction opcode.
type Opcode byte

const (
	// Constants
	Nop        Opcode = 0x00
	AconstNull Opcode = 0x01
	IconstM1   Opcode = 0x02
	Iconst0    Opcode = 0x03
	Iconst1    Opcode = 0x04
	Iconst2    Opcode = 0x05
	Iconst3    Opcode = 0x06
	Iconst4    Opcode = 0x07
	Iconst5    Opcode = 0x08
	Lconst0    Opcode = 0x09
	Lconst1    Opcode = 0x0A
	Fconst0    Opcode = 0x0B
	Fconst1    Opcode = 0x0C
	Fconst2    Opcode = 0x0D
	Dconst0    Opcode = 0x0E
	Dconst1    Opcode = 0x0F
	Bipush     Opcode = 0x10 // bipush <s1>
	Sipush     Opcode = 0x11 // sipush <s2>
	Ldc        Opcode = 0x12 // ldc <u1 pool index>
	LdcW       Opcode = 0x13 // ldc_w <u2 pool index>
	Ldc2W      Opcode = 0x14 // ldc2_w <u2 pool index>, long or double

	// Loads
	Iload  Opcode = 0x15
	Lload  Opcode = 0x16
	Fload  Opcode = 0x17
	Dload  Opcode = 0x18
	Aload  Opcode = 0x19
	Iload0 Opcode = 0x1A
	Lload0 Opcode = 0x1E
	Fload0 Opcode = 0x22
	Dload0 Opcode = 0x26
	Aload0 Opcode = 0x2A

	// Array loads: pop index, pop arrayref, push element
	Iaload Opcode = 0x2E
	Laload Opcode = 0x2F
	Faload Opcode = 0x30
	Daload Opcode = 0x31
	Aaload Opcode = 0x32
	Baload Opcode = 0x33
	Caload Opcode = 0x34
	Saload Opcode = 0x35

	// Stores
	Istore  Opcode = 0x36
	Lstore  Opcode = 0x37
	Fstore  Opcode = 0x38
	Dstore  Opcode = 0x39
	Astore  Opcode = 0x3A
	Istore0 Opcode = 0x3B
	Lstore0 Opcode = 0x3F
	Fstore0 Opcode = 0x43
	Dstore0 Opcode = 0x47
	Astore0 Opcode = 0x4B

	// Array stores: pop value, pop index, pop arrayref
	Iastore Opcode = 0x4F
	Lastore Opcode = 0x50
	Fastore Opcode = 0x51
	Dastore Opcode = 0x52
	Aastore Opcode = 0x53
	Bastore Opcode = 0x54
	Castore Opcode = 0x55
	Sastore Opcode = 0x56

	// Stack manipulation
	Pop    Opcode = 0x57
	Pop2   Opcode = 0x58
	Dup    Opcode = 0x59
	DupX1  Opcode = 0x5A
	DupX2  Opcode = 0x5B
	Dup2   Opcode = 0x5C
	Dup2X1 Opcode = 0x5D
	Dup2X2 Opcode = 0x5E
	Swap   Opcode = 0x5F

	// Arithmetic
	Iadd  Opcode = 0x60
	Ladd  Opcode = 0x61
	Fadd  Opcode = 0x62
	Dadd  Opcode = 0x63
	Isub  Opcode = 0x64
	Lsub  Opcode = 0x65
	Fsub  Opcode = 0x66
	Dsub  Opcode = 0x67
	Imul  Opcode = 0x68
	Lmul  Opcode = 0x69
	Fmul  Opcode = 0x6A
	Dmul  Opcode = 0x6B
	Idiv  Opcode = 0x6C
	Ldiv  Opcode = 0x6D
	Fdiv  Opcode = 0x6E
	Ddiv  Opcode = 0x6F
	Irem  Opcode = 0x70
	Lrem  Opcode = 0x71
	Frem  Opcode = 0x72
	Drem  Opcode = 0x73
	Ineg  Opcode = 0x74
	Lneg  Opcode = 0x75
	Fneg  Opcode = 0x76
	Dneg  Opcode = 0x77
	Ishl  Opcode = 0x78
	Lshl  Opcode = 0x79
	Ishr  Opcode = 0x7A
	Lshr  Opcode = 0x7B
	Iushr Opcode = 0x7C
	Lushr Opcode = 0x7D
	Iand  Opcode = 0x7E
	Land  Opcode = 0x7F
	Ior   Opcode = 0x80
	Lor   Opcode = 0x81
	Ixor  Opcode = 0x82
	Lxor  Opcode = 0x83
	Iinc  Opcode = 0x84 // iinc <u1 index> <s1 delta>

	// Conversions
	I2l Opcode = 0x85
	I2f Opcode = 0x86
	I2d Opcode = 0x87
	L2i Opcode = 0x88
	L2f Opcode = 0x89
	L2d Opcode = 0x8A
	F2i Opcode = 0x8B
	F2l Opcode = 0x8C
	F2d Opcode = 0x8D
	D2i Opcode = 0x8E
	D2l Opcode = 0x8F
	D2f Opcode = 0x90
	I2b Opcode = 0x91
	I2c Opcode = 0x92
	I2s Opcode = 0x93

	// Comparisons
	Lcmp  Opcode = 0x94
	Fcmpl Opcode = 0x95
	Fcmpg Opcode = 0x96
	Dcmpl Opcode = 0x97
	Dcmpg Opcode = 0x98

	// Branches: offsets are relative to the branch opcode
	Ifeq     Opcode = 0x99
	Ifne     Opcode = 0x9A
	Iflt     Opcode = 0x9B
	Ifge     Opcode = 0x9C
	Ifgt     Opcode = 0x9D
	Ifle     Opcode = 0x9E
	IfIcmpeq Opcode = 0x9F
	IfIcmpne Opcode = 0xA0
	IfIcmplt Opcode = 0xA1
	IfIcmpge Opcode = 0xA2
	IfIcmpgt Opcode = 0xA3
	IfIcmple Opcode = 0xA4
	IfAcmpeq Opcode = 0xA5
	IfAcmpne Opcode = 0xA6
	Goto     Opcode = 0xA7
	Jsr      Opcode = 0xA8
	Ret      Opcode = 0xA9

	// Switches
	Tableswitch  Opcode = 0xAA
	Lookupswitch Opcode = 0xAB

	// Returns
	Ireturn Opcode = 0xAC
	Lreturn Opcode = 0xAD
	Freturn Opcode = 0xAE
	Dreturn Opcode = 0xAF
	Areturn Opcode = 0xB0
	Return  Opcode = 0xB1

	// Fields
	Getstatic Opcode = 0xB2
	Putstatic Opcode = 0xB3
	Getfield  Opcode = 0xB4
	Putfield  Opcode = 0xB5

	// Invocation
	Invokevirtual   Opcode = 0xB6
	Invokespecial   Opcode = 0xB7
	Invokestatic    Opcode = 0xB8
	Invokeinterface Opcode = 0xB9 // <u2 index> <u1 count> 0
	Invokedynamic   Opcode = 0xBA // <u2 index> 0 0

	// Objects and arrays
	New            Opcode = 0xBB
	Newarray       Opcode = 0xBC // newarray <u1 atype>
	Anewarray      Opcode = 0xBD
	Arraylength    Opcode = 0xBE
	Athrow         Opcode = 0xBF
	Checkcast      Opcode = 0xC0
	Instanceof     Opcode = 0xC1
	Monitorenter   Opcode = 0xC2
	Monitorexit    Opcode = 0xC3
	Wide           Opcode = 0xC4
	Multianewarray Opcode = 0xC5 // <u2 index> <u1 dimensions>
	Ifnull         Opcode = 0xC6
	Ifnonnull      Opcode = 0xC7
	GotoW          Opcode = 0xC8
	JsrW           Opcode = 0xC9

	// Reserved
	Breakpoint Opcode = 0xCA
	Impdep1    Opcode = 0xFE
	Impdep2    Opcode = 0xFF
)

// Family groups opcodes that share a handler shape.
type Family uint8

const (
	FamilyReserved Family = iota
	FamilyNop
	FamilyConstant
	FamilyLoad
	FamilyStore
	FamilyArrayLoad
	FamilyArrayStore
	FamilyStack
	FamilyMath
	FamilyConvert
	FamilyCompare
	FamilyBranch
	FamilySwitch
	FamilyReturn
	FamilyField
	FamilyInvoke
	FamilyObject
	FamilyMonitor
	FamilyWide
)

var familyNames = [...]string{
	"reserved", "nop", "constant", "load", "store", "array-load", "array-store",
	"stack", "math", "convert", "compare", "branch", "switch", "return",
	"field", "invoke", "object", "monitor", "wide",
}

func (f Family) String() string {
	if int(f) < len(familyNames) {
		return familyNames[f]
	}
	return fmt.Sprintf("family(%d)", uint8(f))
}

// Type is the value type an instruction operates on.
type Type uint8

const (
	TypeNone Type = iota
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeRef
	TypeByte  // array element only
	TypeChar  // array element only
	TypeShort // array element only
)

// Category is the number of slots a value of the type occupies.
func (t Type) Category() int {
	if t == TypeLong || t == TypeDouble {
		return 2
	}
	return 1
}

// Info is the static metadata for one opcode.
type Info struct {
	Name     string
	Width    int // operand bytes after the opcode; -1 for the switches
	Family   Family
	Type     Type
	Implicit int  // built-in operand of the short forms (iload_2, iconst_m1, ...)
	Short    bool // Implicit is meaningful
}

var table [256]Info

func def(op Opcode, name string, width int, fam Family, typ Type) {
	table[op] = Info{Name: name, Width: width, Family: fam, Type: typ}
}

func defShort(op Opcode, name string, fam Family, typ Type, implicit int) {
	table[op] = Info{Name: name, Family: fam, Type: typ, Implicit: implicit, Short: true}
}

func init() {
	for i := range table {
		table[i] = Info{Name: fmt.Sprintf("unknown_0x%02x", i), Family: FamilyReserved}
	}

	def(Nop, "nop", 0, FamilyNop, TypeNone)
	def(AconstNull, "aconst_null", 0, FamilyConstant, TypeRef)
	for i := -1; i <= 5; i++ {
		name := fmt.Sprintf("iconst_%d", i)
		if i < 0 {
			name = "iconst_m1"
		}
		defShort(Opcode(int(Iconst0)+i), name, FamilyConstant, TypeInt, i)
	}
	for i := 0; i <= 1; i++ {
		defShort(Lconst0+Opcode(i), fmt.Sprintf("lconst_%d", i), FamilyConstant, TypeLong, i)
		defShort(Dconst0+Opcode(i), fmt.Sprintf("dconst_%d", i), FamilyConstant, TypeDouble, i)
	}
	for i := 0; i <= 2; i++ {
		defShort(Fconst0+Opcode(i), fmt.Sprintf("fconst_%d", i), FamilyConstant, TypeFloat, i)
	}
	def(Bipush, "bipush", 1, FamilyConstant, TypeInt)
	def(Sipush, "sipush", 2, FamilyConstant, TypeInt)
	def(Ldc, "ldc", 1, FamilyConstant, TypeNone)
	def(LdcW, "ldc_w", 2, FamilyConstant, TypeNone)
	def(Ldc2W, "ldc2_w", 2, FamilyConstant, TypeNone)

	typed := []struct {
		prefix string
		typ    Type
	}{{"i", TypeInt}, {"l", TypeLong}, {"f", TypeFloat}, {"d", TypeDouble}, {"a", TypeRef}}
	for k, t := range typed {
		def(Iload+Opcode(k), t.prefix+"load", 1, FamilyLoad, t.typ)
		def(Istore+Opcode(k), t.prefix+"store", 1, FamilyStore, t.typ)
		for n := 0; n < 4; n++ {
			defShort(Iload0+Opcode(4*k+n), fmt.Sprintf("%sload_%d", t.prefix, n), FamilyLoad, t.typ, n)
			defShort(Istore0+Opcode(4*k+n), fmt.Sprintf("%sstore_%d", t.prefix, n), FamilyStore, t.typ, n)
		}
		def(Ireturn+Opcode(k), t.prefix+"return", 0, FamilyReturn, t.typ)
	}
	def(Return, "return", 0, FamilyReturn, TypeNone)

	elems := []struct {
		prefix string
		typ    Type
	}{
		{"i", TypeInt}, {"l", TypeLong}, {"f", TypeFloat}, {"d", TypeDouble},
		{"a", TypeRef}, {"b", TypeByte}, {"c", TypeChar}, {"s", TypeShort},
	}
	for k, e := range elems {
		def(Iaload+Opcode(k), e.prefix+"aload", 0, FamilyArrayLoad, e.typ)
		def(Iastore+Opcode(k), e.prefix+"astore", 0, FamilyArrayStore, e.typ)
	}

	def(Pop, "pop", 0, FamilyStack, TypeNone)
	def(Pop2, "pop2", 0, FamilyStack, TypeNone)
	def(Dup, "dup", 0, FamilyStack, TypeNone)
	def(DupX1, "dup_x1", 0, FamilyStack, TypeNone)
	def(DupX2, "dup_x2", 0, FamilyStack, TypeNone)
	def(Dup2, "dup2", 0, FamilyStack, TypeNone)
	def(Dup2X1, "dup2_x1", 0, FamilyStack, TypeNone)
	def(Dup2X2, "dup2_x2", 0, FamilyStack, TypeNone)
	def(Swap, "swap", 0, FamilyStack, TypeNone)

	math4 := []struct {
		base Opcode
		name string
	}{{Iadd, "add"}, {Isub, "sub"}, {Imul, "mul"}, {Idiv, "div"}, {Irem, "rem"}, {Ineg, "neg"}}
	numeric := typed[:4]
	for _, m := range math4 {
		for k, t := range numeric {
			def(m.base+Opcode(k), t.prefix+m.name, 0, FamilyMath, t.typ)
		}
	}
	intLong := typed[:2]
	bitwise := []struct {
		base Opcode
		name string
	}{{Ishl, "shl"}, {Ishr, "shr"}, {Iushr, "ushr"}, {Iand, "and"}, {Ior, "or"}, {Ixor, "xor"}}
	for _, m := range bitwise {
		for k, t := range intLong {
			def(m.base+Opcode(k), t.prefix+m.name, 0, FamilyMath, t.typ)
		}
	}
	def(Iinc, "iinc", 2, FamilyMath, TypeInt)

	// Conversions are keyed by their source type.
	conv := []struct {
		op   Opcode
		name string
		typ  Type
	}{
		{I2l, "i2l", TypeInt}, {I2f, "i2f", TypeInt}, {I2d, "i2d", TypeInt},
		{L2i, "l2i", TypeLong}, {L2f, "l2f", TypeLong}, {L2d, "l2d", TypeLong},
		{F2i, "f2i", TypeFloat}, {F2l, "f2l", TypeFloat}, {F2d, "f2d", TypeFloat},
		{D2i, "d2i", TypeDouble}, {D2l, "d2l", TypeDouble}, {D2f, "d2f", TypeDouble},
		{I2b, "i2b", TypeInt}, {I2c, "i2c", TypeInt}, {I2s, "i2s", TypeInt},
	}
	for _, c := range conv {
		def(c.op, c.name, 0, FamilyConvert, c.typ)
	}

	def(Lcmp, "lcmp", 0, FamilyCompare, TypeLong)
	def(Fcmpl, "fcmpl", 0, FamilyCompare, TypeFloat)
	def(Fcmpg, "fcmpg", 0, FamilyCompare, TypeFloat)
	def(Dcmpl, "dcmpl", 0, FamilyCompare, TypeDouble)
	def(Dcmpg, "dcmpg", 0, FamilyCompare, TypeDouble)

	conds := []string{"eq", "ne", "lt", "ge", "gt", "le"}
	for k, c := range conds {
		def(Ifeq+Opcode(k), "if"+c, 2, FamilyBranch, TypeInt)
		def(IfIcmpeq+Opcode(k), "if_icmp"+c, 2, FamilyBranch, TypeInt)
	}
	def(IfAcmpeq, "if_acmpeq", 2, FamilyBranch, TypeRef)
	def(IfAcmpne, "if_acmpne", 2, FamilyBranch, TypeRef)
	def(Ifnull, "ifnull", 2, FamilyBranch, TypeRef)
	def(Ifnonnull, "ifnonnull", 2, FamilyBranch, TypeRef)
	def(Goto, "goto", 2, FamilyBranch, TypeNone)
	def(GotoW, "goto_w", 4, FamilyBranch, TypeNone)
	def(Jsr, "jsr", 2, FamilyBranch, TypeNone)
	def(JsrW, "jsr_w", 4, FamilyBranch, TypeNone)
	def(Ret, "ret", 1, FamilyBranch, TypeNone)

	def(Tableswitch, "tableswitch", -1, FamilySwitch, TypeInt)
	def(Lookupswitch, "lookupswitch", -1, FamilySwitch, TypeInt)

	def(Getstatic, "getstatic", 2, FamilyField, TypeNone)
	def(Putstatic, "putstatic", 2, FamilyField, TypeNone)
	def(Getfield, "getfield", 2, FamilyField, TypeNone)
	def(Putfield, "putfield", 2, FamilyField, TypeNone)

	def(Invokevirtual, "invokevirtual", 2, FamilyInvoke, TypeNone)
	def(Invokespecial, "invokespecial", 2, FamilyInvoke, TypeNone)
	def(Invokestatic, "invokestatic", 2, FamilyInvoke, TypeNone)
	def(Invokeinterface, "invokeinterface", 4, FamilyInvoke, TypeNone)
	def(Invokedynamic, "invokedynamic", 4, FamilyInvoke, TypeNone)

	def(New, "new", 2, FamilyObject, TypeRef)
	def(Newarray, "newarray", 1, FamilyObject, TypeRef)
	def(Anewarray, "anewarray", 2, FamilyObject, TypeRef)
	def(Multianewarray, "multianewarray", 3, FamilyObject, TypeRef)
	def(Arraylength, "arraylength", 0, FamilyObject, TypeRef)
	def(Athrow, "athrow", 0, FamilyObject, TypeRef)
	def(Checkcast, "checkcast", 2, FamilyObject, TypeRef)
	def(Instanceof, "instanceof", 2, FamilyObject, TypeRef)

	def(Monitorenter, "monitorenter", 0, FamilyMonitor, TypeRef)
	def(Monitorexit, "monitorexit", 0, FamilyMonitor, TypeRef)
	def(Wide, "wide", -1, FamilyWide, TypeNone)

	table[Breakpoint].Name = "breakpoint"
	table[Impdep1].Name = "impdep1"
	table[Impdep2].Name = "impdep2"
}

// Lookup returns the metadata for op.
func Lookup(op Opcode) Info {
	return table[op]
}

// GetInfo returns the metadata for the opcode.
func (op Opcode) GetInfo() Info {
	return table[op]
}

func (op Opcode) String() string {
	return table[op].Name
}

// Category is the slot width of the value the opcode moves, 1 or 2.
func (op Opcode) Category() int {
	return table[op].Type.Category()
}

// Valid reports whether op is a defined, executable opcode.
func (op Opcode) Valid() bool {
	return table[op].Family != FamilyReserved
}
