package jvm

import (
	"github.com/fluxorio/jvm/pkg/bytecode"
)

// handler executes one decoded instruction against the current frame. A
// handler validates every operand before it mutates the stack, the locals or
// the heap, so a failed instruction leaves the frame as it found it.
type handler func(vm *VM, f *Frame, in *bytecode.Instruction) error

// dispatch maps every executable opcode to its handler. Operand widths and
// value categories come from the bytecode table, so a handler never decodes.
var dispatch [256]handler

func init() {
	for op := 0; op < 256; op++ {
		info := bytecode.Lookup(bytecode.Opcode(op))
		switch info.Family {
		case bytecode.FamilyNop:
			dispatch[op] = opNop
		case bytecode.FamilyLoad:
			dispatch[op] = opLoad
		case bytecode.FamilyStore:
			dispatch[op] = opStore
		case bytecode.FamilyArrayLoad:
			dispatch[op] = opArrayLoad
		case bytecode.FamilyArrayStore:
			dispatch[op] = opArrayStore
		case bytecode.FamilyReturn:
			dispatch[op] = opReturn
		case bytecode.FamilyField:
			dispatch[op] = opField
		case bytecode.FamilyInvoke:
			dispatch[op] = opInvoke
		case bytecode.FamilyMonitor:
			dispatch[op] = opMonitor
		case bytecode.FamilySwitch:
			dispatch[op] = opSwitch
		}
	}
	registerConstants()
	registerStack()
	registerMath()
	registerConversions()
	registerComparisons()
	registerBranches()
	registerObjects()
}

func opNop(*VM, *Frame, *bytecode.Instruction) error { return nil }

// kindOfType maps an opcode's operand type to the value kind it moves.
// Byte, char and short elements travel as ints.
func kindOfType(t bytecode.Type) Kind {
	switch t {
	case bytecode.TypeNone:
		return KindVoid
	case bytecode.TypeLong:
		return KindLong
	case bytecode.TypeFloat:
		return KindFloat
	case bytecode.TypeDouble:
		return KindDouble
	case bytecode.TypeRef:
		return KindReference
	}
	return KindInt
}
