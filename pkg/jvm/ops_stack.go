package jvm

import (
	"github.com/fluxorio/jvm/pkg/bytecode"
)

// The stack family works on raw slots: a form is legal when none of its cut
// points splits a long or double.
func registerStack() {
	dup := func(n, depth int) handler {
		return func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
			return f.Stack.DupInsert(n, depth)
		}
	}
	dispatch[bytecode.Pop] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
		return f.Stack.Discard(1)
	}
	dispatch[bytecode.Pop2] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
		return f.Stack.Discard(2)
	}
	dispatch[bytecode.Dup] = dup(1, 1)
	dispatch[bytecode.DupX1] = dup(1, 2)
	dispatch[bytecode.DupX2] = dup(1, 3)
	dispatch[bytecode.Dup2] = dup(2, 2)
	dispatch[bytecode.Dup2X1] = dup(2, 3)
	dispatch[bytecode.Dup2X2] = dup(2, 4)
	dispatch[bytecode.Swap] = func(_ *VM, f *Frame, _ *bytecode.Instruction) error {
		return f.Stack.Swap()
	}
}
