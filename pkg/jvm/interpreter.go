package jvm

import (
	"errors"
	"fmt"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
)

var errCancelled = errors.New("execution cancelled")

// invoke runs m with args already in declaration order, receiver first.
// Bytecode methods get a frame on the call stack; natives run in place.
func (vm *VM) invoke(c *Class, m *classfile.MethodInfo, args []Value) (Value, error) {
	if m.IsAbstract() {
		return Void, &LinkError{Member: "method", Class: c.Name, Name: m.Name, Descriptor: m.Descriptor, Abstract: true}
	}
	if m.IsNative() {
		return vm.callNative(c, m, args)
	}
	f := NewFrame(c, m)
	if f.Code == nil {
		return Void, fmt.Errorf("method %s.%s%s has no code", c.Name, m.Name, m.Descriptor)
	}
	slot := 0
	for _, a := range args {
		if err := f.Locals.Set(slot, a); err != nil {
			return Void, fmt.Errorf("passing arguments to %s.%s: %w", c.Name, m.Name, err)
		}
		slot += a.Category()
	}

	if err := vm.calls.Push(f); err != nil {
		return Void, err
	}
	vm.metrics.SetCallDepth(vm.calls.Depth())
	defer func() {
		vm.calls.Pop()
		vm.metrics.SetCallDepth(vm.calls.Depth())
	}()
	return vm.execute(f)
}

// execute is the fetch-decode-dispatch loop of one frame.
func (vm *VM) execute(f *Frame) (Value, error) {
	code := f.Code.Code
	done := vm.spanCtx().Done()
	for {
		if done != nil {
			select {
			case <-done:
				return Void, vm.abrupt(f, 0, fmt.Errorf("%w: %w", errCancelled, vm.spanCtx().Err()))
			default:
			}
		}

		in, err := bytecode.Decode(code, f.PC)
		if err != nil {
			return Void, vm.abrupt(f, in.Op, err)
		}
		h := dispatch[in.Op]
		if h == nil {
			return Void, vm.abrupt(f, in.Op, fmt.Errorf("%w: opcode %s", ErrUnsupported, in.Op))
		}
		f.jumped = false
		if err := h(vm, f, &in); err != nil {
			return Void, vm.abrupt(f, in.Op, err)
		}
		vm.metrics.RecordInstruction(in.Info().Family.String())

		switch {
		case f.returned:
			return f.result, nil
		case f.jumped:
			f.PC = f.nextPC
		default:
			f.PC += in.Length
		}
	}
}

// abrupt wraps err with the location of the failing instruction. An error
// that already carries a location from a deeper frame passes through.
func (vm *VM) abrupt(f *Frame, op bytecode.Opcode, err error) error {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecutionError{
		Class:  f.Class.Name,
		Method: f.Method.Name + f.Method.Descriptor,
		PC:     f.PC,
		Line:   f.Line(),
		Opcode: op,
		Trace:  vm.calls.GetTrace(),
		Err:    err,
	}
}
