package jvm

import (
	"fmt"

	"github.com/fluxorio/jvm/pkg/classfile"
)

// Frame is the activation record of one method invocation.
type Frame struct {
	Class  *Class
	Method *classfile.MethodInfo
	Code   *classfile.CodeAttribute
	PC     int
	Stack  *OperandStack
	Locals *Locals

	nextPC   int
	jumped   bool
	returned bool
	result   Value
}

// NewFrame creates a frame sized from the method's Code attribute.
func NewFrame(class *Class, method *classfile.MethodInfo) *Frame {
	code := method.Code()
	f := &Frame{Class: class, Method: method, Code: code}
	if code != nil {
		f.Stack = NewOperandStack(int(code.MaxStack))
		f.Locals = NewLocals(int(code.MaxLocals))
	} else {
		f.Stack = NewOperandStack(0)
		f.Locals = NewLocals(0)
	}
	return f
}

// jump transfers control to target once the current instruction finishes.
func (f *Frame) jump(target int) {
	f.nextPC = target
	f.jumped = true
}

// Line is the source line of the current pc, or 0.
func (f *Frame) Line() int {
	if f.Code == nil {
		return 0
	}
	return f.Code.LineNumber(f.PC)
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{method=%s.%s, pc=%d, stack=%s, locals=%s}",
		f.Class.Name, f.Method.Name, f.PC, f.Stack, f.Locals)
}

// CallStack holds the active frames, innermost last.
type CallStack struct {
	frames   []*Frame
	maxDepth int
}

// NewCallStack creates a call stack limited to maxDepth frames.
func NewCallStack(maxDepth int) *CallStack {
	return &CallStack{maxDepth: maxDepth}
}

// Push pushes a new frame onto the call stack.
func (cs *CallStack) Push(frame *Frame) error {
	if len(cs.frames) >= cs.maxDepth {
		return &StackError{Kind: StackOverflow, Calls: true, Limit: cs.maxDepth}
	}
	cs.frames = append(cs.frames, frame)
	return nil
}

// Pop pops the current frame from the call stack.
func (cs *CallStack) Pop() (*Frame, error) {
	n := len(cs.frames)
	if n == 0 {
		return nil, &StackError{Kind: StackUnderflow, Calls: true}
	}
	frame := cs.frames[n-1]
	cs.frames[n-1] = nil
	cs.frames = cs.frames[:n-1]
	return frame, nil
}

// Current returns the innermost frame, or nil.
func (cs *CallStack) Current() *Frame {
	if len(cs.frames) == 0 {
		return nil
	}
	return cs.frames[len(cs.frames)-1]
}

// Depth returns the current call stack depth.
func (cs *CallStack) Depth() int {
	return len(cs.frames)
}

// IsEmpty returns true if the call stack is empty.
func (cs *CallStack) IsEmpty() bool {
	return len(cs.frames) == 0
}

// Frames returns the active frames, outermost first.
func (cs *CallStack) Frames() []*Frame {
	return cs.frames
}

// GetTrace returns a stack trace, innermost frame first.
func (cs *CallStack) GetTrace() []string {
	trace := make([]string, 0, len(cs.frames))
	for i := len(cs.frames) - 1; i >= 0; i-- {
		f := cs.frames[i]
		line := fmt.Sprintf("  at %s.%s (PC=%d)", f.Class.Name, f.Method.Name, f.PC)
		if n := f.Line(); n > 0 {
			src := f.Class.File.SourceFile()
			if src == "" {
				src = "line"
			}
			line = fmt.Sprintf("  at %s.%s (%s:%d, PC=%d)", f.Class.Name, f.Method.Name, src, n, f.PC)
		}
		trace = append(trace, line)
	}
	return trace
}
