package jvm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
	"github.com/fluxorio/jvm/pkg/mutf8"
)

func TestErrorKind(t *testing.T) {
	wrapped := func(err error) error {
		return &ExecutionError{Class: "test/Main", Method: "run()V", Err: fmt.Errorf("wrapped: %w", err)}
	}
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{&ThrowError{Class: "java.lang.Error"}, "throw"},
		{wrapped(&StackError{Kind: StackUnderflow}), "stack"},
		{wrapped(&ArithmeticError{Op: bytecode.Idiv}), "arithmetic"},
		{&BoundsError{Kind: NegativeArraySize, Index: -1}, "bounds"},
		{wrapped(&ResourceError{Kind: DoubleFree}), "resource"},
		{&LinkError{Member: "field", Class: "a/B", Name: "x", Descriptor: "I"}, "resolution"},
		{fmt.Errorf("%w: a/B", ErrClassNotFound), "resolution"},
		{&classfile.LoadError{Status: classfile.BadMagic, Offset: -1}, "load"},
		{&mutf8.DecodeError{Offset: 3}, "decode"},
		{&ClassCastError{From: "a", To: "b"}, "cast"},
		{fmt.Errorf("%w: invokedynamic", ErrUnsupported), "unsupported"},
		{wrapped(bytecode.ErrTruncated), "bytecode"},
		{fmt.Errorf("%w: %w", errCancelled, errors.New("deadline")), "cancelled"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&StackError{Kind: StackOverflow, Limit: 2}, "stack overflow (max stack: 2)"},
		{&StackError{Kind: StackOverflow, Calls: true, Limit: 8}, "call stack overflow (max depth: 8)"},
		{mismatch(KindLong, KindInt), "category mismatch: want long, found int"},
		{&StackError{Kind: InvalidLocalIndex, Index: 5, Limit: 2}, "local variable index out of bounds: 5 (max locals: 2)"},
		{&ArithmeticError{Op: bytecode.Ldiv}, "ldiv: / by zero"},
		{&BoundsError{Index: 3, Length: 3}, "array index 3 out of bounds for length 3"},
		{&BoundsError{Kind: NegativeArraySize, Index: -4}, "negative array size: -4"},
		{&ResourceError{Kind: NullReference}, "null reference"},
		{&ResourceError{Kind: DoubleFree, Ref: Reference{Index: 2, Gen: 3}}, "double free: ref#2.3"},
		{&LinkError{Member: "method", Class: "a/B", Name: "f", Descriptor: "()V", Abstract: true}, "abstract method: a/B.f:()V"},
		{&ThrowError{Class: "java.lang.Error", Message: "bad"}, "exception java.lang.Error: bad"},
		{
			&ExecutionError{Class: "a/B", Method: "f()V", PC: 4, Line: 12, Opcode: bytecode.Athrow, Err: errors.New("x")},
			"execution error at PC=4 in a/B.f()V line 12 (athrow): x",
		},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestStackTraceFromNestedCall(t *testing.T) {
	vm := newTestVM(t)
	b := classfile.NewBuilder("test/Main", "java/lang/Object").SourceFile("Main.java")
	failing := bytecode.NewAssembler().Iconst(1).Iconst(0).Op(bytecode.Idiv).Op(bytecode.Ireturn).MustBytes()
	b.Method(classfile.AccStatic, "inner", "()I", 2, 0, failing).
		LineNumbers(classfile.LineNumber{StartPC: 0, Line: 10}).
		Method(classfile.AccPublic|classfile.AccStatic, "run", "()I", 1, 0, bytecode.NewAssembler().
			Invoke(bytecode.Invokestatic, b.Methodref("test/Main", "inner", "()I")).
			Op(bytecode.Ireturn).
			MustBytes())
	define(t, vm, b)

	_, err := vm.Invoke("test/Main", "run", "()I")
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want ExecutionError", err)
	}
	if ee.Method != "inner()I" || ee.Line != 10 {
		t.Errorf("innermost = %s line %d, want inner()I line 10", ee.Method, ee.Line)
	}
	if len(ee.Trace) != 2 {
		t.Fatalf("Trace = %q, want two frames", ee.Trace)
	}
	if want := "  at test/Main.inner (Main.java:10, PC=2)"; ee.Trace[0] != want {
		t.Errorf("Trace[0] = %q, want %q", ee.Trace[0], want)
	}
}
