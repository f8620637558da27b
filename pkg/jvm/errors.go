package jvm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
	"github.com/fluxorio/jvm/pkg/mutf8"
)

var (
	// ErrClassNotFound is returned when no source provides a class.
	ErrClassNotFound = errors.New("class not found")

	// ErrUnsupported marks features the interpreter does not execute:
	// invokedynamic, method handles and unregistered native methods.
	ErrUnsupported = errors.New("unsupported")

	// ErrDeinitialized is returned by operations on a VM after Deinitialize.
	ErrDeinitialized = errors.New("vm deinitialized")
)

// StackErrorKind classifies operand stack, locals and call stack failures.
type StackErrorKind int

const (
	StackOverflow StackErrorKind = iota
	StackUnderflow
	CategoryMismatch
	InvalidLocalIndex
)

func (k StackErrorKind) String() string {
	switch k {
	case StackOverflow:
		return "stack overflow"
	case StackUnderflow:
		return "stack underflow"
	case CategoryMismatch:
		return "category mismatch"
	case InvalidLocalIndex:
		return "invalid local index"
	}
	return fmt.Sprintf("StackErrorKind(%d)", int(k))
}

// StackError reports a width or bounds violation on the operand stack, the
// local variable array or the call stack.
type StackError struct {
	Kind  StackErrorKind
	Want  Kind // CategoryMismatch: the kind the instruction expected
	Got   Kind // CategoryMismatch: what the slot held
	Index int  // InvalidLocalIndex
	Limit int  // capacity that was exceeded
	Calls bool // StackOverflow of the call stack rather than an operand stack
}

func (e *StackError) Error() string {
	switch e.Kind {
	case StackOverflow:
		if e.Calls {
			return fmt.Sprintf("call stack overflow (max depth: %d)", e.Limit)
		}
		return fmt.Sprintf("stack overflow (max stack: %d)", e.Limit)
	case StackUnderflow:
		return "stack underflow"
	case CategoryMismatch:
		return fmt.Sprintf("category mismatch: want %s, found %s", e.Want, e.Got)
	case InvalidLocalIndex:
		return fmt.Sprintf("local variable index out of bounds: %d (max locals: %d)", e.Index, e.Limit)
	}
	return e.Kind.String()
}

func mismatch(want, got Kind) *StackError {
	return &StackError{Kind: CategoryMismatch, Want: want, Got: got}
}

// ArithmeticError is integer division or remainder by zero.
type ArithmeticError struct {
	Op bytecode.Opcode
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("%s: / by zero", e.Op)
}

type BoundsErrorKind int

const (
	ArrayIndexOutOfBounds BoundsErrorKind = iota
	NegativeArraySize
)

// BoundsError reports a bad array index or a negative array length.
type BoundsError struct {
	Kind   BoundsErrorKind
	Index  int32
	Length int
}

func (e *BoundsError) Error() string {
	if e.Kind == NegativeArraySize {
		return fmt.Sprintf("negative array size: %d", e.Index)
	}
	return fmt.Sprintf("array index %d out of bounds for length %d", e.Index, e.Length)
}

// ResourceErrorKind classifies reference lifecycle failures.
type ResourceErrorKind int

const (
	DoubleFree ResourceErrorKind = iota
	UseAfterFree
	InvalidReference
	StillReachable
	NullReference
	HeapExhausted
	NotOwned
)

func (k ResourceErrorKind) String() string {
	switch k {
	case DoubleFree:
		return "double free"
	case UseAfterFree:
		return "use after free"
	case InvalidReference:
		return "invalid reference"
	case StillReachable:
		return "still reachable"
	case NullReference:
		return "null reference"
	case HeapExhausted:
		return "heap exhausted"
	case NotOwned:
		return "not owned"
	}
	return fmt.Sprintf("ResourceErrorKind(%d)", int(k))
}

// ResourceError reports misuse of a heap reference.
type ResourceError struct {
	Kind ResourceErrorKind
	Ref  Reference
}

func (e *ResourceError) Error() string {
	if e.Kind == NullReference || e.Kind == HeapExhausted {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Ref)
}

// LinkError is a symbolic reference to a field or method that does not
// exist, or to an abstract method.
type LinkError struct {
	Member     string // "method" or "field"
	Class      string
	Name       string
	Descriptor string
	Abstract   bool
}

func (e *LinkError) Error() string {
	if e.Abstract {
		return fmt.Sprintf("abstract method: %s.%s:%s", e.Class, e.Name, e.Descriptor)
	}
	return fmt.Sprintf("no such %s: %s.%s:%s", e.Member, e.Class, e.Name, e.Descriptor)
}

// ClassCastError is a failed checkcast.
type ClassCastError struct {
	From string
	To   string
}

func (e *ClassCastError) Error() string {
	return fmt.Sprintf("class %s cannot be cast to %s", e.From, e.To)
}

// ThrowError is the abrupt completion caused by athrow. The thrown object
// stays on the heap and is reported like any other outstanding reference.
type ThrowError struct {
	Ref     Reference
	Class   string
	Message string
}

func (e *ThrowError) Error() string {
	if e.Message == "" {
		return "exception " + e.Class
	}
	return fmt.Sprintf("exception %s: %s", e.Class, e.Message)
}

// ExecutionError is an abrupt completion. It records where the innermost
// failing instruction was and the call trace at that point.
type ExecutionError struct {
	Class  string
	Method string
	PC     int
	Line   int
	Opcode bytecode.Opcode
	Trace  []string
	Err    error
}

func (e *ExecutionError) Error() string {
	loc := fmt.Sprintf("%s.%s", e.Class, e.Method)
	if e.Line > 0 {
		loc = fmt.Sprintf("%s line %d", loc, e.Line)
	}
	return fmt.Sprintf("execution error at PC=%d in %s (%s): %v", e.PC, loc, e.Opcode, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// StackTrace renders the call trace, innermost frame first.
func (e *ExecutionError) StackTrace() string {
	return strings.Join(e.Trace, "\n")
}

// ErrorKind names the taxonomy bucket of err, for logs and metric labels.
func ErrorKind(err error) string {
	var (
		stackErr *StackError
		arithErr *ArithmeticError
		boundErr *BoundsError
		resErr   *ResourceError
		resolErr *classfile.ResolutionError
		loadErr  *classfile.LoadError
		decErr   *mutf8.DecodeError
		throwErr *ThrowError
		linkErr  *LinkError
		castErr  *ClassCastError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &throwErr):
		return "throw"
	case errors.As(err, &stackErr):
		return "stack"
	case errors.As(err, &arithErr):
		return "arithmetic"
	case errors.As(err, &boundErr):
		return "bounds"
	case errors.As(err, &resErr):
		return "resource"
	case errors.As(err, &resolErr), errors.As(err, &linkErr), errors.Is(err, ErrClassNotFound):
		return "resolution"
	case errors.As(err, &loadErr):
		return "load"
	case errors.As(err, &decErr):
		return "decode"
	case errors.As(err, &castErr):
		return "cast"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, bytecode.ErrTruncated), errors.Is(err, bytecode.ErrReservedOpcode),
		errors.Is(err, bytecode.ErrInvalidWide), errors.Is(err, bytecode.ErrInvalidSwitch):
		return "bytecode"
	case errors.Is(err, errCancelled):
		return "cancelled"
	}
	return "other"
}
