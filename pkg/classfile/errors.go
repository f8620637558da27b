package classfile

import "fmt"

// LoadError reports a structural problem found while reading a class file.
type LoadError struct {
	Status   Status
	Location string // e.g. "constant_pool[7]" or "methods[2].attributes[Code]"
	Offset   int    // byte offset into the class file, -1 when not applicable
	Err      error
}

func (e *LoadError) Error() string {
	msg := e.Status.String()
	if e.Location != "" {
		msg = e.Location + ": " + msg
	}
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s (offset %d)", msg, e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "classfile: " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func loadErr(status Status, loc string, off int, err error) *LoadError {
	return &LoadError{Status: status, Location: loc, Offset: off, Err: err}
}

// at fills in the location of a LoadError raised by a lower layer that did not
// know where it was.
func at(err error, format string, args ...interface{}) error {
	if lerr, ok := err.(*LoadError); ok && lerr.Location == "" {
		lerr.Location = fmt.Sprintf(format, args...)
	}
	return err
}

// ResolutionKind distinguishes the two ways a pool lookup can fail.
type ResolutionKind int

const (
	IndexOutOfRange ResolutionKind = iota
	TagMismatch
)

func (k ResolutionKind) String() string {
	if k == TagMismatch {
		return "tag mismatch"
	}
	return "index out of range"
}

// ResolutionError reports a constant-pool lookup that did not produce an entry
// of the expected kind.
type ResolutionError struct {
	Index    uint16
	Expected ConstantTag
	Actual   ConstantTag
	Kind     ResolutionKind
}

func (e *ResolutionError) Error() string {
	if e.Kind == TagMismatch {
		return fmt.Sprintf("constant pool #%d: %s: expected %s, found %s", e.Index, e.Kind, e.Expected, e.Actual)
	}
	return fmt.Sprintf("constant pool #%d: %s", e.Index, e.Kind)
}
