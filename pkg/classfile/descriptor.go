package classfile

import (
	"fmt"
	"strings"
)

// FieldType is a parsed field descriptor such as I, [J or Ljava/lang/String;.
type FieldType struct {
	Descriptor string
	Dimensions int    // array dimensions, 0 for non-arrays
	Base       byte   // B C D F I J S Z L, or V for a void return
	ClassName  string // set when Base is L
}

// IsReference reports whether values of the type are object references.
func (t FieldType) IsReference() bool {
	return t.Dimensions > 0 || t.Base == 'L'
}

// IsVoid reports whether t is the V return type.
func (t FieldType) IsVoid() bool {
	return t.Base == 'V'
}

// Slots is the number of local-variable slots a value of this type takes.
func (t FieldType) Slots() int {
	switch {
	case t.IsVoid():
		return 0
	case t.Dimensions == 0 && (t.Base == 'J' || t.Base == 'D'):
		return 2
	}
	return 1
}

// Elem returns the element type of an array type.
func (t FieldType) Elem() FieldType {
	if t.Dimensions == 0 {
		return t
	}
	e := t
	e.Dimensions--
	e.Descriptor = t.Descriptor[1:]
	return e
}

func (t FieldType) String() string {
	return t.Descriptor
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Descriptor string
	Params     []FieldType
	Return     FieldType
}

// ArgSlots counts the local-variable slots taken by the parameters, not
// including a receiver.
func (d MethodDescriptor) ArgSlots() int {
	n := 0
	for _, p := range d.Params {
		n += p.Slots()
	}
	return n
}

func (d MethodDescriptor) String() string {
	return d.Descriptor
}

// ParseFieldType parses a complete field descriptor.
func ParseFieldType(s string) (FieldType, error) {
	t, n, err := parseFieldType(s, 0)
	if err != nil {
		return FieldType{}, err
	}
	if n != len(s) {
		return FieldType{}, fmt.Errorf("field descriptor %q: trailing characters", s)
	}
	return t, nil
}

func parseFieldType(s string, i int) (FieldType, int, error) {
	start := i
	dims := 0
	for i < len(s) && s[i] == '[' {
		dims++
		i++
	}
	if dims > 255 {
		return FieldType{}, 0, fmt.Errorf("descriptor %q: more than 255 array dimensions", s)
	}
	if i >= len(s) {
		return FieldType{}, 0, fmt.Errorf("descriptor %q: unexpected end", s)
	}

	t := FieldType{Dimensions: dims, Base: s[i]}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		i++
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			return FieldType{}, 0, fmt.Errorf("descriptor %q: unterminated class name", s)
		}
		t.ClassName = s[i+1 : i+end]
		if !validBinaryName(t.ClassName) {
			return FieldType{}, 0, fmt.Errorf("descriptor %q: invalid class name %q", s, t.ClassName)
		}
		i += end + 1
	default:
		return FieldType{}, 0, fmt.Errorf("descriptor %q: unexpected %q", s, s[i])
	}
	t.Descriptor = s[start:i]
	return t, i, nil
}

// ParseMethodDescriptor parses a descriptor such as (I[JLjava/lang/String;)V.
func ParseMethodDescriptor(s string) (MethodDescriptor, error) {
	if len(s) == 0 || s[0] != '(' {
		return MethodDescriptor{}, fmt.Errorf("method descriptor %q: missing '('", s)
	}
	d := MethodDescriptor{Descriptor: s}
	i := 1
	for i < len(s) && s[i] != ')' {
		p, next, err := parseFieldType(s, i)
		if err != nil {
			return MethodDescriptor{}, err
		}
		d.Params = append(d.Params, p)
		i = next
	}
	if i >= len(s) {
		return MethodDescriptor{}, fmt.Errorf("method descriptor %q: missing ')'", s)
	}
	i++
	if i < len(s) && s[i] == 'V' {
		d.Return = FieldType{Descriptor: "V", Base: 'V'}
		i++
	} else {
		r, next, err := parseFieldType(s, i)
		if err != nil {
			return MethodDescriptor{}, err
		}
		d.Return = r
		i = next
	}
	if i != len(s) {
		return MethodDescriptor{}, fmt.Errorf("method descriptor %q: trailing characters", s)
	}
	if d.ArgSlots() > 255 {
		return MethodDescriptor{}, fmt.Errorf("method descriptor %q: more than 255 parameter slots", s)
	}
	return d, nil
}

// validUnqualifiedName checks a field or method name segment.
func validUnqualifiedName(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".;[/")
}

func validMethodName(s string) bool {
	if s == "<init>" || s == "<clinit>" {
		return true
	}
	return validUnqualifiedName(s) && !strings.ContainsAny(s, "<>")
}

// validBinaryName checks an internal class name such as java/lang/Object.
func validBinaryName(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, "/") {
		if !validUnqualifiedName(part) {
			return false
		}
	}
	return true
}

// validClassEntryName accepts a binary name or an array descriptor, the two
// forms a Class constant may take.
func validClassEntryName(s string) bool {
	if strings.HasPrefix(s, "[") {
		_, err := ParseFieldType(s)
		return err == nil
	}
	return validBinaryName(s)
}
