package jvm

import "strings"

// Locals is the fixed-size local variable array of one frame. Long and
// double values occupy index and index+1.
type Locals struct {
	slots []slot
}

// NewLocals creates maxLocals empty slots.
func NewLocals(maxLocals int) *Locals {
	return &Locals{slots: make([]slot, maxLocals)}
}

// Len returns max_locals.
func (l *Locals) Len() int {
	return len(l.slots)
}

func (l *Locals) check(index, cat int) error {
	if index < 0 || index+cat > len(l.slots) {
		return &StackError{Kind: InvalidLocalIndex, Index: index, Limit: len(l.slots)}
	}
	return nil
}

// Get reads a value of the given kind. Reading a slot that was never
// written, was invalidated, or holds another kind is a CategoryMismatch.
func (l *Locals) Get(index int, kind Kind) (Value, error) {
	cat := kind.Category()
	if cat == 0 {
		cat = 1
	}
	if err := l.check(index, cat); err != nil {
		return Value{}, err
	}
	s := l.slots[index]
	if s.upper || s.v.Kind != kind {
		got := s.v.Kind
		if s.upper {
			got = KindVoid
		}
		return Value{}, mismatch(kind, got)
	}
	if cat == 2 && !l.slots[index+1].upper {
		return Value{}, mismatch(kind, KindVoid)
	}
	return s.v, nil
}

// Set writes v at index. Overwriting either half of a category-2 value
// invalidates the other half.
func (l *Locals) Set(index int, v Value) error {
	cat := v.Category()
	if cat == 0 {
		return mismatch(KindInt, v.Kind)
	}
	if err := l.check(index, cat); err != nil {
		return err
	}
	for i := index; i < index+cat; i++ {
		l.invalidate(i)
	}
	l.slots[index] = slot{v: v}
	if cat == 2 {
		l.slots[index+1] = slot{v: Value{Kind: v.Kind}, upper: true}
	}
	return nil
}

// invalidate clears the other half of any category-2 value covering slot i.
func (l *Locals) invalidate(i int) {
	s := l.slots[i]
	switch {
	case s.upper:
		if i > 0 {
			l.slots[i-1] = slot{}
		}
	case s.v.Category() == 2:
		if i+1 < len(l.slots) {
			l.slots[i+1] = slot{}
		}
	}
	l.slots[i] = slot{}
}

// Values returns every live value, in index order.
func (l *Locals) Values() []Value {
	out := make([]Value, 0, len(l.slots))
	for _, s := range l.slots {
		if !s.upper && s.v.Kind != KindVoid {
			out = append(out, s.v)
		}
	}
	return out
}

func (l *Locals) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, s := range l.slots {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch {
		case s.upper:
			sb.WriteString("top")
		case s.v.Kind == KindVoid:
			sb.WriteString("-")
		default:
			sb.WriteString(s.v.String())
		}
	}
	sb.WriteString("]")
	return sb.String()
}
