package jvm

import (
	"errors"
	"testing"
)

func wantStackError(t *testing.T, err error, kind StackErrorKind) *StackError {
	t.Helper()
	var serr *StackError
	if !errors.As(err, &serr) || serr.Kind != kind {
		t.Fatalf("err = %v, want %s", err, kind)
	}
	return serr
}

func TestOperandStackWidths(t *testing.T) {
	s := NewOperandStack(4)
	if err := s.PushLong(-7); err != nil {
		t.Fatalf("PushLong: %v", err)
	}
	if err := s.PushInt(3); err != nil {
		t.Fatalf("PushInt: %v", err)
	}
	if s.Size() != 3 {
		t.Errorf("Size = %d, want 3", s.Size())
	}

	// A long needs two free slots.
	wantStackError(t, s.PushDouble(1), StackOverflow)
	if s.Size() != 3 {
		t.Errorf("Size = %d after failed push", s.Size())
	}

	wantStackError(t, popErr(s.PopLong()), CategoryMismatch)
	if v, err := s.PopInt(); err != nil || v != 3 {
		t.Fatalf("PopInt = %d, %v", v, err)
	}
	serr := wantStackError(t, popErr(s.PopInt()), CategoryMismatch)
	if serr.Want != KindInt || serr.Got != KindLong {
		t.Errorf("mismatch want %s got %s", serr.Want, serr.Got)
	}
	if v, err := s.PopLong(); err != nil || v != -7 {
		t.Fatalf("PopLong = %d, %v", v, err)
	}
	wantStackError(t, popErr(s.PopRef()), StackUnderflow)
}

func popErr[T any](_ T, err error) error { return err }

func TestOperandStackPopArgsIsAtomic(t *testing.T) {
	s := NewOperandStack(4)
	s.PushInt(1)
	s.PushInt(2)
	s.PushInt(3)
	_, err := s.PopArgs([]Kind{KindLong, KindInt})
	wantStackError(t, err, CategoryMismatch)
	if s.Size() != 3 {
		t.Errorf("Size = %d after failed PopArgs, want 3", s.Size())
	}

	args, err := s.PopArgs([]Kind{KindInt, KindInt})
	if err != nil {
		t.Fatalf("PopArgs: %v", err)
	}
	if args[0] != Int(2) || args[1] != Int(3) {
		t.Errorf("args = %v, want [2 3] in declaration order", args)
	}
}

func TestOperandStackDupInsert(t *testing.T) {
	s := NewOperandStack(6)
	s.PushLong(5)
	s.PushInt(9)
	// dup_x2 with a long below the int: ..., long, int -> int, long, int
	if err := s.DupInsert(1, 3); err != nil {
		t.Fatalf("DupInsert: %v", err)
	}
	got := s.Values()
	want := []Value{Int(9), Long(5), Int(9)}
	if len(got) != len(want) {
		t.Fatalf("Values = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// dup would split the long.
	s.Clear()
	s.PushLong(1)
	wantStackError(t, s.DupInsert(1, 1), CategoryMismatch)
	wantStackError(t, s.Swap(), CategoryMismatch)
	wantStackError(t, s.Discard(1), CategoryMismatch)
	if err := s.Discard(2); err != nil {
		t.Errorf("pop2 of a long: %v", err)
	}
}

func TestOperandStackPeekAt(t *testing.T) {
	s := NewOperandStack(3)
	s.PushRef(Reference{Index: 1, Gen: 1})
	s.PushInt(4)
	v, err := s.PeekAt(1)
	if err != nil || v.Kind != KindReference {
		t.Errorf("PeekAt(1) = %v, %v", v, err)
	}
	wantStackError(t, popErr(s.PeekAt(2)), StackUnderflow)
	if s.Size() != 2 {
		t.Errorf("PeekAt changed Size to %d", s.Size())
	}
}

func TestPushVoidRejected(t *testing.T) {
	s := NewOperandStack(2)
	wantStackError(t, s.Push(Void), CategoryMismatch)
}

func TestLocalsWidths(t *testing.T) {
	l := NewLocals(4)
	if err := l.Set(1, Double(2.5)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := l.Get(1, KindDouble); err != nil || v.AsDouble() != 2.5 {
		t.Errorf("Get(1) = %v, %v", v, err)
	}
	// The upper half is not a value of its own.
	wantStackError(t, popErr(l.Get(2, KindDouble)), CategoryMismatch)
	wantStackError(t, popErr(l.Get(2, KindInt)), CategoryMismatch)

	// Overwriting the upper half invalidates the lower one.
	if err := l.Set(2, Int(1)); err != nil {
		t.Fatalf("Set(2): %v", err)
	}
	wantStackError(t, popErr(l.Get(1, KindDouble)), CategoryMismatch)
	if v, err := l.Get(2, KindInt); err != nil || v != Int(1) {
		t.Errorf("Get(2) = %v, %v", v, err)
	}

	// A long at the last index does not fit.
	serr := wantStackError(t, l.Set(3, Long(1)), InvalidLocalIndex)
	if serr.Index != 3 || serr.Limit != 4 {
		t.Errorf("InvalidLocalIndex index %d limit %d", serr.Index, serr.Limit)
	}
	wantStackError(t, popErr(l.Get(-1, KindInt)), InvalidLocalIndex)
	wantStackError(t, popErr(l.Get(0, KindInt)), CategoryMismatch)
}

func TestLocalsValues(t *testing.T) {
	l := NewLocals(5)
	l.Set(0, Int(1))
	l.Set(1, Long(2))
	l.Set(4, Null())
	got := l.Values()
	if len(got) != 3 || got[1] != Long(2) {
		t.Errorf("Values = %v", got)
	}
	if s := l.String(); s != "[1, 2L, top, -, null]" {
		t.Errorf("String = %q", s)
	}
}

func TestCallStack(t *testing.T) {
	cs := NewCallStack(1)
	if _, err := cs.Pop(); err == nil {
		t.Error("Pop on an empty call stack succeeded")
	}
	if err := cs.Push(&Frame{}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	serr := wantStackError(t, cs.Push(&Frame{}), StackOverflow)
	if !serr.Calls || serr.Limit != 1 {
		t.Errorf("overflow = %+v, want call stack limit 1", serr)
	}
	if cs.Depth() != 1 || cs.Current() == nil {
		t.Errorf("Depth = %d", cs.Depth())
	}
}
