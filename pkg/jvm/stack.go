package jvm

import (
	"strings"
)

// slot is one physical stack or local cell. A category-2 value occupies a
// lower slot holding the value and an upper slot marking the second half.
type slot struct {
	v     Value
	upper bool
}

// OperandStack is the fixed-capacity operand stack of one frame.
type OperandStack struct {
	slots []slot
	sp    int // next free slot
}

// NewOperandStack creates a stack of maxStack slots.
func NewOperandStack(maxStack int) *OperandStack {
	return &OperandStack{slots: make([]slot, maxStack)}
}

// Push pushes v, taking two slots for long and double.
func (s *OperandStack) Push(v Value) error {
	cat := v.Category()
	if cat == 0 {
		return mismatch(KindInt, v.Kind)
	}
	if s.sp+cat > len(s.slots) {
		return &StackError{Kind: StackOverflow, Limit: len(s.slots)}
	}
	s.slots[s.sp] = slot{v: v}
	if cat == 2 {
		s.slots[s.sp+1] = slot{v: Value{Kind: v.Kind}, upper: true}
	}
	s.sp += cat
	return nil
}

// Pop pops a value of the given kind. On a category mismatch the stack is
// left unchanged.
func (s *OperandStack) Pop(kind Kind) (Value, error) {
	v, err := s.peekKind(kind)
	if err != nil {
		return Value{}, err
	}
	s.sp -= kind.Category()
	return v, nil
}

func (s *OperandStack) peekKind(kind Kind) (Value, error) {
	cat := kind.Category()
	if s.sp < cat || s.sp == 0 {
		return Value{}, &StackError{Kind: StackUnderflow}
	}
	top := s.slots[s.sp-1]
	if cat == 2 {
		low := s.slots[s.sp-2]
		if !top.upper || low.upper || low.v.Kind != kind {
			return Value{}, mismatch(kind, s.topKind())
		}
		return low.v, nil
	}
	if top.upper || top.v.Kind != kind {
		return Value{}, mismatch(kind, s.topKind())
	}
	return top.v, nil
}

// topKind is the kind of the value whose last slot is at the top.
func (s *OperandStack) topKind() Kind {
	if s.sp == 0 {
		return KindVoid
	}
	return s.slots[s.sp-1].v.Kind
}

func (s *OperandStack) PushInt(v int32) error      { return s.Push(Int(v)) }
func (s *OperandStack) PushLong(v int64) error     { return s.Push(Long(v)) }
func (s *OperandStack) PushFloat(v float32) error  { return s.Push(Float(v)) }
func (s *OperandStack) PushDouble(v float64) error { return s.Push(Double(v)) }
func (s *OperandStack) PushRef(r Reference) error  { return s.Push(Ref(r)) }

func (s *OperandStack) PopInt() (int32, error) {
	v, err := s.Pop(KindInt)
	return v.AsInt(), err
}

func (s *OperandStack) PopLong() (int64, error) {
	v, err := s.Pop(KindLong)
	return v.AsLong(), err
}

func (s *OperandStack) PopFloat() (float32, error) {
	v, err := s.Pop(KindFloat)
	return v.AsFloat(), err
}

func (s *OperandStack) PopDouble() (float64, error) {
	v, err := s.Pop(KindDouble)
	return v.AsDouble(), err
}

func (s *OperandStack) PopRef() (Reference, error) {
	v, err := s.Pop(KindReference)
	return v.AsRef(), err
}

// PopStorable pops a reference or a return address, the two kinds astore
// accepts.
func (s *OperandStack) PopStorable() (Value, error) {
	if s.sp > 0 && !s.slots[s.sp-1].upper && s.slots[s.sp-1].v.Kind == KindReturnAddress {
		return s.Pop(KindReturnAddress)
	}
	return s.Pop(KindReference)
}

// PeekAt returns the category-1 value depth slots below the top without
// popping it. PeekAt(0) is the top.
func (s *OperandStack) PeekAt(depth int) (Value, error) {
	i := s.sp - 1 - depth
	if i < 0 || depth < 0 {
		return Value{}, &StackError{Kind: StackUnderflow}
	}
	if s.slots[i].upper {
		return Value{}, mismatch(KindReference, s.slots[i].v.Kind)
	}
	return s.slots[i].v, nil
}

// PopArgs pops the arguments for a call, last argument on top, and returns
// them in declaration order.
func (s *OperandStack) PopArgs(kinds []Kind) ([]Value, error) {
	need := 0
	for _, k := range kinds {
		need += k.Category()
	}
	if s.sp < need {
		return nil, &StackError{Kind: StackUnderflow}
	}
	saved := s.sp
	args := make([]Value, len(kinds))
	for i := len(kinds) - 1; i >= 0; i-- {
		v, err := s.Pop(kinds[i])
		if err != nil {
			s.sp = saved
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// boundary reports whether a value starts at slot p, i.e. the stack can be
// cut between p-1 and p without splitting a category-2 value.
func (s *OperandStack) boundary(p int) bool {
	return p == s.sp || p == 0 || !s.slots[p].upper
}

// Discard removes n raw slots (pop and pop2).
func (s *OperandStack) Discard(n int) error {
	if s.sp < n {
		return &StackError{Kind: StackUnderflow}
	}
	if !s.boundary(s.sp - n) {
		return mismatch(KindInt, s.topKind())
	}
	s.sp -= n
	return nil
}

// DupInsert copies the top n raw slots and inserts the copy depth slots
// below the top. dup is (1,1), dup_x1 (1,2), dup_x2 (1,3), dup2 (2,2),
// dup2_x1 (2,3) and dup2_x2 (2,4).
func (s *OperandStack) DupInsert(n, depth int) error {
	if s.sp < depth {
		return &StackError{Kind: StackUnderflow}
	}
	if !s.boundary(s.sp-n) || !s.boundary(s.sp-depth) {
		return mismatch(KindInt, s.topKind())
	}
	if s.sp+n > len(s.slots) {
		return &StackError{Kind: StackOverflow, Limit: len(s.slots)}
	}
	top := make([]slot, n)
	copy(top, s.slots[s.sp-n:s.sp])
	at := s.sp - depth
	copy(s.slots[at+n:s.sp+n], s.slots[at:s.sp])
	copy(s.slots[at:at+n], top)
	s.sp += n
	return nil
}

// Swap exchanges the top two category-1 values.
func (s *OperandStack) Swap() error {
	if s.sp < 2 {
		return &StackError{Kind: StackUnderflow}
	}
	if s.slots[s.sp-1].upper || s.slots[s.sp-2].upper {
		return mismatch(KindInt, s.topKind())
	}
	s.slots[s.sp-1], s.slots[s.sp-2] = s.slots[s.sp-2], s.slots[s.sp-1]
	return nil
}

// ensure fails with StackOverflow unless n more slots fit.
func (s *OperandStack) ensure(n int) error {
	if s.sp+n > len(s.slots) {
		return &StackError{Kind: StackOverflow, Limit: len(s.slots)}
	}
	return nil
}

// Size returns the number of occupied slots.
func (s *OperandStack) Size() int {
	return s.sp
}

// Capacity returns max_stack.
func (s *OperandStack) Capacity() int {
	return len(s.slots)
}

// Clear empties the stack.
func (s *OperandStack) Clear() {
	s.sp = 0
}

// Values returns the values on the stack, bottom first, one entry per value.
func (s *OperandStack) Values() []Value {
	out := make([]Value, 0, s.sp)
	for i := 0; i < s.sp; i++ {
		if !s.slots[i].upper {
			out = append(out, s.slots[i].v)
		}
	}
	return out
}

func (s *OperandStack) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range s.Values() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteString("]")
	return sb.String()
}

// mark and reset let an instruction undo its pops when a later operand turns
// out to be invalid. Pops never overwrite slots, so resetting sp is exact.
func (s *OperandStack) mark() int   { return s.sp }
func (s *OperandStack) reset(m int) { s.sp = m }
