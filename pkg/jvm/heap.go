package jvm

import "fmt"

// Reference is a generation-checked handle into the heap arena. The zero
// Reference is null.
type Reference struct {
	Index uint32
	Gen   uint32
}

// NullRef is the null reference.
var NullRef = Reference{}

func (r Reference) IsNull() bool { return r == Reference{} }

func (r Reference) String() string {
	if r.IsNull() {
		return "null"
	}
	return fmt.Sprintf("ref#%d.%d", r.Index, r.Gen)
}

func (r Reference) bits() uint64 {
	return uint64(r.Gen)<<32 | uint64(r.Index)
}

func referenceFromBits(b uint64) Reference {
	return Reference{Index: uint32(b), Gen: uint32(b >> 32)}
}

type heapSlot struct {
	gen  uint32
	obj  *Object
	held bool // owned by the VM (interned literal, class mirror, system stream)
}

// Heap is the per-VM object arena. A freed slot's generation is bumped, so a
// stale handle is detected on its next use instead of aliasing a new object.
type Heap struct {
	slots    []heapSlot // slots[0] is never used, Index 0 means null
	free     []uint32
	live     int
	max      int
	released int

	onAlloc   func(kind ObjectKind, live int)
	onRelease func(live int)
}

// NewHeap creates a heap holding at most maxObjects live objects; zero or
// less means unbounded.
func NewHeap(maxObjects int) *Heap {
	return &Heap{slots: make([]heapSlot, 1, 64), max: maxObjects}
}

func (h *Heap) alloc(obj *Object) (Reference, error) {
	if h.max > 0 && h.live >= h.max {
		return NullRef, &ResourceError{Kind: HeapExhausted}
	}
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		idx = uint32(len(h.slots))
		h.slots = append(h.slots, heapSlot{gen: 1})
	}
	s := &h.slots[idx]
	s.obj = obj
	s.held = false
	h.live++
	if h.onAlloc != nil {
		h.onAlloc(obj.Kind, h.live)
	}
	return Reference{Index: idx, Gen: s.gen}, nil
}

// NewReference allocates an object of the given kind. size is the element
// count for arrays and ignored otherwise.
func (h *Heap) NewReference(kind ObjectKind, size int) (Reference, error) {
	if kind.IsArray() {
		return h.NewArray(kind, int32(size))
	}
	return h.alloc(&Object{Kind: kind})
}

// NewInstance allocates an instance of class with the given fields already
// set to their default values.
func (h *Heap) NewInstance(class string, fields map[string]Value) (Reference, error) {
	if fields == nil {
		fields = make(map[string]Value)
	}
	return h.alloc(&Object{Kind: KindInstance, Class: class, Fields: fields})
}

// NewString allocates a java/lang/String holding s.
func (h *Heap) NewString(s string) (Reference, error) {
	return h.alloc(&Object{Kind: KindString, Class: "java/lang/String", Str: s})
}

// NewArray allocates a primitive or reference array of n default elements.
func (h *Heap) NewArray(kind ObjectKind, n int32) (Reference, error) {
	if n < 0 {
		return NullRef, &BoundsError{Kind: NegativeArraySize, Index: n}
	}
	if !kind.IsArray() {
		return NullRef, fmt.Errorf("%s is not an array kind", kind)
	}
	elems := make([]Value, n)
	zero := kind.zero()
	for i := range elems {
		elems[i] = zero
	}
	return h.alloc(&Object{Kind: kind, Class: kind.descriptor(), Elems: elems})
}

// NewReferenceArray allocates an array of n nulls whose component type is
// the given class name or array descriptor.
func (h *Heap) NewReferenceArray(component string, n int32) (Reference, error) {
	ref, err := h.NewArray(KindReferenceArray, n)
	if err != nil {
		return ref, err
	}
	h.slots[ref.Index].obj.Class = "[" + componentDescriptor(component)
	return ref, nil
}

// NewMultiArray allocates a multi-dimensional array of type desc (e.g.
// [[I) with the given leading dimension lengths. All lengths and the heap
// limit are checked before anything is allocated; a failure leaves the heap
// as it was.
func (h *Heap) NewMultiArray(desc string, dims []int32) (Reference, error) {
	for _, n := range dims {
		if n < 0 {
			return NullRef, &BoundsError{Kind: NegativeArraySize, Index: n}
		}
	}
	if h.max > 0 {
		if remaining := h.max - h.live; multiArrayObjects(dims, remaining) > remaining {
			return NullRef, &ResourceError{Kind: HeapExhausted}
		}
	}
	var allocated []Reference
	ref, err := h.newMulti(desc, dims, &allocated)
	if err != nil {
		for _, r := range allocated {
			h.release(r.Index)
		}
		return NullRef, err
	}
	return ref, nil
}

// multiArrayObjects counts the arrays NewMultiArray would allocate, stopping
// once the count exceeds limit.
func multiArrayObjects(dims []int32, limit int) int {
	total, level := 0, 1
	for i := range dims {
		total += level
		if total > limit {
			return total
		}
		if i < len(dims)-1 {
			level *= int(dims[i])
			if level > limit {
				return limit + 1
			}
		}
	}
	return total
}

func (h *Heap) newMulti(desc string, dims []int32, allocated *[]Reference) (Reference, error) {
	elem := desc[1:]
	if len(dims) == 1 {
		var ref Reference
		var err error
		if kind, ok := arrayKindForDescriptor(elem); ok {
			ref, err = h.NewArray(kind, dims[0])
		} else {
			ref, err = h.NewReferenceArray(elem, dims[0])
		}
		if err == nil {
			*allocated = append(*allocated, ref)
		}
		return ref, err
	}
	outer, err := h.NewReferenceArray(elem, dims[0])
	if err != nil {
		return outer, err
	}
	*allocated = append(*allocated, outer)
	arr := h.slots[outer.Index].obj
	for i := range arr.Elems {
		inner, err := h.newMulti(elem, dims[1:], allocated)
		if err != nil {
			return NullRef, err
		}
		arr.Elems[i] = Ref(inner)
	}
	return outer, nil
}

func (h *Heap) slot(ref Reference) (*heapSlot, error) {
	if ref.IsNull() {
		return nil, &ResourceError{Kind: NullReference}
	}
	if ref.Index == 0 || int(ref.Index) >= len(h.slots) || ref.Gen == 0 {
		return nil, &ResourceError{Kind: InvalidReference, Ref: ref}
	}
	return &h.slots[ref.Index], nil
}

// Lookup resolves ref to its object.
func (h *Heap) Lookup(ref Reference) (*Object, error) {
	s, err := h.slot(ref)
	if err != nil {
		return nil, err
	}
	if s.gen != ref.Gen || s.obj == nil {
		if ref.Gen > s.gen {
			return nil, &ResourceError{Kind: InvalidReference, Ref: ref}
		}
		return nil, &ResourceError{Kind: UseAfterFree, Ref: ref}
	}
	return s.obj, nil
}

// Delete releases ref. Releasing it again is a DoubleFree; copies of the
// handle are released with it.
func (h *Heap) Delete(ref Reference) error {
	s, err := h.slot(ref)
	if err != nil {
		return err
	}
	if s.gen != ref.Gen || s.obj == nil {
		if ref.Gen > s.gen {
			return &ResourceError{Kind: InvalidReference, Ref: ref}
		}
		return &ResourceError{Kind: DoubleFree, Ref: ref}
	}
	h.release(ref.Index)
	return nil
}

func (h *Heap) release(idx uint32) {
	s := &h.slots[idx]
	s.obj = nil
	s.held = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	h.free = append(h.free, idx)
	h.live--
	h.released++
	if h.onRelease != nil {
		h.onRelease(h.live)
	}
}

// hold marks ref as owned by the VM, so it is not reported as a leak.
func (h *Heap) hold(ref Reference) {
	if s, err := h.slot(ref); err == nil && s.gen == ref.Gen && s.obj != nil {
		s.held = true
	}
}

// IsHeld reports whether ref is a live VM-owned reference.
func (h *Heap) IsHeld(ref Reference) bool {
	s, err := h.slot(ref)
	return err == nil && s.gen == ref.Gen && s.obj != nil && s.held
}

// Live returns the number of live objects, VM-held ones included.
func (h *Heap) Live() int {
	return h.live
}

// Released returns how many references have been released so far.
func (h *Heap) Released() int {
	return h.released
}

// Outstanding lists live program references in slot order.
func (h *Heap) Outstanding() []Reference {
	var out []Reference
	for i := 1; i < len(h.slots); i++ {
		s := h.slots[i]
		if s.obj != nil && !s.held {
			out = append(out, Reference{Index: uint32(i), Gen: s.gen})
		}
	}
	return out
}

// Held returns the number of live VM-owned references.
func (h *Heap) Held() int {
	n := 0
	for i := 1; i < len(h.slots); i++ {
		if h.slots[i].obj != nil && h.slots[i].held {
			n++
		}
	}
	return n
}

// releaseAll frees every live object and returns how many were freed.
func (h *Heap) releaseAll() int {
	n := 0
	for i := 1; i < len(h.slots); i++ {
		if h.slots[i].obj != nil {
			h.release(uint32(i))
			n++
		}
	}
	return n
}
