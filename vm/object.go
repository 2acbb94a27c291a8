package vm

// Object represents a heap-allocated plain object: a shape reference
// plus one value slot per property the shape describes. Template
// objects cached by module bindings are Objects; the full property
// model lives above this layer.
type Object struct {
	shape Ref
	slots []Value
}

// NewObject allocates an object of the given shape with every slot
// undefined. The shape must be rooted by the caller across the call.
func NewObject(rt *Runtime, shape Ref, numSlots int) (Ref, error) {
	obj := &Object{shape: shape, slots: make([]Value, numSlots)}
	for i := range obj.slots {
		obj.slots[i] = Undefined
	}
	return rt.heap.Alloc(obj)
}

// Shape returns the object's hidden class reference.
func (o *Object) Shape() Ref { return o.shape }

// SlotCount returns the number of value slots.
func (o *Object) SlotCount() int { return len(o.slots) }

// Slot reads slot i. Panics outside the slot range.
func (o *Object) Slot(i int) Value { return o.slots[i] }

// SetSlot writes slot i. Panics outside the slot range.
func (o *Object) SetSlot(i int, v Value) { o.slots[i] = v }

func (o *Object) trace(a *RootAcceptor) {
	a.AcceptRef(o.shape)
	for _, v := range o.slots {
		a.AcceptValue(v)
	}
}

// ObjectAt resolves a Ref to an *Object. Panics when the cell holds a
// different kind. The pointer must not be held across an allocating
// call.
func (rt *Runtime) ObjectAt(r Ref) *Object {
	obj, ok := rt.heap.Get(r).(*Object)
	if !ok {
		panic("vm: ref is not an object")
	}
	return obj
}

// StringObject is an immutable heap string, the realized form of a
// string-table entry or an interned identifier's display string.
type StringObject struct {
	s string
}

// NewStringObject allocates a heap string.
func NewStringObject(rt *Runtime, s string) (Ref, error) {
	return rt.heap.Alloc(&StringObject{s: s})
}

// Str returns the string content.
func (s *StringObject) Str() string { return s.s }

func (s *StringObject) trace(*RootAcceptor) {}

// StringAt resolves a Ref to a *StringObject. Panics when the cell
// holds a different kind.
func (rt *Runtime) StringAt(r Ref) *StringObject {
	s, ok := rt.heap.Get(r).(*StringObject)
	if !ok {
		panic("vm: ref is not a string")
	}
	return s
}
