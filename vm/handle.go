package vm

// ---------------------------------------------------------------------------
// Handles: rooted values that survive allocating calls
// ---------------------------------------------------------------------------

// HandleScope roots a set of values for a lexical region of mutator
// code. Open a scope before a sequence of allocating operations, take
// handles for every value that must survive them, and close it on the
// way out; scopes nest and must close in stack order.
type HandleScope struct {
	h      *Heap
	values []Value
	closed bool
}

// Marker remembers a scope's fill level so loop bodies can flush the
// handles they accumulate per iteration.
type Marker int

// NewHandleScope pushes a scope onto the rooting stack.
func (h *Heap) NewHandleScope() *HandleScope {
	s := &HandleScope{h: h}
	h.scopes = append(h.scopes, s)
	return s
}

// Close pops the scope. Closing out of stack order is a programming
// error.
func (s *HandleScope) Close() {
	if s.closed {
		panic("vm: handle scope closed twice")
	}
	n := len(s.h.scopes)
	if n == 0 || s.h.scopes[n-1] != s {
		panic("vm: handle scopes must close in stack order")
	}
	s.h.scopes = s.h.scopes[:n-1]
	s.closed = true
	s.values = nil
}

// Handle roots v in the scope.
func (s *HandleScope) Handle(v Value) Handle {
	if s.closed {
		panic("vm: handle in closed scope")
	}
	s.values = append(s.values, v)
	return Handle{scope: s, index: len(s.values) - 1}
}

// HandleRef roots a heap reference.
func (s *HandleScope) HandleRef(r Ref) Handle {
	return s.Handle(FromRef(r))
}

// Marker returns the current fill level.
func (s *HandleScope) Marker() Marker { return Marker(len(s.values)) }

// FlushToMarker drops every handle taken after the marker, keeping a
// loop's scope from growing with its iteration count.
func (s *HandleScope) FlushToMarker(m Marker) {
	if int(m) > len(s.values) {
		panic("vm: flush past scope end")
	}
	s.values = s.values[:m]
}

// Handle is a rooted value. It stays valid until its scope closes or is
// flushed past, surviving any collections in between.
type Handle struct {
	scope *HandleScope
	index int
}

// Value reads the rooted value.
func (h Handle) Value() Value {
	if h.scope.closed || h.index >= len(h.scope.values) {
		panic("vm: handle outlived its scope")
	}
	return h.scope.values[h.index]
}

// Set replaces the rooted value, reusing one handle across iterations.
func (h Handle) Set(v Value) {
	if h.scope.closed || h.index >= len(h.scope.values) {
		panic("vm: handle outlived its scope")
	}
	h.scope.values[h.index] = v
}

// Ref reads the rooted value as a heap reference.
func (h Handle) Ref() Ref { return h.Value().AsRef() }
