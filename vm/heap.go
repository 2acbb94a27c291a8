package vm

// ---------------------------------------------------------------------------
// Heap: arena cells, rooting, mark/sweep collection
// ---------------------------------------------------------------------------

// Ref is a heap reference: one plus the arena index of a cell. The zero
// Ref is null. Collectible state is addressed exclusively through Refs;
// raw pointers obtained from the arena must not be held across a call
// that may allocate, because the collection it can trigger may sweep the
// cell. Values that must survive an allocating call go through handles.
type Ref uint32

// NullRef is the absent heap reference.
const NullRef Ref = 0

// GCObject is implemented by every kind of cell the heap manages.
type GCObject interface {
	// trace marks the cell's outgoing strong references.
	trace(a *RootAcceptor)
}

// finalizer is implemented by cells that tear down non-heap state when
// swept.
type finalizer interface {
	finalize(rt *Runtime)
}

// RootSource is a producer of GC roots, registered with the heap for its
// lifetime. The collector invokes all three entry points once per pass;
// the mutator never calls them directly.
type RootSource interface {
	// MarkRoots visits strong roots. markLongLived additionally covers
	// roots that live for the source's whole lifetime and would be
	// wasteful to re-mark on partial passes.
	MarkRoots(a *RootAcceptor, markLongLived bool)
	// MarkWeakRoots visits weak references, clearing any whose target
	// did not survive marking.
	MarkWeakRoots(w *WeakAcceptor)
	// MarkDomainRef visits the source's domain back-reference weakly.
	MarkDomainRef(w *WeakAcceptor)
}

type cell struct {
	obj  GCObject
	mark uint32 // epoch of the last pass that reached the cell
}

// HeapStats describes collector activity.
type HeapStats struct {
	Live        int
	Capacity    int
	Threshold   int
	Collections uint64
	LastSwept   int
}

// Heap is the runtime's object arena and collector. All mutation happens
// on the single mutator goroutine; collections run synchronously inside
// allocating operations.
type Heap struct {
	rt      *Runtime
	symbols *SymbolTable

	cells []cell
	free  []Ref
	live  int
	epoch uint32

	threshold int
	growth    float64
	maxLive   int
	stress    bool

	roots  []RootSource
	scopes []*HandleScope

	stats HeapStats
}

func newHeap(cfg Config) *Heap {
	return &Heap{
		threshold: cfg.HeapInitialThreshold,
		growth:    cfg.HeapGrowthFactor,
		maxLive:   cfg.HeapMaxCells,
		stress:    cfg.GCStress,
	}
}

// AddRoot registers a root source for the rest of its life.
func (h *Heap) AddRoot(src RootSource) {
	h.roots = append(h.roots, src)
}

// RemoveRoot deregisters a root source.
func (h *Heap) RemoveRoot(src RootSource) {
	for i, r := range h.roots {
		if r == src {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// Alloc places obj in the arena and returns its Ref. It may run a
// collection first and fails with an out-of-memory Exception when the
// live-cell limit cannot be met even after collecting.
func (h *Heap) Alloc(obj GCObject) (Ref, error) {
	if h.stress || h.live >= h.threshold {
		h.Collect()
	}
	if h.maxLive > 0 && h.live >= h.maxLive {
		h.Collect()
		if h.live >= h.maxLive {
			return NullRef, NewException(ExcOutOfMemory,
				"heap cell limit reached", nil)
		}
	}

	var r Ref
	if n := len(h.free); n > 0 {
		r = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.cells = append(h.cells, cell{})
		r = Ref(len(h.cells))
	}
	c := &h.cells[r-1]
	c.obj = obj
	c.mark = h.epoch
	h.live++
	return r, nil
}

// Get returns the cell behind r, or nil when r is null or the cell has
// been swept. The result must not be held across an allocating call.
func (h *Heap) Get(r Ref) GCObject {
	if r == NullRef {
		return nil
	}
	if int(r) > len(h.cells) {
		panic("vm: ref outside arena")
	}
	return h.cells[r-1].obj
}

// alive reports whether r survived the pass currently being swept. Only
// meaningful during a collection; the mutator checks liveness by
// re-reading through a handle instead.
func (h *Heap) alive(r Ref) bool {
	if r == NullRef || int(r) > len(h.cells) {
		return false
	}
	c := &h.cells[r-1]
	return c.obj != nil && c.mark == h.epoch
}

// Collect runs one full mark/sweep pass.
func (h *Heap) Collect() {
	h.epoch++
	acc := &RootAcceptor{h: h}

	// Strong phase: handle scopes, then registered root sources. Every
	// pass is a full pass, so long-lived roots are always included.
	for _, scope := range h.scopes {
		for _, v := range scope.values {
			acc.AcceptValue(v)
		}
	}
	for _, src := range h.roots {
		src.MarkRoots(acc, true)
	}
	if h.symbols != nil {
		h.symbols.markPredefined(acc)
	}

	// Weak phase: clear references to cells the strong phase missed.
	w := &WeakAcceptor{h: h}
	for _, src := range h.roots {
		src.MarkWeakRoots(w)
		src.MarkDomainRef(w)
	}

	if h.symbols != nil {
		h.symbols.sweep()
	}

	swept := 0
	for i := range h.cells {
		c := &h.cells[i]
		if c.obj == nil || c.mark == h.epoch {
			continue
		}
		if f, ok := c.obj.(finalizer); ok {
			f.finalize(h.rt)
		}
		c.obj = nil
		h.free = append(h.free, Ref(i+1))
		h.live--
		swept++
	}

	if grown := int(float64(h.live) * h.growth); grown > h.threshold {
		h.threshold = grown
	}
	h.stats.Collections++
	h.stats.LastSwept = swept
	log.Debugf("collection %d swept %d cells, %d live", h.stats.Collections, swept, h.live)
}

// Stats returns a snapshot of collector activity.
func (h *Heap) Stats() HeapStats {
	s := h.stats
	s.Live = h.live
	s.Capacity = len(h.cells)
	s.Threshold = h.threshold
	return s
}

// ---------------------------------------------------------------------------
// Acceptors
// ---------------------------------------------------------------------------

// RootAcceptor marks strong roots during a collection pass.
type RootAcceptor struct {
	h *Heap
}

// AcceptRef marks the cell behind r and traces into it once per pass.
func (a *RootAcceptor) AcceptRef(r Ref) {
	if r == NullRef {
		return
	}
	c := &a.h.cells[r-1]
	if c.obj == nil || c.mark == a.h.epoch {
		return
	}
	c.mark = a.h.epoch
	c.obj.trace(a)
}

// AcceptValue marks the heap reference or symbol inside a value.
func (a *RootAcceptor) AcceptValue(v Value) {
	switch {
	case v.IsRef():
		a.AcceptRef(v.AsRef())
	case v.IsSymbol():
		a.AcceptSymbol(v.AsSymbol())
	}
}

// AcceptSymbol marks a symbol-table entry, keeping the entry and its
// interned heap string alive through the sweep.
func (a *RootAcceptor) AcceptSymbol(id SymbolID) {
	if a.h.symbols != nil {
		a.h.symbols.markSymbol(a, id)
	}
}

// WeakAcceptor visits weak references during a collection pass.
type WeakAcceptor struct {
	h *Heap
}

// Alive reports whether the target survived the strong phase. It is the
// liveness check weak-holding code performs during the pass.
func (w *WeakAcceptor) Alive(r Ref) bool { return w.h.alive(r) }

// AcceptWeakRef clears the slot when its target did not survive.
func (w *WeakAcceptor) AcceptWeakRef(r *Ref) {
	if *r != NullRef && !w.Alive(*r) {
		*r = NullRef
	}
}
