package vm

// Config tunes a Runtime. The zero value is usable; zero fields take
// defaults.
type Config struct {
	// HeapInitialThreshold is the live-cell count that triggers the
	// first collection. Default 1024.
	HeapInitialThreshold int
	// HeapGrowthFactor scales the threshold after each collection.
	// Default 2.
	HeapGrowthFactor float64
	// HeapMaxCells caps live cells; allocation past the cap fails with
	// an out-of-memory Exception. 0 means unbounded.
	HeapMaxCells int
	// GCStress runs a collection before every allocation.
	GCStress bool
	// EagerRecords builds a record for every compiled function at bind
	// time instead of on first call. Functions whose bodies the compiler
	// deferred still materialize lazily.
	EagerRecords bool
	// AdviseSequential, AdviseWillNeed and AdviseRandom forward the
	// matching string-storage access hints to providers around interning.
	// All three are experiments and default off.
	AdviseSequential bool
	AdviseWillNeed   bool
	AdviseRandom     bool
}

func (c Config) withDefaults() Config {
	if c.HeapInitialThreshold <= 0 {
		c.HeapInitialThreshold = 1024
	}
	if c.HeapGrowthFactor <= 1 {
		c.HeapGrowthFactor = 2
	}
	return c
}

// Runtime owns the heap, the symbol table and the binding registry. All
// operations run on the single mutator goroutine.
type Runtime struct {
	cfg      Config
	heap     *Heap
	symbols  *SymbolTable
	bindings []*ModuleBinding
	shutdown bool
}

// NewRuntime builds a runtime with its own symbol table.
func NewRuntime(cfg Config) *Runtime {
	return NewRuntimeWithSymbols(cfg, NewSymbolTable())
}

// NewRuntimeWithSymbols builds a runtime around a symbol table the
// embedder constructed up front, typically to Reserve capacity before
// any binding exists. The table's heap strings live in this runtime's
// arena; a table serves one runtime at a time.
func NewRuntimeWithSymbols(cfg Config, symbols *SymbolTable) *Runtime {
	cfg = cfg.withDefaults()
	rt := &Runtime{cfg: cfg, heap: newHeap(cfg), symbols: symbols}
	rt.heap.rt = rt
	rt.heap.symbols = symbols
	return rt
}

// Symbols returns the runtime's symbol table.
func (rt *Runtime) Symbols() *SymbolTable { return rt.symbols }

// Heap returns the runtime's arena.
func (rt *Runtime) Heap() *Heap { return rt.heap }

// NewHandleScope opens a handle scope on the runtime's heap.
func (rt *Runtime) NewHandleScope() *HandleScope { return rt.heap.NewHandleScope() }

// Collect runs a full collection pass.
func (rt *Runtime) Collect() { rt.heap.Collect() }

// HeapStats returns a snapshot of arena counters.
func (rt *Runtime) HeapStats() HeapStats { return rt.heap.Stats() }

func (rt *Runtime) registerBinding(b *ModuleBinding) {
	rt.bindings = append(rt.bindings, b)
	rt.heap.AddRoot(b)
}

func (rt *Runtime) unregisterBinding(b *ModuleBinding) {
	for i, x := range rt.bindings {
		if x == b {
			rt.bindings = append(rt.bindings[:i], rt.bindings[i+1:]...)
			break
		}
	}
	rt.heap.RemoveRoot(b)
}

// Bindings returns the registered bindings, registration-ordered.
func (rt *Runtime) Bindings() []*ModuleBinding {
	out := make([]*ModuleBinding, len(rt.bindings))
	copy(out, rt.bindings)
	return out
}

// Shutdown tears the runtime down: every binding first drops the state
// it borrows, then all bindings are destroyed. Idempotent; any other
// use of the runtime afterwards is invalid.
func (rt *Runtime) Shutdown() {
	if rt.shutdown {
		return
	}
	rt.shutdown = true
	for _, b := range rt.Bindings() {
		b.PrepareForRuntimeShutdown()
	}
	for _, b := range rt.Bindings() {
		b.destroy(rt)
	}
	log.Infof("runtime shut down after %d collections", rt.heap.stats.Collections)
}
