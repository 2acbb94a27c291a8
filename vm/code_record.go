package vm

import (
	"fmt"

	"github.com/chazu/fennec/bytecode"
)

// PropertyCacheEntry is one inline-cache slot of a code record. Shape is
// the hidden class the entry was recorded against and Slot the property
// slot it resolved to. The collector clears Shape when the hidden class
// dies, so a stale entry reads as a miss rather than a dangling index.
type PropertyCacheEntry struct {
	Shape Ref
	Slot  uint32
}

// CodeRecord is the per-function execution record of a binding: header
// and bytecode access plus the read and write property caches. Records
// are owned by exactly one ModuleBinding and all static data is read
// through it, so swapping the binding's provider (lazy initialization)
// retargets every record at once.
type CodeRecord struct {
	owner      *ModuleBinding
	functionID uint32
	readCache  []PropertyCacheEntry
	writeCache []PropertyCacheEntry
	released   bool
}

func newCodeRecord(owner *ModuleBinding, functionID uint32) *CodeRecord {
	h := owner.provider.FunctionHeader(functionID)
	return &CodeRecord{
		owner:      owner,
		functionID: functionID,
		readCache:  make([]PropertyCacheEntry, h.ReadCacheSize),
		writeCache: make([]PropertyCacheEntry, h.WriteCacheSize),
	}
}

// Binding returns the owning module binding.
func (c *CodeRecord) Binding() *ModuleBinding { return c.owner }

// FunctionID returns the function's index in the owner's provider.
func (c *CodeRecord) FunctionID() uint32 { return c.functionID }

// Header returns the function header, read through the owner's current
// provider.
func (c *CodeRecord) Header() bytecode.FunctionHeader {
	return c.owner.provider.FunctionHeader(c.functionID)
}

// IsCompiled reports whether the function's body is resident. A record
// created against a deferred body flips to compiled when the owner's
// provider is swapped; the record itself never changes.
func (c *CodeRecord) IsCompiled() bool {
	return !c.owner.provider.IsFunctionLazy(c.functionID)
}

// Bytecode returns the function body. Panics while the body is still
// deferred; call EnsureCompiled first.
func (c *CodeRecord) Bytecode() []byte {
	if !c.IsCompiled() {
		panic("vm: bytecode of an uncompiled function")
	}
	return c.owner.provider.FunctionBytecode(c.functionID)
}

// EnsureCompiled makes the function's body resident: on first need it
// runs the owner's compiler and initializes the owning lazy child with
// the result. Compiled records return nil immediately. Compiler errors
// surface as a compile-failure Exception.
func (c *CodeRecord) EnsureCompiled(rt *Runtime) error {
	if c.IsCompiled() {
		return nil
	}
	view, ok := c.owner.provider.(*bytecode.LazyFunctionProvider)
	if !ok {
		panic("vm: uncompiled record without a lazy view")
	}
	unit, err := view.Compile()
	if err != nil {
		return NewException(ExcCompileFailure,
			fmt.Sprintf("function %d of %s", c.functionID, c.owner.SourceURL()), err)
	}
	return c.owner.InitializeLazy(rt, bytecode.NewUnitProvider(unit))
}

// Name returns the function's name symbol.
func (c *CodeRecord) Name() SymbolID {
	return c.owner.mapStringID(c.Header().NameIndex)
}

// NameString returns the function's name as a Go string.
func (c *CodeRecord) NameString(rt *Runtime) string {
	return rt.symbols.StringOf(c.Name())
}

// IsStrict reports whether the function body is strict-mode code.
func (c *CodeRecord) IsStrict() bool {
	return c.Header().Flags&bytecode.FunctionStrict != 0
}

// ParamCount returns the declared parameter count.
func (c *CodeRecord) ParamCount() uint32 { return c.Header().ParamCount }

// FrameSize returns the register frame size.
func (c *CodeRecord) FrameSize() uint32 { return c.Header().FrameSize }

// RecordRead fills a read-cache slot.
func (c *CodeRecord) RecordRead(i uint32, shape Ref, slot uint32) {
	c.readCache[i] = PropertyCacheEntry{Shape: shape, Slot: slot}
}

// LookupRead consults a read-cache slot. A hit requires the cached shape
// to match; entries cleared by the collector never match a live shape.
func (c *CodeRecord) LookupRead(i uint32, shape Ref) (uint32, bool) {
	e := c.readCache[i]
	if e.Shape != shape || e.Shape == NullRef {
		return 0, false
	}
	return e.Slot, true
}

// RecordWrite fills a write-cache slot.
func (c *CodeRecord) RecordWrite(i uint32, shape Ref, slot uint32) {
	c.writeCache[i] = PropertyCacheEntry{Shape: shape, Slot: slot}
}

// LookupWrite consults a write-cache slot.
func (c *CodeRecord) LookupWrite(i uint32, shape Ref) (uint32, bool) {
	e := c.writeCache[i]
	if e.Shape != shape || e.Shape == NullRef {
		return 0, false
	}
	return e.Slot, true
}

// ReadCacheSize returns the number of read-cache slots.
func (c *CodeRecord) ReadCacheSize() int { return len(c.readCache) }

// WriteCacheSize returns the number of write-cache slots.
func (c *CodeRecord) WriteCacheSize() int { return len(c.writeCache) }

// resizeCaches re-sizes the property caches from the current header.
// Runs when the owner's provider swap gives the function its real
// header; any prior entries are dropped.
func (c *CodeRecord) resizeCaches() {
	h := c.Header()
	c.readCache = make([]PropertyCacheEntry, h.ReadCacheSize)
	c.writeCache = make([]PropertyCacheEntry, h.WriteCacheSize)
}

// markCachedShapesWeak registers every cached shape with the weak phase
// of a collection so dead hidden classes drop out of the caches.
func (c *CodeRecord) markCachedShapesWeak(w *WeakAcceptor) {
	for i := range c.readCache {
		w.AcceptWeakRef(&c.readCache[i].Shape)
	}
	for i := range c.writeCache {
		w.AcceptWeakRef(&c.writeCache[i].Shape)
	}
}

// memoryFootprint counts the record's cache storage in bytes.
func (c *CodeRecord) memoryFootprint() uint64 {
	const entrySize = 8
	return uint64(len(c.readCache)+len(c.writeCache)) * entrySize
}

// release drops the record's cache storage. Each record is released
// exactly once, by the binding that owns it.
func (c *CodeRecord) release() {
	if c.released {
		panic("vm: code record released twice")
	}
	c.released = true
	c.readCache = nil
	c.writeCache = nil
}

func (c *CodeRecord) String() string {
	state := "compiled"
	if !c.IsCompiled() {
		state = "lazy"
	}
	return fmt.Sprintf("record %d of %s (%s)", c.functionID, c.owner.SourceURL(), state)
}
