package vm

import (
	"fmt"

	"github.com/chazu/fennec/bytecode"
)

// BindingFlags adjust how a binding treats its provider.
type BindingFlags uint32

const (
	// FlagPersistent marks a binding whose provider storage outlives the
	// runtime. Symbol registration for such a binding may keep
	// non-owning views into that storage instead of copying.
	FlagPersistent BindingFlags = 1 << iota
)

// ModuleBinding ties one bytecode provider into a runtime: it owns the
// per-function execution records, the string-index-to-symbol map, and
// the literal caches, and it participates in every collection as a root
// source. A binding belongs to exactly one Domain, which owns its
// lifetime; the back-reference from binding to domain is weak.
type ModuleBinding struct {
	rt        *Runtime
	domain    Ref
	provider  bytecode.Provider
	flags     BindingFlags
	sourceURL string

	// functionMap has one slot per provider function. Slots fill on
	// first request; a filled slot is never reassigned, so record
	// identity is stable for the binding's lifetime.
	functionMap []*CodeRecord

	// stringIDMap maps provider string indices to interned symbols.
	// KindString entries hold InvalidSymbol.
	stringIDMap []SymbolID

	literalShapes   map[uint32]Ref // weak: slots cleared when the shape dies
	templateObjects map[uint32]Ref // strong

	released bool
}

// NewModuleBinding binds a provider into rt under the given domain.
// Construction order is fixed: register with the runtime, attach to the
// domain, intern the statically known strings, size the function map,
// then import the CommonJS module table. A CommonJS or interning
// failure returns a *Exception, but the partially constructed binding
// stays registered and is reclaimed at shutdown or when its domain is
// collected.
//
// sourceURL overrides the provider's when non-empty. The domain must be
// kept rooted by the caller for the duration of the call. A nil
// provider yields an empty binding that is initialized later.
func NewModuleBinding(rt *Runtime, domain Ref, p bytecode.Provider, flags BindingFlags, sourceURL string) (*ModuleBinding, error) {
	if sourceURL == "" && p != nil {
		sourceURL = p.SourceURL()
	}
	if p != nil && p.Persistent() {
		flags |= FlagPersistent
	}
	b := &ModuleBinding{
		rt:              rt,
		domain:          domain,
		provider:        p,
		flags:           flags,
		sourceURL:       sourceURL,
		literalShapes:   make(map[uint32]Ref),
		templateObjects: make(map[uint32]Ref),
	}
	rt.registerBinding(b)
	rt.DomainAt(domain).addBinding(b)
	if p == nil {
		return b, nil
	}

	if err := b.materializeIdentifiers(rt); err != nil {
		return nil, err
	}
	b.functionMap = make([]*CodeRecord, p.FunctionCount())
	if rt.cfg.EagerRecords {
		for i := uint32(0); i < p.FunctionCount(); i++ {
			if !p.IsFunctionLazy(i) {
				b.CodeRecordAt(rt, i)
			}
		}
	}

	if len(p.ModuleTable()) > 0 {
		if err := rt.DomainAt(b.domain).ImportModuleTable(rt, b, p.ModuleTableOffset()); err != nil {
			return nil, err
		}
	}
	log.Debugf("bound %s: %d functions, %d strings", b.sourceURL, p.FunctionCount(), p.StringCount())
	return b, nil
}

// Domain returns the owning domain, NullRef once it has been collected.
func (b *ModuleBinding) Domain() Ref { return b.domain }

// Provider returns the binding's current provider.
func (b *ModuleBinding) Provider() bytecode.Provider { return b.provider }

// SourceURL returns the source the binding was compiled from.
func (b *ModuleBinding) SourceURL() string { return b.sourceURL }

// Persistent reports whether symbol registration may keep views into
// provider storage.
func (b *ModuleBinding) Persistent() bool { return b.flags&FlagPersistent != 0 }

// IsLazyChild reports whether the binding is the deferred-function view
// split from a parent, still awaiting its compiled unit.
func (b *ModuleBinding) IsLazyChild() bool {
	return b.provider != nil && b.provider.Kind() == bytecode.ProviderLazyFunction
}

// materializeIdentifiers walks the provider's string kind table once and
// fills stringIDMap. String entries are skipped, identifier entries are
// interned with the hash precomputed in the translation array when one
// is present, and predefined entries map their raw translation straight
// to the fixed well-known symbol.
func (b *ModuleBinding) materializeIdentifiers(rt *Runtime) error {
	p := b.provider
	sect := startSection("intern " + b.sourceURL)
	defer sect.end()

	count := p.StringCount()
	if count == 0 {
		// A unit with no string table still gets index 0: the empty
		// string, interned like any identifier.
		sym, err := b.mapString(rt, bytecode.ViewString(""), bytecode.HashString(""))
		if err != nil {
			return err
		}
		b.stringIDMap = append(b.stringIDMap, sym)
		return nil
	}

	if rt.cfg.AdviseWillNeed {
		p.Advise(bytecode.AdviseWillNeed)
	}
	if rt.cfg.AdviseSequential {
		p.Advise(bytecode.AdviseSequential)
	}

	translations := p.IdentifierTranslations()
	haveTranslations := len(translations) != 0

	b.stringIDMap = make([]SymbolID, 0, count)

	// Interning allocates; handles are flushed each iteration so the
	// scope stays bounded over large string tables.
	scope := rt.NewHandleScope()
	defer scope.Close()
	marker := scope.Marker()

	var strID, trnID uint32
	for _, run := range p.StringKinds() {
		switch run.Kind {
		case bytecode.KindString:
			for i := uint32(0); i < run.Count; i++ {
				b.stringIDMap = append(b.stringIDMap, InvalidSymbol)
			}
			strID += run.Count

		case bytecode.KindIdentifier:
			for i := uint32(0); i < run.Count; i++ {
				view := p.StringView(strID)
				var hash uint32
				if haveTranslations {
					hash = translations[trnID]
					trnID++
				} else {
					hash = view.Hash()
				}
				sym, err := b.mapString(rt, view, hash)
				if err != nil {
					return err
				}
				scope.Handle(FromSymbol(sym))
				b.stringIDMap = append(b.stringIDMap, sym)
				scope.FlushToMarker(marker)
				strID++
			}

		case bytecode.KindPredefined:
			if !haveTranslations {
				panic("vm: predefined string entry without a translation table")
			}
			for i := uint32(0); i < run.Count; i++ {
				b.stringIDMap = append(b.stringIDMap, rt.symbols.Predefined(translations[trnID]))
				trnID++
				strID++
			}
		}
	}
	if strID != count {
		panic("vm: string kind table does not cover the string table")
	}
	if haveTranslations && int(trnID) != len(translations) {
		panic("vm: unconsumed identifier translations")
	}

	if rt.cfg.AdviseRandom {
		p.Advise(bytecode.AdviseRandom)
	}
	return nil
}

// mapString registers one provider string with the runtime's symbol
// table. Persistent bindings register a non-allocating view into
// provider storage; everything else interns an owned copy, which may
// collect.
func (b *ModuleBinding) mapString(rt *Runtime, view bytecode.StringView, hash uint32) (SymbolID, error) {
	if b.Persistent() {
		return rt.symbols.RegisterLazy(view, hash), nil
	}
	return rt.symbols.Intern(rt, view.String(), hash)
}

// appendMappedString interns one extra string and appends it to the
// binding's map, returning the new string index. Test support.
func (b *ModuleBinding) appendMappedString(rt *Runtime, view bytecode.StringView, hash uint32) (uint32, error) {
	sym, err := b.mapString(rt, view, hash)
	if err != nil {
		return 0, err
	}
	b.stringIDMap = append(b.stringIDMap, sym)
	return uint32(len(b.stringIDMap) - 1), nil
}

// mapStringID resolves a provider string index to its interned symbol.
// Panics for indices that were never interned: KindString entries and
// anything out of range.
func (b *ModuleBinding) mapStringID(i uint32) SymbolID {
	if int(i) >= len(b.stringIDMap) {
		panic("vm: string index out of range")
	}
	id := b.stringIDMap[i]
	if !id.IsValid() {
		panic("vm: string index was not interned")
	}
	return id
}

// SymbolForString returns the interned symbol for a provider string
// index.
func (b *ModuleBinding) SymbolForString(i uint32) SymbolID { return b.mapStringID(i) }

// StringForIndex fetches a string-table entry straight from provider
// storage, without touching the VM heap. ok is false for wide or
// non-ASCII entries; tooling falls back to the symbol table for those.
func (b *ModuleBinding) StringForIndex(i uint32) (string, bool) {
	if b.provider == nil || i >= b.provider.StringCount() {
		return "", false
	}
	view := b.provider.StringView(i)
	if !view.IsASCII() {
		return "", false
	}
	return view.String(), true
}

// CodeRecordAt returns the execution record for function i, creating it
// on first request. A record for a deferred body is a stub owned by a
// child binding and reads as uncompiled until EnsureCompiled; a second
// call for the same index is a pure lookup either way.
func (b *ModuleBinding) CodeRecordAt(rt *Runtime, i uint32) *CodeRecord {
	if rec := b.functionMap[i]; rec != nil {
		return rec
	}
	var rec *CodeRecord
	if b.provider.IsFunctionLazy(i) {
		child := newLazyChildBinding(rt, b, i)
		rec = child.functionMap[0]
	} else {
		rec = newCodeRecord(b, i)
	}
	b.functionMap[i] = rec
	return rec
}

// newLazyChildBinding splits a deferred function out of parent into its
// own binding. The child shares the parent's container through a
// single-function view, maps exactly the function's name at string
// index 0, and holds the stub record at function-map slot 0 until the
// body is compiled.
func newLazyChildBinding(rt *Runtime, parent *ModuleBinding, functionID uint32) *ModuleBinding {
	nameSym := parent.mapStringID(parent.provider.FunctionHeader(functionID).NameIndex)
	child := &ModuleBinding{
		rt:              rt,
		domain:          parent.domain,
		provider:        bytecode.NewLazyFunctionProvider(parent.provider, functionID),
		flags:           parent.flags &^ FlagPersistent,
		sourceURL:       parent.sourceURL,
		literalShapes:   make(map[uint32]Ref),
		templateObjects: make(map[uint32]Ref),
	}
	rt.registerBinding(child)
	rt.DomainAt(parent.domain).addBinding(child)
	child.stringIDMap = []SymbolID{nameSym}
	child.functionMap = []*CodeRecord{newCodeRecord(child, functionID)}
	return child
}

// InitializeLazy swaps a lazy child's single-function view for the
// compiled unit's provider: interning re-runs against the real string
// table, the function map grows to the unit's function count, and the
// stub record moves from slot 0 to its global function index. The
// record itself is untouched, so holders of it see it flip to compiled
// in place. Panics when called on a binding that is not a lazy child or
// when the compiled unit disagrees with the deferred view.
func (b *ModuleBinding) InitializeLazy(rt *Runtime, compiled bytecode.Provider) error {
	view, ok := b.provider.(*bytecode.LazyFunctionProvider)
	if !ok {
		panic("vm: lazy initialization of a compiled binding")
	}
	if compiled == nil || compiled.Kind() != bytecode.ProviderUnit {
		panic("vm: lazy initialization needs a compiled unit provider")
	}
	gfi := compiled.GlobalFunctionIndex()
	if gfi != view.GlobalFunctionIndex() {
		panic("vm: compiled unit targets a different function")
	}
	if compiled.IsFunctionLazy(gfi) {
		panic("vm: compiled unit still reports the function lazy")
	}

	stub := b.functionMap[0]
	b.provider = compiled
	b.stringIDMap = nil
	if err := b.materializeIdentifiers(rt); err != nil {
		return err
	}

	if int(compiled.FunctionCount()) < len(b.functionMap) {
		panic("vm: compiled unit shrank the function table")
	}
	m := make([]*CodeRecord, compiled.FunctionCount())
	copy(m, b.functionMap)
	m[0] = nil
	if m[gfi] != nil {
		panic("vm: global function index already has a record")
	}
	m[gfi] = stub
	b.functionMap = m
	stub.resizeCaches()

	log.Debugf("initialized lazy %s: function %d, %d functions total",
		b.sourceURL, gfi, compiled.FunctionCount())
	return nil
}

// LazyName returns the deferred function's name symbol. Panics when the
// binding is not a lazy child or the name was never mapped.
func (b *ModuleBinding) LazyName() SymbolID {
	if !b.IsLazyChild() {
		panic("vm: lazy name of a compiled binding")
	}
	if len(b.stringIDMap) == 0 {
		panic("vm: lazy name not mapped")
	}
	return b.stringIDMap[0]
}

// LazyNameString reports the deferred function's name when it is
// representable in ASCII.
func (b *ModuleBinding) LazyNameString(rt *Runtime) (string, bool) {
	name := rt.symbols.StringOf(b.LazyName())
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			return "", false
		}
	}
	return name, true
}

// RegExpBytecode returns the compiled pattern for a regexp-table entry.
// Panics on an out-of-range ID.
func (b *ModuleBinding) RegExpBytecode(i uint32) []byte {
	if b.provider == nil || i >= b.provider.RegExpCount() {
		panic("vm: regexp index out of range")
	}
	return b.provider.RegExpBytecode(i)
}

// MemoryFootprint estimates the binding's off-VM-heap footprint in
// bytes: the function and string maps, both literal caches, and the
// property caches of the records it owns.
func (b *ModuleBinding) MemoryFootprint() int {
	const refEntry = 12
	n := len(b.functionMap)*8 + len(b.stringIDMap)*4
	n += (len(b.literalShapes) + len(b.templateObjects)) * refEntry
	for _, rec := range b.functionMap {
		if rec != nil && rec.owner == b {
			n += int(rec.memoryFootprint())
		}
	}
	return n
}

// MarkRoots contributes the binding's strong roots. Template objects
// are marked on every pass; interned symbols only when the pass covers
// long-lived roots.
func (b *ModuleBinding) MarkRoots(a *RootAcceptor, markLongLived bool) {
	for _, r := range b.templateObjects {
		a.AcceptRef(r)
	}
	if markLongLived {
		for _, id := range b.stringIDMap {
			a.AcceptSymbol(id)
		}
	}
}

// MarkWeakRoots visits the binding's weak state: property caches of the
// records it owns, and the literal shape cache, whose dead slots are
// deleted outright.
func (b *ModuleBinding) MarkWeakRoots(w *WeakAcceptor) {
	for _, rec := range b.functionMap {
		if rec != nil && rec.owner == b {
			rec.markCachedShapesWeak(w)
		}
	}
	for key, r := range b.literalShapes {
		if !w.Alive(r) {
			delete(b.literalShapes, key)
		}
	}
}

// MarkDomainRef visits the domain back-reference weakly.
func (b *ModuleBinding) MarkDomainRef(w *WeakAcceptor) {
	w.AcceptWeakRef(&b.domain)
}

// PrepareForRuntimeShutdown nulls the function-map slots the binding
// does not own. Owned records stay in place for destroy.
func (b *ModuleBinding) PrepareForRuntimeShutdown() {
	for i, rec := range b.functionMap {
		if rec != nil && rec.owner != b {
			b.functionMap[i] = nil
		}
	}
}

// destroy releases the records the binding owns and unregisters it from
// the runtime. Safe to reach from both runtime shutdown and domain
// finalization; only the first call acts.
func (b *ModuleBinding) destroy(rt *Runtime) {
	if b.released {
		return
	}
	b.released = true
	for _, rec := range b.functionMap {
		if rec != nil && rec.owner == b {
			rec.release()
		}
	}
	b.functionMap = nil
	b.stringIDMap = nil
	b.literalShapes = nil
	b.templateObjects = nil
	rt.unregisterBinding(b)
}

func (b *ModuleBinding) String() string {
	kind := "unit"
	if b.IsLazyChild() {
		kind = "lazy child"
	}
	return fmt.Sprintf("binding %s (%s, %d records)", b.sourceURL, kind, len(b.functionMap))
}
