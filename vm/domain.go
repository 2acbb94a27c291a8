package vm

import "fmt"

// Domain groups the module bindings that originate from one compiled
// source: the top-level unit plus any lazy children split from it. It
// owns the CommonJS module table those bindings resolve through, at the
// granularity require sharing needs. A Domain is a heap cell referenced
// weakly by its bindings; when nothing else roots it, collecting it
// destroys the bindings it owns.
type Domain struct {
	bindings    []*ModuleBinding
	moduleTable map[uint32]moduleEntry
}

type moduleEntry struct {
	binding       *ModuleBinding
	functionIndex uint32
	exports       Ref // cached exports object, NullRef until the module runs
}

// NewDomain allocates an empty domain.
func (rt *Runtime) NewDomain() (Ref, error) {
	return rt.heap.Alloc(&Domain{moduleTable: make(map[uint32]moduleEntry)})
}

// DomainAt resolves a Ref to a *Domain. Panics when the cell holds a
// different kind. The pointer must not be held across an allocating
// call.
func (rt *Runtime) DomainAt(r Ref) *Domain {
	d, ok := rt.heap.Get(r).(*Domain)
	if !ok {
		panic("vm: ref is not a domain")
	}
	return d
}

func (d *Domain) addBinding(b *ModuleBinding) {
	d.bindings = append(d.bindings, b)
}

// Bindings returns the bindings the domain owns, creation-ordered.
func (d *Domain) Bindings() []*ModuleBinding {
	out := make([]*ModuleBinding, len(d.bindings))
	copy(out, d.bindings)
	return out
}

// ImportModuleTable merges a binding's statically resolved module table
// into the domain, assigning global module IDs upward from offset.
// Failure surfaces as an import Exception; entries merged before the
// failing one stay merged, matching the no-rollback contract of binding
// construction.
func (d *Domain) ImportModuleTable(rt *Runtime, b *ModuleBinding, offset uint32) error {
	table := b.provider.ModuleTable()
	if len(table) == 0 {
		return nil
	}
	functionCount := b.provider.FunctionCount()
	for i, e := range table {
		id := offset + uint32(i)
		if _, dup := d.moduleTable[id]; dup {
			return NewException(ExcImportFailure,
				fmt.Sprintf("module ID %d imported twice", id), nil)
		}
		if e.FunctionIndex >= functionCount {
			return NewException(ExcImportFailure,
				fmt.Sprintf("module ID %d names function %d of %d", id, e.FunctionIndex, functionCount), nil)
		}
		d.moduleTable[id] = moduleEntry{binding: b, functionIndex: e.FunctionIndex}
	}
	log.Debugf("imported %d modules at offset %d from %s", len(table), offset, b.SourceURL())
	return nil
}

// ResolveModule returns the binding and function index that initialize a
// global module ID.
func (d *Domain) ResolveModule(id uint32) (*ModuleBinding, uint32, bool) {
	e, ok := d.moduleTable[id]
	if !ok {
		return nil, 0, false
	}
	return e.binding, e.functionIndex, true
}

// ModuleExports returns the cached exports object of a module, NullRef
// before SetModuleExports.
func (d *Domain) ModuleExports(id uint32) Ref {
	return d.moduleTable[id].exports
}

// SetModuleExports caches a module's exports object; the domain keeps
// it alive from then on.
func (d *Domain) SetModuleExports(id uint32, exports Ref) {
	e, ok := d.moduleTable[id]
	if !ok {
		panic("vm: exports for an unimported module")
	}
	e.exports = exports
	d.moduleTable[id] = e
}

// trace keeps cached exports objects alive for as long as the domain
// itself is reachable. Bindings are not traced here: they are root
// sources in their own right, and their back-reference to the domain is
// weak.
func (d *Domain) trace(a *RootAcceptor) {
	for _, e := range d.moduleTable {
		a.AcceptRef(e.exports)
	}
}

// finalize destroys the bindings the domain owns once the domain is
// swept.
func (d *Domain) finalize(rt *Runtime) {
	for _, b := range d.bindings {
		b.destroy(rt)
	}
	d.bindings = nil
}
