package vm

// HiddenClass describes an object shape: the chain of property
// additions that produced a layout. This layer treats shapes as cache
// values; transitions, dictionaries, and attribute flags belong to the
// object model above it. A shape chain is reachable only through the
// caches that hold it, so dropping a cache entry lets the whole chain
// be collected.
type HiddenClass struct {
	parent Ref      // shape before the last property was added
	name   SymbolID // property added at this step
	slot   uint32   // slot index the property landed in
}

// NewHiddenClass allocates the shape reached from parent by adding one
// property. The parent must be rooted by the caller across the call;
// pass NullRef for a chain root.
func NewHiddenClass(rt *Runtime, parent Ref, name SymbolID, slot uint32) (Ref, error) {
	return rt.heap.Alloc(&HiddenClass{parent: parent, name: name, slot: slot})
}

// Parent returns the predecessor shape, NullRef at a chain root.
func (c *HiddenClass) Parent() Ref { return c.parent }

// PropertyName returns the symbol added at this step.
func (c *HiddenClass) PropertyName() SymbolID { return c.name }

// Slot returns the slot index of the step's property.
func (c *HiddenClass) Slot() uint32 { return c.slot }

// PropertyCount walks the chain length; shapes are short in this layer
// (object-literal keys), so the walk is not cached.
func (c *HiddenClass) PropertyCount(rt *Runtime) int {
	count := 1
	for p := c.parent; p != NullRef; {
		hc := rt.HiddenClassAt(p)
		count++
		p = hc.parent
	}
	return count
}

func (c *HiddenClass) trace(a *RootAcceptor) {
	a.AcceptRef(c.parent)
	a.AcceptSymbol(c.name)
}

// HiddenClassAt resolves a Ref to a *HiddenClass. Panics when the cell
// holds a different kind. The pointer must not be held across an
// allocating call.
func (rt *Runtime) HiddenClassAt(r Ref) *HiddenClass {
	c, ok := rt.heap.Get(r).(*HiddenClass)
	if !ok {
		panic("vm: ref is not a hidden class")
	}
	return c
}
