package vm

import (
	"sync"

	"github.com/chazu/fennec/bytecode"
)

// ---------------------------------------------------------------------------
// SymbolTable: Interned symbols
// ---------------------------------------------------------------------------

// SymbolID identifies an interned string process-wide. Equal IDs imply
// equal content. IDs below NumPredefined are the fixed well-known
// symbols baked into every table.
type SymbolID uint32

// InvalidSymbol is the sentinel for "no symbol".
const InvalidSymbol SymbolID = ^SymbolID(0)

// IsValid reports whether the ID names a symbol at all.
func (id SymbolID) IsValid() bool { return id != InvalidSymbol }

type symbolEntry struct {
	name   string
	hash   uint32
	strRef Ref  // interned heap string, NullRef until first required
	lazy   bool // registered from persistent provider storage
	live   bool
	marked bool
}

// SymbolTable interns identifier strings to unique IDs. One table is
// shared by every runtime it is injected into; entries are collected
// when no binding or rooted value marks them during a pass.
type SymbolTable struct {
	mu      sync.RWMutex
	byName  map[string]SymbolID
	entries []symbolEntry
	free    []SymbolID
}

// NewSymbolTable creates a table seeded with the predefined symbols.
func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{
		byName:  make(map[string]SymbolID, 256),
		entries: make([]symbolEntry, NumPredefined, 256),
	}
	for raw, name := range predefinedNames {
		st.entries[raw] = symbolEntry{
			name: name,
			hash: bytecode.HashString(name),
			live: true,
		}
		st.byName[name] = SymbolID(raw)
	}
	return st
}

// Reserve grows the entry storage ahead of a bulk registration.
func (st *SymbolTable) Reserve(n int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if need := len(st.entries) + n; need > cap(st.entries) {
		grown := make([]symbolEntry, len(st.entries), need)
		copy(grown, st.entries)
		st.entries = grown
	}
}

func (st *SymbolTable) claimLocked(e symbolEntry) SymbolID {
	if n := len(st.free); n > 0 {
		id := st.free[n-1]
		st.free = st.free[:n-1]
		st.entries[id] = e
		st.byName[e.name] = id
		return id
	}
	id := SymbolID(len(st.entries))
	st.entries = append(st.entries, e)
	st.byName[e.name] = id
	return id
}

// RegisterLazy interns an identifier from a view into provider storage
// without touching the VM heap: no heap string is created and no
// collection can run. Legal only when the storage outlives the runtime,
// which bindings guarantee via their persistent flag.
func (st *SymbolTable) RegisterLazy(view bytecode.StringView, hash uint32) SymbolID {
	name := view.String()

	st.mu.RLock()
	if id, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return id
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if id, ok := st.byName[name]; ok {
		return id
	}
	return st.claimLocked(symbolEntry{name: name, hash: hash, lazy: true, live: true})
}

// Intern resolves an identifier through the full registration path,
// materializing its heap string. It may run a collection and fails with
// an out-of-memory Exception when the heap cannot satisfy it.
func (st *SymbolTable) Intern(rt *Runtime, name string, hash uint32) (SymbolID, error) {
	// Fast path: read-only lookup
	st.mu.RLock()
	if id, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return id, nil
	}
	st.mu.RUnlock()

	// The heap string is allocated before the write lock so a collection
	// triggered here never re-enters the table while it is held.
	strRef, err := NewStringObject(rt, name)
	if err != nil {
		return InvalidSymbol, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if id, ok := st.byName[name]; ok {
		return id, nil
	}
	return st.claimLocked(symbolEntry{name: name, hash: hash, strRef: strRef, live: true}), nil
}

// Predefined returns the fixed well-known symbol for a raw ID carried
// in bytecode. Raw values outside the predefined space are a compiler
// bug.
func (st *SymbolTable) Predefined(raw uint32) SymbolID {
	if raw >= NumPredefined {
		panic("vm: raw ID is not a predefined symbol")
	}
	return SymbolID(raw)
}

// IsPredefined reports whether id is a fixed well-known symbol.
func IsPredefined(id SymbolID) bool { return uint32(id) < NumPredefined }

// Lookup returns the ID interned for name, if any.
func (st *SymbolTable) Lookup(name string) (SymbolID, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, ok := st.byName[name]
	return id, ok
}

// StringOf returns the display form of an interned symbol, "" when the
// ID is invalid or its entry has been collected.
func (st *SymbolTable) StringOf(id SymbolID) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if int(id) >= len(st.entries) || !st.entries[id].live {
		return ""
	}
	return st.entries[id].name
}

// HashOf returns the interning hash recorded for a live symbol.
func (st *SymbolTable) HashOf(id SymbolID) (uint32, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if int(id) >= len(st.entries) || !st.entries[id].live {
		return 0, false
	}
	return st.entries[id].hash, true
}

// Len returns the number of live symbols, predefined included.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := 0
	for i := range st.entries {
		if st.entries[i].live {
			n++
		}
	}
	return n
}

// StringObjectFor returns the heap string of a symbol, materializing
// and caching it on first request. This is the deferred step lazy
// registration postpones.
func (st *SymbolTable) StringObjectFor(rt *Runtime, id SymbolID) (Ref, error) {
	st.mu.RLock()
	if int(id) >= len(st.entries) || !st.entries[id].live {
		st.mu.RUnlock()
		panic("vm: string of a dead symbol")
	}
	if r := st.entries[id].strRef; r != NullRef {
		st.mu.RUnlock()
		return r, nil
	}
	name := st.entries[id].name
	st.mu.RUnlock()

	strRef, err := NewStringObject(rt, name)
	if err != nil {
		return NullRef, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if r := st.entries[id].strRef; r != NullRef {
		return r, nil
	}
	st.entries[id].strRef = strRef
	return strRef, nil
}

// markSymbol records that a pass reached the symbol, keeping the entry
// and its heap string alive through the sweep. It runs inside a
// collection on the mutator goroutine and therefore takes no lock;
// tracing can re-enter it through shape chains.
func (st *SymbolTable) markSymbol(a *RootAcceptor, id SymbolID) {
	if !id.IsValid() || int(id) >= len(st.entries) || !st.entries[id].live {
		return
	}
	if st.entries[id].marked {
		return
	}
	st.entries[id].marked = true
	if r := st.entries[id].strRef; r != NullRef {
		a.AcceptRef(r)
	}
}

// markPredefined keeps the materialized strings of predefined symbols
// alive. The entries themselves never die, but their heap strings are
// ordinary cells.
func (st *SymbolTable) markPredefined(a *RootAcceptor) {
	for i := 0; i < int(NumPredefined) && i < len(st.entries); i++ {
		if r := st.entries[i].strRef; r != NullRef {
			a.AcceptRef(r)
		}
	}
}

// sweep frees every unmarked non-predefined entry and resets marks for
// the next pass. Freed IDs are reused by later registrations.
func (st *SymbolTable) sweep() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range st.entries {
		e := &st.entries[i]
		if !e.live {
			continue
		}
		if !e.marked && !IsPredefined(SymbolID(i)) {
			delete(st.byName, e.name)
			*e = symbolEntry{}
			st.free = append(st.free, SymbolID(i))
			continue
		}
		e.marked = false
	}
}
