package bytecode

import "fmt"

// StringKind classifies how the runtime realizes a string-table entry.
type StringKind uint8

const (
	// KindString entries become ordinary string values on demand and are
	// never interned.
	KindString StringKind = iota
	// KindIdentifier entries are interned into the runtime's symbol table
	// when the unit is bound.
	KindIdentifier
	// KindPredefined entries name well-known symbols every runtime bakes
	// in; their translation value is the raw predefined symbol ID rather
	// than a hash.
	KindPredefined
)

// String returns the kind name for diagnostics.
func (k StringKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindIdentifier:
		return "identifier"
	case KindPredefined:
		return "predefined"
	default:
		return fmt.Sprintf("StringKind(%d)", uint8(k))
	}
}

// StringKindEntry is one run of consecutive string-table entries sharing
// a kind. The kind table is stored run-length encoded, in string-table
// order, and the runs must sum to the string count of the unit.
type StringKindEntry struct {
	Kind  StringKind
	Count uint32
}

// AppendKind extends a run-length kind table by n entries of kind k,
// merging into the final run when the kind matches.
func AppendKind(entries []StringKindEntry, k StringKind, n uint32) []StringKindEntry {
	if n == 0 {
		return entries
	}
	if last := len(entries) - 1; last >= 0 && entries[last].Kind == k {
		entries[last].Count += n
		return entries
	}
	return append(entries, StringKindEntry{Kind: k, Count: n})
}

// KindCount sums the run lengths of a kind table.
func KindCount(entries []StringKindEntry) uint32 {
	var total uint32
	for _, e := range entries {
		total += e.Count
	}
	return total
}

// KindAt resolves the kind of a single string-table index by walking the
// run-length table. It is intended for tooling; the runtime walks runs
// directly.
func KindAt(entries []StringKindEntry, index uint32) (StringKind, bool) {
	for _, e := range entries {
		if index < e.Count {
			return e.Kind, true
		}
		index -= e.Count
	}
	return 0, false
}
