package bytecode

import "fmt"

// Builder assembles a Unit in memory. It is the write-side counterpart
// of the container reader and the only supported way for front ends and
// tests to construct units programmatically. Methods append in call
// order; string-table indices are handed back as entries are added.
type Builder struct {
	u Unit
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// SetSourceURL records the unit's source location for diagnostics.
func (b *Builder) SetSourceURL(url string) { b.u.SourceURL = url }

// SetGlobalFunctionIndex marks the unit as the product of lazy
// compilation, occupying the given index in its binding family's shared
// function index space.
func (b *Builder) SetGlobalFunctionIndex(i uint32) { b.u.GlobalFunctionIndex = i }

func (b *Builder) addEntry(s string, kind StringKind, translation uint32) uint32 {
	view := ViewString(s)
	index := uint32(len(b.u.StringEntries))
	b.u.StringEntries = append(b.u.StringEntries, StringEntry{
		Offset: uint32(len(b.u.StringStorage)),
		Length: uint32(view.Len()),
		Wide:   view.Wide,
	})
	b.u.StringStorage = append(b.u.StringStorage, view.Bytes...)
	b.u.StringKinds = AppendKind(b.u.StringKinds, kind, 1)
	if kind != KindString {
		b.u.Translations = append(b.u.Translations, translation)
	}
	return index
}

// AddString appends a plain string-table entry, realized as a string
// value on demand and never interned.
func (b *Builder) AddString(s string) uint32 {
	return b.addEntry(s, KindString, 0)
}

// AddIdentifier appends an identifier entry with its precomputed
// interning hash.
func (b *Builder) AddIdentifier(s string) uint32 {
	return b.addEntry(s, KindIdentifier, HashString(s))
}

// AddPredefined appends an entry naming a well-known symbol; raw is the
// predefined symbol ID the runtime maps it to without a table lookup.
func (b *Builder) AddPredefined(s string, raw uint32) uint32 {
	return b.addEntry(s, KindPredefined, raw)
}

// AddFunction appends a compiled function. The body must be present;
// deferred functions go through AddLazyFunction.
func (b *Builder) AddFunction(h FunctionHeader, code []byte) uint32 {
	if code == nil {
		panic("bytecode: AddFunction requires a body, use AddLazyFunction")
	}
	h.Flags &^= FunctionLazy
	index := uint32(len(b.u.Functions))
	b.u.Functions = append(b.u.Functions, h)
	b.u.Bodies = append(b.u.Bodies, code)
	return index
}

// AddLazyFunction appends a function whose body the compiler deferred.
func (b *Builder) AddLazyFunction(h FunctionHeader) uint32 {
	h.Flags |= FunctionLazy
	index := uint32(len(b.u.Functions))
	b.u.Functions = append(b.u.Functions, h)
	b.u.Bodies = append(b.u.Bodies, nil)
	return index
}

// AddRegExp appends compiled regular-expression bytecode and returns its
// regexp-table index.
func (b *Builder) AddRegExp(code []byte) uint32 {
	index := uint32(len(b.u.RegExps))
	b.u.RegExps = append(b.u.RegExps, RegExpEntry{
		Offset: uint32(len(b.u.RegExpStorage)),
		Length: uint32(len(code)),
	})
	b.u.RegExpStorage = append(b.u.RegExpStorage, code...)
	return index
}

// AddModuleEntry appends a statically resolved CommonJS module mapping.
func (b *Builder) AddModuleEntry(nameIndex, functionIndex uint32) {
	b.u.ModuleTable = append(b.u.ModuleTable, ModuleTableEntry{
		NameIndex:     nameIndex,
		FunctionIndex: functionIndex,
	})
}

// SetModuleTableOffset assigns the unit's first global module ID.
func (b *Builder) SetModuleTableOffset(off uint32) { b.u.ModuleTableOffset = off }

// AddObjectKeys appends one object-literal key sequence (string-table
// indices) and returns its byte offset, the value the emitted bytecode
// carries as its shape cache key.
func (b *Builder) AddObjectKeys(indices ...uint32) uint32 {
	offset := uint32(len(b.u.ObjectKeys))
	for _, idx := range indices {
		b.u.ObjectKeys = append(b.u.ObjectKeys,
			byte(idx), byte(idx>>8), byte(idx>>16), byte(idx>>24))
	}
	return offset
}

// Build validates and returns the assembled unit. The Builder must not
// be reused afterwards.
func (b *Builder) Build() (*Unit, error) {
	u := b.u
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: build: %w", err)
	}
	return &u, nil
}

// MustBuild is Build for callers that treat a malformed unit as a bug.
func (b *Builder) MustBuild() *Unit {
	u, err := b.Build()
	if err != nil {
		panic(err)
	}
	return u
}
