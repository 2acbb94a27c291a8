package bytecode

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// ---------------------------------------------------------------------------
// Unit Error Types
// ---------------------------------------------------------------------------

var (
	ErrStringBounds      = errors.New("string entry outside string storage")
	ErrKindCountMismatch = errors.New("string kind table does not cover the string table")
	ErrTranslationCount  = errors.New("identifier translation count mismatch")
	ErrFunctionBounds    = errors.New("function name index out of range")
	ErrRegExpBounds      = errors.New("regexp entry outside regexp storage")
	ErrModuleBounds      = errors.New("module table entry out of range")
)

// ---------------------------------------------------------------------------
// Table Entry Types
// ---------------------------------------------------------------------------

// FunctionFlags carries per-function attributes from the compiler.
type FunctionFlags uint8

const (
	// FunctionStrict marks a function compiled in strict mode.
	FunctionStrict FunctionFlags = 1 << iota
	// FunctionLazy marks a function whose body was not compiled; the
	// runtime materializes it through a lazy provider on first call.
	FunctionLazy
)

// FunctionHeader describes one function in a unit. Bodies live in the
// unit's Bodies table at the same index (nil while the function is lazy).
type FunctionHeader struct {
	ParamCount     uint32
	FrameSize      uint32
	NameIndex      uint32 // string-table index of the function's name
	ReadCacheSize  uint32 // property read cache slots the body expects
	WriteCacheSize uint32 // property write cache slots the body expects
	Flags          FunctionFlags
}

// IsLazy reports whether the header marks a deferred body.
func (h FunctionHeader) IsLazy() bool { return h.Flags&FunctionLazy != 0 }

// StringEntry locates one string-table entry inside the unit's string
// storage. Length counts code units: bytes for narrow entries, UTF-16
// units for wide ones.
type StringEntry struct {
	Offset uint32
	Length uint32
	Wide   bool
}

// RegExpEntry locates one compiled regular expression inside the unit's
// regexp storage.
type RegExpEntry struct {
	Offset uint32
	Length uint32
}

// ModuleTableEntry maps a statically resolved CommonJS module to the
// function that initializes it.
type ModuleTableEntry struct {
	NameIndex     uint32 // string-table index of the module's path
	FunctionIndex uint32
}

// ---------------------------------------------------------------------------
// Unit
// ---------------------------------------------------------------------------

// Unit is the in-memory form of one compiled bytecode unit. Fields are
// exported for serialization; runtime code reads units through a
// Provider rather than touching a Unit directly.
type Unit struct {
	SourceURL string

	Functions []FunctionHeader
	Bodies    [][]byte

	StringEntries []StringEntry
	StringKinds   []StringKindEntry
	// Translations carries one value per non-KindString entry in kind
	// walk order: the precomputed identifier hash for KindIdentifier
	// entries, the raw predefined symbol ID for KindPredefined entries.
	// Empty when the compiler emitted no precomputed hashes, in which
	// case the unit must contain no KindPredefined entries.
	Translations  []uint32
	StringStorage []byte

	// ObjectKeys holds serialized object-literal key sequences: runs of
	// little-endian uint32 string-table indices, addressed by byte
	// offset from the shape cache key.
	ObjectKeys []byte

	RegExps       []RegExpEntry
	RegExpStorage []byte

	ModuleTable []ModuleTableEntry
	// ModuleTableOffset is the first global CommonJS module ID assigned
	// to this unit; entry i resolves module ID ModuleTableOffset+i.
	ModuleTableOffset uint32

	// GlobalFunctionIndex is meaningful only for units produced by lazy
	// compilation: the index the compiled function occupies in the
	// binding family's shared function index space.
	GlobalFunctionIndex uint32
}

// FunctionCount returns the number of functions in the unit.
func (u *Unit) FunctionCount() uint32 { return uint32(len(u.Functions)) }

// StringCount returns the number of string-table entries.
func (u *Unit) StringCount() uint32 { return uint32(len(u.StringEntries)) }

// StringView returns a non-owning view of entry i's code units.
func (u *Unit) StringView(i uint32) StringView {
	e := u.StringEntries[i]
	width := uint32(1)
	if e.Wide {
		width = 2
	}
	return StringView{
		Bytes: u.StringStorage[e.Offset : e.Offset+e.Length*width],
		Wide:  e.Wide,
	}
}

// StringValue decodes entry i into a Go string.
func (u *Unit) StringValue(i uint32) string { return u.StringView(i).String() }

// Validate checks the unit's cross-table indices and lengths. Readers
// call it before handing a unit to the runtime.
func (u *Unit) Validate() error {
	if got, want := KindCount(u.StringKinds), u.StringCount(); got != want {
		return fmt.Errorf("bytecode: %w: kinds cover %d of %d entries", ErrKindCountMismatch, got, want)
	}
	var translated uint32
	for _, run := range u.StringKinds {
		if run.Kind != KindString {
			translated += run.Count
		}
	}
	if len(u.Translations) != 0 && uint32(len(u.Translations)) != translated {
		return fmt.Errorf("bytecode: %w: %d translations for %d interned entries",
			ErrTranslationCount, len(u.Translations), translated)
	}
	for i, e := range u.StringEntries {
		width := uint32(1)
		if e.Wide {
			width = 2
		}
		end := uint64(e.Offset) + uint64(e.Length)*uint64(width)
		if end > uint64(len(u.StringStorage)) {
			return fmt.Errorf("bytecode: %w: entry %d ends at %d of %d", ErrStringBounds, i, end, len(u.StringStorage))
		}
	}
	if len(u.Bodies) != len(u.Functions) {
		return fmt.Errorf("bytecode: %d bodies for %d functions", len(u.Bodies), len(u.Functions))
	}
	for i, h := range u.Functions {
		if h.NameIndex >= u.StringCount() {
			return fmt.Errorf("bytecode: %w: function %d names string %d of %d",
				ErrFunctionBounds, i, h.NameIndex, u.StringCount())
		}
		if h.IsLazy() != (u.Bodies[i] == nil) {
			return fmt.Errorf("bytecode: function %d lazy flag disagrees with body presence", i)
		}
	}
	for i, e := range u.RegExps {
		if uint64(e.Offset)+uint64(e.Length) > uint64(len(u.RegExpStorage)) {
			return fmt.Errorf("bytecode: %w: entry %d", ErrRegExpBounds, i)
		}
	}
	for i, e := range u.ModuleTable {
		if e.NameIndex >= u.StringCount() || e.FunctionIndex >= u.FunctionCount() {
			return fmt.Errorf("bytecode: %w: entry %d", ErrModuleBounds, i)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// String Views and Hashing
// ---------------------------------------------------------------------------

// StringView is a non-owning view of string content in unit storage.
// Bytes holds raw code units: one byte each for narrow views (Latin-1),
// two bytes little-endian for wide views (UTF-16).
type StringView struct {
	Bytes []byte
	Wide  bool
}

// Len returns the number of code units in the view.
func (v StringView) Len() int {
	if v.Wide {
		return len(v.Bytes) / 2
	}
	return len(v.Bytes)
}

// Unit returns code unit i.
func (v StringView) Unit(i int) uint16 {
	if v.Wide {
		return uint16(v.Bytes[2*i]) | uint16(v.Bytes[2*i+1])<<8
	}
	return uint16(v.Bytes[i])
}

// IsASCII reports whether every code unit fits seven bits.
func (v StringView) IsASCII() bool {
	for i, n := 0, v.Len(); i < n; i++ {
		if v.Unit(i) > 0x7f {
			return false
		}
	}
	return true
}

// String decodes the view into a Go string. Narrow bytes above 0x7f are
// Latin-1 code units, matching what Unit and Hash see.
func (v StringView) String() string {
	if !v.Wide {
		if v.IsASCII() {
			return string(v.Bytes)
		}
		runes := make([]rune, len(v.Bytes))
		for i, b := range v.Bytes {
			runes[i] = rune(b)
		}
		return string(runes)
	}
	units := make([]uint16, v.Len())
	for i := range units {
		units[i] = v.Unit(i)
	}
	return string(utf16.Decode(units))
}

// Hash returns the interning hash of the view. Narrow and wide views
// with the same code units hash identically, so a string's hash does not
// depend on which encoding the compiler chose for it.
func (v StringView) Hash() uint32 {
	h := uint32(hashOffset32)
	for i, n := 0, v.Len(); i < n; i++ {
		u := v.Unit(i)
		h = (h ^ uint32(u&0xff)) * hashPrime32
		h = (h ^ uint32(u>>8)) * hashPrime32
	}
	return h
}

// FNV-1a, applied per UTF-16 code unit as two little-endian bytes.
const (
	hashOffset32 = 2166136261
	hashPrime32  = 16777619
)

// ViewString wraps a Go string in a StringView: narrow when pure ASCII,
// wide (UTF-16) otherwise.
func ViewString(s string) StringView {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			ascii = false
			break
		}
	}
	if ascii {
		return StringView{Bytes: []byte(s)}
	}
	units := utf16.Encode([]rune(s))
	raw := make([]byte, 2*len(units))
	for i, u := range units {
		raw[2*i] = byte(u)
		raw[2*i+1] = byte(u >> 8)
	}
	return StringView{Bytes: raw, Wide: true}
}

// HashString returns the interning hash of a Go string.
func HashString(s string) uint32 { return ViewString(s).Hash() }
