package bytecode

import "fmt"

// ---------------------------------------------------------------------------
// Provider Interface
// ---------------------------------------------------------------------------

// AccessPattern is an advisory hint about how the runtime is about to
// read a provider's string storage, forwarded for I/O tuning. Hints
// never change observable behavior.
type AccessPattern uint8

const (
	AdviseSequential AccessPattern = iota
	AdviseRandom
	AdviseWillNeed
)

// String returns the hint name for diagnostics.
func (p AccessPattern) String() string {
	switch p {
	case AdviseSequential:
		return "sequential"
	case AdviseRandom:
		return "random"
	case AdviseWillNeed:
		return "willneed"
	default:
		return fmt.Sprintf("AccessPattern(%d)", uint8(p))
	}
}

// ProviderKind discriminates the closed set of provider variants.
type ProviderKind uint8

const (
	// ProviderUnit serves a fully materialized unit.
	ProviderUnit ProviderKind = iota
	// ProviderLazyFunction is a single-function view over a parent unit
	// whose body has not been compiled yet.
	ProviderLazyFunction
)

// CompileFunc compiles one deferred function into a unit of its own. The
// produced unit shares the parent's function index space: the compiled
// body sits at its original index (reported via GlobalFunctionIndex) and
// any inner functions occupy their original indices, themselves possibly
// still lazy.
type CompileFunc func(functionID uint32) (*Unit, error)

// Provider is the read-only view the runtime binds against. The set of
// implementations is closed: a Provider is either a *UnitProvider or a
// *LazyFunctionProvider, and callers may dispatch on Kind where the
// variant matters.
type Provider interface {
	Kind() ProviderKind

	FunctionCount() uint32
	FunctionHeader(i uint32) FunctionHeader
	// FunctionBytecode returns the instruction bytes of function i, nil
	// while the function is lazy.
	FunctionBytecode(i uint32) []byte
	IsFunctionLazy(i uint32) bool
	// GlobalFunctionIndex is the index the provider's distinguished
	// function occupies in its binding family's shared index space; zero
	// for ordinary top-level units.
	GlobalFunctionIndex() uint32

	StringCount() uint32
	StringEntry(i uint32) StringEntry
	StringView(i uint32) StringView
	StringKinds() []StringKindEntry
	IdentifierTranslations() []uint32
	StringStorage() []byte

	ObjectKeyBuffer() []byte

	RegExpCount() uint32
	RegExpBytecode(i uint32) []byte

	ModuleTable() []ModuleTableEntry
	ModuleTableOffset() uint32

	SourceURL() string
	// Persistent reports that the provider's backing storage outlives
	// the runtime, so views into it may be held without copying.
	Persistent() bool
	// Compiler returns the hook for compiling deferred functions, nil
	// when the provider cannot compile.
	Compiler() CompileFunc
	Advise(p AccessPattern)
}

// ---------------------------------------------------------------------------
// UnitProvider
// ---------------------------------------------------------------------------

// UnitProvider serves a materialized unit. With a compiler attached it
// is the from-source variant: deferred bodies in the unit compile on
// demand through the hook. Without one, every function must already have
// a body unless the runtime never calls it.
type UnitProvider struct {
	unit       *Unit
	persistent bool
	compile    CompileFunc
	advice     []AccessPattern
}

// NewUnitProvider wraps a unit whose backing storage lives as long as
// the provider.
func NewUnitProvider(u *Unit) *UnitProvider {
	return &UnitProvider{unit: u}
}

// NewPersistentUnitProvider wraps a unit whose backing storage is
// guaranteed to outlive the runtime, enabling zero-copy identifier
// registration for bindings flagged persistent.
func NewPersistentUnitProvider(u *Unit) *UnitProvider {
	return &UnitProvider{unit: u, persistent: true}
}

// SetCompiler attaches the lazy-compilation hook.
func (p *UnitProvider) SetCompiler(c CompileFunc) { p.compile = c }

// Unit exposes the underlying unit for tooling.
func (p *UnitProvider) Unit() *Unit { return p.unit }

func (p *UnitProvider) Kind() ProviderKind { return ProviderUnit }

func (p *UnitProvider) FunctionCount() uint32 { return p.unit.FunctionCount() }

func (p *UnitProvider) FunctionHeader(i uint32) FunctionHeader { return p.unit.Functions[i] }

func (p *UnitProvider) FunctionBytecode(i uint32) []byte { return p.unit.Bodies[i] }

func (p *UnitProvider) IsFunctionLazy(i uint32) bool { return p.unit.Functions[i].IsLazy() }

func (p *UnitProvider) GlobalFunctionIndex() uint32 { return p.unit.GlobalFunctionIndex }

func (p *UnitProvider) StringCount() uint32 { return p.unit.StringCount() }

func (p *UnitProvider) StringEntry(i uint32) StringEntry { return p.unit.StringEntries[i] }

func (p *UnitProvider) StringView(i uint32) StringView { return p.unit.StringView(i) }

func (p *UnitProvider) StringKinds() []StringKindEntry { return p.unit.StringKinds }

func (p *UnitProvider) IdentifierTranslations() []uint32 { return p.unit.Translations }

func (p *UnitProvider) StringStorage() []byte { return p.unit.StringStorage }

func (p *UnitProvider) ObjectKeyBuffer() []byte { return p.unit.ObjectKeys }

func (p *UnitProvider) RegExpCount() uint32 { return uint32(len(p.unit.RegExps)) }

func (p *UnitProvider) RegExpBytecode(i uint32) []byte {
	e := p.unit.RegExps[i]
	return p.unit.RegExpStorage[e.Offset : e.Offset+e.Length]
}

func (p *UnitProvider) ModuleTable() []ModuleTableEntry { return p.unit.ModuleTable }

func (p *UnitProvider) ModuleTableOffset() uint32 { return p.unit.ModuleTableOffset }

func (p *UnitProvider) SourceURL() string { return p.unit.SourceURL }

func (p *UnitProvider) Persistent() bool { return p.persistent }

func (p *UnitProvider) Compiler() CompileFunc { return p.compile }

// Advise records the hint. A memory-backed unit has no I/O to tune, so
// the record is the whole effect; mapped-buffer providers would forward
// to the OS here.
func (p *UnitProvider) Advise(pattern AccessPattern) {
	p.advice = append(p.advice, pattern)
}

// Advice returns the hints received so far, in order.
func (p *UnitProvider) Advice() []AccessPattern { return p.advice }
