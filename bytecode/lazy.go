package bytecode

// LazyFunctionProvider is the single-function view the runtime binds
// while a deferred body is still uncompiled. It carries the parent
// unit's header for that function; everything else is empty until
// Compile produces the real unit.
type LazyFunctionProvider struct {
	parent     Provider
	functionID uint32
	header     FunctionHeader
	compile    CompileFunc
}

// NewLazyFunctionProvider builds the view for function functionID of
// parent. The parent must report the function lazy and must carry a
// compiler.
func NewLazyFunctionProvider(parent Provider, functionID uint32) *LazyFunctionProvider {
	if !parent.IsFunctionLazy(functionID) {
		panic("bytecode: lazy view of a compiled function")
	}
	compile := parent.Compiler()
	if compile == nil {
		panic("bytecode: lazy function in a unit without a compiler")
	}
	// The view's string table is the single function name, so the header's
	// name index is rewritten to 0.
	header := parent.FunctionHeader(functionID)
	header.NameIndex = 0
	return &LazyFunctionProvider{
		parent:     parent,
		functionID: functionID,
		header:     header,
		compile:    compile,
	}
}

// Compile invokes the parent's compiler on the deferred function. The
// result shares the parent's function index space.
func (p *LazyFunctionProvider) Compile() (*Unit, error) {
	return p.compile(p.functionID)
}

// Parent returns the provider this view was split from.
func (p *LazyFunctionProvider) Parent() Provider { return p.parent }

func (p *LazyFunctionProvider) Kind() ProviderKind { return ProviderLazyFunction }

func (p *LazyFunctionProvider) FunctionCount() uint32 { return 1 }

// FunctionHeader returns the one deferred function's header regardless
// of index; the view has no table of its own.
func (p *LazyFunctionProvider) FunctionHeader(uint32) FunctionHeader { return p.header }

func (p *LazyFunctionProvider) FunctionBytecode(uint32) []byte { return nil }

func (p *LazyFunctionProvider) IsFunctionLazy(uint32) bool { return true }

func (p *LazyFunctionProvider) GlobalFunctionIndex() uint32 { return p.functionID }

func (p *LazyFunctionProvider) StringCount() uint32 { return 0 }

func (p *LazyFunctionProvider) StringEntry(uint32) StringEntry {
	panic("bytecode: lazy provider has no string table")
}

func (p *LazyFunctionProvider) StringView(uint32) StringView {
	panic("bytecode: lazy provider has no string table")
}

func (p *LazyFunctionProvider) StringKinds() []StringKindEntry { return nil }

func (p *LazyFunctionProvider) IdentifierTranslations() []uint32 { return nil }

func (p *LazyFunctionProvider) StringStorage() []byte { return nil }

func (p *LazyFunctionProvider) ObjectKeyBuffer() []byte { return nil }

func (p *LazyFunctionProvider) RegExpCount() uint32 { return 0 }

func (p *LazyFunctionProvider) RegExpBytecode(uint32) []byte {
	panic("bytecode: lazy provider has no regexp table")
}

func (p *LazyFunctionProvider) ModuleTable() []ModuleTableEntry { return nil }

func (p *LazyFunctionProvider) ModuleTableOffset() uint32 { return 0 }

func (p *LazyFunctionProvider) SourceURL() string { return p.parent.SourceURL() }

func (p *LazyFunctionProvider) Persistent() bool { return false }

func (p *LazyFunctionProvider) Compiler() CompileFunc { return p.compile }

func (p *LazyFunctionProvider) Advise(AccessPattern) {}
