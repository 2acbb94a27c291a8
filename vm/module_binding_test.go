package vm

import (
	"testing"

	"github.com/chazu/fennec/bytecode"
)

// ---------------------------------------------------------------------------
// Test helpers shared across the vm package
// ---------------------------------------------------------------------------

// mustPanic asserts that fn panics.
func mustPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic, got none")
		}
	}()
	fn()
}

// mustDomain allocates a domain or aborts the test.
func mustDomain(t *testing.T, rt *Runtime) Ref {
	t.Helper()
	d, err := rt.NewDomain()
	if err != nil {
		t.Fatalf("NewDomain failed: %v", err)
	}
	return d
}

// mustBind binds a provider or aborts the test.
func mustBind(t *testing.T, rt *Runtime, domain Ref, p bytecode.Provider, flags BindingFlags) *ModuleBinding {
	t.Helper()
	b, err := NewModuleBinding(rt, domain, p, flags, "")
	if err != nil {
		t.Fatalf("NewModuleBinding failed: %v", err)
	}
	return b
}

// buildGreeterUnit assembles a small unit exercising all three string
// kinds: a plain string, two identifiers, a wide identifier, and a
// predefined entry, plus one compiled function.
func buildGreeterUnit() *bytecode.Unit {
	b := bytecode.NewBuilder()
	b.SetSourceURL("greeter.js")
	b.AddString("hello world")                       // 0: never interned
	greet := b.AddIdentifier("greet")                // 1
	b.AddIdentifier("count")                         // 2
	b.AddIdentifier("café")                     // 3: wide storage
	b.AddPredefined("length", uint32(SymLength))     // 4
	b.AddFunction(bytecode.FunctionHeader{
		ParamCount:    1,
		FrameSize:     4,
		NameIndex:     greet,
		ReadCacheSize: 2,
		Flags:         bytecode.FunctionStrict,
	}, []byte{0x10, 0x20})
	return b.MustBuild()
}

// ---------------------------------------------------------------------------
// Binding construction and interning
// ---------------------------------------------------------------------------

// TestBindingInternsIdentifiers verifies the kind-table walk: identifier
// entries are interned, predefined entries map straight to their fixed
// symbols, and plain string entries are never mapped.
func TestBindingInternsIdentifiers(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)
	b := mustBind(t, rt, domain, bytecode.NewUnitProvider(buildGreeterUnit()), 0)

	greet := b.SymbolForString(1)
	if !greet.IsValid() {
		t.Fatal("identifier entry was not interned")
	}
	if got := rt.Symbols().StringOf(greet); got != "greet" {
		t.Errorf("StringOf(greet) = %q, want %q", got, "greet")
	}
	if id, ok := rt.Symbols().Lookup("greet"); !ok || id != greet {
		t.Errorf("Lookup(greet) = %d, %v, want %d, true", id, ok, greet)
	}
	if hash, ok := rt.Symbols().HashOf(greet); !ok || hash != bytecode.HashString("greet") {
		t.Errorf("HashOf(greet) = %#x, %v, want %#x, true", hash, ok, bytecode.HashString("greet"))
	}

	if got := b.SymbolForString(3); rt.Symbols().StringOf(got) != "café" {
		t.Errorf("wide identifier interned as %q, want %q", rt.Symbols().StringOf(got), "café")
	}

	if got := b.SymbolForString(4); got != SymLength {
		t.Errorf("predefined entry mapped to %d, want %d", got, SymLength)
	}

	// Plain string entries stay unmapped.
	mustPanic(t, func() { b.SymbolForString(0) })
	mustPanic(t, func() { b.SymbolForString(99) })
}

// TestInterningIdentityAcrossBindings verifies that two bindings
// containing the same identifier agree on its symbol ID.
func TestInterningIdentityAcrossBindings(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)

	unit1 := bytecode.NewBuilder()
	first := unit1.AddIdentifier("shared")
	unit2 := bytecode.NewBuilder()
	unit2.AddIdentifier("other")
	second := unit2.AddIdentifier("shared")

	b1 := mustBind(t, rt, domain, bytecode.NewUnitProvider(unit1.MustBuild()), 0)
	b2 := mustBind(t, rt, domain, bytecode.NewUnitProvider(unit2.MustBuild()), 0)

	if b1.SymbolForString(first) != b2.SymbolForString(second) {
		t.Errorf("bindings interned %q to different symbols: %d vs %d",
			"shared", b1.SymbolForString(first), b2.SymbolForString(second))
	}
}

// TestEmptyStringTableSynthesis verifies that a unit with no string
// table still maps index 0 to the empty string's symbol.
func TestEmptyStringTableSynthesis(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)
	b := mustBind(t, rt, domain, bytecode.NewUnitProvider(bytecode.NewBuilder().MustBuild()), 0)

	if got := b.SymbolForString(0); got != SymEmpty {
		t.Errorf("synthesized entry mapped to %d, want %d", got, SymEmpty)
	}
}

// TestStringForIndex verifies the no-allocation string fast path: ASCII
// entries come straight from provider storage, wide entries decline.
func TestStringForIndex(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)
	b := mustBind(t, rt, domain, bytecode.NewUnitProvider(buildGreeterUnit()), 0)

	if s, ok := b.StringForIndex(1); !ok || s != "greet" {
		t.Errorf("StringForIndex(1) = %q, %v, want %q, true", s, ok, "greet")
	}
	if _, ok := b.StringForIndex(3); ok {
		t.Error("StringForIndex accepted a wide entry")
	}
	if _, ok := b.StringForIndex(99); ok {
		t.Error("StringForIndex accepted an out-of-range index")
	}
}

// TestPersistentBindingSkipsHeapStrings verifies that a binding over
// persistent storage registers identifiers without allocating heap
// strings, and that an ordinary binding does allocate them.
func TestPersistentBindingSkipsHeapStrings(t *testing.T) {
	build := func() *bytecode.Unit {
		b := bytecode.NewBuilder()
		b.AddIdentifier("alpha")
		b.AddIdentifier("beta")
		return b.MustBuild()
	}

	rt := NewRuntime(Config{})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()
	domain := mustDomain(t, rt)
	scope.HandleRef(domain)

	before := rt.HeapStats().Live
	b := mustBind(t, rt, domain, bytecode.NewPersistentUnitProvider(build()), 0)
	if got := rt.HeapStats().Live; got != before {
		t.Errorf("persistent bind allocated %d cells", got-before)
	}
	if !b.Persistent() {
		t.Error("binding over persistent provider did not report persistent")
	}

	// The deferred heap string materializes on first request and is then
	// cached.
	sym := b.SymbolForString(0)
	str1, err := rt.Symbols().StringObjectFor(rt, sym)
	if err != nil {
		t.Fatalf("StringObjectFor failed: %v", err)
	}
	str2, err := rt.Symbols().StringObjectFor(rt, sym)
	if err != nil {
		t.Fatalf("second StringObjectFor failed: %v", err)
	}
	if str1 != str2 {
		t.Errorf("StringObjectFor materialized twice: %d vs %d", str1, str2)
	}
	if rt.StringAt(str1).Str() != "alpha" {
		t.Errorf("materialized string = %q, want %q", rt.StringAt(str1).Str(), "alpha")
	}

	// An ordinary binding interns owned copies immediately.
	rt2 := NewRuntime(Config{})
	defer rt2.Shutdown()
	scope2 := rt2.NewHandleScope()
	defer scope2.Close()
	domain2 := mustDomain(t, rt2)
	scope2.HandleRef(domain2)
	ordinaryBefore := rt2.HeapStats().Live
	mustBind(t, rt2, domain2, bytecode.NewUnitProvider(build()), 0)
	if got := rt2.HeapStats().Live - ordinaryBefore; got != 2 {
		t.Errorf("ordinary bind allocated %d cells, want 2 heap strings", got)
	}
}

// TestAppendMappedString verifies the incremental registration hook used
// when a binding learns strings after construction.
func TestAppendMappedString(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)
	b := mustBind(t, rt, domain, bytecode.NewUnitProvider(buildGreeterUnit()), 0)

	idx, err := b.appendMappedString(rt, bytecode.ViewString("late"), bytecode.HashString("late"))
	if err != nil {
		t.Fatalf("appendMappedString failed: %v", err)
	}
	if idx != 5 {
		t.Errorf("appended index = %d, want 5", idx)
	}
	if got := rt.Symbols().StringOf(b.SymbolForString(idx)); got != "late" {
		t.Errorf("appended string = %q, want %q", got, "late")
	}
}

// TestStressModeInterning verifies interning under a collector that runs
// before every allocation: every symbol registered earlier in the walk
// must survive the collections triggered by the later ones.
func TestStressModeInterning(t *testing.T) {
	names := []string{
		"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta",
		"theta", "iota", "kappa", "lambda", "mu", "nu", "xi", "omicron",
		"pi", "rho", "sigma", "tau", "upsilon",
	}
	builder := bytecode.NewBuilder()
	for _, n := range names {
		builder.AddIdentifier(n)
	}

	rt := NewRuntime(Config{GCStress: true})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)
	b := mustBind(t, rt, domain, bytecode.NewUnitProvider(builder.MustBuild()), 0)

	for i, n := range names {
		sym := b.SymbolForString(uint32(i))
		if got := rt.Symbols().StringOf(sym); got != n {
			t.Errorf("entry %d = %q, want %q", i, got, n)
		}
	}
	if rt.HeapStats().Collections == 0 {
		t.Error("stress mode ran no collections")
	}
}

// ---------------------------------------------------------------------------
// Lazy function materialization
// ---------------------------------------------------------------------------

// buildLazyUnit assembles a three-function unit: a compiled entry
// function and two deferred ones. compileCalls counts compiler
// invocations.
func buildLazyUnit(compileCalls *int) *bytecode.UnitProvider {
	b := bytecode.NewBuilder()
	b.SetSourceURL("lazy.js")
	mainName := b.AddIdentifier("main")
	innerName := b.AddIdentifier("inner")
	helperName := b.AddIdentifier("helper")
	b.AddFunction(bytecode.FunctionHeader{NameIndex: mainName}, []byte{0x01})
	b.AddLazyFunction(bytecode.FunctionHeader{NameIndex: innerName, ParamCount: 2})
	b.AddLazyFunction(bytecode.FunctionHeader{NameIndex: helperName})

	p := bytecode.NewUnitProvider(b.MustBuild())
	p.SetCompiler(func(id uint32) (*bytecode.Unit, error) {
		*compileCalls++
		cb := bytecode.NewBuilder()
		cb.SetSourceURL("lazy.js")
		cb.SetGlobalFunctionIndex(id)
		cbMain := cb.AddIdentifier("main")
		cbInner := cb.AddIdentifier("inner")
		cbHelper := cb.AddIdentifier("helper")
		names := []uint32{cbMain, cbInner, cbHelper}
		// The compiled unit shares the parent's index space: siblings keep
		// their slots as deferred headers, only the target gains a body.
		for i := uint32(0); i <= id; i++ {
			if i == id {
				cb.AddFunction(bytecode.FunctionHeader{
					NameIndex:     names[i],
					ParamCount:    2,
					FrameSize:     8,
					ReadCacheSize: 4,
				}, []byte{0xAA, 0xBB, byte(id)})
			} else {
				cb.AddLazyFunction(bytecode.FunctionHeader{NameIndex: names[i]})
			}
		}
		return cb.Build()
	})
	return p
}

// TestLazyRecordMaterialization walks the deferred-function lifecycle:
// the stub record is created by a child binding, reads as uncompiled,
// compiles exactly once on demand, and flips to compiled in place.
func TestLazyRecordMaterialization(t *testing.T) {
	compileCalls := 0
	rt := NewRuntime(Config{})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)
	b := mustBind(t, rt, domain, buildLazyUnit(&compileCalls), 0)

	recMain := b.CodeRecordAt(rt, 0)
	if !recMain.IsCompiled() {
		t.Fatal("compiled function reads as lazy")
	}
	if recMain.Binding() != b {
		t.Error("compiled record not owned by the unit's binding")
	}
	if got := recMain.Bytecode(); len(got) != 1 || got[0] != 0x01 {
		t.Errorf("main bytecode = %v, want [1]", got)
	}

	recInner := b.CodeRecordAt(rt, 1)
	if recInner.IsCompiled() {
		t.Fatal("deferred function reads as compiled")
	}
	if recInner.Binding() == b {
		t.Error("stub record owned by the parent binding")
	}
	if !recInner.Binding().IsLazyChild() {
		t.Error("stub owner is not a lazy child")
	}
	if name, ok := recInner.Binding().LazyNameString(rt); !ok || name != "inner" {
		t.Errorf("lazy name = %q, %v, want %q, true", name, ok, "inner")
	}
	if got := recInner.NameString(rt); got != "inner" {
		t.Errorf("record name before compile = %q, want %q", got, "inner")
	}
	if got := len(rt.Bindings()); got != 2 {
		t.Fatalf("runtime has %d bindings, want 2 (unit + lazy child)", got)
	}

	// Repeated requests return the same record.
	if b.CodeRecordAt(rt, 1) != recInner {
		t.Error("second CodeRecordAt returned a different record")
	}

	mustPanic(t, func() { recInner.Bytecode() })

	if err := recInner.EnsureCompiled(rt); err != nil {
		t.Fatalf("EnsureCompiled failed: %v", err)
	}
	if compileCalls != 1 {
		t.Fatalf("compiler ran %d times, want 1", compileCalls)
	}
	if !recInner.IsCompiled() {
		t.Fatal("record still lazy after EnsureCompiled")
	}
	if got := recInner.Bytecode(); len(got) != 3 || got[2] != 1 {
		t.Errorf("inner bytecode = %v, want [170 187 1]", got)
	}
	if got := recInner.ReadCacheSize(); got != 4 {
		t.Errorf("read cache size after compile = %d, want 4", got)
	}
	if got := recInner.FrameSize(); got != 8 {
		t.Errorf("frame size after compile = %d, want 8", got)
	}
	if got := recInner.NameString(rt); got != "inner" {
		t.Errorf("record name after compile = %q, want %q", got, "inner")
	}

	// Idempotent: a compiled record never re-runs the compiler.
	if err := recInner.EnsureCompiled(rt); err != nil {
		t.Fatalf("second EnsureCompiled failed: %v", err)
	}
	if compileCalls != 1 {
		t.Errorf("compiler ran %d times after repeat, want 1", compileCalls)
	}
	if b.CodeRecordAt(rt, 1) != recInner {
		t.Error("record identity changed across compilation")
	}

	// The sibling stays deferred and untouched.
	if recHelper := b.CodeRecordAt(rt, 2); recHelper.IsCompiled() {
		t.Error("sibling function was compiled as a side effect")
	}
	if compileCalls != 1 {
		t.Errorf("sibling request ran the compiler, calls = %d", compileCalls)
	}
}

// TestLazyChildAtIndexZero verifies lazy initialization when the
// deferred function is the unit's first: the stub keeps slot 0.
func TestLazyChildAtIndexZero(t *testing.T) {
	compileCalls := 0
	b := bytecode.NewBuilder()
	name := b.AddIdentifier("only")
	b.AddLazyFunction(bytecode.FunctionHeader{NameIndex: name})
	p := bytecode.NewUnitProvider(b.MustBuild())
	p.SetCompiler(func(id uint32) (*bytecode.Unit, error) {
		compileCalls++
		cb := bytecode.NewBuilder()
		cb.SetGlobalFunctionIndex(id)
		cbName := cb.AddIdentifier("only")
		cb.AddFunction(bytecode.FunctionHeader{NameIndex: cbName}, []byte{0x07})
		return cb.Build()
	})

	rt := NewRuntime(Config{})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()
	domain := mustDomain(t, rt)
	scope.HandleRef(domain)

	binding := mustBind(t, rt, domain, p, 0)
	rec := binding.CodeRecordAt(rt, 0)
	if err := rec.EnsureCompiled(rt); err != nil {
		t.Fatalf("EnsureCompiled failed: %v", err)
	}
	if got := rec.Bytecode(); len(got) != 1 || got[0] != 0x07 {
		t.Errorf("bytecode = %v, want [7]", got)
	}
	if compileCalls != 1 {
		t.Errorf("compiler ran %d times, want 1", compileCalls)
	}
}

// TestEagerRecords verifies that the eager configuration materializes
// records for compiled functions at bind time but leaves deferred
// functions alone.
func TestEagerRecords(t *testing.T) {
	compileCalls := 0
	rt := NewRuntime(Config{EagerRecords: true})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)
	b := mustBind(t, rt, domain, buildLazyUnit(&compileCalls), 0)

	// One binding only: eager construction must not split lazy children.
	if got := len(rt.Bindings()); got != 1 {
		t.Errorf("runtime has %d bindings after eager bind, want 1", got)
	}
	if compileCalls != 0 {
		t.Errorf("eager bind ran the compiler %d times", compileCalls)
	}
	rec := b.CodeRecordAt(rt, 0)
	if rec == nil || !rec.IsCompiled() {
		t.Error("eager bind did not materialize the compiled function's record")
	}
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// TestShutdownReleasesBorrowedRecords verifies the two-phase teardown:
// bindings drop records they borrow, then owners release them, each
// exactly once.
func TestShutdownReleasesBorrowedRecords(t *testing.T) {
	compileCalls := 0
	rt := NewRuntime(Config{})
	scope := rt.NewHandleScope()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)
	b := mustBind(t, rt, domain, buildLazyUnit(&compileCalls), 0)

	b.CodeRecordAt(rt, 0)
	rec := b.CodeRecordAt(rt, 1) // stub owned by the lazy child, borrowed by b

	scope.Close()
	rt.Shutdown()

	if got := len(rt.Bindings()); got != 0 {
		t.Errorf("%d bindings survive shutdown, want 0", got)
	}
	// A released record may not be released again.
	mustPanic(t, func() { rec.release() })

	// Idempotent.
	rt.Shutdown()
}

// TestMemoryFootprintGrowsWithRecords verifies the footprint estimate
// covers materialized records.
func TestMemoryFootprintGrowsWithRecords(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()
	scope := rt.NewHandleScope()
	defer scope.Close()

	domain := mustDomain(t, rt)
	scope.HandleRef(domain)
	b := mustBind(t, rt, domain, bytecode.NewUnitProvider(buildGreeterUnit()), 0)

	before := b.MemoryFootprint()
	if before <= 0 {
		t.Fatalf("footprint = %d, want positive", before)
	}
	b.CodeRecordAt(rt, 0)
	if after := b.MemoryFootprint(); after <= before {
		t.Errorf("footprint after record = %d, want more than %d", after, before)
	}
}
