package vm

import (
	"errors"
	"testing"
)

// testRoots is a registered root source with explicit strong and weak
// slots, standing in for the structures bindings root in production.
type testRoots struct {
	strong []Ref
	weak   []Ref
}

func (r *testRoots) MarkRoots(a *RootAcceptor, _ bool) {
	for _, ref := range r.strong {
		a.AcceptRef(ref)
	}
}

func (r *testRoots) MarkWeakRoots(w *WeakAcceptor) {
	for i := range r.weak {
		w.AcceptWeakRef(&r.weak[i])
	}
}

func (r *testRoots) MarkDomainRef(*WeakAcceptor) {}

func mustAllocString(t *testing.T, rt *Runtime, s string) Ref {
	t.Helper()
	r, err := NewStringObject(rt, s)
	if err != nil {
		t.Fatalf("NewStringObject failed: %v", err)
	}
	return r
}

// TestAllocAndGet verifies arena round trips.
func TestAllocAndGet(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()

	r := mustAllocString(t, rt, "cell")
	if r == NullRef {
		t.Fatal("Alloc returned NullRef")
	}
	if got := rt.StringAt(r).Str(); got != "cell" {
		t.Errorf("Str = %q, want %q", got, "cell")
	}
	if rt.Heap().Get(NullRef) != nil {
		t.Error("Get(NullRef) != nil")
	}
	if got := rt.HeapStats().Live; got != 1 {
		t.Errorf("Live = %d, want 1", got)
	}
}

// TestCollectSweepsUnrooted verifies an unreferenced cell dies on the
// next pass and its slot is reused by the next allocation.
func TestCollectSweepsUnrooted(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()

	r := mustAllocString(t, rt, "doomed")
	rt.Collect()

	st := rt.HeapStats()
	if st.Live != 0 {
		t.Errorf("Live after collect = %d, want 0", st.Live)
	}
	if st.LastSwept != 1 {
		t.Errorf("LastSwept = %d, want 1", st.LastSwept)
	}
	if rt.Heap().Get(r) != nil {
		t.Error("swept cell still resolves")
	}

	// The freed slot is recycled: capacity stays flat.
	capBefore := rt.HeapStats().Capacity
	mustAllocString(t, rt, "replacement")
	if got := rt.HeapStats().Capacity; got != capBefore {
		t.Errorf("Capacity = %d, want %d (free-list reuse)", got, capBefore)
	}
}

// TestHandleKeepsCellAlive verifies handle rooting across collections
// and release on scope close.
func TestHandleKeepsCellAlive(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()

	scope := rt.NewHandleScope()
	h := scope.HandleRef(mustAllocString(t, rt, "rooted"))

	rt.Collect()
	if got := rt.StringAt(h.Ref()).Str(); got != "rooted" {
		t.Errorf("Str after collect = %q, want %q", got, "rooted")
	}

	scope.Close()
	rt.Collect()
	if rt.HeapStats().Live != 0 {
		t.Error("cell survived its scope")
	}
}

// TestNestedScopesCloseInStackOrder verifies scope discipline is
// enforced.
func TestNestedScopesCloseInStackOrder(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()

	outer := rt.NewHandleScope()
	inner := rt.NewHandleScope()

	mustPanic(t, func() { outer.Close() })

	inner.Close()
	outer.Close()
	mustPanic(t, func() { inner.Close() })
}

// TestFlushToMarker verifies per-iteration handle flushing: handles
// taken after the marker stop rooting, handles before it keep rooting.
func TestFlushToMarker(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()

	scope := rt.NewHandleScope()
	defer scope.Close()

	kept := scope.HandleRef(mustAllocString(t, rt, "kept"))
	marker := scope.Marker()
	for i := 0; i < 3; i++ {
		scope.HandleRef(mustAllocString(t, rt, "scratch"))
		scope.FlushToMarker(marker)
	}

	rt.Collect()
	if got := rt.HeapStats().Live; got != 1 {
		t.Errorf("Live = %d, want 1 (scratch cells flushed)", got)
	}
	if got := rt.StringAt(kept.Ref()).Str(); got != "kept" {
		t.Errorf("kept = %q, want %q", got, "kept")
	}
}

// TestHandleOutlivesFlushPanics verifies a flushed handle refuses reads.
func TestHandleOutlivesFlushPanics(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()

	scope := rt.NewHandleScope()
	defer scope.Close()

	marker := scope.Marker()
	h := scope.Handle(FromSmallInt(1))
	scope.FlushToMarker(marker)

	mustPanic(t, func() { h.Value() })
}

// TestRootSourceMarking verifies registered root sources keep their
// strong slots alive and stop doing so once removed.
func TestRootSourceMarking(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()

	roots := &testRoots{strong: []Ref{mustAllocString(t, rt, "pinned")}}
	rt.Heap().AddRoot(roots)

	rt.Collect()
	if got := rt.StringAt(roots.strong[0]).Str(); got != "pinned" {
		t.Errorf("Str = %q, want %q", got, "pinned")
	}

	rt.Heap().RemoveRoot(roots)
	rt.Collect()
	if rt.HeapStats().Live != 0 {
		t.Error("cell survived root removal")
	}
}

// TestWeakRefCleared verifies the weak phase: a slot whose target died
// is nulled, a slot whose target is strongly held is kept.
func TestWeakRefCleared(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()

	held := mustAllocString(t, rt, "held")
	dying := mustAllocString(t, rt, "dying")
	roots := &testRoots{strong: []Ref{held}, weak: []Ref{held, dying}}
	rt.Heap().AddRoot(roots)
	defer rt.Heap().RemoveRoot(roots)

	rt.Collect()
	if roots.weak[0] != held {
		t.Errorf("weak slot to live cell = %d, want %d", roots.weak[0], held)
	}
	if roots.weak[1] != NullRef {
		t.Errorf("weak slot to dead cell = %d, want NullRef", roots.weak[1])
	}
}

// TestObjectTracing verifies strong references inside cells keep their
// targets alive transitively.
func TestObjectTracing(t *testing.T) {
	rt := NewRuntime(Config{})
	defer rt.Shutdown()

	scope := rt.NewHandleScope()
	defer scope.Close()

	inner := mustAllocString(t, rt, "inner")
	obj, err := NewObject(rt, NullRef, 2)
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	h := scope.HandleRef(obj)
	rt.ObjectAt(obj).SetSlot(0, FromRef(inner))

	rt.Collect()
	o := rt.ObjectAt(h.Ref())
	if got := rt.StringAt(o.Slot(0).AsRef()).Str(); got != "inner" {
		t.Errorf("traced slot = %q, want %q", got, "inner")
	}
	if got := rt.HeapStats().Live; got != 2 {
		t.Errorf("Live = %d, want 2", got)
	}
}

// TestAllocOutOfMemory verifies the cell cap surfaces as an
// out-of-memory Exception once a collection cannot help.
func TestAllocOutOfMemory(t *testing.T) {
	rt := NewRuntime(Config{HeapMaxCells: 4})
	defer rt.Shutdown()

	scope := rt.NewHandleScope()
	defer scope.Close()

	for i := 0; i < 4; i++ {
		scope.HandleRef(mustAllocString(t, rt, "pinned"))
	}

	_, err := NewStringObject(rt, "one too many")
	if err == nil {
		t.Fatal("allocation past the cap succeeded")
	}
	exc, ok := AsException(err)
	if !ok {
		t.Fatalf("error is %T, want *Exception", err)
	}
	if exc.Kind != ExcOutOfMemory {
		t.Errorf("Kind = %v, want %v", exc.Kind, ExcOutOfMemory)
	}

	// Unpinning lets the next allocation reclaim and proceed.
	scope.FlushToMarker(0)
	if _, err := NewStringObject(rt, "fits again"); err != nil {
		t.Errorf("allocation after unpinning failed: %v", err)
	}
}

// TestGCStressCollectsEveryAllocation verifies the stress knob.
func TestGCStressCollectsEveryAllocation(t *testing.T) {
	rt := NewRuntime(Config{GCStress: true})
	defer rt.Shutdown()

	scope := rt.NewHandleScope()
	defer scope.Close()
	for i := 0; i < 5; i++ {
		scope.HandleRef(mustAllocString(t, rt, "survivor"))
	}

	if got := rt.HeapStats().Collections; got != 5 {
		t.Errorf("Collections = %d, want 5", got)
	}
	if got := rt.HeapStats().Live; got != 5 {
		t.Errorf("Live = %d, want 5", got)
	}
}

// TestThresholdGrowth verifies the threshold scales with the surviving
// set instead of staying at its initial value.
func TestThresholdGrowth(t *testing.T) {
	rt := NewRuntime(Config{HeapInitialThreshold: 4, HeapGrowthFactor: 3})
	defer rt.Shutdown()

	scope := rt.NewHandleScope()
	defer scope.Close()
	for i := 0; i < 4; i++ {
		scope.HandleRef(mustAllocString(t, rt, "survivor"))
	}
	// Crossing the threshold triggers a pass; all four survive, so the
	// threshold becomes 4 * 3.
	mustAllocString(t, rt, "trigger")

	st := rt.HeapStats()
	if st.Collections == 0 {
		t.Fatal("threshold crossing ran no collection")
	}
	if st.Threshold != 12 {
		t.Errorf("Threshold = %d, want 12", st.Threshold)
	}
}

// TestExceptionChainFromAlloc verifies allocation failures stay
// inspectable through errors.As from wrapped call sites.
func TestExceptionChainFromAlloc(t *testing.T) {
	rt := NewRuntime(Config{HeapMaxCells: 1})
	defer rt.Shutdown()

	scope := rt.NewHandleScope()
	defer scope.Close()
	scope.HandleRef(mustAllocString(t, rt, "pinned"))

	_, err := rt.Symbols().Intern(rt, "overflow", 0)
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcOutOfMemory {
		t.Errorf("Intern error = %v, want out-of-memory Exception", err)
	}
}
