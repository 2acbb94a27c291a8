package bytecode

import "testing"

// TestViewStringNarrow verifies ASCII strings stay in the one-byte
// encoding.
func TestViewStringNarrow(t *testing.T) {
	v := ViewString("hello")
	if v.Wide {
		t.Errorf("Wide = true, want false")
	}
	if v.Len() != 5 {
		t.Errorf("Len = %d, want 5", v.Len())
	}
	if !v.IsASCII() {
		t.Errorf("IsASCII = false, want true")
	}
	if v.String() != "hello" {
		t.Errorf("String = %q, want %q", v.String(), "hello")
	}
}

// TestViewStringWide verifies non-ASCII strings use UTF-16 code units
// and decode back intact.
func TestViewStringWide(t *testing.T) {
	const s = "héllo✓"
	v := ViewString(s)
	if !v.Wide {
		t.Fatalf("Wide = false, want true")
	}
	if v.IsASCII() {
		t.Errorf("IsASCII = true, want false")
	}
	if v.String() != s {
		t.Errorf("String = %q, want %q", v.String(), s)
	}
}

// TestViewNarrowLatin1 verifies that narrow bytes above 0x7f decode as
// Latin-1 code units, agreeing with Unit and Hash. Foreign compilers may
// store such entries even though ViewString never produces them.
func TestViewNarrowLatin1(t *testing.T) {
	v := StringView{Bytes: []byte{'c', 'a', 'f', 0xe9}}
	if v.IsASCII() {
		t.Errorf("IsASCII = true, want false")
	}
	if v.Unit(3) != 0xe9 {
		t.Errorf("Unit(3) = %#x, want 0xe9", v.Unit(3))
	}
	if v.String() != "café" {
		t.Errorf("String = %q, want %q", v.String(), "café")
	}
	if v.Hash() != HashString("café") {
		t.Errorf("narrow hash %#x != HashString %#x", v.Hash(), HashString("café"))
	}
}

// TestHashEncodingIndependence verifies that a string hashes identically
// whether stored narrow or wide, since interning identity must not
// depend on the compiler's encoding choice.
func TestHashEncodingIndependence(t *testing.T) {
	narrow := StringView{Bytes: []byte("size")}
	raw := make([]byte, 2*len("size"))
	for i := 0; i < len("size"); i++ {
		raw[2*i] = "size"[i]
	}
	wide := StringView{Bytes: raw, Wide: true}

	if narrow.Hash() != wide.Hash() {
		t.Errorf("narrow hash %#x != wide hash %#x", narrow.Hash(), wide.Hash())
	}
	if HashString("size") != narrow.Hash() {
		t.Errorf("HashString = %#x, want %#x", HashString("size"), narrow.Hash())
	}
}

// TestHashDistinguishesContent is a sanity check that different strings
// do not trivially collide.
func TestHashDistinguishesContent(t *testing.T) {
	if HashString("length") == HashString("prototype") {
		t.Errorf("hash collision between distinct well-known names")
	}
	if HashString("") == HashString("a") {
		t.Errorf("hash of empty string equals hash of %q", "a")
	}
}

// TestBuilderTables verifies index assignment, kind runs, and the
// translation array layout of a built unit.
func TestBuilderTables(t *testing.T) {
	b := NewBuilder()
	b.SetSourceURL("test://unit.js")
	s0 := b.AddString("a string")
	i1 := b.AddIdentifier("foo")
	i2 := b.AddIdentifier("bar")
	p3 := b.AddPredefined("length", 7)
	fn := b.AddFunction(FunctionHeader{ParamCount: 2, NameIndex: i1}, []byte{0x01, 0x02})

	u := b.MustBuild()

	if s0 != 0 || i1 != 1 || i2 != 2 || p3 != 3 {
		t.Fatalf("indices = %d,%d,%d,%d, want 0,1,2,3", s0, i1, i2, p3)
	}
	if fn != 0 {
		t.Errorf("function index = %d, want 0", fn)
	}
	if u.StringCount() != 4 {
		t.Errorf("StringCount = %d, want 4", u.StringCount())
	}
	wantKinds := []StringKindEntry{{KindString, 1}, {KindIdentifier, 2}, {KindPredefined, 1}}
	for i, k := range u.StringKinds {
		if k != wantKinds[i] {
			t.Errorf("StringKinds[%d] = %+v, want %+v", i, k, wantKinds[i])
		}
	}
	wantTrans := []uint32{HashString("foo"), HashString("bar"), 7}
	if len(u.Translations) != len(wantTrans) {
		t.Fatalf("len(Translations) = %d, want %d", len(u.Translations), len(wantTrans))
	}
	for i, tr := range u.Translations {
		if tr != wantTrans[i] {
			t.Errorf("Translations[%d] = %d, want %d", i, tr, wantTrans[i])
		}
	}
	for i, want := range []string{"a string", "foo", "bar", "length"} {
		if got := u.StringValue(uint32(i)); got != want {
			t.Errorf("StringValue(%d) = %q, want %q", i, got, want)
		}
	}
}

// TestBuilderObjectKeys verifies key-sequence offsets and the
// little-endian index encoding.
func TestBuilderObjectKeys(t *testing.T) {
	b := NewBuilder()
	off1 := b.AddObjectKeys(1, 2)
	off2 := b.AddObjectKeys(0x01020304)
	u := b.u

	if off1 != 0 {
		t.Errorf("first offset = %d, want 0", off1)
	}
	if off2 != 8 {
		t.Errorf("second offset = %d, want 8", off2)
	}
	want := []byte{1, 0, 0, 0, 2, 0, 0, 0, 0x04, 0x03, 0x02, 0x01}
	if len(u.ObjectKeys) != len(want) {
		t.Fatalf("len(ObjectKeys) = %d, want %d", len(u.ObjectKeys), len(want))
	}
	for i, bb := range u.ObjectKeys {
		if bb != want[i] {
			t.Errorf("ObjectKeys[%d] = %#x, want %#x", i, bb, want[i])
		}
	}
}

// TestValidateLazyBodyAgreement verifies that a lazy flag without a nil
// body (and vice versa) is rejected.
func TestValidateLazyBodyAgreement(t *testing.T) {
	u := &Unit{
		StringEntries: []StringEntry{{Offset: 0, Length: 1}},
		StringKinds:   []StringKindEntry{{KindString, 1}},
		StringStorage: []byte("f"),
		Functions:     []FunctionHeader{{NameIndex: 0, Flags: FunctionLazy}},
		Bodies:        [][]byte{{0x01}},
	}
	if err := u.Validate(); err == nil {
		t.Errorf("Validate accepted a lazy function with a body")
	}

	u.Functions[0].Flags = 0
	u.Bodies[0] = nil
	if err := u.Validate(); err == nil {
		t.Errorf("Validate accepted a compiled function without a body")
	}
}

// TestValidateBounds verifies cross-table index checks.
func TestValidateBounds(t *testing.T) {
	u := &Unit{
		StringEntries: []StringEntry{{Offset: 0, Length: 10}},
		StringKinds:   []StringKindEntry{{KindString, 1}},
		StringStorage: []byte("short"),
	}
	if err := u.Validate(); err == nil {
		t.Errorf("Validate accepted a string entry past storage end")
	}

	u = &Unit{
		StringEntries: []StringEntry{{Offset: 0, Length: 1}},
		StringKinds:   []StringKindEntry{{KindString, 2}},
		StringStorage: []byte("x"),
	}
	if err := u.Validate(); err == nil {
		t.Errorf("Validate accepted a kind table covering the wrong count")
	}

	u = &Unit{
		StringEntries: []StringEntry{{Offset: 0, Length: 1}},
		StringKinds:   []StringKindEntry{{KindString, 1}},
		StringStorage: []byte("x"),
		Functions:     []FunctionHeader{{NameIndex: 5}},
		Bodies:        [][]byte{{0x01}},
	}
	if err := u.Validate(); err == nil {
		t.Errorf("Validate accepted a function name index out of range")
	}
}
