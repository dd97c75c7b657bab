package rust

import (
	"errors"
	"strings"
	"testing"

	"github.com/liunix61/crubit4rust/bindgen/ir"
)

const testUnit = ir.UnitID("//foo:bar")

func newTestUnit(t *testing.T, items ...ir.Item) *ir.Unit {
	t.Helper()
	u := &ir.Unit{
		FormatVersion: "1.0.0",
		Current:       testUnit,
		PanicStrategy: "abort",
		Items:         items,
	}
	if err := u.Index(); err != nil {
		t.Fatalf("Index: %v", err)
	}
	return u
}

func trivialRecord(id ir.DeclID, name string) *ir.Record {
	return &ir.Record{
		ID:              id,
		Name:            name,
		OwningUnit:      testUnit,
		Size:            4,
		Alignment:       4,
		CopyConstructor: ir.Trivial,
		MoveConstructor: ir.Trivial,
		Destructor:      ir.Trivial,
		Unpin:           true,
	}
}

func newTestContext(t *testing.T, items ...ir.Item) *Context {
	t.Helper()
	return &Context{
		Unit:              newTestUnit(t, items...),
		TemplateAllowlist: map[string]bool{"std::string_view": true},
		Monomorphizations: []MonoRule{
			{Template: "std::unique_ptr", RustGeneric: "cc_std::std::unique_ptr"},
		},
	}
}

func declNode(id ir.DeclID) ir.TypeNode { return ir.TypeNode{Decl: id} }

func TestResolvePrimitives(t *testing.T) {
	ctx := newTestContext(t)
	for _, spelling := range []string{"i32", "bool", "f64", "usize", "::core::ffi::c_int", "()"} {
		k, err := ctx.Resolve(ir.TypeNode{Name: spelling})
		if err != nil {
			t.Fatalf("Resolve(%q): %v", spelling, err)
		}
		p, ok := k.(*PrimitiveKind)
		if !ok || string(p.Kind) != spelling {
			t.Errorf("Resolve(%q) = %#v", spelling, k)
		}
	}
}

func TestResolvePointerAndReference(t *testing.T) {
	ctx := newTestContext(t)
	ctx.Lifetimes = map[ir.LifetimeID]string{1: "a"}

	k, err := ctx.Resolve(ir.TypeNode{Name: "*mut", TypeArgs: []ir.TypeNode{{Name: "i32"}}})
	if err != nil {
		t.Fatal(err)
	}
	if FormatType(k) != "*mut i32" {
		t.Errorf("FormatType = %q", FormatType(k))
	}

	k, err = ctx.Resolve(ir.TypeNode{
		Name:      "&",
		Lifetimes: []ir.LifetimeID{1},
		TypeArgs:  []ir.TypeNode{{Name: "i32"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if FormatType(k) != "&'a i32" {
		t.Errorf("FormatType = %q", FormatType(k))
	}
}

func TestResolveReferenceNeedsLifetime(t *testing.T) {
	ctx := newTestContext(t)
	_, err := ctx.Resolve(ir.TypeNode{Name: "&", TypeArgs: []ir.TypeNode{{Name: "i32"}}})
	if !errors.Is(err, ErrMissingLifetime) {
		t.Fatalf("err = %v, want ErrMissingLifetime", err)
	}
}

func TestResolvePointerNeedsArgument(t *testing.T) {
	ctx := newTestContext(t)
	_, err := ctx.Resolve(ir.TypeNode{Name: "*const"})
	if !errors.Is(err, ErrMissingTypeArgument) {
		t.Fatalf("err = %v, want ErrMissingTypeArgument", err)
	}
}

func TestResolveDecl(t *testing.T) {
	rec := trivialRecord(1, "SomeStruct")
	enum := &ir.Enum{ID: 2, Name: "Color", OwningUnit: testUnit,
		UnderlyingType: ir.MappedType{RsType: ir.TypeNode{Name: "i32"}}}
	alias := &ir.TypeAlias{ID: 3, Name: "Meters", OwningUnit: testUnit,
		Underlying: ir.MappedType{RsType: ir.TypeNode{Name: "f64"}}}
	ctx := newTestContext(t, rec, enum, alias)

	k, err := ctx.Resolve(declNode(1))
	if err != nil {
		t.Fatal(err)
	}
	if rk, ok := k.(*RecordKind); !ok || rk.Record != rec || rk.Path != "" {
		t.Errorf("Resolve(record) = %#v", k)
	}

	k, err = ctx.Resolve(declNode(3))
	if err != nil {
		t.Fatal(err)
	}
	ak, ok := k.(*AliasKind)
	if !ok {
		t.Fatalf("Resolve(alias) = %#v", k)
	}
	if _, ok := ak.Underlying.(*PrimitiveKind); !ok {
		t.Errorf("alias underlying = %#v", ak.Underlying)
	}

	if _, err := ctx.Resolve(declNode(42)); !errors.Is(err, ErrUnresolvedIdentifier) {
		t.Errorf("unknown decl err = %v", err)
	}
	if _, err := ctx.Resolve(ir.TypeNode{Decl: 1, TypeArgs: []ir.TypeNode{{Name: "i32"}}}); !errors.Is(err, ErrUnsupportedTypeArguments) {
		t.Errorf("decl with args err = %v", err)
	}
}

func TestResolveIncompleteAndBridge(t *testing.T) {
	fwd := &ir.Record{ID: 1, Name: "Fwd", OwningUnit: testUnit, Alignment: 1, Incomplete: true}
	bridged := trivialRecord(2, "Status")
	bridged.Bridge = &ir.BridgeInfo{RustName: "::status::Status", CppToRust: "ToRust", RustToCpp: "ToCpp"}
	ctx := newTestContext(t, fwd, bridged)

	k, err := ctx.Resolve(declNode(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := k.(*IncompleteRecord); !ok {
		t.Errorf("Resolve(fwd) = %#v", k)
	}

	k, err = ctx.Resolve(declNode(2))
	if err != nil {
		t.Fatal(err)
	}
	bk, ok := k.(*BridgeKind)
	if !ok || bk.Name != "::status::Status" {
		t.Errorf("Resolve(bridge) = %#v", k)
	}
	if FormatType(k) != "::status::Status" {
		t.Errorf("FormatType = %q", FormatType(k))
	}
}

func TestResolveFuncPtr(t *testing.T) {
	ctx := newTestContext(t)
	node := ir.TypeNode{
		Name: "fn",
		Abi:  "C",
		TypeArgs: []ir.TypeNode{
			{Name: "i32"}, {Name: "f64"}, {Name: "bool"},
		},
	}
	k, err := ctx.Resolve(node)
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatType(k); got != `extern "C" fn(i32, f64) -> bool` {
		t.Errorf("FormatType = %q", got)
	}

	node.Abi = ""
	if _, err := ctx.Resolve(node); err == nil {
		t.Error("expected error for missing ABI tag")
	}
}

func TestCrateQualification(t *testing.T) {
	local := trivialRecord(1, "Local")
	foreign := trivialRecord(2, "Foreign")
	foreign.OwningUnit = "//other:dep"
	ctx := newTestContext(t, local, foreign)

	k, err := ctx.Resolve(declNode(2))
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatType(k); got != "dep::Foreign" {
		t.Errorf("foreign FormatType = %q", got)
	}

	k, err = ctx.Resolve(declNode(1))
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatType(k); got != "Local" {
		t.Errorf("local FormatType = %q", got)
	}
	if got := FormatTypeForDetail(k); got != "crate::Local" {
		t.Errorf("local detail FormatType = %q", got)
	}
}

func TestMonomorphizationMatch(t *testing.T) {
	elem := trivialRecord(1, "Elem")
	deleter := trivialRecord(2, "default_delete_inst")
	deleter.Template = &ir.TemplateInstantiation{
		Name: "std::default_delete",
		Args: []ir.MappedType{{RsType: declNode(1)}},
	}
	uptr := trivialRecord(3, "unique_ptr_inst")
	uptr.Unpin = false
	uptr.Template = &ir.TemplateInstantiation{
		Name: "std::unique_ptr",
		Args: []ir.MappedType{{RsType: declNode(1)}, {RsType: declNode(2)}},
	}
	ctx := newTestContext(t, elem, deleter, uptr)

	k, err := ctx.Resolve(declNode(3))
	if err != nil {
		t.Fatal(err)
	}
	rk, ok := k.(*RecordKind)
	if !ok || rk.Mono == nil {
		t.Fatalf("Resolve(unique_ptr) = %#v", k)
	}
	if got := FormatType(k); got != "cc_std::std::unique_ptr<Elem>" {
		t.Errorf("FormatType = %q", got)
	}
	if !IsUnpin(k) {
		t.Error("monomorphized generic must count as Unpin")
	}
}

func TestMonomorphizationRejectsForeignDeleter(t *testing.T) {
	elem := trivialRecord(1, "Elem")
	other := trivialRecord(2, "Other")
	deleter := trivialRecord(3, "deleter_inst")
	deleter.Template = &ir.TemplateInstantiation{
		Name: "std::default_delete",
		Args: []ir.MappedType{{RsType: declNode(2)}},
	}
	uptr := trivialRecord(4, "unique_ptr_inst")
	uptr.Template = &ir.TemplateInstantiation{
		Name: "std::unique_ptr",
		Args: []ir.MappedType{{RsType: declNode(1)}, {RsType: declNode(3)}},
	}
	ctx := newTestContext(t, elem, other, deleter, uptr)

	k, err := ctx.Resolve(declNode(4))
	if err != nil {
		t.Fatal(err)
	}
	if rk := k.(*RecordKind); rk.Mono != nil {
		t.Errorf("deleter mismatch must not match the table: %#v", rk.Mono)
	}
}

func TestDFSOrder(t *testing.T) {
	a := &PrimitiveKind{Kind: "i8"}
	b := &PrimitiveKind{Kind: "i16"}
	c := &PrimitiveKind{Kind: "i32"}
	d := &PrimitiveKind{Kind: "i64"}

	fn := &FuncPtr{Abi: "C", Params: []TypeKind{a, b}, Return: c}
	got := dfs(fn)
	want := []TypeKind{fn, a, b, c}
	if len(got) != len(want) {
		t.Fatalf("dfs returned %d nodes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dfs[%d] = %#v, want %#v", i, got[i], want[i])
		}
	}

	// Nested constructors keep pre-order.
	tree := &Pointer{Pointee: &OptionKind{Inner: &SliceKind{Element: d}}}
	got = dfs(tree)
	if len(got) != 4 || got[3] != d {
		t.Errorf("nested dfs = %#v", got)
	}
}

func TestFormatPinWrapping(t *testing.T) {
	pinned := trivialRecord(1, "Pinned")
	pinned.Unpin = false
	ctx := newTestContext(t, pinned)
	ctx.Lifetimes = map[ir.LifetimeID]string{1: "a"}

	k, err := ctx.Resolve(ir.TypeNode{
		Name:      "&mut",
		Lifetimes: []ir.LifetimeID{1},
		TypeArgs:  []ir.TypeNode{declNode(1)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatType(k); got != "::core::pin::Pin<&'a mut Pinned>" {
		t.Errorf("FormatType = %q", got)
	}
}

func TestFormatReturnUnit(t *testing.T) {
	if got := FormatReturn(&PrimitiveKind{Kind: PrimitiveUnit}); got != "" {
		t.Errorf("unit return = %q", got)
	}
	if got := FormatReturn(&PrimitiveKind{Kind: "i32"}); got != " -> i32" {
		t.Errorf("i32 return = %q", got)
	}
}

func TestFormatOptionAndSlice(t *testing.T) {
	opt := &OptionKind{Inner: &Reference{Referent: &PrimitiveKind{Kind: "i32"}, Lifetime: Elided}}
	if got := FormatType(opt); got != "Option<&i32>" {
		t.Errorf("FormatType = %q", got)
	}
	sl := &SliceKind{Element: &PrimitiveKind{Kind: "u8"}}
	if got := FormatType(sl); got != "[u8]" {
		t.Errorf("FormatType = %q", got)
	}
}

func TestRvalueReferenceFormat(t *testing.T) {
	r := &RvalueReference{Referent: &PrimitiveKind{Kind: "i32"}, Mut: true, Lifetime: "a"}
	if got := FormatType(r); got != "::ctor::RvalueReference<'a, i32>" {
		t.Errorf("FormatType = %q", got)
	}
	cr := &RvalueReference{Referent: &PrimitiveKind{Kind: "i32"}, Lifetime: Elided}
	if got := FormatType(cr); !strings.HasPrefix(got, "::ctor::ConstRvalueReference<'_, ") {
		t.Errorf("FormatType = %q", got)
	}
}
