package rust

import (
	"strings"
	"testing"

	"github.com/liunix61/crubit4rust/bindgen/ir"
)

func TestLowerTrivialRecord(t *testing.T) {
	rec := trivialRecord(1, "SomeStruct")
	rec.Fields = []ir.Field{{
		Name:   "x",
		Access: ir.AccessPublic,
		Type:   i32Type(),
		Offset: 0,
	}}
	ctx := newTestContext(t, rec)

	lr, err := ctx.LowerRecord(rec, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"#[derive(Clone, Copy)]",
		"#[repr(C)]",
		"pub struct SomeStruct {",
		"pub x: i32,",
	} {
		if !strings.Contains(lr.Main, want) {
			t.Errorf("Main missing %q:\n%s", want, lr.Main)
		}
	}
	for _, want := range []string{
		"const _: () = assert!(::core::mem::size_of::<SomeStruct>() == 4);",
		"const _: () = assert!(::core::mem::align_of::<SomeStruct>() == 4);",
		"const _: () = assert!(::core::mem::offset_of!(SomeStruct, x) == 0);",
	} {
		if !strings.Contains(lr.Assertions, want) {
			t.Errorf("Assertions missing %q:\n%s", want, lr.Assertions)
		}
	}
	if len(lr.ToolchainFeatures) != 0 {
		t.Errorf("ToolchainFeatures = %v", lr.ToolchainFeatures)
	}
}

func TestLowerRecordWithNontrivialDestructor(t *testing.T) {
	inner := trivialRecord(1, "Inner")
	inner.Destructor = ir.NontrivialUserDefined

	outer := trivialRecord(2, "Outer")
	outer.Destructor = ir.NontrivialMembers
	outer.CopyConstructor = ir.NontrivialMembers
	outer.Size = 8
	outer.Alignment = 4
	outer.Fields = []ir.Field{
		{Name: "inner", Access: ir.AccessPublic, Type: ir.MappedType{RsType: declNode(1)}, Offset: 0},
		{Name: "count", Access: ir.AccessPublic, Type: i32Type(), Offset: 4},
	}
	ctx := newTestContext(t, inner, outer)

	lr, err := ctx.LowerRecord(outer, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(lr.Main, "derive") {
		t.Errorf("no derives expected:\n%s", lr.Main)
	}
	// The non-Copy field is kept alive for the C++ destructor to tear
	// down; the Copy field stays plain.
	if !strings.Contains(lr.Main, "pub inner: ::core::mem::ManuallyDrop<Inner>,") {
		t.Errorf("Main = %q", lr.Main)
	}
	if !strings.Contains(lr.Main, "pub count: i32,") {
		t.Errorf("Main = %q", lr.Main)
	}
}

func TestLowerPinnedRecord(t *testing.T) {
	rec := trivialRecord(1, "Pinned")
	rec.Unpin = false
	ctx := newTestContext(t, rec)

	lr, err := ctx.LowerRecord(rec, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(lr.Main, "impl !Unpin for Pinned {}") {
		t.Errorf("Main = %q", lr.Main)
	}
	if len(lr.ToolchainFeatures) != 1 || lr.ToolchainFeatures[0] != "negative_impls" {
		t.Errorf("ToolchainFeatures = %v", lr.ToolchainFeatures)
	}
}

func TestLowerEmptyRecord(t *testing.T) {
	rec := trivialRecord(1, "Empty")
	rec.Size = 1
	rec.Alignment = 1
	ctx := newTestContext(t, rec)

	lr, err := ctx.LowerRecord(rec, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(lr.Main, "__non_field_data: [::core::mem::MaybeUninit<u8>; 1],") {
		t.Errorf("Main = %q", lr.Main)
	}
	if len(lr.AssertedFields) != 0 {
		t.Errorf("AssertedFields = %v", lr.AssertedFields)
	}
}

func TestLowerRecordPrivateFieldBecomesBlob(t *testing.T) {
	rec := trivialRecord(1, "Partial")
	rec.Size = 8
	rec.Fields = []ir.Field{
		{Name: "secret", Access: ir.AccessPrivate, Type: i32Type(), Offset: 0},
		{Name: "open", Access: ir.AccessPublic, Type: i32Type(), Offset: 4},
	}
	ctx := newTestContext(t, rec)

	lr, err := ctx.LowerRecord(rec, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(lr.Main, "secret: [::core::mem::MaybeUninit<u8>; 4],") {
		t.Errorf("Main = %q", lr.Main)
	}
	if strings.Contains(lr.Main, "pub secret") {
		t.Errorf("private field must not be public:\n%s", lr.Main)
	}
	// Blob layouts force an explicit alignment.
	if !strings.Contains(lr.Main, "#[repr(C, align(4))]") {
		t.Errorf("Main = %q", lr.Main)
	}
	if len(lr.AssertedFields) != 1 || lr.AssertedFields[0] != "open" {
		t.Errorf("AssertedFields = %v", lr.AssertedFields)
	}
}

func TestLowerRecordUnresolvableFieldBecomesBlob(t *testing.T) {
	rec := trivialRecord(1, "Holder")
	rec.Size = 8
	rec.Alignment = 8
	rec.Fields = []ir.Field{{
		Name:   "weird",
		Access: ir.AccessPublic,
		Type:   ir.MappedType{RsType: ir.TypeNode{Decl: 99}},
		Offset: 0,
	}}
	ctx := newTestContext(t, rec)

	lr, err := ctx.LowerRecord(rec, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(lr.Main, "weird: [::core::mem::MaybeUninit<u8>; 8],") {
		t.Errorf("Main = %q", lr.Main)
	}
}

func TestLowerUnion(t *testing.T) {
	rec := trivialRecord(1, "Variant")
	rec.IsUnion = true
	rec.Fields = []ir.Field{
		{Name: "i", Access: ir.AccessPublic, Type: i32Type(), Offset: 0},
	}
	ctx := newTestContext(t, rec)

	lr, err := ctx.LowerRecord(rec, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(lr.Main, "pub union Variant {") {
		t.Errorf("Main = %q", lr.Main)
	}
}

func TestLowerIncompleteRecordFails(t *testing.T) {
	rec := &ir.Record{ID: 1, Name: "Fwd", OwningUnit: testUnit, Alignment: 1, Incomplete: true}
	ctx := newTestContext(t, rec)
	if _, err := ctx.LowerRecord(rec, FeatureSupported); err == nil {
		t.Fatal("expected error for incomplete record")
	}
}

func TestLowerMonomorphizedRecordOmitted(t *testing.T) {
	elem := trivialRecord(1, "Elem")
	deleter := trivialRecord(2, "deleter_inst")
	deleter.Template = &ir.TemplateInstantiation{
		Name: "std::default_delete",
		Args: []ir.MappedType{{RsType: declNode(1)}},
	}
	uptr := trivialRecord(3, "unique_ptr_inst")
	uptr.Template = &ir.TemplateInstantiation{
		Name: "std::unique_ptr",
		Args: []ir.MappedType{{RsType: declNode(1)}, {RsType: declNode(2)}},
	}
	ctx := newTestContext(t, elem, deleter, uptr)

	lr, err := ctx.LowerRecord(uptr, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	if lr != nil {
		t.Errorf("monomorphized record must not get a definition: %+v", lr)
	}
}

func TestLowerEnum(t *testing.T) {
	e := &ir.Enum{
		ID: 1, Name: "Color", OwningUnit: testUnit,
		UnderlyingType: ir.MappedType{RsType: ir.TypeNode{Name: "i32"}},
		Enumerators: []ir.Enumerator{
			{Name: "kRed", Value: 0},
			{Name: "kBlue", Value: 5},
		},
	}
	ctx := newTestContext(t, e)

	text, err := ctx.LowerEnum(e, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"#[repr(transparent)]",
		"pub struct Color(pub i32);",
		"pub const kRed: Color = Color(0);",
		"pub const kBlue: Color = Color(5);",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q:\n%s", want, text)
		}
	}
}

func TestLowerAlias(t *testing.T) {
	a := &ir.TypeAlias{
		ID: 1, Name: "Meters", OwningUnit: testUnit,
		Underlying: ir.MappedType{RsType: ir.TypeNode{Name: "f64"}},
	}
	ctx := newTestContext(t, a)

	text, err := ctx.LowerAlias(a, FeatureSupported)
	if err != nil {
		t.Fatal(err)
	}
	if text != "pub type Meters = f64;" {
		t.Errorf("text = %q", text)
	}
}
