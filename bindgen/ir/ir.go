// Package ir defines the intermediate representation consumed by the
// bindings generator: a fully type-resolved tree of C++ declarations with
// sizes, offsets, calling conventions and special-member classification
// already computed by the front end.
//
// The IR is built once per compilation unit and is immutable afterwards.
// Every downstream component only queries it.
package ir

import (
	"fmt"
	"strings"
)

// FormatVersionConstraint is the range of IR format versions this
// generator understands. Units reporting a version outside this range are
// rejected at load time.
const FormatVersionConstraint = "^1.0"

// UnitID identifies a compilation unit (a build target in the front
// end's build system, e.g. "//foo/bar:baz").
type UnitID string

// CrateName returns the last path component of the unit id, usable as a
// Rust crate name for cross-unit qualification.
func (u UnitID) CrateName() string {
	s := string(u)
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ':', '/':
			return s[i+1:]
		}
	}
	return s
}

// DeclID identifies a declaration within a unit. Zero means "no
// declaration".
type DeclID uint64

// Location is a source position in the original C++ input.
type Location struct {
	Filename string `json:"filename" msgpack:"filename"`
	Line     int    `json:"line" msgpack:"line"`
}

func (l Location) String() string {
	if l.Filename == "" {
		return "<unknown location>"
	}
	return fmt.Sprintf("%s:%d", l.Filename, l.Line)
}

// AccessSpecifier is a C++ member access level.
type AccessSpecifier string

const (
	AccessPublic    AccessSpecifier = "public"
	AccessProtected AccessSpecifier = "protected"
	AccessPrivate   AccessSpecifier = "private"
)

// SpecialMember classifies a record's copy constructor, move constructor
// or destructor.
type SpecialMember string

const (
	// Trivial: compiler-generated and trivial.
	Trivial SpecialMember = "trivial"
	// NontrivialMembers: defaulted, but nontrivial because a member (or
	// base) has a nontrivial special member.
	NontrivialMembers SpecialMember = "nontrivial_members"
	// NontrivialUserDefined: user-provided definition.
	NontrivialUserDefined SpecialMember = "nontrivial_user_defined"
	// Deleted: explicitly or implicitly deleted.
	Deleted SpecialMember = "deleted"
	// Unavailable: inaccessible (e.g. private) from outside the record.
	Unavailable SpecialMember = "unavailable"
)

// LifetimeID identifies a lifetime parameter within one function.
type LifetimeID int

// LifetimeName binds a LifetimeID to its spelled name.
type LifetimeName struct {
	ID   LifetimeID `json:"id" msgpack:"id"`
	Name string     `json:"name" msgpack:"name"`
}

// TypeNode is one node of the Rust-facing type spelling produced by the
// front end.
//
// A node either names a type constructor or primitive (Name != "") or
// references a declaration by id (Name == "", Decl != 0). Constructor
// nodes carry their arguments in TypeArgs and, for references, exactly
// one lifetime in Lifetimes. Function-pointer nodes ("fn") additionally
// carry the ABI tag.
type TypeNode struct {
	Name      string       `json:"name,omitempty" msgpack:"name,omitempty"`
	Abi       string       `json:"abi,omitempty" msgpack:"abi,omitempty"`
	Lifetimes []LifetimeID `json:"lifetime_args,omitempty" msgpack:"lifetime_args,omitempty"`
	TypeArgs  []TypeNode   `json:"type_args,omitempty" msgpack:"type_args,omitempty"`
	Decl      DeclID       `json:"decl_id,omitempty" msgpack:"decl_id,omitempty"`
}

// IsUnit reports whether the node spells the unit (void) type.
func (t TypeNode) IsUnit() bool { return t.Name == "()" }

// String renders the node for diagnostics, not for emission.
func (t TypeNode) String() string {
	name := t.Name
	if name == "" {
		name = fmt.Sprintf("#%d", t.Decl)
	}
	if len(t.TypeArgs) == 0 {
		return name
	}
	args := make([]string, len(t.TypeArgs))
	for i, a := range t.TypeArgs {
		args[i] = a.String()
	}
	return name + "<" + strings.Join(args, ", ") + ">"
}

// CcType is the C++ spelling of a type, used when emitting thunks.
type CcType struct {
	Name     string   `json:"name,omitempty" msgpack:"name,omitempty"`
	Const    bool     `json:"is_const,omitempty" msgpack:"is_const,omitempty"`
	TypeArgs []CcType `json:"type_args,omitempty" msgpack:"type_args,omitempty"`
	Decl     DeclID   `json:"decl_id,omitempty" msgpack:"decl_id,omitempty"`
}

// IsVoid reports whether the C++ type is void.
func (t CcType) IsVoid() bool { return t.Name == "void" }

// MappedType pairs the Rust-facing and C++-facing spellings of one type.
type MappedType struct {
	RsType TypeNode `json:"rs_type" msgpack:"rs_type"`
	CcType CcType   `json:"cc_type" msgpack:"cc_type"`
}

// Field is one record member.
type Field struct {
	Name   string          `json:"identifier" msgpack:"identifier"`
	Doc    string          `json:"doc_comment,omitempty" msgpack:"doc_comment,omitempty"`
	Type   MappedType      `json:"type" msgpack:"type"`
	Access AccessSpecifier `json:"access" msgpack:"access"`
	// Offset is the field offset in bytes from the start of the record.
	Offset uint64 `json:"offset" msgpack:"offset"`
}

// TemplateInstantiation describes a record that is an instantiation of a
// class template.
type TemplateInstantiation struct {
	Name string       `json:"template_name" msgpack:"template_name"`
	Args []MappedType `json:"template_args" msgpack:"template_args"`
}

// BridgeInfo maps a record onto a hand-written Rust equivalent with
// explicit conversion functions in both directions.
type BridgeInfo struct {
	RustName  string `json:"rust_name" msgpack:"rust_name"`
	CppToRust string `json:"cpp_to_rust_converter" msgpack:"cpp_to_rust_converter"`
	RustToCpp string `json:"rust_to_cpp_converter" msgpack:"rust_to_cpp_converter"`
}

// Record is a C++ struct, class or union.
type Record struct {
	ID         DeclID   `json:"id" msgpack:"id" validate:"required"`
	Name       string   `json:"identifier" msgpack:"identifier" validate:"required"`
	Doc        string   `json:"doc_comment,omitempty" msgpack:"doc_comment,omitempty"`
	OwningUnit UnitID   `json:"owning_unit" msgpack:"owning_unit" validate:"required"`
	Loc        Location `json:"source_loc" msgpack:"source_loc"`

	Size      uint64  `json:"size" msgpack:"size"`
	Alignment uint64  `json:"alignment" msgpack:"alignment" validate:"required"`
	Fields    []Field `json:"fields" msgpack:"fields"`

	CopyConstructor SpecialMember `json:"copy_constructor" msgpack:"copy_constructor"`
	MoveConstructor SpecialMember `json:"move_constructor" msgpack:"move_constructor"`
	Destructor      SpecialMember `json:"destructor" msgpack:"destructor"`

	IsAbstract bool `json:"is_abstract,omitempty" msgpack:"is_abstract,omitempty"`
	IsUnion    bool `json:"is_union,omitempty" msgpack:"is_union,omitempty"`
	// Incomplete marks a forward declaration with no definition in this
	// unit.
	Incomplete bool `json:"is_incomplete,omitempty" msgpack:"is_incomplete,omitempty"`
	// Unpin reports whether values of this type may be relocated by a
	// shallow bitwise move. Trivially relocatable types are unpin; types
	// with address identity are not.
	Unpin bool `json:"is_unpin" msgpack:"is_unpin"`

	Template *TemplateInstantiation `json:"template_instantiation,omitempty" msgpack:"template_instantiation,omitempty"`
	Bridge   *BridgeInfo            `json:"bridge_type_info,omitempty" msgpack:"bridge_type_info,omitempty"`
}

// FuncKind distinguishes the flavors of callable declarations.
type FuncKind string

const (
	FuncNamed       FuncKind = "function"
	FuncConstructor FuncKind = "constructor"
	FuncDestructor  FuncKind = "destructor"
	FuncOperator    FuncKind = "operator"
)

// Param is one function parameter.
type Param struct {
	Name string     `json:"identifier" msgpack:"identifier"`
	Type MappedType `json:"type" msgpack:"type"`
}

// MemberInfo is present on member functions.
type MemberInfo struct {
	RecordID DeclID `json:"record_id" msgpack:"record_id" validate:"required"`
	// IsInstance is false for static member functions.
	IsInstance bool `json:"is_instance,omitempty" msgpack:"is_instance,omitempty"`
	IsVirtual  bool `json:"is_virtual,omitempty" msgpack:"is_virtual,omitempty"`
}

// Func is one callable declaration. For constructors and destructors the
// first parameter is the implicit `__this` output/receiver parameter.
type Func struct {
	Name       string   `json:"identifier" msgpack:"identifier"`
	Kind       FuncKind `json:"kind" msgpack:"kind" validate:"required"`
	Doc        string   `json:"doc_comment,omitempty" msgpack:"doc_comment,omitempty"`
	OwningUnit UnitID   `json:"owning_unit" msgpack:"owning_unit" validate:"required"`
	Loc        Location `json:"source_loc" msgpack:"source_loc"`

	MangledName string         `json:"mangled_name" msgpack:"mangled_name" validate:"required"`
	Params      []Param        `json:"params" msgpack:"params"`
	ReturnType  MappedType     `json:"return_type" msgpack:"return_type"`
	Lifetimes   []LifetimeName `json:"lifetime_params,omitempty" msgpack:"lifetime_params,omitempty"`

	// CallingConvention is the ABI tag, "C" for the default/compatible
	// convention.
	CallingConvention string `json:"calling_convention" msgpack:"calling_convention"`
	IsInline          bool   `json:"is_inline,omitempty" msgpack:"is_inline,omitempty"`
	IsVariadic        bool   `json:"is_variadic,omitempty" msgpack:"is_variadic,omitempty"`

	Member *MemberInfo `json:"member_metadata,omitempty" msgpack:"member_metadata,omitempty"`
}

// IsInstanceMethod reports whether the function takes an implicit `this`.
func (f *Func) IsInstanceMethod() bool {
	return f.Member != nil && f.Member.IsInstance
}

// Enum is a C++ enum or enum class.
type Enum struct {
	ID         DeclID   `json:"id" msgpack:"id" validate:"required"`
	Name       string   `json:"identifier" msgpack:"identifier" validate:"required"`
	Doc        string   `json:"doc_comment,omitempty" msgpack:"doc_comment,omitempty"`
	OwningUnit UnitID   `json:"owning_unit" msgpack:"owning_unit" validate:"required"`
	Loc        Location `json:"source_loc" msgpack:"source_loc"`

	UnderlyingType MappedType   `json:"underlying_type" msgpack:"underlying_type"`
	Enumerators    []Enumerator `json:"enumerators" msgpack:"enumerators"`
}

// Enumerator is one enum constant.
type Enumerator struct {
	Name  string `json:"identifier" msgpack:"identifier"`
	Value int64  `json:"value" msgpack:"value"`
}

// TypeAlias is a typedef or using-declaration.
type TypeAlias struct {
	ID         DeclID   `json:"id" msgpack:"id" validate:"required"`
	Name       string   `json:"identifier" msgpack:"identifier" validate:"required"`
	Doc        string   `json:"doc_comment,omitempty" msgpack:"doc_comment,omitempty"`
	OwningUnit UnitID   `json:"owning_unit" msgpack:"owning_unit" validate:"required"`
	Loc        Location `json:"source_loc" msgpack:"source_loc"`

	Underlying MappedType `json:"underlying_type" msgpack:"underlying_type"`
}

// UnsupportedItem is a declaration the front end already refused to
// model. The emitter reproduces it as a placeholder comment.
type UnsupportedItem struct {
	Name    string   `json:"name" msgpack:"name"`
	Message string   `json:"message" msgpack:"message"`
	Loc     Location `json:"source_loc" msgpack:"source_loc"`
}

// Comment is a free-standing comment preserved from the input.
type Comment struct {
	Text string `json:"text" msgpack:"text"`
}

// Item is one declaration in a unit. The closed set of implementations
// is Func, Record, Enum, TypeAlias, UnsupportedItem and Comment.
type Item interface {
	item()
}

func (*Func) item()            {}
func (*Record) item()          {}
func (*Enum) item()            {}
func (*TypeAlias) item()       {}
func (*UnsupportedItem) item() {}
func (*Comment) item()         {}

// Unit is one compilation unit: ordered declarations plus unit-level
// metadata. Source order of Items is significant and preserved by the
// emitter.
type Unit struct {
	FormatVersion string   `json:"format_version" msgpack:"format_version" validate:"required"`
	Current       UnitID   `json:"current_unit" msgpack:"current_unit" validate:"required"`
	StdlibUnits   []UnitID `json:"stdlib_units,omitempty" msgpack:"stdlib_units,omitempty"`
	// PanicStrategy is the unwind model the unit was compiled with.
	// Only "abort" is sound across the ABI boundary.
	PanicStrategy string   `json:"panic_strategy" msgpack:"panic_strategy"`
	UsedHeaders   []string `json:"used_headers,omitempty" msgpack:"used_headers,omitempty"`
	Items         []Item   `json:"items" msgpack:"-"`

	byID map[DeclID]Item
}

// Index builds the declaration lookup table. It must be called once
// after the unit is constructed and before any lookup.
func (u *Unit) Index() error {
	u.byID = make(map[DeclID]Item)
	for _, it := range u.Items {
		var id DeclID
		switch d := it.(type) {
		case *Record:
			id = d.ID
		case *Enum:
			id = d.ID
		case *TypeAlias:
			id = d.ID
		default:
			continue
		}
		if _, dup := u.byID[id]; dup {
			return fmt.Errorf("duplicate decl id %d in unit %q", id, u.Current)
		}
		u.byID[id] = it
	}
	return nil
}

// ItemForID returns the declaration with the given id, or nil.
func (u *Unit) ItemForID(id DeclID) Item {
	return u.byID[id]
}

// RecordForID returns the record with the given id, or nil.
func (u *Unit) RecordForID(id DeclID) *Record {
	r, _ := u.byID[id].(*Record)
	return r
}

// Functions iterates over all function items in source order.
func (u *Unit) Functions() []*Func {
	var out []*Func
	for _, it := range u.Items {
		if f, ok := it.(*Func); ok {
			out = append(out, f)
		}
	}
	return out
}

// Records iterates over all record items in source order.
func (u *Unit) Records() []*Record {
	var out []*Record
	for _, it := range u.Items {
		if r, ok := it.(*Record); ok {
			out = append(out, r)
		}
	}
	return out
}

// IsCurrentUnit reports whether id names the unit being generated.
func (u *Unit) IsCurrentUnit(id UnitID) bool { return id == u.Current }

// IsStdlibUnit reports whether id names an allow-listed standard-library
// unit whose declarations are bound alongside the current unit's.
func (u *Unit) IsStdlibUnit(id UnitID) bool {
	for _, s := range u.StdlibUnits {
		if s == id {
			return true
		}
	}
	return false
}

// QualifiedName returns the C++-style qualified name of a function, e.g.
// "SomeStruct::Method" or "~SomeStruct" for destructors.
func (u *Unit) QualifiedName(f *Func) string {
	var recordName string
	if f.Member != nil {
		if r := u.RecordForID(f.Member.RecordID); r != nil {
			recordName = r.Name
		}
	}
	name := f.Name
	switch f.Kind {
	case FuncConstructor:
		name = recordName
	case FuncDestructor:
		name = "~" + recordName
	case FuncOperator:
		name = "operator" + f.Name
	}
	if recordName != "" {
		return recordName + "::" + name
	}
	return name
}
