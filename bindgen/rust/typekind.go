// Package rust maps IR declarations onto the Rust surface: it resolves
// IR type nodes into type representations, classifies them by feature
// tier, decides special-member policy, lowers signatures and emits the
// public surface plus the C++ boundary adapters.
package rust

import (
	"errors"
	"fmt"

	"github.com/liunix61/crubit4rust/bindgen/ir"
)

// Type resolution errors. They are always local to the one type node
// being resolved; the caller decides whether to propagate or substitute
// an unsupported placeholder for the enclosing declaration.
var (
	ErrUnresolvedIdentifier     = errors.New("no record, enum or type alias with this id")
	ErrMissingTypeArgument      = errors.New("missing type argument")
	ErrMissingLifetime          = errors.New("missing lifetime argument")
	ErrUnsupportedTypeArguments = errors.New("type arguments on record or type alias references are not supported")
)

// Lifetime is a named lifetime or the distinguished elided marker.
type Lifetime string

// Elided is the lifetime placeholder `'_`. It is valid in input
// positions only; output positions must borrow a named input lifetime.
const Elided Lifetime = "_"

// IsElided reports whether the lifetime is the elided marker.
func (l Lifetime) IsElided() bool { return l == Elided || l == "" }

// FormatForReference renders the lifetime for use inside `&... T`,
// where the elided marker is spelled as nothing at all.
func (l Lifetime) FormatForReference() string {
	if l.IsElided() {
		return ""
	}
	return "'" + string(l) + " "
}

func (l Lifetime) String() string {
	if l.IsElided() {
		return "'_"
	}
	return "'" + string(l)
}

// Primitive is one of the fixed scalar types with identical
// representation on both sides of the boundary. The value is the Rust
// spelling, which is also the IR spelling.
type Primitive string

// PrimitiveUnit is the unit (C++ void) type.
const PrimitiveUnit Primitive = "()"

var primitiveSpellings = map[string]bool{
	"()":    true,
	"bool":  true,
	"u8":    true,
	"i8":    true,
	"u16":   true,
	"i16":   true,
	"u32":   true,
	"i32":   true,
	"u64":   true,
	"i64":   true,
	"usize": true,
	"isize": true,
	"f32":   true,
	"f64":   true,

	"::core::ffi::c_char":      true,
	"::core::ffi::c_uchar":     true,
	"::core::ffi::c_schar":     true,
	"::core::ffi::c_ushort":    true,
	"::core::ffi::c_short":     true,
	"::core::ffi::c_uint":      true,
	"::core::ffi::c_int":       true,
	"::core::ffi::c_ulong":     true,
	"::core::ffi::c_long":      true,
	"::core::ffi::c_ulonglong": true,
	"::core::ffi::c_longlong":  true,
}

// PrimitiveFromSpelling looks a spelling up in the fixed vocabulary.
func PrimitiveFromSpelling(s string) (Primitive, bool) {
	if primitiveSpellings[s] {
		return Primitive(s), true
	}
	return "", false
}

// TypeKind is the resolved representation of one IR type node: a finite,
// acyclic tagged-variant tree that never aliases front-end state.
//
// The closed set of implementations is Pointer, Reference,
// RvalueReference, FuncPtr, IncompleteRecord, RecordKind, EnumKind,
// AliasKind, PrimitiveKind, SliceKind, OptionKind, BridgeKind and
// OpaqueKind.
type TypeKind interface {
	isTypeKind()
}

// Pointer is a raw pointer, `*const T` or `*mut T`.
type Pointer struct {
	Pointee TypeKind
	Mut     bool
}

// Reference is `&'a T` or `&'a mut T`.
type Reference struct {
	Referent TypeKind
	Mut      bool
	Lifetime Lifetime
}

// RvalueReference is a C++ rvalue reference, mapped onto the ctor
// support crate's RvalueReference/ConstRvalueReference.
type RvalueReference struct {
	Referent TypeKind
	Mut      bool
	Lifetime Lifetime
}

// FuncPtr is a function pointer with an explicit ABI tag.
type FuncPtr struct {
	Abi    string
	Params []TypeKind
	Return TypeKind
}

// IncompleteRecord is a forward-declared record with no definition in
// this unit.
type IncompleteRecord struct {
	Record *ir.Record
	Path   CratePath
}

// RecordKind is a complete record. Mono is non-nil when the record is a
// template instantiation matching the known-safe monomorphization table.
type RecordKind struct {
	Record *ir.Record
	Path   CratePath
	Mono   *Monomorphization
	// TemplateAllowlisted marks template instantiations on the fixed
	// allow-list of known-safe instantiations (baseline tier).
	TemplateAllowlisted bool
}

// EnumKind is an enum.
type EnumKind struct {
	Enum *ir.Enum
	Path CratePath
}

// AliasKind is a type alias with its underlying type fully resolved, so
// consumers can see through the alias without extra lookups.
type AliasKind struct {
	Alias      *ir.TypeAlias
	Underlying TypeKind
	Path       CratePath
}

// PrimitiveKind is a scalar from the fixed vocabulary.
type PrimitiveKind struct {
	Kind Primitive
}

// SliceKind is `[T]`.
type SliceKind struct {
	Element TypeKind
}

// OptionKind is nullable T, `Option<T>`.
type OptionKind struct {
	Inner TypeKind
}

// BridgeKind maps a record onto a hand-written Rust type with explicit
// conversion functions in both directions.
type BridgeKind struct {
	Name      string
	CppToRust string
	RustToCpp string
	Original  *ir.Record
}

// OpaqueKind is the fallback for anything not otherwise modeled, tracked
// only by name.
type OpaqueKind struct {
	Name     string
	TypeArgs []TypeKind
	// SameAbi reports whether values of this type may be passed by value
	// through the C ABI unchanged. Unknown types are conservatively not.
	SameAbi bool
}

func (*Pointer) isTypeKind()          {}
func (*Reference) isTypeKind()        {}
func (*RvalueReference) isTypeKind()  {}
func (*FuncPtr) isTypeKind()          {}
func (*IncompleteRecord) isTypeKind() {}
func (*RecordKind) isTypeKind()       {}
func (*EnumKind) isTypeKind()         {}
func (*AliasKind) isTypeKind()        {}
func (*PrimitiveKind) isTypeKind()    {}
func (*SliceKind) isTypeKind()        {}
func (*OptionKind) isTypeKind()       {}
func (*BridgeKind) isTypeKind()       {}
func (*OpaqueKind) isTypeKind()       {}

// Monomorphization records that a template instantiation maps onto a
// known target-language generic.
type Monomorphization struct {
	TemplateName string
	RustGeneric  string
	TypeArgs     []TypeKind
}

// CratePath is the qualification prefix for a name: empty for the
// current and stdlib units, "other_crate::" for everything else.
type CratePath string

// MonoRule maps one C++ template to one Rust generic in the known-safe
// monomorphization table.
type MonoRule struct {
	Template    string
	RustGeneric string
}

// Context carries the immutable per-pass inputs the resolver needs:
// the unit for declaration lookup plus the allow-list configuration.
// Lifetimes maps the current function's lifetime ids to names; ids with
// no entry resolve to the elided marker.
type Context struct {
	Unit *ir.Unit
	// StdlibUnits supplements the unit's own stdlib allow-list with
	// configured units. The unit itself is never written to.
	StdlibUnits       []ir.UnitID
	TemplateAllowlist map[string]bool
	Monomorphizations []MonoRule
	Lifetimes         map[ir.LifetimeID]string
}

func (c *Context) isStdlibUnit(id ir.UnitID) bool {
	if c.Unit.IsStdlibUnit(id) {
		return true
	}
	for _, s := range c.StdlibUnits {
		if s == id {
			return true
		}
	}
	return false
}

// WithLifetimes returns a copy of the context scoped to one function's
// lifetime parameters.
func (c *Context) WithLifetimes(params []ir.LifetimeName) *Context {
	out := *c
	out.Lifetimes = make(map[ir.LifetimeID]string, len(params))
	for _, p := range params {
		out.Lifetimes[p.ID] = p.Name
	}
	return &out
}

func (c *Context) cratePath(owner ir.UnitID) CratePath {
	if c.Unit.IsCurrentUnit(owner) || c.isStdlibUnit(owner) {
		return ""
	}
	return CratePath(owner.CrateName() + "::")
}

func (c *Context) lifetime(id ir.LifetimeID) Lifetime {
	if name, ok := c.Lifetimes[id]; ok && name != "" {
		return Lifetime(name)
	}
	return Elided
}

// Resolve maps one IR type node to its representation, recursively
// resolving nested type arguments, pointees and referents.
func (c *Context) Resolve(t ir.TypeNode) (TypeKind, error) {
	resolveArgs := func() ([]TypeKind, error) {
		out := make([]TypeKind, 0, len(t.TypeArgs))
		for _, arg := range t.TypeArgs {
			k, err := c.Resolve(arg)
			if err != nil {
				return nil, err
			}
			out = append(out, k)
		}
		return out, nil
	}
	singleArg := func() (TypeKind, error) {
		if len(t.TypeArgs) != 1 {
			return nil, fmt.Errorf("%q needs exactly 1 type argument, got %d: %w",
				t.Name, len(t.TypeArgs), ErrMissingTypeArgument)
		}
		return c.Resolve(t.TypeArgs[0])
	}
	singleLifetime := func() (Lifetime, error) {
		if len(t.Lifetimes) != 1 {
			return "", fmt.Errorf("%q needs exactly 1 lifetime argument, got %d: %w",
				t.Name, len(t.Lifetimes), ErrMissingLifetime)
		}
		return c.lifetime(t.Lifetimes[0]), nil
	}

	if t.Name == "" {
		return c.resolveDecl(t)
	}

	switch t.Name {
	case "*const", "*mut":
		pointee, err := singleArg()
		if err != nil {
			return nil, err
		}
		return &Pointer{Pointee: pointee, Mut: t.Name == "*mut"}, nil

	case "&", "&mut":
		referent, err := singleArg()
		if err != nil {
			return nil, err
		}
		lt, err := singleLifetime()
		if err != nil {
			return nil, err
		}
		return &Reference{Referent: referent, Mut: t.Name == "&mut", Lifetime: lt}, nil

	case "&&", "&&mut":
		referent, err := singleArg()
		if err != nil {
			return nil, err
		}
		lt, err := singleLifetime()
		if err != nil {
			return nil, err
		}
		return &RvalueReference{Referent: referent, Mut: t.Name == "&&mut", Lifetime: lt}, nil

	case "fn":
		if t.Abi == "" {
			return nil, fmt.Errorf("function pointer without an ABI tag")
		}
		if len(t.TypeArgs) == 0 {
			return nil, fmt.Errorf("function pointer needs a return type argument: %w", ErrMissingTypeArgument)
		}
		args, err := resolveArgs()
		if err != nil {
			return nil, err
		}
		return &FuncPtr{Abi: t.Abi, Params: args[:len(args)-1], Return: args[len(args)-1]}, nil

	case "[]":
		elem, err := singleArg()
		if err != nil {
			return nil, err
		}
		return &SliceKind{Element: elem}, nil

	case "Option":
		inner, err := singleArg()
		if err != nil {
			return nil, err
		}
		return &OptionKind{Inner: inner}, nil
	}

	if p, ok := PrimitiveFromSpelling(t.Name); ok {
		if len(t.TypeArgs) != 0 {
			return nil, fmt.Errorf("primitive %q must not have type arguments", t.Name)
		}
		return &PrimitiveKind{Kind: p}, nil
	}

	args, err := resolveArgs()
	if err != nil {
		return nil, err
	}
	return &OpaqueKind{Name: t.Name, TypeArgs: args}, nil
}

func (c *Context) resolveDecl(t ir.TypeNode) (TypeKind, error) {
	if len(t.TypeArgs) != 0 {
		return nil, fmt.Errorf("decl id %d: %w", t.Decl, ErrUnsupportedTypeArguments)
	}
	switch d := c.Unit.ItemForID(t.Decl).(type) {
	case *ir.Record:
		if d.Bridge != nil {
			return &BridgeKind{
				Name:      d.Bridge.RustName,
				CppToRust: d.Bridge.CppToRust,
				RustToCpp: d.Bridge.RustToCpp,
				Original:  d,
			}, nil
		}
		path := c.cratePath(d.OwningUnit)
		if d.Incomplete {
			return &IncompleteRecord{Record: d, Path: path}, nil
		}
		return &RecordKind{
			Record:              d,
			Path:                path,
			Mono:                c.matchMonomorphization(d.Template),
			TemplateAllowlisted: d.Template != nil && c.TemplateAllowlist[d.Template.Name],
		}, nil
	case *ir.Enum:
		return &EnumKind{Enum: d, Path: c.cratePath(d.OwningUnit)}, nil
	case *ir.TypeAlias:
		underlying, err := c.Resolve(d.Underlying.RsType)
		if err != nil {
			return nil, fmt.Errorf("underlying type of alias %q: %w", d.Name, err)
		}
		return &AliasKind{Alias: d, Underlying: underlying, Path: c.cratePath(d.OwningUnit)}, nil
	default:
		return nil, fmt.Errorf("decl id %d: %w", t.Decl, ErrUnresolvedIdentifier)
	}
}

// matchMonomorphization checks a template instantiation against the
// known-safe table. For std::unique_ptr the deleter must be the matching
// std::default_delete instantiation.
func (c *Context) matchMonomorphization(tmpl *ir.TemplateInstantiation) *Monomorphization {
	if tmpl == nil {
		return nil
	}
	var rule *MonoRule
	for i := range c.Monomorphizations {
		if c.Monomorphizations[i].Template == tmpl.Name {
			rule = &c.Monomorphizations[i]
			break
		}
	}
	if rule == nil {
		return nil
	}

	args := make([]TypeKind, 0, len(tmpl.Args))
	for _, arg := range tmpl.Args {
		k, err := c.Resolve(arg.RsType)
		if err != nil {
			return nil
		}
		args = append(args, k)
	}

	if tmpl.Name == "std::unique_ptr" {
		if len(args) != 2 {
			return nil
		}
		deleter, ok := args[1].(*RecordKind)
		if !ok || deleter.Record.Template == nil {
			return nil
		}
		dt := deleter.Record.Template
		if dt.Name != "std::default_delete" || len(dt.Args) != 1 ||
			dt.Args[0].RsType.String() != tmpl.Args[0].RsType.String() {
			return nil
		}
		args = args[:1]
	}

	return &Monomorphization{
		TemplateName: tmpl.Name,
		RustGeneric:  rule.RustGeneric,
		TypeArgs:     args,
	}
}

// dfs returns the representation's nodes in depth-first pre-order,
// using an explicit stack. It does not descend into record fields: a
// record's supportedness must not depend on its field types.
func dfs(t TypeKind) []TypeKind {
	var out []TypeKind
	stack := []TypeKind{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		switch k := cur.(type) {
		case *Pointer:
			stack = append(stack, k.Pointee)
		case *Reference:
			stack = append(stack, k.Referent)
		case *RvalueReference:
			stack = append(stack, k.Referent)
		case *AliasKind:
			stack = append(stack, k.Underlying)
		case *FuncPtr:
			stack = append(stack, k.Return)
			for i := len(k.Params) - 1; i >= 0; i-- {
				stack = append(stack, k.Params[i])
			}
		case *SliceKind:
			stack = append(stack, k.Element)
		case *OptionKind:
			stack = append(stack, k.Inner)
		case *OpaqueKind:
			for i := len(k.TypeArgs) - 1; i >= 0; i-- {
				stack = append(stack, k.TypeArgs[i])
			}
		}
	}
	return out
}

// IsUnpin reports whether values of the type may be relocated by a
// shallow bitwise move.
func IsUnpin(t TypeKind) bool {
	switch k := t.(type) {
	case *IncompleteRecord:
		return false
	case *RecordKind:
		return k.Mono != nil || k.Record.Unpin
	case *AliasKind:
		return IsUnpin(k.Underlying)
	default:
		return true
	}
}

// IsMoveConstructible reports whether the type can be move-constructed.
// References count as move-constructible, like pointers.
func IsMoveConstructible(t TypeKind) bool {
	switch k := t.(type) {
	case *IncompleteRecord:
		return false
	case *RecordKind:
		return k.Record.MoveConstructor != ir.Unavailable
	case *AliasKind:
		return IsMoveConstructible(k.Underlying)
	default:
		return true
	}
}

// isUnsafePointer reports whether the type is unsafe to pass across a
// function boundary (a pointer with unknown lifetime).
func isUnsafePointer(t TypeKind) bool {
	_, ok := t.(*Pointer)
	return ok
}

func isSharedRefTo(t TypeKind, record *ir.Record) bool {
	ref, ok := t.(*Reference)
	if !ok || ref.Mut {
		return false
	}
	return isRecord(ref.Referent, record)
}

func isRecord(t TypeKind, record *ir.Record) bool {
	k, ok := t.(*RecordKind)
	return ok && k.Record.ID == record.ID
}

func isUnitType(t TypeKind) bool {
	p, ok := t.(*PrimitiveKind)
	return ok && p.Kind == PrimitiveUnit
}

// describe renders a representation for error text and reasons.
func describe(t TypeKind) string {
	return FormatType(t)
}
