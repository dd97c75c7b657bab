package rust

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/liunix61/crubit4rust/bindgen/ir"
)

// FunctionID identifies the slot a callable occupies on the lowered
// surface. Two callables lowering to the same slot are an overload set,
// which the surface cannot express.
type FunctionID struct {
	// SelfType is the enclosing record name, empty for free functions.
	SelfType string
	// Name is the surface name: the escaped function name, or the trait
	// spelling for synthesized impls ("Default", "From<T>", ...).
	Name string
}

// LoweredFunc is the result of lowering one callable.
type LoweredFunc struct {
	ID   FunctionID
	Func *ir.Func

	// Main is the public surface item: a fn, or an impl block.
	Main string
	// ThunkDecl is the declaration inside the detail module's
	// extern "C" block.
	ThunkDecl string
	// NeedsThunk reports whether a C++-side thunk definition must be
	// emitted. When false the declaration links against the original
	// symbol directly.
	NeedsThunk bool
	// ThunkName is the extern symbol the body calls.
	ThunkName string
}

// LowerFunc lowers one callable. A nil, nil return means the callable is
// deliberately skipped (no placeholder); an error produces an
// unsupported placeholder in the output.
func (c *Context) LowerFunc(f *ir.Func, enabled FeatureSet) (*LoweredFunc, error) {
	if f.IsVariadic {
		return nil, fmt.Errorf("variadic functions are not supported")
	}
	if f.CallingConvention != "" && f.CallingConvention != "C" {
		return nil, fmt.Errorf("calling convention %q is not supported", f.CallingConvention)
	}

	fctx := c.WithLifetimes(f.Lifetimes)

	var record *ir.Record
	if f.Member != nil {
		record = c.Unit.RecordForID(f.Member.RecordID)
		if record == nil {
			return nil, fmt.Errorf("member of unknown record id %d", f.Member.RecordID)
		}
	}

	params := make([]TypeKind, len(f.Params))
	for i, p := range f.Params {
		k, err := fctx.Resolve(p.Type.RsType)
		if err != nil {
			return nil, fmt.Errorf("parameter #%d %q: %w", i, p.Name, err)
		}
		params[i] = k
	}
	ret, err := fctx.Resolve(f.ReturnType.RsType)
	if err != nil {
		return nil, fmt.Errorf("return type: %w", err)
	}

	if err := checkSignatureFeatures(f, record, params, ret, enabled); err != nil {
		return nil, err
	}
	if err := checkReturnLifetime(f, ret); err != nil {
		return nil, err
	}
	if err := checkMoveConstructible(f, params, ret); err != nil {
		return nil, err
	}

	switch f.Kind {
	case ir.FuncConstructor:
		return fctx.lowerConstructor(f, record, params)
	case ir.FuncDestructor:
		return fctx.lowerDestructor(f, record, params)
	case ir.FuncOperator:
		return fctx.lowerOperator(f, record, params, ret)
	default:
		return fctx.lowerNamed(f, record, params, ret)
	}
}

// checkSignatureFeatures classifies every non-receiver parameter and the
// return type, and verifies the enabled tiers cover them. Parameters
// whose shape the lowering rules enforce are exempt: the receiver, the
// copy constructor's const-reference argument, and operator arguments.
func checkSignatureFeatures(f *ir.Func, record *ir.Record, params []TypeKind, ret TypeKind, enabled FeatureSet) error {
	required := FeatureSupported
	var reasons []string

	skipReceiver := f.Kind == ir.FuncConstructor || f.Kind == ir.FuncDestructor || f.IsInstanceMethod()
	for i, p := range params {
		if i == 0 && skipReceiver {
			continue
		}
		if f.Kind == ir.FuncOperator {
			continue
		}
		if f.Kind == ir.FuncConstructor && i == 1 && record != nil && isSharedRefTo(p, record) {
			continue
		}
		req, why := RequiredFeatures(p, PositionValueParam)
		required |= req
		reasons = append(reasons, why...)
	}
	req, why := RequiredFeatures(ret, PositionValueReturn)
	required |= req
	reasons = append(reasons, why...)

	return CheckFeatures(enabled, required, dedupeSorted(reasons))
}

// checkMoveConstructible rejects signatures that pass or return a value
// whose C++ type cannot be move-constructed: the thunk has no way to
// materialize such a value.
func checkMoveConstructible(f *ir.Func, params []TypeKind, ret TypeKind) error {
	skipReceiver := f.Kind == ir.FuncConstructor || f.Kind == ir.FuncDestructor || f.IsInstanceMethod()
	for i, p := range params {
		if i == 0 && skipReceiver {
			continue
		}
		if !IsMoveConstructible(p) {
			return fmt.Errorf("%s cannot be passed by value", describe(p))
		}
	}
	if !IsMoveConstructible(ret) {
		return fmt.Errorf("%s cannot be returned by value", describe(ret))
	}
	return nil
}

// checkReturnLifetime enforces the elision rule: a returned reference
// with an elided lifetime is only unambiguous when the function has
// exactly one named input lifetime to borrow from.
func checkReturnLifetime(f *ir.Func, ret TypeKind) error {
	elided := false
	for _, node := range dfs(ret) {
		switch k := node.(type) {
		case *Reference:
			elided = elided || k.Lifetime.IsElided()
		case *RvalueReference:
			elided = elided || k.Lifetime.IsElided()
		}
	}
	if elided && len(f.Lifetimes) != 1 {
		return fmt.Errorf("return type has an elided lifetime but the function has %d named input lifetimes", len(f.Lifetimes))
	}
	return nil
}

func (c *Context) lowerConstructor(f *ir.Func, record *ir.Record, params []TypeKind) (*LoweredFunc, error) {
	if record == nil {
		return nil, fmt.Errorf("constructor outside a record")
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("constructor without an output parameter")
	}
	// Values of non-relocatable types cannot be returned by value, so no
	// constructor shape applies.
	if !record.Unpin {
		return nil, nil
	}
	if err := CheckByValue(record); err != nil {
		return nil, err
	}

	switch len(params) {
	case 1:
		return c.valueConstructorImpl(f, record, "Default", "default", "", nil), nil

	case 2:
		arg := params[1]
		if isSharedRefTo(arg, record) {
			if ShouldDeriveClone(record) {
				return nil, nil
			}
			lf := c.valueConstructorImpl(f, record, "Clone", "clone", "&self", []string{"self"})
			return lf, nil
		}
		argText := FormatType(arg)
		lf := c.valueConstructorImpl(f, record,
			"From<"+argText+">", "from", "value: "+argText, []string{"value"})
		return lf, nil

	default:
		// Multi-argument constructors have no trait slot on the surface.
		return nil, nil
	}
}

// valueConstructorImpl renders the shared construct-into-uninit pattern
// behind Default, Clone and From.
func (c *Context) valueConstructorImpl(f *ir.Func, record *ir.Record, trait, method, args string, callArgs []string) *LoweredFunc {
	name := EscapeIdent(record.Name)
	thunk := thunkName(f)

	var buf bytes.Buffer
	writeDoc(&buf, f.Doc, "")
	fmt.Fprintf(&buf, "impl %s for %s {\n", trait, name)
	buf.WriteString("    #[inline(always)]\n")
	fmt.Fprintf(&buf, "    fn %s(%s) -> Self {\n", method, args)
	buf.WriteString("        let mut tmp = ::core::mem::MaybeUninit::<Self>::zeroed();\n")
	buf.WriteString("        unsafe {\n")
	fmt.Fprintf(&buf, "            crate::detail::%s(%s);\n", thunk,
		strings.Join(append([]string{"&mut tmp"}, callArgs...), ", "))
	buf.WriteString("            tmp.assume_init()\n")
	buf.WriteString("        }\n")
	buf.WriteString("    }\n")
	buf.WriteString("}")

	declParams := []string{
		fmt.Sprintf("__this: &mut ::core::mem::MaybeUninit<%s>", FormatTypeForDetail(&RecordKind{Record: record, Path: c.cratePath(record.OwningUnit)})),
	}
	for i, p := range f.Params[1:] {
		k, err := c.Resolve(p.Type.RsType)
		if err != nil {
			// Already resolved once by the caller.
			panic(err)
		}
		declParams = append(declParams, fmt.Sprintf("%s: %s", paramName(p, i), FormatTypeForDetail(k)))
	}

	return &LoweredFunc{
		ID:         FunctionID{SelfType: record.Name, Name: trait},
		Func:       f,
		Main:       buf.String(),
		ThunkDecl:  thunkDecl(f, thunk, declParams, ""),
		NeedsThunk: needsThunk(f),
		ThunkName:  thunk,
	}
}

func (c *Context) lowerDestructor(f *ir.Func, record *ir.Record, params []TypeKind) (*LoweredFunc, error) {
	if record == nil {
		return nil, fmt.Errorf("destructor outside a record")
	}
	if !ShouldImplementDrop(record) {
		return nil, nil
	}
	name := EscapeIdent(record.Name)
	thunk := thunkName(f)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "impl Drop for %s {\n", name)
	buf.WriteString("    #[inline(always)]\n")
	buf.WriteString("    fn drop(&mut self) {\n")
	fmt.Fprintf(&buf, "        unsafe { crate::detail::%s(self) }\n", thunk)
	buf.WriteString("    }\n")
	buf.WriteString("}")

	selfType := FormatTypeForDetail(&RecordKind{Record: record, Path: c.cratePath(record.OwningUnit)})
	declParams := []string{fmt.Sprintf("__this: &mut %s", selfType)}

	return &LoweredFunc{
		ID:         FunctionID{SelfType: record.Name, Name: "Drop"},
		Func:       f,
		Main:       buf.String(),
		ThunkDecl:  thunkDecl(f, thunk, declParams, ""),
		NeedsThunk: needsThunk(f),
		ThunkName:  thunk,
	}, nil
}

func (c *Context) lowerOperator(f *ir.Func, record *ir.Record, params []TypeKind, ret TypeKind) (*LoweredFunc, error) {
	if f.Name != "==" {
		return nil, fmt.Errorf("operator %s is not supported", f.Name)
	}
	if record == nil || !f.IsInstanceMethod() {
		return nil, fmt.Errorf("operator == outside a record is not supported")
	}
	if len(params) != 2 {
		return nil, fmt.Errorf("operator == must take exactly one argument")
	}
	recv, ok := params[0].(*Reference)
	if !ok || recv.Mut {
		return nil, fmt.Errorf("operator == must take *this by const reference")
	}
	rhs, ok := params[1].(*Reference)
	if !ok || rhs.Mut {
		return nil, fmt.Errorf("operator == must take its argument by const reference")
	}

	name := EscapeIdent(record.Name)
	rhsText := FormatType(rhs.Referent)
	thunk := thunkName(f)

	var buf bytes.Buffer
	writeDoc(&buf, f.Doc, "")
	fmt.Fprintf(&buf, "impl PartialEq<%s> for %s {\n", rhsText, name)
	buf.WriteString("    #[inline(always)]\n")
	fmt.Fprintf(&buf, "    fn eq(&self, other: &%s) -> bool {\n", rhsText)
	fmt.Fprintf(&buf, "        unsafe { crate::detail::%s(self, other) }\n", thunk)
	buf.WriteString("    }\n")
	buf.WriteString("}")

	declParams := []string{
		fmt.Sprintf("__this: %s", FormatTypeForDetail(params[0])),
		fmt.Sprintf("%s: %s", paramName(f.Params[1], 0), FormatTypeForDetail(params[1])),
	}

	return &LoweredFunc{
		ID:         FunctionID{SelfType: record.Name, Name: "PartialEq<" + rhsText + ">"},
		Func:       f,
		Main:       buf.String(),
		ThunkDecl:  thunkDecl(f, thunk, declParams, " -> bool"),
		NeedsThunk: needsThunk(f),
		ThunkName:  thunk,
	}, nil
}

func (c *Context) lowerNamed(f *ir.Func, record *ir.Record, params []TypeKind, ret TypeKind) (*LoweredFunc, error) {
	name := EscapeIdent(f.Name)
	thunk := thunkName(f)

	var surfaceParams []string
	var callArgs []string
	var declParams []string

	start := 0
	if f.IsInstanceMethod() {
		if len(params) == 0 {
			return nil, fmt.Errorf("instance method without a receiver parameter")
		}
		self, err := formatSelfParam(params[0])
		if err != nil {
			return nil, err
		}
		surfaceParams = append(surfaceParams, self)
		callArgs = append(callArgs, "self")
		declParams = append(declParams, "__this: "+FormatTypeForDetail(params[0]))
		start = 1
	}

	// Raw pointer arguments carry no lifetime the wrapper could vouch
	// for, so the caller takes on the obligation.
	unsafeFn := false
	for i := start; i < len(params); i++ {
		if isUnsafePointer(params[i]) {
			unsafeFn = true
		}
		pname := paramName(f.Params[i], i)
		surfaceParams = append(surfaceParams, fmt.Sprintf("%s: %s", pname, FormatType(params[i])))
		callArgs = append(callArgs, pname)
		declParams = append(declParams, fmt.Sprintf("%s: %s", pname, FormatTypeForDetail(params[i])))
	}

	generics := lifetimeGenerics(f)

	var fn bytes.Buffer
	indent := ""
	if record != nil {
		indent = "    "
	}
	fnKeyword := "pub fn"
	if unsafeFn {
		fnKeyword = "pub unsafe fn"
	}
	writeDoc(&fn, f.Doc, indent)
	fn.WriteString(indent + "#[inline(always)]\n")
	fmt.Fprintf(&fn, "%s%s %s%s(%s)%s {\n", indent, fnKeyword, name, generics,
		strings.Join(surfaceParams, ", "), FormatReturn(ret))
	fmt.Fprintf(&fn, "%s    unsafe { crate::detail::%s(%s) }\n", indent, thunk, strings.Join(callArgs, ", "))
	fn.WriteString(indent + "}")

	main := fn.String()
	if record != nil {
		main = fmt.Sprintf("impl %s {\n%s\n}", EscapeIdent(record.Name), main)
	}

	id := FunctionID{Name: name}
	if record != nil {
		id.SelfType = record.Name
	}

	return &LoweredFunc{
		ID:         id,
		Func:       f,
		Main:       main,
		ThunkDecl:  thunkDecl(f, thunk, declParams, formatReturnForDetail(ret)),
		NeedsThunk: needsThunk(f),
		ThunkName:  thunk,
	}, nil
}

// formatSelfParam maps the receiver's lowered type onto a Rust self
// parameter. Raw pointer receivers have no safe spelling.
func formatSelfParam(recv TypeKind) (string, error) {
	switch k := recv.(type) {
	case *Reference:
		lt := k.Lifetime.FormatForReference()
		if !k.Mut {
			return "&" + lt + "self", nil
		}
		if !IsUnpin(k.Referent) {
			return fmt.Sprintf("self: ::core::pin::Pin<&%smut Self>", lt), nil
		}
		return "&" + lt + "mut self", nil
	case *RvalueReference:
		return "", fmt.Errorf("rvalue reference receivers are not supported")
	case *Pointer:
		return "", fmt.Errorf("raw pointer receivers are not supported")
	default:
		return "", fmt.Errorf("receiver type %s is not supported", describe(recv))
	}
}

func paramName(p ir.Param, i int) string {
	if p.Name == "" || p.Name == "__this" {
		return fmt.Sprintf("__param_%d", i)
	}
	return EscapeIdent(p.Name)
}

// thunkName derives the extern symbol name used in the detail module.
func thunkName(f *ir.Func) string {
	return "__rust_thunk__" + f.MangledName
}

// needsThunk reports whether linking directly against the original
// symbol is impossible: inline functions have no linkable definition and
// virtual calls must go through the vtable.
func needsThunk(f *ir.Func) bool {
	if f.IsInline {
		return true
	}
	return f.Member != nil && f.Member.IsVirtual
}

// thunkDecl renders the extern "C" block entry. Direct-link declarations
// get a link_name attribute redirecting the thunk symbol to the original
// mangled name.
func thunkDecl(f *ir.Func, thunk string, params []string, ret string) string {
	var buf bytes.Buffer
	if !needsThunk(f) {
		fmt.Fprintf(&buf, "#[link_name = %q]\n", f.MangledName)
	}
	fmt.Fprintf(&buf, "pub(crate) fn %s(%s)%s;", thunk, strings.Join(params, ", "), ret)
	return buf.String()
}

func lifetimeGenerics(f *ir.Func) string {
	if len(f.Lifetimes) == 0 {
		return ""
	}
	names := make([]string, len(f.Lifetimes))
	for i, l := range f.Lifetimes {
		names[i] = "'" + l.Name
	}
	return "<" + strings.Join(names, ", ") + ">"
}

// writeDoc renders a doc comment, one /// line per input line.
func writeDoc(buf *bytes.Buffer, doc, indent string) {
	if doc == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(doc, "\n"), "\n") {
		if line == "" {
			buf.WriteString(indent + "///\n")
			continue
		}
		buf.WriteString(indent + "/// " + line + "\n")
	}
}
