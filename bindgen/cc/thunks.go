package cc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/liunix61/crubit4rust/bindgen/ir"
)

// Thunk is one function that needs a C++ definition because the Rust
// side cannot link against the original symbol.
type Thunk struct {
	Func *ir.Func
	// Record is the enclosing record for member functions.
	Record *ir.Record
}

// Generate renders the C++ stream for one unit: includes, thunk
// definitions and layout static_asserts for the given records.
func Generate(unit *ir.Unit, thunks []Thunk, records []*ir.Record) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("// Automatically @generated C++ bindings support for the following C++ target:\n")
	fmt.Fprintf(&buf, "// %s\n\n", unit.Current)
	buf.WriteString("#include \"support/internal/cxx20_backports.h\"\n\n")
	buf.WriteString("#include <cstddef>\n")
	buf.WriteString("#include <memory>\n")
	for _, h := range unit.UsedHeaders {
		fmt.Fprintf(&buf, "#include %q\n", h)
	}

	for _, t := range thunks {
		text, err := formatThunk(t, unit)
		if err != nil {
			return "", fmt.Errorf("thunk for %q: %w", unit.QualifiedName(t.Func), err)
		}
		buf.WriteString("\n")
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	for _, r := range records {
		buf.WriteString("\n")
		buf.WriteString(layoutAsserts(r))
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

// formatThunk renders one extern "C" definition forwarding to the
// original declaration.
func formatThunk(t Thunk, unit *ir.Unit) (string, error) {
	f := t.Func

	ret := "void"
	if !f.ReturnType.CcType.IsVoid() {
		var err error
		ret, err = FormatType(f.ReturnType.CcType, unit)
		if err != nil {
			return "", fmt.Errorf("return type: %w", err)
		}
	}

	params := make([]string, len(f.Params))
	names := make([]string, len(f.Params))
	for i, p := range f.Params {
		typ, err := FormatType(p.Type.CcType, unit)
		if err != nil {
			return "", fmt.Errorf("parameter #%d: %w", i, err)
		}
		names[i] = ccParamName(p, i)
		params[i] = typ + " " + names[i]
	}

	body, err := thunkBody(t, unit, names)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("extern \"C\" %s __rust_thunk__%s(%s) { %s }",
		ret, f.MangledName, strings.Join(params, ", "), body), nil
}

func thunkBody(t Thunk, unit *ir.Unit, names []string) (string, error) {
	f := t.Func
	args := func(from int) string { return strings.Join(names[from:], ", ") }

	switch f.Kind {
	case ir.FuncConstructor:
		if len(names) == 0 {
			return "", fmt.Errorf("constructor without an output parameter")
		}
		call := names[0]
		if rest := args(1); rest != "" {
			call += ", " + rest
		}
		return fmt.Sprintf("crubit::construct_at(%s);", call), nil

	case ir.FuncDestructor:
		if len(names) == 0 {
			return "", fmt.Errorf("destructor without a receiver parameter")
		}
		return fmt.Sprintf("std::destroy_at(%s);", names[0]), nil

	case ir.FuncOperator:
		if f.Name != "==" || len(names) != 2 {
			return "", fmt.Errorf("operator %s is not supported", f.Name)
		}
		return fmt.Sprintf("return %s == %s;",
			derefIfPointer(f.Params[0], names[0]), derefIfPointer(f.Params[1], names[1])), nil

	default:
		var call string
		switch {
		case f.IsInstanceMethod():
			call = fmt.Sprintf("%s->%s(%s)", names[0], f.Name, args(1))
		case f.Member != nil:
			rec := unit.RecordForID(f.Member.RecordID)
			if rec == nil {
				return "", fmt.Errorf("member of unknown record id %d", f.Member.RecordID)
			}
			call = fmt.Sprintf("%s::%s(%s)", rec.Name, f.Name, args(0))
		default:
			call = fmt.Sprintf("%s(%s)", f.Name, args(0))
		}
		if f.ReturnType.CcType.IsVoid() {
			return call + ";", nil
		}
		return "return " + call + ";", nil
	}
}

func derefIfPointer(p ir.Param, name string) string {
	if p.Type.CcType.Name == "*" {
		return "*" + name
	}
	return name
}

func ccParamName(p ir.Param, i int) string {
	if p.Name == "" {
		return fmt.Sprintf("__param_%d", i)
	}
	return p.Name
}

// layoutAsserts pins the sizes, alignments and public field offsets the
// Rust definitions assume.
func layoutAsserts(r *ir.Record) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "static_assert(sizeof(%s) == %d);\n", r.Name, r.Size)
	fmt.Fprintf(&buf, "static_assert(alignof(%s) == %d);", r.Name, r.Alignment)
	for _, f := range r.Fields {
		if f.Access != ir.AccessPublic {
			continue
		}
		fmt.Fprintf(&buf, "\nstatic_assert(offsetof(%s, %s) == %d);", r.Name, f.Name, f.Offset)
	}
	return buf.String()
}
