package rust

import (
	"bytes"
	"fmt"
	"strings"

	"fortio.org/safecast"

	"github.com/liunix61/crubit4rust/bindgen/ir"
)

// LoweredRecord is the surface form of one record plus everything the
// two output streams need to keep it honest.
type LoweredRecord struct {
	Record *ir.Record

	// Main is the struct definition with derives and impls that belong
	// to the definition itself (the negative Unpin impl).
	Main string
	// Assertions are the layout checks appended to the end of the
	// public surface.
	Assertions string
	// ToolchainFeatures are unstable toolchain features the definition
	// needs ("negative_impls" for pinned records).
	ToolchainFeatures []string
	// AssertedFields are the public fields whose offsets are asserted on
	// both sides of the boundary.
	AssertedFields []string
}

// loweredField is one field after the visibility and resolvability
// decisions.
type loweredField struct {
	name   string
	typ    string
	public bool
	// opaque fields stand in for private or unrepresentable members and
	// are excluded from offset assertions.
	opaque bool
	doc    string
}

// LowerRecord lowers a record definition. Template instantiations that
// map onto a known generic produce no definition of their own.
func (c *Context) LowerRecord(r *ir.Record, enabled FeatureSet) (*LoweredRecord, error) {
	if r.Incomplete {
		return nil, fmt.Errorf("%s is not a complete type", r.Name)
	}
	self := &RecordKind{Record: r, Path: c.cratePath(r.OwningUnit),
		Mono:                c.matchMonomorphization(r.Template),
		TemplateAllowlisted: r.Template != nil && c.TemplateAllowlist[r.Template.Name]}
	if self.Mono != nil {
		return nil, nil
	}
	if req, reasons := RequiredFeatures(self, PositionOther); !enabled.Has(req) {
		return nil, CheckFeatures(enabled, req, reasons)
	}

	implementsDrop := ShouldImplementDrop(r)
	fields, err := c.lowerFields(r, implementsDrop, enabled)
	if err != nil {
		return nil, err
	}

	name := EscapeIdent(r.Name)
	var buf bytes.Buffer
	writeDoc(&buf, r.Doc, "")

	var derives []string
	if ShouldDeriveClone(r) {
		derives = append(derives, "Clone")
	}
	if ShouldDeriveCopy(r) {
		derives = append(derives, "Copy")
	}
	if len(derives) > 0 {
		fmt.Fprintf(&buf, "#[derive(%s)]\n", strings.Join(derives, ", "))
	}

	buf.WriteString(reprAttr(r, fields))

	keyword := "struct"
	if r.IsUnion {
		keyword = "union"
	}
	fmt.Fprintf(&buf, "pub %s %s {\n", keyword, name)
	for _, f := range fields {
		writeDoc(&buf, f.doc, "    ")
		vis := ""
		if f.public {
			vis = "pub "
		}
		fmt.Fprintf(&buf, "    %s%s: %s,\n", vis, f.name, f.typ)
	}
	buf.WriteString("}")

	var features []string
	if !r.Unpin {
		fmt.Fprintf(&buf, "\n\nimpl !Unpin for %s {}", name)
		features = append(features, "negative_impls")
	}

	var asserted []string
	for _, f := range fields {
		if f.public && !f.opaque {
			asserted = append(asserted, f.name)
		}
	}

	return &LoweredRecord{
		Record:            r,
		Main:              buf.String(),
		Assertions:        layoutAssertions(name, r, asserted),
		ToolchainFeatures: features,
		AssertedFields:    asserted,
	}, nil
}

// reprAttr picks the repr attribute. The alignment is spelled out
// whenever the field list alone does not pin the layout down (no fields,
// or opaque byte blobs).
func reprAttr(r *ir.Record, fields []loweredField) string {
	explicit := len(fields) == 0
	for _, f := range fields {
		if f.opaque {
			explicit = true
		}
	}
	if explicit && r.Alignment > 1 {
		return fmt.Sprintf("#[repr(C, align(%d))]\n", r.Alignment)
	}
	return "#[repr(C)]\n"
}

// lowerFields maps the record's members. Private members and members
// whose type cannot be represented are preserved as opaque byte blobs so
// the layout stays exact. Empty records get a one-placeholder body since
// Rust has no zero-field repr(C) equivalent of a C++ empty class.
func (c *Context) lowerFields(r *ir.Record, implementsDrop bool, enabled FeatureSet) ([]loweredField, error) {
	if len(r.Fields) == 0 {
		width, err := safecast.Conv[int](r.Size)
		if err != nil {
			return nil, fmt.Errorf("record size %d: %w", r.Size, err)
		}
		return []loweredField{{
			name:   "__non_field_data",
			typ:    fmt.Sprintf("[::core::mem::MaybeUninit<u8>; %d]", width),
			opaque: true,
		}}, nil
	}

	out := make([]loweredField, 0, len(r.Fields))
	for i, f := range r.Fields {
		end := r.Size
		if i+1 < len(r.Fields) {
			end = r.Fields[i+1].Offset
		}

		blob := func() (loweredField, error) {
			width, err := safecast.Conv[int](end - f.Offset)
			if err != nil {
				return loweredField{}, fmt.Errorf("field %q width: %w", f.Name, err)
			}
			return loweredField{
				name:   EscapeIdent(f.Name),
				typ:    fmt.Sprintf("[::core::mem::MaybeUninit<u8>; %d]", width),
				opaque: true,
			}, nil
		}

		if f.Access != ir.AccessPublic {
			lf, err := blob()
			if err != nil {
				return nil, err
			}
			out = append(out, lf)
			continue
		}

		kind, err := c.Resolve(f.Type.RsType)
		if err == nil {
			if req, _ := RequiredFeatures(kind, PositionOther); !enabled.Has(req) {
				err = fmt.Errorf("unsupported field type")
			}
		}
		if err != nil {
			lf, blobErr := blob()
			if blobErr != nil {
				return nil, blobErr
			}
			out = append(out, lf)
			continue
		}

		typ := FormatType(kind)
		if implementsDrop && NeedsManuallyDrop(kind) {
			typ = fmt.Sprintf("::core::mem::ManuallyDrop<%s>", typ)
		}
		out = append(out, loweredField{
			name:   EscapeIdent(f.Name),
			typ:    typ,
			public: true,
			doc:    f.Doc,
		})
	}
	return out, nil
}

// layoutAssertions renders the Rust-side checks that the struct really
// has the layout the front end reported.
func layoutAssertions(name string, r *ir.Record, fields []string) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "const _: () = assert!(::core::mem::size_of::<%s>() == %d);\n", name, r.Size)
	fmt.Fprintf(&buf, "const _: () = assert!(::core::mem::align_of::<%s>() == %d);", name, r.Alignment)
	for _, f := range r.Fields {
		if !containsField(fields, EscapeIdent(f.Name)) {
			continue
		}
		fmt.Fprintf(&buf, "\nconst _: () = assert!(::core::mem::offset_of!(%s, %s) == %d);",
			name, EscapeIdent(f.Name), f.Offset)
	}
	return buf.String()
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// LowerEnum lowers an enum to a transparent wrapper over the underlying
// integer plus one constant per enumerator. A Rust enum would make
// out-of-range values undefined behavior, which C++ explicitly allows.
func (c *Context) LowerEnum(e *ir.Enum, enabled FeatureSet) (string, error) {
	underlying, err := c.Resolve(e.UnderlyingType.RsType)
	if err != nil {
		return "", fmt.Errorf("underlying type: %w", err)
	}
	if req, reasons := RequiredFeatures(underlying, PositionOther); !enabled.Has(req) {
		return "", CheckFeatures(enabled, req, reasons)
	}

	name := EscapeIdent(e.Name)
	underlyingText := FormatType(underlying)

	var buf bytes.Buffer
	writeDoc(&buf, e.Doc, "")
	buf.WriteString("#[repr(transparent)]\n")
	buf.WriteString("#[derive(Clone, Copy, PartialEq, Eq)]\n")
	fmt.Fprintf(&buf, "pub struct %s(pub %s);\n\n", name, underlyingText)
	fmt.Fprintf(&buf, "impl %s {\n", name)
	for _, en := range e.Enumerators {
		fmt.Fprintf(&buf, "    pub const %s: %s = %s(%d);\n", EscapeIdent(en.Name), name, name, en.Value)
	}
	buf.WriteString("}")
	return buf.String(), nil
}

// LowerAlias lowers a type alias.
func (c *Context) LowerAlias(a *ir.TypeAlias, enabled FeatureSet) (string, error) {
	underlying, err := c.Resolve(a.Underlying.RsType)
	if err != nil {
		return "", fmt.Errorf("underlying type: %w", err)
	}
	if req, reasons := RequiredFeatures(underlying, PositionOther); !enabled.Has(req) {
		return "", CheckFeatures(enabled, req, reasons)
	}

	var buf bytes.Buffer
	writeDoc(&buf, a.Doc, "")
	fmt.Fprintf(&buf, "pub type %s = %s;", EscapeIdent(a.Name), FormatType(underlying))
	return buf.String(), nil
}
