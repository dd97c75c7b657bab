package rust

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/liunix61/crubit4rust/bindgen/ir"
)

// ThunkSpec names one function whose thunk definition the C++ stream
// must provide.
type ThunkSpec struct {
	Func *ir.Func
	// Record is the enclosing record for member functions.
	Record *ir.Record
}

// Source is the result of emitting one unit's Rust stream, plus the
// work orders for the C++ stream.
type Source struct {
	Rust     string
	Thunks   []ThunkSpec
	Records  []*ir.Record
	Warnings int
}

// Emitter renders one unit. Emission is deterministic: identical input
// produces identical output, and declarations keep their source order.
type Emitter struct {
	ctx     *Context
	enabled FeatureSet
	log     *slog.Logger
}

// NewEmitter builds an emitter for the context's unit. A nil logger
// falls back to slog.Default().
func NewEmitter(ctx *Context, enabled FeatureSet, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{ctx: ctx, enabled: enabled, log: log}
}

// Emit renders the unit. The only unit-level failure is a panic
// strategy the bindings cannot survive: Rust panics must never unwind
// into C++ frames.
func (e *Emitter) Emit() (*Source, error) {
	unit := e.ctx.Unit
	if unit.PanicStrategy != "abort" {
		return nil, fmt.Errorf("unit %s builds with panic strategy %q; bindings require \"abort\"", unit.Current, unit.PanicStrategy)
	}

	lowered, errs := e.lowerFunctions(unit)
	collisions := overloadSets(lowered)

	var blocks []string
	var detail []string
	var assertions []string
	features := map[string]bool{}
	out := &Source{}

	for i, item := range unit.Items {
		switch d := item.(type) {
		case *ir.Comment:
			blocks = append(blocks, commentBlock(d.Text))

		case *ir.UnsupportedItem:
			blocks = append(blocks, e.placeholder(out, d.Name, d.Loc, fmt.Errorf("%s", d.Message)))

		case *ir.Record:
			if !e.emittable(d.OwningUnit) {
				continue
			}
			lr, err := e.ctx.LowerRecord(d, e.enabled)
			if err != nil {
				blocks = append(blocks, e.placeholder(out, d.Name, d.Loc, err))
				continue
			}
			if lr == nil {
				e.log.Debug("record maps onto a known generic, no definition emitted", "record", d.Name)
				continue
			}
			blocks = append(blocks, lr.Main)
			assertions = append(assertions, lr.Assertions)
			for _, f := range lr.ToolchainFeatures {
				features[f] = true
			}
			out.Records = append(out.Records, d)

		case *ir.Enum:
			if !e.emittable(d.OwningUnit) {
				continue
			}
			text, err := e.ctx.LowerEnum(d, e.enabled)
			if err != nil {
				blocks = append(blocks, e.placeholder(out, d.Name, d.Loc, err))
				continue
			}
			blocks = append(blocks, text)

		case *ir.TypeAlias:
			if !e.emittable(d.OwningUnit) {
				continue
			}
			text, err := e.ctx.LowerAlias(d, e.enabled)
			if err != nil {
				blocks = append(blocks, e.placeholder(out, d.Name, d.Loc, err))
				continue
			}
			blocks = append(blocks, text)

		case *ir.Func:
			if !unit.IsCurrentUnit(d.OwningUnit) {
				continue
			}
			if err := errs[i]; err != nil {
				blocks = append(blocks, e.placeholder(out, unit.QualifiedName(d), d.Loc, err))
				continue
			}
			lf := lowered[i]
			if lf == nil {
				e.log.Debug("declaration has no lowered form", "function", unit.QualifiedName(d))
				continue
			}
			if collisions[lf.ID] > 1 {
				err := fmt.Errorf("overloaded function")
				blocks = append(blocks, e.placeholder(out, unit.QualifiedName(d), d.Loc, err))
				continue
			}
			blocks = append(blocks, lf.Main)
			detail = append(detail, lf.ThunkDecl)
			if lf.NeedsThunk {
				var rec *ir.Record
				if d.Member != nil {
					rec = unit.RecordForID(d.Member.RecordID)
				}
				out.Thunks = append(out.Thunks, ThunkSpec{Func: d, Record: rec})
			}
		}
	}

	out.Rust = assemble(unit, blocks, detail, assertions, features)
	return out, nil
}

// lowerFunctions runs the whole-unit pre-pass so overload sets are known
// before any single function is rendered.
func (e *Emitter) lowerFunctions(unit *ir.Unit) (map[int]*LoweredFunc, map[int]error) {
	lowered := map[int]*LoweredFunc{}
	errs := map[int]error{}
	for i, item := range unit.Items {
		f, ok := item.(*ir.Func)
		if !ok || !unit.IsCurrentUnit(f.OwningUnit) {
			continue
		}
		lf, err := e.ctx.LowerFunc(f, e.enabled)
		if err != nil {
			errs[i] = err
			continue
		}
		lowered[i] = lf
	}
	return lowered, errs
}

// overloadSets counts how many successfully lowered callables claim each
// surface slot. Every member of a colliding set becomes a placeholder;
// replacing only the latecomers would make the output depend on
// declaration order.
func overloadSets(lowered map[int]*LoweredFunc) map[FunctionID]int {
	counts := map[FunctionID]int{}
	for _, lf := range lowered {
		if lf != nil {
			counts[lf.ID]++
		}
	}
	return counts
}

func (e *Emitter) emittable(owner ir.UnitID) bool {
	return e.ctx.Unit.IsCurrentUnit(owner) || e.ctx.isStdlibUnit(owner)
}

// placeholder renders the comment that stands in for a declaration that
// could not be lowered, and counts it as a warning.
func (e *Emitter) placeholder(out *Source, name string, loc ir.Location, err error) string {
	out.Warnings++
	e.log.Warn("no bindings generated", "decl", name, "location", loc.String(), "cause", err)
	return fmt.Sprintf("// Error generating bindings for '%s' defined at %s: %v", name, loc, err)
}

func commentBlock(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight("// "+line, " ")
	}
	return strings.Join(lines, "\n")
}

func assemble(unit *ir.Unit, blocks, detail, assertions []string, features map[string]bool) string {
	var buf bytes.Buffer
	buf.WriteString("// Automatically @generated Rust bindings for the following C++ target:\n")
	fmt.Fprintf(&buf, "// %s\n\n", unit.Current)

	if len(features) > 0 {
		names := make([]string, 0, len(features))
		for f := range features {
			names = append(names, f)
		}
		sort.Strings(names)
		fmt.Fprintf(&buf, "#![feature(%s)]\n", strings.Join(names, ", "))
	}
	buf.WriteString("#![allow(non_camel_case_types)]\n")
	buf.WriteString("#![allow(non_snake_case)]\n")

	for _, b := range blocks {
		buf.WriteString("\n")
		buf.WriteString(b)
		buf.WriteString("\n")
	}

	if len(detail) > 0 {
		buf.WriteString("\nmod detail {\n")
		buf.WriteString("    #[allow(unused_imports)]\n")
		buf.WriteString("    use super::*;\n")
		buf.WriteString("    extern \"C\" {\n")
		for _, d := range detail {
			buf.WriteString(indent(d, "        "))
			buf.WriteString("\n")
		}
		buf.WriteString("    }\n")
		buf.WriteString("}\n")
	}

	// The null pointer optimization is what makes Option<&T> a valid
	// spelling of a nullable reference.
	buf.WriteString("\nconst _: () = assert!(::core::mem::size_of::<Option<&i32>>() == ::core::mem::size_of::<&i32>());\n")
	for _, a := range assertions {
		buf.WriteString("\n")
		buf.WriteString(a)
		buf.WriteString("\n")
	}
	return buf.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
