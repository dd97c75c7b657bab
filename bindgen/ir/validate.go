package ir

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError is one structural problem found in a unit.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks the unit for structural issues and returns all errors
// found, not just the first. A unit that fails validation breaks the
// contract with the front end and must not be passed to the emitter.
func (u *Unit) Validate() []error {
	var errs []*ValidationError
	report := func(code, format string, args ...any) {
		errs = append(errs, &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if u.Current == "" {
		report("missing_current_unit", "unit has no current_unit identity")
	}

	seen := make(map[DeclID]string)
	for i, it := range u.Items {
		switch d := it.(type) {
		case *Record:
			if err := validate.Struct(d); err != nil {
				report("invalid_record", "record %q: %v", d.Name, err)
			}
			if prev, dup := seen[d.ID]; dup {
				report("duplicate_decl_id", "decl id %d used by both %q and %q", d.ID, prev, d.Name)
			}
			seen[d.ID] = d.Name
			u.validateRecord(d, report)
		case *Enum:
			if err := validate.Struct(d); err != nil {
				report("invalid_enum", "enum %q: %v", d.Name, err)
			}
			if prev, dup := seen[d.ID]; dup {
				report("duplicate_decl_id", "decl id %d used by both %q and %q", d.ID, prev, d.Name)
			}
			seen[d.ID] = d.Name
		case *TypeAlias:
			if err := validate.Struct(d); err != nil {
				report("invalid_alias", "type alias %q: %v", d.Name, err)
			}
			if prev, dup := seen[d.ID]; dup {
				report("duplicate_decl_id", "decl id %d used by both %q and %q", d.ID, prev, d.Name)
			}
			seen[d.ID] = d.Name
		case *Func:
			if err := validate.Struct(d); err != nil {
				report("invalid_func", "function %q: %v", d.Name, err)
			}
			u.validateFunc(d, report)
		case *UnsupportedItem, *Comment:
			// Nothing to check.
		default:
			report("unknown_item", "item %d has unknown type %T", i, it)
		}
	}

	// Member functions must reference records that exist in this unit.
	for _, f := range u.Functions() {
		if f.Member != nil && u.RecordForID(f.Member.RecordID) == nil {
			report("missing_member_record", "function %q references unknown record id %d", f.Name, f.Member.RecordID)
		}
	}

	out := make([]error, 0, len(errs))
	for _, e := range errs {
		out = append(out, e)
	}
	return out
}

func (u *Unit) validateRecord(r *Record, report func(code, format string, args ...any)) {
	if r.Incomplete {
		return
	}
	if r.Alignment == 0 || r.Alignment&(r.Alignment-1) != 0 {
		report("invalid_alignment", "record %q has non-power-of-two alignment %d", r.Name, r.Alignment)
	}
	if r.Size == 0 {
		// C++ objects always occupy at least one byte.
		report("invalid_size", "record %q has size 0", r.Name)
	}
	for _, f := range r.Fields {
		if f.Offset >= r.Size {
			report("field_offset_out_of_range", "record %q field %q at offset %d exceeds size %d",
				r.Name, f.Name, f.Offset, r.Size)
		}
	}
	for k, m := range map[string]SpecialMember{
		"copy constructor": r.CopyConstructor,
		"move constructor": r.MoveConstructor,
		"destructor":       r.Destructor,
	} {
		switch m {
		case Trivial, NontrivialMembers, NontrivialUserDefined, Deleted, Unavailable:
		default:
			report("invalid_special_member", "record %q has invalid %s classification %q", r.Name, k, m)
		}
	}
}

func (u *Unit) validateFunc(f *Func, report func(code, format string, args ...any)) {
	switch f.Kind {
	case FuncConstructor:
		// The implicit output-storage parameter must be present; its
		// absence is a front-end contract breach, not an unsupported
		// declaration.
		if len(f.Params) == 0 {
			report("constructor_without_this", "constructor %q has no parameters", f.MangledName)
		}
		if f.Member == nil {
			report("constructor_without_record", "constructor %q is not a member function", f.MangledName)
		}
	case FuncDestructor:
		if f.Member == nil {
			report("destructor_without_record", "destructor %q is not a member function", f.MangledName)
		}
	case FuncNamed, FuncOperator:
	default:
		report("invalid_func_kind", "function %q has invalid kind %q", f.Name, f.Kind)
	}
}
