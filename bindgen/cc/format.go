// Package cc renders the C++ side of the boundary: thunk definitions
// for functions that cannot be linked directly, and static_asserts that
// pin down the layout the Rust stream relies on.
package cc

import (
	"fmt"
	"strings"

	"github.com/liunix61/crubit4rust/bindgen/ir"
)

// FormatType renders a C++ type spelling. Constness is rendered in
// suffix position so it stays unambiguous under nesting
// ("int const* const").
func FormatType(t ir.CcType, unit *ir.Unit) (string, error) {
	switch t.Name {
	case "":
		name, err := declName(t.Decl, unit)
		if err != nil {
			return "", err
		}
		return withConst(name, t.Const), nil

	case "*", "&", "&&":
		if len(t.TypeArgs) != 1 {
			return "", fmt.Errorf("%q needs exactly 1 type argument", t.Name)
		}
		inner, err := FormatType(t.TypeArgs[0], unit)
		if err != nil {
			return "", err
		}
		return withConst(inner+t.Name, t.Const), nil

	default:
		if len(t.TypeArgs) == 0 {
			return withConst(t.Name, t.Const), nil
		}
		args := make([]string, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			s, err := FormatType(a, unit)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return withConst(fmt.Sprintf("%s<%s>", t.Name, strings.Join(args, ", ")), t.Const), nil
	}
}

func withConst(s string, isConst bool) string {
	if isConst {
		return s + " const"
	}
	return s
}

func declName(id ir.DeclID, unit *ir.Unit) (string, error) {
	switch d := unit.ItemForID(id).(type) {
	case *ir.Record:
		return d.Name, nil
	case *ir.Enum:
		return d.Name, nil
	case *ir.TypeAlias:
		return d.Name, nil
	default:
		return "", fmt.Errorf("no declaration with id %d", id)
	}
}
