package rust

import (
	"fmt"
	"strings"
)

// formatOpts controls type rendering. Inside the detail module every
// current-unit name needs the crate:: prefix because the module has its
// own namespace.
type formatOpts struct {
	crateQualify bool
}

// FormatType renders the representation as Rust source for the public
// surface.
func FormatType(t TypeKind) string {
	return formatType(t, formatOpts{})
}

// FormatTypeForDetail renders the representation for use inside the
// detail module, with current-unit names crate-qualified.
func FormatTypeForDetail(t TypeKind) string {
	return formatType(t, formatOpts{crateQualify: true})
}

func formatType(t TypeKind, opts formatOpts) string {
	switch k := t.(type) {
	case *Pointer:
		if k.Mut {
			return "*mut " + formatType(k.Pointee, opts)
		}
		return "*const " + formatType(k.Pointee, opts)

	case *Reference:
		referent := formatType(k.Referent, opts)
		if k.Mut && !IsUnpin(k.Referent) {
			return fmt.Sprintf("::core::pin::Pin<&%smut %s>", k.Lifetime.FormatForReference(), referent)
		}
		if k.Mut {
			return fmt.Sprintf("&%smut %s", k.Lifetime.FormatForReference(), referent)
		}
		return fmt.Sprintf("&%s%s", k.Lifetime.FormatForReference(), referent)

	case *RvalueReference:
		wrapper := "::ctor::ConstRvalueReference"
		if k.Mut {
			wrapper = "::ctor::RvalueReference"
		}
		return fmt.Sprintf("%s<%s, %s>", wrapper, k.Lifetime, formatType(k.Referent, opts))

	case *FuncPtr:
		params := make([]string, len(k.Params))
		for i, p := range k.Params {
			params[i] = formatType(p, opts)
		}
		return fmt.Sprintf("extern %q fn(%s)%s", k.Abi, strings.Join(params, ", "), formatReturn(k.Return, opts))

	case *IncompleteRecord:
		return qualify(string(k.Path), k.Record.Name, opts)

	case *RecordKind:
		if k.Mono != nil {
			args := make([]string, len(k.Mono.TypeArgs))
			for i, a := range k.Mono.TypeArgs {
				args[i] = formatType(a, opts)
			}
			return fmt.Sprintf("%s<%s>", k.Mono.RustGeneric, strings.Join(args, ", "))
		}
		return qualify(string(k.Path), k.Record.Name, opts)

	case *EnumKind:
		return qualify(string(k.Path), k.Enum.Name, opts)

	case *AliasKind:
		return qualify(string(k.Path), k.Alias.Name, opts)

	case *PrimitiveKind:
		if k.Kind == PrimitiveUnit {
			return "::core::ffi::c_void"
		}
		return string(k.Kind)

	case *SliceKind:
		return "[" + formatType(k.Element, opts) + "]"

	case *OptionKind:
		return "Option<" + formatType(k.Inner, opts) + ">"

	case *BridgeKind:
		return k.Name

	case *OpaqueKind:
		if len(k.TypeArgs) == 0 {
			return k.Name
		}
		args := make([]string, len(k.TypeArgs))
		for i, a := range k.TypeArgs {
			args[i] = formatType(a, opts)
		}
		return fmt.Sprintf("%s<%s>", k.Name, strings.Join(args, ", "))

	default:
		panic(fmt.Sprintf("unhandled type kind %T", t))
	}
}

// qualify prefixes a name with its owning crate, or with crate:: inside
// the detail module. A name from another unit never gets the crate::
// prefix on top of its own crate path.
func qualify(path, name string, opts formatOpts) string {
	if path != "" {
		return path + name
	}
	if opts.crateQualify {
		return "crate::" + name
	}
	return name
}

// FormatReturn renders a return type fragment, empty for unit.
func FormatReturn(t TypeKind) string {
	return formatReturn(t, formatOpts{})
}

func formatReturnForDetail(t TypeKind) string {
	return formatReturn(t, formatOpts{crateQualify: true})
}

func formatReturn(t TypeKind, opts formatOpts) string {
	if isUnitType(t) {
		return ""
	}
	return " -> " + formatType(t, opts)
}
