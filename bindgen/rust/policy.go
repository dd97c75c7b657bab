package rust

import (
	"fmt"

	"github.com/liunix61/crubit4rust/bindgen/ir"
)

// CheckByValue reports whether values of the record may be created and
// owned by value at all. Destruction must be possible and the type must
// be instantiable.
func CheckByValue(r *ir.Record) error {
	if r.Destructor == ir.Unavailable {
		return fmt.Errorf("values of type %s cannot be destroyed", r.Name)
	}
	if r.IsAbstract {
		return fmt.Errorf("abstract type %s cannot be passed by value", r.Name)
	}
	return nil
}

// ShouldDeriveClone decides whether the record gets #[derive(Clone)].
// Unions piggyback on the Copy decision since a member-wise clone of a
// union is meaningless. Everything else requires relocatability plus a
// trivial copy constructor.
func ShouldDeriveClone(r *ir.Record) bool {
	if r.IsUnion {
		return ShouldDeriveCopy(r)
	}
	return r.Unpin && r.CopyConstructor == ir.Trivial && CheckByValue(r) == nil
}

// ShouldDeriveCopy decides whether the record gets #[derive(Copy)]. On
// top of Clone's requirements the destructor must be trivial, since Copy
// values are duplicated without any chance to run cleanup.
func ShouldDeriveCopy(r *ir.Record) bool {
	return r.Unpin && r.CopyConstructor == ir.Trivial && r.Destructor == ir.Trivial && CheckByValue(r) == nil
}

// ShouldImplementDrop decides whether a Drop impl forwarding to the
// original destructor is synthesized. Trivial destructors need no code
// and deleted or unavailable ones must never be called.
func ShouldImplementDrop(r *ir.Record) bool {
	switch r.Destructor {
	case ir.NontrivialMembers, ir.NontrivialUserDefined:
		return true
	default:
		return false
	}
}

// ImplementsCopy reports whether the lowered form of the type is Copy.
// Used to decide which fields need ManuallyDrop wrapping.
func ImplementsCopy(t TypeKind) bool {
	switch k := t.(type) {
	case *PrimitiveKind, *Pointer, *FuncPtr, *EnumKind:
		return true
	case *Reference:
		return !k.Mut
	case *RvalueReference:
		return false
	case *IncompleteRecord:
		return false
	case *RecordKind:
		if k.Mono != nil {
			return false
		}
		return ShouldDeriveCopy(k.Record)
	case *AliasKind:
		return ImplementsCopy(k.Underlying)
	case *SliceKind:
		return false
	case *OptionKind:
		return ImplementsCopy(k.Inner)
	case *BridgeKind:
		return false
	case *OpaqueKind:
		return false
	default:
		return false
	}
}

// NeedsManuallyDrop reports whether a field of the given type must be
// wrapped in ManuallyDrop inside a record that implements Drop, so the
// original destructor stays in charge of tearing the field down.
func NeedsManuallyDrop(t TypeKind) bool {
	return !ImplementsCopy(t)
}
