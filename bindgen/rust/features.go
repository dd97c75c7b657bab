package rust

import (
	"fmt"
	"sort"
	"strings"
)

// FeatureSet is a bitmask of binding feature tiers.
type FeatureSet uint8

const (
	// FeatureSupported is the baseline tier every binding requires.
	FeatureSupported FeatureSet = 1 << iota
	// FeatureExperimental covers constructs with no stable contract yet.
	FeatureExperimental
)

// Has reports whether every tier in req is enabled in f.
func (f FeatureSet) Has(req FeatureSet) bool { return f&req == req }

func (f FeatureSet) String() string {
	var parts []string
	if f.Has(FeatureSupported) {
		parts = append(parts, "supported")
	}
	if f.Has(FeatureExperimental) {
		parts = append(parts, "experimental")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// TypePosition says where a type occurs in a signature. The root-level
// relocatability check only applies where a value is passed or returned
// by value.
type TypePosition int

const (
	PositionOther TypePosition = iota
	PositionValueParam
	PositionValueReturn
)

// RequiredFeatures reports the feature tiers needed to bind the type in
// the given position, with one human-readable reason per finding beyond
// the baseline. Reasons come back deduplicated and sorted, so the result
// is independent of traversal order.
//
// The walk deliberately does not descend into record fields: whether a
// record is usable must not depend on what it contains.
func RequiredFeatures(t TypeKind, pos TypePosition) (FeatureSet, []string) {
	required := FeatureSupported
	var reasons []string
	flag(&required, &reasons, t, pos)

	for _, node := range dfs(t) {
		switch k := node.(type) {
		case *Reference:
			required |= FeatureExperimental
			reasons = append(reasons, "references are not supported")
		case *RvalueReference:
			required |= FeatureExperimental
			reasons = append(reasons, "references are not supported")
		case *IncompleteRecord:
			required |= FeatureExperimental
			reasons = append(reasons, fmt.Sprintf("%s is not a complete type", k.Record.Name))
		case *RecordKind:
			if k.Record.Template != nil && k.Mono == nil && !k.TemplateAllowlisted {
				required |= FeatureExperimental
				reasons = append(reasons, fmt.Sprintf("%s is a template instantiation", k.Record.Name))
			}
		case *FuncPtr:
			if k.Abi != "C" {
				required |= FeatureExperimental
				reasons = append(reasons, fmt.Sprintf("function pointers with the %q calling convention are not supported", k.Abi))
			}
		case *BridgeKind:
			required |= FeatureExperimental
			reasons = append(reasons, fmt.Sprintf("%s is a bridge type", k.Name))
		case *OpaqueKind:
			required |= FeatureExperimental
			reasons = append(reasons, fmt.Sprintf("%s is not a supported type", k.Name))
		}
	}

	return required, dedupeSorted(reasons)
}

// flag applies the root-only check: a value passed or returned by value
// must be relocatable by a bitwise move.
func flag(required *FeatureSet, reasons *[]string, t TypeKind, pos TypePosition) {
	if pos == PositionOther {
		return
	}
	if !IsUnpin(t) {
		*required |= FeatureExperimental
		*reasons = append(*reasons, fmt.Sprintf("%s is not movable by value", describe(t)))
	}
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// CheckFeatures verifies that the enabled tiers cover the required ones,
// returning an error carrying the reasons otherwise.
func CheckFeatures(enabled, required FeatureSet, reasons []string) error {
	if enabled.Has(required) {
		return nil
	}
	missing := required &^ enabled
	if len(reasons) == 0 {
		return fmt.Errorf("requires feature tier %s", missing)
	}
	return fmt.Errorf("requires feature tier %s: %s", missing, strings.Join(reasons, ", "))
}
