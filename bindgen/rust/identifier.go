package rust

// rustKeywords are identifiers that need escaping before they can appear
// as item, field or parameter names in generated source.
var rustKeywords = map[string]bool{
	"as": true, "async": true, "await": true, "break": true, "const": true,
	"continue": true, "dyn": true, "else": true, "enum": true, "extern": true,
	"false": true, "fn": true, "for": true, "if": true, "impl": true,
	"in": true, "let": true, "loop": true, "match": true, "mod": true,
	"move": true, "mut": true, "pub": true, "ref": true, "return": true,
	"static": true, "struct": true, "trait": true, "true": true, "type": true,
	"unsafe": true, "use": true, "where": true, "while": true,

	"abstract": true, "become": true, "box": true, "do": true, "final": true,
	"macro": true, "override": true, "priv": true, "try": true, "typeof": true,
	"unsized": true, "virtual": true, "yield": true,
}

// noRawForm are keywords the raw-identifier syntax cannot express; they
// get a trailing underscore instead.
var noRawForm = map[string]bool{
	"crate": true, "self": true, "Self": true, "super": true,
}

// EscapeIdent makes a C++ identifier usable as a Rust identifier,
// using raw-identifier syntax for keyword collisions.
func EscapeIdent(name string) string {
	if noRawForm[name] {
		return name + "_"
	}
	if rustKeywords[name] {
		return "r#" + name
	}
	return name
}
