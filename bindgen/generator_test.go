package bindgen

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/liunix61/crubit4rust/bindgen/ir"
	"github.com/liunix61/crubit4rust/bindgen/sink"
)

// TestGolden replays every archive under testdata: each pairs an IR
// unit with the exact expected contents of both output streams.
func TestGolden(t *testing.T) {
	archives, err := filepath.Glob("testdata/*.txtar")
	if err != nil {
		t.Fatal(err)
	}
	if len(archives) == 0 {
		t.Fatal("no golden archives found")
	}

	for _, path := range archives {
		name := strings.TrimSuffix(filepath.Base(path), ".txtar")
		t.Run(name, func(t *testing.T) {
			ar, err := txtar.ParseFile(path)
			if err != nil {
				t.Fatal(err)
			}
			files := map[string][]byte{}
			for _, f := range ar.Files {
				files[f.Name] = f.Data
			}
			irData, ok := files["ir.json"]
			if !ok {
				t.Fatal("archive has no ir.json")
			}

			unit, err := ir.LoadJSON(bytes.NewReader(irData))
			if err != nil {
				t.Fatalf("load IR: %v", err)
			}

			out := sink.NewMemorySink()
			gen := New(DefaultConfig(), nil)
			if _, err := gen.Generate(context.Background(), unit, out); err != nil {
				t.Fatalf("Generate: %v", err)
			}

			for _, stream := range []string{"rs_api.rs", "rs_api_impl.cc"} {
				want, ok := files[stream]
				if !ok {
					continue
				}
				got := out.Get(stream)
				if got == nil {
					t.Fatalf("%s was not written", stream)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("%s mismatch:\n--- got ---\n%s\n--- want ---\n%s", stream, got, want)
				}
			}
		})
	}
}

func TestGenerateRejectsInvalidUnit(t *testing.T) {
	unit := &ir.Unit{
		FormatVersion: "1.0.0",
		Current:       "//foo:bar",
		PanicStrategy: "abort",
		Items: []ir.Item{
			// Constructor with no parameters breaks the front-end contract.
			&ir.Func{Name: "Broken", Kind: ir.FuncConstructor, OwningUnit: "//foo:bar", MangledName: "_Zb"},
		},
	}
	if err := unit.Index(); err != nil {
		t.Fatal(err)
	}

	out := sink.NewMemorySink()
	_, err := New(DefaultConfig(), nil).Generate(context.Background(), unit, out)
	if err == nil || !strings.Contains(err.Error(), "invalid IR unit") {
		t.Fatalf("err = %v", err)
	}
	if len(out.Files()) != 0 {
		t.Error("nothing may be written for an invalid unit")
	}
}

// Configured stdlib units are merged in the emitter context; the unit
// itself stays untouched and repeat passes stay identical.
func TestGenerateLeavesUnitUnmodified(t *testing.T) {
	stdlibRec := &ir.Record{
		ID: 1, Name: "string_view", OwningUnit: "//std:string_view",
		Size: 16, Alignment: 8,
		CopyConstructor: ir.Trivial, MoveConstructor: ir.Trivial, Destructor: ir.Trivial,
		Unpin: true,
	}
	unit := &ir.Unit{
		FormatVersion: "1.0.0",
		Current:       "//foo:bar",
		PanicStrategy: "abort",
		Items:         []ir.Item{stdlibRec},
	}
	if err := unit.Index(); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.StdlibUnits = []string{"//std:string_view"}
	gen := New(cfg, nil)

	out := sink.NewMemorySink()
	if _, err := gen.Generate(context.Background(), unit, out); err != nil {
		t.Fatal(err)
	}
	first := out.Get("rs_api.rs")
	if !strings.Contains(string(first), "pub struct string_view {") {
		t.Errorf("stdlib record not emitted:\n%s", first)
	}
	if len(unit.StdlibUnits) != 0 {
		t.Errorf("unit.StdlibUnits modified: %v", unit.StdlibUnits)
	}

	if _, err := gen.Generate(context.Background(), unit, out); err != nil {
		t.Fatal(err)
	}
	if second := out.Get("rs_api.rs"); !bytes.Equal(first, second) {
		t.Errorf("repeat pass differs:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}
}

func TestGenerateNoPartialOutputOnFailure(t *testing.T) {
	unit := &ir.Unit{
		FormatVersion: "1.0.0",
		Current:       "//foo:bar",
		PanicStrategy: "unwind",
	}
	if err := unit.Index(); err != nil {
		t.Fatal(err)
	}

	out := sink.NewMemorySink()
	if _, err := New(DefaultConfig(), nil).Generate(context.Background(), unit, out); err == nil {
		t.Fatal("expected error for unwind panic strategy")
	}
	if len(out.Files()) != 0 {
		t.Error("nothing may be written when the pass fails")
	}
}
