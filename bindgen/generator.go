package bindgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/liunix61/crubit4rust/bindgen/cc"
	"github.com/liunix61/crubit4rust/bindgen/ir"
	"github.com/liunix61/crubit4rust/bindgen/rust"
	"github.com/liunix61/crubit4rust/bindgen/sink"
)

// Generator runs binding generation passes.
type Generator struct {
	cfg Config
	log *slog.Logger
}

// New builds a Generator. A nil logger falls back to slog.Default().
func New(cfg Config, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{cfg: cfg, log: log}
}

// Result summarizes one pass.
type Result struct {
	RustPath string
	CcPath   string
	Warnings int
}

// Check validates a unit without generating anything, returning all
// problems found.
func (g *Generator) Check(unit *ir.Unit) []error {
	return unit.Validate()
}

// Generate renders both output streams for the unit and writes them to
// the sink. Nothing is written when any stage fails.
func (g *Generator) Generate(ctx context.Context, unit *ir.Unit, out sink.OutputSink) (*Result, error) {
	if errs := unit.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid IR unit: %w", errors.Join(errs...))
	}

	stdlib := make([]ir.UnitID, len(g.cfg.StdlibUnits))
	for i, u := range g.cfg.StdlibUnits {
		stdlib[i] = ir.UnitID(u)
	}

	rctx := &rust.Context{
		Unit:              unit,
		StdlibUnits:       stdlib,
		TemplateAllowlist: g.cfg.templateAllowlist(),
		Monomorphizations: g.cfg.monoRules(),
	}

	src, err := rust.NewEmitter(rctx, g.cfg.EnabledFeatures(), g.log).Emit()
	if err != nil {
		return nil, fmt.Errorf("emit Rust stream: %w", err)
	}

	thunks := make([]cc.Thunk, len(src.Thunks))
	for i, t := range src.Thunks {
		thunks[i] = cc.Thunk{Func: t.Func, Record: t.Record}
	}
	impl, err := cc.Generate(unit, thunks, src.Records)
	if err != nil {
		return nil, fmt.Errorf("emit C++ stream: %w", err)
	}

	if err := out.WriteFile(ctx, g.cfg.RustOut, []byte(src.Rust)); err != nil {
		return nil, fmt.Errorf("write %s: %w", g.cfg.RustOut, err)
	}
	if err := out.WriteFile(ctx, g.cfg.CcOut, []byte(impl)); err != nil {
		return nil, fmt.Errorf("write %s: %w", g.cfg.CcOut, err)
	}

	g.log.Info("bindings generated",
		"unit", unit.Current,
		"rust", g.cfg.RustOut,
		"cc", g.cfg.CcOut,
		"warnings", src.Warnings)

	return &Result{
		RustPath: g.cfg.RustOut,
		CcPath:   g.cfg.CcOut,
		Warnings: src.Warnings,
	}, nil
}
