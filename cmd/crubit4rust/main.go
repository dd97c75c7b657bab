// Command crubit4rust generates Rust bindings for a C++ compilation
// unit from its IR file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/liunix61/crubit4rust/bindgen"
	"github.com/liunix61/crubit4rust/bindgen/ir"
	"github.com/liunix61/crubit4rust/bindgen/sink"
)

type CLI struct {
	Version VersionCmd `cmd:"" help:"Print version information."`
	Gen     GenCmd     `cmd:"" help:"Generate rs_api.rs and rs_api_impl.cc from an IR file."`
	Check   CheckCmd   `cmd:"" help:"Validate an IR file without generating anything."`

	Verbose bool `help:"Enable debug logging." short:"v"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(color.New(color.Bold).Sprint("crubit4rust"), Version())
	return nil
}

type GenCmd struct {
	IR  string `arg:"" help:"IR file (.json or .msgpack)."`
	Out string `arg:"" help:"Output directory for generated files."`

	Config string            `help:"TOML config file." short:"c" type:"existingfile"`
	Define map[string]string `help:"Config overrides (key=value)." short:"D"`
}

func (c *GenCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(c.Config, c.Define)
	if err != nil {
		return err
	}

	unit, err := ir.Load(c.IR)
	if err != nil {
		return fmt.Errorf("load IR: %w", err)
	}

	gen := bindgen.New(cfg, logger(cli.Verbose))
	res, err := gen.Generate(context.Background(), unit, sink.NewFilesystemSink(c.Out))
	if err != nil {
		return err
	}

	if res.Warnings > 0 {
		color.New(color.FgYellow).Fprintf(os.Stderr, "%d declaration(s) got no bindings\n", res.Warnings)
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "wrote %s and %s\n", res.RustPath, res.CcPath)
	return nil
}

type CheckCmd struct {
	IR string `arg:"" help:"IR file (.json or .msgpack)."`
}

func (c *CheckCmd) Run(cli *CLI) error {
	unit, err := ir.Load(c.IR)
	if err != nil {
		return fmt.Errorf("load IR: %w", err)
	}

	errs := unit.Validate()
	for _, e := range errs {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", e)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d problem(s) found", len(errs))
	}
	color.New(color.FgGreen).Fprintln(os.Stderr, "ok")
	return nil
}

func loadConfig(path string, defines map[string]string) (bindgen.Config, error) {
	cfg := bindgen.DefaultConfig()
	if path != "" {
		var err error
		cfg, err = bindgen.LoadConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if len(defines) > 0 {
		values := make(map[string][]string, len(defines))
		for k, v := range defines {
			values[k] = []string{v}
		}
		if err := cfg.ApplyOverrides(values); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func logger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("crubit4rust"),
		kong.Description("Rust bindings generator for C++ compilation units."),
		kong.UsageOnError(),
	)
	err := ctx.Run(cli)
	ctx.FatalIfErrorf(err)
}
