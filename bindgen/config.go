// Package bindgen orchestrates a binding generation pass: it loads and
// validates an IR unit, renders the Rust and C++ streams and writes them
// to an output sink.
package bindgen

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/gorilla/schema"

	"github.com/liunix61/crubit4rust/bindgen/rust"
)

// MonoRule maps one class template onto a known-safe target generic.
type MonoRule struct {
	Template    string `toml:"template"`
	RustGeneric string `toml:"rust_generic"`
}

// Config is the per-pass configuration. Everything here is data: the
// generation pipeline itself has no knobs beyond it.
type Config struct {
	// Experimental enables the experimental feature tier.
	Experimental bool `toml:"experimental" schema:"experimental"`

	// StdlibUnits lists units whose records and aliases are emitted as
	// if they were part of the current unit.
	StdlibUnits []string `toml:"stdlib_units" schema:"stdlib_units"`

	// TemplateAllowlist lists class templates whose complete
	// instantiations are baseline tier.
	TemplateAllowlist []string `toml:"template_allowlist" schema:"template_allowlist"`

	// Monomorphizations is the known-safe generic mapping table.
	Monomorphizations []MonoRule `toml:"monomorphization" schema:"-"`

	// RustOut and CcOut are the sink-relative output paths.
	RustOut string `toml:"rust_out" schema:"rust_out"`
	CcOut   string `toml:"cc_out" schema:"cc_out"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		TemplateAllowlist: []string{"std::string_view", "std::wstring_view"},
		Monomorphizations: []MonoRule{
			{Template: "std::unique_ptr", RustGeneric: "cc_std::std::unique_ptr"},
		},
		RustOut: "rs_api.rs",
		CcOut:   "rs_api_impl.cc",
	}
}

// LoadConfig reads a TOML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

var overrideDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(false)
	return d
}()

// ApplyOverrides applies -D key=value command line overrides on top of
// the loaded configuration.
func (c *Config) ApplyOverrides(values map[string][]string) error {
	if len(values) == 0 {
		return nil
	}
	if err := overrideDecoder.Decode(c, values); err != nil {
		return fmt.Errorf("apply overrides: %w", err)
	}
	return nil
}

// EnabledFeatures translates the config into the classifier's tier set.
func (c Config) EnabledFeatures() rust.FeatureSet {
	enabled := rust.FeatureSupported
	if c.Experimental {
		enabled |= rust.FeatureExperimental
	}
	return enabled
}

func (c Config) templateAllowlist() map[string]bool {
	out := make(map[string]bool, len(c.TemplateAllowlist))
	for _, t := range c.TemplateAllowlist {
		out[t] = true
	}
	return out
}

func (c Config) monoRules() []rust.MonoRule {
	out := make([]rust.MonoRule, len(c.Monomorphizations))
	for i, r := range c.Monomorphizations {
		out[i] = rust.MonoRule{Template: r.Template, RustGeneric: r.RustGeneric}
	}
	return out
}
