package ir

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/vmihailenco/msgpack/v5"
)

// Item kind discriminators used on the wire. Function items reuse the
// FuncKind values directly.
const (
	kindRecord      = "record"
	kindEnum        = "enum"
	kindTypeAlias   = "type_alias"
	kindUnsupported = "unsupported"
	kindComment     = "comment"
)

// unitWire is the serialized form of Unit: items are kept raw so the
// "kind" discriminator can be inspected before choosing a concrete type.
type unitWire struct {
	FormatVersion string   `json:"format_version" msgpack:"format_version"`
	Current       UnitID   `json:"current_unit" msgpack:"current_unit"`
	StdlibUnits   []UnitID `json:"stdlib_units" msgpack:"stdlib_units"`
	PanicStrategy string   `json:"panic_strategy" msgpack:"panic_strategy"`
	UsedHeaders   []string `json:"used_headers" msgpack:"used_headers"`
}

type jsonUnitWire struct {
	unitWire
	Items []json.RawMessage `json:"items"`
}

type msgpackUnitWire struct {
	unitWire
	Items []msgpack.RawMessage `msgpack:"items"`
}

type itemKind struct {
	Kind string `json:"kind" msgpack:"kind"`
}

// Load reads a unit from path, choosing the format from the file
// extension: ".json" for JSON, ".msgpack" (or ".bin") for MessagePack.
func Load(path string) (*Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext := filepath.Ext(path); ext {
	case ".json":
		return LoadJSON(f)
	case ".msgpack", ".bin":
		return LoadMsgpack(f)
	default:
		return nil, fmt.Errorf("unrecognized IR file extension %q (want .json or .msgpack)", ext)
	}
}

// LoadJSON decodes a unit from its JSON wire form.
func LoadJSON(r io.Reader) (*Unit, error) {
	var wire jsonUnitWire
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode IR unit: %w", err)
	}

	unit := wire.unitWire.toUnit()
	for i, raw := range wire.Items {
		item, err := decodeItem(raw, json.Unmarshal)
		if err != nil {
			return nil, fmt.Errorf("decode IR item %d: %w", i, err)
		}
		unit.Items = append(unit.Items, item)
	}
	return finishLoad(unit)
}

// LoadMsgpack decodes a unit from its MessagePack wire form.
func LoadMsgpack(r io.Reader) (*Unit, error) {
	var wire msgpackUnitWire
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode IR unit: %w", err)
	}

	unit := wire.unitWire.toUnit()
	for i, raw := range wire.Items {
		item, err := decodeItem(raw, msgpack.Unmarshal)
		if err != nil {
			return nil, fmt.Errorf("decode IR item %d: %w", i, err)
		}
		unit.Items = append(unit.Items, item)
	}
	return finishLoad(unit)
}

func (w unitWire) toUnit() *Unit {
	return &Unit{
		FormatVersion: w.FormatVersion,
		Current:       w.Current,
		StdlibUnits:   w.StdlibUnits,
		PanicStrategy: w.PanicStrategy,
		UsedHeaders:   w.UsedHeaders,
	}
}

func decodeItem(raw []byte, unmarshal func([]byte, any) error) (Item, error) {
	var k itemKind
	if err := unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("read item kind: %w", err)
	}

	var item Item
	switch k.Kind {
	case kindRecord:
		item = &Record{}
	case kindEnum:
		item = &Enum{}
	case kindTypeAlias:
		item = &TypeAlias{}
	case kindUnsupported:
		item = &UnsupportedItem{}
	case kindComment:
		item = &Comment{}
	case string(FuncNamed), string(FuncConstructor), string(FuncDestructor), string(FuncOperator):
		item = &Func{}
	default:
		return nil, fmt.Errorf("unknown item kind %q", k.Kind)
	}
	if err := unmarshal(raw, item); err != nil {
		return nil, fmt.Errorf("decode %q item: %w", k.Kind, err)
	}
	return item, nil
}

func finishLoad(unit *Unit) (*Unit, error) {
	if err := checkFormatVersion(unit.FormatVersion); err != nil {
		return nil, err
	}
	if err := unit.Index(); err != nil {
		return nil, err
	}
	return unit, nil
}

func checkFormatVersion(version string) error {
	if strings.TrimSpace(version) == "" {
		return fmt.Errorf("IR unit is missing format_version")
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid IR format_version %q: %w", version, err)
	}
	c, err := semver.NewConstraint(FormatVersionConstraint)
	if err != nil {
		return fmt.Errorf("invalid format version constraint: %w", err)
	}
	if !c.Check(v) {
		return fmt.Errorf("unsupported IR format_version %s (this generator accepts %s)", v, FormatVersionConstraint)
	}
	return nil
}
