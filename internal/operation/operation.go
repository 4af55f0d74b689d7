// Package operation holds the catalog of treatment operation codes and the
// operation modes each code allows. The catalog is configuration data
// embedded from codes.yaml.
package operation

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	dErrors "bordereau/pkg/domain-errors"
)

// Mode is the treatment mode declared alongside an operation code.
type Mode string

const (
	Reutilisation           Mode = "REUTILISATION"
	Recyclage               Mode = "RECYCLAGE"
	ValorisationEnergetique Mode = "VALORISATION_ENERGETIQUE"
	AutresValorisations     Mode = "AUTRES_VALORISATIONS"
	Elimination             Mode = "ELIMINATION"
)

func (m Mode) Valid() bool {
	switch m {
	case Reutilisation, Recyclage, ValorisationEnergetique, AutresValorisations, Elimination:
		return true
	}
	return false
}

// Messages returned by Catalog.Check.
const (
	MsgModeMissing      = "Vous devez préciser un mode de traitement"
	MsgModeIncompatible = "Le mode de traitement n'est pas compatible avec l'opération de traitement choisie"
	MsgModeNotExpected  = "Aucun mode de traitement n'est attendu pour cette opération de traitement"
)

//go:embed codes.yaml
var defaultCodes []byte

var defaultCatalog = MustLoad(defaultCodes)

// Catalog maps normalised operation codes to their allowed modes.
type Catalog struct {
	modes map[string][]Mode
}

// Default returns the embedded catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Load parses a catalog from YAML.
func Load(data []byte) (*Catalog, error) {
	var file struct {
		Codes map[string][]Mode `yaml:"codes"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid operation code catalog")
	}
	if len(file.Codes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "operation code catalog is empty")
	}
	modes := make(map[string][]Mode, len(file.Codes))
	for code, ms := range file.Codes {
		for _, m := range ms {
			if !m.Valid() {
				return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("code %s: unknown mode %q", code, m))
			}
		}
		modes[Normalize(code)] = ms
	}
	return &Catalog{modes: modes}, nil
}

// MustLoad is Load for embedded catalogs.
func MustLoad(data []byte) *Catalog {
	c, err := Load(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Normalize strips spaces and upper-cases a code: "d 10" becomes "D10".
func Normalize(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
}

// Known reports whether code is in the catalog.
func (c *Catalog) Known(code string) bool {
	_, ok := c.modes[Normalize(code)]
	return ok
}

// ModesFor returns the modes allowed for code; nil for unknown codes and for
// codes that take no mode.
func (c *Catalog) ModesFor(code string) []Mode {
	return c.modes[Normalize(code)]
}

// Check validates a code/mode pair and returns the violation message, or ""
// when the pair is consistent. An empty code is not checked.
func (c *Catalog) Check(code string, mode *Mode) string {
	if strings.TrimSpace(code) == "" {
		return ""
	}
	modes := c.ModesFor(code)
	hasMode := mode != nil && *mode != ""
	switch {
	case len(modes) > 0 && !hasMode:
		return MsgModeMissing
	case len(modes) > 0 && !slices.Contains(modes, *mode):
		return MsgModeIncompatible
	case len(modes) == 0 && hasMode:
		return MsgModeNotExpected
	}
	return ""
}
