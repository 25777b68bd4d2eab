package calculator

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Number decodes from a YAML/JSON number or a numeric string. The backend
// sends k-grid sizes as strings.
type Number float64

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	s := strings.TrimSpace(node.Value)
	switch {
	case s == "" || node.Tag == "!!null":
		return nil
	case node.Tag == "!!bool":
		if strings.EqualFold(s, "true") {
			*n = 1
		} else {
			*n = 0
		}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
	}
	*n = Number(f)
	return nil
}

// Int returns the value rounded towards zero.
func (n Number) Int() int { return int(n) }

// Flag decodes from a boolean, a number (non-zero is true) or a string.
type Flag bool

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a boolean", node.Line)
	}
	switch strings.ToLower(strings.TrimSpace(node.Value)) {
	case "", "null", "~", "false", "no", "off", "f", "0":
		*f = false
		return nil
	case "true", "yes", "on", "t", "1":
		*f = true
		return nil
	}
	v, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a boolean", node.Line, node.Value)
	}
	*f = v != 0
	return nil
}

// CalcSettings is the solver configuration from calculator.json.
type CalcSettings struct {
	PseudoPath  string `yaml:"pseudo_path"`
	XC          string `yaml:"xc"`
	XCAuthors   string `yaml:"xcAuth"`
	Spin        string `yaml:"spin"`
	EnergyShift Number `yaml:"energy_shift"`
	BasisSet    string `yaml:"basisSet"`
	MeshCutoff  Number `yaml:"meshCutoff"`
	NKX         Number `yaml:"nkx"`
	NKY         Number `yaml:"nky"`
	NKZ         Number `yaml:"nkz"`
	MixingCoeff Number `yaml:"MixingCoeff"`
	MaxIter     Number `yaml:"maxIter"`
}

// DefaultCalcSettings returns the values used for keys absent from
// calculator.json.
func DefaultCalcSettings() CalcSettings {
	return CalcSettings{
		PseudoPath:  ".",
		XC:          "LDA",
		XCAuthors:   "PZ",
		Spin:        "none",
		EnergyShift: 0.1,
		BasisSet:    "DZP",
		MeshCutoff:  300,
		NKX:         1,
		NKY:         1,
		NKZ:         1,
		MixingCoeff: 0.3,
		MaxIter:     50,
	}
}

// KGrid returns the Monkhorst-Pack grid size.
func (s CalcSettings) KGrid() [3]int {
	return [3]int{s.NKX.Int(), s.NKY.Int(), s.NKZ.Int()}
}

// BandInputs configures the band-structure path.
type BandInputs struct {
	NKForBand Number `yaml:"nkforband"`
}

// DOSInputs configures the projected density of states block.
type DOSInputs struct {
	EMin         Number `yaml:"enemin"`
	EMax         Number `yaml:"enemax"`
	FWHM         Number `yaml:"fwhm"`
	SelectedUnit string `yaml:"selectedunit"`
}

// ChargeInputs selects population analyses.
type ChargeInputs struct {
	Mulliken  Number `yaml:"mullikenWanted"`
	Hirshfeld Flag   `yaml:"hirshfeldWanted"`
	Voronoi   Flag   `yaml:"voronoiWanted"`
}

// RelaxInputs configures a conjugate-gradient geometry optimization.
type RelaxInputs struct {
	Steps        Number `yaml:"steps"`
	MaxForce     Number `yaml:"maxForce"`
	VariableCell Flag   `yaml:"variableCell"`
}

// MDInputs configures a molecular dynamics run.
type MDInputs struct {
	Steps       Number `yaml:"steps"`
	TimeStep    Number `yaml:"timeStep"`
	Temperature Number `yaml:"temperature"`
	Ensemble    string `yaml:"ensemble"`
}

// Parameters is the post-processing request from parameters.json.
type Parameters struct {
	ProjectType string `yaml:"projectType"`

	BandWanted Flag       `yaml:"bandWanted"`
	BandInputs BandInputs `yaml:"bandInputs"`

	DOSWanted Flag      `yaml:"dosWanted"`
	DOSInputs DOSInputs `yaml:"dosInputs"`

	ChargeWanted Flag         `yaml:"chargeWanted"`
	ChargeInputs ChargeInputs `yaml:"chargeInputs"`

	RelaxInputs RelaxInputs `yaml:"relaxInputs"`
	MDInputs    MDInputs    `yaml:"mdInputs"`
}

// DefaultParameters returns the values used for keys absent from
// parameters.json.
func DefaultParameters() Parameters {
	return Parameters{
		BandInputs: BandInputs{NKForBand: 100},
		DOSInputs:  DOSInputs{EMin: -20, EMax: 10, FWHM: 0.2, SelectedUnit: "eV"},
		RelaxInputs: RelaxInputs{
			Steps:    100,
			MaxForce: 0.04,
		},
		MDInputs: MDInputs{
			Steps:       100,
			TimeStep:    1,
			Temperature: 300,
			Ensemble:    "nve",
		},
	}
}

// LoadCalcSettings reads calculator.json. JSON and YAML are both accepted.
func LoadCalcSettings(path string) (CalcSettings, error) {
	s := DefaultCalcSettings()
	if err := decodeFile(path, &s); err != nil {
		return CalcSettings{}, err
	}
	if strings.TrimSpace(s.PseudoPath) == "" {
		s.PseudoPath = "."
	}
	return s, nil
}

// LoadParameters reads parameters.json. JSON and YAML are both accepted.
func LoadParameters(path string) (Parameters, error) {
	p := DefaultParameters()
	if err := decodeFile(path, &p); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
