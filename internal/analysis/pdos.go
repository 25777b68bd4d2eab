package analysis

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"siestarunner/internal/atomicfile"
	"siestarunner/internal/config"
)

// PDOS is pdos_data.json.
type PDOS struct {
	NSpin        int       `json:"nspin"`
	FermiEnergy  *float64  `json:"fermi_energy"`
	EnergyValues []float64 `json:"energy_values"`
	// Orbitals carry the XML attributes of each orbital (species, n, l, m,
	// ...) as strings, plus "values" with nspin*len(EnergyValues) entries.
	Orbitals []map[string]any `json:"orbitals"`
}

type pdosDocument struct {
	NSpin        *string          `xml:"nspin"`
	FermiEnergy  *string          `xml:"fermi_energy"`
	EnergyValues *string          `xml:"energy_values"`
	Orbitals     []orbitalElement `xml:"orbital"`
}

type orbitalElement struct {
	Attrs    []xml.Attr    `xml:",any,attr"`
	Children []dataElement `xml:",any"`
}

type dataElement struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

func pdosTask(label string) Task {
	input := config.LabelFile(label, "PDOS.xml")
	return Task{
		Name:   TaskPDOS,
		Inputs: []string{input},
		Output: config.PDOSJSON,
		Run: func(_ context.Context, env *Env) error {
			f, err := os.Open(env.Path(input))
			if err != nil {
				return err
			}
			defer f.Close()
			p, err := ParsePDOS(f)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			return atomicfile.WriteJSON(env.Path(config.PDOSJSON), p)
		},
	}
}

// ParsePDOS reads a SIESTA .PDOS.xml document.
func ParsePDOS(r io.Reader) (*PDOS, error) {
	var doc pdosDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid PDOS file: %w", err)
	}
	if doc.NSpin == nil || strings.TrimSpace(*doc.NSpin) == "" {
		return nil, errors.New("nspin not found")
	}
	nspin, err := strconv.Atoi(strings.TrimSpace(*doc.NSpin))
	if err != nil || nspin < 1 {
		return nil, fmt.Errorf("invalid nspin %q", *doc.NSpin)
	}
	if doc.EnergyValues == nil {
		return nil, errors.New("energy_values not found")
	}
	energy, err := parseNumbers(*doc.EnergyValues)
	if err != nil {
		return nil, fmt.Errorf("energy_values: %w", err)
	}

	p := &PDOS{NSpin: nspin, EnergyValues: energy, Orbitals: make([]map[string]any, 0, len(doc.Orbitals))}
	if doc.FermiEnergy != nil && strings.TrimSpace(*doc.FermiEnergy) != "" {
		ef, err := strconv.ParseFloat(strings.TrimSpace(*doc.FermiEnergy), 64)
		if err != nil {
			return nil, fmt.Errorf("fermi_energy: %w", err)
		}
		p.FermiEnergy = &ef
	}

	for i, orb := range doc.Orbitals {
		attrs := make(map[string]any, len(orb.Attrs)+1)
		for _, a := range orb.Attrs {
			attrs[a.Name.Local] = a.Value
		}
		var values []float64
		if len(orb.Children) > 0 {
			if values, err = parseNumbers(orb.Children[0].Text); err != nil {
				return nil, fmt.Errorf("orbital %d: %w", i+1, err)
			}
		}
		if len(values) != len(energy)*nspin {
			return nil, fmt.Errorf("orbital %d: mismatch between energy grid (%d points, nspin %d) and %d values",
				i+1, len(energy), nspin, len(values))
		}
		attrs["values"] = values
		p.Orbitals = append(p.Orbitals, attrs)
	}
	return p, nil
}

func parseNumbers(text string) ([]float64, error) {
	fields := strings.Fields(text)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
