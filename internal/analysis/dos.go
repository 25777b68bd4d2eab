package analysis

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"siestarunner/internal/atomicfile"
	"siestarunner/internal/config"
)

// DOSUnits names the units of a DOS document.
type DOSUnits struct {
	Energy string `json:"energy"`
	DOS    string `json:"dos"`
}

// DOSMetadata describes a DOS document.
type DOSMetadata struct {
	Units         DOSUnits `json:"units"`
	SpinPolarized bool     `json:"spin_polarized"`
}

// Integral is the trapezoid integral of a curve over the whole energy
// window. An absent integral encodes as an empty list, which is what the
// frontend receives for spin curves of unpolarised runs.
type Integral struct {
	Value float64
	Valid bool
}

func newIntegral(v float64) Integral { return Integral{Value: v, Valid: true} }

func (i Integral) MarshalJSON() ([]byte, error) {
	if !i.Valid {
		return []byte("[]"), nil
	}
	return json.Marshal(i.Value)
}

func (i *Integral) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*i = newIntegral(v)
		return nil
	}
	var empty []float64
	if err := json.Unmarshal(data, &empty); err != nil || len(empty) != 0 {
		return fmt.Errorf("integral must be a number or an empty list, got %s", data)
	}
	*i = Integral{}
	return nil
}

// DOS is DOS.json. Spin curves are empty for unpolarised runs.
type DOS struct {
	FermiEnergy          *float64    `json:"fermi_energy"`
	Energy               []float64   `json:"energy"`
	TotalDOS             []float64   `json:"total_dos"`
	SpinUp               []float64   `json:"spin_up"`
	SpinDown             []float64   `json:"spin_down"`
	Difference           []float64   `json:"difference"`
	CumulativeSpinUp     Integral    `json:"cumulative_spin_up"`
	CumulativeSpinDown   Integral    `json:"cumulative_spin_down"`
	CumulativeTotalDOS   Integral    `json:"cumulative_total_dos"`
	CumulativeDifference Integral    `json:"cumulative_difference"`
	Metadata             DOSMetadata `json:"metadata"`
}

func dosTask(label string) Task {
	input := config.LabelFile(label, "DOS")
	return Task{
		Name:   TaskDOS,
		Inputs: []string{input},
		Output: config.DOSJSON,
		Run: func(_ context.Context, env *Env) error {
			cols, err := readColumns(env.Path(input))
			if err != nil {
				return err
			}
			dos, err := BuildDOS(cols, env.Results.FermiEnergy)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			return atomicfile.WriteJSON(env.Path(config.DOSJSON), dos)
		},
	}
}

// BuildDOS builds the DOS document from the columns of a .DOS file. Two
// columns are energy and DOS; three or more are energy, spin up and spin
// down.
func BuildDOS(cols [][]float64, fermi *float64) (*DOS, error) {
	if len(cols) < 2 {
		return nil, fmt.Errorf("expected at least 2 columns, got %d", len(cols))
	}
	energy := cols[0]
	if len(energy) < 2 {
		return nil, fmt.Errorf("expected at least 2 energy points, got %d", len(energy))
	}
	if !sort.Float64sAreSorted(energy) {
		return nil, fmt.Errorf("energy column is not increasing")
	}

	d := &DOS{
		FermiEnergy: fermi,
		Energy:      energy,
		SpinUp:      []float64{},
		SpinDown:    []float64{},
		Difference:  []float64{},
		Metadata: DOSMetadata{
			Units:         DOSUnits{Energy: "eV", DOS: "states/eV"},
			SpinPolarized: len(cols) >= 3,
		},
	}

	if d.Metadata.SpinPolarized {
		up, down := cols[1], cols[2]
		d.SpinUp, d.SpinDown = up, down
		d.TotalDOS = floats.AddTo(make([]float64, len(up)), up, down)
		d.Difference = floats.SubTo(make([]float64, len(up)), up, down)
		d.CumulativeSpinUp = newIntegral(integrate.Trapezoidal(energy, up))
		d.CumulativeSpinDown = newIntegral(integrate.Trapezoidal(energy, down))
		d.CumulativeDifference = newIntegral(integrate.Trapezoidal(energy, d.Difference))
	} else {
		d.TotalDOS = cols[1]
	}
	d.CumulativeTotalDOS = newIntegral(integrate.Trapezoidal(energy, d.TotalDOS))
	return d, nil
}

func readColumns(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cols, err := parseColumns(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cols, nil
}

// parseColumns reads a whitespace-separated numeric table, skipping blank
// lines and '#' comments, and returns it column-major.
func parseColumns(r io.Reader) ([][]float64, error) {
	sc := bufio.NewScanner(r)
	var (
		cols   [][]float64
		lineNo int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if cols == nil {
			cols = make([][]float64, len(fields))
		}
		if len(fields) != len(cols) {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", lineNo, len(cols), len(fields))
		}
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			cols[i] = append(cols[i], v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, fmt.Errorf("no data")
	}
	return cols, nil
}
